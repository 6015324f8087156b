package handler

import (
	"net/url"
	"strings"

	"github.com/hitoshi/readerbridge/internal/model"
)

// errorPathInfo はPATH_INFOが空の場合に代わりに使うパス。どのルートにも一致しない。
const errorPathInfo = "/Error"

// segments はPATH_INFOを"/"で分割したもの。先頭要素は常に空文字列になる。
//
//	/reader/api/0/stream/contents/feed/12
//	[0]"" [1]reader [2]api [3]0 [4]stream [5]contents [6]feed [7]12
type segments []string

func splitPathInfo(pathInfo string) segments {
	if pathInfo == "" {
		pathInfo = errorPathInfo
	}
	return strings.Split(pathInfo, "/")
}

// has はi番目の要素が存在するかを返す。空文字列の要素も存在とみなす。
func (s segments) has(i int) bool {
	return i >= 0 && i < len(s)
}

// at はi番目の要素を返す。存在しない場合は空文字列。
func (s segments) at(i int) string {
	if !s.has(i) {
		return ""
	}
	return s[i]
}

// from はi番目以降の要素を"/"で連結して返す。存在しない場合は空文字列。
func (s segments) from(i int) string {
	if !s.has(i) {
		return ""
	}
	return strings.Join(s[i:], "/")
}

// is はi番目の要素が存在し、かつvと等しいかを返す。
func (s segments) is(i int, v string) bool {
	return s.has(i) && s[i] == v
}

// readerAPI は /reader/api/0/<endpoint> 形式かを返す。
func (s segments) readerAPI() bool {
	return s.is(1, "reader") && s.is(2, "api") && s.is(3, "0") && s.has(4)
}

// apiRequest はディスパッチ時点のリクエスト情報。生成後は変更しない。
type apiRequest struct {
	path     segments
	query    url.Values
	postForm url.Values
	user     *model.UserConfig
}

// username は認証済みユーザー名を返す。未認証の場合は空文字列。
func (r *apiRequest) username() string {
	if r.user == nil {
		return ""
	}
	return r.user.Username
}

// queryParam はクエリ文字列のパラメータを返す。
func (r *apiRequest) queryParam(name string) (string, bool) {
	vs, ok := r.query[name]
	if !ok || len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}

// postParam はPOSTボディのパラメータを返す。
func (r *apiRequest) postParam(name string) (string, bool) {
	vs, ok := r.postForm[name]
	if !ok || len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}

// anyParam はPOSTボディ、クエリ文字列の順にパラメータを探す。
func (r *apiRequest) anyParam(name string) (string, bool) {
	if v, ok := r.postParam(name); ok {
		return v, true
	}
	return r.queryParam(name)
}
