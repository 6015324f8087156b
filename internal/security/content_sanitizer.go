// Package security はフィード取り込み時のセキュリティ機能を提供する。
//
// 記事本文はリーダークライアントにHTMLのまま渡されるため、保存前に
// bluemondayの許可リストポリシーでサニタイズする。
package security

import (
	"regexp"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService は記事本文のHTMLサニタイズのインターフェース。
type ContentSanitizerService interface {
	// Sanitize はHTMLを許可リストに従ってサニタイズする。
	// 同一入力に対して常に同一出力を返す。
	Sanitize(rawHTML string) string
}

// ContentSanitizer はbluemondayのポリシーを保持するサニタイザー。
// ポリシーは構築後に変更しないため、複数のgoroutineから共有できる。
type ContentSanitizer struct {
	body *bluemonday.Policy
	text *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerを生成する。
//
// 本文ポリシー:
//   - 見出し、段落、リスト、表、引用、整形済みテキスト、強調、画像、図版
//   - aはhrefのみ、絶対URLに限りtarget="_blank"とrel="noreferrer noopener"を付与
//   - img/source等のURLはhttpとhttpsのみ
//   - script, iframe, style, on*属性は許可リストに含めないため除去される
func NewContentSanitizer() *ContentSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "hr", "div", "span",
		"h1", "h2", "h3", "h4", "h5", "h6",
		"ul", "ol", "li", "dl", "dt", "dd",
		"blockquote", "pre", "code", "kbd", "samp",
		"strong", "em", "b", "i", "u", "s", "sub", "sup", "small", "mark",
		"figure", "figcaption",
		"table", "thead", "tbody", "tfoot", "tr", "caption",
	)
	p.AllowAttrs("colspan", "rowspan").Matching(regexp.MustCompile(`^[0-9]{1,3}$`)).OnElements("td", "th")
	p.AllowElements("td", "th")

	p.AllowAttrs("href").OnElements("a")
	p.AllowAttrs("title").OnElements("a", "abbr", "img")
	p.AllowElements("abbr")
	p.AllowRelativeURLs(false)
	p.AllowURLSchemes("http", "https")
	p.RequireParseableURLs(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	p.AllowAttrs("src", "alt").OnElements("img")
	p.AllowAttrs("width", "height").Matching(bluemonday.NumberOrPercent).OnElements("img")

	return &ContentSanitizer{
		body: p,
		text: bluemonday.StrictPolicy(),
	}
}

// Sanitize は記事本文をサニタイズする。
func (s *ContentSanitizer) Sanitize(rawHTML string) string {
	return s.body.Sanitize(rawHTML)
}

// StripTags はタイトルや著者名など、プレーンテキストとして扱う値からタグをすべて除去する。
// 文字参照はエスケープされたまま残る。
func (s *ContentSanitizer) StripTags(raw string) string {
	return s.text.Sanitize(raw)
}

var _ ContentSanitizerService = (*ContentSanitizer)(nil)
