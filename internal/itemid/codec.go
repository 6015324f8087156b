// Package itemid はGoogle Reader APIのアイテムID表現を相互変換する。
//
// 同じ64ビット符号なし整数が、stream/contents では16桁の小文字16進文字列、
// items/ids と continuation では10進文字列として現れる。
// edit-tag は長形式 "tag:google.com,2005:reader/item/<16進>" でも受け付ける。
package itemid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// LongFormPrefix は長形式アイテムIDの接頭辞。
const LongFormPrefix = "tag:google.com,2005:reader/item/"

// ErrInvalidFormat はIDが16進または10進として解釈できない場合に返される。
var ErrInvalidFormat = errors.New("invalid item id format")

// EncodeHex はIDを16桁ゼロ埋めの小文字16進文字列に変換する。
func EncodeHex(id uint64) string {
	return fmt.Sprintf("%016x", id)
}

// DecodeHex は16進文字列をIDに変換する。大文字も受け付ける。
func DecodeHex(hex string) (uint64, error) {
	if hex == "" || len(hex) > 16 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, hex)
	}
	id, err := strconv.ParseUint(hex, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, hex)
	}
	return id, nil
}

// FormatDecimal はIDを10進文字列に変換する。
func FormatDecimal(id uint64) string {
	return strconv.FormatUint(id, 10)
}

// ParseDecimal は10進文字列をIDに変換する。
func ParseDecimal(dec string) (uint64, error) {
	id, err := strconv.ParseUint(dec, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, dec)
	}
	return id, nil
}

// ToHex は10進文字列のIDを16進表現に変換する。
func ToHex(decimalID string) (string, error) {
	id, err := ParseDecimal(decimalID)
	if err != nil {
		return "", err
	}
	return EncodeHex(id), nil
}

// ToDecimal は16進表現のIDを10進文字列に変換する。
func ToDecimal(hex string) (string, error) {
	id, err := DecodeHex(hex)
	if err != nil {
		return "", err
	}
	return FormatDecimal(id), nil
}

// ParseItemRef はedit-tagの i パラメータ1件をIDに変換する。
// 最後の "/" より前（長形式の接頭辞を含む）を取り除き、残りを16進として解釈する。
func ParseItemRef(ref string) (uint64, error) {
	ref = strings.TrimSpace(ref)
	if i := strings.LastIndexByte(ref, '/'); i >= 0 {
		ref = ref[i+1:]
	}
	return DecodeHex(ref)
}

// CrawlTimeMsec はIDの10進表現から末尾3桁を除いた文字列を返す。
// IDがマイクロ秒のタイムスタンプを兼ねるため、これがミリ秒表現になる。
func CrawlTimeMsec(id uint64) string {
	dec := FormatDecimal(id)
	if len(dec) <= 3 {
		return ""
	}
	return dec[:len(dec)-3]
}
