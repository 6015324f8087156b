// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
	"net/http"
)

// ProtocolErrorKind はGoogle Reader APIが返すエラー応答の種類。
type ProtocolErrorKind int

const (
	// KindBadRequest は入力形式の不正（パス不足、不正なユーザー名、不正なID）。
	KindBadRequest ProtocolErrorKind = iota
	// KindUnauthorized は資格情報またはトークンの検証失敗。
	KindUnauthorized
	// KindNotImplemented は認識済みパスだが未対応の出力形式。
	KindNotImplemented
	// KindServiceUnavailable は設定による無効化、またはバックエンド障害。
	KindServiceUnavailable
)

// ProtocolError はクライアントへそのまま返すエラー応答を表す。
// Reason はログ専用で、レスポンスボディには含めない。
type ProtocolError struct {
	Kind   ProtocolErrorKind
	Reason string
	Err    error
}

// Error はerrorインターフェースを実装する。
func (e *ProtocolError) Error() string {
	msg := e.Body()
	if e.Reason != "" {
		msg = fmt.Sprintf("%s %s", msg, e.Reason)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap は原因エラーを返す。
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// StatusCode はHTTPステータスコードを返す。
func (e *ProtocolError) StatusCode() int {
	switch e.Kind {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotImplemented:
		return http.StatusNotImplemented
	case KindServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

// Body はレスポンスボディに書き込む文字列を返す。
func (e *ProtocolError) Body() string {
	switch e.Kind {
	case KindUnauthorized:
		return "Unauthorized!"
	case KindNotImplemented:
		return "Not Implemented!"
	case KindServiceUnavailable:
		return "Service Unavailable!"
	default:
		return "Bad Request!"
	}
}

// NewBadRequestError はBadRequestエラーを生成する。
func NewBadRequestError(reason string) *ProtocolError {
	return &ProtocolError{Kind: KindBadRequest, Reason: reason}
}

// NewUnauthorizedError はUnauthorizedエラーを生成する。
func NewUnauthorizedError(reason string) *ProtocolError {
	return &ProtocolError{Kind: KindUnauthorized, Reason: reason}
}

// NewNotImplementedError はNotImplementedエラーを生成する。
func NewNotImplementedError(reason string) *ProtocolError {
	return &ProtocolError{Kind: KindNotImplemented, Reason: reason}
}

// NewServiceUnavailableError はServiceUnavailableエラーを生成する。
// errにはバックエンド由来の原因を渡す。nilでもよい。
func NewServiceUnavailableError(reason string, err error) *ProtocolError {
	return &ProtocolError{Kind: KindServiceUnavailable, Reason: reason, Err: err}
}

// AsProtocolError はerrからProtocolErrorを取り出す。
// ProtocolErrorを含まないエラーはバックエンド障害としてServiceUnavailableに変換する。
func AsProtocolError(err error) *ProtocolError {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe
	}
	return NewServiceUnavailableError("backend error", err)
}
