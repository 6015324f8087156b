// Package auth はGoogle Reader APIの資格情報トークンと編集トークンを発行・検証する。
//
// 資格情報トークンは "ユーザー名/sha1(salt+ユーザー名+APIパスワードハッシュ)" の形式で、
// 有効期限を持たない。編集トークンは同じダイジェストを 'Z' で57文字まで埋めたもので、
// 互換性のため時間制限を付けない。
package auth

import (
	"context"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/readerbridge/internal/model"
	"github.com/hitoshi/readerbridge/internal/repository"
)

const (
	// editTokenLength は編集トークンの長さ。
	editTokenLength = 57
	// editTokenFiller は編集トークンの埋め文字。
	editTokenFiller = "Z"
	// authHeaderField はAuthorizationヘッダー内で資格情報を運ぶサブフィールド名。
	authHeaderField = "GoogleLogin auth"
)

// Service は資格情報の発行と検証を提供する。
// リクエスト間で状態を持たず、ユーザー設定は都度リポジトリから読み込む。
type Service struct {
	userRepo repository.UserRepository
	salt     string
	logger   *slog.Logger
}

// NewService はServiceを生成する。saltはサーバー全体で共通の秘密値。
func NewService(userRepo repository.UserRepository, salt string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		userRepo: userRepo,
		salt:     salt,
		logger:   logger,
	}
}

// Digest はsha1(salt + username + passwordHash)の16進表現を返す。
func Digest(salt, username, passwordHash string) string {
	sum := sha1.Sum([]byte(salt + username + passwordHash))
	return hex.EncodeToString(sum[:])
}

// ValidUsername はユーザー名が空でない英数字のみで構成されているかを返す。
func ValidUsername(username string) bool {
	if username == "" {
		return false
	}
	for _, c := range username {
		isAlnum := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
		if !isAlnum {
			return false
		}
	}
	return true
}

// IssueCredential はユーザーの資格情報トークンを返す。
func (s *Service) IssueCredential(conf *model.UserConfig) string {
	return conf.Username + "/" + Digest(s.salt, conf.Username, conf.APIPasswordHash)
}

// IssueEditToken はユーザーの編集トークンを返す。
func (s *Service) IssueEditToken(conf *model.UserConfig) string {
	digest := Digest(s.salt, conf.Username, conf.APIPasswordHash)
	return digest + strings.Repeat(editTokenFiller, editTokenLength-len(digest))
}

// VerifyEditToken は編集トークンを検証する。一致しない場合はUnauthorizedを返す。
func (s *Service) VerifyEditToken(conf *model.UserConfig, token string) error {
	want := s.IssueEditToken(conf)
	if subtle.ConstantTimeCompare([]byte(token), []byte(want)) != 1 {
		s.logger.Warn("編集トークンの検証に失敗しました",
			slog.String("event", "auth_failure"),
			slog.String("user", conf.Username),
		)
		return model.NewUnauthorizedError("edit token mismatch")
	}
	return nil
}

// ParseAuthorizationHeader はAuthorizationヘッダーから資格情報トークンを取り出す。
// "GoogleLogin auth=<token>" 以外の形式の場合は空文字列を返す。
func ParseAuthorizationHeader(header string) string {
	values, _ := url.ParseQuery(strings.TrimSpace(header))
	return values.Get(authHeaderField)
}

// VerifyCredential はAuthorizationヘッダーの値を検証し、ユーザー設定を返す。
// 資格情報が含まれない場合と"/"を含まない場合はnilを返す（未認証のまま処理を続ける）。
//
// ユーザー名の文字種違反はBadRequest、ユーザー設定の読み込み失敗と
// ダイジェスト不一致はUnauthorizedになる。読み込み失敗の原因は区別しない。
func (s *Service) VerifyCredential(ctx context.Context, header string) (*model.UserConfig, error) {
	token := ParseAuthorizationHeader(header)
	if token == "" {
		return nil, nil
	}

	username, digest, ok := strings.Cut(token, "/")
	if !ok {
		return nil, nil
	}
	if !ValidUsername(username) {
		return nil, model.NewBadRequestError("invalid username in credential")
	}

	conf, err := s.loadUser(ctx, username)
	if err != nil {
		return nil, err
	}

	want := Digest(s.salt, conf.Username, conf.APIPasswordHash)
	if subtle.ConstantTimeCompare([]byte(digest), []byte(want)) != 1 {
		s.logger.Warn("API資格情報の検証に失敗しました",
			slog.String("event", "auth_failure"),
			slog.String("user", username),
		)
		return nil, model.NewUnauthorizedError("credential mismatch")
	}

	return conf, nil
}

// Login はユーザー名と平文パスワードを検証し、資格情報トークンを返す。
// パスワードはbcryptで定数時間比較する。
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	if !ValidUsername(username) {
		return "", model.NewBadRequestError("invalid username")
	}

	conf, err := s.loadUser(ctx, username)
	if err != nil {
		return "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(conf.APIPasswordHash), []byte(password)); err != nil {
		s.logger.Warn("APIパスワードが一致しません",
			slog.String("event", "auth_failure"),
			slog.String("user", username),
		)
		return "", model.NewUnauthorizedError("password mismatch")
	}

	return s.IssueCredential(conf), nil
}

// loadUser はユーザー設定を読み込む。未登録、APIパスワード未設定、
// 読み込みエラーはいずれもUnauthorizedとして扱う。
func (s *Service) loadUser(ctx context.Context, username string) (*model.UserConfig, error) {
	conf, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		s.logger.Error("ユーザー設定の読み込みに失敗しました",
			slog.String("user", username),
			slog.String("error", err.Error()),
		)
		return nil, &model.ProtocolError{Kind: model.KindUnauthorized, Reason: "user config load failed", Err: err}
	}
	if conf == nil || conf.APIPasswordHash == "" {
		return nil, model.NewUnauthorizedError("unknown user or api password not set")
	}
	return conf, nil
}

// HashPassword は平文パスワードをbcryptでハッシュ化する。
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}
