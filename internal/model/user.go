// Package model はドメインモデルを定義する。
package model

import "time"

// UserConfig はAPI利用ユーザーの設定を表す。
// APIPasswordHash はbcryptハッシュで、資格情報トークンの導出にも使われる。
type UserConfig struct {
	Username        string
	APIPasswordHash string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
