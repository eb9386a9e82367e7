package model

import "time"

// Identity はメールアドレスとシークレットで認証される利用者を表す。
// ライフサイクルはIdentity Serviceだけが管理する。
type Identity struct {
	ID           string
	Email        string
	Disabled     bool
	CreatedAt    time.Time
	LastSignInAt time.Time
}

// Credential はIdentityと検証用のシークレットハッシュの組。
// リポジトリ層とIdentity Serviceの間でのみ受け渡す。
type Credential struct {
	Identity
	SecretHash string
}

// Session は認証済みの端末セッションを表す。
// nilのSessionは未認証状態を意味する。
type Session struct {
	ID         string
	IdentityID string
	Email      string
	Token      string
	AuthTime   time.Time // 最後にシークレットを検証した時刻
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

// Clone はSessionのコピーを返す。nilにはnilを返す。
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
