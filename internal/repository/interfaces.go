// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/directorio/internal/model"
)

// ErrDuplicateEmail は同じメールアドレスのidentityが既に存在する場合に返される。
var ErrDuplicateEmail = errors.New("email already registered")

// IdentityRepository はメールアドレスとシークレットによるidentityの永続化インターフェース。
type IdentityRepository interface {
	// Create はidentityを作成する。メールアドレスが重複する場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, cred *model.Credential) error

	// FindByEmail はメールアドレス（大文字小文字を区別しない）でidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Credential, error)

	// FindByID は指定IDのidentityを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Credential, error)

	// UpdateSecretHash はシークレットハッシュを置き換える。
	UpdateSecretHash(ctx context.Context, id, secretHash string) error

	// TouchSignIn は最終サインイン時刻を更新する。
	TouchSignIn(ctx context.Context, id string, at time.Time) error

	// DeleteByID は指定IDのidentityを削除する。
	// 関連するsessionsはCASCADE削除される。存在しない場合はエラーにしない。
	DeleteByID(ctx context.Context, id string) error

	// ListCreatedBefore はcutoffより前に作成されたidentityをID昇順で返す。
	// afterより大きいIDだけを対象にし、最大limit件を返す。
	ListCreatedBefore(ctx context.Context, cutoff time.Time, after string, limit int) ([]*model.Identity, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// UpdateAuthTime は再認証時刻を更新する。トークンも同時に置き換える。
	UpdateAuthTime(ctx context.Context, id string, authTime time.Time, token string) error
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByIdentityID は指定identityの全セッションを削除する。
	DeleteByIdentityID(ctx context.Context, identityID string) error
	// DeleteExpired はnow時点で期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
