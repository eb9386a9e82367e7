package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/directorio/internal/model"
)

// uniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const uniqueViolation = "23505"

// PostgresIdentityRepo はPostgreSQLを使用したidentityリポジトリ。
type PostgresIdentityRepo struct {
	db *sql.DB
}

// NewPostgresIdentityRepo はPostgresIdentityRepoを生成する。
func NewPostgresIdentityRepo(db *sql.DB) *PostgresIdentityRepo {
	return &PostgresIdentityRepo{db: db}
}

// Create はidentityを作成する。
func (r *PostgresIdentityRepo) Create(ctx context.Context, cred *model.Credential) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO identities (id, email, secret_hash, disabled, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		cred.ID, cred.Email, cred.SecretHash, cred.Disabled, cred.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to insert identity: %w", err)
	}
	return nil
}

// FindByEmail はメールアドレスでidentityを検索する。見つからない場合はnilを返す。
func (r *PostgresIdentityRepo) FindByEmail(ctx context.Context, email string) (*model.Credential, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, email, secret_hash, disabled, created_at, last_sign_in_at
		 FROM identities
		 WHERE lower(email) = lower($1)`,
		email,
	)
	cred, err := scanCredential(row)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity by email: %w", err)
	}
	return cred, nil
}

// FindByID は指定IDのidentityを取得する。見つからない場合はnilを返す。
func (r *PostgresIdentityRepo) FindByID(ctx context.Context, id string) (*model.Credential, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, email, secret_hash, disabled, created_at, last_sign_in_at
		 FROM identities
		 WHERE id = $1`,
		id,
	)
	cred, err := scanCredential(row)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity by ID: %w", err)
	}
	return cred, nil
}

// UpdateSecretHash はシークレットハッシュを置き換える。
func (r *PostgresIdentityRepo) UpdateSecretHash(ctx context.Context, id, secretHash string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE identities SET secret_hash = $2 WHERE id = $1`,
		id, secretHash,
	)
	if err != nil {
		return fmt.Errorf("failed to update secret hash: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("identity not found: %s", id)
	}
	return nil
}

// TouchSignIn は最終サインイン時刻を更新する。
func (r *PostgresIdentityRepo) TouchSignIn(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE identities SET last_sign_in_at = $2 WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("failed to update last sign-in: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのidentityを削除する。
func (r *PostgresIdentityRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM identities WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete identity: %w", err)
	}
	return nil
}

// ListCreatedBefore はcutoffより前に作成されたidentityをID昇順で返す。
func (r *PostgresIdentityRepo) ListCreatedBefore(ctx context.Context, cutoff time.Time, after string, limit int) ([]*model.Identity, error) {
	// 先頭ページはafterが空文字なのでUUIDとして比較しない
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, email, disabled, created_at, last_sign_in_at
		 FROM identities
		 WHERE created_at < $1 AND ($2 = '' OR id::text > $2)
		 ORDER BY id::text
		 LIMIT $3`,
		cutoff, after, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}
	defer rows.Close()

	var identities []*model.Identity
	for rows.Next() {
		identity := &model.Identity{}
		var lastSignIn sql.NullTime
		if err := rows.Scan(&identity.ID, &identity.Email, &identity.Disabled, &identity.CreatedAt, &lastSignIn); err != nil {
			return nil, fmt.Errorf("failed to scan identity: %w", err)
		}
		identity.LastSignInAt = lastSignIn.Time
		identities = append(identities, identity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate identities: %w", err)
	}

	return identities, nil
}

func scanCredential(row *sql.Row) (*model.Credential, error) {
	cred := &model.Credential{}
	var lastSignIn sql.NullTime
	err := row.Scan(&cred.ID, &cred.Email, &cred.SecretHash, &cred.Disabled, &cred.CreatedAt, &lastSignIn)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cred.LastSignInAt = lastSignIn.Time
	return cred, nil
}

// compile-time interface check
var _ IdentityRepository = (*PostgresIdentityRepo)(nil)
