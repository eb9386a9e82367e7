package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/directorio/internal/model"
)

// MemoryIdentityRepo はプロセス内メモリにidentityを保持するリポジトリ。
// DATABASE_URL未設定時の端末内モードとテストで使用する。
type MemoryIdentityRepo struct {
	mu         sync.RWMutex
	identities map[string]model.Credential
	sessions   *MemorySessionRepo
}

// NewMemoryIdentityRepo はMemoryIdentityRepoを生成する。
// sessionsを指定するとDeleteByIDでそのidentityのセッションも削除する。
func NewMemoryIdentityRepo(sessions *MemorySessionRepo) *MemoryIdentityRepo {
	return &MemoryIdentityRepo{
		identities: make(map[string]model.Credential),
		sessions:   sessions,
	}
}

// Create はidentityを作成する。
func (r *MemoryIdentityRepo) Create(_ context.Context, cred *model.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.identities {
		if strings.EqualFold(existing.Email, cred.Email) {
			return ErrDuplicateEmail
		}
	}
	r.identities[cred.ID] = *cred
	return nil
}

// FindByEmail はメールアドレスでidentityを検索する。見つからない場合はnilを返す。
func (r *MemoryIdentityRepo) FindByEmail(_ context.Context, email string) (*model.Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, cred := range r.identities {
		if strings.EqualFold(cred.Email, email) {
			c := cred
			return &c, nil
		}
	}
	return nil, nil
}

// FindByID は指定IDのidentityを取得する。見つからない場合はnilを返す。
func (r *MemoryIdentityRepo) FindByID(_ context.Context, id string) (*model.Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cred, ok := r.identities[id]
	if !ok {
		return nil, nil
	}
	return &cred, nil
}

// UpdateSecretHash はシークレットハッシュを置き換える。
func (r *MemoryIdentityRepo) UpdateSecretHash(_ context.Context, id, secretHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cred, ok := r.identities[id]
	if !ok {
		return fmt.Errorf("identity not found: %s", id)
	}
	cred.SecretHash = secretHash
	r.identities[id] = cred
	return nil
}

// TouchSignIn は最終サインイン時刻を更新する。
func (r *MemoryIdentityRepo) TouchSignIn(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cred, ok := r.identities[id]; ok {
		cred.LastSignInAt = at
		r.identities[id] = cred
	}
	return nil
}

// DeleteByID は指定IDのidentityと関連セッションを削除する。
func (r *MemoryIdentityRepo) DeleteByID(ctx context.Context, id string) error {
	r.mu.Lock()
	delete(r.identities, id)
	r.mu.Unlock()

	if r.sessions != nil {
		return r.sessions.DeleteByIdentityID(ctx, id)
	}
	return nil
}

// ListCreatedBefore はcutoffより前に作成されたidentityをID昇順で返す。
func (r *MemoryIdentityRepo) ListCreatedBefore(_ context.Context, cutoff time.Time, after string, limit int) ([]*model.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var identities []*model.Identity
	for _, cred := range r.identities {
		if !cred.CreatedAt.Before(cutoff) || (after != "" && cred.ID <= after) {
			continue
		}
		identity := cred.Identity
		identities = append(identities, &identity)
	}
	sort.Slice(identities, func(i, j int) bool { return identities[i].ID < identities[j].ID })

	if limit > 0 && len(identities) > limit {
		identities = identities[:limit]
	}
	return identities, nil
}

// MemorySessionRepo はプロセス内メモリにセッションを保持するリポジトリ。
type MemorySessionRepo struct {
	mu       sync.RWMutex
	sessions map[string]model.Session
	now      func() time.Time
}

// NewMemorySessionRepo はMemorySessionRepoを生成する。nowがnilの場合はtime.Nowを使う。
func NewMemorySessionRepo(now func() time.Time) *MemorySessionRepo {
	if now == nil {
		now = time.Now
	}
	return &MemorySessionRepo{sessions: make(map[string]model.Session), now: now}
}

// Create はセッションを作成する。
func (r *MemorySessionRepo) Create(_ context.Context, session *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = *session
	return nil
}

// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
func (r *MemorySessionRepo) FindByID(_ context.Context, id string) (*model.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[id]
	if !ok || !session.ExpiresAt.After(r.now()) {
		return nil, nil
	}
	return &session, nil
}

// UpdateAuthTime は再認証時刻とトークンを更新する。
func (r *MemorySessionRepo) UpdateAuthTime(_ context.Context, id string, authTime time.Time, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if session, ok := r.sessions[id]; ok {
		session.AuthTime = authTime
		session.Token = token
		r.sessions[id] = session
	}
	return nil
}

// DeleteByID は指定IDのセッションを削除する。
func (r *MemorySessionRepo) DeleteByID(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

// DeleteByIdentityID は指定identityの全セッションを削除する。
func (r *MemorySessionRepo) DeleteByIdentityID(_ context.Context, identityID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, session := range r.sessions {
		if session.IdentityID == identityID {
			delete(r.sessions, id)
		}
	}
	return nil
}

// DeleteExpired は期限切れのセッションを削除する。
func (r *MemorySessionRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, session := range r.sessions {
		if !session.ExpiresAt.After(now) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

// compile-time interface check
var (
	_ IdentityRepository = (*MemoryIdentityRepo)(nil)
	_ SessionRepository  = (*MemorySessionRepo)(nil)
)
