// Package identity はメールアドレスとシークレットによる認証と端末セッションを提供する。
// 1プロセス（端末）につき現在のセッションを1つだけ保持し、変更を購読者へ通知する。
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/directorio/internal/model"
	"github.com/hitoshi/directorio/internal/repository"
)

// MinSecretLength はシークレットの最小文字数。
const MinSecretLength = 6

// Config はIdentity Serviceの設定。
type Config struct {
	SessionSecret       string        // セッショントークンの署名鍵
	ProjectID           string        // トークンのissuer
	SessionMaxAge       time.Duration // セッション有効期間
	RecentLoginWindow   time.Duration // ChangeSecretを許可する最終認証からの経過時間
	SignInRatePerMinute int           // メールアドレスごとのサインイン試行上限（0以下で無制限）
	SignInBurst         int
}

// Option はServiceのオプション。
type Option func(*Service)

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithHasher はシークレットのHasherを差し替える。
func WithHasher(h Hasher) Option {
	return func(s *Service) { s.hasher = h }
}

// Service はIdentity Serviceの実装。
type Service struct {
	identities repository.IdentityRepository
	sessions   repository.SessionRepository
	hasher     Hasher
	tokens     *TokenIssuer
	limiter    *signInLimiter
	config     Config
	now        func() time.Time

	mu      sync.Mutex
	current *model.Session
	hub     *hub
}

// NewService はServiceを生成する。
func NewService(
	identities repository.IdentityRepository,
	sessions repository.SessionRepository,
	config Config,
	opts ...Option,
) *Service {
	s := &Service{
		identities: identities,
		sessions:   sessions,
		hasher:     BcryptHasher{},
		limiter:    newSignInLimiter(config.SignInRatePerMinute, config.SignInBurst),
		config:     config,
		now:        time.Now,
		hub:        newHub(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.tokens = NewTokenIssuer(config.SessionSecret, config.ProjectID, s.now)
	return s
}

// SignUp はidentityを作成し、そのidentityでサインインした状態にする。
func (s *Service) SignUp(ctx context.Context, email, secret string) (*model.Identity, error) {
	email = strings.TrimSpace(email)
	if !validEmail(email) {
		return nil, model.NewIdentityError(model.KindInvalidEmail, email)
	}
	if utf8.RuneCountInString(secret) < MinSecretLength {
		return nil, model.NewIdentityError(model.KindWeakPassword, "secret too short")
	}

	hash, err := s.hasher.Hash(secret)
	if err != nil {
		return nil, err
	}

	now := s.now()
	cred := &model.Credential{
		Identity: model.Identity{
			ID:        uuid.New().String(),
			Email:     email,
			CreatedAt: now,
		},
		SecretHash: hash,
	}
	if err := s.identities.Create(ctx, cred); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, model.NewIdentityError(model.KindEmailAlreadyInUse, email)
		}
		return nil, fmt.Errorf("failed to create identity: %w", err)
	}

	if err := s.establish(ctx, &cred.Identity, now); err != nil {
		return nil, err
	}

	slog.Info("identity created", slog.String("identity_id", cred.ID))
	identity := cred.Identity
	return &identity, nil
}

// SignIn はメールアドレスとシークレットを検証してサインインする。
// 既に別のセッションがある場合は置き換える。
func (s *Service) SignIn(ctx context.Context, email, secret string) (*model.Identity, error) {
	email = strings.TrimSpace(email)
	if !validEmail(email) {
		return nil, model.NewIdentityError(model.KindInvalidEmail, email)
	}

	now := s.now()
	if !s.limiter.Allow(email, now) {
		return nil, model.NewIdentityError(model.KindTooManyRequests, "sign-in attempts exceeded")
	}

	cred, err := s.identities.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}
	if cred == nil {
		return nil, model.NewIdentityError(model.KindUserNotFound, "")
	}
	if cred.Disabled {
		return nil, model.NewIdentityError(model.KindUserDisabled, "")
	}
	if !s.hasher.Verify(cred.SecretHash, secret) {
		return nil, model.NewIdentityError(model.KindWrongPassword, "")
	}

	if err := s.identities.TouchSignIn(ctx, cred.ID, now); err != nil {
		return nil, fmt.Errorf("failed to record sign-in: %w", err)
	}
	cred.LastSignInAt = now

	if err := s.establish(ctx, &cred.Identity, now); err != nil {
		return nil, err
	}

	slog.Info("identity signed in", slog.String("identity_id", cred.ID))
	identity := cred.Identity
	return &identity, nil
}

// SignOut は現在のセッションを破棄する。セッションがない場合は何もしない。
func (s *Service) SignOut(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return nil
	}
	if err := s.sessions.DeleteByID(ctx, s.current.ID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("identity signed out", slog.String("identity_id", s.current.IdentityID))
	s.setCurrentLocked(nil)
	return nil
}

// CurrentIdentity は現在サインインしているidentityを返す。未認証の場合はnilを返す。
func (s *Service) CurrentIdentity() *model.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return nil
	}
	return &model.Identity{ID: s.current.IdentityID, Email: s.current.Email}
}

// CurrentSession は現在のセッションのコピーを返す。未認証の場合はnilを返す。
func (s *Service) CurrentSession() *model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

// Reauthenticate は現在のシークレットを再検証し、認証時刻を更新する。
func (s *Service) Reauthenticate(ctx context.Context, identityID, currentSecret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil || s.current.IdentityID != identityID {
		return model.NewIdentityError(model.KindNoCurrentUser, "")
	}

	cred, err := s.identities.FindByID(ctx, identityID)
	if err != nil {
		return fmt.Errorf("failed to find identity: %w", err)
	}
	if cred == nil {
		return model.NewIdentityError(model.KindUserNotFound, "")
	}
	if cred.Disabled {
		return model.NewIdentityError(model.KindUserDisabled, "")
	}
	if !s.hasher.Verify(cred.SecretHash, currentSecret) {
		return model.NewIdentityError(model.KindWrongPassword, "")
	}

	now := s.now()
	token, err := s.tokens.Issue(identityID, s.current.ID, now, s.current.ExpiresAt)
	if err != nil {
		return err
	}
	if err := s.sessions.UpdateAuthTime(ctx, s.current.ID, now, token); err != nil {
		return fmt.Errorf("failed to refresh session: %w", err)
	}

	// 再認証はセッションの有無を変えないため通知しない
	s.current.AuthTime = now
	s.current.Token = token
	return nil
}

// ChangeSecret はシークレットを変更する。
// 最終認証からRecentLoginWindowを超えている場合はrequires-recent-loginを返す。
func (s *Service) ChangeSecret(ctx context.Context, identityID, newSecret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil || s.current.IdentityID != identityID {
		return model.NewIdentityError(model.KindNoCurrentUser, "")
	}

	claims, err := s.tokens.Parse(s.current.Token)
	if err != nil {
		return model.NewIdentityError(model.KindRequiresRecentLogin, err.Error())
	}
	authTime := time.Unix(claims.AuthTime, 0)
	if s.now().Sub(authTime) > s.config.RecentLoginWindow {
		return model.NewIdentityError(model.KindRequiresRecentLogin, "")
	}

	if utf8.RuneCountInString(newSecret) < MinSecretLength {
		return model.NewIdentityError(model.KindWeakPassword, "secret too short")
	}

	hash, err := s.hasher.Hash(newSecret)
	if err != nil {
		return err
	}
	if err := s.identities.UpdateSecretHash(ctx, identityID, hash); err != nil {
		return fmt.Errorf("failed to update secret: %w", err)
	}

	slog.Info("identity secret changed", slog.String("identity_id", identityID))
	return nil
}

// DeleteIdentity はidentityとそのセッションを削除する。
// 現在のセッションのidentityであれば未認証状態になる。
func (s *Service) DeleteIdentity(ctx context.Context, identityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.identities.DeleteByID(ctx, identityID); err != nil {
		return fmt.Errorf("failed to delete identity: %w", err)
	}

	slog.Info("identity deleted", slog.String("identity_id", identityID))
	if s.current != nil && s.current.IdentityID == identityID {
		s.setCurrentLocked(nil)
	}
	return nil
}

// PurgeExpiredSessions は期限切れのセッションを削除し、削除件数を返す。
// 現在のセッションが期限切れであれば未認証状態になる。
func (s *Service) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	now := s.now()
	n, err := s.sessions.DeleteExpired(ctx, now)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	if s.current != nil && !s.current.ExpiresAt.After(now) {
		slog.Info("current session expired", slog.String("identity_id", s.current.IdentityID))
		s.setCurrentLocked(nil)
	}
	s.mu.Unlock()

	return n, nil
}

// Subscribe はセッション変更の購読を開始する。
// fnには最初に現在の状態が、以後は変更ごとに発生順で渡される。
// 返される関数で購読を解除する（複数回呼んでも安全）。
func (s *Service) Subscribe(fn func(*model.Session)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hub.subscribe(fn, s.current.Clone())
}

// Subscribers は現在の購読者数を返す。
func (s *Service) Subscribers() int {
	return s.hub.count()
}

// Close は全購読を停止する。
func (s *Service) Close() {
	s.hub.close()
}

// establish は新しいセッションを発行して現在のセッションにする。
func (s *Service) establish(ctx context.Context, identity *model.Identity, authTime time.Time) error {
	sessionID, err := generateSessionID()
	if err != nil {
		return fmt.Errorf("failed to generate session ID: %w", err)
	}

	expiresAt := authTime.Add(s.config.SessionMaxAge)
	token, err := s.tokens.Issue(identity.ID, sessionID, authTime, expiresAt)
	if err != nil {
		return err
	}

	session := &model.Session{
		ID:         sessionID,
		IdentityID: identity.ID,
		Email:      identity.Email,
		Token:      token,
		AuthTime:   authTime,
		ExpiresAt:  expiresAt,
		CreatedAt:  authTime,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		if err := s.sessions.DeleteByID(ctx, s.current.ID); err != nil {
			slog.Warn("failed to delete replaced session",
				slog.String("session_id", s.current.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	s.setCurrentLocked(session)
	return nil
}

// setCurrentLocked は現在のセッションを置き換えて通知する。呼び出し側でs.muを保持すること。
func (s *Service) setCurrentLocked(session *model.Session) {
	s.current = session
	s.hub.publish(session)
}

// validEmail はアドレスとして解釈でき、ドメイン部を持つかを返す。
func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	at := strings.LastIndex(email, "@")
	return at > 0 && at < len(email)-1
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
