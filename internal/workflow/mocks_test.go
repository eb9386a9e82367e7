package workflow

import (
	"context"
	"sync"

	"github.com/hitoshi/directorio/internal/model"
	"github.com/hitoshi/directorio/internal/recordstore"
)

// mockIdentity はIdentityServiceのモック。未設定の操作は成功する。
type mockIdentity struct {
	mu    sync.Mutex
	calls []string

	current          *model.Identity
	signUpFn         func(ctx context.Context, email, secret string) (*model.Identity, error)
	signInFn         func(ctx context.Context, email, secret string) (*model.Identity, error)
	signOutFn        func(ctx context.Context) error
	reauthenticateFn func(ctx context.Context, identityID, currentSecret string) error
	changeSecretFn   func(ctx context.Context, identityID, newSecret string) error
	deleteIdentityFn func(ctx context.Context, identityID string) error
}

func (m *mockIdentity) called(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, name)
}

func (m *mockIdentity) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockIdentity) SignUp(ctx context.Context, email, secret string) (*model.Identity, error) {
	m.called("SignUp")
	if m.signUpFn != nil {
		return m.signUpFn(ctx, email, secret)
	}
	return &model.Identity{ID: "new-id", Email: email}, nil
}

func (m *mockIdentity) SignIn(ctx context.Context, email, secret string) (*model.Identity, error) {
	m.called("SignIn")
	if m.signInFn != nil {
		return m.signInFn(ctx, email, secret)
	}
	return &model.Identity{ID: "id", Email: email}, nil
}

func (m *mockIdentity) SignOut(ctx context.Context) error {
	m.called("SignOut")
	if m.signOutFn != nil {
		return m.signOutFn(ctx)
	}
	return nil
}

func (m *mockIdentity) CurrentIdentity() *model.Identity {
	return m.current
}

func (m *mockIdentity) Reauthenticate(ctx context.Context, identityID, currentSecret string) error {
	m.called("Reauthenticate")
	if m.reauthenticateFn != nil {
		return m.reauthenticateFn(ctx, identityID, currentSecret)
	}
	return nil
}

func (m *mockIdentity) ChangeSecret(ctx context.Context, identityID, newSecret string) error {
	m.called("ChangeSecret")
	if m.changeSecretFn != nil {
		return m.changeSecretFn(ctx, identityID, newSecret)
	}
	return nil
}

func (m *mockIdentity) DeleteIdentity(ctx context.Context, identityID string) error {
	m.called("DeleteIdentity")
	if m.deleteIdentityFn != nil {
		return m.deleteIdentityFn(ctx, identityID)
	}
	return nil
}

// countingStore は呼び出し回数を数え、必要に応じて失敗させるStore。
type countingStore struct {
	recordstore.Store

	mu        sync.Mutex
	gets      int
	sets      int
	updates   int
	getFn     func() error
	setErr    error
	updateErr error
}

func newCountingStore() *countingStore {
	return &countingStore{Store: recordstore.NewMemoryStore()}
}

func (s *countingStore) Get(ctx context.Context, collection, key string) (recordstore.Document, error) {
	s.mu.Lock()
	s.gets++
	fn := s.getFn
	s.mu.Unlock()
	if fn != nil {
		if err := fn(); err != nil {
			return nil, err
		}
	}
	return s.Store.Get(ctx, collection, key)
}

func (s *countingStore) Set(ctx context.Context, collection, key string, doc recordstore.Document) error {
	s.mu.Lock()
	s.sets++
	err := s.setErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.Store.Set(ctx, collection, key, doc)
}

func (s *countingStore) Update(ctx context.Context, collection, key string, partial recordstore.Document) error {
	s.mu.Lock()
	s.updates++
	err := s.updateErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.Store.Update(ctx, collection, key, partial)
}

func (s *countingStore) Counts() (gets, sets, updates int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets, s.sets, s.updates
}

// mockRecorder は記録されたメトリクスを保持する。
type mockRecorder struct {
	mu       sync.Mutex
	outcomes []string
	kinds    []string
}

func (r *mockRecorder) RecordWorkflowOutcome(workflow, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, workflow+":"+outcome)
}

func (r *mockRecorder) RecordIdentityError(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
}

// tagStripper は山括弧で囲まれた部分を取り除く簡易Sanitizer。
type tagStripper struct{}

func (tagStripper) SanitizeText(s string) string {
	var out []rune
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			out = append(out, r)
		}
	}
	return string(out)
}
