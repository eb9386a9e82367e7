package handler

import (
	"context"

	"github.com/hitoshi/directorio/internal/form"
	"github.com/hitoshi/directorio/internal/model"
	"github.com/hitoshi/directorio/internal/navigation"
	"github.com/hitoshi/directorio/internal/workflow"
)

// mockCore はCoreのモック実装。未設定の操作は成功する。
type mockCore struct {
	snapshot     navigation.Snapshot
	navigateFn   func(screen navigation.Screen) (navigation.Snapshot, error)
	backFn       func() (navigation.Snapshot, error)
	registerFn   func(ctx context.Context, fields form.Fields) (workflow.Outcome, error)
	loginFn      func(ctx context.Context, fields form.Fields) (workflow.Outcome, error)
	signOutFn    func(ctx context.Context) (workflow.Outcome, error)
	profileFn    func(ctx context.Context) (workflow.Outcome, error)
	beginEditFn  func(ctx context.Context) (workflow.Outcome, error)
	editFormFn   func() (form.Fields, error)
	submitEditFn func(ctx context.Context, fields form.Fields, change *form.CredentialChange) (workflow.Outcome, error)
}

var _ Core = (*mockCore)(nil)

func (m *mockCore) Snapshot() navigation.Snapshot {
	return m.snapshot
}

func (m *mockCore) Navigate(screen navigation.Screen) (navigation.Snapshot, error) {
	if m.navigateFn != nil {
		return m.navigateFn(screen)
	}
	return m.snapshot, nil
}

func (m *mockCore) Back() (navigation.Snapshot, error) {
	if m.backFn != nil {
		return m.backFn()
	}
	return m.snapshot, nil
}

func (m *mockCore) Register(ctx context.Context, fields form.Fields) (workflow.Outcome, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, fields)
	}
	return workflow.Outcome{Kind: workflow.Success}, nil
}

func (m *mockCore) Login(ctx context.Context, fields form.Fields) (workflow.Outcome, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, fields)
	}
	return workflow.Outcome{Kind: workflow.Success}, nil
}

func (m *mockCore) SignOut(ctx context.Context) (workflow.Outcome, error) {
	if m.signOutFn != nil {
		return m.signOutFn(ctx)
	}
	return workflow.Outcome{Kind: workflow.Success}, nil
}

func (m *mockCore) Profile(ctx context.Context) (workflow.Outcome, error) {
	if m.profileFn != nil {
		return m.profileFn(ctx)
	}
	return workflow.Outcome{Kind: workflow.Success}, nil
}

func (m *mockCore) BeginEdit(ctx context.Context) (workflow.Outcome, error) {
	if m.beginEditFn != nil {
		return m.beginEditFn(ctx)
	}
	return workflow.Outcome{Kind: workflow.Success}, nil
}

func (m *mockCore) EditForm() (form.Fields, error) {
	if m.editFormFn != nil {
		return m.editFormFn()
	}
	return form.Fields{}, nil
}

func (m *mockCore) SubmitEdit(ctx context.Context, fields form.Fields, change *form.CredentialChange) (workflow.Outcome, error) {
	if m.submitEditFn != nil {
		return m.submitEditFn(ctx, fields, change)
	}
	return workflow.Outcome{Kind: workflow.Success}, nil
}

// mockIdentityProvider はCurrentIdentityProviderのモック。
type mockIdentityProvider struct {
	current *model.Identity
}

func (m *mockIdentityProvider) CurrentIdentity() *model.Identity {
	return m.current
}

// newTestRouter はモックのCoreでルーターを構築する。
func newTestRouter(core *mockCore, signedIn bool) *RouterDeps {
	provider := &mockIdentityProvider{}
	if signedIn {
		provider.current = &model.Identity{ID: "identity-1", Email: "ana@x.com"}
	}
	return &RouterDeps{Core: core, Identity: provider}
}
