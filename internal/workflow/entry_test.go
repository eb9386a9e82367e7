package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/directorio/internal/form"
	"github.com/hitoshi/directorio/internal/model"
)

func registrationState() *form.State {
	st := form.NewState()
	st.Set(form.Name, "Ana Lopez")
	st.Set(form.Email, "ana@x.com")
	st.Set(form.Secret, "abcdef")
	st.Set(form.Age, "25")
	st.Set(form.Specialty, "Design")
	return st
}

func newEntryServices(identity *mockIdentity, store *countingStore) Services {
	return Services{
		Identity:  identity,
		Records:   store,
		Sanitizer: tagStripper{},
		Metrics:   &mockRecorder{},
		Now:       func() time.Time { return fixedNow },
	}
}

func TestRegistrar_Success(t *testing.T) {
	identity := &mockIdentity{}
	store := newCountingStore()
	r := NewRegistrar(newEntryServices(identity, store))

	out := r.Submit(context.Background(), registrationState())

	require.Equal(t, Success, out.Kind)
	assert.Equal(t, "Registro Exitoso", out.Alert.Title)
	assert.Equal(t, []string{"SignUp"}, identity.Calls())

	doc, err := store.Store.Get(context.Background(), model.ProfileCollection, "new-id")
	require.NoError(t, err)
	assert.Equal(t, "Ana Lopez", doc[model.DocName])
	assert.Equal(t, "ana@x.com", doc[model.DocEmail])
	assert.Equal(t, 25, doc[model.DocAge])
	assert.Equal(t, "Design", doc[model.DocSpecialty])
	assert.Equal(t, "2026-05-04T10:30:00Z", doc[model.DocCreatedAt])
	assert.NotContains(t, doc, model.DocUpdatedAt)
}

func TestRegistrar_InvalidMakesNoBackendCall(t *testing.T) {
	identity := &mockIdentity{}
	store := newCountingStore()
	st := registrationState()
	st.Set(form.Secret, "abc")
	st.Set(form.Email, "not-an-email")

	out := NewRegistrar(newEntryServices(identity, store)).Submit(context.Background(), st)

	require.Equal(t, Invalid, out.Kind)
	assert.Equal(t, form.MsgSecretTooShort, out.Errors[form.Secret])
	assert.Equal(t, form.MsgEmailInvalid, out.Errors[form.Email])
	assert.Empty(t, identity.Calls())
	_, sets, _ := store.Counts()
	assert.Zero(t, sets)
}

func TestRegistrar_IdentityErrors(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{model.NewIdentityError(model.KindEmailAlreadyInUse, ""), "Este correo ya está registrado"},
		{model.NewIdentityError(model.KindWeakPassword, ""), "La contraseña es muy débil"},
		{model.NewIdentityError(model.KindInvalidEmail, ""), "El correo electrónico no es válido"},
		{model.NewIdentityError(model.KindTooManyRequests, ""), "Error: auth/too-many-requests"},
		{errors.New("network down"), "Ocurrió un error durante el registro"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			identity := &mockIdentity{signUpFn: func(context.Context, string, string) (*model.Identity, error) {
				return nil, tt.err
			}}
			store := newCountingStore()

			out := NewRegistrar(newEntryServices(identity, store)).Submit(context.Background(), registrationState())

			require.Equal(t, Failed, out.Kind)
			assert.Equal(t, Alert{Title: "Error", Message: tt.want}, *out.Alert)
			_, sets, _ := store.Counts()
			assert.Zero(t, sets, "no profile is written without an identity")
		})
	}
}

// プロフィールの書き込みに失敗した場合は作成したidentityを削除する
func TestRegistrar_RecordFailureCompensates(t *testing.T) {
	var deleted string
	identity := &mockIdentity{deleteIdentityFn: func(_ context.Context, id string) error {
		deleted = id
		return nil
	}}
	store := newCountingStore()
	store.setErr = errors.New("quota exceeded")

	out := NewRegistrar(newEntryServices(identity, store)).Submit(context.Background(), registrationState())

	require.Equal(t, Failed, out.Kind)
	assert.Equal(t, "Ocurrió un error durante el registro", out.Alert.Message)
	assert.Equal(t, []string{"SignUp", "DeleteIdentity"}, identity.Calls())
	assert.Equal(t, "new-id", deleted)
}

func TestRegistrar_CompensationUsesUncancelledContext(t *testing.T) {
	identity := &mockIdentity{}
	identity.signUpFn = func(ctx context.Context, email, _ string) (*model.Identity, error) {
		return &model.Identity{ID: "new-id", Email: email}, nil
	}
	var compensateErr error
	identity.deleteIdentityFn = func(ctx context.Context, _ string) error {
		compensateErr = ctx.Err()
		return nil
	}
	store := newCountingStore()
	ctx, cancel := context.WithCancel(context.Background())
	store.setErr = context.Canceled
	cancel()

	out := NewRegistrar(newEntryServices(identity, store)).Submit(ctx, registrationState())

	require.Equal(t, Failed, out.Kind)
	assert.NoError(t, compensateErr)
}

func TestRegistrar_CompensationFailureStillFails(t *testing.T) {
	identity := &mockIdentity{deleteIdentityFn: func(context.Context, string) error {
		return errors.New("identity service unavailable")
	}}
	store := newCountingStore()
	store.setErr = errors.New("quota exceeded")

	out := NewRegistrar(newEntryServices(identity, store)).Submit(context.Background(), registrationState())

	assert.Equal(t, Failed, out.Kind)
	assert.Equal(t, []string{"SignUp", "DeleteIdentity"}, identity.Calls())
}

func TestLogin_Success(t *testing.T) {
	identity := &mockIdentity{}
	st := form.NewState()
	st.Set(form.Email, "ana@x.com")
	st.Set(form.Secret, "abc")

	out := NewLogin(newEntryServices(identity, newCountingStore())).Submit(context.Background(), st)

	assert.Equal(t, Success, out.Kind)
	assert.Nil(t, out.Alert)
	assert.False(t, out.NavigateBack, "navigation follows the session notification")
}

func TestLogin_Invalid(t *testing.T) {
	identity := &mockIdentity{}
	out := NewLogin(newEntryServices(identity, newCountingStore())).Submit(context.Background(), form.NewState())

	require.Equal(t, Invalid, out.Kind)
	assert.Equal(t, form.MsgEmailRequired, out.Errors[form.Email])
	assert.Equal(t, form.MsgSecretRequired, out.Errors[form.Secret])
	assert.Empty(t, identity.Calls())
}

func TestLogin_IdentityErrors(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{model.NewIdentityError(model.KindUserNotFound, ""), "No existe una cuenta con este correo electrónico"},
		{model.NewIdentityError(model.KindWrongPassword, ""), "La contraseña es incorrecta"},
		{model.NewIdentityError(model.KindInvalidEmail, ""), "El correo electrónico no es válido"},
		{model.NewIdentityError(model.KindUserDisabled, ""), "Esta cuenta ha sido deshabilitada"},
		{model.NewIdentityError(model.KindTooManyRequests, ""), "Demasiados intentos fallidos. Intenta más tarde"},
		{model.NewIdentityError(model.KindRequiresRecentLogin, ""), "Error: auth/requires-recent-login"},
		{errors.New("timeout"), "Ocurrió un error durante el inicio de sesión"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			identity := &mockIdentity{signInFn: func(context.Context, string, string) (*model.Identity, error) {
				return nil, tt.err
			}}
			st := form.NewState()
			st.Set(form.Email, "ana@x.com")
			st.Set(form.Secret, "abcdef")

			out := NewLogin(newEntryServices(identity, newCountingStore())).Submit(context.Background(), st)

			require.Equal(t, Failed, out.Kind)
			assert.Equal(t, Alert{Title: "Error de Inicio de Sesión", Message: tt.want}, *out.Alert)
		})
	}
}
