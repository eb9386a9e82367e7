package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/directorio/internal/form"
	"github.com/hitoshi/directorio/internal/identity"
	"github.com/hitoshi/directorio/internal/metrics"
	"github.com/hitoshi/directorio/internal/model"
	"github.com/hitoshi/directorio/internal/navigation"
	"github.com/hitoshi/directorio/internal/recordstore"
	"github.com/hitoshi/directorio/internal/repository"
	"github.com/hitoshi/directorio/internal/security"
	"github.com/hitoshi/directorio/internal/workflow"
)

// flakyStore はsetErrが設定されている間Setを失敗させる。
type flakyStore struct {
	recordstore.Store
	setErr error
}

func (s *flakyStore) Set(ctx context.Context, collection, key string, doc recordstore.Document) error {
	if s.setErr != nil {
		return s.setErr
	}
	return s.Store.Set(ctx, collection, key, doc)
}

type harness struct {
	client   *Client
	identity *identity.Service
	store    *flakyStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	sessions := repository.NewMemorySessionRepo(time.Now)
	identities := repository.NewMemoryIdentityRepo(sessions)
	svc := identity.NewService(identities, sessions, identity.Config{
		SessionSecret:     "test-secret",
		ProjectID:         "directorio-test",
		SessionMaxAge:     time.Hour,
		RecentLoginWindow: 5 * time.Minute,
	}, identity.WithHasher(identity.BcryptHasher{Cost: bcrypt.MinCost}))
	t.Cleanup(svc.Close)

	store := &flakyStore{Store: recordstore.NewMemoryStore()}
	collector := metrics.NewCollector(prometheus.NewRegistry())

	c := New(Deps{
		Identity: svc,
		Services: workflow.Services{
			Records:   store,
			Sanitizer: security.NewTextSanitizer(),
			Metrics:   collector,
		},
		Transitions: collector,
	})
	t.Cleanup(c.Close)

	h := &harness{client: c, identity: svc, store: store}
	h.waitFor(t, navigation.Unauthenticated)
	return h
}

// waitFor はセッション通知が届いてstateになるまで待つ。
func (h *harness) waitFor(t *testing.T, state navigation.State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.client.Navigation().State() == state
	}, 2*time.Second, 5*time.Millisecond, "navigation never reached %s", state)
}

var ana = form.Fields{
	form.Name:      "Ana Lopez",
	form.Email:     "ana@x.com",
	form.Secret:    "abcdef",
	form.Age:       "25",
	form.Specialty: "Design",
}

func (h *harness) registerAna(t *testing.T) {
	t.Helper()
	out, err := h.client.Register(context.Background(), ana)
	require.NoError(t, err)
	require.Equal(t, workflow.Success, out.Kind)
	h.waitFor(t, navigation.Authenticated)
}

func TestClient_StartsOnRegister(t *testing.T) {
	h := newHarness(t)

	snap := h.client.Navigation().Snapshot()
	assert.Equal(t, []navigation.Screen{navigation.Register}, snap.Stack)
	assert.ElementsMatch(t, []navigation.Screen{navigation.Register, navigation.Login}, snap.Reachable)
}

// 登録するとセッション通知によりホーム画面だけのスタックになる
func TestClient_RegisterSwitchesToHome(t *testing.T) {
	h := newHarness(t)
	h.registerAna(t)

	snap := h.client.Navigation().Snapshot()
	assert.Equal(t, []navigation.Screen{navigation.Home}, snap.Stack)
	assert.ElementsMatch(t, []navigation.Screen{navigation.Home, navigation.Edit}, snap.Reachable)

	out, err := h.client.Profile(context.Background())
	require.NoError(t, err)
	require.Equal(t, workflow.Success, out.Kind)
	assert.Equal(t, "Ana Lopez", out.Record.Name)
	assert.Equal(t, "ana@x.com", out.Record.Email)
	assert.Equal(t, 25, out.Record.Age)
	assert.Equal(t, "Design", out.Record.Specialty)
	assert.NotEmpty(t, out.Record.CreatedAt)
}

func TestClient_UnauthenticatedCannotReachProfile(t *testing.T) {
	h := newHarness(t)

	_, err := h.client.Profile(context.Background())
	assert.ErrorIs(t, err, navigation.ErrNotReachable)

	_, err = h.client.BeginEdit(context.Background())
	assert.ErrorIs(t, err, navigation.ErrNotReachable)

	_, err = h.client.Navigate(navigation.Home)
	assert.ErrorIs(t, err, navigation.ErrNotReachable)
}

func TestClient_LoginUnknownEmail(t *testing.T) {
	h := newHarness(t)

	out, err := h.client.Login(context.Background(), form.Fields{form.Email: "nobody@x.com", form.Secret: "abcdef"})
	require.NoError(t, err)

	require.Equal(t, workflow.Failed, out.Kind)
	assert.Equal(t, "Error de Inicio de Sesión", out.Alert.Title)
	assert.Equal(t, "No existe una cuenta con este correo electrónico", out.Alert.Message)
	assert.Equal(t, navigation.Unauthenticated, h.client.Navigation().State())
	assert.Equal(t, []navigation.Screen{navigation.Register, navigation.Login}, h.client.Navigation().Stack())
}

func TestClient_LoginAfterSignOut(t *testing.T) {
	h := newHarness(t)
	h.registerAna(t)

	out, err := h.client.SignOut(context.Background())
	require.NoError(t, err)
	require.Equal(t, workflow.Success, out.Kind)
	h.waitFor(t, navigation.Unauthenticated)
	assert.Equal(t, []navigation.Screen{navigation.Register}, h.client.Navigation().Stack())

	out, err = h.client.Login(context.Background(), form.Fields{form.Email: "ana@x.com", form.Secret: "wrong!"})
	require.NoError(t, err)
	assert.Equal(t, "La contraseña es incorrecta", out.Alert.Message)

	out, err = h.client.Login(context.Background(), form.Fields{form.Email: "ana@x.com", form.Secret: "abcdef"})
	require.NoError(t, err)
	require.Equal(t, workflow.Success, out.Kind)
	h.waitFor(t, navigation.Authenticated)
}

func TestClient_EditRejectsUnderageWithoutWrite(t *testing.T) {
	h := newHarness(t)
	h.registerAna(t)

	_, err := h.client.BeginEdit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []navigation.Screen{navigation.Home, navigation.Edit}, h.client.Navigation().Stack())

	fields, err := h.client.EditForm()
	require.NoError(t, err)
	assert.Equal(t, "25", fields[form.Age])

	out, err := h.client.SubmitEdit(context.Background(), form.Fields{form.Age: "17"}, nil)
	require.NoError(t, err)
	require.Equal(t, workflow.Invalid, out.Kind)
	assert.Equal(t, form.MsgAgeOutOfRange, out.Errors[form.Age])
	assert.Equal(t, navigation.Edit, h.client.Navigation().Snapshot().Current)

	doc, err := h.store.Get(context.Background(), model.ProfileCollection, h.identity.CurrentIdentity().ID)
	require.NoError(t, err)
	assert.EqualValues(t, 25, doc[model.DocAge])
	assert.NotContains(t, doc, model.DocUpdatedAt)
}

func TestClient_EditSuccessReturnsHome(t *testing.T) {
	h := newHarness(t)
	h.registerAna(t)

	_, err := h.client.BeginEdit(context.Background())
	require.NoError(t, err)

	out, err := h.client.SubmitEdit(context.Background(), form.Fields{
		form.Name:      "Ana <b>María</b>",
		form.Age:       "31",
		form.Specialty: "Research",
	}, nil)
	require.NoError(t, err)
	require.Equal(t, workflow.Success, out.Kind)
	assert.Equal(t, "Actualización Exitosa", out.Alert.Title)
	assert.Equal(t, []navigation.Screen{navigation.Home}, h.client.Navigation().Stack())

	profile, err := h.client.Profile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Ana María", profile.Record.Name)
	assert.Equal(t, 31, profile.Record.Age)
	assert.Equal(t, "ana@x.com", profile.Record.Email)
	assert.NotEmpty(t, profile.Record.UpdatedAt)

	_, err = h.client.EditForm()
	assert.ErrorIs(t, err, ErrNoEditSession)
}

func TestClient_EditChangesSecret(t *testing.T) {
	h := newHarness(t)
	h.registerAna(t)

	_, err := h.client.BeginEdit(context.Background())
	require.NoError(t, err)

	out, err := h.client.SubmitEdit(context.Background(), form.Fields{}, &form.CredentialChange{
		CurrentSecret: "abcdef",
		NewSecret:     "ghijkl",
		ConfirmSecret: "ghijkl",
	})
	require.NoError(t, err)
	require.Equal(t, workflow.Success, out.Kind)

	_, err = h.client.SignOut(context.Background())
	require.NoError(t, err)
	h.waitFor(t, navigation.Unauthenticated)

	out, err = h.client.Login(context.Background(), form.Fields{form.Email: "ana@x.com", form.Secret: "ghijkl"})
	require.NoError(t, err)
	assert.Equal(t, workflow.Success, out.Kind)
}

func TestClient_EditWrongCurrentSecretIsPartial(t *testing.T) {
	h := newHarness(t)
	h.registerAna(t)

	_, err := h.client.BeginEdit(context.Background())
	require.NoError(t, err)

	out, err := h.client.SubmitEdit(context.Background(), form.Fields{form.Specialty: "UX"}, &form.CredentialChange{
		CurrentSecret: "nope12",
		NewSecret:     "ghijkl",
		ConfirmSecret: "ghijkl",
	})
	require.NoError(t, err)
	require.Equal(t, workflow.PartialSuccess, out.Kind)
	assert.Contains(t, out.Alert.Message, "La contraseña actual es incorrecta")
	assert.Equal(t, navigation.Edit, h.client.Navigation().Snapshot().Current, "partial success stays on the edit screen")

	doc, err := h.store.Get(context.Background(), model.ProfileCollection, h.identity.CurrentIdentity().ID)
	require.NoError(t, err)
	assert.Equal(t, "UX", doc[model.DocSpecialty])
}

func TestClient_EditAfterSignOutIsNotReachable(t *testing.T) {
	h := newHarness(t)
	h.registerAna(t)

	_, err := h.client.BeginEdit(context.Background())
	require.NoError(t, err)

	require.NoError(t, h.identity.SignOut(context.Background()))
	h.waitFor(t, navigation.Unauthenticated)

	_, err = h.client.SubmitEdit(context.Background(), form.Fields{form.Age: "40"}, nil)
	assert.ErrorIs(t, err, navigation.ErrNotReachable)
}

// プロフィールの書き込みに失敗した登録はidentityを残さない
func TestClient_RegisterCompensatesFailedRecordWrite(t *testing.T) {
	h := newHarness(t)
	h.store.setErr = errors.New("record store unavailable")

	out, err := h.client.Register(context.Background(), ana)
	require.NoError(t, err)
	require.Equal(t, workflow.Failed, out.Kind)
	assert.Equal(t, "Ocurrió un error durante el registro", out.Alert.Message)

	// 登録で認証済みになり、補償の削除で未認証に戻る
	require.Eventually(t, func() bool {
		return h.client.Navigation().Snapshot().Epoch == 3
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, navigation.Unauthenticated, h.client.Navigation().State())
	assert.Nil(t, h.identity.CurrentIdentity())

	h.store.setErr = nil
	out, err = h.client.Login(context.Background(), form.Fields{form.Email: "ana@x.com", form.Secret: "abcdef"})
	require.NoError(t, err)
	assert.Equal(t, "No existe una cuenta con este correo electrónico", out.Alert.Message)

	// 同じメールアドレスで登録し直せる
	h.registerAna(t)
}

func TestClient_NavigateBetweenEntryScreens(t *testing.T) {
	h := newHarness(t)

	snap, err := h.client.Navigate(navigation.Login)
	require.NoError(t, err)
	assert.Equal(t, []navigation.Screen{navigation.Register, navigation.Login}, snap.Stack)

	snap, err = h.client.Back()
	require.NoError(t, err)
	assert.Equal(t, navigation.Register, snap.Current)

	_, err = h.client.Back()
	assert.ErrorIs(t, err, navigation.ErrNoBack)

	_, err = h.client.Navigate(navigation.Edit)
	assert.ErrorIs(t, err, navigation.ErrNotReachable)
}
