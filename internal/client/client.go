// Package client は端末1台分のクライアントコアを組み立てる。
//
// ナビゲーションコントローラーと各画面の処理を結び付け、
// 操作が現在の画面セットから到達できる画面に対するものかを検査する。
package client

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/hitoshi/directorio/internal/form"
	"github.com/hitoshi/directorio/internal/navigation"
	"github.com/hitoshi/directorio/internal/workflow"
)

// ErrNoEditSession は編集画面を開かずにプロフィール更新を送信した場合に返される。
var ErrNoEditSession = errors.New("profile edit screen is not open")

// SessionSource はセッション変更を購読でき、画面の処理にも使うIdentity Service。
type SessionSource interface {
	navigation.SessionSource
	workflow.IdentityService
}

// TransitionRecorder はナビゲーション状態の遷移を記録する。
type TransitionRecorder interface {
	RecordSessionTransition(from, to string)
}

// Deps はClientの依存。
type Deps struct {
	Identity    SessionSource
	Services    workflow.Services // Identityは上書きされる
	Transitions TransitionRecorder
}

// editSession は表示中の編集画面1つ分の状態。
type editSession struct {
	mount  navigation.Mount
	state  *form.State
	editor *workflow.Editor
}

// Client は端末1台分のクライアントコア。
type Client struct {
	nav      *navigation.Controller
	services workflow.Services
	register *workflow.Registrar
	login    *workflow.Login
	home     *workflow.Home

	mu   sync.Mutex
	edit *editSession
}

// New はClientを生成し、Identity Serviceのセッション通知を購読する。
func New(deps Deps) *Client {
	services := deps.Services
	services.Identity = deps.Identity

	var opts []navigation.Option
	if rec := deps.Transitions; rec != nil {
		opts = append(opts, navigation.WithTransitionObserver(func(from, to navigation.State) {
			rec.RecordSessionTransition(from.String(), to.String())
		}))
	}

	return &Client{
		nav:      navigation.New(deps.Identity, opts...),
		services: services,
		register: workflow.NewRegistrar(services),
		login:    workflow.NewLogin(services),
		home:     workflow.NewHome(services),
	}
}

// Close は購読を解除する。
func (c *Client) Close() {
	c.nav.Close()
}

// Navigation はナビゲーションコントローラーを返す。
func (c *Client) Navigation() *navigation.Controller {
	return c.nav
}

// Snapshot は現在のナビゲーション状態を返す。
func (c *Client) Snapshot() navigation.Snapshot {
	return c.nav.Snapshot()
}

// Navigate は画面を遷移する。
func (c *Client) Navigate(screen navigation.Screen) (navigation.Snapshot, error) {
	if screen == navigation.Edit {
		return navigation.Snapshot{}, fmt.Errorf("use BeginEdit to open %s: %w", screen, navigation.ErrNotReachable)
	}
	if _, err := c.nav.Navigate(screen); err != nil {
		return navigation.Snapshot{}, err
	}
	return c.nav.Snapshot(), nil
}

// Back は1つ前の画面に戻る。
func (c *Client) Back() (navigation.Snapshot, error) {
	if _, err := c.nav.Back(); err != nil {
		return navigation.Snapshot{}, err
	}
	return c.nav.Snapshot(), nil
}

// Register は登録画面のフォームを送信する。
// 登録画面が表示されていない場合は先に遷移する。
func (c *Client) Register(ctx context.Context, fields form.Fields) (workflow.Outcome, error) {
	if err := c.show(navigation.Register); err != nil {
		return workflow.Outcome{}, err
	}
	return c.register.Submit(ctx, stateOf(fields)), nil
}

// Login はログイン画面のフォームを送信する。
func (c *Client) Login(ctx context.Context, fields form.Fields) (workflow.Outcome, error) {
	if err := c.show(navigation.Login); err != nil {
		return workflow.Outcome{}, err
	}
	return c.login.Submit(ctx, stateOf(fields)), nil
}

// Profile はホーム画面のプロフィールを読み込む。
func (c *Client) Profile(ctx context.Context) (workflow.Outcome, error) {
	if err := c.requireReachable(navigation.Home); err != nil {
		return workflow.Outcome{}, err
	}
	return c.home.Load(ctx), nil
}

// SignOut はホーム画面からサインアウトする。
func (c *Client) SignOut(ctx context.Context) (workflow.Outcome, error) {
	if err := c.requireReachable(navigation.Home); err != nil {
		return workflow.Outcome{}, err
	}
	return c.home.SignOut(ctx), nil
}

// BeginEdit はプロフィールを読み込み、その内容で編集画面を開く。
// 読み込みに失敗した場合は遷移せず、その結果を返す。
func (c *Client) BeginEdit(ctx context.Context) (workflow.Outcome, error) {
	if err := c.requireReachable(navigation.Home); err != nil {
		return workflow.Outcome{}, err
	}

	out := c.home.Load(ctx)
	if out.Kind != workflow.Success {
		return out, nil
	}

	st := c.home.BeginEdit(*out.Record)
	mount, err := c.nav.Navigate(navigation.Edit)
	if err != nil {
		return workflow.Outcome{}, err
	}

	c.mu.Lock()
	c.edit = &editSession{
		mount: mount,
		state: st,
		editor: workflow.NewEditor(c.services, func() bool {
			return c.nav.IsMounted(mount)
		}),
	}
	c.mu.Unlock()
	return out, nil
}

// EditForm は表示中の編集画面のフォーム値を返す。
func (c *Client) EditForm() (form.Fields, error) {
	session, err := c.currentEdit()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(session.state.Fields), nil
}

// SubmitEdit は編集画面のフォームを送信する。
// changeがnilでない場合はシークレットも変更する。
// 成功した場合はホーム画面に戻る。
func (c *Client) SubmitEdit(ctx context.Context, fields form.Fields, change *form.CredentialChange) (workflow.Outcome, error) {
	session, err := c.currentEdit()
	if err != nil {
		return workflow.Outcome{}, err
	}

	// 送信中の状態を別の送信と共有しない
	c.mu.Lock()
	st := session.state.Clone()
	c.mu.Unlock()

	for _, f := range []string{form.Name, form.Age, form.Specialty} {
		if v, ok := fields[f]; ok {
			st.Set(f, v)
		}
	}
	st.EnableCredentialChange(change != nil)
	if change != nil {
		st.Set(form.CurrentSecret, change.CurrentSecret)
		st.Set(form.NewSecret, change.NewSecret)
		st.Set(form.ConfirmSecret, change.ConfirmSecret)
	}

	out := session.editor.Submit(ctx, st)
	if out.Kind == workflow.Busy || out.Stale {
		return out, nil
	}

	c.mu.Lock()
	if c.edit == session {
		// 入力中のシークレットは保持しない
		st.EnableCredentialChange(false)
		session.state = st
	}
	c.mu.Unlock()

	if out.NavigateBack {
		if _, err := c.nav.Back(); err != nil && c.nav.IsMounted(session.mount) {
			return out, err
		}
	}
	return out, nil
}

// currentEdit は表示中の編集画面を返す。
// 画面セットの切り替えなどで画面が外れていればErrNoEditSessionを返す。
func (c *Client) currentEdit() (*editSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.edit == nil || !c.nav.IsMounted(c.edit.mount) {
		c.edit = nil
		if err := c.requireReachable(navigation.Edit); err != nil {
			return nil, err
		}
		return nil, ErrNoEditSession
	}
	return c.edit, nil
}

// show はscreenが最前面になるように遷移する。
func (c *Client) show(screen navigation.Screen) error {
	if current, ok := c.nav.Current(); ok && current.Screen == screen {
		return nil
	}
	_, err := c.nav.Navigate(screen)
	return err
}

func (c *Client) requireReachable(screen navigation.Screen) error {
	switch c.nav.State() {
	case navigation.Initializing:
		return navigation.ErrInitializing
	}
	for _, s := range c.nav.Reachable() {
		if s == screen {
			return nil
		}
	}
	return fmt.Errorf("%s: %w", screen, navigation.ErrNotReachable)
}

func stateOf(fields form.Fields) *form.State {
	st := form.NewState()
	for k, v := range fields {
		st.Set(k, v)
	}
	return st
}
