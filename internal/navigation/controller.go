// Package navigation はセッション状態から表示可能な画面セットを導出するコントローラーを提供する。
//
// 未認証時は登録とログイン、認証時はホームとプロフィール編集だけに到達できる。
// 画面セットが切り替わるたびにナビゲーションスタックは破棄される。
package navigation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/hitoshi/directorio/internal/model"
)

// Screen は画面の識別子。
type Screen string

// 画面
const (
	Register Screen = "register"
	Login    Screen = "login"
	Home     Screen = "home"
	Edit     Screen = "edit"
)

// State はコントローラーの状態。
type State int

// 状態
const (
	Initializing State = iota
	Unauthenticated
	Authenticated
)

// String は状態名を返す。
func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// MarshalText は状態名でJSONに出力する。
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText は状態名から状態を復元する。
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "initializing":
		*s = Initializing
	case "unauthenticated":
		*s = Unauthenticated
	case "authenticated":
		*s = Authenticated
	default:
		return fmt.Errorf("unknown navigation state %q", text)
	}
	return nil
}

var (
	// ErrInitializing は最初のセッション通知を受け取る前に操作した場合に返される。
	ErrInitializing = errors.New("navigation is initializing")
	// ErrNotReachable は現在の画面セットと位置から到達できない画面を指定した場合に返される。
	ErrNotReachable = errors.New("screen not reachable")
	// ErrNoBack はルート画面で戻る操作をした場合に返される。
	ErrNoBack = errors.New("no screen to go back to")
)

// screenSet は画面セットの定義。
type screenSet struct {
	screens []Screen
	roots   []Screen // スタックの底に置ける画面
	edges   map[Screen][]Screen
}

var (
	unauthenticatedSet = screenSet{
		screens: []Screen{Register, Login},
		roots:   []Screen{Register, Login},
		edges: map[Screen][]Screen{
			Register: {Login},
			Login:    {Register},
		},
	}
	authenticatedSet = screenSet{
		screens: []Screen{Home, Edit},
		roots:   []Screen{Home},
		edges: map[Screen][]Screen{
			Home: {Edit},
		},
	}
)

func (s screenSet) contains(screen Screen) bool {
	return slices.Contains(s.screens, screen)
}

func (s screenSet) canRoot(screen Screen) bool {
	return slices.Contains(s.roots, screen)
}

func (s screenSet) canPush(from, to Screen) bool {
	return slices.Contains(s.edges[from], to)
}

// SessionSource はセッション変更を購読できるIdentity Service。
// fnには最初に現在の状態が渡される。返される関数で購読を解除する。
type SessionSource interface {
	Subscribe(fn func(*model.Session)) func()
}

// Mount は画面インスタンスの識別子。
// 画面セットが切り替わるか画面がスタックから外れると、IsMountedがfalseになる。
type Mount struct {
	Screen Screen
	ID     uint64
	Epoch  uint64
}

// Snapshot はある時点のナビゲーション状態。
type Snapshot struct {
	State      State    `json:"state"`
	IdentityID string   `json:"identityId,omitempty"`
	Reachable  []Screen `json:"reachable"`
	Stack      []Screen `json:"stack"`
	Current    Screen   `json:"current,omitempty"`
	Epoch      uint64   `json:"epoch"`
}

// Option はControllerのオプション。
type Option func(*Controller)

// WithTransitionObserver は状態遷移ごとに呼ばれる関数を登録する。
func WithTransitionObserver(fn func(from, to State)) Option {
	return func(c *Controller) { c.observer = fn }
}

// Controller はセッション状態に従って画面セットを切り替える。
type Controller struct {
	mu          sync.Mutex
	state       State
	identityID  string
	stack       []Mount
	epoch       uint64
	nextMountID uint64
	closed      bool

	// notifyMu はリスナーへの通知を遷移の発生順に直列化する。
	notifyMu  sync.Mutex
	listeners []func(Snapshot)
	observer  func(from, to State)

	ready     chan struct{}
	readyOnce sync.Once

	unsubscribe func()
	closeOnce   sync.Once
}

// New はControllerを生成し、sourceを1回だけ購読する。
func New(source SessionSource, opts ...Option) *Controller {
	c := &Controller{ready: make(chan struct{})}
	for _, opt := range opts {
		opt(c)
	}
	c.unsubscribe = source.Subscribe(c.handleSession)
	return c
}

// Close は購読を解除する。複数回呼んでも1回だけ解除する。
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		if c.unsubscribe != nil {
			c.unsubscribe()
		}
	})
}

// OnChange は遷移ごとにSnapshotを受け取るリスナーを登録する。
// リスナーはコントローラーのロック外で呼ばれるが、リスナー内から画面を遷移してはならない。
func (c *Controller) OnChange(fn func(Snapshot)) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Ready は最初のセッション通知を処理すると閉じられるチャネルを返す。
func (c *Controller) Ready() <-chan struct{} {
	return c.ready
}

// WaitReady は最初のセッション通知を処理するまで待つ。
func (c *Controller) WaitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State は現在の状態を返す。
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Current は最前面の画面を返す。初期化中はfalseを返す。
func (c *Controller) Current() (Mount, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.stack) == 0 {
		return Mount{}, false
	}
	return c.stack[len(c.stack)-1], true
}

// MountOf はスタック上で最も上にあるscreenのMountを返す。
func (c *Controller) MountOf(screen Screen) (Mount, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.stack) - 1; i >= 0; i-- {
		if c.stack[i].Screen == screen {
			return c.stack[i], true
		}
	}
	return Mount{}, false
}

// IsMounted はmの画面インスタンスがまだスタック上にあるかを返す。
func (c *Controller) IsMounted(m Mount) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m.Epoch != c.epoch {
		return false
	}
	return slices.ContainsFunc(c.stack, func(e Mount) bool { return e.ID == m.ID })
}

// Reachable は現在の画面セットを返す。初期化中は空。
func (c *Controller) Reachable() []Screen {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reachableLocked()
}

// Stack はナビゲーションスタックを底から順に返す。
func (c *Controller) Stack() []Screen {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stackScreensLocked()
}

// Snapshot は現在の状態を返す。
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Navigate はtargetへ遷移する。
// targetが既にスタック上にある場合はそこまで戻る。
func (c *Controller) Navigate(target Screen) (Mount, error) {
	return c.mutate(func() (Mount, error) {
		set, err := c.activeSetLocked()
		if err != nil {
			return Mount{}, err
		}
		if !set.contains(target) {
			return Mount{}, ErrNotReachable
		}

		for i := len(c.stack) - 1; i >= 0; i-- {
			if c.stack[i].Screen == target {
				c.stack = c.stack[:i+1]
				return c.stack[i], nil
			}
		}

		top := c.stack[len(c.stack)-1]
		if !set.canPush(top.Screen, target) {
			return Mount{}, ErrNotReachable
		}
		m := c.newMountLocked(target)
		c.stack = append(c.stack, m)
		return m, nil
	})
}

// Replace は最前面の画面をtargetに置き換える。
func (c *Controller) Replace(target Screen) (Mount, error) {
	return c.mutate(func() (Mount, error) {
		set, err := c.activeSetLocked()
		if err != nil {
			return Mount{}, err
		}
		if !set.contains(target) {
			return Mount{}, ErrNotReachable
		}

		below := c.stack[:len(c.stack)-1]
		if len(below) == 0 {
			if !set.canRoot(target) {
				return Mount{}, ErrNotReachable
			}
		} else if !set.canPush(below[len(below)-1].Screen, target) {
			return Mount{}, ErrNotReachable
		}

		m := c.newMountLocked(target)
		c.stack = append(below, m)
		return m, nil
	})
}

// Back は1つ前の画面に戻る。
func (c *Controller) Back() (Mount, error) {
	return c.mutate(func() (Mount, error) {
		if _, err := c.activeSetLocked(); err != nil {
			return Mount{}, err
		}
		if len(c.stack) <= 1 {
			return Mount{}, ErrNoBack
		}
		c.stack = c.stack[:len(c.stack)-1]
		return c.stack[len(c.stack)-1], nil
	})
}

// mutate はfnをロック下で実行し、成功した場合はリスナーに通知する。
func (c *Controller) mutate(fn func() (Mount, error)) (Mount, error) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	m, err := fn()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if err != nil {
		return Mount{}, err
	}
	c.notifyLocked(snap)
	return m, nil
}

// handleSession はセッション通知を処理する。
func (c *Controller) handleSession(session *model.Session) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	from := c.state
	changed := false
	switch {
	case session != nil && (c.state != Authenticated || c.identityID != session.IdentityID):
		c.resetLocked(Authenticated, session.IdentityID, Home)
		changed = true
	case session == nil && c.state != Unauthenticated:
		c.resetLocked(Unauthenticated, "", Register)
		changed = true
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.readyOnce.Do(func() { close(c.ready) })

	if !changed {
		return
	}

	slog.Info("navigation screen set switched",
		slog.String("from", from.String()),
		slog.String("to", snap.State.String()),
		slog.Uint64("epoch", snap.Epoch),
	)
	if c.observer != nil {
		c.observer(from, snap.State)
	}
	c.notifyLocked(snap)
}

// resetLocked は前の画面セットのスタックを破棄してrootだけのスタックにする。
func (c *Controller) resetLocked(state State, identityID string, root Screen) {
	c.state = state
	c.identityID = identityID
	c.epoch++
	c.stack = []Mount{c.newMountLocked(root)}
}

func (c *Controller) newMountLocked(screen Screen) Mount {
	c.nextMountID++
	return Mount{Screen: screen, ID: c.nextMountID, Epoch: c.epoch}
}

func (c *Controller) activeSetLocked() (screenSet, error) {
	switch c.state {
	case Unauthenticated:
		return unauthenticatedSet, nil
	case Authenticated:
		return authenticatedSet, nil
	default:
		return screenSet{}, ErrInitializing
	}
}

func (c *Controller) reachableLocked() []Screen {
	set, err := c.activeSetLocked()
	if err != nil {
		return []Screen{}
	}
	return slices.Clone(set.screens)
}

func (c *Controller) stackScreensLocked() []Screen {
	screens := make([]Screen, 0, len(c.stack))
	for _, m := range c.stack {
		screens = append(screens, m.Screen)
	}
	return screens
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:      c.state,
		IdentityID: c.identityID,
		Reachable:  c.reachableLocked(),
		Stack:      c.stackScreensLocked(),
		Epoch:      c.epoch,
	}
	if len(c.stack) > 0 {
		snap.Current = c.stack[len(c.stack)-1].Screen
	}
	return snap
}

// notifyLocked はリスナーにsnapを渡す。呼び出し側でnotifyMuを保持すること。
func (c *Controller) notifyLocked(snap Snapshot) {
	for _, fn := range c.listeners {
		fn(snap)
	}
}
