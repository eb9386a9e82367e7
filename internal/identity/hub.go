package identity

import (
	"sync"

	"github.com/hitoshi/directorio/internal/model"
)

// hub はセッション変更の購読者を管理する。
// 購読者ごとに専用のゴルーチンとキューを持ち、通知を発行順に配送する。
type hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*subscriber
	closed bool
}

type subscriber struct {
	fn     func(*model.Session)
	mu     sync.Mutex
	queue  []*model.Session
	signal chan struct{}
	done   chan struct{}
	once   sync.Once
}

func newHub() *hub {
	return &hub{subs: make(map[int]*subscriber)}
}

// subscribe は購読者を登録し、initialを最初の通知としてキューに積む。
// 返される関数は何度呼んでも1回だけ購読を解除する。
func (h *hub) subscribe(fn func(*model.Session), initial *model.Session) func() {
	sub := &subscriber{
		fn:     fn,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return func() {}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = sub
	h.mu.Unlock()

	sub.enqueue(initial)
	go sub.run()

	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
		sub.stop()
	}
}

// publish は全購読者にsessionを配送する。
func (h *hub) publish(session *model.Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subs {
		sub.enqueue(session.Clone())
	}
}

// count は現在の購読者数を返す。
func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// close は全購読者を停止し、以後の購読を受け付けない。
func (h *hub) close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[int]*subscriber)
	h.closed = true
	h.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
}

func (s *subscriber) enqueue(session *model.Session) {
	s.mu.Lock()
	s.queue = append(s.queue, session)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *subscriber) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.signal:
		}

		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			next := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()

			select {
			case <-s.done:
				return
			default:
			}
			s.fn(next)
		}
	}
}
