package uiprotect

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/uilibs/uiprotect/data"
	"github.com/uilibs/uiprotect/ws"
)

// stateBufferSize is how many unread state transitions a subscriber may
// accumulate before it is dropped.
const stateBufferSize = 100

// Message is one graph mutation fanned out to message subscribers.
// When Reset is set, a full re-bootstrap replaced the graph; it is
// delivered before any notification about the new graph.
type Message struct {
	Action  ws.Action
	Model   data.ModelType
	ID      string
	Object  any
	Old     any
	Changed data.FieldSet
	Packet  *ws.Packet
	Reset   bool
}

// MessageFunc receives messages synchronously on the reader task, in
// apply order. It must not block; long work belongs on the caller's own
// goroutine.
type MessageFunc func(Message)

// subscriptions fans out messages and state transitions. Lists are
// append-only under the lock and copied before iteration, so callbacks
// may subscribe or unsubscribe reentrantly.
type subscriptions struct {
	mu      sync.Mutex
	nextID  int
	msgSubs map[int]MessageFunc
	stateCh map[int]chan SessionState
	log     zerolog.Logger
}

func newSubscriptions(log zerolog.Logger) *subscriptions {
	return &subscriptions{
		msgSubs: map[int]MessageFunc{},
		stateCh: map[int]chan SessionState{},
		log:     log.With().Str("component", "subscriptions").Logger(),
	}
}

// subscribe registers a message callback. The returned handle is
// idempotent.
func (s *subscriptions) subscribe(fn MessageFunc) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.msgSubs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.msgSubs, id)
			s.mu.Unlock()
		})
	}
}

// subscribeState registers a buffered state channel. A subscriber that
// falls stateBufferSize transitions behind is dropped with a warning.
func (s *subscriptions) subscribeState() (<-chan SessionState, func()) {
	ch := make(chan SessionState, stateBufferSize)
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.stateCh[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.stateCh, id)
			s.mu.Unlock()
		})
	}
}

// publish delivers a message to every subscriber, in registration
// order is not guaranteed but apply order per subscriber is.
func (s *subscriptions) publish(msg Message) {
	s.mu.Lock()
	subs := make([]MessageFunc, 0, len(s.msgSubs))
	for _, fn := range s.msgSubs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()
	for _, fn := range subs {
		fn(msg)
	}
}

// publishState delivers a state transition, dropping subscribers whose
// buffers are full.
func (s *subscriptions) publishState(state SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.stateCh {
		select {
		case ch <- state:
		default:
			delete(s.stateCh, id)
			close(ch)
			s.log.Warn().Int("subscriber", id).
				Msg("dropping slow state subscriber")
		}
	}
}

func (s *subscriptions) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.stateCh {
		delete(s.stateCh, id)
		close(ch)
	}
	for id := range s.msgSubs {
		delete(s.msgSubs, id)
	}
}
