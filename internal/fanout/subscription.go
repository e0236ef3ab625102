package fanout

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"chat-backend/internal/models"
	"chat-backend/internal/observability"
)

// Subscription is one subscriber's bounded event queue. Fields below the topic
// pointer are guarded by topic.mu.
type Subscription struct {
	engine *Engine
	topic  *topic
	ch     chan models.Event

	closeOnce sync.Once
	done      chan struct{}
	errMu     sync.Mutex
	err       error
	stopCtx   func() bool

	ready   bool
	closed  bool
	backlog []models.Event

	// chat topics
	next    int64
	pending map[int64]models.Event
	gap     *time.Timer

	// user topics
	lastAt time.Time
}

func newSubscription(e *Engine, t *topic) *Subscription {
	return &Subscription{
		engine:  e,
		topic:   t,
		ch:      make(chan models.Event, e.queueSize),
		done:    make(chan struct{}),
		pending: map[int64]models.Event{},
	}
}

// Events yields the initial state followed by changes; it is closed when the subscription ends.
func (s *Subscription) Events() <-chan models.Event { return s.ch }

// Done is closed when the subscription ends.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Err reports why the subscription ended, or nil while it is live or after Cancel.
func (s *Subscription) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Cancel ends the subscription. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.closeWith(nil)
}

func (s *Subscription) bind(ctx context.Context) {
	stop := context.AfterFunc(ctx, s.Cancel)
	s.topic.mu.Lock()
	if s.closed {
		s.topic.mu.Unlock()
		stop()
		return
	}
	s.stopCtx = stop
	s.topic.mu.Unlock()
}

func (s *Subscription) closeWith(err error) {
	s.closeOnce.Do(func() {
		s.errMu.Lock()
		s.err = err
		s.errMu.Unlock()

		s.engine.unregister(s)

		s.topic.mu.Lock()
		s.closed = true
		if s.gap != nil {
			s.gap.Stop()
			s.gap = nil
		}
		stop := s.stopCtx
		close(s.ch)
		s.topic.mu.Unlock()

		if stop != nil {
			stop()
		}
		close(s.done)
		observability.DecSubscriptions(string(s.topic.key.kind))
	})
}

// start emits the initial state and releases events buffered during the load.
func (s *Subscription) start(initial models.Event) {
	s.topic.mu.Lock()
	defer s.topic.mu.Unlock()
	if s.closed {
		return
	}
	s.ready = true
	if s.topic.key.kind == chatTopic {
		s.next = initial.Seq + 1
	} else {
		s.lastAt = initial.At
	}
	if !s.push(initial) {
		return
	}
	backlog := s.backlog
	s.backlog = nil
	for _, ev := range backlog {
		if s.closed {
			return
		}
		s.accept(ev)
	}
}

// offer is called with topic.mu held.
func (s *Subscription) offer(ev models.Event) {
	if s.closed {
		return
	}
	if !s.ready {
		if len(s.backlog) >= cap(s.ch) {
			s.dropLocked()
			return
		}
		s.backlog = append(s.backlog, ev)
		return
	}
	s.accept(ev)
}

func (s *Subscription) accept(ev models.Event) {
	if s.topic.key.kind != chatTopic {
		if ev.At.Before(s.lastAt) {
			return
		}
		s.lastAt = ev.At
		s.push(ev)
		return
	}

	switch {
	case ev.Seq == 0:
		s.push(ev)
	case ev.Seq < s.next:
		// already reflected by the snapshot or delivered
	case ev.Seq == s.next:
		s.push(ev)
		s.next++
		s.drain()
	default:
		if len(s.pending) >= cap(s.ch) {
			s.dropLocked()
			return
		}
		s.pending[ev.Seq] = ev
		s.armGap()
	}
}

func (s *Subscription) drain() {
	for !s.closed {
		ev, ok := s.pending[s.next]
		if !ok {
			break
		}
		delete(s.pending, s.next)
		s.push(ev)
		s.next++
	}
	if len(s.pending) == 0 && s.gap != nil {
		s.gap.Stop()
		s.gap = nil
	}
}

func (s *Subscription) armGap() {
	if s.gap != nil {
		return
	}
	s.gap = time.AfterFunc(s.engine.gapTimeout, s.skipGap)
}

// skipGap gives up on missing sequence numbers and resumes at the oldest buffered event.
func (s *Subscription) skipGap() {
	s.topic.mu.Lock()
	defer s.topic.mu.Unlock()
	s.gap = nil
	if s.closed || len(s.pending) == 0 {
		return
	}
	seqs := make([]int64, 0, len(s.pending))
	for seq := range s.pending {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	s.engine.log.Warn("skipping sequence gap",
		zap.String("chat_id", s.topic.key.id),
		zap.Int64("expected", s.next),
		zap.Int64("resume", seqs[0]))
	observability.IncFanoutGap()
	s.next = seqs[0]
	s.drain()
	if len(s.pending) > 0 {
		s.armGap()
	}
}

// push enqueues without blocking; a full queue drops the subscriber.
func (s *Subscription) push(ev models.Event) bool {
	select {
	case s.ch <- ev:
		return true
	default:
		s.dropLocked()
		return false
	}
}

// dropLocked ends the subscription from inside a topic.mu critical section.
func (s *Subscription) dropLocked() {
	if s.closed {
		return
	}
	s.closed = true
	observability.IncFanoutDropped(string(s.topic.key.kind))
	s.engine.log.Warn("dropping slow subscriber", zap.String("topic", string(s.topic.key.kind)), zap.String("id", s.topic.key.id))
	go s.closeWith(ErrSlowSubscriber)
}
