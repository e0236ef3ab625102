package fanout

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"chat-backend/internal/models"
	"chat-backend/internal/observability"
)

var (
	ErrSlowSubscriber = errors.New("subscriber queue overflow")
	ErrClosed         = errors.New("fanout engine closed")
)

const (
	defaultQueueSize  = 256
	defaultGapTimeout = 2 * time.Second
)

// Publisher accepts committed changes.
type Publisher interface {
	Publish(ev models.Event)
}

// Listener observes every locally committed event in arrival order.
type Listener func(ev models.Event)

type SnapshotFunc func(ctx context.Context) (models.Snapshot, error)
type PresenceFunc func(ctx context.Context) (models.Presence, error)
type CountFunc func(ctx context.Context) (int, error)

type Options struct {
	QueueSize  int
	GapTimeout time.Duration
	Logger     *zap.Logger
}

type topicKind string

const (
	chatTopic     topicKind = "chat"
	presenceTopic topicKind = "presence"
	unreadTopic   topicKind = "unread"
)

type topicKey struct {
	kind topicKind
	id   string
}

type topic struct {
	key  topicKey
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// Engine routes committed changes to live subscribers.
type Engine struct {
	mu        sync.Mutex
	topics    map[topicKey]*topic
	listeners []Listener
	closed    bool

	queueSize  int
	gapTimeout time.Duration
	log        *zap.Logger
	now        func() time.Time
}

func NewEngine(opts Options) *Engine {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.GapTimeout <= 0 {
		opts.GapTimeout = defaultGapTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Engine{
		topics:     map[topicKey]*topic{},
		queueSize:  opts.QueueSize,
		gapTimeout: opts.GapTimeout,
		log:        opts.Logger.Named("fanout"),
		now:        time.Now,
	}
}

// OnEvent registers l for every locally published event.
func (e *Engine) OnEvent(l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, l)
}

// Publish hands a locally committed event to listeners and subscribers.
func (e *Engine) Publish(ev models.Event) {
	e.mu.Lock()
	listeners := e.listeners
	e.mu.Unlock()
	for _, l := range listeners {
		l(ev)
	}
	e.Inject(ev)
}

// Inject routes an event to subscribers only; used for events committed elsewhere.
func (e *Engine) Inject(ev models.Event) {
	observability.IncFanoutEvent(string(ev.Type))
	for _, key := range topicsFor(ev) {
		e.mu.Lock()
		t := e.topics[key]
		e.mu.Unlock()
		if t == nil {
			continue
		}
		t.mu.Lock()
		for sub := range t.subs {
			sub.offer(ev)
		}
		t.mu.Unlock()
	}
}

func topicsFor(ev models.Event) []topicKey {
	switch {
	case ev.ChatScoped():
		return []topicKey{{kind: chatTopic, id: ev.ChatID}}
	case ev.Type == models.EventPresence:
		return []topicKey{{kind: presenceTopic, id: ev.UserID}}
	case ev.Type == models.EventUnread:
		return []topicKey{{kind: unreadTopic, id: ev.UserID}}
	}
	return nil
}

// SubscribeChat streams a snapshot of the chat followed by every later change in commit order.
func (e *Engine) SubscribeChat(ctx context.Context, chatID string, load SnapshotFunc) (*Subscription, error) {
	sub, err := e.register(topicKey{kind: chatTopic, id: chatID})
	if err != nil {
		return nil, err
	}
	snap, err := load(ctx)
	if err != nil {
		sub.Cancel()
		return nil, err
	}
	sub.start(models.Event{
		Type:     models.EventSnapshot,
		ChatID:   chatID,
		Seq:      snap.Seq,
		Messages: snap.Messages,
		At:       e.now().UTC(),
	})
	sub.bind(ctx)
	return sub, nil
}

// SubscribePresence streams uid's current presence followed by changes.
func (e *Engine) SubscribePresence(ctx context.Context, uid string, load PresenceFunc) (*Subscription, error) {
	sub, err := e.register(topicKey{kind: presenceTopic, id: uid})
	if err != nil {
		return nil, err
	}
	at := e.now().UTC()
	presence, err := load(ctx)
	if err != nil {
		sub.Cancel()
		return nil, err
	}
	sub.start(models.Event{Type: models.EventPresence, UserID: uid, Presence: &presence, At: at})
	sub.bind(ctx)
	return sub, nil
}

// SubscribeUnread streams the number of uid's chats with unread messages.
func (e *Engine) SubscribeUnread(ctx context.Context, uid string, load CountFunc) (*Subscription, error) {
	sub, err := e.register(topicKey{kind: unreadTopic, id: uid})
	if err != nil {
		return nil, err
	}
	at := e.now().UTC()
	count, err := load(ctx)
	if err != nil {
		sub.Cancel()
		return nil, err
	}
	sub.start(models.Event{Type: models.EventUnread, UserID: uid, UnreadChats: &count, At: at})
	sub.bind(ctx)
	return sub, nil
}

func (e *Engine) register(key topicKey) (*Subscription, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	t := e.topics[key]
	if t == nil {
		t = &topic{key: key, subs: map[*Subscription]struct{}{}}
		e.topics[key] = t
	}
	sub := newSubscription(e, t)
	t.mu.Lock()
	t.subs[sub] = struct{}{}
	t.mu.Unlock()
	observability.IncSubscriptions(string(key.kind))
	return sub, nil
}

func (e *Engine) unregister(sub *Subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t := sub.topic
	t.mu.Lock()
	delete(t.subs, sub)
	empty := len(t.subs) == 0
	t.mu.Unlock()
	if empty && e.topics[t.key] == t {
		delete(e.topics, t.key)
	}
}

// Subscribers reports the live subscription count for a chat.
func (e *Engine) Subscribers(chatID string) int {
	e.mu.Lock()
	t := e.topics[topicKey{kind: chatTopic, id: chatID}]
	e.mu.Unlock()
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// Close ends every subscription and rejects new ones.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	var subs []*Subscription
	for _, t := range e.topics {
		t.mu.Lock()
		for sub := range t.subs {
			subs = append(subs, sub)
		}
		t.mu.Unlock()
	}
	e.mu.Unlock()
	for _, sub := range subs {
		sub.closeWith(ErrClosed)
	}
}
