package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"chat-backend/internal/models"
	"chat-backend/internal/observability"
	"chat-backend/internal/repositories"
)

const (
	defaultWorkers   = 4
	defaultQueueSize = 1024
	sendTimeout      = 5 * time.Second
)

// Notification is the push request handed to the external dispatcher.
type Notification struct {
	RecipientUID   string    `json:"recipient_uid"`
	ChatID         string    `json:"chat_id"`
	MessageID      string    `json:"message_id"`
	SenderUID      string    `json:"sender_uid"`
	SenderUsername string    `json:"sender_username"`
	PreviewText    string    `json:"preview_text"`
	SentAt         time.Time `json:"sent_at"`
}

// Sink delivers notifications to a broker.
type Sink interface {
	Send(ctx context.Context, n Notification) error
}

type Options struct {
	Workers   int
	QueueSize int
}

// Dispatcher turns appended messages into push notifications off the publishing goroutine.
type Dispatcher struct {
	users   repositories.UserRepository
	sink    Sink
	breaker *gobreaker.CircuitBreaker
	log     *zap.Logger

	mu      sync.RWMutex
	queue   chan models.Event
	stopped bool
	workers int
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

func NewDispatcher(users repositories.UserRepository, sink Sink, opts Options, logger *zap.Logger) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	log := logger.Named("notify")
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "push-sink",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Info("circuit breaker state", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	return &Dispatcher{
		users:   users,
		sink:    sink,
		breaker: breaker,
		log:     log,
		queue:   make(chan models.Event, opts.QueueSize),
		workers: opts.Workers,
	}
}

// Listen is registered on the fan-out engine. It never blocks.
func (d *Dispatcher) Listen(ev models.Event) {
	if ev.Type != models.EventMessageAppended || ev.Message == nil || ev.Chat == nil {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return
	}
	select {
	case d.queue <- ev:
	default:
		observability.IncNotification("dropped")
		d.log.Warn("notification queue full", zap.String("chat_id", ev.ChatID), zap.String("message_id", ev.Message.ID))
	}
}

// Start launches the workers. They keep ctx's values but not its cancellation,
// so events queued before Stop are still delivered after shutdown begins.
func (d *Dispatcher) Start(ctx context.Context) {
	workCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for ev := range d.queue {
				if workCtx.Err() != nil {
					observability.IncNotification("dropped")
					continue
				}
				if err := d.handle(workCtx, ev); err != nil {
					d.log.Warn("push notification failed", zap.String("chat_id", ev.ChatID), zap.Error(err))
				}
			}
		}()
	}
}

// Stop closes the queue and drains it until ctx expires. Whatever is still
// queued then is dropped and ctx's error is returned.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.stopped {
		d.stopped = true
		close(d.queue)
	}
	cancel := d.cancel
	d.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		if cancel != nil {
			cancel()
		}
		return nil
	case <-ctx.Done():
		if cancel != nil {
			cancel()
		}
		<-drained
		d.log.Warn("notification drain cut short", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}

func (d *Dispatcher) handle(ctx context.Context, ev models.Event) error {
	msg, chat := ev.Message, ev.Chat
	recipient := chat.Other(msg.OwnerID)
	if chat.MutedBy[recipient] {
		observability.IncNotification("muted")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	var senderName string
	sender, err := d.users.GetUser(ctx, msg.OwnerID)
	switch {
	case err == nil:
		senderName = sender.Username
	case !errors.Is(err, models.ErrNotFound):
		return err
	}

	n := Notification{
		RecipientUID:   recipient,
		ChatID:         chat.ID,
		MessageID:      msg.ID,
		SenderUID:      msg.OwnerID,
		SenderUsername: senderName,
		PreviewText:    models.PreviewOf(*msg),
		SentAt:         msg.Timestamp,
	}
	_, err = d.breaker.Execute(func() (interface{}, error) {
		return nil, d.sink.Send(ctx, n)
	})
	if err != nil {
		observability.IncNotification("failed")
		return err
	}
	observability.IncNotification("sent")
	return nil
}
