package telemetry

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	log         *zap.Logger
	now         func() time.Time
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	UserID        *string      `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

// Name is used by the noop publisher when logging.
func (e AuditEnvelope) Name() string { return e.EventType }

type AuditPayload struct {
	Level    string            `json:"level"`
	Text     string            `json:"text"`
	Action   string            `json:"action,omitempty"`
	Resource string            `json:"resource,omitempty"`
	Attrs    map[string]string `json:"attrs,omitempty"`
}

// AuditRecord is one moderation or account action worth keeping.
type AuditRecord struct {
	Level     string
	Text      string
	Action    string
	Resource  string
	Attrs     map[string]string
	RequestID string
	UserID    string
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string, logger *zap.Logger) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		log:         logger.Named("audit"),
		now:         time.Now,
	}
}

// Emit publishes a free-form audit line.
func (e *AuditEmitter) Emit(ctx context.Context, level, text, requestID string, userID *string) {
	rec := AuditRecord{Level: level, Text: text, RequestID: requestID}
	if userID != nil {
		rec.UserID = *userID
	}
	e.Record(ctx, rec)
}

// Record publishes rec. Failures are logged and swallowed.
func (e *AuditEmitter) Record(ctx context.Context, rec AuditRecord) {
	if e == nil || e.publisher == nil {
		return
	}
	if rec.Level == "" {
		rec.Level = "INFO"
	}

	var userID *string
	if rec.UserID != "" {
		uid := rec.UserID
		userID = &uid
	}

	e.log.Debug("audit emit",
		zap.String("level", rec.Level),
		zap.String("action", rec.Action),
		zap.String("request_id", rec.RequestID),
		zap.String("user_id", rec.UserID),
	)
	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    e.now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     rec.RequestID,
		UserID:        userID,
		Payload: AuditPayload{
			Level:    rec.Level,
			Text:     rec.Text,
			Action:   rec.Action,
			Resource: rec.Resource,
			Attrs:    rec.Attrs,
		},
	}

	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		e.log.Warn("audit publish failed", zap.String("action", rec.Action), zap.Error(err))
	}
}
