package observability

import "time"

type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}

// WSLifecycle describes one websocket subscription for lifecycle events.
type WSLifecycle struct {
	Kind        string
	ResourceID  string
	ConnID      string
	UserID      string
	DeviceID    string
	IP          string
	ConnectedAt time.Time
}

// Envelope builds the ws_events envelope for event (ws_connect, ws_disconnect, ws_error).
func (l WSLifecycle) Envelope(event, reason string) EventEnvelope {
	var duration int64
	if event != "ws_connect" {
		duration = time.Since(l.ConnectedAt).Milliseconds()
	}
	return EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"kind":        l.Kind,
				"resource_id": l.ResourceID,
				"event":       event,
				"conn_id":     l.ConnID,
				"duration_ms": duration,
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id":   l.UserID,
				"device_id": l.DeviceID,
				"ip":        l.IP,
			},
		},
	}
}
