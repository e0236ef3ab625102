package observability

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestIdentity(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws/unread?device_id=phone-1", nil)
	r.RemoteAddr = "10.0.0.7:5555"
	assert.Equal(t, "phone-1", DeviceIDFromRequest(r))
	assert.Equal(t, "10.0.0.7", IPFromRequest(r))

	r.Header.Set("X-Device-Id", "tablet")
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	r.Header.Set("X-Request-Id", "req-9")
	assert.Equal(t, "tablet", DeviceIDFromRequest(r))
	assert.Equal(t, "203.0.113.9", IPFromRequest(r))
	assert.Equal(t, "req-9", RequestIDFromRequest(r))
}

func TestLifecycleEnvelope(t *testing.T) {
	env := WSLifecycle{Kind: "chat", ResourceID: "u1_u2", ConnID: "c1", UserID: "u1"}.Envelope("ws_connect", "")
	assert.Equal(t, "ws_events", env.EventType)
	assert.Equal(t, "ws_connect", env.EventName)
	ws := env.Payload.(map[string]interface{})["ws"].(map[string]interface{})
	assert.Equal(t, int64(0), ws["duration_ms"])
	assert.Equal(t, "u1_u2", ws["resource_id"])

	headers := BuildHeaders("req-1", "")
	assert.Equal(t, map[string]string{"x-request-id": "req-1"}, headers)
}
