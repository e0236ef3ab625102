package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chat-backend/internal/fanout"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxInboundSize = 4096
)

// client pumps one subscription into one websocket connection.
type client struct {
	conn *websocket.Conn
	sub  *fanout.Subscription
	info ConnInfo
	log  *zap.Logger

	quit     chan struct{}
	quitOnce sync.Once
}

func newClient(conn *websocket.Conn, sub *fanout.Subscription, info ConnInfo, logger *zap.Logger) *client {
	return &client{conn: conn, sub: sub, info: info, log: logger, quit: make(chan struct{})}
}

func (c *client) shutdown() {
	c.quitOnce.Do(func() { close(c.quit) })
}

// run blocks until the peer goes away, the subscription ends or the hub shuts down.
// It returns the close reason and whether it was abnormal.
func (c *client) run() (string, bool) {
	readDone := make(chan error, 1)
	go func() { readDone <- c.readPump() }()

	reason, failed := c.writePump(readDone)
	c.sub.Cancel()
	_ = c.conn.Close()
	return reason, failed
}

// readPump discards client frames; it only keeps the deadline fresh and notices disconnects.
func (c *client) readPump() error {
	c.conn.SetReadLimit(maxInboundSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return err
		}
	}
}

func (c *client) writePump(readDone <-chan error) (string, bool) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-c.sub.Events():
			if !ok {
				return c.closeForSubscription()
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				return err.Error(), true
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return err.Error(), true
			}
		case err := <-readDone:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return err.Error(), false
			}
			return err.Error(), true
		case <-c.quit:
			c.writeClose(websocket.CloseGoingAway, "server shutting down")
			return "server shutdown", false
		}
	}
}

func (c *client) closeForSubscription() (string, bool) {
	err := c.sub.Err()
	switch {
	case err == nil:
		c.writeClose(websocket.CloseNormalClosure, "")
		return "subscription ended", false
	case errors.Is(err, fanout.ErrSlowSubscriber):
		c.writeClose(websocket.CloseTryAgainLater, "too slow")
	default:
		c.writeClose(websocket.CloseInternalServerErr, "subscription failed")
	}
	c.log.Debug("subscription closed", zap.String("conn_id", c.info.ConnID), zap.Error(err))
	return err.Error(), true
}

func (c *client) writeClose(code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
