package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is one live connection to the chat service. The channel owns at
// most one at a time.
type Conn interface {
	// ReadEvent blocks until the next inbound event or a read error.
	ReadEvent() (Event, error)
	WriteAction(action string, data interface{}) error
	Close() error
}

// Dialer opens connections scoped to {userId, meetingId}. Abstracted so
// tests can script the wire.
type Dialer interface {
	Dial(ctx context.Context, userID, meetingID string) (Conn, error)
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// WebsocketDialer is the production dialer.
type WebsocketDialer struct {
	URL       string
	AuthToken string
}

func (d *WebsocketDialer) Dial(ctx context.Context, userID, meetingID string) (Conn, error) {
	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid chat websocket URL: %w", err)
	}
	q := u.Query()
	q.Set("userId", userID)
	q.Set("meetingId", meetingID)
	if d.AuthToken != "" {
		q.Set("token", d.AuthToken)
	}
	u.RawQuery = q.Encode()

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}
	return newWSConn(ws), nil
}

// wsConn wraps a gorilla connection with the usual deadline/keepalive
// discipline and serialized writes.
type wsConn struct {
	ws        *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	stopPing  chan struct{}
}

func newWSConn(ws *websocket.Conn) *wsConn {
	c := &wsConn{ws: ws, stopPing: make(chan struct{})}

	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	go c.pingLoop()
	return c
}

func (c *wsConn) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopPing:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.ws.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *wsConn) ReadEvent() (Event, error) {
	_, raw, err := c.ws.ReadMessage()
	if err != nil {
		return Event{}, err
	}
	return decodeEvent(raw)
}

func (c *wsConn) WriteAction(action string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", action, err)
	}
	frame, err := json.Marshal(envelope{Event: EventType(action), Data: payload})
	if err != nil {
		return fmt.Errorf("failed to encode %s frame: %w", action, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.stopPing)
		c.writeMu.Lock()
		c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		c.ws.WriteMessage(websocket.CloseMessage, []byte{})
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}
