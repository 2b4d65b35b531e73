package chat

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"meetup-app/internal/models"
	"meetup-app/pkg/logger"
)

// ConnState is the channel's connection state machine. Idle is terminal
// and reached only on deliberate teardown.
type ConnState int

const (
	StateIdle ConnState = iota
	StateConnecting
	StateConnected
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "idle"
	}
}

var (
	ErrNotConnected = errors.New("chat is not connected")
	// ErrChatArchived means the meeting is completed and chat is read-only.
	ErrChatArchived = errors.New("meeting has ended; chat is read-only")
	// ErrNoShowRestricted means the caller missed the attendance window.
	ErrNoShowRestricted = errors.New("no-show participants cannot send messages")
)

// Channel is one meeting's chat connection. It owns the connection object
// exclusively; all inbound events flow through the apply reducer.
type Channel struct {
	dialer         Dialer
	userID         string
	meetingID      string
	reconnectDelay time.Duration

	// Write gating, read-only views owned by other subsystems.
	phaseFn  func() models.Phase
	noShowFn func(userID string) bool

	mu             sync.Mutex
	state          ConnState
	conn           Conn
	enabled        bool
	gen            int // connection generation; stale pumps are ignored
	historyLoaded  bool
	messages       []models.ChatMessage
	online         map[string]struct{}
	reconnectTimer *time.Timer
}

func NewChannel(dialer Dialer, userID, meetingID string, reconnectDelay time.Duration, phaseFn func() models.Phase, noShowFn func(string) bool) *Channel {
	return &Channel{
		dialer:         dialer,
		userID:         userID,
		meetingID:      meetingID,
		reconnectDelay: reconnectDelay,
		phaseFn:        phaseFn,
		noShowFn:       noShowFn,
		online:         make(map[string]struct{}),
	}
}

// Connect opens the channel. A second call while connecting or connected
// is a no-op.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnected || c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	c.enabled = true
	c.state = StateConnecting
	c.cancelReconnectLocked()
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	return c.dial(ctx, gen)
}

// reconnect is the timer path. Unlike Connect it never re-enables the
// channel: the enabled check and the Connecting transition happen under
// one lock, so a teardown racing the timer wins.
func (c *Channel) reconnect() {
	c.mu.Lock()
	if !c.enabled || c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	if err := c.dial(context.Background(), gen); err != nil {
		logger.Warn("Chat reconnect failed for meeting %s: %v", c.meetingID, err)
	}
}

func (c *Channel) dial(ctx context.Context, gen int) error {
	conn, err := c.dialer.Dial(ctx, c.userID, c.meetingID)
	if err != nil {
		logger.Warn("Chat connect failed for meeting %s: %v", c.meetingID, err)
		c.mu.Lock()
		if c.gen == gen && c.enabled {
			c.state = StateDisconnected
			c.scheduleReconnectLocked()
		}
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	if !c.enabled || c.gen != gen {
		// Torn down while dialing.
		c.mu.Unlock()
		conn.Close()
		return errors.New("chat channel was closed during connect")
	}
	c.conn = conn
	c.state = StateConnected
	c.historyLoaded = false
	c.mu.Unlock()

	// Membership and full history are requested immediately on connect.
	if err := conn.WriteAction(actionJoinMeeting, map[string]string{"meetingId": c.meetingID}); err != nil {
		logger.Error("Failed to join meeting room %s: %v", c.meetingID, err)
	}

	go c.readPump(conn, gen)
	logger.Info("Chat connected for meeting %s", c.meetingID)
	return nil
}

// Close is the deliberate teardown: it cancels any pending reconnect,
// drops the connection and parks the channel in Idle.
func (c *Channel) Close() {
	c.mu.Lock()
	c.enabled = false
	c.gen++
	c.cancelReconnectLocked()
	conn := c.conn
	c.conn = nil
	c.state = StateIdle
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// SendMessage writes a message, subject to the phase and no-show gates.
// The two rejection reasons are distinct so the UI can explain itself.
func (c *Channel) SendMessage(body string, messageType models.MessageType) error {
	if c.phaseFn != nil && c.phaseFn() == models.PhaseCompleted {
		return ErrChatArchived
	}
	if c.noShowFn != nil && c.noShowFn(c.userID) {
		return ErrNoShowRestricted
	}

	c.mu.Lock()
	conn := c.conn
	connected := c.state == StateConnected
	c.mu.Unlock()
	if !connected || conn == nil {
		return ErrNotConnected
	}

	return conn.WriteAction(actionSendMessage, map[string]interface{}{
		"message":     body,
		"messageType": messageType,
		"meetingId":   c.meetingID,
	})
}

// State returns the current connection state.
func (c *Channel) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Messages returns a copy of the local message list in arrival order.
func (c *Channel) Messages() []models.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.ChatMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

// OnlineUsers returns the presence roster, sorted for stable display.
func (c *Channel) OnlineUsers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.online))
	for id := range c.online {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (c *Channel) readPump(conn Conn, gen int) {
	for {
		ev, err := conn.ReadEvent()
		if err != nil {
			conn.Close()
			c.handleDisconnect(gen)
			return
		}
		c.apply(ev, gen)
	}
}

// apply is the single reducer for inbound events.
func (c *Channel) apply(ev Event, gen int) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}

	changed := false
	switch ev.Type {
	case EventChatHistory:
		// History replaces local state exactly once per connection; a
		// duplicate history frame on the same connection is dropped.
		if !c.historyLoaded {
			c.historyLoaded = true
			c.messages = append([]models.ChatMessage(nil), ev.Messages...)
			changed = true
		}
	case EventNewMessage:
		// Appended in arrival order; a single connection's order is
		// trusted as send order.
		c.messages = append(c.messages, *ev.Message)
		changed = true
	case EventMessagesRead:
		for _, id := range ev.Receipt.ChatIDs {
			for i := range c.messages {
				if c.messages[i].ID == id {
					c.messages[i].AddReaders(ev.Receipt.UserID)
				}
			}
		}
	case EventUserJoined:
		if ev.UserID != "" {
			c.online[ev.UserID] = struct{}{}
		}
	case EventUserLeft:
		delete(c.online, ev.UserID)
	case EventConnect:
		logger.Debug("Chat server acknowledged connection for meeting %s", c.meetingID)
	case EventDisconnect:
		// Server-initiated close; the read error that follows drives the
		// state change.
		logger.Info("Chat server closed the connection for meeting %s", c.meetingID)
	case EventConnectError, EventError:
		logger.Warn("Chat error on meeting %s: %v", c.meetingID, ev.Err)
	}

	var unread []string
	var conn Conn
	if changed {
		unread = c.unreadIDsLocked()
		conn = c.conn
		// Counted as read locally right away; the server's own
		// messages_read broadcast merging us back in is idempotent.
		for i := range c.messages {
			c.messages[i].AddReaders(c.userID)
		}
	}
	c.mu.Unlock()

	if len(unread) > 0 && conn != nil {
		if err := conn.WriteAction(actionMarkAsRead, map[string]interface{}{
			"chatIds":   unread,
			"meetingId": c.meetingID,
		}); err != nil {
			logger.Warn("Failed to mark %d message(s) read: %v", len(unread), err)
		}
	}
}

// unreadIDsLocked collects every message the local user has not read yet,
// for a single batched mark-as-read call.
func (c *Channel) unreadIDsLocked() []string {
	var ids []string
	for i := range c.messages {
		if !c.messages[i].HasRead(c.userID) {
			ids = append(ids, c.messages[i].ID)
		}
	}
	return ids
}

func (c *Channel) handleDisconnect(gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return
	}
	c.conn = nil
	if !c.enabled {
		c.state = StateIdle
		return
	}
	c.state = StateDisconnected
	logger.Warn("Chat disconnected for meeting %s, reconnecting in %s", c.meetingID, c.reconnectDelay)
	c.scheduleReconnectLocked()
}

// scheduleReconnectLocked arms exactly one reconnect attempt. Teardown
// cancels the timer before it fires.
func (c *Channel) scheduleReconnectLocked() {
	if c.reconnectTimer != nil {
		return
	}
	c.reconnectTimer = time.AfterFunc(c.reconnectDelay, func() {
		c.mu.Lock()
		c.reconnectTimer = nil
		c.mu.Unlock()
		c.reconnect()
	})
}

func (c *Channel) cancelReconnectLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}
