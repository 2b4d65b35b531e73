package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"meetup-app/internal/models"
)

// EventType enumerates every inbound event the chat service can emit.
// The set is closed: anything else is a decode error, not a silent drop.
type EventType string

const (
	EventConnect      EventType = "connect"
	EventDisconnect   EventType = "disconnect"
	EventConnectError EventType = "connect_error"
	EventChatHistory  EventType = "chat_history"
	EventNewMessage   EventType = "new_message"
	EventMessagesRead EventType = "messages_read"
	EventUserJoined   EventType = "user_joined"
	EventUserLeft     EventType = "user_left"
	EventError        EventType = "error"
)

// Outbound actions.
const (
	actionJoinMeeting = "join_meeting"
	actionSendMessage = "send_message"
	actionMarkAsRead  = "mark_as_read"
)

// ReadReceipt says userID has read every message in ChatIDs.
type ReadReceipt struct {
	UserID    string    `json:"userId"`
	ChatIDs   []string  `json:"chatIds"`
	Timestamp time.Time `json:"timestamp"`
}

// Event is the tagged variant handed to the channel's reducer. Exactly one
// payload field is set, matching Type.
type Event struct {
	Type     EventType
	Messages []models.ChatMessage // chat_history
	Message  *models.ChatMessage  // new_message
	Receipt  *ReadReceipt         // messages_read
	UserID   string               // user_joined, user_left
	Err      error                // connect_error, error
}

// envelope is the wire framing: {"event": ..., "data": ...}.
type envelope struct {
	Event EventType       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func decodeEvent(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Event{}, fmt.Errorf("malformed chat frame: %w", err)
	}

	ev := Event{Type: env.Event}
	switch env.Event {
	case EventConnect, EventDisconnect:
		// No payload.
	case EventChatHistory:
		var data struct {
			Messages []models.ChatMessage `json:"messages"`
		}
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return Event{}, fmt.Errorf("malformed chat_history payload: %w", err)
		}
		ev.Messages = data.Messages
	case EventNewMessage:
		var msg models.ChatMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return Event{}, fmt.Errorf("malformed new_message payload: %w", err)
		}
		ev.Message = &msg
	case EventMessagesRead:
		var receipt ReadReceipt
		if err := json.Unmarshal(env.Data, &receipt); err != nil {
			return Event{}, fmt.Errorf("malformed messages_read payload: %w", err)
		}
		ev.Receipt = &receipt
	case EventUserJoined, EventUserLeft:
		var data struct {
			UserID string `json:"userId"`
		}
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return Event{}, fmt.Errorf("malformed presence payload: %w", err)
		}
		ev.UserID = data.UserID
	case EventConnectError, EventError:
		var data struct {
			Message string `json:"message"`
		}
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &data); err != nil {
				return Event{}, fmt.Errorf("malformed error payload: %w", err)
			}
		}
		if data.Message == "" {
			data.Message = "unknown chat error"
		}
		ev.Err = errors.New(data.Message)
	default:
		return Event{}, fmt.Errorf("unknown chat event %q", env.Event)
	}
	return ev, nil
}
