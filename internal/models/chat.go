package models

import "time"

type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
)

// ChatMessage is a single room message. ReadBy only ever grows; merges are
// set unions so replaying a read-receipt event is harmless.
type ChatMessage struct {
	ID          string      `json:"id"`
	UserID      string      `json:"userId"`
	Nickname    string      `json:"nickname"`
	AvatarURL   string      `json:"avatarUrl,omitempty"`
	Body        string      `json:"message"`
	MessageType MessageType `json:"messageType"`
	CreatedAt   time.Time   `json:"createdAt"`
	ReadBy      []string    `json:"readBy"`
}

// HasRead reports whether userID is in the message's reader set.
func (m *ChatMessage) HasRead(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

// AddReaders unions ids into ReadBy. Duplicates are dropped, so applying
// the same receipt twice leaves the set unchanged.
func (m *ChatMessage) AddReaders(ids ...string) {
	for _, id := range ids {
		if !m.HasRead(id) {
			m.ReadBy = append(m.ReadBy, id)
		}
	}
}

// UnreadCount is the participant-count heuristic shown next to a message:
// everyone who has not read it yet, floored at zero. It is not a precise
// per-recipient ledger.
func (m *ChatMessage) UnreadCount(totalParticipants int) int {
	n := totalParticipants - len(m.ReadBy)
	if n < 0 {
		return 0
	}
	return n
}
