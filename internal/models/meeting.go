package models

import "time"

// Phase is the derived lifecycle stage of a meeting. It is recomputed on
// every tick and never persisted; when the server sends an explicit status
// the classifier returns it verbatim.
type Phase string

const (
	PhaseRecruiting Phase = "recruiting"
	PhaseReady      Phase = "ready"
	PhaseActive     Phase = "active"
	PhaseCompleted  Phase = "completed"
)

// Known reports whether p is one of the four recognized phases.
func (p Phase) Known() bool {
	switch p {
	case PhaseRecruiting, PhaseReady, PhaseActive, PhaseCompleted:
		return true
	}
	return false
}

type Participant struct {
	UserID    string `json:"userId"`
	Nickname  string `json:"nickname"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Meeting is the server-owned meeting record. The client never writes
// Status; timestamps arrive as RFC3339 strings and may be absent or
// malformed, in which case the time accessors report them as unavailable.
type Meeting struct {
	ID                  string        `json:"id"`
	MissionID           string        `json:"missionId,omitempty"`
	Title               string        `json:"title"`
	Status              string        `json:"status,omitempty"`
	ScheduledAt         string        `json:"scheduledAt,omitempty"`
	RecruitUntil        string        `json:"recruitUntil,omitempty"`
	MaxParticipants     int           `json:"maxParticipants"`
	CurrentParticipants int           `json:"currentParticipants"`
	HostID              string        `json:"hostId"`
	Participants        []Participant `json:"participants"`
}

// ScheduledTime parses ScheduledAt. ok is false when the field is missing
// or unparseable.
func (m *Meeting) ScheduledTime() (time.Time, bool) {
	return parseInstant(m.ScheduledAt)
}

// RecruitUntilTime parses RecruitUntil. ok is false when the field is
// missing or unparseable.
func (m *Meeting) RecruitUntilTime() (time.Time, bool) {
	return parseInstant(m.RecruitUntil)
}

// IsHost reports whether userID is the meeting's host.
func (m *Meeting) IsHost(userID string) bool {
	return userID != "" && userID == m.HostID
}

// ParticipantIDs returns the ids of everyone on the participant list,
// host included if the server listed them.
func (m *Meeting) ParticipantIDs() []string {
	ids := make([]string, 0, len(m.Participants))
	for _, p := range m.Participants {
		ids = append(ids, p.UserID)
	}
	return ids
}

func parseInstant(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// MyAttendance is the server's view of the caller's own check-in state.
type MyAttendance struct {
	Status     string `json:"status"`
	CanCheckIn bool   `json:"canCheckIn"`
}
