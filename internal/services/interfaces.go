package services

import (
	"context"

	"meetup-app/internal/models"
)

// AttendanceService is the backend collaborator that owns check-in truth.
// Tokens are opaque; the client only wraps and unwraps them for transport.
type AttendanceService interface {
	// GenerateQRCode mints a fresh attendance token scoped to the meeting.
	// Issuing a new token implicitly invalidates the previous one.
	GenerateQRCode(ctx context.Context, meetingID string) (string, error)
	// CheckIn redeems a scanned token for the calling user.
	CheckIn(ctx context.Context, meetingID, token string) error
	// GetAttendanceList returns the ids of everyone checked in so far.
	GetAttendanceList(ctx context.Context, meetingID string) ([]string, error)
	// GetMyAttendance returns the caller's own check-in state.
	GetMyAttendance(ctx context.Context, meetingID string) (*models.MyAttendance, error)
}

// MeetingService is the catalog collaborator, consumed as a plain data
// fetch. Filtering and pagination live behind it and are not modeled here.
type MeetingService interface {
	GetMeeting(ctx context.Context, meetingID string) (*models.Meeting, error)
}
