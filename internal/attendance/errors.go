package attendance

import "errors"

var (
	// ErrWindowNotOpen means check-in has not started yet; distinct from
	// ErrWindowClosed so the UI can say "not open yet" vs "window closed".
	ErrWindowNotOpen = errors.New("attendance window has not opened yet")
	ErrWindowClosed  = errors.New("attendance window has closed")

	// ErrNotHost is returned when a non-host tries to issue a token.
	ErrNotHost = errors.New("only the meeting host can issue attendance codes")

	// ErrInvalidPayload is the local rejection for scanned content that is
	// not an attendance code. No network call is made.
	ErrInvalidPayload = errors.New("scanned code is not an attendance code")

	// ErrRedemptionInFlight means a check-in attempt is already pending;
	// the new scan is dropped, not queued.
	ErrRedemptionInFlight = errors.New("a check-in attempt is already in progress")
)
