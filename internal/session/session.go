// Package session ties one meeting's runtime together: it ticks the
// attendance window while the meeting is active, freezes the no-show set
// when the window closes, and feeds the phase and no-show gates to the
// chat and verification surfaces.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"meetup-app/internal/attendance"
	"meetup-app/internal/chat"
	"meetup-app/internal/config"
	"meetup-app/internal/models"
	"meetup-app/internal/phase"
	"meetup-app/internal/scanner"
	"meetup-app/internal/services"
	"meetup-app/pkg/logger"
)

// ErrProofRestricted means the caller may not submit photo proof, either
// because the activity has not started or because they are a no-show.
var ErrProofRestricted = errors.New("photo verification is not available")

// Session is the client-side runtime for one mounted meeting view. All of
// its timers are scoped to the session and released by Close.
type Session struct {
	id       string // correlates this mount's log lines
	cfg      *config.Config
	meeting  *models.Meeting
	userID   string
	svc      services.AttendanceService
	record   *attendance.Record
	detector *attendance.NoShowDetector
	tracker  *attendance.Tracker // nil when the meeting has no scheduled time
	protocol *attendance.Protocol
	channel  *chat.Channel

	now          func() time.Time
	pollInterval time.Duration
	countdownOn  atomic.Bool

	closeOnce sync.Once
	done      chan struct{}
}

func New(cfg *config.Config, meeting *models.Meeting, userID string, svc services.AttendanceService, dialer chat.Dialer) *Session {
	s := &Session{
		id:           uuid.NewString(),
		cfg:          cfg,
		meeting:      meeting,
		userID:       userID,
		svc:          svc,
		record:       attendance.NewRecord(),
		detector:     attendance.NewNoShowDetector(),
		now:          time.Now,
		pollInterval: time.Second,
		done:         make(chan struct{}),
	}

	if scheduledAt, ok := meeting.ScheduledTime(); ok {
		s.tracker = attendance.NewTracker(scheduledAt, cfg.Attendance.Window)
		s.protocol = attendance.NewProtocol(svc, meeting, userID, s.tracker, s.record)
	}

	s.channel = chat.NewChannel(dialer, userID, meeting.ID, cfg.Chat.ReconnectDelay, s.Phase, s.detector.IsNoShow)
	return s
}

// Start runs the one-second tick loop and connects chat. The loop stops
// when Close is called.
func (s *Session) Start(ctx context.Context) {
	logger.Info("Session %s mounted for meeting %s as user %s", s.id, s.meeting.ID, s.userID)
	go s.run()
	if err := s.channel.Connect(ctx); err != nil {
		logger.Warn("Initial chat connect failed: %v", err)
	}
}

// Close releases every scoped resource: the tick loop, the chat
// connection and any pending reconnect timer.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.channel.Close()
		logger.Info("Session %s unmounted", s.id)
	})
}

func (s *Session) run() {
	// The phase poll owns the one-second countdown ticker: the ticker
	// exists only while the derived phase is active and the window can
	// still move, and is released the moment either stops being true,
	// not just on unmount.
	poll := time.NewTicker(s.pollInterval)
	defer poll.Stop()

	var countdown *time.Ticker
	var tick <-chan time.Time
	stopCountdown := func() {
		if countdown == nil {
			return
		}
		countdown.Stop()
		countdown = nil
		tick = nil
		s.countdownOn.Store(false)
	}
	defer stopCountdown()

	for {
		if s.countdownNeeded(s.now()) {
			if countdown == nil {
				countdown = time.NewTicker(time.Second)
				tick = countdown.C
				s.countdownOn.Store(true)
			}
		} else {
			stopCountdown()
		}

		select {
		case <-s.done:
			return
		case <-poll.C:
		case <-tick:
			s.Tick(s.now())
		}
	}
}

func (s *Session) countdownNeeded(now time.Time) bool {
	if s.tracker == nil || s.tracker.State() == attendance.WindowClosed {
		return false
	}
	return phase.Classify(s.meeting, now) == models.PhaseActive
}

// countdownActive reports whether the one-second ticker is currently held.
func (s *Session) countdownActive() bool {
	return s.countdownOn.Load()
}

// Tick advances the session to the given instant. The attendance window
// only moves while the derived phase is active; the close transition
// freezes the no-show set exactly once.
func (s *Session) Tick(now time.Time) {
	if phase.Classify(s.meeting, now) != models.PhaseActive {
		return
	}
	if s.tracker == nil {
		return
	}

	_, justClosed := s.tracker.Tick(now)
	if !justClosed {
		return
	}

	// One last pull of the server-side list so check-ins scanned on other
	// devices count. Not retried on failure: the local record still holds
	// everything this device saw.
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Attendance.RequestTimeout)
	defer cancel()
	if ids, err := s.svc.GetAttendanceList(ctx, s.meeting.ID); err != nil {
		logger.Warn("Could not refresh attendance list before freeze: %v", err)
	} else {
		s.record.Merge(ids)
	}
	s.detector.Freeze(s.meeting, s.record)
}

// Phase is the meeting's current derived phase.
func (s *Session) Phase() models.Phase {
	return phase.Classify(s.meeting, s.now())
}

// WindowState reports the attendance window state for display gating.
func (s *Session) WindowState() attendance.WindowState {
	if s.tracker == nil {
		return attendance.WindowNotStarted
	}
	return s.tracker.State()
}

// CountdownRemaining is the time left on the check-in countdown.
func (s *Session) CountdownRemaining() time.Duration {
	if s.tracker == nil {
		return 0
	}
	return s.tracker.Remaining(s.now())
}

// GenerateQR issues a fresh attendance code (host only, window open).
func (s *Session) GenerateQR(ctx context.Context) (*attendance.IssuedCode, error) {
	if s.protocol == nil {
		return nil, attendance.ErrWindowNotOpen
	}
	return s.protocol.GenerateToken(ctx)
}

// RedeemScan submits a scanned payload for check-in.
func (s *Session) RedeemScan(ctx context.Context, rawPayload string) error {
	if s.protocol == nil {
		return attendance.ErrWindowNotOpen
	}
	return s.protocol.Redeem(ctx, rawPayload)
}

// OpenScanner starts a scan loop over the given media source, wired to
// the redemption path. The loop stops itself on the first decode; the
// caller stops it on view close.
func (s *Session) OpenScanner(source scanner.FrameSource) *scanner.Loop {
	loop := scanner.NewLoop(source, s.cfg.Scanner.FrameInterval,
		func(payload string) {
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Attendance.RequestTimeout)
			defer cancel()
			if err := s.RedeemScan(ctx, payload); err != nil {
				logger.Warn("Scan redemption failed: %v", err)
			}
		},
		func(err error) {
			logger.Error("Scanner aborted: %v", err)
		})
	go loop.Run()
	return loop
}

// Chat exposes the meeting's chat channel.
func (s *Session) Chat() *chat.Channel {
	return s.channel
}

// Attended reports whether userID checked in during this session.
func (s *Session) Attended(userID string) bool {
	return s.record.Attended(userID)
}

// NoShows is the frozen absentee set, empty before the window closes.
func (s *Session) NoShows() []string {
	return s.detector.NoShows()
}

// VerifyProofAccess gates the photo-verification surface: the activity
// must have started and the caller must not be a no-show.
func (s *Session) VerifyProofAccess(userID string) error {
	switch s.Phase() {
	case models.PhaseActive, models.PhaseCompleted:
	default:
		return ErrProofRestricted
	}
	if s.detector.IsNoShow(userID) {
		return ErrProofRestricted
	}
	return nil
}
