package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetup-app/internal/attendance"
	"meetup-app/internal/chat"
	"meetup-app/internal/config"
	"meetup-app/internal/models"
)

// attendanceStore is the shared backend truth for a test scenario.
type attendanceStore struct {
	mu       sync.Mutex
	token    string
	attended []string
}

func (st *attendanceStore) checkIn(userID, token string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if token != st.token {
		return errors.New("token expired")
	}
	st.attended = append(st.attended, userID)
	return nil
}

// fakeAttendance is one user's view of the store, mirroring how the real
// service infers the caller from auth.
type fakeAttendance struct {
	store  *attendanceStore
	userID string
}

func (f *fakeAttendance) GenerateQRCode(ctx context.Context, meetingID string) (string, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	f.store.token = "tok-" + f.userID
	return f.store.token, nil
}

func (f *fakeAttendance) CheckIn(ctx context.Context, meetingID, token string) error {
	return f.store.checkIn(f.userID, token)
}

func (f *fakeAttendance) GetAttendanceList(ctx context.Context, meetingID string) ([]string, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	return append([]string(nil), f.store.attended...), nil
}

func (f *fakeAttendance) GetMyAttendance(ctx context.Context, meetingID string) (*models.MyAttendance, error) {
	return &models.MyAttendance{}, nil
}

// stubConn accepts writes and blocks reads until closed.
type stubConn struct {
	closeOnce sync.Once
	closed    chan struct{}
}

func newStubConn() *stubConn { return &stubConn{closed: make(chan struct{})} }

func (c *stubConn) ReadEvent() (chat.Event, error) {
	<-c.closed
	return chat.Event{}, errors.New("connection closed")
}

func (c *stubConn) WriteAction(action string, data interface{}) error { return nil }

func (c *stubConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

type stubDialer struct{}

func (stubDialer) Dial(ctx context.Context, userID, meetingID string) (chat.Conn, error) {
	return newStubConn(), nil
}

func testConfig() *config.Config {
	return &config.Config{
		Env: "test",
		Attendance: config.AttendanceConfig{
			Window:         30 * time.Minute,
			RequestTimeout: time.Second,
		},
		Chat: config.ChatConfig{
			ReconnectDelay: 50 * time.Millisecond,
		},
		Scanner: config.ScannerConfig{
			FrameInterval: time.Millisecond,
		},
	}
}

func scenarioMeeting(scheduledAt time.Time) *models.Meeting {
	return &models.Meeting{
		ID:          "m1",
		Title:       "trail cleanup",
		ScheduledAt: scheduledAt.Format(time.RFC3339),
		HostID:      "host",
		Participants: []models.Participant{
			{UserID: "host", Nickname: "Host"},
			{UserID: "a", Nickname: "A"},
			{UserID: "b", Nickname: "B"},
		},
	}
}

func newScenarioSession(t *testing.T, store *attendanceStore, userID string, scheduledAt time.Time, clock func() time.Time) *Session {
	t.Helper()
	s := New(testConfig(), scenarioMeeting(scheduledAt), userID, &fakeAttendance{store: store, userID: userID}, stubDialer{})
	s.now = clock
	t.Cleanup(s.Close)
	return s
}

// The full lifecycle: meeting started 20 minutes ago with a 30 minute
// window, the host issues a code, A redeems it, B never checks in. After
// the window closes B is the only no-show, loses chat write access, and A
// keeps it.
func TestEndToEndAttendanceAndChatGating(t *testing.T) {
	scheduledAt := time.Date(2025, 6, 14, 18, 0, 0, 0, time.UTC)
	now := scheduledAt.Add(20 * time.Minute)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(to time.Time) {
		mu.Lock()
		now = to
		mu.Unlock()
	}

	store := &attendanceStore{}
	hostSess := newScenarioSession(t, store, "host", scheduledAt, clock)
	aSess := newScenarioSession(t, store, "a", scheduledAt, clock)
	bSess := newScenarioSession(t, store, "b", scheduledAt, clock)

	for _, s := range []*Session{hostSess, aSess, bSess} {
		s.Tick(clock())
		require.Equal(t, models.PhaseActive, s.Phase())
		require.Equal(t, attendance.WindowOpen, s.WindowState())
	}
	assert.Equal(t, 10*time.Minute, hostSess.CountdownRemaining())

	// Host issues the code and is credited without scanning.
	code, err := hostSess.GenerateQR(context.Background())
	require.NoError(t, err)
	assert.True(t, hostSess.Attended("host"))

	// A scans and redeems; B does nothing.
	require.NoError(t, aSess.RedeemScan(context.Background(), code.Payload))
	assert.True(t, aSess.Attended("a"))

	// The window closes.
	advance(scheduledAt.Add(31 * time.Minute))
	for _, s := range []*Session{hostSess, aSess, bSess} {
		s.Tick(clock())
		require.Equal(t, attendance.WindowClosed, s.WindowState())
	}

	assert.Equal(t, []string{"b"}, bSess.NoShows())
	assert.Equal(t, []string{"b"}, aSess.NoShows(), "server list propagates A's check-in to other sessions")

	// Chat gating: B is rejected with the no-show reason, A still writes.
	require.NoError(t, aSess.Chat().Connect(context.Background()))
	require.NoError(t, bSess.Chat().Connect(context.Background()))
	assert.ErrorIs(t, bSess.Chat().SendMessage("sorry!", models.MessageTypeText), chat.ErrNoShowRestricted)
	assert.NoError(t, aSess.Chat().SendMessage("made it", models.MessageTypeText))

	// Verification surface follows the same membership.
	assert.ErrorIs(t, bSess.VerifyProofAccess("b"), ErrProofRestricted)
	assert.NoError(t, aSess.VerifyProofAccess("a"))

	// Ticking repeatedly after close never recomputes the frozen set,
	// even though B now checks in late server-side.
	require.Error(t, bSess.RedeemScan(context.Background(), code.Payload), "window closed")
	store.mu.Lock()
	store.attended = append(store.attended, "b")
	store.mu.Unlock()
	bSess.Tick(clock())
	bSess.Tick(clock())
	assert.Equal(t, []string{"b"}, bSess.NoShows())
}

func TestTickOutsideActivePhaseLeavesWindowAlone(t *testing.T) {
	scheduledAt := time.Date(2025, 6, 14, 18, 0, 0, 0, time.UTC)
	store := &attendanceStore{}

	clock := func() time.Time { return scheduledAt.Add(-2 * time.Hour) }
	s := newScenarioSession(t, store, "a", scheduledAt, clock)

	s.Tick(clock())
	assert.NotEqual(t, models.PhaseActive, s.Phase())
	assert.Equal(t, attendance.WindowNotStarted, s.WindowState())

	_, err := s.GenerateQR(context.Background())
	assert.ErrorIs(t, err, attendance.ErrWindowNotOpen)
}

func TestMeetingWithoutScheduleHasNoAttendanceSurface(t *testing.T) {
	store := &attendanceStore{}
	m := scenarioMeeting(time.Now())
	m.ScheduledAt = ""
	s := New(testConfig(), m, "a", &fakeAttendance{store: store, userID: "a"}, stubDialer{})
	t.Cleanup(s.Close)

	s.Tick(time.Now())
	_, err := s.GenerateQR(context.Background())
	assert.ErrorIs(t, err, attendance.ErrWindowNotOpen)
	assert.ErrorIs(t, s.RedeemScan(context.Background(), "ATTENDANCE:x"), attendance.ErrWindowNotOpen)
}

// The countdown ticker is a scoped resource: it is held only while the
// derived phase is active, not for the whole mount.
func TestCountdownTickerScopedToActivePhase(t *testing.T) {
	scheduledAt := time.Date(2025, 6, 14, 18, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	now := scheduledAt.Add(-2 * time.Hour)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(to time.Time) {
		mu.Lock()
		now = to
		mu.Unlock()
	}

	store := &attendanceStore{}
	s := newScenarioSession(t, store, "a", scheduledAt, clock)
	s.pollInterval = 5 * time.Millisecond
	s.Start(context.Background())

	// Phase is ready: no ticker is held.
	time.Sleep(30 * time.Millisecond)
	assert.False(t, s.countdownActive())

	// Phase enters active: the ticker starts.
	advance(scheduledAt.Add(10 * time.Minute))
	require.Eventually(t, s.countdownActive, time.Second, 5*time.Millisecond)

	// Phase rolls to completed: the ticker is released with the session
	// still mounted.
	advance(scheduledAt.Add(13 * time.Hour))
	require.Eventually(t, func() bool { return !s.countdownActive() }, time.Second, 5*time.Millisecond)
}

func TestCountdownTickerReleasedOnceWindowCloses(t *testing.T) {
	scheduledAt := time.Date(2025, 6, 14, 18, 0, 0, 0, time.UTC)
	now := scheduledAt.Add(10 * time.Minute)
	clock := func() time.Time { return now }

	store := &attendanceStore{}
	s := newScenarioSession(t, store, "a", scheduledAt, clock)
	s.pollInterval = 5 * time.Millisecond
	s.Start(context.Background())

	require.Eventually(t, s.countdownActive, time.Second, 5*time.Millisecond)

	// Drive the window shut; the phase is still active, but there is
	// nothing left to count down.
	s.Tick(scheduledAt.Add(31 * time.Minute))
	require.Eventually(t, func() bool { return !s.countdownActive() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, attendance.WindowClosed, s.WindowState())
}

func TestVerifyProofAccessBeforeStart(t *testing.T) {
	scheduledAt := time.Now().Add(2 * time.Hour)
	store := &attendanceStore{}
	s := newScenarioSession(t, store, "a", scheduledAt, time.Now)

	assert.ErrorIs(t, s.VerifyProofAccess("a"), ErrProofRestricted)
}
