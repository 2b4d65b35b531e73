package attendance

import (
	"context"
	"fmt"
	"strings"
	"sync"

	qrcode "github.com/skip2/go-qrcode"

	"meetup-app/internal/models"
	"meetup-app/internal/services"
	"meetup-app/pkg/logger"
)

// PayloadPrefix is the only thing distinguishing an attendance code from
// arbitrary scanned content.
const PayloadPrefix = "ATTENDANCE:"

const qrImageSize = 256

// IssuedCode is a freshly minted attendance code ready for display.
type IssuedCode struct {
	Token   string
	Payload string
	PNG     []byte
}

// Protocol runs the QR attendance handshake for one meeting session.
// Roles are asymmetric: the host issues codes, participants redeem them.
type Protocol struct {
	svc     services.AttendanceService
	meeting *models.Meeting
	userID  string
	tracker *Tracker
	record  *Record

	mu        sync.Mutex
	current   *IssuedCode
	redeeming bool
}

func NewProtocol(svc services.AttendanceService, meeting *models.Meeting, userID string, tracker *Tracker, record *Record) *Protocol {
	return &Protocol{
		svc:     svc,
		meeting: meeting,
		userID:  userID,
		tracker: tracker,
		record:  record,
	}
}

// GenerateToken mints and encodes a new attendance code. Only the host may
// call it, and only while the window is open. Reissuing discards the
// previous code before the network call so a stale code is never shown.
func (p *Protocol) GenerateToken(ctx context.Context) (*IssuedCode, error) {
	if err := p.windowGate(); err != nil {
		return nil, err
	}
	if !p.meeting.IsHost(p.userID) {
		return nil, ErrNotHost
	}

	// The old token is invalid the moment a refresh starts; drop it now.
	p.mu.Lock()
	p.current = nil
	p.mu.Unlock()

	token, err := p.svc.GenerateQRCode(ctx, p.meeting.ID)
	if err != nil {
		return nil, err
	}

	// Issuing counts as the host's own check-in; no scan required. Done
	// before encoding so a render failure cannot mark the host absent.
	p.record.MarkAttended(p.userID)

	payload := PayloadPrefix + token
	png, err := qrcode.Encode(payload, qrcode.Medium, qrImageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to encode attendance code: %w", err)
	}

	code := &IssuedCode{Token: token, Payload: payload, PNG: png}
	p.mu.Lock()
	p.current = code
	p.mu.Unlock()

	logger.Info("Issued attendance code for meeting %s", p.meeting.ID)
	return code, nil
}

// CurrentCode returns the code on display, or nil during a refresh.
func (p *Protocol) CurrentCode() *IssuedCode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Redeem validates a scanned payload and checks the caller in. Payloads
// without the attendance prefix are rejected locally with no network call.
// At most one redemption is in flight; concurrent scans are dropped.
func (p *Protocol) Redeem(ctx context.Context, rawPayload string) error {
	if err := p.windowGate(); err != nil {
		return err
	}
	if !strings.HasPrefix(rawPayload, PayloadPrefix) {
		return ErrInvalidPayload
	}

	p.mu.Lock()
	if p.redeeming {
		p.mu.Unlock()
		return ErrRedemptionInFlight
	}
	p.redeeming = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.redeeming = false
		p.mu.Unlock()
	}()

	token := strings.TrimPrefix(rawPayload, PayloadPrefix)
	if err := p.svc.CheckIn(ctx, p.meeting.ID, token); err != nil {
		logger.Warn("Check-in rejected for meeting %s: %v", p.meeting.ID, err)
		return err
	}

	p.record.MarkAttended(p.userID)
	logger.Info("User %s checked in to meeting %s", p.userID, p.meeting.ID)
	return nil
}

func (p *Protocol) windowGate() error {
	switch p.tracker.State() {
	case WindowOpen:
		return nil
	case WindowClosed:
		return ErrWindowClosed
	default:
		return ErrWindowNotOpen
	}
}
