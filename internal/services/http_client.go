package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	cache "github.com/patrickmn/go-cache"

	"meetup-app/internal/models"
)

// RejectionError is a definitive "no" from the backend (expired token,
// foreign meeting, already redeemed). It is surfaced to the user as a
// transient warning and never retried automatically.
type RejectionError struct {
	StatusCode int
	Message    string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("rejected by server (%d): %s", e.StatusCode, e.Message)
}

// Client talks to the attendance/catalog backend over JSON HTTP. It
// implements AttendanceService and MeetingService.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
	// The session polls the attendance list every second near window close,
	// so responses are cached briefly.
	listCache *cache.Cache
}

func NewClient(baseURL, authToken string, timeout, listCacheTTL time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		authToken:  authToken,
		httpClient: &http.Client{Timeout: timeout},
		listCache:  cache.New(listCacheTTL, 2*listCacheTTL),
	}
}

func (c *Client) GetMeeting(ctx context.Context, meetingID string) (*models.Meeting, error) {
	var meeting models.Meeting
	if err := c.do(ctx, http.MethodGet, "/meetings/"+meetingID, nil, &meeting); err != nil {
		return nil, fmt.Errorf("failed to fetch meeting %s: %w", meetingID, err)
	}
	return &meeting, nil
}

func (c *Client) GenerateQRCode(ctx context.Context, meetingID string) (string, error) {
	var resp struct {
		QRCodeToken string `json:"qrCodeToken"`
	}
	err := c.do(ctx, http.MethodPost, "/meetings/"+meetingID+"/attendance/qr", nil, &resp)
	if err != nil {
		return "", fmt.Errorf("failed to generate attendance token: %w", err)
	}
	if resp.QRCodeToken == "" {
		return "", fmt.Errorf("server returned an empty attendance token")
	}
	return resp.QRCodeToken, nil
}

func (c *Client) CheckIn(ctx context.Context, meetingID, token string) error {
	body := map[string]string{"token": token}
	if err := c.do(ctx, http.MethodPost, "/meetings/"+meetingID+"/attendance/check-in", body, nil); err != nil {
		return fmt.Errorf("check-in failed: %w", err)
	}
	return nil
}

func (c *Client) GetAttendanceList(ctx context.Context, meetingID string) ([]string, error) {
	if cached, ok := c.listCache.Get(meetingID); ok {
		return cached.([]string), nil
	}

	var resp struct {
		AttendedUserIDs []string `json:"attendedUserIds"`
	}
	if err := c.do(ctx, http.MethodGet, "/meetings/"+meetingID+"/attendance", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch attendance list: %w", err)
	}

	c.listCache.SetDefault(meetingID, resp.AttendedUserIDs)
	return resp.AttendedUserIDs, nil
}

func (c *Client) GetMyAttendance(ctx context.Context, meetingID string) (*models.MyAttendance, error) {
	var resp models.MyAttendance
	if err := c.do(ctx, http.MethodGet, "/meetings/"+meetingID+"/attendance/me", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch own attendance: %w", err)
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return &RejectionError{StatusCode: resp.StatusCode, Message: readErrorMessage(resp.Body)}
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("server error (%d)", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected response status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func readErrorMessage(r io.Reader) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r).Decode(&payload); err != nil || payload.Message == "" {
		return "request rejected"
	}
	return payload.Message
}
