package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckInSendsTokenWithAuth(t *testing.T) {
	var gotAuth, gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/meetings/m1/attendance/check-in", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		var body struct {
			Token string `json:"token"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotToken = body.Token
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "jwt-abc", time.Second, time.Second)
	require.NoError(t, c.CheckIn(context.Background(), "m1", "tok-1"))
	assert.Equal(t, "Bearer jwt-abc", gotAuth)
	assert.Equal(t, "tok-1", gotToken)
}

func TestRejectionBecomesTypedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"message": "token already redeemed"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second, time.Second)
	err := c.CheckIn(context.Background(), "m1", "tok-stale")
	require.Error(t, err)

	var rejection *RejectionError
	require.ErrorAs(t, err, &rejection)
	assert.Equal(t, http.StatusConflict, rejection.StatusCode)
	assert.Equal(t, "token already redeemed", rejection.Message)
}

func TestAttendanceListIsCached(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		json.NewEncoder(w).Encode(map[string][]string{"attendedUserIds": {"a", "b"}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second, time.Minute)
	for i := 0; i < 3; i++ {
		ids, err := c.GetAttendanceList(context.Background(), "m1")
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, ids)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "repeated polls hit the cache")
}

func TestUnexpectedStatusIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second, time.Second)
	_, err := c.GetAttendanceList(context.Background(), "m1")
	require.Error(t, err)
	assert.ErrorContains(t, err, "unexpected response status 304")
}

func TestGenerateQRCodeRejectsEmptyToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second, time.Second)
	_, err := c.GenerateQRCode(context.Background(), "m1")
	assert.Error(t, err)
}

func TestGetMeeting(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/meetings/m7", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":          "m7",
			"title":       "river walk",
			"hostId":      "host",
			"scheduledAt": "2025-06-14T18:00:00Z",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second, time.Second)
	m, err := c.GetMeeting(context.Background(), "m7")
	require.NoError(t, err)
	assert.Equal(t, "river walk", m.Title)
	_, ok := m.ScheduledTime()
	assert.True(t, ok)
}
