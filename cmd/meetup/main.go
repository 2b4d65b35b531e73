package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"meetup-app/internal/auth"
	"meetup-app/internal/chat"
	"meetup-app/internal/config"
	"meetup-app/internal/services"
	"meetup-app/internal/session"
	"meetup-app/pkg/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()

	userToken := os.Getenv("MEETUP_USER_TOKEN")
	if userToken == "" {
		logger.Fatal("MEETUP_USER_TOKEN environment variable is required")
	}
	meetingID := os.Getenv("MEETUP_MEETING_ID")
	if meetingID == "" {
		logger.Fatal("MEETUP_MEETING_ID environment variable is required")
	}

	// Resolve who we are acting as
	authService := auth.NewService(cfg)
	identity, err := authService.IdentityFromToken(userToken)
	if err != nil {
		logger.Fatal("Failed to resolve identity: %v", err)
	}

	// Backend collaborators
	client := services.NewClient(cfg.Attendance.ServiceURL, userToken,
		cfg.Attendance.RequestTimeout, cfg.Attendance.ListCacheTTL)
	dialer := &chat.WebsocketDialer{URL: cfg.Chat.WebsocketURL, AuthToken: userToken}

	ctx := context.Background()
	meeting, err := client.GetMeeting(ctx, meetingID)
	if err != nil {
		logger.Fatal("Failed to load meeting %s: %v", meetingID, err)
	}

	// Mount the meeting session
	sess := session.New(cfg, meeting, identity.UserID, client, dialer)
	sess.Start(ctx)

	logger.Info("📅 Meeting %q (%s) mounted as %s", meeting.Title, meeting.ID, identity.Nickname)
	logger.Info("   Phase: %s, attendance window: %s", sess.Phase(), sess.WindowState())
	if att, err := client.GetMyAttendance(ctx, meetingID); err != nil {
		logger.Warn("Could not fetch own attendance state: %v", err)
	} else {
		logger.Info("   Attendance status: %s, can check in: %v", att.Status, att.CanCheckIn)
	}

	// Run until interrupted, then release every scoped resource
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Unmounting meeting session...")
	sess.Close()
}
