package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tunesmith/internal/config"
	"tunesmith/internal/notifications"
)

type captured struct {
	calls    int
	title    string
	tags     string
	priority string
	body     string
}

func newNtfyServer(t *testing.T, status int) (*httptest.Server, *captured) {
	t.Helper()
	got := &captured{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		got.calls++
		got.title = r.Header.Get("Title")
		got.tags = r.Header.Get("Tags")
		got.priority = r.Header.Get("Priority")
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		got.body = string(body)
		w.WriteHeader(status)
		if status >= 300 {
			_, _ = w.Write([]byte("topic is read-only"))
		}
	}))
	t.Cleanup(server.Close)
	return server, got
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifySongCompleted(context.Background(), "Example", "/tmp/example.mp3"); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
	if err := svc.TestNotification(context.Background()); err != nil {
		t.Fatalf("expected noop test notification to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	deadline := time.Date(2026, 3, 14, 18, 30, 0, 0, time.UTC)
	tests := []struct {
		name           string
		send           func(notifications.Service) error
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name: "song completed",
			send: func(s notifications.Service) error {
				return s.NotifySongCompleted(context.Background(), "Night Drive", "/music/2026-03-14_night-drive/night-drive_v1.mp3")
			},
			expectTitle:   "Tunesmith - Song Ready",
			expectMessage: "🎵 Song ready: Night Drive\nFile: /music/2026-03-14_night-drive/night-drive_v1.mp3",
			expectTags:    "tunesmith,song,completed",
		},
		{
			name: "song failed",
			send: func(s notifications.Service) error {
				return s.NotifySongFailed(context.Background(), "Night Drive", "timeout", "generation did not finish")
			},
			expectTitle:    "Tunesmith - Song Failed",
			expectMessage:  "❌ Night Drive failed (timeout): generation did not finish",
			expectTags:     "tunesmith,song,error",
			expectPriority: "high",
		},
		{
			name: "release submitted",
			send: func(s notifications.Service) error {
				return s.NotifyReleaseSubmitted(context.Background(), "Night Drive")
			},
			expectTitle:   "Tunesmith - Release Submitted",
			expectMessage: "📤 Submitted to distributor: Night Drive",
			expectTags:    "tunesmith,release,submitted",
		},
		{
			name: "login required",
			send: func(s notifications.Service) error {
				return s.NotifyLoginRequired(context.Background(), "distrokid", "https://distrokid.com/signin", deadline)
			},
			expectTitle:    "Tunesmith - Login Required",
			expectMessage:  "🔐 distrokid needs a login in the browser window\nhttps://distrokid.com/signin\nWaiting until 18:30:00",
			expectTags:     "tunesmith,login,action",
			expectPriority: "urgent",
		},
		{
			name: "batch with failures",
			send: func(s notifications.Service) error {
				return s.NotifyBatchCompleted(context.Background(), 3, 1, 95*time.Second)
			},
			expectTitle:   "Tunesmith - Batch Complete (with errors)",
			expectMessage: "3 succeeded, 1 failed in 1m35s",
			expectTags:    "tunesmith,batch,completed",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server, got := newNtfyServer(t, http.StatusOK)

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5

			if err := tc.send(notifications.NewService(&cfg)); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}
			if got.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, got.title)
			}
			if got.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, got.body)
			}
			if got.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, got.tags)
			}
			if got.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, got.priority)
			}
		})
	}
}

func TestNtfyServiceHonoursToggles(t *testing.T) {
	server, got := newNtfyServer(t, http.StatusOK)

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.SongCompleted = false
	cfg.Notifications.Releases = false
	cfg.Notifications.LoginRequired = false
	cfg.Notifications.Errors = false
	svc := notifications.NewService(&cfg)

	ctx := context.Background()
	for _, err := range []error{
		svc.NotifySongCompleted(ctx, "a", ""),
		svc.NotifySongFailed(ctx, "a", "timeout", ""),
		svc.NotifyReleaseSubmitted(ctx, "a"),
		svc.NotifyLoginRequired(ctx, "distrokid", "", time.Time{}),
	} {
		if err != nil {
			t.Fatalf("suppressed notification returned %v", err)
		}
	}
	if got.calls != 0 {
		t.Fatalf("expected no requests for disabled events, got %d", got.calls)
	}
}

func TestNtfyServiceSkipsCancelledSongs(t *testing.T) {
	server, got := newNtfyServer(t, http.StatusOK)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	if err := notifications.NewService(&cfg).NotifySongFailed(context.Background(), "a", "cancelled", "context canceled"); err != nil {
		t.Fatalf("NotifySongFailed: %v", err)
	}
	if got.calls != 0 {
		t.Fatalf("cancelled runs should not notify, got %d calls", got.calls)
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	server, _ := newNtfyServer(t, http.StatusForbidden)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	err := notifications.NewService(&cfg).TestNotification(context.Background())
	if err == nil {
		t.Fatal("expected error for 403 response")
	}
	if !strings.Contains(err.Error(), "403") || !strings.Contains(err.Error(), "read-only") {
		t.Fatalf("error %q should carry status and body", err)
	}
}

func TestNtfyServiceHonoursContext(t *testing.T) {
	server, _ := newNtfyServer(t, http.StatusOK)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := notifications.NewService(&cfg).TestNotification(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
