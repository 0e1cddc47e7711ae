package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tunesmith/internal/config"
)

const userAgent = "Tunesmith-Go/0.1.0"

// Service defines the notification surface exposed to the pipelines.
type Service interface {
	NotifySongCompleted(ctx context.Context, title, path string) error
	NotifySongFailed(ctx context.Context, title, category, detail string) error
	NotifyReleaseSubmitted(ctx context.Context, title string) error
	NotifyLoginRequired(ctx context.Context, site, loginURL string, deadline time.Time) error
	NotifyBatchCompleted(ctx context.Context, succeeded, failed int, duration time.Duration) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		settings: cfg.Notifications,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	settings config.Notifications
}

func (n *ntfyService) NotifySongCompleted(ctx context.Context, title, path string) error {
	if !n.settings.SongCompleted {
		return nil
	}
	message := fmt.Sprintf("🎵 Song ready: %s", strings.TrimSpace(title))
	if path = strings.TrimSpace(path); path != "" {
		message = fmt.Sprintf("%s\nFile: %s", message, path)
	}
	return n.send(ctx, payload{
		title:   "Tunesmith - Song Ready",
		message: message,
		tags:    []string{"tunesmith", "song", "completed"},
	})
}

func (n *ntfyService) NotifySongFailed(ctx context.Context, title, category, detail string) error {
	if !n.settings.Errors {
		return nil
	}
	if category == "cancelled" {
		return nil
	}
	message := fmt.Sprintf("❌ %s failed (%s)", strings.TrimSpace(title), category)
	if detail = strings.TrimSpace(detail); detail != "" {
		message += ": " + detail
	}
	return n.send(ctx, payload{
		title:    "Tunesmith - Song Failed",
		message:  message,
		tags:     []string{"tunesmith", "song", "error"},
		priority: "high",
	})
}

func (n *ntfyService) NotifyReleaseSubmitted(ctx context.Context, title string) error {
	if !n.settings.Releases {
		return nil
	}
	return n.send(ctx, payload{
		title:   "Tunesmith - Release Submitted",
		message: fmt.Sprintf("📤 Submitted to distributor: %s", strings.TrimSpace(title)),
		tags:    []string{"tunesmith", "release", "submitted"},
	})
}

func (n *ntfyService) NotifyLoginRequired(ctx context.Context, site, loginURL string, deadline time.Time) error {
	if !n.settings.LoginRequired {
		return nil
	}
	message := fmt.Sprintf("🔐 %s needs a login in the browser window", strings.TrimSpace(site))
	if loginURL != "" {
		message += "\n" + loginURL
	}
	if !deadline.IsZero() {
		message += fmt.Sprintf("\nWaiting until %s", deadline.Format("15:04:05"))
	}
	return n.send(ctx, payload{
		title:    "Tunesmith - Login Required",
		message:  message,
		tags:     []string{"tunesmith", "login", "action"},
		priority: "urgent",
	})
}

func (n *ntfyService) NotifyBatchCompleted(ctx context.Context, succeeded, failed int, duration time.Duration) error {
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	durationText := duration.String()
	if duration == 0 {
		durationText = "0s"
	}

	title := "Tunesmith - Batch Complete"
	message := fmt.Sprintf("%d songs finished in %s", succeeded, durationText)
	if failed > 0 {
		title = "Tunesmith - Batch Complete (with errors)"
		message = fmt.Sprintf("%d succeeded, %d failed in %s", succeeded, failed, durationText)
	}
	return n.send(ctx, payload{
		title:   title,
		message: message,
		tags:    []string{"tunesmith", "batch", "completed"},
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "Tunesmith - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"tunesmith", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifySongCompleted(context.Context, string, string) error            { return nil }
func (noopService) NotifySongFailed(context.Context, string, string, string) error       { return nil }
func (noopService) NotifyReleaseSubmitted(context.Context, string) error                 { return nil }
func (noopService) NotifyLoginRequired(context.Context, string, string, time.Time) error { return nil }
func (noopService) NotifyBatchCompleted(context.Context, int, int, time.Duration) error  { return nil }
func (noopService) TestNotification(context.Context) error                               { return nil }
