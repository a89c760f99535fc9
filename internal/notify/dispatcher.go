package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bassista/go_offline/internal/logger"
)

// ActionOpen is the primary notification action: it routes the user to
// the application's root view. Every other action just closes.
const (
	ActionOpen    = "open"
	ActionDismiss = "dismiss"
)

// Event is one rendered notification. Ephemeral: consumed by the sink
// immediately and discarded.
type Event struct {
	Body      string    `json:"body"`
	Icon      string    `json:"icon"`
	Badge     string    `json:"badge"`
	Timestamp time.Time `json:"timestamp"`
	Actions   []Action  `json:"actions"`
}

// Action is one button attached to a notification.
type Action struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// ClickResult tells the hosting adapter what to do after a click.
type ClickResult struct {
	Close   bool   `json:"close"`
	OpenURL string `json:"openUrl,omitempty"`
}

// Sink renders an event to the user.
type Sink interface {
	Show(ctx context.Context, ev Event) error
}

// Dispatcher turns inbound push payloads into notifications and routes
// notification clicks. At most one notification per push; a failed
// render is logged, never retried.
type Dispatcher struct {
	sink        Sink
	defaultBody string
}

func NewDispatcher(sink Sink, defaultBody string) *Dispatcher {
	return &Dispatcher{sink: sink, defaultBody: defaultBody}
}

// OnPush renders the payload. An empty or whitespace-only payload falls
// back to the default display body. The rendered event is returned so
// the trigger endpoint can echo it.
func (d *Dispatcher) OnPush(ctx context.Context, payload []byte) Event {
	body := strings.TrimSpace(string(payload))
	if body == "" {
		body = d.defaultBody
	}
	ev := Event{
		Body:      body,
		Icon:      "/icons/icon-192.png",
		Badge:     "/icons/badge-72.png",
		Timestamp: time.Now(),
		Actions: []Action{
			{ID: ActionOpen, Title: "Open"},
			{ID: ActionDismiss, Title: "Dismiss"},
		},
	}
	if err := d.sink.Show(ctx, ev); err != nil {
		logger.WithComponent("notify").Errorf("render failed: %v", err)
	}
	return ev
}

// OnClick closes the notification; only the primary action additionally
// opens the application root.
func (d *Dispatcher) OnClick(action string) ClickResult {
	if action == ActionOpen {
		return ClickResult{Close: true, OpenURL: "/"}
	}
	return ClickResult{Close: true}
}

// LogSink writes notifications to the structured log. Default sink when
// no webhook is configured.
type LogSink struct {
	log *logrus.Entry
}

func NewLogSink() *LogSink {
	return &LogSink{log: logger.WithComponent("notify")}
}

func (s *LogSink) Show(_ context.Context, ev Event) error {
	s.log.WithField("timestamp", ev.Timestamp).Infof("notification: %s", ev.Body)
	return nil
}

// WebhookSink POSTs rendered notifications to an external display service.
type WebhookSink struct {
	url    string
	client *http.Client
}

func NewWebhookSink(url string, timeout time.Duration) *WebhookSink {
	return &WebhookSink{url: url, client: &http.Client{Timeout: timeout}}
}

func (s *WebhookSink) Show(ctx context.Context, ev Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post notification: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}
