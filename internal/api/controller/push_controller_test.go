package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bassista/go_offline/internal/notify"
)

type fakePushGateway struct {
	payloads [][]byte
	clicks   []string
}

func (f *fakePushGateway) HandlePush(_ context.Context, payload []byte) notify.Event {
	f.payloads = append(f.payloads, payload)
	body := string(payload)
	if strings.TrimSpace(body) == "" {
		body = "default"
	}
	return notify.Event{Body: body, Timestamp: time.Now()}
}

func (f *fakePushGateway) HandleNotificationClick(action string) notify.ClickResult {
	f.clicks = append(f.clicks, action)
	if action == notify.ActionOpen {
		return notify.ClickResult{Close: true, OpenURL: "/"}
	}
	return notify.ClickResult{Close: true}
}

func pushRouter(gw PushGateway) *gin.Engine {
	r := gin.New()
	ctl := NewPushController(gw)
	r.POST("/-/push", ctl.Push)
	r.POST("/-/notifications/:action/click", ctl.Click)
	return r
}

func TestPush_RendersBody(t *testing.T) {
	gw := &fakePushGateway{}
	w := httptest.NewRecorder()
	pushRouter(gw).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/-/push", strings.NewReader("New expense recorded")))

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	var ev notify.Event
	if err := json.Unmarshal(w.Body.Bytes(), &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.Body != "New expense recorded" {
		t.Errorf("expected payload body, got %q", ev.Body)
	}
}

func TestPush_EmptyBody(t *testing.T) {
	gw := &fakePushGateway{}
	w := httptest.NewRecorder()
	pushRouter(gw).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/-/push", nil))

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	var ev notify.Event
	if err := json.Unmarshal(w.Body.Bytes(), &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.Body != "default" {
		t.Errorf("expected default body, got %q", ev.Body)
	}
}

func TestClick_OpenAction(t *testing.T) {
	gw := &fakePushGateway{}
	w := httptest.NewRecorder()
	pushRouter(gw).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/-/notifications/open/click", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var res notify.ClickResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !res.Close || res.OpenURL != "/" {
		t.Errorf("expected open routing, got %+v", res)
	}
}

func TestClick_DismissAction(t *testing.T) {
	gw := &fakePushGateway{}
	w := httptest.NewRecorder()
	pushRouter(gw).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/-/notifications/dismiss/click", nil))

	var res notify.ClickResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !res.Close || res.OpenURL != "" {
		t.Errorf("expected plain close, got %+v", res)
	}
}
