package alerting

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"Kessan/internal/domain/models"
	apphttp "Kessan/pkg/http"
)

func TestWebhookNotifierPayload(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(apphttp.NewClient(apphttp.WithTimeout(time.Second)), srv.URL, "#alerts")
	event := &models.AlertEvent{
		Alert:   "provider_health_low",
		State:   models.AlertTriggered,
		Message: "healthy ratio 0.40 below 0.50",
	}
	if err := n.Notify(context.Background(), event); err != nil {
		t.Fatalf("notify: %v", err)
	}

	text, _ := body["text"].(string)
	if !strings.Contains(text, "provider_health_low") || !strings.Contains(text, "triggered") {
		t.Fatalf("unexpected text %q", text)
	}
	if got := body["channel"]; got != "#alerts" {
		t.Fatalf("channel = %v, want #alerts", got)
	}
}

func TestWebhookNotifierOmitsEmptyChannel(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(apphttp.NewClient(apphttp.WithTimeout(time.Second)), srv.URL, "")
	event := &models.AlertEvent{Alert: "news_volume_spike", State: models.AlertOK, Message: "back to baseline"}
	if err := n.Notify(context.Background(), event); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if _, ok := body["channel"]; ok {
		t.Fatal("channel must be omitted when not configured")
	}
}
