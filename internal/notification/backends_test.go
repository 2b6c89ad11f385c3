package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestTelegramNotifier_Send(t *testing.T) {
	var gotPath string
	var payload map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tg := NewTelegramNotifier("TOKEN", "42")
	tg.baseURL = srv.URL

	err := tg.Send(context.Background(), Alert{Level: AlertInfo, Title: "Binance Scan", Message: "BTCUSDT close=1 | RSI 25.0 <= 30"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotPath != "/botTOKEN/sendMessage" {
		t.Errorf("path = %q", gotPath)
	}
	if payload["chat_id"] != "42" || payload["parse_mode"] != "HTML" {
		t.Errorf("payload = %v", payload)
	}
	text, _ := payload["text"].(string)
	if !strings.Contains(text, "<b>Binance Scan</b>") {
		t.Errorf("text missing bold title: %q", text)
	}
	if !strings.Contains(text, "&lt;= 30") {
		t.Errorf("text not HTML escaped: %q", text)
	}
}

func TestTelegramNotifier_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	tg := NewTelegramNotifier("TOKEN", "42")
	tg.baseURL = srv.URL

	if err := tg.Send(context.Background(), Alert{Title: "x"}); err == nil {
		t.Error("expected error on 429")
	}
}

func TestWebhookNotifier_Send(t *testing.T) {
	var payload map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content type = %q", r.Header.Get("Content-Type"))
		}
		json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	wh := NewWebhookNotifier(srv.URL)
	wh.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	alert := Alert{
		Level:      AlertInfo,
		Title:      "Binance Scan",
		Message:    "BTCUSDT close=103.00 | High Sweep",
		Key:        "BTCUSDT-sweep",
		Instrument: "BTCUSDT",
		Trigger:    "sweep",
		Notes:      []string{"RSI 55.0", "High Sweep"},
	}
	if err := wh.Send(context.Background(), alert); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if payload["title"] != "Binance Scan" || payload["key"] != "BTCUSDT-sweep" || payload["level"] != "INFO" {
		t.Errorf("payload = %v", payload)
	}
	if payload["instrument"] != "BTCUSDT" || payload["trigger"] != "sweep" {
		t.Errorf("instrument/trigger = %v / %v", payload["instrument"], payload["trigger"])
	}
	notes, _ := payload["notes"].([]interface{})
	if len(notes) != 2 || notes[1] != "High Sweep" {
		t.Errorf("notes = %v", payload["notes"])
	}
	if payload["sent_at_ms"] != float64(1_700_000_000_000) {
		t.Errorf("sent_at_ms = %v", payload["sent_at_ms"])
	}
}

func TestWebhookNotifier_HeartbeatOmitsIntentFields(t *testing.T) {
	var payload map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&payload)
	}))
	defer srv.Close()

	if err := NewWebhookNotifier(srv.URL).Send(context.Background(), Alert{Level: AlertInfo, Title: "Heartbeat", Key: "heartbeat"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	for _, k := range []string{"instrument", "trigger", "notes"} {
		if _, ok := payload[k]; ok {
			t.Errorf("unexpected field %q in %v", k, payload)
		}
	}
}

func TestWebhookNotifier_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if err := NewWebhookNotifier(srv.URL).Send(context.Background(), Alert{}); err == nil {
		t.Error("expected error on 500")
	}
}

func TestLogNotifier_Send(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))

	err := n.Send(context.Background(), Alert{Level: AlertInfo, Title: "MEXC Scan", Message: "MXUSDT close=2.50", Key: "MXUSDT-indicators", Instrument: "MXUSDT", Trigger: "ema_distance"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if line["msg"] != "[notify] MEXC Scan" || line["key"] != "MXUSDT-indicators" || line["trigger"] != "ema_distance" {
		t.Errorf("log line = %v", line)
	}
}

func TestMultiNotifier_TriesAll(t *testing.T) {
	a := &recordingNotifier{err: context.DeadlineExceeded}
	b := &recordingNotifier{}
	err := MultiNotifier{a, b}.Send(context.Background(), Alert{Title: "x"})
	if err == nil {
		t.Error("expected first error")
	}
	if a.count() != 1 || b.count() != 1 {
		t.Errorf("calls = %d, %d", a.count(), b.count())
	}
}
