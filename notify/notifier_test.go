package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type stubSender struct {
	name string
	err  error
	got  []string
}

func (s *stubSender) Send(_ context.Context, title, message string) error {
	s.got = append(s.got, title+"|"+message)
	return s.err
}

func (s *stubSender) Name() string { return s.name }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifierFansOutPastFailures(t *testing.T) {
	broken := &stubSender{name: "broken", err: errors.New("down")}
	ok := &stubSender{name: "ok"}
	n := NewNotifier([]Sender{broken, ok}, testLogger())

	err := n.NotifyAll(context.Background(), "title", "body")
	if err == nil || !strings.Contains(err.Error(), "broken") {
		t.Errorf("error = %v, want failure naming the broken sender", err)
	}
	if len(ok.got) != 1 || ok.got[0] != "title|body" {
		t.Errorf("healthy sender got %v", ok.got)
	}
	if got := strings.Join(n.Channels(), ","); got != "broken,ok" {
		t.Errorf("Channels() = %q", got)
	}
}

func TestNotifierWithoutSenders(t *testing.T) {
	n := NewNotifier(nil, testLogger())
	if n.Enabled() {
		t.Error("notifier without senders reports enabled")
	}
	if err := n.NotifyAll(context.Background(), "t", "m"); err != nil {
		t.Errorf("NotifyAll error: %v", err)
	}
}

func TestTelegramSender(t *testing.T) {
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bot123:abc/sendMessage" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	s := NewTelegramSender("123:abc", "42").WithAPIBase(srv.URL + "/")
	if err := s.Send(context.Background(), "📉 Price alert!", "Kettle\nNow: 90 USD"); err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if payload["chat_id"] != "42" || payload["text"] != "📉 Price alert!\nKettle\nNow: 90 USD" {
		t.Errorf("payload = %v", payload)
	}
}

func TestSendersReportHTTPFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "chat not found", http.StatusBadRequest)
	}))
	defer srv.Close()

	for _, s := range []Sender{
		NewTelegramSender("t", "c").WithAPIBase(srv.URL),
		NewDiscordSender(srv.URL + "/webhook"),
	} {
		err := s.Send(context.Background(), "t", "m")
		if err == nil || !strings.Contains(err.Error(), "400") {
			t.Errorf("%s: error = %v, want status 400", s.Name(), err)
		}
	}
}
