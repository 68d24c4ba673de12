package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestPageFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.UserAgent(), "Mozilla/5.0") {
			t.Errorf("User-Agent = %q", r.UserAgent())
		}
		switch r.URL.Path {
		case "/ok":
			w.Write([]byte(`<html><body><span class="price">10</span></body></html>`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewPageFetcher(PageFetcherOptions{Timeout: 5 * time.Second, HostInterval: time.Millisecond, HostBurst: 5})

	body, err := f.Fetch(context.Background(), srv.URL+"/ok")
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if !strings.Contains(body, `class="price"`) {
		t.Errorf("unexpected body %q", body)
	}

	_, err = f.Fetch(context.Background(), srv.URL+"/missing")
	var re *RequestError
	if !errors.As(err, &re) || re.Status != http.StatusNotFound {
		t.Errorf("error = %v, want RequestError with 404", err)
	}
	if !errors.Is(err, ErrRequestFailed) {
		t.Errorf("error %v does not match ErrRequestFailed", err)
	}
}

func TestPageFetcherRejectsRelativeURL(t *testing.T) {
	f := NewPageFetcher(PageFetcherOptions{})
	if _, err := f.Fetch(context.Background(), "/just/a/path"); !errors.Is(err, ErrInvalidURLShape) {
		t.Errorf("error = %v, want ErrInvalidURLShape", err)
	}
}

func TestPageFetcherCancelledContext(t *testing.T) {
	f := NewPageFetcher(PageFetcherOptions{HostInterval: time.Hour, HostBurst: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.Fetch(ctx, "http://127.0.0.1:1/"); !errors.Is(err, ErrRequestFailed) {
		t.Errorf("error = %v, want ErrRequestFailed", err)
	}
}
