package scraper

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestBotDetectorDetect(t *testing.T) {
	bd := NewBotDetector()

	tests := []struct {
		page     string
		wantType string
	}{
		{`<div class="g-recaptcha" data-sitekey="x"></div><p>Please solve the reCAPTCHA</p>`, "captcha"},
		{`<title>Just a moment...</title><p>Checking your browser before accessing</p>`, "bot_wall"},
		{`<h1>Access Denied</h1>`, "bot_wall"},
		{`<h1>Electric kettle</h1><span class="price">99 000</span>`, ""},
	}
	for _, tt := range tests {
		if got, _ := bd.Detect(tt.page); got != tt.wantType {
			t.Errorf("Detect(%.40q) = %q, want %q", tt.page, got, tt.wantType)
		}
	}
}

func TestBotDetectorAnnotateKeepsTaxonomy(t *testing.T) {
	bd := NewBotDetector()

	if bd.Annotate(nil, "captcha") != nil {
		t.Error("Annotate(nil) must stay nil")
	}

	err := bd.Annotate(ErrNoPriceFound, "<p>Checking your browser</p>")
	if !errors.Is(err, ErrNoPriceFound) || !strings.Contains(err.Error(), "bot_wall") {
		t.Errorf("annotated error = %v", err)
	}
	if plain := bd.Annotate(ErrNoPriceFound, "<p>sold out</p>"); plain != ErrNoPriceFound {
		t.Errorf("ordinary page changed the error: %v", plain)
	}
}

func TestEngineExplainsChallengePage(t *testing.T) {
	const url = "https://shop.example.com/blocked"
	pages := &fakeSource{pages: map[string]string{
		url: `<html><body><h1>Access denied</h1><p>bot detected</p></body></html>`,
	}}
	e := NewEngine(EngineDeps{Pages: pages, Logger: quietLogger()})

	_, _, err := e.Extract(context.Background(), url, false)
	if !errors.Is(err, ErrNoPriceFound) || !strings.Contains(err.Error(), "access denied") {
		t.Errorf("Extract error = %v", err)
	}
}
