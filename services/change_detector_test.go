package services

import (
	"reflect"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"pricewatch/models"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func some(v int64) decimal.NullDecimal { return decimal.NewNullDecimal(d(v)) }

var none = decimal.NullDecimal{}

func TestDecide(t *testing.T) {
	tests := []struct {
		name    string
		price   decimal.Decimal
		last    decimal.NullDecimal
		target  decimal.NullDecimal
		anyDrop bool
		notify  bool
		reasons []string
	}{
		{"target rule", d(90), some(100), some(95), false, true, []string{models.ReasonTargetReached}},
		{"drop rule", d(90), some(100), none, true, true, []string{models.ReasonPriceDropped}},
		{"no prior price", d(90), none, none, true, false, nil},
		{"price rose above target", d(110), some(100), some(95), true, false, nil},
		{"both rules", d(90), some(100), some(95), true, true, []string{models.ReasonTargetReached, models.ReasonPriceDropped}},
		{"equal to target", d(95), some(95), some(95), true, true, []string{models.ReasonTargetReached}},
		{"unchanged price", d(100), some(100), none, true, false, nil},
		{"drop without flag", d(90), some(100), none, false, false, nil},
		{"first observation under target", d(50), none, some(95), false, true, []string{models.ReasonTargetReached}},
		{"zero price never notifies", decimal.Zero, some(100), some(95), true, false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(tt.price, tt.last, tt.target, tt.anyDrop)
			if got.ShouldNotify != tt.notify {
				t.Errorf("ShouldNotify = %v, want %v", got.ShouldNotify, tt.notify)
			}
			if !reflect.DeepEqual(got.Reasons, tt.reasons) {
				t.Errorf("Reasons = %v, want %v", got.Reasons, tt.reasons)
			}
			if !got.NewPrice.Equal(tt.price) || got.LastPrice != tt.last || got.Target != tt.target {
				t.Errorf("decision does not echo its inputs: %+v", got)
			}
		})
	}
}

func TestComposeAlert(t *testing.T) {
	item := models.TrackedItem{Name: "Kettle", URL: "https://shop.example.com/kettle"}

	title, msg := ComposeAlert(item, Decide(d(90), some(100), none, true), "USD")
	if title != AlertTitle {
		t.Errorf("title = %q", title)
	}
	want := "Kettle\nNow: 90 USD\nPrev: 100 USD\nTarget: N/A\nhttps://shop.example.com/kettle"
	if msg != want {
		t.Errorf("message =\n%s\nwant\n%s", msg, want)
	}

	_, msg = ComposeAlert(item, Decide(decimal.RequireFromString("12.5"), none, some(20), false), "")
	if !strings.Contains(msg, "Now: 12.50\n") || !strings.Contains(msg, "Prev: N/A\n") || !strings.Contains(msg, "Target: 20\n") {
		t.Errorf("unexpected message %q", msg)
	}
}
