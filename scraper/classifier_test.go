package scraper

import (
	"errors"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		url    string
		want   ExtractorKind
		source string
	}{
		{"steam://market/730/AK-47%20%7C%20Redline%20(Field-Tested)", KindGameMarketAPI, ""},
		{"STEAM://market/570/Dragonclaw Hook", KindGameMarketAPI, ""},
		{"https://uzum.uz/ru/product/smartfon-apple-iphone-15-1761000?skuId=4242", KindEmbeddedJSON, "uzum"},
		{"https://www.aliexpress.com/item/1005006.html", KindEmbeddedJSON, "aliexpress"},
		{"https://aliexpress.ru/item/1005006.html", KindEmbeddedJSON, "aliexpress"},
		{"https://shop.example.com/p/kettle", KindGenericHTML, ""},
		{"http://localhost:8080/item", KindGenericHTML, ""},
		{"not a url at all", KindGenericHTML, ""},
		{"", KindGenericHTML, ""},
	}

	c := NewClassifier(nil)
	for _, tt := range tests {
		kind, src := c.Classify(tt.url)
		if kind != tt.want {
			t.Errorf("Classify(%q) = %s, want %s", tt.url, kind, tt.want)
		}
		switch {
		case tt.source == "" && src != nil:
			t.Errorf("Classify(%q) returned source %q, want none", tt.url, src.Name)
		case tt.source != "" && (src == nil || src.Name != tt.source):
			t.Errorf("Classify(%q) source = %v, want %q", tt.url, src, tt.source)
		}
	}
}

func TestClassifyGameMarketNeverGeneric(t *testing.T) {
	for _, u := range []string{
		"steam://market/730/x",
		"steam://market/0/x",
		"steam://market/",
		"steam://anything",
	} {
		if got := Classify(u); got == KindGenericHTML {
			t.Errorf("Classify(%q) routed a game-market url to the generic extractor", u)
		}
	}
}

func TestClassifierCustomSources(t *testing.T) {
	c := NewClassifier([]SourceConfig{{Name: "shop", HostContains: "shop.test", Kind: KindEmbeddedJSON}})

	if kind, src := c.Classify("https://www.shop.test/a"); kind != KindEmbeddedJSON || src == nil || src.Name != "shop" {
		t.Errorf("custom source not matched: %s %v", kind, src)
	}
	if kind, _ := c.Classify("https://uzum.uz/ru/product/x-1"); kind != KindGenericHTML {
		t.Errorf("default sources leaked into a custom table: %s", kind)
	}
}

func TestParseGameMarketURL(t *testing.T) {
	item, err := ParseGameMarketURL("steam://market/730/AK-47%20%7C%20Redline%20(Field-Tested)")
	if err != nil {
		t.Fatalf("ParseGameMarketURL error: %v", err)
	}
	if item.AppID != 730 || item.HashName != "AK-47 | Redline (Field-Tested)" {
		t.Errorf("ParseGameMarketURL = %+v", item)
	}

	for _, bad := range []string{
		"https://steamcommunity.com/market/listings/730/x",
		"steam://market/",
		"steam://market/730",
		"steam://market/730/",
		"steam://market/abc/x",
		"steam://market/-1/x",
		"steam://market/0/x",
	} {
		if _, err := ParseGameMarketURL(bad); !errors.Is(err, ErrInvalidURLShape) {
			t.Errorf("ParseGameMarketURL(%q) error = %v, want ErrInvalidURLShape", bad, err)
		}
	}
}

func TestGameMarketItemURL(t *testing.T) {
	item := GameMarketItem{AppID: 570, HashName: "Dragonclaw Hook"}
	if got := item.URL(); got != "steam://market/570/Dragonclaw Hook" {
		t.Errorf("URL() = %q", got)
	}
	parsed, err := ParseGameMarketURL(item.URL())
	if err != nil || parsed != item {
		t.Errorf("ParseGameMarketURL(URL()) = %+v, %v", parsed, err)
	}
}

func TestProductIDFromURL(t *testing.T) {
	tests := map[string]string{
		"https://uzum.uz/ru/product/smartfon-1761000":            "1761000",
		"https://uzum.uz/ru/product/smartfon-1761000?skuId=4242": "1761000",
	}
	for in, want := range tests {
		got, err := ProductIDFromURL(in)
		if err != nil || got != want {
			t.Errorf("ProductIDFromURL(%q) = %q, %v; want %q", in, got, err, want)
		}
	}

	if _, err := ProductIDFromURL("https://uzum.uz/ru/product/smartfon"); !errors.Is(err, ErrInvalidURLShape) {
		t.Errorf("expected ErrInvalidURLShape, got %v", err)
	}
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrInvalidURLShape, "invalid_url_shape"},
		{&RequestError{URL: "u", Status: 503}, "request_failed"},
		{&RequestError{URL: "u", Err: errTimeout{}}, "timeout"},
		{errors.Join(errors.New("ctx"), ErrMalformedJSON), "malformed_json"},
		{errors.New("boom"), "unknown"},
	}
	for _, tt := range tests {
		if got := ErrorKind(tt.err); got != tt.want {
			t.Errorf("ErrorKind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

type errTimeout struct{}

func (errTimeout) Error() string { return "i/o timeout" }
func (errTimeout) Timeout() bool { return true }
