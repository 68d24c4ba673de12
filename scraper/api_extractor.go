package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultMarketplaceAPIBase = "https://api.umarket.uz/api/v2/product/"
	DefaultGameMarketAPIURL   = "https://steamcommunity.com/market/priceoverview/"
	DefaultRequestTimeout     = 30 * time.Second
	maxAPIBodyBytes           = 4 << 20
)

var (
	productIDPattern = regexp.MustCompile(`-(\d+)(?:\?|$)`)

	// DefaultMarketplaceKeys is the depth-first key priority for the
	// authenticated marketplace API.
	DefaultMarketplaceKeys = []string{"price", "salePrice", "discountPrice", "actualPrice", "fullPrice", "finalPrice", "sellPrice"}
)

// MarketplaceCredentials are the secrets the authenticated marketplace API needs.
type MarketplaceCredentials struct {
	Token          string
	InstallationID string
	Language       string
	Region         string
}

// Valid reports whether the required secrets are present.
func (c MarketplaceCredentials) Valid() bool {
	return strings.TrimSpace(c.Token) != "" && strings.TrimSpace(c.InstallationID) != ""
}

// MarketplaceAPIExtractor reads product prices from a bearer-authenticated
// REST endpoint.
type MarketplaceAPIExtractor struct {
	baseURL   string
	creds     MarketplaceCredentials
	keys      []string
	userAgent string
	client    *http.Client
}

// NewMarketplaceAPIExtractor creates the extractor. An empty baseURL uses
// DefaultMarketplaceAPIBase; a nil client gets DefaultRequestTimeout.
func NewMarketplaceAPIExtractor(baseURL string, creds MarketplaceCredentials, client *http.Client) *MarketplaceAPIExtractor {
	if baseURL == "" {
		baseURL = DefaultMarketplaceAPIBase
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	if client == nil {
		client = &http.Client{Timeout: DefaultRequestTimeout}
	}
	if creds.Language == "" {
		creds.Language = "uz-UZ"
	}
	return &MarketplaceAPIExtractor{
		baseURL:   baseURL,
		creds:     creds,
		keys:      DefaultMarketplaceKeys,
		userAgent: DefaultUserAgent,
		client:    client,
	}
}

// Configured reports whether credentials are available.
func (m *MarketplaceAPIExtractor) Configured() bool {
	return m.creds.Valid()
}

// ProductIDFromURL pulls the trailing "-<digits>" segment that ends the path
// or precedes the query, e.g. ".../some-product-1761000?skuId=1".
func ProductIDFromURL(rawURL string) (string, error) {
	m := productIDPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return "", fmt.Errorf("%w: no product id in %q", ErrInvalidURLShape, rawURL)
	}
	return m[1], nil
}

// Extract issues one GET for the product behind rawURL.
func (m *MarketplaceAPIExtractor) Extract(ctx context.Context, rawURL string) (decimal.Decimal, error) {
	productID, err := ProductIDFromURL(rawURL)
	if err != nil {
		return decimal.Zero, err
	}
	if !m.creds.Valid() {
		return decimal.Zero, fmt.Errorf("%w: marketplace token and installation id are required", ErrMissingCredentials)
	}

	apiURL := m.baseURL + productID
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return decimal.Zero, &RequestError{URL: apiURL, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", m.creds.Language)
	req.Header.Set("User-Agent", m.userAgent)
	req.Header.Set("Authorization", "Bearer "+m.creds.Token)
	req.Header.Set("X-Iid", m.creds.InstallationID)
	if m.creds.Region != "" {
		req.Header.Set("X-Region", m.creds.Region)
	}

	var payload any
	err = doRequest(m.client, req, func(body io.Reader) error {
		var err error
		payload, err = decodeOrdered(body, false)
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}

	price, ok := deepFindPrice(payload, m.keys)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: marketplace api response for product %s", ErrNoPriceFound, productID)
	}
	return price, nil
}

// deepFindPrice checks every priority key on an object before descending
// into its children, which are visited in the order the response lists them.
func deepFindPrice(v any, keys []string) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case jsonObject:
		for _, k := range keys {
			value, _ := t.Get(k)
			n, ok := value.(json.Number)
			if !ok {
				continue
			}
			if d, err := decimal.NewFromString(n.String()); err == nil && d.IsPositive() {
				return d, true
			}
		}
		for _, m := range t {
			if d, ok := deepFindPrice(m.Value, keys); ok {
				return d, true
			}
		}
	case []any:
		for _, item := range t {
			if d, ok := deepFindPrice(item, keys); ok {
				return d, true
			}
		}
	}
	return decimal.Zero, false
}

// GameMarketItem is the identity encoded in a steam://market/<appid>/<name> URL.
type GameMarketItem struct {
	AppID    int
	HashName string
}

// URL renders the synthetic tracking URL for the item.
func (g GameMarketItem) URL() string {
	return fmt.Sprintf("%s://market/%d/%s", GameMarketScheme, g.AppID, g.HashName)
}

// ParseGameMarketURL parses the synthetic scheme. Anything other than
// <scheme>://market/<positive appid>/<non-empty name> is rejected before any
// network call.
func ParseGameMarketURL(rawURL string) (GameMarketItem, error) {
	prefix := GameMarketScheme + "://market/"
	trimmed := strings.TrimSpace(rawURL)
	if !strings.HasPrefix(strings.ToLower(trimmed), prefix) {
		return GameMarketItem{}, fmt.Errorf("%w: %q is not a %s market url", ErrInvalidURLShape, rawURL, GameMarketScheme)
	}

	appPart, name, ok := strings.Cut(trimmed[len(prefix):], "/")
	if !ok || strings.TrimSpace(name) == "" {
		return GameMarketItem{}, fmt.Errorf("%w: %q lacks a market hash name", ErrInvalidURLShape, rawURL)
	}
	appID, err := strconv.Atoi(appPart)
	if err != nil || appID <= 0 {
		return GameMarketItem{}, fmt.Errorf("%w: %q has invalid appid %q", ErrInvalidURLShape, rawURL, appPart)
	}
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	return GameMarketItem{AppID: appID, HashName: name}, nil
}

// GameMarketAPIExtractor reads the lowest (or median) listing price from the
// unauthenticated price overview endpoint.
type GameMarketAPIExtractor struct {
	endpoint  string
	currency  int
	userAgent string
	client    *http.Client
}

// NewGameMarketAPIExtractor creates the extractor. currency is the market's
// numeric currency code (1 is USD).
func NewGameMarketAPIExtractor(endpoint string, currency int, client *http.Client) *GameMarketAPIExtractor {
	if endpoint == "" {
		endpoint = DefaultGameMarketAPIURL
	}
	if currency <= 0 {
		currency = 1
	}
	if client == nil {
		client = &http.Client{Timeout: DefaultRequestTimeout}
	}
	return &GameMarketAPIExtractor{
		endpoint:  endpoint,
		currency:  currency,
		userAgent: DefaultUserAgent,
		client:    client,
	}
}

type priceOverview struct {
	Success     bool   `json:"success"`
	LowestPrice string `json:"lowest_price"`
	MedianPrice string `json:"median_price"`
}

// Extract fetches the price overview for item.
func (g *GameMarketAPIExtractor) Extract(ctx context.Context, item GameMarketItem) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("appid", strconv.Itoa(item.AppID))
	params.Set("currency", strconv.Itoa(g.currency))
	params.Set("market_hash_name", item.HashName)
	apiURL := g.endpoint + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return decimal.Zero, &RequestError{URL: apiURL, Err: err}
	}
	req.Header.Set("User-Agent", g.userAgent)
	req.Header.Set("Accept", "application/json,text/plain,*/*")

	var overview priceOverview
	if err := doJSON(g.client, req, &overview); err != nil {
		return decimal.Zero, err
	}
	if !overview.Success {
		return decimal.Zero, &RequestError{URL: apiURL, Status: http.StatusOK, Err: errors.New("market reported success=false")}
	}

	text := overview.LowestPrice
	if text == "" {
		text = overview.MedianPrice
	}
	if text == "" {
		return decimal.Zero, fmt.Errorf("%w: no lowest or median price for %q", ErrNoPriceFound, item.HashName)
	}

	price, err := ParseLocaleNumber(text)
	if err != nil {
		return decimal.Zero, err
	}
	return price, nil
}

// doJSON executes req and decodes a 2xx JSON body into dst. Numbers decode as
// json.Number so prices keep their exact text.
func doJSON(client *http.Client, req *http.Request, dst any) error {
	return doRequest(client, req, func(body io.Reader) error {
		dec := json.NewDecoder(body)
		dec.UseNumber()
		return dec.Decode(dst)
	})
}

// doRequest executes req and hands a 2xx body to decode. Transport errors,
// other statuses and decode failures all come back as *RequestError.
func doRequest(client *http.Client, req *http.Request, decode func(io.Reader) error) error {
	resp, err := client.Do(req)
	if err != nil {
		return &RequestError{URL: req.URL.String(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &RequestError{
			URL:    req.URL.String(),
			Status: resp.StatusCode,
			Err:    fmt.Errorf("unexpected status: %s", strings.TrimSpace(string(snippet))),
		}
	}

	if err := decode(io.LimitReader(resp.Body, maxAPIBodyBytes)); err != nil {
		return &RequestError{URL: req.URL.String(), Status: resp.StatusCode, Err: fmt.Errorf("decode body: %w", err)}
	}
	return nil
}
