package scraper

import (
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

// ExtractorKind names the extraction strategy chosen for a tracked URL.
type ExtractorKind string

const (
	KindGameMarketAPI  ExtractorKind = "game_market_api"
	KindMarketplaceAPI ExtractorKind = "marketplace_api"
	KindEmbeddedJSON   ExtractorKind = "embedded_json"
	KindGenericHTML    ExtractorKind = "generic_html"
)

// GameMarketScheme is the synthetic scheme for game-item market identities:
// steam://market/<appid>/<market-hash-name>.
const GameMarketScheme = "steam"

// BlockLocator says where a source keeps its embedded JSON payload. Exactly
// one of ScriptID or Variable is set.
type BlockLocator struct {
	// ScriptID is the id attribute of a <script> element holding pure JSON.
	ScriptID string
	// Variable is a global assignment such as "window.runParams".
	Variable string
}

// SourceConfig is the data record describing one structured source. Adding a
// source means adding one of these, not new control flow.
type SourceConfig struct {
	Name string
	// HostContains is matched against the lower-cased URL host.
	HostContains string
	Kind         ExtractorKind
	Block        BlockLocator
	// RootKey, when set and present, narrows the key search to that subtree.
	RootKey string
	// PriceKeys are searched in priority order.
	PriceKeys []string
	// MinLeafValue rejects flags, counts and indices in the numeric-leaf fallback.
	MinLeafValue decimal.Decimal
	// Render asks for headless rendering instead of a plain fetch.
	Render bool
	// PreferAPI runs the authenticated marketplace API before fetching HTML.
	PreferAPI bool
}

// DefaultSources is the dispatch table consulted by Classify, in order.
var DefaultSources = []SourceConfig{
	{
		Name:         "uzum",
		HostContains: "uzum.uz",
		Kind:         KindEmbeddedJSON,
		Block:        BlockLocator{ScriptID: "__NEXT_DATA__"},
		PriceKeys:    []string{"price", "salePrice", "discountPrice", "actualPrice", "fullPrice"},
		MinLeafValue: decimal.NewFromInt(100),
		Render:       true,
		PreferAPI:    true,
	},
	{
		Name:         "aliexpress",
		HostContains: "aliexpress.",
		Kind:         KindEmbeddedJSON,
		Block:        BlockLocator{Variable: "window.runParams"},
		RootKey:      "data",
		PriceKeys:    []string{"minActivityAmount", "minAmount", "maxAmount", "salePrice", "price"},
		MinLeafValue: decimal.NewFromInt(1),
	},
}

// Classifier selects an extraction strategy for a URL.
type Classifier struct {
	sources []SourceConfig
}

// NewClassifier returns a classifier over the given sources; nil means DefaultSources.
func NewClassifier(sources []SourceConfig) *Classifier {
	if sources == nil {
		sources = DefaultSources
	}
	return &Classifier{sources: sources}
}

// Classify returns the extractor kind and, for structured sources, the
// matching source config. It never fails: unknown or unparsable hosts fall
// through to the generic HTML extractor.
func (c *Classifier) Classify(rawURL string) (ExtractorKind, *SourceConfig) {
	if IsGameMarketURL(rawURL) {
		return KindGameMarketAPI, nil
	}

	host := hostOf(rawURL)
	if host != "" {
		for i := range c.sources {
			src := &c.sources[i]
			if src.HostContains != "" && strings.Contains(host, src.HostContains) {
				return src.Kind, src
			}
		}
	}
	return KindGenericHTML, nil
}

// Classify uses the default dispatch table.
func Classify(rawURL string) ExtractorKind {
	kind, _ := NewClassifier(nil).Classify(rawURL)
	return kind
}

// IsGameMarketURL reports whether rawURL uses the synthetic game-market scheme.
func IsGameMarketURL(rawURL string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(rawURL)), GameMarketScheme+"://")
}

func hostOf(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
