package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"pricewatch/models"
)

// Engine turns a tracked URL into one canonical price. It classifies the URL,
// obtains the raw content the chosen extractor needs and runs it.
type Engine struct {
	classifier  *Classifier
	generic     *GenericExtractor
	embedded    *EmbeddedJSONExtractor
	bots        *BotDetector
	marketplace *MarketplaceAPIExtractor
	gameMarket  *GameMarketAPIExtractor
	pages       ContentSource
	browser     ContentSource
	logger      *slog.Logger
	now         func() time.Time
}

// EngineDeps are the collaborators an Engine needs. Browser may be nil, in
// which case render requests fall back to the plain page source.
type EngineDeps struct {
	Classifier  *Classifier
	Marketplace *MarketplaceAPIExtractor
	GameMarket  *GameMarketAPIExtractor
	Pages       ContentSource
	Browser     ContentSource
	Logger      *slog.Logger
}

// NewEngine wires an Engine. Nil extractors get their defaults.
func NewEngine(deps EngineDeps) *Engine {
	if deps.Classifier == nil {
		deps.Classifier = NewClassifier(nil)
	}
	if deps.Marketplace == nil {
		deps.Marketplace = NewMarketplaceAPIExtractor("", MarketplaceCredentials{}, nil)
	}
	if deps.GameMarket == nil {
		deps.GameMarket = NewGameMarketAPIExtractor("", 0, nil)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Engine{
		classifier:  deps.Classifier,
		generic:     NewGenericExtractor(),
		bots:        NewBotDetector(),
		embedded:    NewEmbeddedJSONExtractor(),
		marketplace: deps.Marketplace,
		gameMarket:  deps.GameMarket,
		pages:       deps.Pages,
		browser:     deps.Browser,
		logger:      deps.Logger.With(slog.String("component", "extraction_engine")),
		now:         time.Now,
	}
}

// Extract produces an observation for rawURL. render forces headless
// rendering for page-based sources.
func (e *Engine) Extract(ctx context.Context, rawURL string, render bool) (models.PriceObservation, ExtractorKind, error) {
	kind, src := e.classifier.Classify(rawURL)

	var (
		price decimal.Decimal
		err   error
	)
	switch kind {
	case KindGameMarketAPI:
		var item GameMarketItem
		item, err = ParseGameMarketURL(rawURL)
		if err == nil {
			price, err = e.gameMarket.Extract(ctx, item)
		}

	case KindEmbeddedJSON, KindMarketplaceAPI:
		price, kind, err = e.extractStructured(ctx, rawURL, src, render)

	default:
		var page string
		page, err = e.fetch(ctx, rawURL, render)
		if err == nil {
			price, err = e.generic.Extract(page)
			err = e.bots.Annotate(err, page)
		}
	}
	if err != nil {
		return models.PriceObservation{}, kind, err
	}
	return e.observe(price, kind)
}

// ExtractHTML runs the page-based extractor for rawURL over already fetched
// content. It performs no I/O.
func (e *Engine) ExtractHTML(rawURL, htmlContent string) (models.PriceObservation, ExtractorKind, error) {
	kind, src := e.classifier.Classify(rawURL)

	var (
		price decimal.Decimal
		err   error
	)
	switch {
	case kind == KindGameMarketAPI:
		return models.PriceObservation{}, kind, fmt.Errorf("%w: %s items are priced through their api, not html", ErrInvalidURLShape, GameMarketScheme)
	case src != nil:
		kind = KindEmbeddedJSON
		price, err = e.embedded.Extract(htmlContent, *src)
	default:
		price, err = e.generic.Extract(htmlContent)
	}
	if err != nil {
		return models.PriceObservation{}, kind, err
	}
	return e.observe(price, kind)
}

// extractStructured runs a structured source's chain: the authenticated API
// when preferred and configured, then the embedded state blob. The last
// failure is returned when every step fails.
func (e *Engine) extractStructured(ctx context.Context, rawURL string, src *SourceConfig, render bool) (decimal.Decimal, ExtractorKind, error) {
	if src.PreferAPI {
		if e.marketplace.Configured() {
			price, err := e.marketplace.Extract(ctx, rawURL)
			if err == nil {
				return price, KindMarketplaceAPI, nil
			}
			if ctx.Err() != nil {
				return decimal.Zero, KindMarketplaceAPI, err
			}
			e.logger.Warn("marketplace api failed, falling back to page data",
				slog.String("source", src.Name),
				slog.String("url", rawURL),
				slog.String("error", err.Error()))
		} else {
			e.logger.Debug("marketplace api skipped, no credentials", slog.String("source", src.Name))
		}
	}

	page, err := e.fetch(ctx, rawURL, render || src.Render)
	if err != nil {
		return decimal.Zero, KindEmbeddedJSON, err
	}
	price, err := e.embedded.Extract(page, *src)
	return price, KindEmbeddedJSON, e.bots.Annotate(err, page)
}

func (e *Engine) fetch(ctx context.Context, rawURL string, render bool) (string, error) {
	source := e.pages
	if render && e.browser != nil {
		source = e.browser
	}
	if source == nil {
		return "", &RequestError{URL: rawURL, Err: errors.New("no content source configured")}
	}
	return source.Fetch(ctx, rawURL)
}

// observe enforces the positive-price invariant on every extractor's result.
func (e *Engine) observe(price decimal.Decimal, kind ExtractorKind) (models.PriceObservation, ExtractorKind, error) {
	if !price.IsPositive() {
		return models.PriceObservation{}, kind, fmt.Errorf("%w: extracted non-positive value %s", ErrNoPriceFound, price.String())
	}
	return models.PriceObservation{Price: price, ObservedAt: e.now()}, kind, nil
}
