package scraper

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
	"golang.org/x/net/html"
)

const maxPriceCandidates = 30

var (
	// metaPriceProperties are checked in order.
	metaPriceProperties = []string{"product:price:amount", "og:price:amount"}

	priceCandidateSelector = "[class*='price'], [id*='price'], [data-testid*='price'], [data-test*='price']"

	minCandidatePrice = decimal.NewFromInt(1)
)

// priceStrategy is one fallible lookup in the generic chain.
type priceStrategy struct {
	name string
	find func(doc *goquery.Document) (decimal.Decimal, bool)
}

// GenericExtractor finds a price in arbitrary markup.
type GenericExtractor struct {
	strategies []priceStrategy
}

// NewGenericExtractor builds the ordered strategy chain: meta tags, microdata,
// price-named elements, then whole-page text.
func NewGenericExtractor() *GenericExtractor {
	return &GenericExtractor{
		strategies: []priceStrategy{
			{name: "meta", find: findMetaPrice},
			{name: "microdata", find: findMicrodataPrice},
			{name: "price_elements", find: findPriceElement},
			{name: "page_text", find: findLargestTextNumber},
		},
	}
}

// Extract returns the first price any strategy produces.
func (g *GenericExtractor) Extract(htmlContent string) (decimal.Decimal, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: parse html: %v", ErrNoPriceFound, err)
	}

	for _, s := range g.strategies {
		if price, ok := s.find(doc); ok {
			return price, nil
		}
	}
	return decimal.Zero, fmt.Errorf("%w: all html strategies exhausted", ErrNoPriceFound)
}

func findMetaPrice(doc *goquery.Document) (decimal.Decimal, bool) {
	for _, prop := range metaPriceProperties {
		content, ok := doc.Find(fmt.Sprintf("meta[property=%q]", prop)).First().Attr("content")
		if !ok || strings.TrimSpace(content) == "" {
			continue
		}
		if price, err := ParseLocaleNumber(content); err == nil && price.IsPositive() {
			return price, true
		}
	}
	return decimal.Zero, false
}

func findMicrodataPrice(doc *goquery.Document) (decimal.Decimal, bool) {
	tag := doc.Find("[itemprop='price']").First()
	if tag.Length() == 0 {
		return decimal.Zero, false
	}
	if content, ok := tag.Attr("content"); ok && strings.TrimSpace(content) != "" {
		price, err := ParseLocaleNumber(content)
		return price, err == nil && price.IsPositive()
	}
	price, ok := FirstNumber(visibleText(tag))
	return price, ok && price.IsPositive()
}

func findPriceElement(doc *goquery.Document) (decimal.Decimal, bool) {
	var (
		found decimal.Decimal
		ok    bool
	)
	doc.Find(priceCandidateSelector).EachWithBreak(func(i int, s *goquery.Selection) bool {
		if i >= maxPriceCandidates {
			return false
		}
		price, parsed := FirstNumber(visibleText(s))
		if parsed && price.GreaterThanOrEqual(minCandidatePrice) {
			found, ok = price, true
			return false
		}
		return true
	})
	return found, ok
}

// findLargestTextNumber scans the whole page. Free text is noisy with small
// numbers (quantities, ratings), so the largest value is the best guess.
func findLargestTextNumber(doc *goquery.Document) (decimal.Decimal, bool) {
	var (
		best  decimal.Decimal
		found bool
	)
	for _, v := range AllNumbers(visibleText(doc.Selection)) {
		if v.LessThan(minCandidatePrice) {
			continue
		}
		if !found || v.GreaterThan(best) {
			best, found = v, true
		}
	}
	return best, found
}

// visibleText joins the trimmed text nodes under s with single spaces,
// skipping script-like elements.
func visibleText(s *goquery.Selection) string {
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
			return
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript", "template":
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range s.Nodes {
		walk(n)
	}
	return strings.Join(parts, " ")
}
