package scraper

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
)

// leafBand is how many of the largest numeric leaves the fallback keeps
// before taking the median.
const leafBand = 30

// EmbeddedJSONExtractor pulls a price out of a JSON state blob embedded in the
// page, such as a Next.js __NEXT_DATA__ script or a window.* assignment.
type EmbeddedJSONExtractor struct {
	mu       sync.Mutex
	patterns map[string]*regexp.Regexp
}

// NewEmbeddedJSONExtractor returns an extractor whose per-source behavior
// comes from the SourceConfig passed to Extract.
func NewEmbeddedJSONExtractor() *EmbeddedJSONExtractor {
	return &EmbeddedJSONExtractor{patterns: make(map[string]*regexp.Regexp)}
}

// pattern compiles expr once per extractor. Expressions are built from
// source configs, so the set stays small.
func (e *EmbeddedJSONExtractor) pattern(expr string) *regexp.Regexp {
	e.mu.Lock()
	defer e.mu.Unlock()
	if re, ok := e.patterns[expr]; ok {
		return re
	}
	if e.patterns == nil {
		e.patterns = make(map[string]*regexp.Regexp)
	}
	re := regexp.MustCompile(expr)
	e.patterns[expr] = re
	return re
}

// Extract locates the configured block, decodes it and searches it for a
// price. Missing block, undecodable block and priceless block are distinct
// failures.
func (e *EmbeddedJSONExtractor) Extract(htmlContent string, src SourceConfig) (decimal.Decimal, error) {
	raw, err := e.locateBlock(htmlContent, src.Block)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", src.Name, err)
	}

	// A script-id block is the whole script body; an assignment is followed
	// by more statements.
	data, err := decodeOrdered(strings.NewReader(raw), src.Block.ScriptID != "")
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w: %v", src.Name, ErrMalformedJSON, err)
	}

	root := data
	if src.RootKey != "" {
		if obj, ok := data.(jsonObject); ok {
			if sub, ok := obj.Get(src.RootKey); ok {
				root = sub
			}
		}
	}

	if price, ok := e.searchPriceKeys(root, src.PriceKeys); ok {
		return price, nil
	}
	if price, ok := medianOfLargestLeaves(root, src.MinLeafValue); ok {
		return price, nil
	}
	return decimal.Zero, fmt.Errorf("%s: %w: no candidate values in embedded json", src.Name, ErrNoPriceFound)
}

// locateBlock tries a structured query first, then a raw pattern over the
// markup for pages the parser cannot reach into.
func (e *EmbeddedJSONExtractor) locateBlock(htmlContent string, loc BlockLocator) (string, error) {
	switch {
	case loc.ScriptID != "":
		if raw, ok := scriptByID(htmlContent, loc.ScriptID); ok {
			return raw, nil
		}
		pattern := e.pattern(`(?s)<script[^>]+id=["']?` + regexp.QuoteMeta(loc.ScriptID) + `["']?[^>]*>(.*?)</script>`)
		if m := pattern.FindStringSubmatch(htmlContent); m != nil && strings.TrimSpace(m[1]) != "" {
			return m[1], nil
		}
		return "", fmt.Errorf("%w: script#%s", ErrBlockNotFound, loc.ScriptID)

	case loc.Variable != "":
		quoted := regexp.QuoteMeta(loc.Variable)
		if raw, ok := scriptAssignment(htmlContent, e.pattern(quoted+`\s*=\s*\{`)); ok {
			return raw, nil
		}
		for _, pattern := range []*regexp.Regexp{
			e.pattern(`(?s)` + quoted + `\s*=\s*(\{.*?\});\s*</script>`),
			e.pattern(`(?s)` + quoted + `\s*=\s*(\{.*?\});`),
		} {
			if m := pattern.FindStringSubmatch(htmlContent); m != nil {
				return m[1], nil
			}
		}
		return "", fmt.Errorf("%w: %s assignment", ErrBlockNotFound, loc.Variable)
	}
	return "", fmt.Errorf("%w: no block locator configured", ErrBlockNotFound)
}

func scriptByID(htmlContent, id string) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return "", false
	}
	text := doc.Find(fmt.Sprintf("script[id=%q]", id)).First().Text()
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	return text, true
}

// scriptAssignment returns the text of the first script that assigns an
// object literal to the variable, starting at the opening brace. Guards such
// as "x === undefined" do not match.
func scriptAssignment(htmlContent string, assign *regexp.Regexp) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return "", false
	}

	var raw string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		loc := assign.FindStringIndex(text)
		if loc == nil {
			return true
		}
		raw = text[loc[1]-1:]
		return false
	})
	return raw, raw != ""
}

// searchPriceKeys matches each key, in priority order, over the serialized
// structure and returns the first strictly positive value. Objects serialize
// in written order, so the earliest occurrence in the page wins.
func (e *EmbeddedJSONExtractor) searchPriceKeys(root any, keys []string) (decimal.Decimal, bool) {
	if len(keys) == 0 {
		return decimal.Zero, false
	}
	blob, err := json.Marshal(root)
	if err != nil {
		return decimal.Zero, false
	}
	for _, key := range keys {
		pattern := e.pattern(`"` + regexp.QuoteMeta(key) + `"\s*:\s*"?(\d+(?:\.\d+)?)"?`)
		for _, m := range pattern.FindAllSubmatch(blob, -1) {
			value, err := decimal.NewFromString(string(m[1]))
			if err == nil && value.IsPositive() {
				return value, true
			}
		}
	}
	return decimal.Zero, false
}

// medianOfLargestLeaves is the statistical fallback: state objects carry many
// unrelated numbers (ids, counts, ratings), so drop those under the floor,
// keep the largest band and take its median.
func medianOfLargestLeaves(root any, floor decimal.Decimal) (decimal.Decimal, bool) {
	var values []decimal.Decimal
	for _, v := range numericLeaves(root) {
		if v.GreaterThanOrEqual(floor) && v.IsPositive() {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return decimal.Zero, false
	}

	sort.Slice(values, func(i, j int) bool { return values[i].LessThan(values[j]) })
	if len(values) > leafBand {
		values = values[len(values)-leafBand:]
	}
	return values[len(values)/2], true
}

func numericLeaves(v any) []decimal.Decimal {
	switch t := v.(type) {
	case jsonObject:
		var out []decimal.Decimal
		for _, m := range t {
			out = append(out, numericLeaves(m.Value)...)
		}
		return out
	case []any:
		var out []decimal.Decimal
		for _, child := range t {
			out = append(out, numericLeaves(child)...)
		}
		return out
	case json.Number:
		if d, err := decimal.NewFromString(t.String()); err == nil {
			return []decimal.Decimal{d}
		}
	}
	return nil
}
