package scraper

import (
	"fmt"
	"regexp"
	"strings"
)

// BotDetector recognises bot walls and CAPTCHA interstitials served in place
// of a product page. It only explains failures; it never rejects a page a
// price was extracted from.
type BotDetector struct {
	captchaPatterns []*regexp.Regexp
	wallPatterns    []*regexp.Regexp
}

// NewBotDetector creates a new bot detector
func NewBotDetector() *BotDetector {
	return &BotDetector{
		captchaPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(re|h)?captcha\b`),
			regexp.MustCompile(`(?i)cf-turnstile`),
			regexp.MustCompile(`(?i)verify (that )?you are (a )?human`),
			regexp.MustCompile(`(?i)select all images`),
		},
		wallPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)checking your browser`),
			regexp.MustCompile(`(?i)access denied`),
			regexp.MustCompile(`(?i)bot detected`),
			regexp.MustCompile(`(?i)ddos protection`),
			regexp.MustCompile(`(?i)too many requests`),
			regexp.MustCompile(`(?i)enable javascript and cookies to continue`),
		},
	}
}

// Detect returns the block type ("captcha" or "bot_wall") and the matched
// phrase, or empty strings for an ordinary page.
func (bd *BotDetector) Detect(pageContent string) (blockType, evidence string) {
	for _, p := range bd.captchaPatterns {
		if m := p.FindString(pageContent); m != "" {
			return "captcha", strings.ToLower(m)
		}
	}
	for _, p := range bd.wallPatterns {
		if m := p.FindString(pageContent); m != "" {
			return "bot_wall", strings.ToLower(m)
		}
	}
	return "", ""
}

// Annotate adds the block evidence to an extraction failure. The error keeps
// its taxonomy so errors.Is still matches the original cause.
func (bd *BotDetector) Annotate(err error, pageContent string) error {
	if err == nil {
		return nil
	}
	blockType, evidence := bd.Detect(pageContent)
	if blockType == "" {
		return err
	}
	return fmt.Errorf("%w (page looks like a %s: %q)", err, blockType, evidence)
}
