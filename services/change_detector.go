package services

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"pricewatch/models"
	"pricewatch/scraper"
)

// AlertTitle heads every price alert.
const AlertTitle = "📉 Price alert!"

// Decide reports whether newPrice warrants an alert given the previous price,
// the optional target and the any-drop flag. Both rules are evaluated; either
// one is enough. A first observation can only alert through the target rule.
func Decide(newPrice decimal.Decimal, lastPrice, target decimal.NullDecimal, notifyOnAnyDrop bool) models.ChangeDecision {
	d := models.ChangeDecision{
		NewPrice:  newPrice,
		LastPrice: lastPrice,
		Target:    target,
	}
	if !newPrice.IsPositive() {
		return d
	}

	if target.Valid && newPrice.LessThanOrEqual(target.Decimal) {
		d.Reasons = append(d.Reasons, models.ReasonTargetReached)
	}
	if notifyOnAnyDrop && lastPrice.Valid && newPrice.LessThan(lastPrice.Decimal) {
		d.Reasons = append(d.Reasons, models.ReasonPriceDropped)
	}
	d.ShouldNotify = len(d.Reasons) > 0
	return d
}

// ComposeAlert renders the alert body for item:
//
//	<name>
//	Now: <price> <currency>
//	Prev: <price> <currency> | N/A
//	Target: <price> <currency> | N/A
//	<url>
func ComposeAlert(item models.TrackedItem, d models.ChangeDecision, currency string) (title, message string) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", item.DisplayName())
	fmt.Fprintf(&b, "Now: %s\n", withCurrency(scraper.FormatPrice(d.NewPrice), currency))
	fmt.Fprintf(&b, "Prev: %s\n", optionalPrice(d.LastPrice, currency))
	fmt.Fprintf(&b, "Target: %s\n", optionalPrice(d.Target, currency))
	b.WriteString(item.URL)
	return AlertTitle, b.String()
}

func optionalPrice(p decimal.NullDecimal, currency string) string {
	if !p.Valid {
		return "N/A"
	}
	return withCurrency(scraper.FormatPrice(p.Decimal), currency)
}

func withCurrency(price, currency string) string {
	if currency == "" {
		return price
	}
	return price + " " + currency
}
