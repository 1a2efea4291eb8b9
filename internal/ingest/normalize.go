package ingest

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"immofeed/internal/source"
)

// canonical is the normalized attribute set of one record, ready for
// fingerprinting and persistence. Title, price and city are required; a
// record missing any of them is counted as errored and skipped.
type canonical struct {
	Title   string
	Price   decimal.Decimal
	City    string
	Surface *decimal.Decimal
	URL     string
}

func normalizeRecord(rec source.RawRecord) (canonical, error) {
	title := strings.TrimSpace(rec.Title)
	if title == "" {
		return canonical{}, fmt.Errorf("missing title")
	}
	city := strings.TrimSpace(rec.City)
	if city == "" {
		return canonical{}, fmt.Errorf("missing city")
	}

	price, err := parseAmount(rec.Price)
	if err != nil {
		return canonical{}, fmt.Errorf("price: %w", err)
	}
	if !price.IsPositive() {
		return canonical{}, fmt.Errorf("price %s is not positive", price)
	}

	out := canonical{
		Title: title,
		Price: price,
		City:  city,
		URL:   strings.TrimSpace(rec.URL),
	}

	if strings.TrimSpace(rec.Surface) != "" {
		surface, err := parseAmount(rec.Surface)
		if err != nil {
			return canonical{}, fmt.Errorf("surface: %w", err)
		}
		out.Surface = &surface
	}

	return out, nil
}

// parseAmount extracts a decimal from feed text that may carry currency
// symbols, unit suffixes and grouping spaces ("150 000,50 €", "85 m²").
// A single comma with no dot is read as the decimal separator; commas are
// otherwise treated as grouping and dropped.
func parseAmount(s string) (decimal.Decimal, error) {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' || r == '-' {
			b.WriteRune(r)
		}
	}
	clean := b.String()
	if clean == "" {
		return decimal.Decimal{}, fmt.Errorf("no numeric value in %q", s)
	}
	if strings.Count(clean, ",") == 1 && !strings.Contains(clean, ".") {
		clean = strings.Replace(clean, ",", ".", 1)
	} else {
		clean = strings.ReplaceAll(clean, ",", "")
	}
	return decimal.NewFromString(clean)
}
