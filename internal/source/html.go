package source

import (
	"context"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTMLConfig is the typed payload for html sources: CSS selectors locating
// the listing cards and their fields.
type HTMLConfig struct {
	ItemSelector    string `json:"item_selector"`
	TitleSelector   string `json:"title_selector"`
	PriceSelector   string `json:"price_selector"`
	CitySelector    string `json:"city_selector"`
	SurfaceSelector string `json:"surface_selector,omitempty"`
	URLSelector     string `json:"url_selector,omitempty"`
}

// HTMLFetcher scrapes listing cards from an HTML page.
type HTMLFetcher struct {
	Endpoint  string
	Config    HTMLConfig
	Client    *http.Client
	UserAgent string
}

func (f *HTMLFetcher) FetchRaw(ctx context.Context) ([]RawRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.Endpoint, nil)
	if err != nil {
		return nil, err
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}

	res, err := f.Client.Do(req)
	if err != nil {
		return nil, transient(err)
	}
	defer res.Body.Close()

	if err := classifyStatus(res.StatusCode); err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(res.Body)
	if err != nil {
		return nil, err
	}

	var records []RawRecord
	doc.Find(f.Config.ItemSelector).Each(func(_ int, sel *goquery.Selection) {
		rec := RawRecord{
			Title:   text(sel, f.Config.TitleSelector),
			Price:   text(sel, f.Config.PriceSelector),
			City:    text(sel, f.Config.CitySelector),
			Surface: text(sel, f.Config.SurfaceSelector),
		}
		if f.Config.URLSelector != "" {
			if href, ok := sel.Find(f.Config.URLSelector).Attr("href"); ok {
				rec.URL = href
			}
		}
		records = append(records, rec)
	})
	return records, nil
}

func text(sel *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.TrimSpace(sel.Find(selector).Text())
}
