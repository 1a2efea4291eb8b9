package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

// JSONAPIConfig is the typed payload for json_api sources.
type JSONAPIConfig struct {
	Headers map[string]string `json:"headers,omitempty"`
	// RecordsKey names the array field in the response envelope. When empty
	// the fetcher accepts either a bare array or a "listings" envelope.
	RecordsKey string `json:"records_key,omitempty"`
}

// JSONAPIFetcher pulls listings from a JSON feed endpoint.
type JSONAPIFetcher struct {
	Endpoint  string
	Config    JSONAPIConfig
	Client    *http.Client
	UserAgent string
}

type jsonRecord struct {
	Title   string          `json:"title"`
	Price   json.RawMessage `json:"price"`
	City    string          `json:"city"`
	Surface json.RawMessage `json:"surface"`
	URL     string          `json:"url"`
}

func (f *JSONAPIFetcher) FetchRaw(ctx context.Context) ([]RawRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.Endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}
	for k, v := range f.Config.Headers {
		req.Header.Set(k, v)
	}

	res, err := f.Client.Do(req)
	if err != nil {
		return nil, transient(err)
	}
	defer res.Body.Close()

	if err := classifyStatus(res.StatusCode); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, transient(err)
	}

	raws, err := extractRecords(body, f.Config.RecordsKey)
	if err != nil {
		return nil, fmt.Errorf("decode feed payload: %w", err)
	}

	out := make([]RawRecord, 0, len(raws))
	for _, raw := range raws {
		var rec jsonRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			// Keep the record; normalize counts it as errored.
			out = append(out, RawRecord{Raw: raw})
			continue
		}
		out = append(out, RawRecord{
			Title:   rec.Title,
			Price:   scalarString(rec.Price),
			City:    rec.City,
			Surface: scalarString(rec.Surface),
			URL:     rec.URL,
			Raw:     raw,
		})
	}
	return out, nil
}

// extractRecords accepts a bare array or an envelope object holding one.
func extractRecords(body []byte, key string) ([]json.RawMessage, error) {
	var list []json.RawMessage
	if err := json.Unmarshal(body, &list); err == nil {
		return list, nil
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}
	if key == "" {
		key = "listings"
	}
	inner, ok := envelope[key]
	if !ok {
		return nil, fmt.Errorf("envelope has no %q field", key)
	}
	if err := json.Unmarshal(inner, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// scalarString renders a JSON number or string value as its literal text.
func scalarString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return string(raw)
}
