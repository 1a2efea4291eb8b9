// Package source abstracts the external listing feeds. Each configured
// source carries a type tag plus a typed config payload; ForSource picks the
// matching fetcher. Source-specific extraction stays behind the Fetcher
// interface so the pipeline never sees feed formats.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"immofeed/internal/models"
)

// Source type tags understood by ForSource.
const (
	TypeJSONAPI = "json_api"
	TypeHTML    = "html"
)

// RawRecord is one unparsed listing as delivered by a feed. Fields are raw
// strings; the pipeline's normalize stage parses and validates them.
type RawRecord struct {
	Title   string          `json:"title"`
	Price   string          `json:"price"`
	City    string          `json:"city"`
	Surface string          `json:"surface,omitempty"`
	URL     string          `json:"url,omitempty"`
	Raw     json.RawMessage `json:"-"`
}

// Fetcher retrieves the raw records of one source.
type Fetcher interface {
	FetchRaw(ctx context.Context) ([]RawRecord, error)
}

// TransientError marks a fetch failure worth retrying (network faults,
// HTTP 429/5xx). Anything else is permanent for the current attempt loop.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient fetch error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

func transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err (or anything it wraps) is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// ForSource builds the fetcher matching the source's type tag, decoding the
// jsonb fetch config into the variant's typed payload.
func ForSource(src *models.Source, client *http.Client, userAgent string) (Fetcher, error) {
	if src == nil {
		return nil, errors.New("nil source")
	}
	if client == nil {
		client = http.DefaultClient
	}
	switch src.SourceType {
	case TypeJSONAPI:
		var cfg JSONAPIConfig
		if len(src.FetchCfg) > 0 {
			if err := json.Unmarshal(src.FetchCfg, &cfg); err != nil {
				return nil, fmt.Errorf("source %q: decode json_api config: %w", src.Name, err)
			}
		}
		return &JSONAPIFetcher{Endpoint: src.Endpoint, Config: cfg, Client: client, UserAgent: userAgent}, nil
	case TypeHTML:
		var cfg HTMLConfig
		if len(src.FetchCfg) > 0 {
			if err := json.Unmarshal(src.FetchCfg, &cfg); err != nil {
				return nil, fmt.Errorf("source %q: decode html config: %w", src.Name, err)
			}
		}
		if cfg.ItemSelector == "" {
			return nil, fmt.Errorf("source %q: html config missing item_selector", src.Name)
		}
		return &HTMLFetcher{Endpoint: src.Endpoint, Config: cfg, Client: client, UserAgent: userAgent}, nil
	default:
		return nil, fmt.Errorf("source %q: unsupported source type %q", src.Name, src.SourceType)
	}
}

func classifyStatus(status int) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusTooManyRequests || status >= 500:
		return transient(fmt.Errorf("status code %d", status))
	default:
		return fmt.Errorf("status code %d", status)
	}
}
