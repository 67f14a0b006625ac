// Package spreadsheet implements core.SpreadsheetAdapter against a
// Google-Sheets-shaped REST API: conditional range reads keyed by ETag,
// batch value updates, appends, and range clears (spec.md §4.2). No
// library in the retrieved corpus wraps this particular API, so the
// transport itself is net/http (see DESIGN.md); the resilience
// (rate limiting, circuit breaking, retry/backoff) wrapped around it
// comes entirely from the corpus.
package spreadsheet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sheetsync/sheetsync/internal/adapters/spreadsheet/breaker"
	"github.com/sheetsync/sheetsync/internal/adapters/spreadsheet/ratelimit"
	"github.com/sheetsync/sheetsync/internal/core"
	"github.com/sheetsync/sheetsync/internal/core/resilience"
)

// Adapter implements core.SpreadsheetAdapter over HTTP, with rate
// limiting, a circuit breaker, and retry-with-backoff composed around
// every call.
type Adapter struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
	limiter    *ratelimit.Limiter
	breaker    *breaker.Breaker
	retryPolicy *resilience.RetryPolicy
}

// Config configures an Adapter.
type Config struct {
	BaseURL           string
	APIKey            string
	RequestTimeout    time.Duration
	RequestsPerMinute int
	Burst             int
	BreakerThreshold  int
	BreakerCooldown   time.Duration
	MaxRetries        int
}

func New(config Config, onBreakerStateChange func(target, state string)) *Adapter {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 15 * time.Second
	}

	b := breaker.New("spreadsheet", breaker.Config{
		FailureThreshold: config.BreakerThreshold,
		Cooldown:         config.BreakerCooldown,
		OnStateChange: func(target string, state breaker.State) {
			if onBreakerStateChange != nil {
				onBreakerStateChange(target, state.String())
			}
		},
	})

	return &Adapter{
		baseURL:    config.BaseURL,
		httpClient: &http.Client{Timeout: config.RequestTimeout},
		apiKey:     config.APIKey,
		limiter:    ratelimit.New(config.RequestsPerMinute, config.Burst),
		breaker:    b,
		retryPolicy: &resilience.RetryPolicy{
			MaxRetries:   config.MaxRetries,
			BaseDelay:    200 * time.Millisecond,
			MaxDelay:     5 * time.Second,
			Multiplier:   2.0,
			Jitter:       true,
			ErrorChecker: &resilience.SyncErrorChecker{},
			OperationName: "spreadsheet_call",
		},
	}
}

var _ core.SpreadsheetAdapter = (*Adapter)(nil)

type valueRangeResponse struct {
	Range  string     `json:"range"`
	Values [][]string `json:"values"`
}

// ReadRange performs a conditional range read. The remote API is
// expected to honor an If-None-Match style header built from etag and
// respond 304 when unchanged.
func (a *Adapter) ReadRange(ctx context.Context, spreadsheetID, rangeA1, etag string) (core.RangeResult, error) {
	var result core.RangeResult

	err := a.call(ctx, func(ctx context.Context) error {
		reqURL := fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s?key=%s",
			a.baseURL, url.PathEscape(spreadsheetID), url.PathEscape(rangeA1), url.QueryEscape(a.apiKey))

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return err
		}
		if etag != "" {
			req.Header.Set("If-None-Match", etag)
		}

		resp, err := a.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotModified {
			result = core.RangeResult{NotModified: true}
			return nil
		}
		if resp.StatusCode >= 300 {
			return fmt.Errorf("spreadsheet: read range: unexpected status %d", resp.StatusCode)
		}

		var body valueRangeResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return fmt.Errorf("spreadsheet: decode range response: %w", err)
		}

		result = core.RangeResult{
			Rows: body.Values,
			ETag: resp.Header.Get("ETag"),
		}
		return nil
	})

	if err != nil {
		return core.RangeResult{}, err
	}
	return result, nil
}

type batchUpdateRequest struct {
	ValueInputOption string            `json:"valueInputOption"`
	Data             []valueRangeEntry `json:"data"`
}

type valueRangeEntry struct {
	Range  string     `json:"range"`
	Values [][]string `json:"values"`
}

func (a *Adapter) BatchUpdate(ctx context.Context, spreadsheetID string, updates []core.RangeValues) (string, error) {
	var etag string

	err := a.call(ctx, func(ctx context.Context) error {
		body := batchUpdateRequest{ValueInputOption: "RAW"}
		for _, u := range updates {
			body.Data = append(body.Data, valueRangeEntry{Range: u.Range, Values: u.Values})
		}

		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}

		reqURL := fmt.Sprintf("%s/v4/spreadsheets/%s/values:batchUpdate?key=%s",
			a.baseURL, url.PathEscape(spreadsheetID), url.QueryEscape(a.apiKey))
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := a.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			return fmt.Errorf("spreadsheet: batch update: unexpected status %d", resp.StatusCode)
		}
		etag = resp.Header.Get("ETag")
		return nil
	})

	return etag, err
}

func (a *Adapter) Append(ctx context.Context, spreadsheetID, rangeA1 string, rows [][]string) (string, error) {
	var etag string

	err := a.call(ctx, func(ctx context.Context) error {
		body := valueRangeEntry{Range: rangeA1, Values: rows}
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}

		reqURL := fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s:append?valueInputOption=RAW&key=%s",
			a.baseURL, url.PathEscape(spreadsheetID), url.PathEscape(rangeA1), url.QueryEscape(a.apiKey))
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := a.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			return fmt.Errorf("spreadsheet: append: unexpected status %d", resp.StatusCode)
		}
		etag = resp.Header.Get("ETag")
		return nil
	})

	return etag, err
}

func (a *Adapter) Clear(ctx context.Context, spreadsheetID, rangeA1 string) (string, error) {
	var etag string

	err := a.call(ctx, func(ctx context.Context) error {
		reqURL := fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s:clear?key=%s",
			a.baseURL, url.PathEscape(spreadsheetID), url.PathEscape(rangeA1), url.QueryEscape(a.apiKey))
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, nil)
		if err != nil {
			return err
		}

		resp, err := a.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			return fmt.Errorf("spreadsheet: clear: unexpected status %d", resp.StatusCode)
		}
		etag = resp.Header.Get("ETag")
		return nil
	})

	return etag, err
}

// call applies rate limiting, the circuit breaker, and retry-with-backoff
// around fn, in that order: wait for a token, then let the breaker gate
// (and retry wrap) the actual attempt.
func (a *Adapter) call(ctx context.Context, fn func(context.Context) error) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}

	return resilience.WithRetry(ctx, a.retryPolicy, func() error {
		return a.breaker.Execute(ctx, fn)
	})
}
