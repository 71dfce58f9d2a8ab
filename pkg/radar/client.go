// Package radar queries the Cloudflare Radar internet-quality API for recent
// latency time series.
package radar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sudorandom/latency-map/pkg/sources"
	"golang.org/x/time/rate"
)

// Window is the span queried on every call. The API rejects anything shorter.
const Window = 30 * time.Minute

const timeLayout = "2006-01-02T15:04:05Z"

// APIError is returned when the API answers with success=false. Errors holds
// the API's own error payload verbatim and may be empty.
type APIError struct {
	Status int
	Errors json.RawMessage
}

func (e *APIError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("radar: request failed (status %d)", e.Status)
	}
	return fmt.Sprintf("radar: request failed (status %d): %s", e.Status, e.Errors)
}

type Options struct {
	BaseURL    string
	Token      string
	Locations  string
	HTTPClient *http.Client
	// RequestsPerSecond bounds outgoing requests; zero disables the limiter.
	RequestsPerSecond float64
	Burst             int
	Now               func() time.Time
}

type Client struct {
	baseURL   string
	token     string
	locations string
	http      *http.Client
	limiter   *rate.Limiter
	now       func() time.Time
}

func NewClient(opts Options) *Client {
	c := &Client{
		baseURL:   opts.BaseURL,
		token:     opts.Token,
		locations: opts.Locations,
		http:      opts.HTTPClient,
		now:       opts.Now,
	}
	if c.baseURL == "" {
		c.baseURL = sources.RadarIQITimeseriesURL
	}
	if c.locations == "" {
		c.locations = sources.RadarLocations
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 15 * time.Second}
	}
	if c.now == nil {
		c.now = time.Now
	}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	if c.token == "" {
		log.Printf("[radar] No API token configured; latency requests will be rejected upstream")
	}
	return c
}

// TimeWindow returns the query window ending at now.
func TimeWindow(now time.Time) (start, end time.Time) {
	end = now.UTC().Truncate(time.Second)
	return end.Add(-Window), end
}

// QueryURL builds the request URL for the given window.
func (c *Client) QueryURL(start, end time.Time) string {
	q := url.Values{}
	q.Set("metric", "latency")
	q.Set("dateStart", start.UTC().Format(timeLayout))
	q.Set("dateEnd", end.UTC().Format(timeLayout))
	q.Set("format", "json")
	q.Set("location", c.locations)
	return c.baseURL + "?" + q.Encode()
}

// Query fetches the raw response for [start, end].
func (c *Client) Query(ctx context.Context, start, end time.Time) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("radar: rate limiter: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.QueryURL(start, end), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("radar: request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("[radar] Error closing response body: %v", err)
		}
	}()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("radar: read body: %w", err)
	}

	var r Response
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("radar: decode response (status %d): %w", resp.StatusCode, err)
	}
	if !r.Success {
		return nil, &APIError{Status: resp.StatusCode, Errors: r.Errors}
	}
	return &r, nil
}

// Latencies queries the trailing window ending now and returns the flattened
// latency values.
func (c *Client) Latencies(ctx context.Context) ([]float64, error) {
	start, end := TimeWindow(c.now())
	r, err := c.Query(ctx, start, end)
	if err != nil {
		return nil, err
	}
	return r.Latencies()
}

type Response struct {
	Success bool            `json:"success"`
	Result  Result          `json:"result"`
	Errors  json.RawMessage `json:"errors,omitempty"`
}

type Result struct {
	Serie0 Series `json:"serie_0"`
}

// Latencies drops the first series of serie_0 (timestamps) and concatenates
// the rest in document order.
func (r *Response) Latencies() ([]float64, error) {
	out := []float64{}
	if len(r.Result.Serie0) < 2 {
		return out, nil
	}
	for _, s := range r.Result.Serie0[1:] {
		for i, raw := range s.Values {
			v, err := parseNumber(raw)
			if err != nil {
				return nil, fmt.Errorf("radar: series %q value %d: %w", s.Name, i, err)
			}
			out = append(out, v)
		}
	}
	return out, nil
}

// NamedSeries is one entry of a series group.
type NamedSeries struct {
	Name   string
	Values []json.RawMessage
}

// Series keeps the series of a group in the order the API sent them, which
// a map would lose.
type Series []NamedSeries

func (s *Series) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*s = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("series group: expected object, got %v", tok)
	}
	var out Series
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("series group: unexpected key %v", keyTok)
		}
		var values []json.RawMessage
		if err := dec.Decode(&values); err != nil {
			return fmt.Errorf("series %q: %w", key, err)
		}
		out = append(out, NamedSeries{Name: key, Values: values})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*s = out
	return nil
}

var errNotNumeric = errors.New("not a number")

// parseNumber accepts JSON numbers and numeric strings; the API uses both.
func parseNumber(raw json.RawMessage) (float64, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return 0, fmt.Errorf("%w: %s", errNotNumeric, raw)
	}
	f, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", errNotNumeric, str)
	}
	return f, nil
}
