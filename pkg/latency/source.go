// Package latency polls a latency source on a fixed interval and exposes the
// most recent result.
package latency

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// Source produces one set of live latency values per call.
type Source interface {
	Fetch(ctx context.Context) ([]float64, error)
}

type SourceFunc func(ctx context.Context) ([]float64, error)

func (f SourceFunc) Fetch(ctx context.Context) ([]float64, error) { return f(ctx) }

// HTTPSource reads the proxy endpoint's {"latencies": [...]} payload.
type HTTPSource struct {
	URL    string
	Client *http.Client
}

// RemoteError is a non-2xx answer from the proxy endpoint.
type RemoteError struct {
	Status  int
	Message json.RawMessage
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("latency endpoint returned %d: %s", e.Status, e.Message)
}

func (s *HTTPSource) Fetch(ctx context.Context) ([]float64, error) {
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("[poller] Error closing response body: %v", err)
		}
	}()

	var body struct {
		Latencies []float64       `json:"latencies"`
		Error     json.RawMessage `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode latency payload: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &RemoteError{Status: resp.StatusCode, Message: body.Error}
	}
	if body.Latencies == nil {
		body.Latencies = []float64{}
	}
	return body.Latencies, nil
}
