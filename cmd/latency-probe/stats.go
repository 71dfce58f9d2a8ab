package main

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/VividCortex/ewma"
	"github.com/sudorandom/latency-map/pkg/derive"
	"github.com/sudorandom/latency-map/pkg/latency"
	"github.com/sudorandom/latency-map/pkg/radar"
)

type Stats struct {
	mu         sync.Mutex
	Polls      int
	Failures   int
	Successes  int
	APIErrors  int
	LastError  string
	LastCount  int
	CountFlaps int
	Buckets    map[derive.Bucket]int
	Min, Max   float64
	Mean       ewma.MovingAverage
	Elapsed    ewma.MovingAverage
	StartTime  time.Time
}

func NewStats() *Stats {
	return &Stats{
		Buckets:   make(map[derive.Bucket]int),
		Min:       math.Inf(1),
		Max:       math.Inf(-1),
		Mean:      ewma.NewMovingAverage(),
		Elapsed:   ewma.NewMovingAverage(),
		StartTime: time.Now(),
	}
}

func (s *Stats) Record(latencies []float64, err error, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Polls++
	s.Elapsed.Add(float64(elapsed.Milliseconds()))
	if err != nil {
		s.Failures++
		var apiErr *radar.APIError
		var remote *latency.RemoteError
		if errors.As(err, &apiErr) || errors.As(err, &remote) {
			s.APIErrors++
		}
		s.LastError = err.Error()
		return
	}

	if s.Successes > 0 && len(latencies) != s.LastCount {
		s.CountFlaps++
	}
	s.Successes++
	s.LastCount = len(latencies)
	if len(latencies) == 0 {
		return
	}
	var sum float64
	for _, v := range latencies {
		s.Buckets[derive.Classify(v)]++
		s.Min = min(s.Min, v)
		s.Max = max(s.Max, v)
		sum += v
	}
	s.Mean.Add(sum / float64(len(latencies)))
}

func (s *Stats) Report(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed <= 0 {
		elapsed = 1
	}

	fmt.Fprintf(w, "\033[H\033[2J") // Clear screen
	fmt.Fprintf(w, "Live Latency Probe (Running for %.1fs)\n", elapsed)
	fmt.Fprintf(w, "--------------------------------------------------\n")
	fmt.Fprintf(w, "Polls:         %d (%d failed)\n", s.Polls, s.Failures)
	fmt.Fprintf(w, "Values/poll:   %d\n", s.LastCount)
	fmt.Fprintf(w, "Avg response:  %.0f ms\n", s.Elapsed.Value())
	if s.Polls > s.Failures && s.LastCount > 0 {
		fmt.Fprintf(w, "Mean latency:  %.1f ms (min %.1f, max %.1f)\n", s.Mean.Value(), s.Min, s.Max)
	}
	fmt.Fprintf(w, "--------------------------------------------------\n")
	fmt.Fprintf(w, "BUCKETS:\n")
	for _, b := range derive.AllBuckets {
		fmt.Fprintf(w, "  %-7s %d\n", b, s.Buckets[b])
	}
	fmt.Fprintf(w, "--------------------------------------------------\n")

	fmt.Fprintf(w, "LIKELY CONCLUSIONS:\n")
	conclusions := s.analyze()
	if len(conclusions) == 0 {
		fmt.Fprintf(w, "  - Feed appears healthy\n")
	} else {
		for _, c := range conclusions {
			fmt.Fprintf(w, "  - %s\n", c)
		}
	}
	if s.LastError != "" {
		fmt.Fprintf(w, "Last error: %s\n", s.LastError)
	}
}

func (s *Stats) analyze() []string {
	var results []string
	if s.Polls == 0 {
		return nil
	}

	// Upstream rejects everything: usually a missing or wrong token.
	if s.Failures == s.Polls && s.APIErrors > 0 {
		results = append(results, "Every poll rejected upstream (check the API token)")
	} else if s.Failures == s.Polls {
		results = append(results, "Endpoint unreachable (transport errors on every poll)")
	} else if float64(s.Failures)/float64(s.Polls) > 0.2 {
		results = append(results, "Intermittent failures (more than 20% of polls failed)")
	}

	// The map overlays values by position, so a changing count shifts which
	// pair each value lands on.
	if s.CountFlaps > 0 {
		results = append(results, fmt.Sprintf("Series count changed %d times (positional overlay will misattribute values)", s.CountFlaps))
	}

	if s.Polls > s.Failures && s.LastCount == 0 {
		results = append(results, "Feed returns no values (map lines fall back to baseline samples)")
	}

	if s.Elapsed.Value() > 5000 {
		results = append(results, "Slow upstream (responses approach the poll interval)")
	}
	return results
}
