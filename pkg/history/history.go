// Package history serves latency time series per exchange/region pair, from
// recorded polls when there are enough of them and from a synthetic
// generator otherwise.
package history

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/sudorandom/latency-map/pkg/dataset"
)

var ErrUnknownRange = errors.New("unknown time range")

// Range is one of the selectable history spans.
type Range string

const (
	Range1h  Range = "1h"
	Range24h Range = "24h"
	Range7d  Range = "7d"
	Range30d Range = "30d"
)

var Ranges = []Range{Range1h, Range24h, Range7d, Range30d}

func ParseRange(s string) (Range, error) {
	r := Range(s)
	if _, _, err := r.Resolution(); err != nil {
		return "", err
	}
	return r, nil
}

// Resolution returns the spacing and number of points for the range.
func (r Range) Resolution() (step time.Duration, count int, err error) {
	switch r {
	case Range1h:
		return time.Minute, 60, nil
	case Range24h:
		return 5 * time.Minute, 288, nil
	case Range7d:
		return time.Hour, 168, nil
	case Range30d:
		return 6 * time.Hour, 120, nil
	}
	return 0, 0, fmt.Errorf("%w: %q", ErrUnknownRange, string(r))
}

// Span is the total duration covered by the range.
func (r Range) Span() time.Duration {
	step, count, err := r.Resolution()
	if err != nil {
		return 0
	}
	return step * time.Duration(count)
}

func (r Range) Label() string {
	switch r {
	case Range1h:
		return "1 hour"
	case Range24h:
		return "24 hours"
	case Range7d:
		return "7 days"
	case Range30d:
		return "30 days"
	}
	return string(r)
}

// Point is one latency measurement.
type Point struct {
	Time      time.Time `json:"t"`
	LatencyMs float64   `json:"ms"`
}

// Pair is one exchange/region combination with its baseline latency.
type Pair struct {
	Key         string  `json:"key"`
	Exchange    string  `json:"exchange"`
	RegionCode  string  `json:"regionCode"`
	BaseLatency float64 `json:"baseLatency"`
}

func PairKey(exchange, regionCode string) string {
	return exchange + " ↔ " + regionCode
}

// Pairs lists the distinct pairs of samples in order of first appearance.
// The first sample of each pair supplies its base latency.
func Pairs(samples []dataset.LatencySample) []Pair {
	seen := make(map[string]struct{})
	var out []Pair
	for _, s := range samples {
		key := PairKey(s.Exchange, s.RegionCode)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, Pair{Key: key, Exchange: s.Exchange, RegionCode: s.RegionCode, BaseLatency: s.LatencyMs})
	}
	return out
}

// Generate synthesises a series around base: ±10% jitter, and a 2% chance
// per point of a spike of up to twice the base. Values never drop below 5ms.
func Generate(base float64, r Range, now time.Time, rng *rand.Rand) ([]Point, error) {
	step, count, err := r.Resolution()
	if err != nil {
		return nil, err
	}
	out := make([]Point, count)
	for i := range out {
		jitter := (rng.Float64() - 0.5) * base * 0.2
		var spike float64
		if rng.Float64() < 0.02 {
			spike = rng.Float64() * base * 2
		}
		out[i] = Point{
			Time:      now.Add(-time.Duration(count-i) * step),
			LatencyMs: math.Max(5, math.Round(base+jitter+spike)),
		}
	}
	return out, nil
}

// Downsample averages points into the range's buckets ending at now. Each
// bucket is stamped like the matching Generate point and empty buckets are
// skipped, so the result never has more than count points.
func Downsample(points []Point, r Range, now time.Time) ([]Point, error) {
	step, count, err := r.Resolution()
	if err != nil {
		return nil, err
	}
	start := now.Add(-time.Duration(count) * step)
	sums := make([]float64, count)
	ns := make([]int, count)
	for _, p := range points {
		if p.Time.Before(start) || p.Time.After(now) {
			continue
		}
		i := min(int(p.Time.Sub(start)/step), count-1)
		sums[i] += p.LatencyMs
		ns[i]++
	}
	var out []Point
	for i := range count {
		if ns[i] == 0 {
			continue
		}
		out = append(out, Point{
			Time:      start.Add(time.Duration(i) * step),
			LatencyMs: math.Round(sums[i]/float64(ns[i])*10) / 10,
		})
	}
	return out, nil
}

type Stats struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
}

func ComputeStats(points []Point) Stats {
	if len(points) == 0 {
		return Stats{}
	}
	s := Stats{Min: math.Inf(1), Max: math.Inf(-1)}
	var total float64
	for _, p := range points {
		s.Min = math.Min(s.Min, p.LatencyMs)
		s.Max = math.Max(s.Max, p.LatencyMs)
		total += p.LatencyMs
	}
	s.Avg = math.Round(total / float64(len(points)))
	return s
}
