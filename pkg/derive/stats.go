package derive

import (
	"math"
	"strings"

	"github.com/cloudflare/ahocorasick"
	"github.com/sudorandom/latency-map/pkg/dataset"
	"github.com/sudorandom/latency-map/pkg/filter"
)

// Summary is the performance panel's view of the filtered samples.
type Summary struct {
	Count            int     `json:"count"`
	Avg              float64 `json:"avg"`
	Min              float64 `json:"min"`
	Max              float64 `json:"max"`
	VisibleExchanges int     `json:"visibleExchanges"`
}

// queryMatcher matches the search query case-insensitively as a substring.
// A nil matcher accepts everything.
type queryMatcher struct {
	m *ahocorasick.Matcher
}

func newQueryMatcher(q string) queryMatcher {
	if q == "" {
		return queryMatcher{}
	}
	return queryMatcher{m: ahocorasick.NewStringMatcher([]string{strings.ToLower(q)})}
}

func (qm queryMatcher) match(fields ...string) bool {
	if qm.m == nil {
		return true
	}
	for _, f := range fields {
		if qm.m.Contains([]byte(strings.ToLower(f))) {
			return true
		}
	}
	return false
}

// Filter applies the dashboard's rules to samples. Unlike the map, an empty
// exchange or provider selection means "no filter" here, and the query
// narrows by exchange name or region code.
func Filter(samples []dataset.LatencySample, c filter.Criteria) []dataset.LatencySample {
	qm := newQueryMatcher(c.Query)
	var out []dataset.LatencySample
	for _, s := range samples {
		if len(c.SelectedExchanges) > 0 && !c.HasExchange(s.Exchange) {
			continue
		}
		if len(c.SelectedProviders) > 0 && !c.HasProvider(s.Provider) {
			continue
		}
		if !c.InRange(s.LatencyMs) {
			continue
		}
		if !qm.match(s.Exchange, s.RegionCode) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Stats summarises samples after Filter. All fields are zero when nothing
// survives.
func Stats(samples []dataset.LatencySample, c filter.Criteria) Summary {
	kept := Filter(samples, c)
	if len(kept) == 0 {
		return Summary{}
	}
	sum := Summary{Count: len(kept), Min: math.Inf(1), Max: math.Inf(-1)}
	var total float64
	seen := make(map[string]struct{})
	for _, s := range kept {
		total += s.LatencyMs
		sum.Min = min(sum.Min, s.LatencyMs)
		sum.Max = max(sum.Max, s.LatencyMs)
		seen[s.Exchange] = struct{}{}
	}
	sum.Avg = math.Round(total / float64(len(kept)))
	sum.VisibleExchanges = len(seen)
	return sum
}
