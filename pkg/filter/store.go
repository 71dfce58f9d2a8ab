// Package filter holds the dashboard's filter criteria and the store that
// mutates them through a fixed set of actions.
package filter

import (
	"fmt"
	"slices"
	"sync"
)

const (
	MinLatency = 0
	MaxLatency = 1000
)

// Layer names one of the toggleable map layer groups.
type Layer string

const (
	LayerRealtime   Layer = "realtime"
	LayerHistorical Layer = "historical"
	LayerRegions    Layer = "regions"
)

func ParseLayer(s string) (Layer, error) {
	switch l := Layer(s); l {
	case LayerRealtime, LayerHistorical, LayerRegions:
		return l, nil
	}
	return "", fmt.Errorf("unknown layer %q", s)
}

type Visibility struct {
	Realtime   bool `json:"realtime"`
	Historical bool `json:"historical"`
	Regions    bool `json:"regions"`
}

// Criteria is one immutable snapshot of the filter state. Selections keep
// insertion order but behave as sets.
type Criteria struct {
	SelectedExchanges []string   `json:"selectedExchanges"`
	SelectedProviders []string   `json:"selectedProviders"`
	LatencyRange      [2]float64 `json:"latencyRange"`
	Query             string     `json:"query"`
	Layers            Visibility `json:"layers"`
}

var (
	DefaultExchanges = []string{"Binance", "Bybit", "OKX", "Deribit", "Kraken", "Coinbase Pro"}
	DefaultProviders = []string{"AWS", "GCP", "Azure"}
	DefaultRange     = [2]float64{0, 300}
	DefaultLayers    = Visibility{Realtime: true, Historical: false, Regions: true}
)

// DefaultCriteria is the state a fresh store starts with.
func DefaultCriteria() Criteria {
	return Criteria{
		SelectedExchanges: slices.Clone(DefaultExchanges),
		SelectedProviders: slices.Clone(DefaultProviders),
		LatencyRange:      DefaultRange,
		Layers:            DefaultLayers,
	}
}

// ResetCriteria is the state produced by ResetAll: nothing selected, full
// range, default layer visibility.
func ResetCriteria() Criteria {
	return Criteria{
		SelectedExchanges: []string{},
		SelectedProviders: []string{},
		LatencyRange:      DefaultRange,
		Layers:            DefaultLayers,
	}
}

func (c Criteria) clone() Criteria {
	c.SelectedExchanges = slices.Clone(c.SelectedExchanges)
	c.SelectedProviders = slices.Clone(c.SelectedProviders)
	return c
}

func (c Criteria) HasExchange(name string) bool { return slices.Contains(c.SelectedExchanges, name) }
func (c Criteria) HasProvider(name string) bool { return slices.Contains(c.SelectedProviders, name) }

// InRange reports whether ms lies inside the latency range, bounds included.
func (c Criteria) InRange(ms float64) bool {
	return ms >= c.LatencyRange[0] && ms <= c.LatencyRange[1]
}

func toggle(set []string, name string) []string {
	if i := slices.Index(set, name); i >= 0 {
		return slices.Delete(slices.Clone(set), i, i+1)
	}
	return append(slices.Clone(set), name)
}

func (c Criteria) ToggleExchange(name string) Criteria {
	c = c.clone()
	c.SelectedExchanges = toggle(c.SelectedExchanges, name)
	return c
}

func (c Criteria) ToggleProvider(name string) Criteria {
	c = c.clone()
	c.SelectedProviders = toggle(c.SelectedProviders, name)
	return c
}

func (c Criteria) WithLatencyRange(lo, hi float64) Criteria {
	c = c.clone()
	c.LatencyRange = [2]float64{lo, hi}
	return c
}

func (c Criteria) WithQuery(q string) Criteria {
	c = c.clone()
	c.Query = q
	return c
}

func (c Criteria) WithLayer(l Layer, visible bool) Criteria {
	c = c.clone()
	switch l {
	case LayerRealtime:
		c.Layers.Realtime = visible
	case LayerHistorical:
		c.Layers.Historical = visible
	case LayerRegions:
		c.Layers.Regions = visible
	}
	return c
}

// ClampRange orders lo and hi and clamps both into [MinLatency, MaxLatency].
// Callers use it before SetLatencyRange; the store itself does not validate.
func ClampRange(lo, hi float64) (float64, float64) {
	if lo > hi {
		lo, hi = hi, lo
	}
	clamp := func(v float64) float64 {
		return min(max(v, MinLatency), MaxLatency)
	}
	return clamp(lo), clamp(hi)
}

type subscriber struct {
	id int
	fn func(Criteria)
}

// Store owns the single mutable Criteria. Every action notifies all
// subscribers with the new snapshot before it returns.
type Store struct {
	mu     sync.Mutex
	state  Criteria
	subs   []subscriber
	nextID int
}

func NewStore() *Store {
	return &Store{state: DefaultCriteria()}
}

// NewStoreWith starts a store from an explicit snapshot.
func NewStoreWith(c Criteria) *Store {
	return &Store{state: c.clone()}
}

func (s *Store) Criteria() Criteria {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Subscribe registers fn and returns a function that removes it.
func (s *Store) Subscribe(fn func(Criteria)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.subs = slices.DeleteFunc(s.subs, func(sub subscriber) bool { return sub.id == id })
	}
}

// Subscribers is the number of registered subscribers.
func (s *Store) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Store) apply(transition func(Criteria) Criteria) Criteria {
	s.mu.Lock()
	s.state = transition(s.state)
	next := s.state.clone()
	subs := slices.Clone(s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(next.clone())
	}
	return next
}

func (s *Store) ToggleExchange(name string) Criteria {
	return s.apply(func(c Criteria) Criteria { return c.ToggleExchange(name) })
}

func (s *Store) ToggleProvider(name string) Criteria {
	return s.apply(func(c Criteria) Criteria { return c.ToggleProvider(name) })
}

func (s *Store) SetLatencyRange(lo, hi float64) Criteria {
	return s.apply(func(c Criteria) Criteria { return c.WithLatencyRange(lo, hi) })
}

func (s *Store) SetQuery(q string) Criteria {
	return s.apply(func(c Criteria) Criteria { return c.WithQuery(q) })
}

func (s *Store) SetLayerVisibility(l Layer, visible bool) Criteria {
	return s.apply(func(c Criteria) Criteria { return c.WithLayer(l, visible) })
}

func (s *Store) ResetAll() Criteria {
	return s.apply(func(Criteria) Criteria { return ResetCriteria() })
}
