package history

import (
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/sudorandom/latency-map/pkg/dataset"
)

// Service answers series requests. Recorded points win over synthetic ones
// whenever the store has at least MinRecorded points in the requested span.
type Service struct {
	Store       *Store
	MinRecorded int

	pairs map[string]Pair
	order []Pair

	mu  sync.Mutex
	rng *rand.Rand
}

func NewService(store *Store, samples []dataset.LatencySample, seed int64) *Service {
	s := &Service{
		Store:       store,
		MinRecorded: 2,
		pairs:       make(map[string]Pair),
		rng:         rand.New(rand.NewSource(seed)),
	}
	s.order = Pairs(samples)
	for _, p := range s.order {
		s.pairs[p.Key] = p
	}
	return s
}

func (s *Service) Pairs() []Pair {
	return append([]Pair(nil), s.order...)
}

func (s *Service) Pair(key string) (Pair, bool) {
	p, ok := s.pairs[key]
	return p, ok
}

// Series returns the points of pair over r ending at now, and whether they
// came from recorded polls. Recorded points are averaged down to the range's
// resolution.
func (s *Service) Series(pair Pair, r Range, now time.Time) (points []Point, recorded bool, err error) {
	if _, _, err := r.Resolution(); err != nil {
		return nil, false, err
	}
	if s.Store != nil {
		pts, err := s.Store.Series(pair.Key, now.Add(-r.Span()))
		if err != nil {
			log.Printf("[history] Reading %s: %v", pair.Key, err)
		} else if pts, err = Downsample(pts, r, now); err == nil && len(pts) >= s.MinRecorded {
			return pts, true, nil
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	pts, err := Generate(pair.BaseLatency, r, now, s.rng)
	return pts, false, err
}

// Record persists one poll's effective samples. Without a store it is a no-op.
func (s *Service) Record(at time.Time, samples []dataset.LatencySample) {
	if s.Store == nil {
		return
	}
	if err := s.Store.Record(at, samples); err != nil {
		log.Printf("[history] Recording poll: %v", err)
	}
}
