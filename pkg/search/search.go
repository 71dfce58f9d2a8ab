// Package search resolves the dashboard's free-text query to a camera target
// and debounces query input.
package search

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/sudorandom/latency-map/pkg/dataset"
)

const DefaultDelay = time.Second

// Camera is a fly-to target for the map.
type Camera struct {
	Center  []float64 `json:"center"`
	Zoom    float64   `json:"zoom"`
	Pitch   float64   `json:"pitch"`
	Bearing float64   `json:"bearing"`
	Speed   float64   `json:"speed"`
	Curve   float64   `json:"curve"`
	// Target names what the camera flies to: "default", "exchange" or "region".
	Target string `json:"target"`
	Label  string `json:"label,omitempty"`
}

// DefaultView is where the map starts and returns to on an empty query.
func DefaultView() Camera {
	return Camera{
		Center: []float64{-0.1276, 25.5072},
		Zoom:   2,
		Speed:  0.8,
		Curve:  1.2,
		Target: "default",
	}
}

func focus(c dataset.Coordinates, target, label string, rng *rand.Rand) Camera {
	return Camera{
		Center:  []float64{c.Lng(), c.Lat()},
		Zoom:    4.5,
		Pitch:   45,
		Bearing: rng.Float64() * 360,
		Speed:   0.8,
		Curve:   1.2,
		Target:  target,
		Label:   label,
	}
}

// Resolve finds the camera target for query: the first exchange whose name
// contains it, else the first region whose name or code does. An empty query
// returns the default view. ok is false when nothing matches.
func Resolve(cat *dataset.Catalog, query string, rng *rand.Rand) (cam Camera, ok bool) {
	if query == "" {
		return DefaultView(), true
	}
	q := strings.ToLower(query)
	for _, e := range cat.Exchanges() {
		if e.Coords.Valid() && strings.Contains(strings.ToLower(e.Name), q) {
			return focus(e.Coords, "exchange", e.Name, rng), true
		}
	}
	for _, cloud := range cat.CloudRegions() {
		for _, r := range cloud.Regions {
			if !r.Coords.Valid() {
				continue
			}
			if strings.Contains(strings.ToLower(r.Name), q) || strings.Contains(strings.ToLower(r.Code), q) {
				return focus(r.Coords, "region", cloud.Provider+" "+r.Code, rng), true
			}
		}
	}
	return Camera{}, false
}

// Debouncer delivers only the last value triggered within Delay of each other.
type Debouncer struct {
	delay time.Duration
	fn    func(string)

	mu      sync.Mutex
	timer   *time.Timer
	pending string
	armed   bool
	stopped bool
	// gen identifies the latest Trigger. A timer from an older one does nothing.
	gen uint64
}

func NewDebouncer(delay time.Duration, fn func(string)) *Debouncer {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Debouncer{delay: delay, fn: fn}
}

// Trigger schedules fn(v), cancelling any value still waiting.
func (d *Debouncer) Trigger(v string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.pending = v
	d.armed = true
	d.gen++
	gen := d.gen
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || !d.armed || d.stopped {
		d.mu.Unlock()
		return
	}
	v := d.pending
	d.armed = false
	d.mu.Unlock()
	d.fn(v)
}

// Flush delivers the pending value now, if any.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
	}
	gen := d.gen
	d.mu.Unlock()
	d.fire(gen)
}

// Stop cancels the pending value. Later triggers are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.armed = false
	if d.timer != nil {
		d.timer.Stop()
	}
}
