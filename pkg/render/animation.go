package render

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/sudorandom/latency-map/pkg/derive"
)

const (
	// FrameEvery is how many frames pass between gradient updates.
	FrameEvery = 15
	// DefaultFrameInterval approximates a 60Hz animation frame.
	DefaultFrameInterval = time.Second / 60
)

var stopOffsets = []float64{0, 0.25, 0.5, 0.75, 1}

// GradientAnimator moves a highlight along the latency lines by rotating a
// window of shade indices through the line-gradient stops.
type GradientAnimator struct {
	m *Map

	mu     sync.Mutex
	frame  int
	window []int
}

func NewGradientAnimator(m *Map) *GradientAnimator {
	return &GradientAnimator{m: m, window: []int{0, 1, 1, 1, 1}}
}

// Window returns the current shade index window.
func (g *GradientAnimator) Window() []int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]int(nil), g.window...)
}

func gradientFor(shades [2]string, window []int) []any {
	stops := make([]any, 0, 2*len(window))
	for i, idx := range window {
		stops = append(stops, stopOffsets[i], shades[idx])
	}
	return lineGradient(stops...)
}

// Tick advances one frame. On every FrameEvery-th frame, if the map is ready
// and all three line layers exist, it applies the gradient and rotates the
// window right by one. It reports whether the gradient was applied.
func (g *GradientAnimator) Tick() (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.frame++
	if g.frame%FrameEvery != 0 {
		return false, nil
	}

	applied := false
	_, err := g.m.Surface(func(s Surface) error {
		for _, b := range derive.AllBuckets {
			if !s.HasLayer(LatencyLayerID(b)) {
				return nil
			}
		}
		for _, b := range derive.AllBuckets {
			if err := s.SetPaintProperty(LatencyLayerID(b), "line-gradient", gradientFor(Shades[b], g.window)); err != nil {
				return err
			}
		}
		applied = true
		return nil
	})
	if applied {
		last := g.window[len(g.window)-1]
		copy(g.window[1:], g.window[:len(g.window)-1])
		g.window[0] = last
	}
	return applied, err
}

// Run ticks every interval until ctx is done or the map is torn down.
func (g *GradientAnimator) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if g.m.State() == TornDown {
				return
			}
			if _, err := g.Tick(); err != nil {
				log.Printf("[animation] Updating gradient: %v", err)
			}
		}
	}
}
