package latency

import (
	"context"
	"log"
	"slices"
	"sync"
	"time"
)

const DefaultInterval = 7 * time.Second

// Status is the poller's view of the live latencies.
type Status struct {
	Latencies []float64 `json:"latencies"`
	Loading   bool      `json:"loading"`
	Err       error     `json:"-"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Ready reports whether the latest attempt succeeded. Layers that depend on
// live data are only drawn when this holds.
func (s Status) Ready() bool { return !s.Loading && s.Err == nil }

func (s Status) clone() Status {
	s.Latencies = slices.Clone(s.Latencies)
	return s
}

// Poller fetches from a Source immediately on Start and then once per
// Interval. Fetches are not serialised: a slow request may still be in
// flight when the next tick fires, and whichever resolves last wins.
type Poller struct {
	Source   Source
	Interval time.Duration
	// OnResult, when set, is called after every fetch with its outcome.
	OnResult func(latencies []float64, err error, elapsed time.Duration)

	mu     sync.Mutex
	status Status
	subs   map[int]func(Status)
	nextID int
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPoller(src Source, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		Source:   src,
		Interval: interval,
		status:   Status{Loading: true},
		subs:     make(map[int]func(Status)),
	}
}

func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status.clone()
}

// Subscribe registers fn for every resolved fetch and returns the function
// that removes it.
func (p *Poller) Subscribe(fn func(Status)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := p.nextID
	p.subs[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subs, id)
	}
}

func (p *Poller) Subscribers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

// Start launches the polling loop. Calling Start on a running poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.Interval)
		defer ticker.Stop()

		p.launch(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.launch(ctx)
			}
		}
	}()
}

// Stop cancels the loop and any fetch still in flight, then waits for them.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	p.wg.Wait()
}

func (p *Poller) launch(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.Poll(ctx)
	}()
}

// Poll performs one fetch and applies its outcome. A fetch cancelled by Stop
// leaves the status untouched.
func (p *Poller) Poll(ctx context.Context) {
	start := time.Now()
	latencies, err := p.Source.Fetch(ctx)
	elapsed := time.Since(start)
	if ctx.Err() != nil {
		return
	}
	if p.OnResult != nil {
		p.OnResult(latencies, err, elapsed)
	}

	p.mu.Lock()
	if err != nil {
		log.Printf("[poller] Fetch failed after %s: %v", elapsed.Round(time.Millisecond), err)
		p.status.Err = err
	} else {
		p.status.Latencies = slices.Clone(latencies)
		p.status.Err = nil
	}
	p.status.Loading = false
	p.status.UpdatedAt = time.Now()
	next := p.status.clone()
	subs := make([]func(Status), 0, len(p.subs))
	for _, fn := range p.subs {
		subs = append(subs, fn)
	}
	p.mu.Unlock()

	for _, fn := range subs {
		fn(next.clone())
	}
}
