// Package server is the dashboard backend: the latency proxy, the REST API
// over the filter store and derived features, and websocket map sessions.
package server

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/VividCortex/ewma"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sudorandom/latency-map/pkg/dataset"
	"github.com/sudorandom/latency-map/pkg/derive"
	"github.com/sudorandom/latency-map/pkg/filter"
	"github.com/sudorandom/latency-map/pkg/history"
	"github.com/sudorandom/latency-map/pkg/latency"
	"github.com/sudorandom/latency-map/pkg/render"
	"github.com/sudorandom/latency-map/pkg/sources"
)

// Upstream is where live latencies come from, normally a *radar.Client.
type Upstream interface {
	Latencies(ctx context.Context) ([]float64, error)
}

type Config struct {
	Catalog  *dataset.Catalog
	Upstream Upstream
	Store    *filter.Store
	History  *history.Service
	GeoIP    *GeoIP

	MapToken      string
	StyleURL      string
	PollInterval  time.Duration
	FrameInterval time.Duration

	// Registry receives the metrics and is served on /metrics. A fresh
	// registry is used when nil.
	Registry *prometheus.Registry
}

type Server struct {
	cfg     Config
	regions derive.RegionFeatures
	poller  *latency.Poller
	metrics *Metrics
	gather  prometheus.Gatherer

	mu      sync.Mutex
	avg     ewma.MovingAverage
	avgN    int
	rng     *rand.Rand
	started bool
}

func New(cfg Config) (*Server, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("server: catalog is required")
	}
	if cfg.Upstream == nil {
		return nil, errors.New("server: upstream is required")
	}
	if cfg.Store == nil {
		cfg.Store = filter.NewStore()
	}
	if cfg.History == nil {
		cfg.History = history.NewService(nil, cfg.Catalog.Samples(), time.Now().UnixNano())
	}
	if cfg.StyleURL == "" {
		cfg.StyleURL = sources.MapStyleURL
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = render.DefaultFrameInterval
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}
	metrics, err := NewMetrics(cfg.Registry)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:     cfg,
		regions: derive.Regions(cfg.Catalog),
		metrics: metrics,
		gather:  cfg.Registry,
		avg:     ewma.NewMovingAverage(),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	s.poller = latency.NewPoller(latency.SourceFunc(s.fetch), cfg.PollInterval)
	s.poller.OnResult = s.onPoll
	return s, nil
}

func (s *Server) Poller() *latency.Poller { return s.poller }
func (s *Server) Store() *filter.Store     { return s.cfg.Store }

// Start begins polling. It is safe to call more than once.
func (s *Server) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.poller.Start(ctx)
}

func (s *Server) Stop() {
	s.poller.Stop()
}

// fetch asks the upstream for live latencies and records the outcome.
func (s *Server) fetch(ctx context.Context) ([]float64, error) {
	start := time.Now()
	latencies, err := s.cfg.Upstream.Latencies(ctx)
	s.metrics.ProxyDurations.Observe(time.Since(start).Seconds())
	s.metrics.ProxyRequests.WithLabelValues(outcome(err)).Inc()
	return latencies, err
}

func (s *Server) onPoll(latencies []float64, err error, _ time.Duration) {
	if err != nil {
		s.metrics.Polls.WithLabelValues("error").Inc()
		return
	}
	s.metrics.Polls.WithLabelValues("ok").Inc()

	if len(latencies) > 0 {
		var sum float64
		for _, v := range latencies {
			sum += v
		}
		s.mu.Lock()
		s.avg.Add(sum / float64(len(latencies)))
		s.avgN++
		v := s.avg.Value()
		s.mu.Unlock()
		s.metrics.LiveAverage.Set(v)
	}

	effective := derive.Overlay(s.cfg.Catalog.Samples(), latencies)
	s.cfg.History.Record(time.Now(), effective)
	s.metrics.observeBuckets(derive.Lines(s.cfg.Catalog, latencies, s.cfg.Store.Criteria()))
}

// liveAverage is the smoothed mean of the polled values and how many polls
// went into it.
func (s *Server) liveAverage() (float64, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.avg.Value(), s.avgN
}

// Handler builds the gin router with every route.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.LoggerWithWriter(log.Writer()), gin.Recovery())

	r.GET(sources.ProxyLatenciesPath, s.handleRealTimeLatencies)

	api := r.Group("/api")
	api.GET("/config", s.handleConfig)
	api.GET("/filters", s.handleFilters)
	api.POST("/filters/actions", s.handleAction)
	api.GET("/status", s.handleStatus)
	api.GET("/features", s.handleFeatures)
	api.GET("/regions", s.handleRegions)
	api.GET("/regions/:id", s.handleRegion)
	api.GET("/markers", s.handleMarkers)
	api.GET("/dashboard", s.handleDashboard)
	api.GET("/legend", s.handleLegend)
	api.GET("/search", s.handleSearch)
	api.GET("/history/pairs", s.handleHistoryPairs)
	api.GET("/history", s.handleHistory)
	api.GET("/locate", s.handleLocate)

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gather, promhttp.HandlerOpts{})))
	r.GET("/ws/map", s.handleMapSession)
	return r
}
