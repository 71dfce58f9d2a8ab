package server

import (
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sudorandom/latency-map/pkg/derive"
	"github.com/sudorandom/latency-map/pkg/filter"
	"github.com/sudorandom/latency-map/pkg/history"
	"github.com/sudorandom/latency-map/pkg/search"
)

func (s *Server) handleConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"mapToken":    s.cfg.MapToken,
		"style":       s.cfg.StyleURL,
		"defaultView": search.DefaultView(),
	})
}

func (s *Server) handleFilters(c *gin.Context) {
	c.JSON(http.StatusOK, s.cfg.Store.Criteria())
}

func (s *Server) handleAction(c *gin.Context) {
	var a filter.Action
	if err := c.ShouldBindJSON(&a); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid action body"})
		return
	}
	crit, err := s.cfg.Store.Dispatch(a)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, crit)
}

type statusResponse struct {
	Loading   bool       `json:"loading"`
	Error     string     `json:"error,omitempty"`
	Count     int        `json:"count"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

func (s *Server) handleStatus(c *gin.Context) {
	st := s.poller.Status()
	resp := statusResponse{Loading: st.Loading, Count: len(st.Latencies)}
	if st.Err != nil {
		resp.Error = st.Err.Error()
	}
	if !st.UpdatedAt.IsZero() {
		resp.UpdatedAt = &st.UpdatedAt
	}
	c.JSON(http.StatusOK, resp)
}

// currentLines derives the line buckets for the store's criteria. While the
// poller has no usable result the buckets are empty, matching what the map
// draws.
func (s *Server) currentLines() derive.Buckets {
	st := s.poller.Status()
	crit := s.cfg.Store.Criteria()
	if !st.Ready() || !crit.Layers.Realtime {
		return derive.NewBuckets()
	}
	b := derive.Lines(s.cfg.Catalog, st.Latencies, crit)
	s.metrics.observeBuckets(b)
	return b
}

func (s *Server) handleFeatures(c *gin.Context) {
	c.JSON(http.StatusOK, s.currentLines())
}

func (s *Server) handleRegions(c *gin.Context) {
	c.JSON(http.StatusOK, s.regions)
}

func (s *Server) handleRegion(c *gin.Context) {
	info, ok := s.regions.Info(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "region not found"})
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) handleMarkers(c *gin.Context) {
	c.JSON(http.StatusOK, derive.Markers(s.cfg.Catalog, s.cfg.Store.Criteria()))
}

func (s *Server) handleDashboard(c *gin.Context) {
	// Stale live values from before a failed poll are not shown.
	var live []float64
	if st := s.poller.Status(); st.Ready() {
		live = st.Latencies
	}
	samples := derive.Overlay(s.cfg.Catalog.Samples(), live)
	avg, polls := s.liveAverage()
	c.JSON(http.StatusOK, gin.H{
		"summary":     derive.Stats(samples, s.cfg.Store.Criteria()),
		"liveAverage": avg,
		"livePolls":   polls,
	})
}

func (s *Server) handleLegend(c *gin.Context) {
	c.JSON(http.StatusOK, derive.NewLegend())
}

// resolve runs a search with the server's shared random source.
func (s *Server) resolve(query string) (search.Camera, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return search.Resolve(s.cfg.Catalog, query, s.rng)
}

func (s *Server) handleSearch(c *gin.Context) {
	cam, ok := s.resolve(strings.TrimSpace(c.Query("q")))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no match"})
		return
	}
	c.JSON(http.StatusOK, cam)
}

func (s *Server) handleHistoryPairs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"pairs":  s.cfg.History.Pairs(),
		"ranges": history.Ranges,
	})
}

func (s *Server) handleHistory(c *gin.Context) {
	pair, ok := s.cfg.History.Pair(c.Query("pair"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown pair"})
		return
	}
	r, err := history.ParseRange(c.DefaultQuery("range", string(history.Range24h)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	points, recorded, err := s.cfg.History.Series(pair, r, time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	filename := strings.NewReplacer(" ", "", "↔", "_").Replace(pair.Key) + "-" + string(r)
	switch format := c.DefaultQuery("format", "json"); format {
	case "json":
		c.JSON(http.StatusOK, gin.H{
			"pair":     pair,
			"range":    r,
			"label":    r.Label(),
			"recorded": recorded,
			"points":   points,
			"stats":    history.ComputeStats(points),
		})
	case "csv":
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename+".csv"))
		c.Header("Content-Type", "text/csv")
		if err := history.WriteCSV(c.Writer, points); err != nil {
			log.Printf("[history] Writing CSV for %s: %v", pair.Key, err)
		}
	case "parquet":
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename+".parquet"))
		c.Header("Content-Type", "application/vnd.apache.parquet")
		if err := history.WriteParquet(c.Writer, pair.Key, points); err != nil {
			log.Printf("[history] Writing parquet for %s: %v", pair.Key, err)
			c.Status(http.StatusInternalServerError)
		}
	case "png":
		c.Header("Content-Type", "image/png")
		if err := history.RenderChart(c.Writer, pair.Key+" ("+r.Label()+")", points, 960, 400); err != nil {
			log.Printf("[history] Rendering chart for %s: %v", pair.Key, err)
			c.Status(http.StatusInternalServerError)
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown format %q", format)})
	}
}

func (s *Server) handleLocate(c *gin.Context) {
	if s.cfg.GeoIP == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "geoip database not configured"})
		return
	}
	ip := net.ParseIP(c.DefaultQuery("ip", c.ClientIP()))
	if ip == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid address"})
		return
	}
	loc, err := s.cfg.GeoIP.Locate(ip)
	if errors.Is(err, ErrNoLocation) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		log.Printf("[geoip] Lookup %s: %v", ip, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}
	c.JSON(http.StatusOK, loc)
}
