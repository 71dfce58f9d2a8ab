package server

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sudorandom/latency-map/pkg/radar"
)

func outcome(err error) string {
	var apiErr *radar.APIError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &apiErr):
		return "api_error"
	default:
		return "internal_error"
	}
}

// proxyError maps an upstream failure to the 500 body. API-reported errors
// are passed through; anything else is logged and hidden behind a generic
// message.
func proxyError(err error) gin.H {
	var apiErr *radar.APIError
	if errors.As(err, &apiErr) {
		if len(apiErr.Errors) == 0 || string(apiErr.Errors) == "null" {
			return gin.H{"error": "Failed to fetch data"}
		}
		return gin.H{"error": apiErr.Errors}
	}
	log.Printf("[proxy] Error fetching latencies: %v", err)
	return gin.H{"error": "Internal Server Error"}
}

func (s *Server) handleRealTimeLatencies(c *gin.Context) {
	latencies, err := s.fetch(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, proxyError(err))
		return
	}
	if latencies == nil {
		latencies = []float64{}
	}
	c.JSON(http.StatusOK, gin.H{"latencies": latencies})
}
