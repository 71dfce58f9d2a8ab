// Package derive turns reference datasets, live latencies and filter criteria
// into map-ready GeoJSON feature collections. Every function here is pure:
// the same inputs always marshal to the same bytes.
package derive

import (
	"github.com/paulmach/go.geojson"
	"github.com/sudorandom/latency-map/pkg/dataset"
	"github.com/sudorandom/latency-map/pkg/filter"
)

// Bucket is a latency severity class.
type Bucket string

const (
	Low    Bucket = "low"
	Medium Bucket = "medium"
	High   Bucket = "high"
)

const (
	MediumThreshold = 60
	HighThreshold   = 120
)

// AllBuckets lists the buckets in display order.
var AllBuckets = []Bucket{Low, Medium, High}

// Classify buckets a latency: low below 60ms, medium below 120ms, high otherwise.
func Classify(ms float64) Bucket {
	switch {
	case ms < MediumThreshold:
		return Low
	case ms < HighThreshold:
		return Medium
	default:
		return High
	}
}

// Color is the feature colour of a bucket.
func (b Bucket) Color() string {
	switch b {
	case Low:
		return "green"
	case Medium:
		return "yellow"
	default:
		return "red"
	}
}

// Buckets holds one line collection per severity.
type Buckets struct {
	Low    *geojson.FeatureCollection `json:"low"`
	Medium *geojson.FeatureCollection `json:"medium"`
	High   *geojson.FeatureCollection `json:"high"`
}

func NewBuckets() Buckets {
	return Buckets{
		Low:    geojson.NewFeatureCollection(),
		Medium: geojson.NewFeatureCollection(),
		High:   geojson.NewFeatureCollection(),
	}
}

func (b Buckets) For(bucket Bucket) *geojson.FeatureCollection {
	switch bucket {
	case Low:
		return b.Low
	case Medium:
		return b.Medium
	default:
		return b.High
	}
}

// Len is the total number of features across buckets.
func (b Buckets) Len() int {
	return len(b.Low.Features) + len(b.Medium.Features) + len(b.High.Features)
}

// Overlay replaces sample i's latency with live[i] where one exists. Samples
// past the end of live keep their baseline value. The join is purely
// positional: it assumes live values arrive in the same order as the baseline.
func Overlay(samples []dataset.LatencySample, live []float64) []dataset.LatencySample {
	out := make([]dataset.LatencySample, len(samples))
	for i, s := range samples {
		if i < len(live) {
			s.LatencyMs = live[i]
		}
		out[i] = s
	}
	return out
}

func point(c dataset.Coordinates) []float64 {
	return []float64{c.Lng(), c.Lat()}
}

// Lines builds the exchange-to-region connection features for the current
// criteria, split by bucket. Samples whose exchange is not selected, whose
// provider is not selected, or whose endpoints are unknown are dropped.
func Lines(cat *dataset.Catalog, live []float64, c filter.Criteria) Buckets {
	out := NewBuckets()
	if !c.Layers.Realtime {
		return out
	}
	for _, s := range Overlay(cat.Samples(), live) {
		if !c.InRange(s.LatencyMs) {
			continue
		}
		if !c.HasExchange(s.Exchange) || !c.HasProvider(s.Provider) {
			continue
		}
		ex, ok := cat.Exchange(s.Exchange)
		if !ok || !ex.Coords.Valid() {
			continue
		}
		region, ok := cat.Region(s.Provider, s.RegionCode)
		if !ok || !region.Coords.Valid() {
			continue
		}

		bucket := Classify(s.LatencyMs)
		f := geojson.NewLineStringFeature([][]float64{point(ex.Coords), point(region.Coords)})
		f.SetProperty("latency", s.LatencyMs)
		f.SetProperty("color", bucket.Color())
		f.SetProperty("bucket", string(bucket))
		f.SetProperty("exchange", s.Exchange)
		f.SetProperty("provider", s.Provider)
		f.SetProperty("regionCode", s.RegionCode)
		fc := out.For(bucket)
		fc.AddFeature(f)
	}
	return out
}
