// Package render manages map sources and layers on a map surface: when they
// may be created, keeping one of each, and removing them again.
package render

import (
	"errors"

	"github.com/paulmach/go.geojson"
	"github.com/sudorandom/latency-map/pkg/search"
)

var (
	ErrDuplicateSource = errors.New("source already exists")
	ErrDuplicateLayer  = errors.New("layer already exists")
	ErrMissingSource   = errors.New("source does not exist")
	ErrMissingLayer    = errors.New("layer does not exist")
	ErrStyleNotLoaded  = errors.New("style is not loaded")
)

// Source is a GeoJSON data source definition.
type Source struct {
	Type        string                     `json:"type"`
	Data        *geojson.FeatureCollection `json:"data"`
	LineMetrics bool                       `json:"lineMetrics,omitempty"`
}

func geoJSONSource(data *geojson.FeatureCollection, lineMetrics bool) Source {
	if data == nil {
		data = geojson.NewFeatureCollection()
	}
	return Source{Type: "geojson", Data: data, LineMetrics: lineMetrics}
}

// Layer is a style layer definition.
type Layer struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Source string         `json:"source"`
	Layout map[string]any `json:"layout,omitempty"`
	Paint  map[string]any `json:"paint,omitempty"`
}

// Surface is the subset of a map renderer's API the layer groups drive.
// Implementations report ErrDuplicate*/ErrMissing* the way the renderer
// would reject the call.
type Surface interface {
	SetStyle(url string) error
	IsStyleLoaded() bool

	HasSource(id string) bool
	AddSource(id string, src Source) error
	SetSourceData(id string, data *geojson.FeatureCollection) error
	RemoveSource(id string) error

	HasLayer(id string) bool
	AddLayer(layer Layer) error
	RemoveLayer(id string) error

	SetPaintProperty(layerID, name string, value any) error
	SetLayoutProperty(layerID, name string, value any) error

	FlyTo(cam search.Camera) error
}
