package render

import (
	"errors"
	"sync"

	"github.com/paulmach/go.geojson"
	"github.com/sudorandom/latency-map/pkg/derive"
)

func ensureSource(s Surface, id string, src Source) error {
	if s.HasSource(id) {
		return nil
	}
	return s.AddSource(id, src)
}

func ensureLayer(s Surface, l Layer) error {
	if s.HasLayer(l.ID) {
		return nil
	}
	return s.AddLayer(l)
}

// removeAll removes layers first and then sources, skipping ids that do not
// exist.
func removeAll(s Surface, layers, sources []string) error {
	var errs []error
	for _, id := range layers {
		if s.HasLayer(id) {
			errs = append(errs, s.RemoveLayer(id))
		}
	}
	for _, id := range sources {
		if s.HasSource(id) {
			errs = append(errs, s.RemoveSource(id))
		}
	}
	return errors.Join(errs...)
}

// LatencySourceID and LatencyLayerID name the per-bucket source and line layer.
func LatencySourceID(b derive.Bucket) string { return string(b) + "-latencies" }
func LatencyLayerID(b derive.Bucket) string  { return string(b) + "-latency-lines" }

// Shades are the two gradient colours of each bucket's line layer.
var Shades = map[derive.Bucket][2]string{
	derive.Low:    {"#22c55e", "green"},
	derive.Medium: {"yellow", "#eab308"},
	derive.High:   {"#f87171", "red"},
}

func lineGradient(stops ...any) []any {
	return append([]any{"interpolate", []any{"linear"}, []any{"line-progress"}}, stops...)
}

// LatencyLayers owns one GeoJSON source and one line layer per bucket.
type LatencyLayers struct {
	mu      sync.Mutex
	buckets derive.Buckets
}

func NewLatencyLayers() *LatencyLayers {
	return &LatencyLayers{buckets: derive.NewBuckets()}
}

func (l *LatencyLayers) Name() string { return "latency-lines" }

func (l *LatencyLayers) current() derive.Buckets {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buckets
}

func (l *LatencyLayers) Attach(s Surface) error {
	b := l.current()
	for _, bucket := range derive.AllBuckets {
		sid := LatencySourceID(bucket)
		if err := ensureSource(s, sid, geoJSONSource(b.For(bucket), true)); err != nil {
			return err
		}
		shades := Shades[bucket]
		err := ensureLayer(s, Layer{
			ID:     LatencyLayerID(bucket),
			Type:   "line",
			Source: sid,
			Layout: map[string]any{"line-cap": "round", "line-join": "round"},
			Paint: map[string]any{
				"line-width":    2.5,
				"line-opacity":  0.9,
				"line-gradient": lineGradient(0, shades[1], 1, shades[0]),
			},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (l *LatencyLayers) Detach(s Surface) error {
	var layers, sources []string
	for _, bucket := range derive.AllBuckets {
		layers = append(layers, LatencyLayerID(bucket))
		sources = append(sources, LatencySourceID(bucket))
	}
	return removeAll(s, layers, sources)
}

// Update stores b and, when the layers are attached, replaces the data of
// the existing sources. Sources are never recreated here.
func (l *LatencyLayers) Update(m *Map, b derive.Buckets) error {
	l.mu.Lock()
	l.buckets = b
	l.mu.Unlock()

	_, err := m.With(l, func(s Surface) error {
		var errs []error
		for _, bucket := range derive.AllBuckets {
			errs = append(errs, s.SetSourceData(LatencySourceID(bucket), b.For(bucket)))
		}
		return errors.Join(errs...)
	})
	return err
}

const (
	RegionPolygonSource = "cloud-regions-source"
	RegionPolygonLayer  = "cloud-regions-polygon"
	RegionMarkerSource  = "cloud-region-markers"
	RegionCircleLayer   = "cloud-regions-circle"
	RegionLabelLayer    = "cloud-regions-label"
)

// RegionLayers owns the region hull polygons, their centroid circles and
// the server count labels. Clicking a circle hands the region's metadata to
// OnSelect.
type RegionLayers struct {
	OnSelect func(derive.RegionInfo)

	features derive.RegionFeatures
}

func NewRegionLayers(features derive.RegionFeatures, onSelect func(derive.RegionInfo)) *RegionLayers {
	return &RegionLayers{features: features, OnSelect: onSelect}
}

func (r *RegionLayers) Name() string { return "cloud-regions" }

func (r *RegionLayers) Attach(s Surface) error {
	if err := ensureSource(s, RegionPolygonSource, geoJSONSource(r.features.Polygons, false)); err != nil {
		return err
	}
	err := ensureLayer(s, Layer{
		ID:     RegionPolygonLayer,
		Type:   "fill",
		Source: RegionPolygonSource,
		Paint: map[string]any{
			"fill-color":         []any{"get", "color"},
			"fill-opacity":       0.15,
			"fill-outline-color": []any{"get", "color"},
		},
	})
	if err != nil {
		return err
	}
	if err := ensureSource(s, RegionMarkerSource, geoJSONSource(r.features.Markers, false)); err != nil {
		return err
	}
	err = ensureLayer(s, Layer{
		ID:     RegionCircleLayer,
		Type:   "circle",
		Source: RegionMarkerSource,
		Paint: map[string]any{
			"circle-radius":       6,
			"circle-color":        []any{"get", "color"},
			"circle-stroke-width": 1.5,
			"circle-stroke-color": "#111",
			"circle-opacity":      0.85,
		},
	})
	if err != nil {
		return err
	}
	return ensureLayer(s, Layer{
		ID:     RegionLabelLayer,
		Type:   "symbol",
		Source: RegionMarkerSource,
		Layout: map[string]any{
			"text-field": []any{
				"format",
				[]any{"get", "serverCount"}, map[string]any{"font-scale": 1},
				"\n",
				[]any{"get", "code"},
			},
			"text-font":   []any{"Open Sans Semibold", "Arial Unicode MS Bold"},
			"text-size":   11,
			"text-anchor": "top",
			"text-offset": []any{0, 1.2},
		},
		Paint: map[string]any{"text-color": "#111827"},
	})
}

func (r *RegionLayers) Detach(s Surface) error {
	return removeAll(s,
		[]string{RegionLabelLayer, RegionCircleLayer, RegionPolygonLayer},
		[]string{RegionMarkerSource, RegionPolygonSource},
	)
}

// Inspect returns the metadata attached to a region feature.
func (r *RegionLayers) Inspect(featureID string) (derive.RegionInfo, bool) {
	return r.features.Info(featureID)
}

func (r *RegionLayers) Click(layerID, featureID string) bool {
	if layerID != RegionCircleLayer {
		return false
	}
	info, ok := r.Inspect(featureID)
	if !ok {
		return false
	}
	if r.OnSelect != nil {
		r.OnSelect(info)
	}
	return true
}

const (
	ExchangeMarkerID = "exchange-markers"
	ServerMarkerID   = "cloud-server-markers"
)

// MarkerLayers owns the exchange and cloud server point markers.
type MarkerLayers struct {
	mu      sync.Mutex
	markers derive.MarkerFeatures
}

func NewMarkerLayers() *MarkerLayers {
	return &MarkerLayers{markers: derive.MarkerFeatures{
		Exchanges: geojson.NewFeatureCollection(),
		Servers:   geojson.NewFeatureCollection(),
	}}
}

func (l *MarkerLayers) Name() string { return "markers" }

func (l *MarkerLayers) Attach(s Surface) error {
	l.mu.Lock()
	mk := l.markers
	l.mu.Unlock()

	if err := ensureSource(s, ExchangeMarkerID, geoJSONSource(mk.Exchanges, false)); err != nil {
		return err
	}
	err := ensureLayer(s, Layer{
		ID:     ExchangeMarkerID,
		Type:   "circle",
		Source: ExchangeMarkerID,
		Paint: map[string]any{
			"circle-radius":       5,
			"circle-color":        []any{"get", "color"},
			"circle-stroke-width": 1,
			"circle-stroke-color": "#ffffff",
		},
	})
	if err != nil {
		return err
	}
	if err := ensureSource(s, ServerMarkerID, geoJSONSource(mk.Servers, false)); err != nil {
		return err
	}
	return ensureLayer(s, Layer{
		ID:     ServerMarkerID,
		Type:   "circle",
		Source: ServerMarkerID,
		Paint: map[string]any{
			"circle-radius":       3,
			"circle-color":        []any{"get", "color"},
			"circle-stroke-width": 1,
			"circle-stroke-color": "#111",
			"circle-opacity":      0.7,
		},
	})
}

func (l *MarkerLayers) Detach(s Surface) error {
	return removeAll(s,
		[]string{ServerMarkerID, ExchangeMarkerID},
		[]string{ServerMarkerID, ExchangeMarkerID},
	)
}

func (l *MarkerLayers) Update(m *Map, mk derive.MarkerFeatures) error {
	l.mu.Lock()
	l.markers = mk
	l.mu.Unlock()

	_, err := m.With(l, func(s Surface) error {
		return errors.Join(
			s.SetSourceData(ExchangeMarkerID, mk.Exchanges),
			s.SetSourceData(ServerMarkerID, mk.Servers),
		)
	})
	return err
}
