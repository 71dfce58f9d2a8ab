package render

import (
	"fmt"
	"slices"
	"sync"

	"github.com/paulmach/go.geojson"
	"github.com/sudorandom/latency-map/pkg/search"
)

// Command is one surface call in wire form.
type Command struct {
	Op     string                     `json:"op"`
	ID     string                     `json:"id,omitempty"`
	Source *Source                    `json:"source,omitempty"`
	Layer  *Layer                     `json:"layer,omitempty"`
	Data   *geojson.FeatureCollection `json:"data,omitempty"`
	Name   string                     `json:"name,omitempty"`
	Value  any                        `json:"value,omitempty"`
	Camera *search.Camera             `json:"camera,omitempty"`
	Style  string                     `json:"style,omitempty"`
}

// RecordingSurface keeps the source and layer state a remote renderer would
// have and forwards every accepted call to Emit. It rejects the calls the
// renderer would reject, so callers see duplicate creation as an error.
type RecordingSurface struct {
	Emit func(Command)

	mu          sync.Mutex
	styleLoaded bool
	sources     map[string]Source
	layers      []Layer
	paint       map[string]map[string]any
	layout      map[string]map[string]any
	camera      *search.Camera
	log         []Command
	keepLog     bool
}

func NewRecordingSurface(emit func(Command)) *RecordingSurface {
	s := &RecordingSurface{Emit: emit}
	s.reset()
	return s
}

// KeepLog makes the surface retain every command for later inspection.
func (s *RecordingSurface) KeepLog() *RecordingSurface {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keepLog = true
	return s
}

func (s *RecordingSurface) reset() {
	s.sources = make(map[string]Source)
	s.layers = nil
	s.paint = make(map[string]map[string]any)
	s.layout = make(map[string]map[string]any)
}

func (s *RecordingSurface) emit(c Command) {
	if s.keepLog {
		s.log = append(s.log, c)
	}
	if s.Emit != nil {
		s.Emit(c)
	}
}

// MarkStyleLoaded records that the renderer finished loading its style.
func (s *RecordingSurface) MarkStyleLoaded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.styleLoaded = true
}

// ResetStyle records a style reload: the renderer has dropped every source
// and layer and loaded a fresh style.
func (s *RecordingSurface) ResetStyle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	s.styleLoaded = true
}

func (s *RecordingSurface) SetStyle(url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	s.styleLoaded = false
	s.emit(Command{Op: "setStyle", Style: url})
	return nil
}

func (s *RecordingSurface) IsStyleLoaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.styleLoaded
}

func (s *RecordingSurface) HasSource(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sources[id]
	return ok
}

func (s *RecordingSurface) AddSource(id string, src Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.styleLoaded {
		return ErrStyleNotLoaded
	}
	if _, ok := s.sources[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateSource, id)
	}
	s.sources[id] = src
	s.emit(Command{Op: "addSource", ID: id, Source: &src})
	return nil
}

func (s *RecordingSurface) SetSourceData(id string, data *geojson.FeatureCollection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingSource, id)
	}
	src.Data = data
	s.sources[id] = src
	s.emit(Command{Op: "setData", ID: id, Data: data})
	return nil
}

func (s *RecordingSurface) RemoveSource(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sources[id]; !ok {
		return fmt.Errorf("%w: %s", ErrMissingSource, id)
	}
	for _, l := range s.layers {
		if l.Source == id {
			return fmt.Errorf("source %s is still used by layer %s", id, l.ID)
		}
	}
	delete(s.sources, id)
	s.emit(Command{Op: "removeSource", ID: id})
	return nil
}

func (s *RecordingSurface) layerIndex(id string) int {
	return slices.IndexFunc(s.layers, func(l Layer) bool { return l.ID == id })
}

func (s *RecordingSurface) HasLayer(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.layerIndex(id) >= 0
}

func (s *RecordingSurface) AddLayer(layer Layer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.styleLoaded {
		return ErrStyleNotLoaded
	}
	if s.layerIndex(layer.ID) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateLayer, layer.ID)
	}
	if _, ok := s.sources[layer.Source]; !ok {
		return fmt.Errorf("%w: %s (layer %s)", ErrMissingSource, layer.Source, layer.ID)
	}
	s.layers = append(s.layers, layer)
	s.emit(Command{Op: "addLayer", ID: layer.ID, Layer: &layer})
	return nil
}

func (s *RecordingSurface) RemoveLayer(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.layerIndex(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrMissingLayer, id)
	}
	s.layers = slices.Delete(s.layers, i, i+1)
	delete(s.paint, id)
	delete(s.layout, id)
	s.emit(Command{Op: "removeLayer", ID: id})
	return nil
}

func setProp(m map[string]map[string]any, layerID, name string, value any) {
	props, ok := m[layerID]
	if !ok {
		props = make(map[string]any)
		m[layerID] = props
	}
	props[name] = value
}

func (s *RecordingSurface) SetPaintProperty(layerID, name string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.layerIndex(layerID) < 0 {
		return fmt.Errorf("%w: %s", ErrMissingLayer, layerID)
	}
	setProp(s.paint, layerID, name, value)
	s.emit(Command{Op: "setPaintProperty", ID: layerID, Name: name, Value: value})
	return nil
}

func (s *RecordingSurface) SetLayoutProperty(layerID, name string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.layerIndex(layerID) < 0 {
		return fmt.Errorf("%w: %s", ErrMissingLayer, layerID)
	}
	setProp(s.layout, layerID, name, value)
	s.emit(Command{Op: "setLayoutProperty", ID: layerID, Name: name, Value: value})
	return nil
}

func (s *RecordingSurface) FlyTo(cam search.Camera) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.camera = &cam
	s.emit(Command{Op: "flyTo", Camera: &cam})
	return nil
}

// Sources returns the ids of the current sources, sorted.
func (s *RecordingSurface) Sources() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.sources))
	for id := range s.sources {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Layers returns the ids of the current layers in draw order.
func (s *RecordingSurface) Layers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, len(s.layers))
	for i, l := range s.layers {
		ids[i] = l.ID
	}
	return ids
}

func (s *RecordingSurface) SourceData(id string) (*geojson.FeatureCollection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[id]
	return src.Data, ok
}

func (s *RecordingSurface) Paint(layerID, name string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.paint[layerID][name]
	return v, ok
}

func (s *RecordingSurface) Camera() (search.Camera, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.camera == nil {
		return search.Camera{}, false
	}
	return *s.camera, true
}

// Log returns the retained commands; see KeepLog.
func (s *RecordingSurface) Log() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.log)
}
