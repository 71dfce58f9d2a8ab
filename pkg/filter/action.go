package filter

import "fmt"

// Action is the wire form of a store mutation, shared by the REST API and
// map sessions.
type Action struct {
	Type    string   `json:"action"`
	Name    string   `json:"name,omitempty"`
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
	Query   string   `json:"query,omitempty"`
	Layer   string   `json:"layer,omitempty"`
	Visible *bool    `json:"visible,omitempty"`
}

// Dispatch validates a and applies it to s. Latency ranges are clamped here,
// before they reach the store.
func (s *Store) Dispatch(a Action) (Criteria, error) {
	switch a.Type {
	case "toggle-exchange":
		if a.Name == "" {
			return Criteria{}, fmt.Errorf("%s: name is required", a.Type)
		}
		return s.ToggleExchange(a.Name), nil
	case "toggle-provider":
		if a.Name == "" {
			return Criteria{}, fmt.Errorf("%s: name is required", a.Type)
		}
		return s.ToggleProvider(a.Name), nil
	case "set-latency-range":
		if a.Min == nil || a.Max == nil {
			return Criteria{}, fmt.Errorf("%s: min and max are required", a.Type)
		}
		lo, hi := ClampRange(*a.Min, *a.Max)
		return s.SetLatencyRange(lo, hi), nil
	case "set-query":
		return s.SetQuery(a.Query), nil
	case "set-layer-visibility":
		l, err := ParseLayer(a.Layer)
		if err != nil {
			return Criteria{}, err
		}
		if a.Visible == nil {
			return Criteria{}, fmt.Errorf("%s: visible is required", a.Type)
		}
		return s.SetLayerVisibility(l, *a.Visible), nil
	case "reset-all":
		return s.ResetAll(), nil
	}
	return Criteria{}, fmt.Errorf("unknown action %q", a.Type)
}
