package render

import (
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"
)

var ErrTornDown = errors.New("map has been torn down")

// State is the lifecycle state of a Map.
type State int

const (
	Uninitialized State = iota
	Loading
	Ready
	TornDown
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case TornDown:
		return "torn-down"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Attachment is a group of sources and layers owned together. Attach must
// create only what is missing and Detach must remove only what exists, so
// both can be called again after a partial failure.
type Attachment interface {
	Name() string
	Attach(s Surface) error
	Detach(s Surface) error
}

// Clickable attachments receive clicks on the layers they own.
type Clickable interface {
	Attachment
	Click(layerID, featureID string) bool
}

type entry struct {
	a        Attachment
	attached bool
}

// Map tracks which attachments are registered on a surface and attaches
// them only while the style is loaded. Acquire before the ready transition
// defers the work; StyleLoaded performs it.
type Map struct {
	surface Surface

	mu         sync.Mutex
	state      State
	entries    []*entry
	onTeardown []func()
}

func NewMap(s Surface) *Map {
	return &Map{surface: s}
}

func (m *Map) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Map) find(a Attachment) int {
	return slices.IndexFunc(m.entries, func(e *entry) bool { return e.a == a })
}

// RequestStyle starts loading a style. Anything attached is gone after a
// style switch, so entries are re-attached on the next StyleLoaded.
func (m *Map) RequestStyle(url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == TornDown {
		return ErrTornDown
	}
	if err := m.surface.SetStyle(url); err != nil {
		return fmt.Errorf("set style: %w", err)
	}
	m.state = Loading
	for _, e := range m.entries {
		e.attached = false
	}
	return nil
}

// StyleLoaded is the ready transition. Every registered attachment that is
// not attached yet is attached now. Failed attachments are unregistered and
// their errors joined.
func (m *Map) StyleLoaded() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == TornDown {
		return ErrTornDown
	}
	m.state = Ready
	return m.attachPending()
}

// StyleReloaded handles the renderer dropping its style, for example on a
// theme switch. Entries go back to pending and are re-attached as soon as
// the new style reports loaded.
func (m *Map) StyleReloaded() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == TornDown {
		return ErrTornDown
	}
	m.state = Loading
	for _, e := range m.entries {
		e.attached = false
	}
	if !m.surface.IsStyleLoaded() {
		return nil
	}
	m.state = Ready
	return m.attachPending()
}

func (m *Map) attachPending() error {
	var errs []error
	kept := m.entries[:0]
	for _, e := range m.entries {
		if !e.attached {
			if err := m.attach(e); err != nil {
				errs = append(errs, err)
				continue
			}
		}
		kept = append(kept, e)
	}
	clear(m.entries[len(kept):])
	m.entries = kept
	return errors.Join(errs...)
}

func (m *Map) attach(e *entry) error {
	if err := e.a.Attach(m.surface); err != nil {
		if derr := e.a.Detach(m.surface); derr != nil {
			log.Printf("[map] Cleaning up %s after failed attach: %v", e.a.Name(), derr)
		}
		return fmt.Errorf("attach %s: %w", e.a.Name(), err)
	}
	e.attached = true
	return nil
}

// Acquire registers a. It is attached immediately when the map is ready and
// deferred otherwise. Acquiring twice is a no-op.
func (m *Map) Acquire(a Attachment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == TornDown {
		return ErrTornDown
	}
	if m.find(a) >= 0 {
		return nil
	}
	e := &entry{a: a}
	if m.state == Ready && m.surface.IsStyleLoaded() {
		if err := m.attach(e); err != nil {
			return err
		}
	}
	m.entries = append(m.entries, e)
	return nil
}

// Release detaches a if it is attached and forgets it.
func (m *Map) Release(a Attachment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.find(a)
	if i < 0 {
		return nil
	}
	e := m.entries[i]
	m.entries = slices.Delete(m.entries, i, i+1)
	if !e.attached {
		return nil
	}
	if err := a.Detach(m.surface); err != nil {
		return fmt.Errorf("detach %s: %w", a.Name(), err)
	}
	return nil
}

// Acquired reports whether a is registered, attached or not.
func (m *Map) Acquired(a Attachment) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.find(a) >= 0
}

// With runs fn against the surface only while the map is ready and a is
// attached. It reports whether fn ran.
func (m *Map) With(a Attachment, fn func(Surface) error) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Ready || !m.surface.IsStyleLoaded() {
		return false, nil
	}
	i := m.find(a)
	if i < 0 || !m.entries[i].attached {
		return false, nil
	}
	return true, fn(m.surface)
}

// Surface runs fn against the surface while the map is ready. It reports
// whether fn ran.
func (m *Map) Surface(fn func(Surface) error) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Ready || !m.surface.IsStyleLoaded() {
		return false, nil
	}
	return true, fn(m.surface)
}

// Click routes a click on layerID to the attached attachment owning it.
func (m *Map) Click(layerID, featureID string) bool {
	m.mu.Lock()
	var targets []Clickable
	for _, e := range m.entries {
		if c, ok := e.a.(Clickable); ok && e.attached {
			targets = append(targets, c)
		}
	}
	m.mu.Unlock()

	for _, c := range targets {
		if c.Click(layerID, featureID) {
			return true
		}
	}
	return false
}

// OnTeardown registers fn to run once when the map is torn down.
func (m *Map) OnTeardown(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == TornDown {
		go fn()
		return
	}
	m.onTeardown = append(m.onTeardown, fn)
}

// Teardown detaches every attachment in reverse order and runs the teardown
// hooks. The map accepts nothing afterwards.
func (m *Map) Teardown() error {
	m.mu.Lock()
	if m.state == TornDown {
		m.mu.Unlock()
		return nil
	}
	m.state = TornDown
	var errs []error
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if !e.attached {
			continue
		}
		if err := e.a.Detach(m.surface); err != nil {
			errs = append(errs, fmt.Errorf("detach %s: %w", e.a.Name(), err))
		}
	}
	m.entries = nil
	hooks := m.onTeardown
	m.onTeardown = nil
	m.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
	return errors.Join(errs...)
}
