// Package combiner groups sibling samples that must share one time stamp before they are published
// together.
package combiner

import (
	"time"

	"github.com/pkg/errors"
)

// Group is a complete set of components that matched on Stamp.
type Group struct {
	Stamp time.Time
	Parts map[string]interface{}
}

// EmitFunc receives each completed group.
type EmitFunc func(Group)

type part struct {
	stamp   time.Time
	payload interface{}
}

// Slot holds at most one in-flight group. A group is emitted once every required component has
// arrived with the same reconciled stamp; components that never arrive hold the slot open
// indefinitely. A Slot is not safe for concurrent use.
type Slot struct {
	name      string
	required  []string
	tolerance time.Duration
	emit      EmitFunc

	parts map[string]part
}

// Option configures a Slot.
type Option func(*Slot)

// WithTolerance lets stamps within d of each other match. The default of zero requires exact
// equality.
func WithTolerance(d time.Duration) Option {
	return func(s *Slot) {
		if d > 0 {
			s.tolerance = d
		}
	}
}

// NewSlot returns a slot that emits to emit once all required components share a stamp.
func NewSlot(name string, required []string, emit EmitFunc, opts ...Option) (*Slot, error) {
	if len(required) == 0 {
		return nil, errors.Errorf("combiner %q needs at least one component", name)
	}
	seen := map[string]bool{}
	for _, c := range required {
		if seen[c] {
			return nil, errors.Errorf("combiner %q lists component %q twice", name, c)
		}
		seen[c] = true
	}
	s := &Slot{
		name:     name,
		required: append([]string(nil), required...),
		emit:     emit,
		parts:    make(map[string]part, len(required)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Name of the slot.
func (s *Slot) Name() string {
	return s.name
}

// Offer stores payload for component, replacing any earlier value, and emits the group if every
// required component now carries a stamp matching this one. It reports whether a group was emitted.
// Components the slot does not require are dropped.
func (s *Slot) Offer(component string, stamp time.Time, payload interface{}) bool {
	if !s.requires(component) {
		return false
	}
	s.parts[component] = part{stamp: stamp, payload: payload}

	for _, c := range s.required {
		p, ok := s.parts[c]
		if !ok || !s.matches(p.stamp, stamp) {
			return false
		}
	}

	group := Group{Stamp: stamp, Parts: make(map[string]interface{}, len(s.required))}
	for _, c := range s.required {
		group.Parts[c] = s.parts[c].payload
	}
	// Cleared so the same match cannot fire twice.
	s.parts = make(map[string]part, len(s.required))
	if s.emit != nil {
		s.emit(group)
	}
	return true
}

// Pending returns the stamp currently held for component.
func (s *Slot) Pending(component string) (time.Time, bool) {
	p, ok := s.parts[component]
	return p.stamp, ok
}

func (s *Slot) requires(component string) bool {
	for _, c := range s.required {
		if c == component {
			return true
		}
	}
	return false
}

func (s *Slot) matches(a, b time.Time) bool {
	if s.tolerance == 0 {
		return a.Equal(b)
	}
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= s.tolerance
}
