// Package registry routes decoded device data sets to their handlers.
package registry

import (
	"sort"

	"go.viam.com/inertialsense/logging"
	"go.viam.com/inertialsense/protocol"
)

// A Handler consumes one data set payload. Returned errors are decode failures; they are counted
// and dropped.
type Handler func(payload []byte) error

// A VariantSelector extracts the union tag from a payload whose DID carries several shapes.
type VariantSelector func(payload []byte) (uint8, bool)

// Observer is told the outcome of every dispatch.
type Observer interface {
	FrameDispatched(did protocol.DID)
	FrameIgnored(did protocol.DID)
	FrameFailed(did protocol.DID)
}

type nopObserver struct{}

func (nopObserver) FrameDispatched(protocol.DID) {}
func (nopObserver) FrameIgnored(protocol.DID)    {}
func (nopObserver) FrameFailed(protocol.DID)     {}

// Registry is a DID keyed dispatch table. It holds no telemetry state of its own.
type Registry struct {
	logger   logging.Logger
	observer Observer

	handlers  map[protocol.DID]Handler
	selectors map[protocol.DID]VariantSelector
	variants  map[protocol.DID]map[uint8]Handler
}

// New returns an empty registry. A nil observer discards dispatch outcomes.
func New(logger logging.Logger, observer Observer) *Registry {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Registry{
		logger:    logger,
		observer:  observer,
		handlers:  map[protocol.DID]Handler{},
		selectors: map[protocol.DID]VariantSelector{},
		variants:  map[protocol.DID]map[uint8]Handler{},
	}
}

// Register binds handler to did, replacing any previous binding.
func (r *Registry) Register(did protocol.DID, handler Handler) {
	if _, ok := r.handlers[did]; ok {
		r.logger.Debugw("replacing handler", "did", did.String())
	}
	r.handlers[did] = handler
}

// Handle binds fn to did, decoding each payload as T first.
func Handle[T any](r *Registry, did protocol.DID, fn func(*T)) {
	r.Register(did, func(payload []byte) error {
		var msg T
		if err := protocol.Decode(payload, &msg); err != nil {
			return err
		}
		fn(&msg)
		return nil
	})
}

// SetVariantSelector marks did as a tagged union; payloads are routed by the selected tag to the
// handlers added with RegisterVariant.
func (r *Registry) SetVariantSelector(did protocol.DID, selector VariantSelector) {
	r.selectors[did] = selector
}

// RegisterVariant binds handler to one tag of a tagged union DID.
func (r *Registry) RegisterVariant(did protocol.DID, tag uint8, handler Handler) {
	if r.variants[did] == nil {
		r.variants[did] = map[uint8]Handler{}
	}
	r.variants[did][tag] = handler
}

// Registered reports whether any handler is bound to did.
func (r *Registry) Registered(did protocol.DID) bool {
	if _, ok := r.handlers[did]; ok {
		return true
	}
	return len(r.variants[did]) > 0
}

// DIDs returns every DID with a handler, in ascending order.
func (r *Registry) DIDs() []protocol.DID {
	seen := map[protocol.DID]struct{}{}
	for did := range r.handlers {
		seen[did] = struct{}{}
	}
	for did, tags := range r.variants {
		if len(tags) > 0 {
			seen[did] = struct{}{}
		}
	}
	dids := make([]protocol.DID, 0, len(seen))
	for did := range seen {
		dids = append(dids, did)
	}
	sort.Slice(dids, func(i, j int) bool { return dids[i] < dids[j] })
	return dids
}

// Dispatch routes payload to the handler bound to did. Unregistered DIDs and unknown union tags are
// ignored. It reports whether a handler ran successfully.
func (r *Registry) Dispatch(did protocol.DID, payload []byte) bool {
	handler, ok := r.lookup(did, payload)
	if !ok {
		r.observer.FrameIgnored(did)
		return false
	}
	if err := handler(payload); err != nil {
		r.observer.FrameFailed(did)
		r.logger.Debugw("dropping undecodable data set", "did", did.String(), "error", err)
		return false
	}
	r.observer.FrameDispatched(did)
	return true
}

func (r *Registry) lookup(did protocol.DID, payload []byte) (Handler, bool) {
	if selector, ok := r.selectors[did]; ok {
		tag, ok := selector(payload)
		if !ok {
			return nil, false
		}
		handler, ok := r.variants[did][tag]
		return handler, ok
	}
	handler, ok := r.handlers[did]
	return handler, ok
}
