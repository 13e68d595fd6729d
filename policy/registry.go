package policy

import (
	"sync"
	"sync/atomic"
)

// Subscriber is notified after a method's resolved Descriptor changes.
type Subscriber func(methodID string, d Descriptor)

// snapshot is the immutable, fully-resolved view published by Registry.
// A new snapshot is built and swapped in on every Upsert; readers never
// see a torn mix of old and new descriptors.
type snapshot struct {
	descriptors map[string]Descriptor
}

// Registry resolves and republishes per-method policy descriptors.
//
// GetPolicy reads an atomic.Pointer snapshot: wait-free, no lock, no
// blocking on a concurrent reload. Every
// mutating call (Upsert, or a source layer changing) rebuilds the
// affected method's layers, re-merges, and swaps a freshly copied
// snapshot into the pointer.
type Registry struct {
	current atomic.Pointer[snapshot]

	mu         sync.Mutex // guards layers + subscribers; never held during GetPolicy
	attribute  map[string]layer
	fluent     map[string]layer
	file       map[string]layer
	override   map[string]layer
	subscribers []Subscriber
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	r := &Registry{
		attribute: make(map[string]layer),
		fluent:    make(map[string]layer),
		file:      make(map[string]layer),
		override:  make(map[string]layer),
	}
	r.current.Store(&snapshot{descriptors: make(map[string]Descriptor)})
	return r
}

// GetPolicy returns the resolved descriptor for methodID and the layer
// that last contributed to it. The zero Descriptor (Active() == false)
// is returned for an unknown method id.
func (r *Registry) GetPolicy(methodID string) (Descriptor, Provenance) {
	snap := r.current.Load()
	d, ok := snap.descriptors[methodID]
	if !ok {
		return Descriptor{MethodID: methodID}, ProvenanceAttribute
	}
	return d, d.Provenance
}

// SetAttribute installs the compile-time-attribute layer for methodID.
// In this runtime "attribute" means whatever the decorator layer (out of
// scope here) supplies at registration time — the lowest-precedence
// layer.
func (r *Registry) SetAttribute(methodID string, partial Descriptor, set fieldSetBuilder) {
	r.setLayer(methodID, r.attribute, ProvenanceAttribute, partial, set)
}

// SetFluent installs the startup-fluent-builder layer for methodID.
func (r *Registry) SetFluent(methodID string, partial Descriptor, set fieldSetBuilder) {
	r.setLayer(methodID, r.fluent, ProvenanceFluent, partial, set)
}

// SetOverride installs the runtime-override layer for methodID — the
// highest-precedence layer, meant for callers that need to adjust a
// single method's policy without touching its file or fluent config.
func (r *Registry) SetOverride(methodID string, partial Descriptor, set fieldSetBuilder) {
	r.setLayer(methodID, r.override, ProvenanceOverride, partial, set)
}

// setFileLayer installs the configuration-file layer; unexported because
// only FileSource should drive it (via its viper watch callback).
func (r *Registry) setFileLayer(methodID string, partial Descriptor, set fieldSetBuilder) {
	r.setLayer(methodID, r.file, ProvenanceFile, partial, set)
}

func (r *Registry) setLayer(methodID string, table map[string]layer, prov Provenance, partial Descriptor, set fieldSetBuilder) {
	r.mu.Lock()
	table[methodID] = layer{provenance: prov, set: set.mask, partial: partial}
	d := r.resolveLocked(methodID)
	r.publishLocked(methodID, d)
	r.mu.Unlock()

	for _, sub := range r.snapshotSubscribers() {
		go sub(methodID, d)
	}
}

// Upsert is the direct, single-call form of SetOverride: it behaves as a
// fire-and-forget runtime override, the highest-precedence layer.
func (r *Registry) Upsert(methodID string, d Descriptor) {
	b := NewFieldSet().
		Duration(d.Duration).
		SlidingExtension(d.SlidingExtension).
		RefreshThreshold(d.RefreshThreshold).
		Version(d.Version).
		StampedeMode(d.StampedeMode).
		KeyGenerator(d.KeyGenerator)
	if len(d.Metadata) > 0 {
		b = b.Metadata(d.Metadata)
	}
	r.SetOverride(methodID, d, b)
}

// Subscribe registers fn to be called (on its own goroutine, never
// blocking a snapshot swap) whenever any method's resolved descriptor
// changes.
func (r *Registry) Subscribe(fn Subscriber) {
	r.mu.Lock()
	r.subscribers = append(r.subscribers, fn)
	r.mu.Unlock()
}

func (r *Registry) snapshotSubscribers() []Subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Subscriber, len(r.subscribers))
	copy(out, r.subscribers)
	return out
}

// resolveLocked must be called with r.mu held.
func (r *Registry) resolveLocked(methodID string) Descriptor {
	var layers []layer
	if l, ok := r.attribute[methodID]; ok {
		layers = append(layers, l)
	}
	if l, ok := r.fluent[methodID]; ok {
		layers = append(layers, l)
	}
	if l, ok := r.file[methodID]; ok {
		layers = append(layers, l)
	}
	if l, ok := r.override[methodID]; ok {
		layers = append(layers, l)
	}
	return mergeLayers(methodID, layers...)
}

// publishLocked must be called with r.mu held. It copies the current
// snapshot's map (not the map's values, which are immutable Descriptors)
// plus the one changed entry, then swaps the pointer.
func (r *Registry) publishLocked(methodID string, d Descriptor) {
	old := r.current.Load()
	next := &snapshot{descriptors: make(map[string]Descriptor, len(old.descriptors)+1)}
	for k, v := range old.descriptors {
		next.descriptors[k] = v
	}
	next.descriptors[methodID] = d
	r.current.Store(next)
}
