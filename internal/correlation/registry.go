// Package correlation derives per-invocation identities and links child
// invocations to their parent invocation without callers passing any
// context explicitly. Owners (the receivers instrumented methods run
// on) are tracked by pointer identity in a non-owning registry: an
// entry never keeps its owner alive, and is reclaimed automatically
// when the owner becomes unreachable.
package correlation

import (
	"reflect"
	"runtime"
	"sync"

	"github.com/google/uuid"

	"github.com/helixir/call-trace-service/internal/observe"
)

// Context identifies one instrumented invocation node. It is immutable
// after creation.
type Context struct {
	// ProcessID is generated fresh for every instrumented call.
	ProcessID string
	// ParentID is the ProcessID of the nearest ancestor call on the same
	// owner, or empty when this call roots a new chain.
	ParentID string
}

// Root reports whether the context has no parent.
func (c *Context) Root() bool {
	return c.ParentID == ""
}

func newContext(parentID string) *Context {
	return &Context{ProcessID: uuid.NewString(), ParentID: parentID}
}

// Registry associates owners with their most recently created Context.
// At most one live context exists per owner; registering a new one
// replaces the prior entry.
//
// The association is non-owning: owners are keyed by pointer identity
// and never referenced by the registry itself. A finalizer attached to
// the owner evicts its entry when the owner becomes unreachable, so an
// entry that is never explicitly removed is still reclaimed with its
// owner. Explicit removal via End clears the finalizer so the owner can
// be tracked again later.
//
// Registry is safe for concurrent use; finalizers run on a runtime
// goroutine. Because entries are keyed by address, a finalizer queued
// for a collected owner can evict the entry of a new owner that was
// allocated at the same address and registered before the finalizer
// ran. The evicted owner then starts a fresh chain on its next call,
// the same outcome as any other lost parent link in per-owner
// correlation.
type Registry struct {
	mu      sync.Mutex
	entries map[uintptr]*Context
	metrics *observe.Metrics
}

// NewRegistry creates an empty registry. metrics may be nil.
func NewRegistry(metrics *observe.Metrics) *Registry {
	return &Registry{
		entries: make(map[uintptr]*Context),
		metrics: metrics,
	}
}

// BeginTopLevel allocates a fresh parentless context. Top-level chains
// are not tracked by owner; every top-level call is independent and the
// registry is left untouched.
func (r *Registry) BeginTopLevel() *Context {
	if r.metrics != nil {
		r.metrics.RecordContextCreated("top_level")
	}
	return newContext("")
}

// BeginChild allocates a fresh context for a non-top-level call on
// owner. If the owner has no entry the context is parentless and
// becomes the owner's entry; if an entry exists, the new context's
// ParentID is the existing entry's ProcessID and the entry is replaced.
//
// Owners that are not pointers cannot be identity-tracked; they receive
// a fresh parentless context that is not stored.
func (r *Registry) BeginChild(owner any) *Context {
	if r.metrics != nil {
		r.metrics.RecordContextCreated("child")
	}

	key, ok := ownerKey(owner)
	if !ok {
		return newContext("")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	prev, exists := r.entries[key]

	var ctx *Context
	if exists {
		ctx = newContext(prev.ProcessID)
	} else {
		ctx = newContext("")
		// First time this owner is seen: arrange for its entry to be
		// evicted when the owner itself is collected.
		runtime.SetFinalizer(owner, func(any) { r.evict(key) })
	}
	r.entries[key] = ctx
	r.recordSizeLocked()

	return ctx
}

// Current returns the owner's current entry, if one exists.
func (r *Registry) Current(owner any) (*Context, bool) {
	key, ok := ownerKey(owner)
	if !ok {
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	ctx, exists := r.entries[key]
	return ctx, exists
}

// Has reports whether an entry currently exists for owner.
func (r *Registry) Has(owner any) bool {
	_, exists := r.Current(owner)
	return exists
}

// End removes the owner's entry. It is invoked when the top-level call
// that started a chain completes; non-top-level calls leave their entry
// in place so sibling calls on the same owner still see the most recent
// context as their parent.
func (r *Registry) End(owner any) {
	key, ok := ownerKey(owner)
	if !ok {
		return
	}

	r.mu.Lock()
	_, exists := r.entries[key]
	delete(r.entries, key)
	r.recordSizeLocked()
	r.mu.Unlock()

	if exists {
		runtime.SetFinalizer(owner, nil)
	}
}

// Len returns the number of live entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// evict runs from the owner's finalizer once the owner is unreachable.
func (r *Registry) evict(key uintptr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, key)
	r.recordSizeLocked()
}

func (r *Registry) recordSizeLocked() {
	if r.metrics != nil {
		r.metrics.RecordRegistrySize(len(r.entries))
	}
}

// ownerKey derives the identity key for an owner. Only pointer owners
// have a stable identity a finalizer can be attached to.
func ownerKey(owner any) (uintptr, bool) {
	v := reflect.ValueOf(owner)
	if !v.IsValid() || v.Kind() != reflect.Pointer || v.IsNil() {
		return 0, false
	}
	return v.Pointer(), true
}
