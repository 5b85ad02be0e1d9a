// Package registry - named lookup tables mapping string keys to factories.
package registry

import (
	"context"
	"iter"
	"slices"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// DefaultNamespace is the namespace used when no namespace option is given.
const DefaultNamespace = "default"

var (
	// ErrNotFound is returned when no entry matches the requested name and namespace.
	ErrNotFound = errors.New("registry: entry not found")
	// ErrDuplicateKey is returned when a name is registered twice in one namespace.
	ErrDuplicateKey = errors.New("registry: duplicate key")
	// ErrInvalidEntry is returned for registrations without a name or factory.
	ErrInvalidEntry = errors.New("registry: invalid entry")
)

// Factory builds a component of type T from arguments of type A.
type Factory[T, A any] func(ctx context.Context, args A) (T, error)

// Key identifies an entry. Name and Namespace form the unique part, Type is
// descriptive and only used for filtering and display.
type Key struct {
	Name      string `json:"name" yaml:"name"`
	Namespace string `json:"namespace" yaml:"namespace"`
	Type      string `json:"type,omitempty" yaml:"type,omitempty"`
}

// String renders the key as namespace/name.
func (k Key) String() string {
	return k.Namespace + "/" + k.Name
}

// Entry is a registered factory plus its metadata.
type Entry[T, A any] struct {
	Key      Key
	Factory  Factory[T, A]
	Metadata map[string]string
}

type slot struct {
	name      string
	namespace string
}

// Registry holds factories producing T from A, keyed by (name, namespace).
//
// Lookups are safe for concurrent use. Registration normally happens once at
// start-up before any lookup.
type Registry[T, A any] struct {
	// The name of the registry, used in error messages.
	name    string
	mu      sync.RWMutex
	entries map[slot]*Entry[T, A]
	// order keeps registration order for listing.
	order []slot
}

// New creates an empty registry.
//
// Arguments:
//   - name: The name of the registry (e.g. "backbones").
//
// Returns:
//   - *Registry[T, A]: The empty registry.
func New[T, A any](name string) *Registry[T, A] {
	return &Registry[T, A]{
		name:    name,
		entries: make(map[slot]*Entry[T, A]),
	}
}

// Name returns the name of the registry.
func (r *Registry[T, A]) Name() string {
	return r.name
}

// Register stores a factory under name.
//
// Arguments:
//   - fn: The factory to store.
//   - name: The name to store it under.
//   - opts: Namespace, type, metadata and override options.
//
// Returns:
//   - error: ErrDuplicateKey if (name, namespace) is taken and WithOverride was
//     not given, ErrInvalidEntry if name is empty or fn is nil.
func (r *Registry[T, A]) Register(fn Factory[T, A], name string, opts ...Option) error {
	if name == "" {
		return errors.Wrapf(ErrInvalidEntry, "%s: empty name", r.name)
	}
	if fn == nil {
		return errors.Wrapf(ErrInvalidEntry, "%s: nil factory for %q", r.name, name)
	}
	o := newOptions(opts)
	key := slot{name: name, namespace: o.namespaceOrDefault()}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[key]; ok {
		if !o.override {
			return errors.Wrapf(ErrDuplicateKey, "%s: %s/%s", r.name, key.namespace, name)
		}
	} else {
		r.order = append(r.order, key)
	}

	r.entries[key] = &Entry[T, A]{
		Key:      Key{Name: name, Namespace: key.namespace, Type: o.typ},
		Factory:  fn,
		Metadata: o.metadata,
	}
	return nil
}

// MustRegister is Register but panics on error. Intended for start-up code.
func (r *Registry[T, A]) MustRegister(fn Factory[T, A], name string, opts ...Option) {
	if err := r.Register(fn, name, opts...); err != nil {
		panic(err)
	}
}

// Get returns the entry registered under name.
//
// Arguments:
//   - name: The name to look up.
//   - opts: WithNamespace selects the namespace (DefaultNamespace otherwise).
//
// Returns:
//   - Entry[T, A]: A copy of the entry.
//   - error: ErrNotFound if nothing matches.
func (r *Registry[T, A]) Get(name string, opts ...Option) (Entry[T, A], error) {
	o := newOptions(opts)
	key := slot{name: name, namespace: o.namespaceOrDefault()}

	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[key]
	if !ok {
		return Entry[T, A]{}, errors.Wrapf(ErrNotFound, "%s: %q in namespace %q (available: %v)",
			r.name, name, key.namespace, r.namesLocked(key.namespace))
	}
	return *e, nil
}

// Contains reports whether name is registered.
func (r *Registry[T, A]) Contains(name string, opts ...Option) bool {
	_, err := r.Get(name, opts...)
	return err == nil
}

// Resolve looks up name and invokes its factory with args.
//
// Arguments:
//   - ctx: Passed through to the factory.
//   - name: The name to resolve.
//   - args: The arguments for the factory.
//   - opts: WithNamespace selects the namespace.
//
// Returns:
//   - T: Whatever the factory returned.
//   - error: ErrNotFound, or the factory error.
func (r *Registry[T, A]) Resolve(ctx context.Context, name string, args A, opts ...Option) (T, error) {
	e, err := r.Get(name, opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	return e.Factory(ctx, args)
}

// List returns the registered keys in registration order. With WithNamespace
// only that namespace is listed. The sequence is lazy and can be ranged over
// more than once; each pass sees the entries registered at that time.
func (r *Registry[T, A]) List(opts ...Option) iter.Seq[Key] {
	o := newOptions(opts)
	return func(yield func(Key) bool) {
		r.mu.RLock()
		keys := make([]Key, 0, len(r.order))
		for _, s := range r.order {
			if o.namespaceSet && s.namespace != o.namespace {
				continue
			}
			keys = append(keys, r.entries[s].Key)
		}
		r.mu.RUnlock()

		for _, k := range keys {
			if !yield(k) {
				return
			}
		}
	}
}

// Available collects List into a slice.
func (r *Registry[T, A]) Available(opts ...Option) []Key {
	return slices.Collect(r.List(opts...))
}

// Names returns the sorted names registered in the selected namespace.
func (r *Registry[T, A]) Names(opts ...Option) []string {
	o := newOptions(opts)
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked(o.namespaceOrDefault())
}

// Filter returns the keys whose metadata has key k set to v.
func (r *Registry[T, A]) Filter(k, v string) []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var keys []Key
	for _, s := range r.order {
		e := r.entries[s]
		if e.Metadata[k] == v {
			keys = append(keys, e.Key)
		}
	}
	return keys
}

// Len returns the number of entries.
func (r *Registry[T, A]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Reset removes every entry.
func (r *Registry[T, A]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[slot]*Entry[T, A])
	r.order = nil
}

func (r *Registry[T, A]) namesLocked(namespace string) []string {
	var names []string
	for _, s := range r.order {
		if s.namespace == namespace {
			names = append(names, s.name)
		}
	}
	sort.Strings(names)
	return names
}
