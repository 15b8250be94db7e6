// Package observable holds a single state value and notifies subscribers
// about the keys that changed on each update.
package observable

import (
	"sort"
	"sync"
)

// DiffFunc reports which keys differ between two values.
type DiffFunc[T any, K comparable] func(prev, next T) []K

// View is the read side of a Record, handed to observers.
type View[T any, K comparable] interface {
	Snapshot() T
	OnChange(key K, fn func(T)) func()
	OnAny(fn func(T, []K)) func()
}

// Record is a mutable value guarded by a lock. Mutation only happens through
// Update; readers get copies through Snapshot.
//
// Subscribers run without the lock held, in the order they subscribed, so a
// callback may call Snapshot or Update. Notifications are delivered one
// update at a time in commit order: whichever Update finds the queue idle
// drains it, and an Update that commits while another is delivering returns
// once its notification is queued.
type Record[T any, K comparable] struct {
	mu    sync.RWMutex
	value T
	diff  DiffFunc[T, K]
	clone func(T) T

	next   uint64
	byKey  map[K]map[uint64]func(T)
	all    map[uint64]func(T, []K)
	closed bool

	queue      []notification[T]
	delivering bool
}

type notification[T any] struct {
	snap  T
	calls []func(T)
}

// New creates a record. clone deep-copies a value for snapshots and may be
// nil when T has no reference fields.
func New[T any, K comparable](initial T, diff DiffFunc[T, K], clone func(T) T) *Record[T, K] {
	if clone == nil {
		clone = func(v T) T { return v }
	}
	return &Record[T, K]{
		value: clone(initial),
		diff:  diff,
		clone: clone,
		byKey: make(map[K]map[uint64]func(T)),
		all:   make(map[uint64]func(T, []K)),
	}
}

// Snapshot returns a copy of the current value.
func (r *Record[T, K]) Snapshot() T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clone(r.value)
}

// Update applies fn to the value and notifies subscribers of the keys that
// changed. It returns the changed keys.
func (r *Record[T, K]) Update(fn func(*T)) []K {
	r.mu.Lock()
	prev := r.clone(r.value)
	fn(&r.value)
	changed := r.diff(prev, r.value)
	if len(changed) == 0 || r.closed {
		r.mu.Unlock()
		return changed
	}

	r.queue = append(r.queue, notification[T]{snap: r.clone(r.value), calls: r.callsFor(changed)})
	if r.delivering {
		r.mu.Unlock()
		return changed
	}
	r.delivering = true
	r.mu.Unlock()

	r.drain()
	return changed
}

// callsFor lists the subscribers interested in changed, key subscribers
// first. Callers hold mu.
func (r *Record[T, K]) callsFor(changed []K) []func(T) {
	type call struct {
		id uint64
		fn func(T)
	}
	var keyed []call
	seen := make(map[uint64]bool)
	for _, k := range changed {
		for id, cb := range r.byKey[k] {
			if !seen[id] {
				seen[id] = true
				keyed = append(keyed, call{id, cb})
			}
		}
	}
	anyCalls := make([]call, 0, len(r.all))
	for id, cb := range r.all {
		anyCalls = append(anyCalls, call{id, func(v T) { cb(v, changed) }})
	}

	sort.Slice(keyed, func(i, j int) bool { return keyed[i].id < keyed[j].id })
	sort.Slice(anyCalls, func(i, j int) bool { return anyCalls[i].id < anyCalls[j].id })

	out := make([]func(T), 0, len(keyed)+len(anyCalls))
	for _, c := range keyed {
		out = append(out, c.fn)
	}
	for _, c := range anyCalls {
		out = append(out, c.fn)
	}
	return out
}

// drain delivers queued notifications until the queue is empty. Only the
// goroutine that set delivering calls it.
func (r *Record[T, K]) drain() {
	for {
		r.mu.Lock()
		if len(r.queue) == 0 || r.closed {
			r.queue = nil
			r.delivering = false
			r.mu.Unlock()
			return
		}
		n := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()

		for _, fn := range n.calls {
			fn(n.snap)
		}
	}
}

// OnChange subscribes fn to changes of key. The returned func unsubscribes
// and is safe to call more than once.
func (r *Record[T, K]) OnChange(key K, fn func(T)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	id := r.next
	if r.byKey[key] == nil {
		r.byKey[key] = make(map[uint64]func(T))
	}
	r.byKey[key][id] = fn

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.byKey[key], id)
	}
}

// OnAny subscribes fn to every change, receiving the changed keys.
func (r *Record[T, K]) OnAny(fn func(T, []K)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	id := r.next
	r.all[id] = fn

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.all, id)
	}
}

// Close detaches every subscriber. Later updates still apply but notify nobody.
func (r *Record[T, K]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.byKey = make(map[K]map[uint64]func(T))
	r.all = make(map[uint64]func(T, []K))
}
