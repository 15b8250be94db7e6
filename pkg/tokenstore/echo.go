package tokenstore

import (
	"context"
	"maps"
	"sync"
)

// Change describes one write observed through an Echo.
type Change struct {
	Key   Key
	Value string // "" when deleted
}

// Echo wraps a durable Store with an in-memory copy and notifies watchers on
// every write, so several SDK instances sharing one Echo stay in step without
// re-reading the backing store.
type Echo struct {
	backing Store

	mu       sync.RWMutex
	cache    map[Key]string
	loaded   map[Key]bool
	watchers map[int]func([]Change)
	nextID   int
}

func NewEcho(backing Store) *Echo {
	return &Echo{
		backing:  backing,
		cache:    make(map[Key]string),
		loaded:   make(map[Key]bool),
		watchers: make(map[int]func([]Change)),
	}
}

func (e *Echo) Get(ctx context.Context, key Key) (string, bool, error) {
	e.mu.RLock()
	if e.loaded[key] {
		v := e.cache[key]
		e.mu.RUnlock()
		return v, v != "", nil
	}
	e.mu.RUnlock()

	v, ok, err := e.backing.Get(ctx, key)
	if err != nil {
		return "", false, err
	}

	e.mu.Lock()
	if !e.loaded[key] {
		e.cache[key] = v
		e.loaded[key] = true
	}
	e.mu.Unlock()
	return v, ok, nil
}

func (e *Echo) Put(ctx context.Context, values map[Key]string) error {
	if err := e.backing.Put(ctx, values); err != nil {
		return err
	}

	changes := make([]Change, 0, len(values))
	for k, v := range values {
		changes = append(changes, Change{Key: k, Value: v})
	}
	e.apply(changes)
	return nil
}

func (e *Echo) Delete(ctx context.Context, keys ...Key) error {
	if err := e.backing.Delete(ctx, keys...); err != nil {
		return err
	}

	changes := make([]Change, 0, len(keys))
	for _, k := range keys {
		changes = append(changes, Change{Key: k})
	}
	e.apply(changes)
	return nil
}

func (e *Echo) Close() error { return e.backing.Close() }

// Watch registers fn for every write. The returned func unsubscribes.
func (e *Echo) Watch(fn func([]Change)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextID
	e.nextID++
	e.watchers[id] = fn

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.watchers, id)
	}
}

func (e *Echo) apply(changes []Change) {
	if len(changes) == 0 {
		return
	}

	e.mu.Lock()
	for _, c := range changes {
		e.cache[c.Key] = c.Value
		e.loaded[c.Key] = true
	}
	watchers := maps.Clone(e.watchers)
	e.mu.Unlock()

	for _, fn := range watchers {
		fn(changes)
	}
}
