package mgmt

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ccastromar/availability-gate/internal/logx"
	"github.com/ccastromar/availability-gate/internal/metrics"
)

var (
	ErrInstanceNotFound = errors.New("instance not found")
	ErrAlreadyExists    = errors.New("instance already exists")
	ErrClosed           = errors.New("registry closed")
)

type resource struct {
	name      ObjectName
	listeners []Listener
}

// Registry is an in-process management server. Resources are registered by
// object name; events emitted for a resource are delivered asynchronously to
// every listener attached to it.
type Registry struct {
	mu        sync.RWMutex
	resources map[string]*resource
	closed    bool

	seq      atomic.Uint64
	inflight sync.WaitGroup
}

func NewRegistry() *Registry {
	return &Registry{resources: make(map[string]*resource)}
}

var _ Source = (*Registry)(nil)

func (r *Registry) RegisterResource(name string) error {
	on, err := ParseObjectName(name)
	if err != nil {
		return err
	}
	key := on.Canonical()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.resources[key]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, name)
	}
	r.resources[key] = &resource{name: on}
	logx.Debug("Mgmt", "registered %s", on)
	return nil
}

// UnregisterResource removes the resource together with its listeners.
func (r *Registry) UnregisterResource(name string) error {
	on, err := ParseObjectName(name)
	if err != nil {
		return err
	}
	key := on.Canonical()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.resources[key]; !ok {
		return fmt.Errorf("%w: %s", ErrInstanceNotFound, name)
	}
	delete(r.resources, key)
	logx.Debug("Mgmt", "unregistered %s", on)
	return nil
}

func (r *Registry) IsRegistered(name string) bool {
	on, err := ParseObjectName(name)
	if err != nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.resources[on.Canonical()]
	return ok
}

// Resources returns the registered names sorted.
func (r *Registry) Resources() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.resources))
	for _, res := range r.resources {
		out = append(out, res.name.String())
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (r *Registry) AddListener(name string, l Listener) error {
	if l == nil {
		return errors.New("listener must not be nil")
	}
	on, err := ParseObjectName(name)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.resources[on.Canonical()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrInstanceNotFound, name)
	}
	res.listeners = append(res.listeners, l)
	return nil
}

// Emit publishes an event of the given kind on behalf of the named resource.
// It returns once deliveries have been scheduled, not when they complete.
func (r *Registry) Emit(name, kind string) (Event, error) {
	on, err := ParseObjectName(name)
	if err != nil {
		return Event{}, err
	}

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return Event{}, ErrClosed
	}
	res, ok := r.resources[on.Canonical()]
	if !ok {
		r.mu.RUnlock()
		return Event{}, fmt.Errorf("%w: %s", ErrInstanceNotFound, name)
	}
	ev := Event{
		ID:        uuid.NewString(),
		Sequence:  r.seq.Add(1),
		Source:    res.name.String(),
		Kind:      kind,
		Timestamp: time.Now(),
	}
	listeners := make([]Listener, len(res.listeners))
	copy(listeners, res.listeners)
	r.inflight.Add(len(listeners))
	r.mu.RUnlock()

	if len(listeners) == 0 {
		metrics.MgmtEvents.Inc(map[string]string{"kind": kind, "result": "no_listener"})
	}
	for _, l := range listeners {
		go r.deliver(l, ev)
	}
	logx.Debug("Mgmt", "emitted %s #%d from %s to %d listener(s)", ev.Kind, ev.Sequence, ev.Source, len(listeners))
	return ev, nil
}

func (r *Registry) deliver(l Listener, ev Event) {
	defer r.inflight.Done()
	defer func() {
		if rec := recover(); rec != nil {
			metrics.MgmtEvents.Inc(map[string]string{"kind": ev.Kind, "result": "panic"})
			logx.Error("Mgmt", "listener panicked on %s #%d: %v", ev.Kind, ev.Sequence, rec)
		}
	}()
	l.HandleEvent(ev)
	metrics.MgmtEvents.Inc(map[string]string{"kind": ev.Kind, "result": "delivered"})
}

// Close rejects further events and waits for in-flight deliveries.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.inflight.Wait()
}
