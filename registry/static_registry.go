package registry

import (
	"context"
	"slices"
	"sync"
	"time"
)

// StaticRegistry keeps endpoints in memory, typically the ones listed in the
// config file. TTLs are ignored.
type StaticRegistry struct {
	mu       sync.RWMutex
	services map[string][]Endpoint
	watchers map[string][]chan []Endpoint
}

// NewStaticRegistry registers eps under service.
func NewStaticRegistry(service string, eps ...Endpoint) *StaticRegistry {
	r := &StaticRegistry{
		services: make(map[string][]Endpoint),
		watchers: make(map[string][]chan []Endpoint),
	}
	if len(eps) > 0 {
		r.services[service] = slices.Clone(eps)
	}
	return r
}

func (r *StaticRegistry) Register(_ context.Context, service string, ep Endpoint, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	eps := r.services[service]
	if i := slices.IndexFunc(eps, func(e Endpoint) bool { return e.Addr == ep.Addr }); i >= 0 {
		eps[i] = ep
	} else {
		eps = append(eps, ep)
	}
	r.services[service] = eps
	r.notifyLocked(service)
	return nil
}

func (r *StaticRegistry) Deregister(_ context.Context, service, addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	eps := r.services[service]
	i := slices.IndexFunc(eps, func(e Endpoint) bool { return e.Addr == addr })
	if i < 0 {
		return ErrNotFound
	}
	r.services[service] = slices.Delete(eps, i, i+1)
	r.notifyLocked(service)
	return nil
}

func (r *StaticRegistry) Discover(_ context.Context, service string) ([]Endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.services[service]), nil
}

func (r *StaticRegistry) Watch(ctx context.Context, service string) (<-chan []Endpoint, error) {
	ch := make(chan []Endpoint, 1)
	r.mu.Lock()
	r.watchers[service] = append(r.watchers[service], ch)
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		defer r.mu.Unlock()
		r.watchers[service] = slices.DeleteFunc(r.watchers[service], func(c chan []Endpoint) bool { return c == ch })
		close(ch)
	}()
	return ch, nil
}

// notifyLocked replaces any unread update with the latest list.
func (r *StaticRegistry) notifyLocked(service string) {
	for _, ch := range r.watchers[service] {
		select {
		case <-ch:
		default:
		}
		ch <- slices.Clone(r.services[service])
	}
}

func (r *StaticRegistry) Close() error { return nil }
