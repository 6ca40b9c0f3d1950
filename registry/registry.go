// Package registry tells the client where a service's endpoints live.
package registry

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Deregister for an endpoint that is not registered.
var ErrNotFound = errors.New("registry: endpoint not registered")

// Endpoint is one reachable peer of a service.
type Endpoint struct {
	Addr    string `json:"addr" yaml:"addr"`
	Weight  int    `json:"weight,omitempty" yaml:"weight"` // Weight for load balancing
	Version string `json:"version,omitempty" yaml:"version"`
}

type Registry interface {
	// Register announces ep under service until ttl passes without renewal.
	Register(ctx context.Context, service string, ep Endpoint, ttl time.Duration) error
	Deregister(ctx context.Context, service, addr string) error
	Discover(ctx context.Context, service string) ([]Endpoint, error)
	// Watch emits the full endpoint list after every change until ctx ends.
	Watch(ctx context.Context, service string) (<-chan []Endpoint, error)
	Close() error
}
