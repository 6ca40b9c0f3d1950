// Package client sends JSON-RPC calls to the endpoints of one service.
//
// Every round trip walks the same path:
//
//	Call ─→ Factory (id) ─→ middleware chain ─→ Registry (endpoints)
//	     ─→ Balancer (pick) ─→ transport pool ─→ Transport.RoundTrip
//	     ←─ Element.ResponseFrom (match by id, validate, parse result)
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"mini-jsonrpc/jsonrpc"
	"mini-jsonrpc/loadbalance"
	"mini-jsonrpc/middleware"
	"mini-jsonrpc/registry"
	"mini-jsonrpc/transport"
	"mini-jsonrpc/value"
)

// ErrClosed is returned by calls on a closed client.
var ErrClosed = errors.New("client: closed")

// DialFunc opens a transport to one endpoint address.
type DialFunc func(ctx context.Context, addr string) (transport.Transport, error)

// Options configure New. Service and Registry are required.
type Options struct {
	Service  string
	Registry registry.Registry
	Balancer loadbalance.Balancer // defaults to round robin

	Transport        transport.Kind // defaults to tcp
	TransportOptions transport.Options
	// Dial replaces transport.Dial, e.g. to hand in pre-connected transports.
	Dial DialFunc

	PoolSize   int              // transports per endpoint, defaults to 1
	Factory    *jsonrpc.Factory // defaults to version 2.0 with number ids
	Middleware []middleware.Middleware
	Logger     *zerolog.Logger
}

type Client struct {
	service  string
	registry registry.Registry
	balancer loadbalance.Balancer
	dial     DialFunc
	factory  *jsonrpc.Factory
	invoke   middleware.Invoker
	logger   zerolog.Logger
	poolSize int
	// set by FromConfig, which creates the registry itself
	ownsRegistry bool

	mu        sync.Mutex
	pools     map[string]chan transport.Transport // addr → pool; a nil slot is dialed on demand
	endpoints []registry.Endpoint                 // latest list from Watch, nil until known
	closed    bool
	done      chan struct{} // closed by Close; wakes callers waiting for a pool slot

	cancel context.CancelFunc
}

// New builds a client and starts watching the service's endpoints.
func New(opts Options) (*Client, error) {
	if opts.Service == "" {
		return nil, errors.New("client: service is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("client: registry is required")
	}

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	c := &Client{
		service:  opts.Service,
		registry: opts.Registry,
		balancer: opts.Balancer,
		dial:     opts.Dial,
		factory:  opts.Factory,
		logger:   logger.With().Str("service", opts.Service).Logger(),
		poolSize: max(opts.PoolSize, 1),
		pools:    make(map[string]chan transport.Transport),
		done:     make(chan struct{}),
	}
	if c.balancer == nil {
		c.balancer = &loadbalance.RoundRobinBalancer{}
	}
	if c.factory == nil {
		c.factory = jsonrpc.NewFactory(jsonrpc.Version, nil)
	}
	if c.dial == nil {
		kind := opts.Transport
		if kind == "" {
			kind = transport.KindTCP
		}
		topts := opts.TransportOptions
		if topts.Logger == nil {
			topts.Logger = &c.logger
		}
		c.dial = func(ctx context.Context, addr string) (transport.Transport, error) {
			return transport.Dial(ctx, kind, addr, topts)
		}
	}
	c.invoke = middleware.Chain(opts.Middleware...)(c.roundTrip)

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	if updates, err := c.registry.Watch(ctx, c.service); err != nil {
		c.logger.Warn().Err(err).Msg("watch endpoints; falling back to discovery per call")
	} else {
		go c.watch(updates)
	}
	return c, nil
}

func (c *Client) watch(updates <-chan []registry.Endpoint) {
	for eps := range updates {
		c.mu.Lock()
		c.endpoints = eps
		c.mu.Unlock()
		c.logger.Debug().Int("endpoints", len(eps)).Msg("endpoint list changed")
	}
}

// Factory returns the factory that numbers this client's calls. Elements built
// with it may be sent through Batch.
func (c *Client) Factory() *jsonrpc.Factory {
	return c.factory
}

// Call sends req and decodes the matching response. A notification request is
// sent without waiting, and Call returns the zero R.
func Call[R any](ctx context.Context, c *Client, req jsonrpc.Request[R]) (R, error) {
	var zero R
	el := jsonrpc.Make(c.factory, req)
	if el.IsNotification() {
		return zero, c.send(ctx, el.Method(), el.Body())
	}

	reply, err := c.invoke(ctx, el.Body())
	if err != nil {
		return zero, err
	}
	result, err := el.ResponseFrom(reply)
	if err != nil {
		c.logger.Debug().Err(err).Str("method", el.Method()).Stringer("id", el.ID()).Msg("call failed")
		return zero, err
	}
	return result, nil
}

// Message is the part of a request a notification needs.
type Message interface {
	Method() string
	Params() (value.Value, bool)
}

// Notify sends req as a notification: no id, no reply.
func (c *Client) Notify(ctx context.Context, req Message) error {
	var params *value.Value
	if p, ok := req.Params(); ok {
		params = &p
	}
	el := jsonrpc.NewElement(jsonrpc.Raw(req.Method(), params), c.factory.Version(), jsonrpc.ID{})
	return c.send(ctx, el.Method(), el.Body())
}

// Batch sends calls as one payload and returns the raw reply; decode it with
// each call's Check or typed ResponseFrom. A batch of notifications only
// returns value.Null().
func (c *Client) Batch(ctx context.Context, calls ...jsonrpc.Call) (value.Value, error) {
	if len(calls) == 0 {
		return value.Value{}, errors.New("client: empty batch")
	}
	b := jsonrpc.NewBatch(calls...)
	if !b.ExpectsResponse() {
		return value.Null(), c.send(ctx, "batch", b.Body())
	}
	return c.invoke(ctx, b.Body())
}

// roundTrip is the innermost Invoker.
func (c *Client) roundTrip(ctx context.Context, payload value.Value) (value.Value, error) {
	ep, err := c.pick(ctx, methodKey(payload))
	if err != nil {
		return value.Value{}, err
	}
	t, err := c.getTransport(ctx, ep.Addr)
	if err != nil {
		return value.Value{}, err
	}
	reply, err := t.RoundTrip(ctx, payload)
	c.putTransport(ep.Addr, t, err)
	return reply, err
}

func (c *Client) send(ctx context.Context, method string, payload value.Value) error {
	ep, err := c.pick(ctx, method)
	if err != nil {
		return err
	}
	t, err := c.getTransport(ctx, ep.Addr)
	if err != nil {
		return err
	}
	err = t.Notify(ctx, payload)
	c.putTransport(ep.Addr, t, err)
	if err != nil {
		return err
	}
	c.logger.Debug().Str("method", method).Str("endpoint", ep.Addr).Msg("notification sent")
	return nil
}

// pick chooses the endpoint for a call keyed by its method name.
func (c *Client) pick(ctx context.Context, key string) (*registry.Endpoint, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	eps := c.endpoints
	c.mu.Unlock()

	if eps == nil {
		var err error
		eps, err = c.registry.Discover(ctx, c.service)
		if err != nil {
			return nil, fmt.Errorf("client: discover %s: %w", c.service, err)
		}
	}
	ep, err := c.balancer.Pick(key, eps)
	if err != nil {
		return nil, fmt.Errorf("client: %s: %w", c.service, err)
	}
	return ep, nil
}

func methodKey(payload value.Value) string {
	if items, ok := payload.AsArray(); ok && len(items) > 0 {
		payload = items[0]
	}
	if m, ok := payload.Field("method"); ok {
		if name, ok := m.AsString(); ok {
			return name
		}
	}
	return ""
}

// getTransport borrows a transport for addr, dialing lazily. Each endpoint
// gets a pool of poolSize slots created on first use.
func (c *Client) getTransport(ctx context.Context, addr string) (transport.Transport, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	pool, ok := c.pools[addr]
	if !ok {
		pool = make(chan transport.Transport, c.poolSize)
		for i := 0; i < c.poolSize; i++ {
			pool <- nil
		}
		c.pools[addr] = pool
	}
	c.mu.Unlock()

	var t transport.Transport
	select {
	case t = <-pool:
	case <-c.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	// Close may have won the race against a slot handed back
	select {
	case <-c.done:
		if t != nil {
			t.Close()
		}
		return nil, ErrClosed
	default:
	}
	if t != nil {
		return t, nil
	}

	t, err := c.dial(ctx, addr)
	if err != nil {
		pool <- nil
		return nil, fmt.Errorf("client: dial %s: %w", addr, err)
	}
	c.logger.Debug().Str("endpoint", addr).Msg("transport connected")
	return t, nil
}

// putTransport returns t to its pool. A transport that reported ErrClosed is
// dropped and its slot dialed again on next use.
func (c *Client) putTransport(addr string, t transport.Transport, err error) {
	c.mu.Lock()
	pool := c.pools[addr]
	closed := c.closed
	c.mu.Unlock()

	if closed {
		t.Close()
		return
	}
	if errors.Is(err, transport.ErrClosed) {
		c.logger.Warn().Err(err).Str("endpoint", addr).Msg("dropping broken transport")
		t.Close()
		t = nil
	}
	pool <- t
}

// Close stops watching and closes idle transports, plus the registry when the
// client created it. Borrowed transports are closed when they come back, and
// callers still waiting for a pool slot fail with ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	pools := make([]chan transport.Transport, 0, len(c.pools))
	for _, pool := range c.pools {
		pools = append(pools, pool)
	}
	c.mu.Unlock()

	c.cancel()
	var errs []error
	for _, pool := range pools {
	drain:
		for {
			select {
			case t := <-pool:
				if t != nil {
					errs = append(errs, t.Close())
				}
			default:
				break drain
			}
		}
	}
	if c.ownsRegistry {
		errs = append(errs, c.registry.Close())
	}
	return errors.Join(errs...)
}
