package registry

// etcd is a distributed key-value store with strong consistency (Raft).
// Services use it as a shared phonebook:
//
//	Key:   {prefix}/{service}/{addr}
//	Value: JSON-encoded Endpoint
//
// Registration uses TTL leases: if the registering process dies, the lease
// expires and the entry disappears, so no ghost endpoints stay behind.

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// DefaultPrefix is the key prefix used when none is configured.
const DefaultPrefix = "/mini-jsonrpc"

// EtcdOptions configure NewEtcdRegistry.
type EtcdOptions struct {
	Endpoints   []string
	Prefix      string        // defaults to DefaultPrefix
	DialTimeout time.Duration // defaults to 5s
	Logger      *zerolog.Logger
}

// EtcdRegistry implements Registry on etcd v3.
type EtcdRegistry struct {
	client *clientv3.Client // thread-safe, shared across goroutines
	prefix string
	logger zerolog.Logger

	// Lease renewal outlives the ctx passed to Register; it stops on Close.
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	leases map[string]clientv3.LeaseID // key → lease
}

func NewEtcdRegistry(opts EtcdOptions) (*EtcdRegistry, error) {
	dialTimeout := opts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   opts.Endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("registry: connect etcd: %w", err)
	}
	prefix := strings.TrimRight(opts.Prefix, "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &EtcdRegistry{
		client: c,
		prefix: prefix,
		logger: logger.With().Str("registry", "etcd").Logger(),
		ctx:    ctx,
		cancel: cancel,
		leases: make(map[string]clientv3.LeaseID),
	}, nil
}

func (r *EtcdRegistry) servicePrefix(service string) string {
	return r.prefix + "/" + service + "/"
}

// Register stores ep with a TTL lease and keeps the lease alive.
//
// The lease id lives in a mutex-guarded map, not a single struct field, so one
// registry can hold registrations for several endpoints at once.
func (r *EtcdRegistry) Register(ctx context.Context, service string, ep Endpoint, ttl time.Duration) error {
	seconds := int64(ttl / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	lease, err := r.client.Grant(ctx, seconds)
	if err != nil {
		return fmt.Errorf("registry: grant lease: %w", err)
	}

	val, err := json.Marshal(ep)
	if err != nil {
		return err
	}

	key := r.servicePrefix(service) + ep.Addr
	if _, err := r.client.Put(ctx, key, string(val), clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("registry: put %s: %w", key, err)
	}

	ch, err := r.client.KeepAlive(r.ctx, lease.ID)
	if err != nil {
		return fmt.Errorf("registry: keep alive: %w", err)
	}

	r.mu.Lock()
	old, replaced := r.leases[key]
	r.leases[key] = lease.ID
	r.mu.Unlock()
	if replaced {
		_, _ = r.client.Revoke(ctx, old)
	}

	// Drain KeepAlive responses so the channel never fills up
	go func() {
		for range ch {
		}
		r.logger.Debug().Str("key", key).Msg("lease keep-alive stopped")
	}()
	return nil
}

// Deregister deletes the entry and revokes its lease.
func (r *EtcdRegistry) Deregister(ctx context.Context, service, addr string) error {
	key := r.servicePrefix(service) + addr
	resp, err := r.client.Delete(ctx, key)
	if err != nil {
		return fmt.Errorf("registry: delete %s: %w", key, err)
	}

	r.mu.Lock()
	lease, ok := r.leases[key]
	delete(r.leases, key)
	r.mu.Unlock()
	if ok {
		if _, err := r.client.Revoke(ctx, lease); err != nil {
			r.logger.Warn().Err(err).Str("key", key).Msg("revoke lease")
		}
	}
	if resp.Deleted == 0 && !ok {
		return ErrNotFound
	}
	return nil
}

// Discover returns every endpoint registered under service.
func (r *EtcdRegistry) Discover(ctx context.Context, service string) ([]Endpoint, error) {
	resp, err := r.client.Get(ctx, r.servicePrefix(service), clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("registry: discover %s: %w", service, err)
	}

	eps := make([]Endpoint, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var ep Endpoint
		if err := json.Unmarshal(kv.Value, &ep); err != nil {
			r.logger.Warn().Err(err).Bytes("key", kv.Key).Msg("skipping malformed entry")
			continue
		}
		eps = append(eps, ep)
	}
	return eps, nil
}

// Watch uses etcd's server-push watch on the service prefix and re-reads the
// full list on every event, which is simpler than applying events one by one.
func (r *EtcdRegistry) Watch(ctx context.Context, service string) (<-chan []Endpoint, error) {
	ch := make(chan []Endpoint, 1)
	watchChan := r.client.Watch(ctx, r.servicePrefix(service), clientv3.WithPrefix())

	go func() {
		defer close(ch)
		for resp := range watchChan {
			if err := resp.Err(); err != nil {
				r.logger.Warn().Err(err).Str("service", service).Msg("watch")
				continue
			}
			eps, err := r.Discover(ctx, service)
			if err != nil {
				r.logger.Warn().Err(err).Str("service", service).Msg("refresh after watch event")
				continue
			}
			select {
			case ch <- eps:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Close stops lease renewal and disconnects. Registered entries expire with
// their leases.
func (r *EtcdRegistry) Close() error {
	r.cancel()
	return r.client.Close()
}
