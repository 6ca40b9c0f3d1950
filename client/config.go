package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"mini-jsonrpc/codec"
	"mini-jsonrpc/config"
	"mini-jsonrpc/jsonrpc"
	"mini-jsonrpc/loadbalance"
	"mini-jsonrpc/middleware"
	"mini-jsonrpc/registry"
	"mini-jsonrpc/transport"
)

// FromConfig wires a client from cfg: etcd discovery when etcd endpoints are
// configured, the static endpoint list otherwise.
//
// The middleware order is Logging → RateLimit → Retry → Timeout, so the
// timeout bounds each attempt and a retry may land on another endpoint.
func FromConfig(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("client: invalid config: %w", err)
	}

	kind, err := transport.ParseKind(cfg.Transport)
	if err != nil {
		return nil, err
	}
	codecType, err := codec.ParseCodecType(cfg.Codec)
	if err != nil {
		return nil, err
	}
	balancer, err := loadbalance.New(cfg.Balancer)
	if err != nil {
		return nil, err
	}

	var ids jsonrpc.IDGenerator = &jsonrpc.NumberIDGenerator{}
	if strings.EqualFold(cfg.IDKind, "ulid") {
		ids = jsonrpc.NewULIDGenerator()
	}

	mws := []middleware.Middleware{middleware.Logging(logger)}
	if cfg.RateLimit.Rate > 0 {
		mws = append(mws, middleware.RateLimit(cfg.RateLimit.Rate, cfg.RateLimit.Burst))
	}
	if cfg.Retry.Max > 0 {
		mws = append(mws, middleware.Retry(cfg.Retry.Max, cfg.Retry.BaseDelay, logger))
	}
	if cfg.Timeout > 0 {
		mws = append(mws, middleware.Timeout(cfg.Timeout))
	}

	reg, err := newRegistry(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	c, err := New(Options{
		Service:          cfg.Service,
		Registry:         reg,
		Balancer:         balancer,
		Transport:        kind,
		TransportOptions: transport.Options{Codec: codec.GetCodec(codecType), Logger: &logger},
		PoolSize:         cfg.PoolSize,
		Factory:          jsonrpc.NewFactory(cfg.Version, ids),
		Middleware:       mws,
		Logger:           &logger,
	})
	if err != nil {
		reg.Close()
		return nil, err
	}
	c.ownsRegistry = true
	return c, nil
}

func newRegistry(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (registry.Registry, error) {
	if len(cfg.Etcd.Endpoints) == 0 {
		return registry.NewStaticRegistry(cfg.Service, cfg.Endpoints...), nil
	}
	reg, err := registry.NewEtcdRegistry(registry.EtcdOptions{
		Endpoints: cfg.Etcd.Endpoints,
		Prefix:    cfg.Etcd.Prefix,
		Logger:    &logger,
	})
	if err != nil {
		return nil, err
	}
	// Fail fast on an unreachable cluster instead of on the first call
	eps, err := reg.Discover(ctx, cfg.Service)
	if err != nil {
		reg.Close()
		return nil, err
	}
	logger.Debug().Str("service", cfg.Service).Int("endpoints", len(eps)).Msg("discovered through etcd")
	return reg, nil
}
