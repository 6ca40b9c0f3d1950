package registry

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"
)

func TestStaticRegistry(t *testing.T) {
	ctx := context.Background()
	reg := NewStaticRegistry("Arith", Endpoint{Addr: "127.0.0.1:8001", Weight: 10})

	eps, err := reg.Discover(ctx, "Arith")
	if err != nil {
		t.Fatal(err)
	}
	if len(eps) != 1 || eps[0].Addr != "127.0.0.1:8001" {
		t.Fatalf("unexpected endpoints %v", eps)
	}

	if err := reg.Register(ctx, "Arith", Endpoint{Addr: "127.0.0.1:8002", Weight: 5}, time.Second); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(ctx, "Arith", Endpoint{Addr: "127.0.0.1:8001", Weight: 1}, time.Second); err != nil {
		t.Fatal(err)
	}
	eps, _ = reg.Discover(ctx, "Arith")
	if len(eps) != 2 || eps[0].Weight != 1 {
		t.Fatalf("re-register must replace in place, got %v", eps)
	}

	if err := reg.Deregister(ctx, "Arith", "127.0.0.1:8001"); err != nil {
		t.Fatal(err)
	}
	if err := reg.Deregister(ctx, "Arith", "127.0.0.1:8001"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expect ErrNotFound, got %v", err)
	}
	eps, _ = reg.Discover(ctx, "Arith")
	if len(eps) != 1 || eps[0].Addr != "127.0.0.1:8002" {
		t.Fatalf("unexpected endpoints after deregister %v", eps)
	}

	if eps, _ := reg.Discover(ctx, "Missing"); len(eps) != 0 {
		t.Fatalf("expect no endpoints, got %v", eps)
	}
}

func TestStaticRegistryDiscoverReturnsCopy(t *testing.T) {
	reg := NewStaticRegistry("Arith", Endpoint{Addr: "a"})
	eps, _ := reg.Discover(context.Background(), "Arith")
	eps[0].Addr = "mutated"
	again, _ := reg.Discover(context.Background(), "Arith")
	if again[0].Addr != "a" {
		t.Fatal("Discover must not expose internal state")
	}
}

func TestStaticRegistryWatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reg := NewStaticRegistry("Arith")

	ch, err := reg.Watch(ctx, "Arith")
	if err != nil {
		t.Fatal(err)
	}
	reg.Register(ctx, "Arith", Endpoint{Addr: "a"}, 0)
	reg.Register(ctx, "Arith", Endpoint{Addr: "b"}, 0)

	select {
	case eps := <-ch:
		if len(eps) != 2 {
			t.Fatalf("expect latest list with 2 endpoints, got %v", eps)
		}
	case <-time.After(time.Second):
		t.Fatal("no update")
	}

	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expect channel closed after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("watch channel not closed")
	}
}

// etcdEndpoints returns the etcd endpoints from MINI_JSONRPC_ETCD or skips.
func etcdEndpoints(t *testing.T) []string {
	t.Helper()
	env := os.Getenv("MINI_JSONRPC_ETCD")
	if env == "" {
		t.Skip("MINI_JSONRPC_ETCD not set")
	}
	return strings.Split(env, ",")
}

func TestEtcdRegisterAndDiscover(t *testing.T) {
	reg, err := NewEtcdRegistry(EtcdOptions{Endpoints: etcdEndpoints(t), Prefix: "/mini-jsonrpc-test"})
	if err != nil {
		t.Fatal(err)
	}
	defer reg.Close()
	ctx := context.Background()

	ep1 := Endpoint{Addr: "127.0.0.1:8001", Weight: 10, Version: "1.0"}
	ep2 := Endpoint{Addr: "127.0.0.1:8002", Weight: 5, Version: "1.0"}

	if err := reg.Register(ctx, "Arith", ep1, 10*time.Second); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(ctx, "Arith", ep2, 10*time.Second); err != nil {
		t.Fatal(err)
	}

	eps, err := reg.Discover(ctx, "Arith")
	if err != nil {
		t.Fatal(err)
	}
	if len(eps) != 2 {
		t.Fatalf("expect 2 endpoints, got %d", len(eps))
	}

	if err := reg.Deregister(ctx, "Arith", ep1.Addr); err != nil {
		t.Fatal(err)
	}

	eps, err = reg.Discover(ctx, "Arith")
	if err != nil {
		t.Fatal(err)
	}
	if len(eps) != 1 || eps[0] != ep2 {
		t.Fatalf("expect only %v after deregister, got %v", ep2, eps)
	}

	reg.Deregister(ctx, "Arith", ep2.Addr)
}

func TestEtcdWatch(t *testing.T) {
	reg, err := NewEtcdRegistry(EtcdOptions{Endpoints: etcdEndpoints(t), Prefix: "/mini-jsonrpc-test"})
	if err != nil {
		t.Fatal(err)
	}
	defer reg.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := reg.Watch(ctx, "Watched")
	if err != nil {
		t.Fatal(err)
	}

	ep := Endpoint{Addr: "127.0.0.1:9001"}
	if err := reg.Register(ctx, "Watched", ep, 10*time.Second); err != nil {
		t.Fatal(err)
	}
	defer reg.Deregister(context.Background(), "Watched", ep.Addr)

	select {
	case eps := <-ch:
		if len(eps) != 1 || eps[0].Addr != ep.Addr {
			t.Fatalf("unexpected watch update %v", eps)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no watch update")
	}
}
