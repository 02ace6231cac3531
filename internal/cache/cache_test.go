package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// Both implementations must satisfy the same contract, so the suite runs
// against each.
func implementations(t *testing.T) map[string]Cache {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return map[string]Cache{
		"memory": NewMemory(),
		"redis":  NewRedis(client),
	}
}

func TestCache_SetGetRemove(t *testing.T) {
	ctx := context.Background()

	for name, c := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			if _, found, err := c.Get(ctx, "missing"); err != nil || found {
				t.Fatalf("Get(missing) = found=%v err=%v", found, err)
			}

			if err := c.Set(ctx, "k", "v", time.Minute); err != nil {
				t.Fatalf("Set: %v", err)
			}
			v, found, err := c.Get(ctx, "k")
			if err != nil || !found || v != "v" {
				t.Fatalf("Get(k) = %q found=%v err=%v", v, found, err)
			}

			if err := c.Remove(ctx, "k"); err != nil {
				t.Fatalf("Remove: %v", err)
			}
			if _, found, _ := c.Get(ctx, "k"); found {
				t.Fatal("key survived Remove")
			}

			if err := c.Remove(ctx, "never-existed"); err != nil {
				t.Fatalf("Remove(missing) must not error: %v", err)
			}
		})
	}
}

func TestCache_SetNXExclusivity(t *testing.T) {
	ctx := context.Background()

	for name, c := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			created, err := c.SetNX(ctx, "idem:root:events:k1", "1", time.Minute)
			if err != nil || !created {
				t.Fatalf("first SetNX = %v, %v", created, err)
			}
			created, err = c.SetNX(ctx, "idem:root:events:k1", "1", time.Minute)
			if err != nil || created {
				t.Fatalf("second SetNX = %v, %v; want false", created, err)
			}
		})
	}
}

func TestCache_Incr(t *testing.T) {
	ctx := context.Background()

	for name, c := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			for want := int64(1); want <= 3; want++ {
				n, err := c.Incr(ctx, "counter", time.Minute)
				if err != nil || n != want {
					t.Fatalf("Incr #%d = %d, %v", want, n, err)
				}
			}
		})
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	c.Set(ctx, "k", "v", 10*time.Millisecond)
	time.Sleep(25 * time.Millisecond)

	if _, found, _ := c.Get(ctx, "k"); found {
		t.Fatal("expired entry still visible")
	}
	if created, _ := c.SetNX(ctx, "k", "v2", time.Minute); !created {
		t.Fatal("SetNX must succeed over an expired entry")
	}
}

func TestRedisCache_IncrAnchorsTTL(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	c := NewRedis(client)

	c.Incr(ctx, "rl:root:1.2.3.4:100", 2*time.Minute)
	c.Incr(ctx, "rl:root:1.2.3.4:100", 2*time.Minute)

	// TTL is set once, on creation; the window must survive later bumps.
	mr.FastForward(time.Minute)
	v, found, err := c.Get(ctx, "rl:root:1.2.3.4:100")
	if err != nil || !found || v != "2" {
		t.Fatalf("counter = %q found=%v err=%v", v, found, err)
	}

	mr.FastForward(90 * time.Second)
	if _, found, _ := c.Get(ctx, "rl:root:1.2.3.4:100"); found {
		t.Fatal("counter survived its TTL")
	}
}
