package session

import (
	"context"
	"sync"
	"testing"
)

func newTestPool(t *testing.T) (*Pool, *int, *sync.Mutex) {
	t.Helper()
	dials := 0
	var mu sync.Mutex
	p := NewPool(PoolConfig{
		Factory: func(target string) ChannelFactory {
			return func(ctx context.Context) (Channel, error) {
				mu.Lock()
				dials++
				mu.Unlock()
				return newFakeShell(func(cmd string) (string, int, bool) {
					return "ok\r\n", 0, true
				}), nil
			}
		},
	})
	t.Cleanup(p.CloseAll)
	return p, &dials, &mu
}

func TestPoolReusesSessionPerTarget(t *testing.T) {
	p, dials, mu := newTestPool(t)
	ctx := context.Background()

	a, err := p.GetOrCreate(ctx, "app@hostA")
	if err != nil {
		t.Fatalf("first dial failed: %v", err)
	}
	b, err := p.GetOrCreate(ctx, "app@hostA")
	if err != nil {
		t.Fatalf("second lookup failed: %v", err)
	}
	if a.ID() != b.ID() {
		t.Error("same target must reuse the live session")
	}

	c, err := p.GetOrCreate(ctx, "app@hostB")
	if err != nil {
		t.Fatalf("dial for second target failed: %v", err)
	}
	if c.ID() == a.ID() {
		t.Error("different targets must not share a session")
	}

	mu.Lock()
	got := *dials
	mu.Unlock()
	if got != 2 {
		t.Errorf("dial count = %d, want 2", got)
	}
	if p.Count() != 2 {
		t.Errorf("pool size = %d, want 2", p.Count())
	}
}

func TestPoolReplacesDeadSession(t *testing.T) {
	p, dials, mu := newTestPool(t)
	ctx := context.Background()

	a, err := p.GetOrCreate(ctx, "app@hostA")
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	_ = a.Close()

	b, err := p.GetOrCreate(ctx, "app@hostA")
	if err != nil {
		t.Fatalf("redial failed: %v", err)
	}
	if b.ID() == a.ID() {
		t.Error("closed session must be replaced, not returned")
	}
	if b.Status() != StatusReady {
		t.Errorf("replacement status = %s, want %s", b.Status(), StatusReady)
	}

	mu.Lock()
	got := *dials
	mu.Unlock()
	if got != 2 {
		t.Errorf("dial count = %d, want 2", got)
	}
	if p.Count() != 1 {
		t.Errorf("pool size = %d, want 1", p.Count())
	}
}

func TestPoolRemove(t *testing.T) {
	p, _, _ := newTestPool(t)
	ctx := context.Background()

	s, err := p.GetOrCreate(ctx, "app@hostA")
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	p.Remove(s.ID())
	if p.Count() != 0 {
		t.Errorf("pool size = %d, want 0", p.Count())
	}
	if _, ok := p.ByID(s.ID()); ok {
		t.Error("removed session still resolvable by id")
	}
	if s.Status() != StatusClosed {
		t.Errorf("removed session status = %s, want %s", s.Status(), StatusClosed)
	}

	// Unknown ids are a no-op
	p.Remove("no-such-id")
}

func TestPoolLookups(t *testing.T) {
	p, _, _ := newTestPool(t)
	ctx := context.Background()

	s, err := p.GetOrCreate(ctx, "app@hostA")
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	if got, ok := p.ByID(s.ID()); !ok || got.ID() != s.ID() {
		t.Error("ByID lookup failed")
	}
	if got, ok := p.ByTarget("app@hostA"); !ok || got.ID() != s.ID() {
		t.Error("ByTarget lookup failed")
	}
	if _, ok := p.ByTarget("app@hostX"); ok {
		t.Error("ByTarget matched a target that was never dialed")
	}
}

func TestPoolListOrderAndCloseAll(t *testing.T) {
	p, _, _ := newTestPool(t)
	ctx := context.Background()

	targets := []string{"app@one", "app@two", "app@three"}
	for _, tg := range targets {
		if _, err := p.GetOrCreate(ctx, tg); err != nil {
			t.Fatalf("dial %s failed: %v", tg, err)
		}
	}

	list := p.List()
	if len(list) != 3 {
		t.Fatalf("list size = %d, want 3", len(list))
	}
	for i, tg := range targets {
		if list[i].Target() != tg {
			t.Errorf("list[%d] = %s, want %s (creation order)", i, list[i].Target(), tg)
		}
	}

	p.CloseAll()
	if p.Count() != 0 {
		t.Errorf("pool size after CloseAll = %d, want 0", p.Count())
	}
	for _, s := range list {
		if s.Status() != StatusClosed {
			t.Errorf("session %s not closed by CloseAll", s.shortID())
		}
	}
}
