package registry

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/kilianp07/fleetcmd/core/pending"
	"github.com/kilianp07/fleetcmd/core/protocol"
)

type nopConn struct{}

func (nopConn) Send(context.Context, protocol.Envelope) error { return nil }
func (nopConn) Close() error                                  { return nil }

func TestRegisterGeneratesIDs(t *testing.T) {
	r := New()
	a := r.Register(nopConn{})
	b := r.Register(nopConn{})
	if a.ID == b.ID {
		t.Fatalf("duplicate id %s", a.ID)
	}
	if !strings.HasPrefix(a.ID, "vehicle-") {
		t.Fatalf("unexpected id format %s", a.ID)
	}
	if got, ok := r.Get(a.ID); !ok || got != a {
		t.Fatalf("get returned %v %v", got, ok)
	}
	if r.Len() != 2 {
		t.Fatalf("expected 2 sessions got %d", r.Len())
	}
}

func TestRegisterRegeneratesOnCollision(t *testing.T) {
	ids := []string{"vehicle-a", "vehicle-a", "vehicle-a", "vehicle-b"}
	var mu sync.Mutex
	gen := func() string {
		mu.Lock()
		defer mu.Unlock()
		id := ids[0]
		ids = ids[1:]
		return id
	}
	r := New(WithIDGenerator(gen))
	first := r.Register(nopConn{})
	second := r.Register(nopConn{})
	if first.ID != "vehicle-a" || second.ID != "vehicle-b" {
		t.Fatalf("got %s and %s", first.ID, second.ID)
	}
}

func TestDeregisterCascades(t *testing.T) {
	r := New()
	s := r.Register(nopConn{})
	_ = s.Pending.Insert(pending.Record{CommandID: "c1"})
	_ = s.Pending.Insert(pending.Record{CommandID: "c2"})

	abandoned, ok := r.Deregister(s.ID)
	if !ok || len(abandoned) != 2 {
		t.Fatalf("expected 2 abandoned records got %d (%v)", len(abandoned), ok)
	}
	if _, found := r.FindByCommandID("c1"); found {
		t.Fatalf("c1 reachable after disconnect")
	}
	if _, ok := r.Get(s.ID); ok {
		t.Fatalf("session still registered")
	}
	if _, ok := r.Deregister(s.ID); ok {
		t.Fatalf("second deregister should be a no-op")
	}
}

func TestFindByCommandID(t *testing.T) {
	r := New()
	r.Register(nopConn{})
	b := r.Register(nopConn{})
	_ = b.Pending.Insert(pending.Record{CommandID: "cb"})
	got, ok := r.FindByCommandID("cb")
	if !ok || got.ID != b.ID {
		t.Fatalf("expected %s got %v", b.ID, got)
	}
	if _, ok := r.FindByCommandID("unknown"); ok {
		t.Fatalf("unknown command found")
	}
}

func TestListOrdered(t *testing.T) {
	r := New()
	r.Register(nopConn{})
	r.Register(nopConn{})
	l := r.List()
	if len(l) != 2 {
		t.Fatalf("expected 2 got %d", len(l))
	}
	if !(l[0].ConnectedAt.Before(l[1].ConnectedAt) || l[0].ConnectedAt.Equal(l[1].ConnectedAt)) {
		t.Fatalf("list not ordered")
	}
}
