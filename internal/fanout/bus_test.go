package fanout

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/park285/tictac-relay/internal/registry"
)

type node struct {
	reg *registry.Registry
	bus *Bus
}

// startNodes runs n relays against one Redis, as n server processes would.
func startNodes(t *testing.T, n int) (*miniredis.Miniredis, []node) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil { t.Fatalf("miniredis: %v", err) }
	t.Cleanup(func() { mr.Close() })
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	nodes := make([]node, n)
	for i := range nodes {
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		reg := registry.New()
		bus := New(rdb, reg)
		go func() { _ = bus.Run(ctx) }()
		select {
		case <-bus.Ready():
		case <-time.After(2 * time.Second):
			t.Fatalf("relay %d did not subscribe", i)
		}
		nodes[i] = node{reg: reg, bus: bus}
	}
	return mr, nodes
}

// next waits for the outbox to hold exactly one frame and returns it.
func next(t *testing.T, o *registry.Outbox) string {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-o.Ready():
		case <-deadline:
			t.Fatalf("waiting for message: timed out")
		}
		if q := o.Drain(); len(q) > 0 {
			if len(q) != 1 { t.Fatalf("expected one message, got %v", q) }
			return q[0]
		}
	}
}

func expectSilent(t *testing.T, o *registry.Outbox) {
	t.Helper()
	time.Sleep(50 * time.Millisecond)
	if q := o.Drain(); len(q) != 0 { t.Fatalf("expected no further messages, got %v", q) }
}

func TestBroadcastToAllAcrossProcesses(t *testing.T) {
	_, nodes := startNodes(t, 2)
	origin, peerLocal, peerRemote := registry.NewOutbox(), registry.NewOutbox(), registry.NewOutbox()
	nodes[0].reg.Add("g1", "sA", origin)
	nodes[0].reg.Add("g1", "sC", peerLocal)
	nodes[1].reg.Add("g1", "sB", peerRemote)

	if err := nodes[0].bus.BroadcastToAll(context.Background(), "g1", "snap", "sA"); err != nil {
		t.Fatalf("BroadcastToAll: %v", err)
	}
	for name, o := range map[string]*registry.Outbox{"origin": origin, "local": peerLocal, "remote": peerRemote} {
		if got := next(t, o); got != "snap" { t.Fatalf("%s got %q", name, got) }
	}
	expectSilent(t, origin)
	expectSilent(t, peerLocal)
	expectSilent(t, peerRemote)
}

func TestRelaySkipsMalformedEnvelope(t *testing.T) {
	mr, nodes := startNodes(t, 1)
	out := registry.NewOutbox()
	nodes[0].reg.Add("g1", "sB", out)

	mr.Publish(Topic("g1"), "{not json")
	mr.Publish(Topic("g1"), `{"game_id":"other","origin_session":"x","payload":"wrong"}`)
	if err := nodes[0].bus.Publish(context.Background(), "g1", "after", "sA"); err != nil { t.Fatalf("Publish: %v", err) }
	if got := next(t, out); got != "after" { t.Fatalf("expected relay to continue, got %q", got) }
}

func TestRelayDoesNotCrossGames(t *testing.T) {
	_, nodes := startNodes(t, 1)
	g1, g2 := registry.NewOutbox(), registry.NewOutbox()
	nodes[0].reg.Add("g1", "s1", g1)
	nodes[0].reg.Add("g2", "s2", g2)
	if err := nodes[0].bus.Publish(context.Background(), "g2", "only-g2", ""); err != nil { t.Fatalf("Publish: %v", err) }
	if got := next(t, g2); got != "only-g2" { t.Fatalf("g2 got %q", got) }
	expectSilent(t, g1)
}
