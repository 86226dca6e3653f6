package registry

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestBroadcastExceptSkipsExcludedSession(t *testing.T) {
	r := New()
	outs := map[string]*Outbox{"s1": NewOutbox(), "s2": NewOutbox(), "s3": NewOutbox()}
	for id, o := range outs { r.Add("g1", id, o) }
	other := NewOutbox()
	r.Add("g2", "s4", other)

	if n := r.BroadcastExcept("g1", "hello", "s2"); n != 2 { t.Fatalf("expected 2 deliveries, got %d", n) }
	for id, o := range outs {
		got := o.Drain()
		if id == "s2" {
			if len(got) != 0 { t.Fatalf("excluded session received %v", got) }
			continue
		}
		if len(got) != 1 || got[0] != "hello" { t.Fatalf("session %s got %v", id, got) }
	}
	if got := other.Drain(); len(got) != 0 { t.Fatalf("message leaked into another game") }
}

func TestRemoveDropsEmptyBucket(t *testing.T) {
	r := New()
	r.Add("g1", "s1", NewOutbox())
	r.Add("g1", "s2", NewOutbox())
	if !r.Remove("g1", "s1") { t.Fatalf("expected removal") }
	if r.Games() != 1 || r.Sessions("g1") != 1 { t.Fatalf("bucket dropped too early") }
	r.Remove("g1", "s2")
	if r.Games() != 0 { t.Fatalf("expected empty registry, got %d games", r.Games()) }
	if r.Remove("g1", "s2") { t.Fatalf("second removal should report false") }
	if n := r.BroadcastExcept("g1", "x", ""); n != 0 { t.Fatalf("broadcast to removed game delivered %d", n) }
}

func TestClosedOutboxIsSkipped(t *testing.T) {
	r := New()
	closed, open := NewOutbox(), NewOutbox()
	closed.Close()
	r.Add("g1", "closed", closed)
	r.Add("g1", "open", open)
	if n := r.BroadcastExcept("g1", "m", ""); n != 1 { t.Fatalf("expected 1 delivery, got %d", n) }
	if r.Send("g1", "closed", "m") { t.Fatalf("send to closed outbox should fail") }
	if !r.Send("g1", "open", "direct") { t.Fatalf("send to open outbox failed") }
	if got := open.Drain(); len(got) != 2 || got[1] != "direct" { t.Fatalf("unexpected queue %v", got) }
}

func TestOutboxPreservesOrder(t *testing.T) {
	o := NewOutbox()
	for i := 0; i < 100; i++ { o.Push(fmt.Sprint(i)) }
	got := o.Drain()
	if len(got) != 100 { t.Fatalf("expected 100 messages, got %d", len(got)) }
	for i, msg := range got {
		if msg != fmt.Sprint(i) { t.Fatalf("out of order: want %d got %s", i, msg) }
	}
	if rest := o.Drain(); len(rest) != 0 { t.Fatalf("drain left %v", rest) }
}

func TestOutboxCloseDropsPending(t *testing.T) {
	o := NewOutbox()
	o.Push("pending")
	<-o.Ready()
	o.Close()
	if got := o.Drain(); len(got) != 0 { t.Fatalf("closed outbox kept %v", got) }
	if o.Push("late") { t.Fatalf("push after close accepted") }
	select {
	case <-o.Ready():
	default:
		t.Fatalf("close did not wake the consumer")
	}
}

func TestOutboxReadySignalsPush(t *testing.T) {
	o := NewOutbox()
	go func() {
		time.Sleep(10 * time.Millisecond)
		o.Push("later")
	}()
	select {
	case <-o.Ready():
	case <-time.After(time.Second):
		t.Fatalf("Ready not signalled")
	}
	if got := o.Drain(); len(got) != 1 || got[0] != "later" { t.Fatalf("unexpected queue %v", got) }
}

func TestConcurrentAddRemoveBroadcast(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		for s := 0; s < 16; s++ {
			wg.Add(1)
			go func(g, s int) {
				defer wg.Done()
				game, sess := fmt.Sprintf("g%d", g), fmt.Sprintf("s%d", s)
				o := NewOutbox()
				for i := 0; i < 50; i++ {
					r.Add(game, sess, o)
					r.BroadcastExcept(game, "x", sess)
					r.Remove(game, sess)
				}
			}(g, s)
		}
	}
	wg.Wait()
	if r.Games() != 0 { t.Fatalf("expected all buckets dropped, got %d", r.Games()) }
}
