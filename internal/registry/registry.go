// Package registry tracks which local websocket sessions belong to which game.
//
// Games are independent buckets, each guarded by its own lock, so traffic on one
// game never waits on another. The registry only holds the producer side of each
// session's Outbox; the connection that created the Outbox owns its consumer.
package registry

import (
	"sync"
)

type bucket struct {
	mu       sync.RWMutex
	sessions map[string]*Outbox
	// dead is set once the bucket was unlinked from the registry; adders must retry.
	dead bool
}

type Registry struct {
	games sync.Map // game id -> *bucket
}

func New() *Registry { return &Registry{} }

// Add registers the outbox of sessionID under gameID, replacing any previous entry.
func (r *Registry) Add(gameID, sessionID string, out *Outbox) {
	for {
		v, _ := r.games.LoadOrStore(gameID, &bucket{sessions: make(map[string]*Outbox)})
		b := v.(*bucket)
		b.mu.Lock()
		if b.dead {
			b.mu.Unlock()
			continue
		}
		b.sessions[sessionID] = out
		b.mu.Unlock()
		return
	}
}

// Remove unregisters sessionID and drops the game bucket once it is empty.
func (r *Registry) Remove(gameID, sessionID string) bool {
	v, ok := r.games.Load(gameID)
	if !ok {
		return false
	}
	b := v.(*bucket)
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.sessions[sessionID]; !ok {
		return false
	}
	delete(b.sessions, sessionID)
	if len(b.sessions) == 0 {
		b.dead = true
		r.games.CompareAndDelete(gameID, b)
	}
	return true
}

// BroadcastExcept pushes msg to every session of gameID except excludedSessionID and
// returns how many outboxes accepted it. Closed outboxes are skipped.
func (r *Registry) BroadcastExcept(gameID, msg, excludedSessionID string) int {
	v, ok := r.games.Load(gameID)
	if !ok {
		return 0
	}
	b := v.(*bucket)
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for id, out := range b.sessions {
		if id == excludedSessionID {
			continue
		}
		if out.Push(msg) {
			n++
		}
	}
	return n
}

// Send pushes msg to a single session.
func (r *Registry) Send(gameID, sessionID, msg string) bool {
	v, ok := r.games.Load(gameID)
	if !ok {
		return false
	}
	b := v.(*bucket)
	b.mu.RLock()
	out := b.sessions[sessionID]
	b.mu.RUnlock()
	if out == nil {
		return false
	}
	return out.Push(msg)
}

// Sessions returns the number of local sessions attached to gameID.
func (r *Registry) Sessions(gameID string) int {
	v, ok := r.games.Load(gameID)
	if !ok {
		return 0
	}
	b := v.(*bucket)
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions)
}

// Games returns the number of games with at least one local session.
func (r *Registry) Games() int {
	n := 0
	r.games.Range(func(_, _ any) bool { n++; return true })
	return n
}
