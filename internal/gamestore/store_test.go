package gamestore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/park285/tictac-relay/internal/board"
)

func newTestStore(t *testing.T, opts ...Option) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil { t.Fatalf("miniredis: %v", err) }
	t.Cleanup(func() { mr.Close() })
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, opts...), mr
}

// startedGame returns game g1 with A as X (session sA) and B as O (session sB).
func startedGame(t *testing.T, s *Store) *Game {
	t.Helper()
	ctx := context.Background()
	if _, err := s.CreateGame(ctx, "A", "sA", "g1"); err != nil { t.Fatalf("CreateGame: %v", err) }
	g, err := s.JoinGame(ctx, "g1", "B", "sB")
	if err != nil { t.Fatalf("JoinGame: %v", err) }
	return g
}

func TestCreateGameInitialState(t *testing.T) {
	s, mr := newTestStore(t)
	g, err := s.CreateGame(context.Background(), "A", "sA", "g1")
	if err != nil { t.Fatalf("CreateGame: %v", err) }
	if g.Status != StatusWaiting || g.CurrentTurn != "A" || g.Player1Session != "sA" {
		t.Fatalf("unexpected initial state: %+v", g)
	}
	if ttl := mr.TTL("game:g1"); ttl != DefaultTTL { t.Fatalf("expected TTL %v, got %v", DefaultTTL, ttl) }
	if _, err := s.CreateGame(context.Background(), "C", "sC", "g1"); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestJoinGameOnce(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	g := startedGame(t, s)
	if g.Status != StatusInProgress || g.Player2ID != "B" || g.Player2Session != "sB" {
		t.Fatalf("unexpected joined state: %+v", g)
	}
	if _, err := s.JoinGame(ctx, "g1", "C", "sC"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on second join, got %v", err)
	}
	if _, err := s.JoinGame(ctx, "missing", "C", "sC"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestJoinOwnGameRejected(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	if _, err := s.CreateGame(ctx, "A", "sA", "g1"); err != nil { t.Fatalf("CreateGame: %v", err) }
	if _, err := s.JoinGame(ctx, "g1", "A", "sA2"); !errors.Is(err, ErrSelfJoin) {
		t.Fatalf("expected ErrSelfJoin, got %v", err)
	}
	g, _ := s.GetGame(ctx, "g1")
	if g.Status != StatusWaiting { t.Fatalf("state changed after rejected join: %s", g.Status) }
}

func TestMakeMoveTurnAlternation(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	startedGame(t, s)

	g, err := s.MakeMove(ctx, "g1", "A", 0)
	if err != nil { t.Fatalf("move A0: %v", err) }
	if g.Board.At(0) != board.X || g.CurrentTurn != "B" { t.Fatalf("after A0: cell=%q turn=%q", g.Board.At(0), g.CurrentTurn) }

	if _, err := s.MakeMove(ctx, "g1", "A", 1); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("expected ErrNotYourTurn, got %v", err)
	}
	if _, err := s.MakeMove(ctx, "g1", "B", 0); !errors.Is(err, board.ErrPositionOccupied) {
		t.Fatalf("expected ErrPositionOccupied, got %v", err)
	}
	if _, err := s.MakeMove(ctx, "g1", "B", 9); !errors.Is(err, board.ErrInvalidPosition) {
		t.Fatalf("expected ErrInvalidPosition, got %v", err)
	}
	g, err = s.MakeMove(ctx, "g1", "B", 4)
	if err != nil { t.Fatalf("move B4: %v", err) }
	if g.Board.At(4) != board.O || g.CurrentTurn != "A" { t.Fatalf("after B4: cell=%q turn=%q", g.Board.At(4), g.CurrentTurn) }
}

func TestMakeMoveUnknownPlayerLeavesStateUnchanged(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	before := startedGame(t, s)
	if _, err := s.MakeMove(ctx, "g1", "mallory", 0); !errors.Is(err, ErrUnknownPlayer) {
		t.Fatalf("expected ErrUnknownPlayer, got %v", err)
	}
	after, err := s.GetGame(ctx, "g1")
	if err != nil { t.Fatalf("GetGame: %v", err) }
	if after.Version != before.Version || after.Board != before.Board { t.Fatalf("state changed: %+v", after) }
}

func TestMakeMoveWinFinishesGame(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	startedGame(t, s)
	moves := []struct {
		user string
		pos  int
	}{{"A", 0}, {"B", 4}, {"A", 1}, {"B", 5}, {"A", 2}}
	var g *Game
	var err error
	for _, m := range moves {
		if g, err = s.MakeMove(ctx, "g1", m.user, m.pos); err != nil { t.Fatalf("move %s%d: %v", m.user, m.pos, err) }
	}
	if g.Status != StatusFinished || g.Winner != "A" { t.Fatalf("expected A to win, got status=%s winner=%q", g.Status, g.Winner) }
	if _, err := s.MakeMove(ctx, "g1", "B", 8); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState after finish, got %v", err)
	}
}

func TestMakeMoveDraw(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	startedGame(t, s)
	// X O X / X O O / O X X
	seq := []struct {
		user string
		pos  int
	}{{"A", 0}, {"B", 1}, {"A", 2}, {"B", 4}, {"A", 3}, {"B", 5}, {"A", 7}, {"B", 6}, {"A", 8}}
	var g *Game
	var err error
	for _, m := range seq {
		if g, err = s.MakeMove(ctx, "g1", m.user, m.pos); err != nil { t.Fatalf("move %s%d: %v", m.user, m.pos, err) }
	}
	if g.Status != StatusFinished || g.Winner != "" { t.Fatalf("expected draw, got status=%s winner=%q", g.Status, g.Winner) }
}

func TestMakeMoveRequiresInProgress(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	if _, err := s.CreateGame(ctx, "A", "sA", "g1"); err != nil { t.Fatalf("CreateGame: %v", err) }
	if _, err := s.MakeMove(ctx, "g1", "A", 0); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState while waiting, got %v", err)
	}
	if _, err := s.MakeMove(ctx, "nope", "A", 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConcurrentMovesSameTurnOneWins(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	startedGame(t, s)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, pos := range []int{0, 8} {
		wg.Add(1)
		go func(i, pos int) {
			defer wg.Done()
			_, errs[i] = s.MakeMove(ctx, "g1", "A", pos)
		}(i, pos)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrNotYourTurn), errors.Is(err, ErrConflict):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 { t.Fatalf("expected exactly one accepted move, got %d (%v)", ok, errs) }
	g, _ := s.GetGame(ctx, "g1")
	marks := 0
	for p := 0; p < board.Cells; p++ {
		if g.Board.At(p) != board.Empty { marks++ }
	}
	if marks != 1 || g.CurrentTurn != "B" { t.Fatalf("expected one mark and B to move, got marks=%d turn=%q", marks, g.CurrentTurn) }
}

func TestAbandonGame(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	startedGame(t, s)
	if _, err := s.AbandonGame(ctx, "g1", "mallory"); !errors.Is(err, ErrUnknownPlayer) {
		t.Fatalf("expected ErrUnknownPlayer, got %v", err)
	}
	g, err := s.AbandonGame(ctx, "g1", "B")
	if err != nil { t.Fatalf("AbandonGame: %v", err) }
	if g.Status != StatusAbandoned { t.Fatalf("expected Abandoned, got %s", g.Status) }
	if _, err := s.AbandonGame(ctx, "g1", "A"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on abandoned game, got %v", err)
	}
	if _, err := s.MakeMove(ctx, "g1", "A", 0); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on move after abandon, got %v", err)
	}
}

func TestLeaveFinishedGameRejected(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	startedGame(t, s)
	for _, m := range []struct {
		user string
		pos  int
	}{{"A", 0}, {"B", 4}, {"A", 1}, {"B", 5}, {"A", 2}} {
		if _, err := s.MakeMove(ctx, "g1", m.user, m.pos); err != nil { t.Fatalf("move %s%d: %v", m.user, m.pos, err) }
	}
	before, err := s.GetGame(ctx, "g1")
	if err != nil { t.Fatalf("GetGame: %v", err) }
	if before.Status != StatusFinished { t.Fatalf("expected Finished, got %s", before.Status) }

	if _, err := s.AbandonGame(ctx, "g1", "B"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	after, err := s.GetGame(ctx, "g1")
	if err != nil { t.Fatalf("GetGame: %v", err) }
	if after.Status != StatusFinished || after.Winner != "A" || after.Version != before.Version {
		t.Fatalf("finished game changed: %+v", after)
	}
}

func TestDeleteGameIdempotent(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	startedGame(t, s)
	for i := 0; i < 2; i++ {
		if err := s.DeleteGame(ctx, "g1"); err != nil { t.Fatalf("DeleteGame #%d: %v", i+1, err) }
	}
	if _, err := s.GetGame(ctx, "g1"); !errors.Is(err, ErrNotFound) { t.Fatalf("expected ErrNotFound, got %v", err) }
}

func TestWritesRefreshTTLAndExpire(t *testing.T) {
	s, mr := newTestStore(t, WithTTL(10*time.Minute))
	ctx := context.Background()
	startedGame(t, s)
	mr.FastForward(9 * time.Minute)
	if _, err := s.MakeMove(ctx, "g1", "A", 0); err != nil { t.Fatalf("MakeMove: %v", err) }
	if ttl := mr.TTL("game:g1"); ttl != 10*time.Minute { t.Fatalf("expected refreshed TTL, got %v", ttl) }
	mr.FastForward(11 * time.Minute)
	if _, err := s.GetGame(ctx, "g1"); !errors.Is(err, ErrNotFound) { t.Fatalf("expected expiry, got %v", err) }
}

func TestIsClientError(t *testing.T) {
	if !IsClientError(ErrNotYourTurn) || !IsClientError(board.ErrPositionOccupied) {
		t.Fatalf("expected client errors")
	}
	if IsClientError(errors.New("dial tcp: refused")) || IsClientError(nil) {
		t.Fatalf("infrastructure errors must not be client errors")
	}
}
