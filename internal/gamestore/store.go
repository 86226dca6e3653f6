// Package gamestore keeps authoritative game state in Redis, shared by every server process.
package gamestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/tictac-relay/internal/board"
	"github.com/park285/tictac-relay/internal/obslog"
)

const (
	DefaultTTL        = time.Hour
	DefaultMaxRetries = 3
)

type Store struct {
	rdb        *redis.Client
	ttl        time.Duration
	maxRetries int
	now        func() time.Time
}

type Option func(*Store)

// WithTTL sets the sliding retention window applied on every write.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { if ttl > 0 { s.ttl = ttl } }
}

// WithMaxRetries bounds how many times a write is re-attempted after a concurrent update.
func WithMaxRetries(n int) Option {
	return func(s *Store) { if n > 0 { s.maxRetries = n } }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { if now != nil { s.now = now } }
}

func New(rdb *redis.Client, opts ...Option) *Store {
	s := &Store{rdb: rdb, ttl: DefaultTTL, maxRetries: DefaultMaxRetries, now: time.Now}
	for _, o := range opts { o(s) }
	return s
}

func gameKey(id string) string { return "game:" + strings.TrimSpace(id) }

// CreateGame writes a new Waiting game owned by creatorID. Fails with ErrAlreadyExists
// while a live record for gameID exists.
func (s *Store) CreateGame(ctx context.Context, creatorID, creatorSession, gameID string) (*Game, error) {
	creatorID, gameID = strings.TrimSpace(creatorID), strings.TrimSpace(gameID)
	if creatorID == "" || creatorSession == "" || gameID == "" { return nil, ErrInvalidArgs }
	now := s.now().Unix()
	g := &Game{
		ID:             gameID,
		Player1ID:      creatorID,
		Player1Session: creatorSession,
		CurrentTurn:    creatorID,
		Status:         StatusWaiting,
		CreatedAt:      now,
		UpdatedAt:      now,
		Version:        1,
	}
	raw, err := json.Marshal(g)
	if err != nil { return nil, err }
	ok, err := s.rdb.SetNX(ctx, gameKey(gameID), raw, s.ttl).Result()
	if err != nil { return nil, fmt.Errorf("create game %s: %w", gameID, err) }
	if !ok { return nil, ErrAlreadyExists }
	obslog.L().Info("game_create", zap.String("game_id", gameID), zap.String("player1_id", creatorID), zap.String("session_id", creatorSession))
	return g, nil
}

// GetGame returns the current record or ErrNotFound.
func (s *Store) GetGame(ctx context.Context, gameID string) (*Game, error) {
	raw, err := s.rdb.Get(ctx, gameKey(gameID)).Bytes()
	if err == redis.Nil { return nil, ErrNotFound }
	if err != nil { return nil, fmt.Errorf("get game %s: %w", gameID, err) }
	var g Game
	if err := json.Unmarshal(raw, &g); err != nil { return nil, fmt.Errorf("decode game %s: %w", gameID, err) }
	return &g, nil
}

// JoinGame registers joinerID as the second player and starts the game.
func (s *Store) JoinGame(ctx context.Context, gameID, joinerID, joinerSession string) (*Game, error) {
	joinerID = strings.TrimSpace(joinerID)
	if joinerID == "" || joinerSession == "" || strings.TrimSpace(gameID) == "" { return nil, ErrInvalidArgs }
	g, err := s.update(ctx, gameID, func(cur *Game) error {
		if cur.Status != StatusWaiting || cur.Player2ID != "" { return ErrInvalidState }
		if cur.Player1ID == joinerID { return ErrSelfJoin }
		cur.Player2ID = joinerID
		cur.Player2Session = joinerSession
		cur.Status = StatusInProgress
		return nil
	})
	if err != nil { return nil, err }
	obslog.L().Info("game_join", zap.String("game_id", g.ID), zap.String("player2_id", joinerID), zap.String("session_id", joinerSession))
	return g, nil
}

// MakeMove places the acting user's mark at pos and advances the game.
func (s *Store) MakeMove(ctx context.Context, gameID, actingUserID string, pos int) (*Game, error) {
	if strings.TrimSpace(gameID) == "" { return nil, ErrInvalidArgs }
	actingUserID = strings.TrimSpace(actingUserID)
	g, err := s.update(ctx, gameID, func(cur *Game) error {
		if cur.Status != StatusInProgress { return ErrInvalidState }
		mark := cur.MarkOf(actingUserID)
		if mark == board.Empty { return ErrUnknownPlayer }
		if cur.CurrentTurn != actingUserID { return ErrNotYourTurn }
		next, err := board.Apply(cur.Board, pos, mark)
		if err != nil { return err }
		cur.Board = next
		if w := board.Winner(next); w != board.Empty {
			cur.Status = StatusFinished
			cur.Winner = cur.playerForMark(w)
			return nil
		}
		if board.Full(next) {
			cur.Status = StatusFinished
			cur.Winner = ""
			return nil
		}
		cur.CurrentTurn = cur.Opponent(actingUserID)
		return nil
	})
	if err != nil { return nil, err }
	obslog.L().Info("game_move",
		zap.String("game_id", g.ID),
		zap.String("user_id", actingUserID),
		zap.Int("position", pos),
		zap.String("status", string(g.Status)),
		zap.String("turn", g.CurrentTurn),
		zap.String("winner", g.Winner),
		zap.Int64("version", g.Version),
	)
	return g, nil
}

// AbandonGame ends a Waiting or InProgress game on behalf of one of its players.
func (s *Store) AbandonGame(ctx context.Context, gameID, actingUserID string) (*Game, error) {
	if strings.TrimSpace(gameID) == "" { return nil, ErrInvalidArgs }
	actingUserID = strings.TrimSpace(actingUserID)
	g, err := s.update(ctx, gameID, func(cur *Game) error {
		if !cur.IsParticipant(actingUserID) { return ErrUnknownPlayer }
		if cur.Status.Terminal() { return ErrInvalidState }
		cur.Status = StatusAbandoned
		return nil
	})
	if err != nil { return nil, err }
	obslog.L().Info("game_abandon", zap.String("game_id", g.ID), zap.String("user_id", actingUserID))
	return g, nil
}

// DeleteGame removes the record. 없는 게임 삭제는 에러가 아님.
func (s *Store) DeleteGame(ctx context.Context, gameID string) error {
	if err := s.rdb.Del(ctx, gameKey(gameID)).Err(); err != nil {
		return fmt.Errorf("delete game %s: %w", gameID, err)
	}
	obslog.L().Info("game_delete", zap.String("game_id", gameID))
	return nil
}

// update runs one read-validate-apply-write cycle under WATCH on the game key.
// A concurrent writer aborts the EXEC; the cycle is then retried from a fresh read,
// so a losing move is re-validated against the winner's state.
func (s *Store) update(ctx context.Context, gameID string, apply func(cur *Game) error) (*Game, error) {
	key := gameKey(gameID)
	var out *Game
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil { return ErrNotFound }
		if err != nil { return err }
		var cur Game
		if err := json.Unmarshal(raw, &cur); err != nil { return fmt.Errorf("decode game %s: %w", gameID, err) }
		if err := apply(&cur); err != nil { return err }
		cur.Version++
		cur.UpdatedAt = s.now().Unix()
		newRaw, err := json.Marshal(&cur)
		if err != nil { return err }
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newRaw, s.ttl)
			return nil
		})
		if err != nil { return err }
		out = &cur
		return nil
	}
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		err := s.rdb.Watch(ctx, txf, key)
		if err == nil { return out, nil }
		if !errors.Is(err, redis.TxFailedErr) { return nil, err }
		obslog.L().Debug("game_update_conflict", zap.String("game_id", gameID), zap.Int("attempt", attempt))
	}
	obslog.L().Warn("game_update_conflict_exhausted", zap.String("game_id", gameID), zap.Int("attempts", s.maxRetries))
	return nil, ErrConflict
}
