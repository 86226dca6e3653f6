package gamestore

import (
	"errors"

	"github.com/park285/tictac-relay/internal/board"
)

// Status represents a game lifecycle state.
type Status string

const (
	StatusWaiting    Status = "Waiting"
	StatusInProgress Status = "InProgress"
	StatusFinished   Status = "Finished"
	StatusAbandoned  Status = "Abandoned"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool { return s == StatusFinished || s == StatusAbandoned }

// Game is stored as JSON in Redis under game:<id>.
type Game struct {
	ID             string      `json:"id"`
	Player1ID      string      `json:"player1_id"`
	Player1Session string      `json:"player1_session"`
	Player2ID      string      `json:"player2_id,omitempty"`
	Player2Session string      `json:"player2_session,omitempty"`
	CurrentTurn    string      `json:"current_turn,omitempty"`
	Status         Status      `json:"status"`
	Board          board.Board `json:"board"`
	Winner         string      `json:"winner,omitempty"`
	CreatedAt      int64       `json:"created_at"`
	UpdatedAt      int64       `json:"updated_at"`
	// Version increases by one on every successful write.
	Version int64 `json:"version"`
}

// MarkOf returns the mark played by userID: player 1 is X, player 2 is O.
func (g *Game) MarkOf(userID string) board.Mark {
	switch {
	case userID == "":
		return board.Empty
	case userID == g.Player1ID:
		return board.X
	case userID == g.Player2ID:
		return board.O
	}
	return board.Empty
}

// Opponent returns the other registered player's identifier.
func (g *Game) Opponent(userID string) string {
	if userID == g.Player1ID { return g.Player2ID }
	if userID == g.Player2ID { return g.Player1ID }
	return ""
}

// IsParticipant reports whether userID is one of the registered players.
func (g *Game) IsParticipant(userID string) bool { return g.MarkOf(userID) != board.Empty }

func (g *Game) playerForMark(m board.Mark) string {
	switch m {
	case board.X:
		return g.Player1ID
	case board.O:
		return g.Player2ID
	}
	return ""
}

// Errors
var (
	ErrInvalidArgs   = errf("invalid arguments")
	ErrNotFound      = errf("game not found or expired")
	ErrAlreadyExists = errf("game already exists")
	ErrInvalidState  = errf("game is not in a valid state for this action")
	ErrNotYourTurn   = errf("not your turn")
	ErrUnknownPlayer = errf("user is not a player in this game")
	ErrSelfJoin      = errf("cannot join your own game")
	ErrConflict      = errf("concurrent update detected, retry")
)

type staticErr string
func (e staticErr) Error() string { return string(e) }
func errf(s string) error { return staticErr(s) }

// IsClientError reports whether err is caused by the request rather than the infrastructure.
// Board errors count as client errors.
func IsClientError(err error) bool {
	if err == nil { return false }
	for _, target := range []error{
		ErrInvalidArgs, ErrNotFound, ErrAlreadyExists, ErrInvalidState, ErrNotYourTurn,
		ErrUnknownPlayer, ErrSelfJoin, ErrConflict,
		board.ErrInvalidPosition, board.ErrPositionOccupied, board.ErrInvalidMark,
	} {
		if errors.Is(err, target) { return true }
	}
	return false
}
