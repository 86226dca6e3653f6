package wsgame

import (
	"github.com/park285/tictac-relay/internal/board"
	"github.com/park285/tictac-relay/internal/gamestore"
	"github.com/park285/tictac-relay/pkg/tictacdto"
)

// Snapshot converts a stored game into the client-facing DTO.
func Snapshot(g *gamestore.Game) tictacdto.GameState {
	st := tictacdto.GameState{
		ID:             g.ID,
		Player1ID:      g.Player1ID,
		Player1Session: g.Player1Session,
		Player2ID:      optional(g.Player2ID),
		Player2Session: optional(g.Player2Session),
		CurrentTurn:    optional(g.CurrentTurn),
		Status:         string(g.Status),
		Winner:         optional(g.Winner),
		CreatedAt:      g.CreatedAt,
		Version:        g.Version,
	}
	for pos := 0; pos < board.Cells; pos++ {
		if m := g.Board.At(pos); m != board.Empty {
			s := string(m)
			st.Board[pos/3][pos%3] = &s
		}
	}
	return st
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
