package wsgame

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/park285/tictac-relay/internal/board"
	"github.com/park285/tictac-relay/internal/gamestore"
	"github.com/park285/tictac-relay/internal/obslog"
	"github.com/park285/tictac-relay/pkg/tictacdto"
)

// Catalog keys for error replies.
const (
	keyBadRequest       = "errors.bad_request"
	keyInvalidPosition  = "errors.invalid_position"
	keyPositionOccupied = "errors.position_occupied"
	keyNotYourTurn      = "errors.not_your_turn"
	keyInvalidState     = "errors.invalid_state"
	keyUnknownPlayer    = "errors.unknown_player"
	keyNotFound         = "errors.not_found"
	keyAlreadyExists    = "errors.already_exists"
	keySelfJoin         = "errors.self_join"
	keyConflict         = "errors.conflict"
	keyInternal         = "errors.internal"
)

// MessageKeys lists every catalog key an error reply can use.
func MessageKeys() []string {
	return []string{
		keyBadRequest, keyInvalidPosition, keyPositionOccupied, keyNotYourTurn, keyInvalidState, keyUnknownPlayer,
		keyNotFound, keyAlreadyExists, keySelfJoin, keyConflict, keyInternal,
	}
}

// dispatch handles one inbound frame. Successful transitions are fanned out to the
// whole game; every error is answered to this session only.
func (h *Handler) dispatch(ctx context.Context, s *session, data []byte) {
	msg, err := tictacdto.DecodeClientMessage(data)
	if err != nil {
		h.replyError(s, err)
		return
	}

	var g *gamestore.Game
	switch m := msg.(type) {
	case tictacdto.CreateGame:
		g, err = h.store.CreateGame(ctx, s.userID, s.id, s.gameID)
	case tictacdto.JoinGame:
		g, err = h.store.JoinGame(ctx, s.gameID, s.userID, s.id)
	case tictacdto.MakeMove:
		g, err = h.store.MakeMove(ctx, s.gameID, s.userID, m.Position)
	case tictacdto.LeaveGame:
		g, err = h.store.AbandonGame(ctx, s.gameID, s.userID)
	default:
		err = &tictacdto.DecodeError{Reason: "unsupported message"}
	}
	if err != nil {
		h.replyError(s, err)
		return
	}

	payload, err := tictacdto.EncodeGameState(Snapshot(g))
	if err != nil {
		h.replyError(s, err)
		return
	}
	if err := h.bus.BroadcastToAll(ctx, s.gameID, payload, s.id); err != nil {
		// The origin already has the snapshot; peers resync on the next transition.
		obslog.L().Error("fanout_publish_error", zap.String("game_id", s.gameID), zap.String("session_id", s.id), zap.Error(err))
	}
}

func (h *Handler) replyError(s *session, err error) {
	key := errorKey(err)
	if !isClientError(err) {
		obslog.L().Error("game_op_error", zap.String("game_id", s.gameID), zap.String("session_id", s.id), zap.String("user_id", s.userID), zap.Error(err))
	} else {
		obslog.L().Debug("game_op_rejected", zap.String("game_id", s.gameID), zap.String("session_id", s.id), zap.Error(err))
	}
	text := h.cat.Text(key, map[string]any{"GameID": s.gameID, "Detail": detail(err)}, fallbackText(key, err))
	s.out.Push(tictacdto.EncodeError(text))
}

func errorKey(err error) string {
	var de *tictacdto.DecodeError
	switch {
	case errors.As(err, &de), errors.Is(err, board.ErrInvalidMark), errors.Is(err, gamestore.ErrInvalidArgs):
		return keyBadRequest
	case errors.Is(err, board.ErrInvalidPosition):
		return keyInvalidPosition
	case errors.Is(err, board.ErrPositionOccupied):
		return keyPositionOccupied
	case errors.Is(err, gamestore.ErrNotYourTurn):
		return keyNotYourTurn
	case errors.Is(err, gamestore.ErrInvalidState):
		return keyInvalidState
	case errors.Is(err, gamestore.ErrUnknownPlayer):
		return keyUnknownPlayer
	case errors.Is(err, gamestore.ErrNotFound):
		return keyNotFound
	case errors.Is(err, gamestore.ErrAlreadyExists):
		return keyAlreadyExists
	case errors.Is(err, gamestore.ErrSelfJoin):
		return keySelfJoin
	case errors.Is(err, gamestore.ErrConflict):
		return keyConflict
	}
	return keyInternal
}

func isClientError(err error) bool {
	var de *tictacdto.DecodeError
	return errors.As(err, &de) || gamestore.IsClientError(err)
}

func detail(err error) string {
	var de *tictacdto.DecodeError
	if errors.As(err, &de) { return de.Reason }
	return err.Error()
}

// fallbackText never leaks infrastructure error strings to clients.
func fallbackText(key string, err error) string {
	if key == keyInternal { return "internal error" }
	return err.Error()
}
