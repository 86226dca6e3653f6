package tictacdto

import (
	"encoding/json"
	"fmt"
)

// Client -> Server frame tags.
const (
	TypeCreateGame = "create_game"
	TypeJoinGame   = "join_game"
	TypeMakeMove   = "make_move"
	TypeLeaveGame  = "leave_game"
)

// ClientMessage is one decoded client intent: CreateGame, JoinGame, MakeMove or LeaveGame.
// The acting user always comes from the authenticated connection, never from the frame.
type ClientMessage interface{ clientMessage() }

type CreateGame struct{}
type JoinGame struct{}
type MakeMove struct{ Position int }
type LeaveGame struct{}

func (CreateGame) clientMessage() {}
func (JoinGame) clientMessage()   {}
func (MakeMove) clientMessage()   {}
func (LeaveGame) clientMessage()  {}

// DecodeError reports a frame that is not a valid client intent.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string { return "malformed message: " + e.Reason }

type rawClientMessage struct {
	Type     string `json:"type"`
	Position *int   `json:"position"`
}

// DecodeClientMessage parses one frame. Unknown tags are errors.
func DecodeClientMessage(data []byte) (ClientMessage, error) {
	var raw rawClientMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &DecodeError{Reason: "invalid json"}
	}
	switch raw.Type {
	case TypeCreateGame:
		return CreateGame{}, nil
	case TypeJoinGame:
		return JoinGame{}, nil
	case TypeMakeMove:
		if raw.Position == nil {
			return nil, &DecodeError{Reason: "position is required"}
		}
		return MakeMove{Position: *raw.Position}, nil
	case TypeLeaveGame:
		return LeaveGame{}, nil
	case "":
		return nil, &DecodeError{Reason: "missing type"}
	default:
		return nil, &DecodeError{Reason: fmt.Sprintf("unknown type %q", raw.Type)}
	}
}
