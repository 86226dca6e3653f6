package tictacdto

import "encoding/json"

// Server -> Client frame tags.
const (
	TypeGameState = "game_state"
	TypeError     = "error"
)

// GameState is the full snapshot clients reconcile from.
type GameState struct {
	ID             string        `json:"id"`
	Player1ID      string        `json:"player1_id"`
	Player1Session string        `json:"player1_session"`
	Player2ID      *string       `json:"player2_id"`
	Player2Session *string       `json:"player2_session"`
	CurrentTurn    *string       `json:"current_turn"`
	Status         string        `json:"status"`
	Board          [3][3]*string `json:"board"`
	Winner         *string       `json:"winner"`
	CreatedAt      int64         `json:"created_at"`
	Version        int64         `json:"version"`
}

type ServerMessage struct {
	Type    string     `json:"type"`
	Game    *GameState `json:"game,omitempty"`
	Message string     `json:"message,omitempty"`
}

func EncodeGameState(g GameState) (string, error) {
	b, err := json.Marshal(ServerMessage{Type: TypeGameState, Game: &g})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func EncodeError(message string) string {
	b, _ := json.Marshal(ServerMessage{Type: TypeError, Message: message})
	return string(b)
}

// DecodeServerMessage is used by clients and tests.
func DecodeServerMessage(data []byte) (*ServerMessage, error) {
	var m ServerMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
