// Package board implements 3x3 move validation and win/draw detection.
package board

import (
	"encoding/json"
	"fmt"
)

// Mark is the content of a cell.
type Mark string

const (
	Empty Mark = ""
	X     Mark = "X"
	O     Mark = "O"
)

// Cells is the number of addressable positions (0..8, row-major).
const Cells = 9

// Board is a 3x3 grid indexed [row][col]. It is a value type; Apply returns a copy.
type Board [3][3]Mark

var (
	ErrInvalidPosition  = errf("invalid position")
	ErrPositionOccupied = errf("position already occupied")
	ErrInvalidMark      = errf("invalid mark")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error          { return staticErr(s) }

// Apply places m at pos and returns the resulting board.
func Apply(b Board, pos int, m Mark) (Board, error) {
	if pos < 0 || pos >= Cells {
		return b, ErrInvalidPosition
	}
	if m != X && m != O {
		return b, ErrInvalidMark
	}
	row, col := pos/3, pos%3
	if b[row][col] != Empty {
		return b, ErrPositionOccupied
	}
	b[row][col] = m
	return b, nil
}

// Winner scans rows, columns, the main diagonal and the anti-diagonal in that order
// and returns the mark of the first completed line, or Empty.
func Winner(b Board) Mark {
	for r := 0; r < 3; r++ {
		if line(b[r][0], b[r][1], b[r][2]) {
			return b[r][0]
		}
	}
	for c := 0; c < 3; c++ {
		if line(b[0][c], b[1][c], b[2][c]) {
			return b[0][c]
		}
	}
	if line(b[0][0], b[1][1], b[2][2]) {
		return b[0][0]
	}
	if line(b[0][2], b[1][1], b[2][0]) {
		return b[0][2]
	}
	return Empty
}

func line(a, b, c Mark) bool { return a != Empty && a == b && b == c }

// Full reports whether every cell is occupied.
func Full(b Board) bool {
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			if b[r][c] == Empty {
				return false
			}
		}
	}
	return true
}

// At returns the mark at pos; out-of-range positions read as Empty.
func (b Board) At(pos int) Mark {
	if pos < 0 || pos >= Cells {
		return Empty
	}
	return b[pos/3][pos%3]
}

// MarshalJSON encodes empty cells as null.
func (b Board) MarshalJSON() ([]byte, error) {
	var out [3][3]*string
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			if b[r][c] != Empty {
				s := string(b[r][c])
				out[r][c] = &s
			}
		}
	}
	return json.Marshal(out)
}

func (b *Board) UnmarshalJSON(data []byte) error {
	var in [3][3]*string
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	var nb Board
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			if in[r][c] == nil {
				continue
			}
			m := Mark(*in[r][c])
			if m != X && m != O {
				return fmt.Errorf("board cell %d,%d: %w", r, c, ErrInvalidMark)
			}
			nb[r][c] = m
		}
	}
	*b = nb
	return nil
}
