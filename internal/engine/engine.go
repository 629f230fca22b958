package engine

import (
	"errors"
)

var ErrUnsupportedAction = errors.New("unsupported action")
var ErrMalformedPayload = errors.New("malformed action payload")
var ErrBoardDead = errors.New("board is dead")

type ActionType string

const (
	ActionMoveLeft  ActionType = "move_left"
	ActionMoveRight ActionType = "move_right"
	ActionRotate    ActionType = "rotate"
	ActionDrop      ActionType = "drop"
	ActionAttack    ActionType = "attack"
)

// PlayerAction is immutable once enqueued. Payload is opaque to the session
// and interpreted by the simulation that receives it.
type PlayerAction struct {
	InitiatingSeat int
	TargetSeat     int
	Type           ActionType
	Payload        []byte
}

type Piece struct {
	Col    int     `json:"col"`
	Row    int     `json:"row"`
	Blocks [3]byte `json:"blocks"`
}

// State is an exported snapshot of one board. It never aliases the live
// simulation's memory.
type State struct {
	Cols           int    `json:"cols"`
	Rows           int    `json:"rows"`
	Cells          []byte `json:"cells"`
	Piece          Piece  `json:"piece"`
	Score          int    `json:"score"`
	Cleared        int    `json:"cleared"`
	PendingGarbage int    `json:"pendingGarbage"`
	PartnerHeight  int    `json:"partnerHeight"`
	Dead           bool   `json:"dead"`
}

// Height is the number of rows between the floor and the highest filled cell.
func (s State) Height() int {
	for row := 0; row < s.Rows; row++ {
		for col := 0; col < s.Cols; col++ {
			if s.Cells[row*s.Cols+col] != 0 {
				return s.Rows - row
			}
		}
	}
	return 0
}

// Simulation is the board logic a seat drives. The session owns exactly one
// per seat and never calls it from two goroutines at once.
type Simulation interface {
	ApplyAction(action PlayerAction) error
	// Advance moves the board forward by dt seconds. partner is the latest
	// exported state of the paired seat, or nil when there is none; it must
	// be treated as read-only.
	Advance(dt float64, partner *State)
	ExportState() State
	IsDead() bool
	Begin()
	End()
	Reset(seed int64)
}

type Factory func() Simulation
