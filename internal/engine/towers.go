package engine

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
)

const (
	TowersCols = 6
	TowersRows = 13

	colorCount   = 6
	stone        = byte(7)
	spawnCol     = 2
	maxGarbage   = 6
	fallInterval = 0.5
)

type attackPayload struct {
	Rows int `json:"rows"`
}

// Towers is the reference board: three-block pieces fall into a 6x13 well,
// three or more equal blocks in a row or column clear, and attacks from
// enemies push stone rows up from the floor.
type Towers struct {
	cells   []byte
	piece   Piece
	rng     *rand.Rand
	running bool
	dead    bool
	acc     float64

	score          int
	cleared        int
	pendingGarbage int
	partnerHeight  int
}

func NewTowers() Simulation {
	t := &Towers{}
	t.Reset(0)
	return t
}

func (t *Towers) Reset(seed int64) {
	t.cells = make([]byte, TowersCols*TowersRows)
	t.rng = rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))
	t.running = false
	t.dead = false
	t.acc = 0
	t.score = 0
	t.cleared = 0
	t.pendingGarbage = 0
	t.partnerHeight = 0
	t.spawn()
}

func (t *Towers) Begin() { t.running = true }
func (t *Towers) End()   { t.running = false }

func (t *Towers) IsDead() bool { return t.dead }

func (t *Towers) ApplyAction(action PlayerAction) error {
	if t.dead {
		return ErrBoardDead
	}

	switch action.Type {
	case ActionMoveLeft:
		if t.fits(t.piece.Col-1, t.piece.Row) {
			t.piece.Col--
		}
	case ActionMoveRight:
		if t.fits(t.piece.Col+1, t.piece.Row) {
			t.piece.Col++
		}
	case ActionRotate:
		b := t.piece.Blocks
		t.piece.Blocks = [3]byte{b[2], b[0], b[1]}
	case ActionDrop:
		for t.fits(t.piece.Col, t.piece.Row+1) {
			t.piece.Row++
		}
		t.lock()
	case ActionAttack:
		p := attackPayload{Rows: 1}
		if len(action.Payload) > 0 {
			if err := json.Unmarshal(action.Payload, &p); err != nil {
				return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
			}
		}
		if p.Rows <= 0 {
			return fmt.Errorf("%w: rows must be positive", ErrMalformedPayload)
		}
		t.pendingGarbage = min(t.pendingGarbage+min(p.Rows, maxGarbage), maxGarbage)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedAction, action.Type)
	}
	return nil
}

func (t *Towers) Advance(dt float64, partner *State) {
	if !t.running || t.dead {
		return
	}

	interval := fallInterval
	if partner != nil {
		t.partnerHeight = partner.Height()
		// Left alone, the well speeds up.
		if partner.Dead {
			interval *= 0.8
		}
	}

	t.acc += dt
	for t.acc >= interval && !t.dead {
		t.acc -= interval
		if t.fits(t.piece.Col, t.piece.Row+1) {
			t.piece.Row++
		} else {
			t.lock()
		}
	}
}

func (t *Towers) ExportState() State {
	cells := make([]byte, len(t.cells))
	copy(cells, t.cells)
	return State{
		Cols:           TowersCols,
		Rows:           TowersRows,
		Cells:          cells,
		Piece:          t.piece,
		Score:          t.score,
		Cleared:        t.cleared,
		PendingGarbage: t.pendingGarbage,
		PartnerHeight:  t.partnerHeight,
		Dead:           t.dead,
	}
}

func (t *Towers) at(col, row int) byte { return t.cells[row*TowersCols+col] }

func (t *Towers) set(col, row int, v byte) { t.cells[row*TowersCols+col] = v }

// fits reports whether the piece could occupy col with its top block at row.
func (t *Towers) fits(col, row int) bool {
	if col < 0 || col >= TowersCols || row < 0 || row+2 >= TowersRows {
		return false
	}
	for i := 0; i < 3; i++ {
		if t.at(col, row+i) != 0 {
			return false
		}
	}
	return true
}

func (t *Towers) spawn() {
	t.piece = Piece{Col: spawnCol, Row: 0}
	for i := range t.piece.Blocks {
		t.piece.Blocks[i] = byte(1 + t.rng.IntN(colorCount))
	}
	if !t.fits(t.piece.Col, t.piece.Row) {
		t.dead = true
	}
}

func (t *Towers) lock() {
	for i, b := range t.piece.Blocks {
		t.set(t.piece.Col, t.piece.Row+i, b)
	}

	chain := 0
	for {
		n := t.clearMatches()
		if n == 0 {
			break
		}
		chain++
		t.cleared += n
		t.score += n * 10 * chain
		t.settle()
	}

	for ; t.pendingGarbage > 0 && !t.dead; t.pendingGarbage-- {
		t.raiseStoneRow()
	}
	if !t.dead {
		t.spawn()
	}
}

func (t *Towers) clearMatches() int {
	marked := make([]bool, len(t.cells))
	mark := func(col, row, dc, dr int) {
		v := t.at(col, row)
		if v == 0 || v == stone {
			return
		}
		n := 1
		for c, r := col+dc, row+dr; c < TowersCols && r < TowersRows && t.at(c, r) == v; c, r = c+dc, r+dr {
			n++
		}
		if n < 3 {
			return
		}
		for i := 0; i < n; i++ {
			marked[(row+i*dr)*TowersCols+col+i*dc] = true
		}
	}
	for row := 0; row < TowersRows; row++ {
		for col := 0; col < TowersCols; col++ {
			mark(col, row, 1, 0)
			mark(col, row, 0, 1)
		}
	}

	n := 0
	for i, m := range marked {
		if m {
			t.cells[i] = 0
			n++
		}
	}
	return n
}

// settle lets blocks fall straight down into empty cells.
func (t *Towers) settle() {
	for col := 0; col < TowersCols; col++ {
		dst := TowersRows - 1
		for row := TowersRows - 1; row >= 0; row-- {
			if v := t.at(col, row); v != 0 {
				t.set(col, row, 0)
				t.set(col, dst, v)
				dst--
			}
		}
	}
}

func (t *Towers) raiseStoneRow() {
	for col := 0; col < TowersCols; col++ {
		if t.at(col, 0) != 0 {
			t.dead = true
			return
		}
	}
	copy(t.cells, t.cells[TowersCols:])
	hole := t.rng.IntN(TowersCols)
	for col := 0; col < TowersCols; col++ {
		v := stone
		if col == hole {
			v = 0
		}
		t.set(col, TowersRows-1, v)
	}
}
