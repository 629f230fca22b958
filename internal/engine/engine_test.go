package engine

import (
	"bytes"
	"errors"
	"testing"
)

func newRunning(seed int64) *Towers {
	t := NewTowers().(*Towers)
	t.Reset(seed)
	t.Begin()
	return t
}

func TestApplyAction_Errors(t *testing.T) {
	cases := []struct {
		name    string
		action  PlayerAction
		wantErr error
	}{
		{
			name:    "unknown action type",
			action:  PlayerAction{Type: "teleport"},
			wantErr: ErrUnsupportedAction,
		},
		{
			name:    "attack with bad json",
			action:  PlayerAction{Type: ActionAttack, Payload: []byte("{")},
			wantErr: ErrMalformedPayload,
		},
		{
			name:    "attack with zero rows",
			action:  PlayerAction{Type: ActionAttack, Payload: []byte(`{"rows":0}`)},
			wantErr: ErrMalformedPayload,
		},
		{
			name:   "attack without payload defaults to one row",
			action: PlayerAction{Type: ActionAttack},
		},
		{
			name:   "rotate",
			action: PlayerAction{Type: ActionRotate},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := newRunning(1)
			err := b.ApplyAction(tc.action)
			if tc.wantErr == nil && err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("want %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestAttack_HugeRowsAreCapped(t *testing.T) {
	b := newRunning(3)
	for _, payload := range []string{`{"rows":1}`, `{"rows":9223372036854775807}`} {
		if err := b.ApplyAction(PlayerAction{Type: ActionAttack, Payload: []byte(payload)}); err != nil {
			t.Fatalf("attack %s: %v", payload, err)
		}
	}
	if got := b.ExportState().PendingGarbage; got != maxGarbage {
		t.Fatalf("want pending garbage %d, got %d", maxGarbage, got)
	}
}

func TestMoves_StayInsideWell(t *testing.T) {
	b := newRunning(3)
	for i := 0; i < TowersCols+2; i++ {
		if err := b.ApplyAction(PlayerAction{Type: ActionMoveLeft}); err != nil {
			t.Fatalf("move left: %v", err)
		}
	}
	if got := b.ExportState().Piece.Col; got != 0 {
		t.Fatalf("want col 0 after moving left, got %d", got)
	}

	for i := 0; i < TowersCols+2; i++ {
		_ = b.ApplyAction(PlayerAction{Type: ActionMoveRight})
	}
	if got := b.ExportState().Piece.Col; got != TowersCols-1 {
		t.Fatalf("want col %d after moving right, got %d", TowersCols-1, got)
	}
}

func TestRotate_CyclesBlocks(t *testing.T) {
	b := newRunning(5)
	before := b.ExportState().Piece.Blocks
	_ = b.ApplyAction(PlayerAction{Type: ActionRotate})
	after := b.ExportState().Piece.Blocks
	want := [3]byte{before[2], before[0], before[1]}
	if after != want {
		t.Fatalf("got %v, want %v", after, want)
	}
}

func TestSameSeed_SameBoard(t *testing.T) {
	a := newRunning(42)
	b := newRunning(42)
	for i := 0; i < 10; i++ {
		_ = a.ApplyAction(PlayerAction{Type: ActionDrop})
		_ = b.ApplyAction(PlayerAction{Type: ActionDrop})
		a.Advance(0.25, nil)
		b.Advance(0.25, nil)
	}
	sa, sb := a.ExportState(), b.ExportState()
	if !bytes.Equal(sa.Cells, sb.Cells) || sa.Piece != sb.Piece || sa.Score != sb.Score {
		t.Fatalf("boards diverged for equal seeds")
	}
}

func TestExportState_DoesNotAlias(t *testing.T) {
	b := newRunning(9)
	s := b.ExportState()
	s.Cells[0] = 99
	if b.ExportState().Cells[0] == 99 {
		t.Fatalf("exported cells alias live board")
	}
}

func TestAdvance_IdleBoardDoesNotMove(t *testing.T) {
	b := NewTowers().(*Towers)
	b.Advance(10, nil)
	if got := b.ExportState().Piece.Row; got != 0 {
		t.Fatalf("idle board moved to row %d", got)
	}
}

func TestAdvance_FallsOnInterval(t *testing.T) {
	b := newRunning(2)
	b.Advance(fallInterval*2, nil)
	if got := b.ExportState().Piece.Row; got != 2 {
		t.Fatalf("want row 2, got %d", got)
	}
}

func TestAdvance_RecordsPartnerHeight(t *testing.T) {
	b := newRunning(2)
	partner := State{Cols: 1, Rows: 4, Cells: []byte{0, 1, 1, 1}}
	b.Advance(0.01, &partner)
	if got := b.ExportState().PartnerHeight; got != 3 {
		t.Fatalf("want partner height 3, got %d", got)
	}
}

func TestDropping_EventuallyKillsBoard(t *testing.T) {
	b := newRunning(7)
	for i := 0; i < 500 && !b.IsDead(); i++ {
		_ = b.ApplyAction(PlayerAction{Type: ActionAttack, Payload: []byte(`{"rows":6}`)})
		_ = b.ApplyAction(PlayerAction{Type: ActionDrop})
	}
	if !b.IsDead() {
		t.Fatalf("expected board to die under constant garbage")
	}
	if err := b.ApplyAction(PlayerAction{Type: ActionRotate}); !errors.Is(err, ErrBoardDead) {
		t.Fatalf("want ErrBoardDead, got %v", err)
	}
	if !b.ExportState().Dead {
		t.Fatalf("exported state should report dead")
	}
}

func TestClearMatches_ThreeInARow(t *testing.T) {
	b := newRunning(1)
	last := TowersRows - 1
	b.set(0, last, 3)
	b.set(1, last, 3)
	b.set(2, last, 3)
	b.set(3, last, stone)
	if n := b.clearMatches(); n != 3 {
		t.Fatalf("want 3 cleared, got %d", n)
	}
	if b.at(3, last) != stone {
		t.Fatalf("stone should not clear")
	}
}

func TestReset_ClearsBoard(t *testing.T) {
	b := newRunning(4)
	_ = b.ApplyAction(PlayerAction{Type: ActionDrop})
	b.Reset(4)
	s := b.ExportState()
	if s.Height() != 0 || s.Score != 0 || s.Dead {
		t.Fatalf("reset left state behind: %+v", s)
	}
}
