package player_test

import (
	"testing"

	"github.com/out61h/AVRModPlay/events"
	"github.com/out61h/AVRModPlay/mtest"
	"github.com/out61h/AVRModPlay/player"
)

// rowRecorder builds a Callbacks bundle that appends every order fetched to
// orders and every row fetched to rows. Either slice pointer may be nil.
func rowRecorder(orders, rows *[]uint8) events.Callbacks {
	return events.Callbacks{
		OnPlayPattern: func(order, pattern uint8) {
			if orders != nil {
				*orders = append(*orders, order)
			}
		},
		OnPlayRowBegin: func(row uint8) {
			if rows != nil {
				*rows = append(*rows, row)
			}
		},
	}
}

// modBuilder assembles a minimal, valid MOD binary for scheduler tests: a
// header with no samples, an order list, and a set of pattern cells encoded
// in the canonical (sample|period, effect|param) byte layout.
type modBuilder struct {
	header   [1084]byte
	patterns [][1024]byte
}

func newModBuilder(orders ...uint8) *modBuilder {
	b := &modBuilder{}
	copy(b.header[1080:1084], "M.K.")
	b.header[950] = uint8(len(orders))
	copy(b.header[952:952+len(orders)], orders)
	return b
}

func (b *modBuilder) addPattern() int {
	b.patterns = append(b.patterns, [1024]byte{})
	return len(b.patterns) - 1
}

func (b *modBuilder) setCell(pattern, row, ch int, sampleNo uint8, period uint16, effect, param uint8) {
	off := row*16 + ch*4
	sampleHi := sampleNo & 0xF0
	sampleLo := sampleNo & 0x0F
	periodHi := uint8(period>>8) & 0x0F

	cell := &b.patterns[pattern]
	cell[off+0] = sampleHi | periodHi
	cell[off+1] = uint8(period)
	cell[off+2] = (sampleLo << 4) | (effect & 0x0F)
	cell[off+3] = param
}

func (b *modBuilder) bytes() []byte {
	out := make([]byte, 0, len(b.header)+len(b.patterns)*1024)
	out = append(out, b.header[:]...)
	for _, p := range b.patterns {
		out = append(out, p[:]...)
	}
	return out
}

func runUntilInactive(t *testing.T, p *player.Player, maxTicks int) {
	t.Helper()
	for i := 0; i < maxTicks; i++ {
		p.Tick()
		if p.Update() == player.Inactive {
			return
		}
	}
	t.Fatalf("player did not go inactive within %d ticks", maxTicks)
}

func TestSilentSongProducesOnlyZeroOutputThenStops(t *testing.T) {
	b := newModBuilder(0)
	b.addPattern()

	p := player.New(100)
	if err := p.Load(b.bytes()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	sawNonZero := false
	for i := 0; i < 2000; i++ {
		p.Tick()
		left, right := p.Output()
		if left != 0 || right != 0 {
			sawNonZero = true
		}
		if p.Update() == player.Inactive {
			mtest.Equate(t, sawNonZero, false)
			return
		}
	}
	t.Fatal("silent song never went inactive")
}

func TestPatternBreakJumpsToTargetRow(t *testing.T) {
	b := newModBuilder(0, 1)
	pat0 := b.addPattern()
	b.addPattern()

	// Row 0 of pattern 0: D21 breaks to row (2*10+1) == 21 of the next order.
	b.setCell(pat0, 0, 0, 0, 0, 0xD, 0x21)

	var rows []uint8
	var orders []uint8
	p := player.New(100, player.WithCallbacks(rowRecorder(&orders, &rows)))

	if err := p.Load(b.bytes()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	runUntilInactive(t, p, 200_000)

	mtest.Equate(t, len(rows) >= 2, true)
	mtest.Equate(t, rows[0], uint8(0))
	mtest.Equate(t, orders[1], uint8(1))
	mtest.Equate(t, rows[1], uint8(21))
}

func TestPatternLoopReplaysRowsBeforeContinuing(t *testing.T) {
	b := newModBuilder(0)
	pat := b.addPattern()

	// E60 at row 0 marks the loop point, E63 at row 4 repeats it 3 more times.
	b.setCell(pat, 0, 0, 0, 0, 0xE, 0x60)
	b.setCell(pat, 4, 0, 0, 0, 0xE, 0x63)

	var rows []uint8
	p := player.New(100, player.WithCallbacks(rowRecorder(nil, &rows)))

	if err := p.Load(b.bytes()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	runUntilInactive(t, p, 400_000)

	// Rows 0..4 should appear four times before row 5 is ever reached.
	occurrencesOfZero := 0
	sawFiveBeforeFourLoops := false
	loops := 0
	for _, r := range rows {
		if r == 0 {
			occurrencesOfZero++
		}
		if r == 5 && occurrencesOfZero < 4 {
			sawFiveBeforeFourLoops = true
		}
		if r == 4 {
			loops++
		}
	}

	mtest.Equate(t, occurrencesOfZero, 4)
	mtest.Equate(t, loops, 4)
	mtest.Equate(t, sawFiveBeforeFourLoops, false)
}

func TestOutputAlwaysFitsInt16Range(t *testing.T) {
	b := newModBuilder(0)
	pat := b.addPattern()
	b.setCell(pat, 0, 0, 0, 0, 0xF, 3)

	p := player.New(48000)
	if err := p.Load(b.bytes()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	for i := 0; i < 50_000; i++ {
		p.Tick()
		left, right := p.Output()
		mtest.InRange(t, left, int16(-32768), int16(32767))
		mtest.InRange(t, right, int16(-32768), int16(32767))
		p.Update()
	}
}
