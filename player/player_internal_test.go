package player

import (
	"testing"

	"github.com/out61h/AVRModPlay/mtest"
	"github.com/out61h/AVRModPlay/sampler"
	"github.com/out61h/AVRModPlay/song"
)

func TestDispatchSpeedBelowThresholdSetsTicksPerRow(t *testing.T) {
	p := New(48000)
	p.ticksPerRow = song.InitialSpeed

	p.dispatchSpeed(0, 3)
	mtest.Equate(t, p.ticksPerRow, uint8(3))
}

func TestDispatchSpeedAboveThresholdSetsBPMPeriod(t *testing.T) {
	p := New(48000)

	p.dispatchSpeed(0, 125)

	want := uint16(uint32(sampler.SamplingFreq) * 5 / (2 * 125))
	mtest.Equate(t, p.rowTimer.Period(), want)
	mtest.Equate(t, p.stats.MaxBPM, uint8(125))
}

func TestPatternLoopReplaysThenContinues(t *testing.T) {
	p := New(48000)
	p.row = 4

	// E60: mark row 4 as the loop point.
	p.patternLoop(0, 0)
	mtest.Equate(t, p.patternLoopStart[0], uint8(4))

	// E63: loop three more times.
	p.patternLoop(0, 3)
	mtest.Equate(t, p.rowActions&rowActionJumpToRow != 0, true)
	mtest.Equate(t, p.pendingJumpRow, uint8(4))
	p.rowActions = rowActionNone

	p.patternLoop(0, 3)
	mtest.Equate(t, p.rowActions&rowActionJumpToRow != 0, true)
	p.rowActions = rowActionNone

	p.patternLoop(0, 3)
	mtest.Equate(t, p.rowActions&rowActionJumpToRow != 0, true)
	p.rowActions = rowActionNone

	// Fourth visit: remaining count reaches 0, no further jump.
	p.patternLoop(0, 3)
	mtest.Equate(t, p.rowActions&rowActionJumpToRow != 0, false)
}

func TestTickDownsampledDoublesGainExceptWhileInterpolating(t *testing.T) {
	p := New(48000, WithDownsampling(2), WithLinearInterpolation(true))
	p.playing.Store(true)

	// Feed the LERP slope directly instead of loading a song: hold at 0,
	// then interpolate one step toward a mix sum of (100, -100).
	p.lastLeft, p.lastRight = 0, 0
	p.lerpFromLeft, p.lerpFromRight = 0, 0
	p.lerpToLeft, p.lerpToRight = 100, -100
	p.downsampleCounter = 1

	p.tickDownsampled()

	left, right := p.Output()
	// t=1, n=2: interpolated sum is 50/-50, and must NOT be doubled to
	// 100/-100 the way the non-interpolated hold path would be.
	mtest.Equate(t, left, int16(50))
	mtest.Equate(t, right, int16(-50))
}

func TestTickDownsampledHoldPathDoublesGain(t *testing.T) {
	p := New(48000, WithDownsampling(2), WithLinearInterpolation(false))
	p.playing.Store(true)

	p.lastLeft, p.lastRight = 30, -30
	p.downsampleCounter = 1

	p.tickDownsampled()

	left, right := p.Output()
	mtest.Equate(t, left, int16(60))
	mtest.Equate(t, right, int16(-60))
}
