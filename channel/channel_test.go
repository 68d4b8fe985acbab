package channel

import (
	"testing"

	"github.com/out61h/AVRModPlay/mtest"
	"github.com/out61h/AVRModPlay/song"
)

func TestArpeggioIsUnchangedAtTickZeroThenCyclesParams(t *testing.T) {
	var c Channel
	c.Init()
	c.statePeriod = 428
	c.UseArpeggio(3, 7)

	want := []uint16{
		428, // tick 0: no per-tick update runs yet
		uint16(uint32(428) * uint32(arpeggioTable[3-1]) >> 16),
		uint16(uint32(428) * uint32(arpeggioTable[7-1]) >> 16),
		428, // tick 3: params[3%3] == 0, no transposition
	}

	for i, w := range want {
		c.Tick()
		mtest.Equate(t, c.tickPeriod, w)
		_ = i
	}
}

func TestVibratoDoesNotMutatePersistentPeriod(t *testing.T) {
	var c Channel
	c.Init()
	c.statePeriod = 428
	c.UsePeriodVibrato(4, 8)

	for i := 0; i < 10; i++ {
		c.Tick()
		mtest.Equate(t, c.statePeriod, uint16(428))
	}
}

func TestTonePortamentoSlidesTowardTargetWithoutOvershoot(t *testing.T) {
	var c Channel
	c.Init()
	c.statePeriod = 428

	c.SetPeriod(214)
	c.UsePeriodPortamento(0xFF)

	c.Tick() // tick 0: retrig cleared by portamento, no slide yet
	mtest.Equate(t, c.statePeriod, uint16(428))

	c.Tick() // tick 1: 428 - 255 = 173, clamped up to the 214 target
	mtest.Equate(t, c.statePeriod, uint16(214))

	for i := 0; i < 5; i++ {
		c.Tick()
		mtest.Equate(t, c.statePeriod, uint16(214))
	}
}

func TestNoteCutSilencesAtConfiguredTick(t *testing.T) {
	var c Channel
	c.Init()
	c.stateVolume = 64
	c.UseNoteCut(2)

	c.Tick() // tick 0
	mtest.Equate(t, c.stateVolume, int8(64))

	c.Tick() // tick 1
	mtest.Equate(t, c.stateVolume, int8(64))

	c.Tick() // tick 2: cut fires
	mtest.Equate(t, c.stateVolume, int8(0))
}

func TestNoteRepeatRetriggersOnEveryNthTick(t *testing.T) {
	var c Channel
	c.Init()
	c.UseNoteRepeat(3)

	for tick := uint8(0); tick < 6; tick++ {
		c.tickActions = actionNone
		c.rowTickCounter = tick
		c.internalUpdateNote()

		want := tick%3 == 0
		mtest.Equate(t, c.tickActions&actionRetrig != 0, want)
	}
}

func TestIncDecVolumeSaturate(t *testing.T) {
	var c Channel
	c.Init()

	c.stateVolume = 60
	c.IncVolume(10)
	mtest.Equate(t, c.stateVolume, int8(song.MaxVolume))

	c.stateVolume = 5
	c.DecVolume(10)
	mtest.Equate(t, c.stateVolume, int8(0))
}
