// Package channel translates a row-level effect program into the sequence
// of per-tick Sampler mutations that make up portamento, vibrato, tremolo,
// arpeggio, retrigger, cut and delay. A Channel separates three
// timescales: cold row-parse calls latch into the row effect program,
// tick 0 dispatches the resulting actions, and every later tick within the
// row re-evaluates the active effect before dispatching again.
package channel

import (
	"github.com/out61h/AVRModPlay/sampler"
	"github.com/out61h/AVRModPlay/song"
)

// arpeggioTable holds the 15 fixed-point 0.16 halftone-up multipliers used
// by the arpeggio effect; index 0 is "+1 halftone".
var arpeggioTable = [15]uint16{
	61857, 58385, 55108, 52015, 49096, 46340, 43740, 41285,
	38967, 36780, 34716, 32768, 30928, 29192, 27554,
}

const (
	sineTableLength     = 32
	sineTableLengthMask = sineTableLength - 1
	oscPeriod           = sineTableLength * 2
)

// sineTable is the shared quarter-period-mirrored positive sine table
// driving vibrato and tremolo.
var sineTable = [sineTableLength]uint8{
	0, 24, 49, 74, 97, 120, 141, 161, 180, 197, 212,
	224, 235, 244, 250, 253, 255, 253, 250, 244, 235, 224,
	212, 197, 180, 161, 141, 120, 97, 74, 49, 24,
}

type action uint8

const (
	actionNone            action = 0
	actionUpdateVolume    action = 1 << 0
	actionUpdatePeriod    action = 1 << 1
	actionUseSampleOffset action = 1 << 2
	actionRetrig          action = 1 << 3
	actionUseArpeggio     action = 1 << 4
	actionLoadSample      action = 1 << 5
)

type arpeggioEffect uint8

const (
	arpeggioEffectNone arpeggioEffect = iota
	arpeggioEffectArpeggio
)

type volumeEffect uint8

const (
	volumeEffectNone volumeEffect = iota
	volumeEffectInc
	volumeEffectDec
	volumeEffectTremolo
)

type periodEffect uint8

const (
	periodEffectNone periodEffect = iota
	periodEffectInc
	periodEffectDec
	periodEffectPortamento
	periodEffectVibrato
)

type noteEffect uint8

const (
	noteEffectNone noteEffect = iota
	noteEffectRepeat
	noteEffectCut
	noteEffectDelay
)

// Channel wraps a sampler.Sampler with the per-row effect program and
// per-tick state needed to drive it.
type Channel struct {
	sampler.Sampler

	tickActions action
	tickPeriod  uint16
	tickVolume  int8

	rowTickCounter    uint8
	rowDelayedActions action

	arpeggioEffect arpeggioEffect
	arpeggioParams [song.ArpeggioPeriod]uint8
	volumeEffect   volumeEffect
	volumeParam    uint8
	periodEffect   periodEffect
	periodParam    uint8
	noteEffect     noteEffect
	noteParam      uint8

	stateSample *song.Sample
	statePeriod uint16
	stateVolume int8
	vibratoPos  int8
	tremoloPos  int8

	inputSample     *song.Sample
	inputPeriod     uint16
	portamentoSlide uint8
	vibratoSpeed    uint8
	vibratoDepth    uint8
	tremoloSpeed    uint8
	tremoloDepth    uint8
	sampleOffset    uint8
}

// Init resets a channel to its initial state, including the embedded
// Sampler. Does not spin-wait; use Reset from the control context if a
// fetch may be in progress.
func (c *Channel) Init() {
	c.Sampler.Init()
	c.ResetRow()

	c.stateSample = nil
	c.statePeriod = 0
	c.stateVolume = 0
	c.vibratoPos = 0
	c.tremoloPos = 0

	c.inputSample = nil
	c.inputPeriod = 0
	c.portamentoSlide = 0
	c.vibratoSpeed = 0
	c.vibratoDepth = 0
	c.tremoloSpeed = 0
	c.tremoloDepth = 0
	c.sampleOffset = 0
}

// Reset spin-waits for any in-progress sample fetch, then reinitializes.
func (c *Channel) Reset() {
	c.Sampler.Reset()
	c.Init()
}

// ResetRow clears the row effect program and stored tick actions ahead of
// decoding a new row's cell.
func (c *Channel) ResetRow() {
	c.rowTickCounter = 0
	c.rowDelayedActions = actionNone
	c.resetRowEffects()
	c.tickActions = actionNone
}

func (c *Channel) resetRowEffects() {
	c.arpeggioEffect = arpeggioEffectNone
	c.noteEffect = noteEffectNone
	c.periodEffect = periodEffectNone
	c.volumeEffect = volumeEffectNone
}

// Tick runs the three per-tick updaters (for ticks after the row's first),
// dispatches the resulting actions to the Sampler, and advances the
// within-row tick counter.
func (c *Channel) Tick() {
	c.tickPeriod = c.statePeriod
	c.tickVolume = c.stateVolume

	if c.rowTickCounter != 0 {
		c.internalUpdateVolume()
		c.internalUpdateNote()
		c.internalUpdatePeriod()
	}

	c.internalPerformActions()
	c.rowTickCounter++
	c.tickActions = actionNone
}

// SetPeriod latches a new period ∈ [MinPeriod, MaxPeriod] for the next
// retrigger. A period of 0 means "no new period" and is ignored.
func (c *Channel) SetPeriod(period uint16) {
	if period == 0 {
		return
	}

	switch {
	case period > song.MaxPeriod:
		c.inputPeriod = song.MaxPeriod
	case period < song.MinPeriod:
		c.inputPeriod = song.MinPeriod
	default:
		c.inputPeriod = period
	}

	c.tickActions |= actionRetrig
}

// SetSample latches the sample to load on the next action dispatch. A nil
// sample means "no new sample" and is ignored.
func (c *Channel) SetSample(sample *song.Sample) {
	if sample != nil {
		c.inputSample = sample
		c.tickActions |= actionLoadSample
	}
}

// SetVolume sets the persistent volume, clamped to [0, MaxVolume].
func (c *Channel) SetVolume(volume uint8) {
	c.internalLoadSample()

	if volume > song.MaxVolume {
		c.stateVolume = song.MaxVolume
	} else {
		c.stateVolume = int8(volume)
	}

	c.tickActions |= actionUpdateVolume
}

// IncVolume saturating-adds delta to the persistent volume.
func (c *Channel) IncVolume(delta uint8) {
	c.internalLoadSample()

	if int(delta) > song.MaxVolume-int(c.stateVolume) {
		c.stateVolume = song.MaxVolume
	} else {
		c.stateVolume += int8(delta)
	}

	c.tickActions |= actionUpdateVolume
}

// DecVolume saturating-subtracts delta from the persistent volume.
func (c *Channel) DecVolume(delta uint8) {
	c.internalLoadSample()

	if delta > uint8(c.stateVolume) {
		c.stateVolume = 0
	} else {
		c.stateVolume -= int8(delta)
	}

	c.tickActions |= actionUpdateVolume
}

// UseVolumeInc latches a per-tick volume-slide-up effect.
func (c *Channel) UseVolumeInc(delta uint8) {
	if delta != 0 {
		c.volumeEffect = volumeEffectInc
		c.volumeParam = delta
	}
}

// UseVolumeDec latches a per-tick volume-slide-down effect.
func (c *Channel) UseVolumeDec(delta uint8) {
	if delta != 0 {
		c.volumeEffect = volumeEffectDec
		c.volumeParam = delta
	}
}

// UseVolumeTremolo latches a tremolo effect (classic Protracker 7xy).
func (c *Channel) UseVolumeTremolo(speed, depth uint8) {
	if speed != 0 {
		c.tremoloSpeed = speed
	}
	if depth != 0 {
		c.tremoloDepth = depth
	}
	c.volumeEffect = volumeEffectTremolo
}

// IncPeriod applies a one-shot saturating period increase (fine portamento
// down).
func (c *Channel) IncPeriod(delta uint8) {
	if c.statePeriod < song.MaxPeriod-uint16(delta) {
		c.statePeriod += uint16(delta)
	} else {
		c.statePeriod = song.MaxPeriod
	}

	c.tickActions |= actionUpdatePeriod
}

// DecPeriod applies a one-shot saturating period decrease (fine
// portamento up).
func (c *Channel) DecPeriod(delta uint8) {
	if c.statePeriod > song.MinPeriod+uint16(delta) {
		c.statePeriod -= uint16(delta)
	} else {
		c.statePeriod = song.MinPeriod
	}

	c.tickActions |= actionUpdatePeriod
}

// UsePeriodInc latches a per-tick period-increase effect (portamento
// down).
func (c *Channel) UsePeriodInc(delta uint8) {
	c.periodEffect = periodEffectInc
	c.periodParam = delta
}

// UsePeriodDec latches a per-tick period-decrease effect (portamento up).
func (c *Channel) UsePeriodDec(delta uint8) {
	c.periodEffect = periodEffectDec
	c.periodParam = delta
}

// UsePeriodPortamento latches a tone-portamento effect sliding the
// persistent period toward the last-set input period by slide per tick.
// Cancels any pending retrigger, since portamento never restarts the
// sample.
func (c *Channel) UsePeriodPortamento(slide uint8) {
	if slide != 0 {
		c.portamentoSlide = slide
	}

	c.periodEffect = periodEffectPortamento
	c.tickActions &^= actionRetrig
}

// UsePeriodVibrato latches a vibrato effect (classic Protracker 4xy).
func (c *Channel) UsePeriodVibrato(speed, depth uint8) {
	if speed != 0 {
		c.vibratoSpeed = speed
	}
	if depth != 0 {
		c.vibratoDepth = depth
	}
	c.periodEffect = periodEffectVibrato
}

// SetSampleOffset latches a sample offset (in 256-byte units) for the next
// retrigger.
func (c *Channel) SetSampleOffset(offset uint8) {
	if offset != 0 {
		c.sampleOffset = offset
	}
	c.tickActions |= actionUseSampleOffset
}

// UseNoteRepeat retriggers the sample every ticks ticks within the row.
func (c *Channel) UseNoteRepeat(ticks uint8) {
	if ticks != 0 {
		c.noteEffect = noteEffectRepeat
		c.noteParam = ticks
		c.tickActions |= actionRetrig
	}
}

// UseNoteCut silences the channel at tick ticks, or immediately if ticks
// is zero.
func (c *Channel) UseNoteCut(ticks uint8) {
	if ticks != 0 {
		c.noteEffect = noteEffectCut
		c.noteParam = ticks
		return
	}

	c.stateVolume = 0
	c.tickActions |= actionUpdateVolume
	c.volumeEffect = volumeEffectNone
}

// UseNoteDelay defers the pending retrigger/load-sample actions to tick
// ticks within the row.
func (c *Channel) UseNoteDelay(ticks uint8) {
	if ticks == 0 {
		return
	}

	c.noteEffect = noteEffectDelay
	c.noteParam = ticks

	c.rowDelayedActions = c.tickActions & (actionRetrig | actionLoadSample)
	c.tickActions &^= actionRetrig | actionLoadSample
}

// UseArpeggio latches a per-tick cycle of {0, note2, note3} halftones.
func (c *Channel) UseArpeggio(note2, note3 uint8) {
	c.arpeggioEffect = arpeggioEffectArpeggio
	c.arpeggioParams[0] = 0
	c.arpeggioParams[1] = note2
	c.arpeggioParams[2] = note3
}

func (c *Channel) internalUpdateVolume() {
	switch c.volumeEffect {
	case volumeEffectDec:
		delta := int8(c.volumeParam)
		if delta > c.stateVolume {
			c.stateVolume = 0
		} else {
			c.stateVolume -= delta
		}

		c.tickVolume = c.stateVolume
		c.tickActions |= actionUpdateVolume

	case volumeEffectInc:
		delta := int8(c.volumeParam)
		if delta > song.MaxVolume-c.stateVolume {
			c.stateVolume = song.MaxVolume
		} else {
			c.stateVolume += delta
		}

		c.tickVolume = c.stateVolume
		c.tickActions |= actionUpdateVolume

	case volumeEffectTremolo:
		index := uint8(c.tremoloPos) & sineTableLengthMask
		delta := int8(int(sineTable[index]) * int(c.tremoloDepth) / 64)

		if c.tremoloPos >= 0 {
			if int(c.stateVolume)+int(delta) > song.MaxVolume {
				c.tickVolume = song.MaxVolume
			} else {
				c.tickVolume = c.stateVolume + delta
			}
		} else {
			if int(c.stateVolume)-int(delta) < 0 {
				c.tickVolume = 0
			} else {
				c.tickVolume = c.stateVolume - delta
			}
		}

		c.tickActions |= actionUpdateVolume

		c.tremoloPos += int8(c.tremoloSpeed)
		if c.tremoloPos >= sineTableLength {
			c.tremoloPos -= oscPeriod
		}

	case volumeEffectNone:
	}
}

func (c *Channel) internalUpdateNote() {
	switch c.noteEffect {
	case noteEffectCut:
		if c.rowTickCounter == c.noteParam {
			c.stateVolume = 0
			c.tickVolume = 0
			c.tickActions |= actionUpdateVolume
			c.resetRowEffects()
		}

	case noteEffectDelay:
		if c.rowTickCounter == c.noteParam {
			c.tickActions |= c.rowDelayedActions
			c.resetRowEffects()
		}

	case noteEffectRepeat:
		if c.rowTickCounter%c.noteParam == 0 {
			c.tickActions |= actionRetrig
		}

	case noteEffectNone:
	}
}

func (c *Channel) internalUpdatePeriod() {
	switch c.periodEffect {
	case periodEffectPortamento:
		if c.inputPeriod != 0 {
			switch {
			case c.statePeriod > c.inputPeriod:
				if c.statePeriod >= uint16(c.portamentoSlide) {
					c.statePeriod -= uint16(c.portamentoSlide)
				} else {
					c.statePeriod = 0
				}
				if c.statePeriod < c.inputPeriod {
					c.statePeriod = c.inputPeriod
				}

			case c.statePeriod < c.inputPeriod:
				if c.statePeriod < song.MaxPeriod {
					c.statePeriod += uint16(c.portamentoSlide)
				} else {
					c.statePeriod = song.MaxPeriod
				}
				if c.statePeriod > c.inputPeriod {
					c.statePeriod = c.inputPeriod
				}
			}

			c.tickPeriod = c.statePeriod
			c.tickActions |= actionUpdatePeriod
		}

	case periodEffectDec:
		if c.statePeriod >= uint16(c.periodParam) {
			c.statePeriod -= uint16(c.periodParam)
		} else {
			c.statePeriod = 0
		}
		if c.statePeriod < song.MinPeriod {
			c.statePeriod = song.MinPeriod
		}

		c.tickPeriod = c.statePeriod
		c.tickActions |= actionUpdatePeriod

	case periodEffectInc:
		if c.statePeriod < song.MaxPeriod {
			c.statePeriod += uint16(c.periodParam)
		} else {
			c.statePeriod = song.MaxPeriod
		}

		c.tickPeriod = c.statePeriod
		c.tickActions |= actionUpdatePeriod

	case periodEffectVibrato:
		index := uint8(c.vibratoPos) & sineTableLengthMask
		delta := uint16(int(sineTable[index]) * int(c.vibratoDepth) / 128)

		if c.vibratoPos >= 0 {
			c.tickPeriod = c.statePeriod + delta
		} else {
			c.tickPeriod = c.statePeriod - delta
		}

		c.tickActions |= actionUpdatePeriod

		c.vibratoPos += int8(c.vibratoSpeed)
		if c.vibratoPos >= sineTableLength {
			c.vibratoPos -= oscPeriod
		}

	case periodEffectNone:
	}

	if c.arpeggioEffect == arpeggioEffectArpeggio {
		c.tickActions |= actionUpdatePeriod
		c.tickActions |= actionUseArpeggio
	}
}

func (c *Channel) internalLoadSample() {
	if c.tickActions&actionLoadSample == 0 {
		return
	}

	c.stateSample = c.inputSample
	c.stateVolume = c.inputSample.Volume
	c.tickVolume = c.stateVolume
	c.tickActions &^= actionLoadSample
	c.tickActions |= actionUpdateVolume
}

func (c *Channel) internalPerformActions() {
	c.internalLoadSample()

	if c.tickActions&actionRetrig != 0 {
		c.statePeriod = c.inputPeriod
		c.vibratoPos = 0
		c.tremoloPos = 0

		if c.tickActions&actionUseSampleOffset != 0 {
			c.Sampler.Retrig(c.stateSample, c.statePeriod, c.sampleOffset, c.stateVolume)
		} else {
			c.Sampler.Retrig(c.stateSample, c.statePeriod, 0, c.stateVolume)
		}

		return
	}

	if c.tickActions&actionUpdateVolume != 0 {
		c.Sampler.SetVolume(c.tickVolume)
	}

	if c.tickActions&actionUpdatePeriod != 0 {
		if c.tickActions&actionUseArpeggio != 0 {
			arpeggioShift := c.arpeggioParams[c.rowTickCounter%song.ArpeggioPeriod]

			if arpeggioShift != 0 {
				multiplier := arpeggioTable[arpeggioShift-1]
				arpeggioPeriod := uint32(c.tickPeriod) * uint32(multiplier)
				c.tickPeriod = uint16(arpeggioPeriod >> 16)
			}
		}

		if c.tickPeriod < song.MinPeriod {
			c.tickPeriod = song.MinPeriod
		} else if c.tickPeriod > song.MaxPeriod {
			c.tickPeriod = song.MaxPeriod
		}

		c.Sampler.SetPeriod(c.tickPeriod)
	}
}
