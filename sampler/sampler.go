// Package sampler implements the lowest layer of the playback pipeline: a
// fixed-point phase accumulator over one instrument's byte stream, scaled
// by channel volume, with loop wrap-around and a Reset/FetchSample bypass
// handshake safe to call across the mixing/control context boundary.
package sampler

import (
	"sync/atomic"

	"github.com/out61h/AVRModPlay/song"
)

// PaulaClockFreq is the Amiga Paula chip clock frequency, PAL revision.
const PaulaClockFreq = 3546894

// MaxSpeedIndex and MinSpeedIndex locate the fastest/slowest finetune
// entries in speedTable, per the reference's internal::MAX_SPEED_INDEX and
// internal::MIN_SPEED_INDEX.
const (
	MaxSpeedIndex = 7
	MinSpeedIndex = 8
)

var (
	// SamplingFreq is the post-downsampling sampling rate this package's
	// fixed-point tables were computed for. Set once via SetSamplingFreq
	// before constructing any Sampler.
	SamplingFreq uint32

	speedTable          [song.NumFinetunes]uint32
	minLoopLength       uint16
	playerSpeedConstant uint32
)

// finetuneMultipliers holds the 16 eighth-semitone step multipliers (fixed-point
// X.14), reordered 0, +1..+7, -8..-1 as in the MOD standard.
var finetuneMultipliers = [song.NumFinetunes][2]uint16{
	{1, 0}, {1, 118}, {1, 238}, {1, 358}, {1, 480}, {1, 602}, {1, 725}, {1, 849},
	{0, 15464}, {0, 15576}, {0, 15689}, {0, 15803}, {0, 15917}, {0, 16032}, {0, 16149}, {0, 16266},
}

// SetSamplingFreq recomputes the finetune speed table and the minimum loop
// length for the given post-downsampling sampling frequency. Must be
// called once, after song.SetDownsamplingFactor, before any Sampler or
// song is constructed.
func SetSamplingFreq(freq uint32) {
	SamplingFreq = freq
	playerSpeedConstant = makeFixpFraction(PaulaClockFreq, freq)

	for i, m := range finetuneMultipliers {
		speedTable[i] = calcSpeed(m[0], m[1])
	}

	minLoopLength = uint16(speedTable[MaxSpeedIndex]/uint32(song.MinPeriod)/16384) + 1
}

// MinLoopLength returns the shortest loop length the mixer can service
// within one interrupt period; shorter loops are played loopless.
func MinLoopLength() uint16 {
	return minLoopLength
}

func calcSpeed(intgr, fract uint16) uint32 {
	// 18.14 x 2.14 / 2^14 = 18.14
	return playerSpeedConstant * makeFixp14(intgr, fract) / 16384
}

func makeFixp14(intgr, fract uint16) uint32 {
	return (uint32(intgr) << 14) | uint32(fract)
}

func makeFixpFraction(numerator, denominator uint32) uint32 {
	return (numerator/denominator)<<14 | (numerator%denominator)<<14/denominator
}

// Sampler owns a phase accumulator over one sample's byte stream and
// produces one signed, volume-scaled audio sample per FetchSample call.
type Sampler struct {
	active   atomic.Bool
	sampling atomic.Bool

	finetune    uint8
	volume      int8
	attenuation uint8

	cachedPeriod   uint16
	cachedFinetune uint8

	loopless bool
	data     []byte
	base     int

	end, loopBegin, loopEnd int64 // fixed-point X.16, relative to base
	phase, phaseIncrement   int64 // fixed-point X.16

	output int16 // last emitted sample, ∈ [-8192; 8128]
}

// SetVolumeAttenuation sets the binary-logarithm right-shift applied to
// every SetVolume call, mirroring config::VOLUME_ATTENNUATION_LOG2.
func (s *Sampler) SetVolumeAttenuation(log2 uint8) {
	s.attenuation = log2
}

// Init resets to inactive. Safe to call before any data is bound.
func (s *Sampler) Init() {
	s.active.Store(false)
	s.sampling.Store(false)
	s.cachedPeriod = 0
	s.cachedFinetune = 0
	s.output = 0
}

// Reset requests bypass and, if a fetch is in progress, spins until it
// completes before re-initializing. Guarantees no future FetchSample call
// dereferences the sample this Sampler was bound to.
func (s *Sampler) Reset() {
	if s.active.Load() {
		s.active.Store(false)
		for s.sampling.Load() {
		}
	}

	s.Init()
}

// Retrig binds sample, sets the initial phase to sample.Begin +
// 256*sampleOffset (saturated at sample.End), computes the phase increment
// for period and the sample's finetune, and marks the Sampler active. A
// nil or empty sample leaves the Sampler inactive.
func (s *Sampler) Retrig(sample *song.Sample, period uint16, sampleOffset uint8, volume int8) {
	s.Reset()
	s.SetVolume(volume)

	if sample == nil || sample.Empty() {
		return
	}

	s.finetune = sample.Finetune
	s.internalSetPeriod(period)

	s.data = sample.Data
	s.base = sample.Begin

	length := int64(sample.End - sample.Begin)
	loopBeginRel := int64(sample.LoopBegin - sample.Begin)
	loopEndRel := int64(sample.LoopEnd - sample.Begin)

	if loopEndRel-loopBeginRel < int64(minLoopLength) {
		s.loopless = true
		loopEndRel = loopBeginRel + 1
	} else {
		s.loopless = false
	}

	phase := int64(0)
	if sampleOffset != 0 {
		phase = int64(sampleOffset) * 256
		if phase > length {
			phase = length
		}
	}

	s.phase = phase << 16
	s.end = length << 16
	s.loopBegin = loopBeginRel << 16
	s.loopEnd = loopEndRel << 16

	s.active.Store(true)
}

// SetVolume updates the playback volume, applying the configured
// attenuation shift.
func (s *Sampler) SetVolume(volume int8) {
	s.volume = volume >> s.attenuation
}

// SetPeriod recomputes the phase increment for period, skipping the
// recalculation if (period, finetune) match the cached values. No-op if
// the Sampler is inactive.
func (s *Sampler) SetPeriod(period uint16) {
	if s.active.Load() {
		s.internalSetPeriod(period)
	}
}

func (s *Sampler) internalSetPeriod(period uint16) {
	if period < song.MinPeriod {
		period = song.MinPeriod
	}
	if period > song.MaxPeriod {
		period = song.MaxPeriod
	}

	if period == s.cachedPeriod && s.finetune == s.cachedFinetune {
		return
	}

	s.cachedPeriod = period
	s.cachedFinetune = s.finetune

	speedConstant := speedTable[s.finetune]
	speed := speedConstant / uint32(period) // fixed-point 2.14
	s.phaseIncrement = int64(speed) << 2    // 2.14 -> 16.16
}

// FetchSample is the hot path: reads one byte from the current phase,
// treats it as signed 8-bit, multiplies by volume, advances phase, and
// wraps into the loop region when the sample end is crossed. No-op if
// inactive.
func (s *Sampler) FetchSample() {
	if !s.active.Load() {
		return
	}

	s.sampling.Store(true)

	value := int8(s.data[s.base+int(s.phase>>16)])
	s.output = int16(value) * int16(s.volume)

	s.phase += s.phaseIncrement

	if s.phase >= s.end {
		if !s.loopless {
			s.phase -= s.end - s.loopBegin
		} else {
			s.phase = s.loopBegin
		}

		s.end = s.loopEnd
	}

	s.sampling.Store(false)
}

// Sample returns the last value emitted by FetchSample, ∈ [-8192; 8128].
func (s *Sampler) Sample() int16 {
	return s.output
}
