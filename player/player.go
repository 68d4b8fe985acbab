// Package player is the top-level scheduler: it parses a MOD blob, owns
// four Channels and a Timer, walks the order/pattern/row structure,
// decodes cells into Channel calls, and mixes Channel output into a
// stereo bus. Tick runs from the fast mixing context; Update runs
// cooperatively from the slow control context.
package player

import (
	"math"
	"sync/atomic"

	"github.com/out61h/AVRModPlay/channel"
	"github.com/out61h/AVRModPlay/events"
	"github.com/out61h/AVRModPlay/logger"
	"github.com/out61h/AVRModPlay/sampler"
	"github.com/out61h/AVRModPlay/song"
	"github.com/out61h/AVRModPlay/timer"
)

// Mode selects how the scheduler behaves at the end of the order list.
type Mode uint8

const (
	// PlaySongOnce stops after the order list is exhausted once.
	PlaySongOnce Mode = iota
	// LoopSongOnce follows exactly one backward position-jump/loop before stopping.
	LoopSongOnce
	// LoopSong loops the order list indefinitely.
	LoopSong
	// LoopPattern repeats the current pattern indefinitely, ignoring order advance.
	LoopPattern
)

// UpdateResult reports what Update did on this call.
type UpdateResult uint8

const (
	// Inactive: the player is stopped.
	Inactive UpdateResult = iota
	// Idle: the tick timer has not fired since the last Update call.
	Idle
	// Tick: one row-tick (possibly a row advance) was processed.
	Tick
)

// Stats carries playback statistics accumulated since the last Load.
type Stats struct {
	MaxBPM           uint8
	PlaybackDuration uint32
	SampleCount      uint64
}

// Option configures a Player at construction time.
type Option func(*Player)

// WithDownsampling sets the mixing downsampling factor (1 or 2; any other
// value is treated as 1). At factor 2 the Sampler pipeline runs at half
// the mixing frequency and Tick interpolates or repeats every other
// output sample.
func WithDownsampling(factor int) Option {
	return func(p *Player) {
		if factor == 2 {
			p.downsamplingFactor = 2
		} else {
			p.downsamplingFactor = 1
		}
	}
}

// WithLinearInterpolation enables linear interpolation between the
// downsampled mixing points, instead of holding the last value.
func WithLinearInterpolation(enabled bool) Option {
	return func(p *Player) {
		p.linearInterpolation = enabled
	}
}

// WithCallbacks installs the observability callback bundle. The zero
// value is silent.
func WithCallbacks(cb events.Callbacks) Option {
	return func(p *Player) {
		p.cb = cb
	}
}

// WithVolumeAttenuation sets the binary-logarithm right-shift applied to
// every channel's volume.
func WithVolumeAttenuation(log2 uint8) Option {
	return func(p *Player) {
		p.volumeAttenuation = log2
	}
}

type rowAction uint8

const (
	rowActionNone         rowAction = 0
	rowActionJumpToRow    rowAction = 1 << 0
	rowActionJumpToOrder  rowAction = 1 << 1
	rowActionPatternBreak rowAction = 1 << 2
	rowActionStop         rowAction = 1 << 3
)

// Player is the engine's top-level scheduler and mixer.
type Player struct {
	cb events.Callbacks

	downsamplingFactor  int
	linearInterpolation bool
	volumeAttenuation   uint8

	song *song.Song

	channels [song.NumChannels]channel.Channel
	rowTimer timer.Timer

	order          uint8
	row            uint8
	currentPattern uint8
	ticksPerRow    uint8
	tick           uint8
	rowDelay       uint8
	mode           Mode
	hasLoopedOnce  bool

	patternLoopStart     [song.NumChannels]uint8
	patternLoopRemaining [song.NumChannels]uint8

	rowActions       rowAction
	pendingJumpRow   uint8
	pendingJumpOrder uint8
	pendingBreakRow  uint8

	playing atomic.Bool

	outputLeft  atomic.Int32
	outputRight atomic.Int32

	downsampleCounter           uint32
	lastLeft, lastRight         int32
	lerpFromLeft, lerpFromRight int32
	lerpToLeft, lerpToRight     int32

	stats Stats
}

// New constructs a Player and seeds the package-level sampler tables for
// mixingFreq (the caller's chosen host tick rate; if downsampling is
// enabled, the Sampler pipeline itself runs at mixingFreq/factor).
func New(mixingFreq uint32, opts ...Option) *Player {
	p := &Player{
		mode:               PlaySongOnce,
		downsamplingFactor: 1,
	}

	for _, opt := range opts {
		opt(p)
	}

	song.SetDownsamplingFactor(p.downsamplingFactor)
	sampler.SetSamplingFreq(mixingFreq / uint32(p.downsamplingFactor))

	for i := range p.channels {
		p.channels[i].SetVolumeAttenuation(p.volumeAttenuation)
		p.channels[i].Init()
	}

	return p
}

// Load parses data as a MOD file and resets the scheduler to order 0, row
// 0. Returns a curated error (see song.Parse) on any fatal load condition.
func (p *Player) Load(data []byte) error {
	for i := range p.channels {
		p.channels[i].Reset()
	}
	p.resetPatternLoops()

	s, err := song.Parse(data, sampler.MinLoopLength(), p.cb)
	if err != nil {
		return err
	}

	p.song = s
	p.order = 0
	p.row = 0
	p.ticksPerRow = song.InitialSpeed
	p.tick = 0
	p.rowDelay = 0
	p.mode = PlaySongOnce
	p.hasLoopedOnce = false
	p.rowActions = rowActionNone
	p.stats = Stats{}

	p.rowTimer.Reset(uint16(sampler.SamplingFreq / 50))

	p.fetchPattern(p.order)
	p.fetchRow()

	p.playing.Store(true)

	logger.Logf("player", "playing %q at order 0", s.Name)

	return nil
}

// Stop deactivates every channel via the Sampler reset protocol and marks
// the player inactive.
func (p *Player) Stop() {
	p.playing.Store(false)

	for i := range p.channels {
		p.channels[i].Reset()
	}

	var info events.SongInfo
	if p.song != nil {
		info = events.SongInfo{
			Name: p.song.Name, Tag: p.song.Tag,
			OrderCount: p.song.OrderCount, PatternCount: p.song.PatternCount,
		}
	}
	p.cb.PlaySongEnd(info)

	logger.Logf("player", "stopped")
}

// SetMode changes end-of-order-list behaviour.
func (p *Player) SetMode(mode Mode) {
	p.mode = mode
}

// Stats returns a snapshot of the playback statistics accumulated since
// the last Load.
func (p *Player) Stats() Stats {
	return p.stats
}

// Output returns the last stereo sample pair produced by Tick.
func (p *Player) Output() (left, right int16) {
	return int16(p.outputLeft.Load()), int16(p.outputRight.Load())
}

// Tick is the mixing context's hot path: called once per output sample.
// No blocking, no allocation. The channel sum is doubled to full output
// gain, except while linearly interpolating between downsampled mix
// points, where the un-doubled slope matches the reference mixer's
// convergence toward the next fetched sample.
func (p *Player) Tick() {
	if !p.playing.Load() {
		return
	}

	if p.downsamplingFactor <= 1 {
		left, right := p.fetchAll()
		p.setOutput(left*2, right*2)
	} else {
		p.tickDownsampled()
	}

	p.rowTimer.Clock()
	if p.stats.SampleCount != math.MaxUint64 {
		p.stats.SampleCount++
	}
}

func (p *Player) fetchAll() (left, right int32) {
	for i := range p.channels {
		p.channels[i].FetchSample()
	}

	left = int32(p.channels[0].Sample()) + int32(p.channels[3].Sample())
	right = int32(p.channels[1].Sample()) + int32(p.channels[2].Sample())

	return left, right
}

func (p *Player) tickDownsampled() {
	if p.downsampleCounter == 0 {
		left, right := p.fetchAll()

		if p.linearInterpolation {
			p.lerpFromLeft, p.lerpFromRight = p.lastLeft, p.lastRight
			p.lerpToLeft, p.lerpToRight = left, right
		} else {
			p.setOutput(left*2, right*2)
			p.lastLeft, p.lastRight = left, right
		}
	}

	if p.linearInterpolation {
		t := int32(p.downsampleCounter)
		n := int32(p.downsamplingFactor)

		// Un-doubled: this slides toward the raw mix sum, not the final
		// output gain, matching the reference mixer's m_output.
		left := p.lerpFromLeft + (p.lerpToLeft-p.lerpFromLeft)*t/n
		right := p.lerpFromRight + (p.lerpToRight-p.lerpFromRight)*t/n
		p.setOutput(left, right)

		if t == n-1 {
			p.lastLeft, p.lastRight = p.lerpToLeft, p.lerpToRight
		}
	} else {
		p.setOutput(p.lastLeft*2, p.lastRight*2)
	}

	p.downsampleCounter++
	if p.downsampleCounter >= uint32(p.downsamplingFactor) {
		p.downsampleCounter = 0
	}
}

// setOutput clamps left/right to int16 range and publishes them for Output.
// Callers apply their own gain beforehand; see Tick's doc comment for why
// the LERP path in tickDownsampled deliberately does not.
func (p *Player) setOutput(left, right int32) {
	p.outputLeft.Store(clampInt16(left))
	p.outputRight.Store(clampInt16(right))
}

func clampInt16(v int32) int32 {
	switch {
	case v > 32767:
		return 32767
	case v < -32768:
		return -32768
	default:
		return v
	}
}

// Update is the control context's cooperative entry point: it should be
// called at least once per configured tick period.
func (p *Player) Update() UpdateResult {
	if !p.playing.Load() {
		return Inactive
	}

	if !p.rowTimer.IsFired() {
		return Idle
	}

	p.stats.PlaybackDuration += uint32(p.rowTimer.Period()) * uint32(p.downsamplingFactor)

	p.tick++
	if p.tick >= p.ticksPerRow {
		p.tick = 0

		if p.rowDelay > 0 {
			p.rowDelay--
		} else if !p.internalFetchNextRow() {
			p.Stop()
			return Tick
		}
	}

	for i := range p.channels {
		p.channels[i].Tick()
	}

	return Tick
}

func (p *Player) resetPatternLoops() {
	for i := range p.patternLoopStart {
		p.patternLoopStart[i] = 0
		p.patternLoopRemaining[i] = 0
	}
}

func (p *Player) rowAfterBreak() (uint8, bool) {
	if p.rowActions&rowActionPatternBreak != 0 {
		if p.pendingBreakRow >= song.NumRows {
			return 0, false
		}
		return p.pendingBreakRow, true
	}
	return 0, true
}

func (p *Player) internalFetchNextRow() bool {
	if p.rowActions&rowActionStop != 0 {
		return false
	}

	if p.rowActions&rowActionJumpToRow != 0 {
		p.row = p.pendingJumpRow
		p.rowActions = rowActionNone
		p.fetchRow()
		return true
	}

	p.row++

	if p.row != song.NumRows && p.rowActions&(rowActionJumpToOrder|rowActionPatternBreak) == 0 {
		p.rowActions = rowActionNone
		p.fetchRow()
		return true
	}

	if p.mode == LoopPattern {
		row, ok := p.rowAfterBreak()
		if !ok {
			return false
		}

		p.row = row
		p.rowActions = rowActionNone
		p.fetchRow()
		return true
	}

	if p.rowActions&rowActionJumpToOrder != 0 {
		if p.pendingJumpOrder >= p.song.OrderCount {
			return false
		}

		if p.pendingJumpOrder <= p.order {
			switch p.mode {
			case PlaySongOnce:
				return false
			case LoopSongOnce:
				if p.hasLoopedOnce {
					return false
				}
				p.hasLoopedOnce = true
			}
		}

		p.order = p.pendingJumpOrder
	} else {
		p.order++
		if p.order == p.song.OrderCount {
			p.order = 0
			if p.mode != LoopSong {
				return false
			}
		}
	}

	p.resetPatternLoops()

	row, ok := p.rowAfterBreak()
	if !ok {
		return false
	}
	p.row = row

	p.fetchPattern(p.order)
	p.rowActions = rowActionNone
	p.fetchRow()

	return true
}

func (p *Player) fetchPattern(order uint8) {
	pattern := p.song.Orders[order]

	if pattern >= p.song.PatternCount {
		p.cb.Message(events.Pattern, int(order), int(pattern))
		pattern = 0
	}

	p.currentPattern = pattern
	p.cb.PlayPattern(order, pattern)
}

func (p *Player) fetchRow() {
	p.cb.PlayRowBegin(p.row)

	base := p.song.PatternOffset(p.currentPattern) + int(p.row)*song.NumChannels*4

	for ch := range p.channels {
		cell := p.song.Data[base+ch*4 : base+ch*4+4]

		sampleNo := (cell[0] & 0xF0) | (cell[2] >> 4)
		period := uint16(cell[0]&0x0F)<<8 | uint16(cell[1])
		effect := cell[2] & 0x0F
		param := cell[3]

		c := &p.channels[ch]
		c.ResetRow()

		var sample *song.Sample
		if sampleNo != 0 {
			if int(sampleNo) > song.NumSamples {
				p.cb.Message(events.SampleNumber, ch, int(sampleNo))
			} else {
				sample = &p.song.Samples[sampleNo-1]
			}
		}
		c.SetSample(sample)

		if period != 0 && (period < song.MinPeriod || period > song.MaxPeriod) {
			p.cb.Message(events.Period, ch, int(period))
		}
		c.SetPeriod(period)

		p.cb.PlayNote(uint8(ch), period, sampleNo, effect, param)

		p.dispatchEffect(ch, effect, param)
	}

	p.cb.PlayRowEnd()
}

func (p *Player) dispatchEffect(ch int, effect, param uint8) {
	c := &p.channels[ch]

	switch effect {
	case 0x0:
		if param != 0 {
			c.UseArpeggio(param>>4, param&0x0F)
		}
	case 0x1:
		c.UsePeriodDec(param)
	case 0x2:
		c.UsePeriodInc(param)
	case 0x3:
		c.UsePeriodPortamento(param)
	case 0x4:
		c.UsePeriodVibrato(param>>4, param&0x0F)
	case 0x5:
		c.UsePeriodPortamento(0)
		p.dispatchVolumeSlide(ch, param)
	case 0x6:
		c.UsePeriodVibrato(0, 0)
		p.dispatchVolumeSlide(ch, param)
	case 0x7:
		c.UseVolumeTremolo(param>>4, param&0x0F)
	case 0x8:
		p.cb.Message(events.UnsupportedEffect, ch, int(effect), int(param))
	case 0x9:
		c.SetSampleOffset(param)
	case 0xA:
		p.dispatchVolumeSlide(ch, param)
	case 0xB:
		if param >= p.song.OrderCount {
			p.cb.Message(events.EffectParam, ch, int(effect), int(param))
		}
		p.rowActions |= rowActionJumpToOrder
		p.pendingJumpOrder = param
	case 0xC:
		c.SetVolume(param)
	case 0xD:
		pos := (param>>4)*10 + param&0x0F
		if pos >= song.NumRows {
			p.cb.Message(events.EffectParam, ch, int(effect), int(param))
		}
		p.rowActions |= rowActionPatternBreak
		p.pendingBreakRow = pos
	case 0xE:
		p.dispatchSubEffect(ch, param)
	case 0xF:
		p.dispatchSpeed(ch, param)
	}
}

func (p *Player) dispatchVolumeSlide(ch int, param uint8) {
	up := param >> 4
	down := param & 0x0F

	c := &p.channels[ch]

	switch {
	case up != 0:
		c.UseVolumeInc(up)
	case down != 0:
		c.UseVolumeDec(down)
	}
}

func (p *Player) dispatchSubEffect(ch int, param uint8) {
	sub := param >> 4
	x := param & 0x0F

	c := &p.channels[ch]

	switch sub {
	case 0x1:
		c.DecPeriod(x)
	case 0x2:
		c.IncPeriod(x)
	case 0x6:
		p.patternLoop(ch, x)
	case 0x9:
		c.UseNoteRepeat(x)
	case 0xA:
		c.IncVolume(x)
	case 0xB:
		c.DecVolume(x)
	case 0xC:
		c.UseNoteCut(x)
	case 0xD:
		c.UseNoteDelay(x)
	case 0xE:
		p.rowDelay = x
	default:
		p.cb.Message(events.UnsupportedEffect, ch, 0xE, int(param))
	}
}

func (p *Player) patternLoop(ch int, param uint8) {
	if param == 0 {
		p.patternLoopStart[ch] = p.row
		return
	}

	if p.patternLoopRemaining[ch] == 0 {
		p.patternLoopRemaining[ch] = param
		p.rowActions |= rowActionJumpToRow
		p.pendingJumpRow = p.patternLoopStart[ch]
		return
	}

	p.patternLoopRemaining[ch]--
	if p.patternLoopRemaining[ch] != 0 {
		p.rowActions |= rowActionJumpToRow
		p.pendingJumpRow = p.patternLoopStart[ch]
	}
}

func (p *Player) dispatchSpeed(ch int, param uint8) {
	if param <= song.MaxTicksPerRow {
		if param == 0 {
			return
		}
		p.ticksPerRow = param
		return
	}

	p.rowTimer.SetPeriod(uint16(uint32(sampler.SamplingFreq) * 5 / (2 * uint32(param))))

	if param > p.stats.MaxBPM {
		p.stats.MaxBPM = param
	}
}
