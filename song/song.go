// Package song parses the classic 4-channel Amiga Protracker MOD binary
// layout: a 1084-byte header (title, 31 sample descriptors, order list,
// format tag) followed by pattern data and concatenated sample payloads.
package song

import (
	"encoding/binary"

	"github.com/out61h/AVRModPlay/curated"
	"github.com/out61h/AVRModPlay/events"
	"github.com/out61h/AVRModPlay/logger"
)

// Format constants, ported from the reference's format::* namespace.
const (
	NumOrders      = 128
	NumChannels    = 4
	NumFinetunes   = 16
	NumRows        = 64
	NumSamples     = 31
	MaxVolume      = 64
	MaxFinetune    = 15
	MaxTicksPerRow = 31
	InitialBPM     = 125
	InitialSpeed   = 6
	ArpeggioPeriod = 3

	headerSize       = 20 + NumSamples*sampleHeaderSize + 2 + NumOrders + 4
	sampleHeaderSize = 30
	patternSize      = NumRows * NumChannels * 4
	maxFileSize      = 65535
)

// MinPeriod and MaxPeriod bound every Amiga period this engine will accept.
// MinPeriod scales with the downsampling factor exactly as
// format::MIN_PERIOD does in the reference (28 * DOWNSAMPLING_FACTOR);
// MaxPeriod is the reference's non-Amiga-clamped ceiling (3424), matched
// here since MOD8_OPTION_AMIGA_PERIODS defaults to false.
var (
	MinPeriod uint16 = 28
	MaxPeriod uint16 = 3424
)

// SetDownsamplingFactor recomputes MinPeriod for the given mixing
// downsampling factor (1 or 2). Must be called before Parse.
func SetDownsamplingFactor(factor int) {
	MinPeriod = uint16(28 * factor)
}

// Error patterns recognisable via curated.Is/curated.Has.
const (
	UnsupportedFormatPattern = "mod8: unsupported format tag %q"
	SongTooBigPattern        = "mod8: song size %d exceeds the %d byte limit"
	SampleBoundsPattern      = "mod8: sample %d loop boundary %d exceeds song size"
	LoopTooShortPattern      = "mod8: sample %d loop length %d is below the minimum %d"
)

// Sample is one of up to 31 instrument waveforms. Begin/End/LoopBegin/LoopEnd
// are byte offsets into Data, the raw MOD file this sample was parsed from.
type Sample struct {
	Data                           []byte
	Begin, End, LoopBegin, LoopEnd int
	Finetune                       uint8
	Volume                         int8
	Loopless                       bool
}

// Empty reports whether the sample carries no waveform data.
func (s *Sample) Empty() bool {
	return s.Begin == s.End
}

// Song is a fully parsed MOD file: header fields plus a reference to the
// raw bytes patterns and sample payloads are sliced out of.
type Song struct {
	Data           []byte
	Name           string
	Tag            string
	OrderCount     uint8
	PatternCount   uint8
	Orders         [NumOrders]uint8
	Samples        [NumSamples]Sample
	PatternsOffset int
}

// PatternOffset returns the byte offset of pattern p's 1024-byte block.
func (s *Song) PatternOffset(p uint8) int {
	return s.PatternsOffset + int(p)*patternSize
}

// Parse decodes a raw MOD file. Fatal conditions (unsupported format tag,
// oversized file, sample loop boundaries past the end of the song, a
// nonzero-start loop shorter than minLoopLength) are returned as curated
// errors; out-of-range finetune/volume are clamped and reported through cb
// and the central logger.
func Parse(data []byte, minLoopLength uint16, cb events.Callbacks) (*Song, error) {
	if len(data) < headerSize {
		err := curated.Errorf(curated.Uncategorized, "mod8: song data too short: %d bytes", len(data))
		cb.SongLoadError(events.SongInfo{})
		return nil, err
	}

	s := &Song{Data: data}
	s.Name = trimTrailingZeros(data[0:20])
	s.Tag = string(data[1080:1084])

	if !isSupportedTag(s.Tag) {
		info := events.SongInfo{Name: s.Name, Tag: s.Tag}
		cb.SongLoadError(info)
		cb.Message(events.UnsupportedFormat, int(data[1080]), int(data[1081]), int(data[1082]), int(data[1083]))
		logger.Logf("song", "unsupported format tag %q", s.Tag)
		return nil, curated.Errorf(events.UnsupportedFormat, UnsupportedFormatPattern, s.Tag)
	}

	if len(data) > maxFileSize {
		info := events.SongInfo{Name: s.Name, Tag: s.Tag}
		cb.SongLoadError(info)
		cb.Message(events.SongSizeTooBig, len(data), maxFileSize)
		logger.Logf("song", "song size %d exceeds %d bytes", len(data), maxFileSize)
		return nil, curated.Errorf(events.SongSizeTooBig, SongTooBigPattern, len(data), maxFileSize)
	}

	s.OrderCount = data[950]
	copy(s.Orders[:], data[952:952+NumOrders])

	var patternCount uint8
	for _, idx := range s.Orders {
		if idx > patternCount {
			patternCount = idx
		}
	}
	s.PatternCount = patternCount + 1
	s.PatternsOffset = headerSize

	cb.SongLoad(events.SongInfo{Name: s.Name, Tag: s.Tag, OrderCount: s.OrderCount, PatternCount: s.PatternCount})
	logger.Logf("song", "loaded %q (%d patterns, %d orders)", s.Name, s.PatternCount, s.OrderCount)

	sampleData := s.PatternOffset(s.PatternCount)
	dataEnd := len(data)
	headerOffset := 20

	for i := 0; i < NumSamples; i++ {
		hdr := data[headerOffset : headerOffset+sampleHeaderSize]
		headerOffset += sampleHeaderSize

		length := int(binary.BigEndian.Uint16(hdr[22:24])) * 2
		sampleEnd := sampleData + length

		sample := &s.Samples[i]
		sample.Data = data

		if length > 2 && sampleEnd <= dataEnd {
			sample.Begin = sampleData
			sample.End = sampleEnd

			finetune := hdr[24]
			if finetune > MaxFinetune {
				cb.Message(events.SampleFinetune, i+1, int(finetune))
				logger.Logf("song", "sample %d finetune %d out of range, clamped", i+1, finetune)
			}
			sample.Finetune = clampU8(finetune, 0, MaxFinetune)

			volume := hdr[25]
			if volume > MaxVolume {
				cb.Message(events.SampleVolume, i+1, int(volume))
				logger.Logf("song", "sample %d volume %d out of range, clamped", i+1, volume)
			}
			sample.Volume = int8(clampU8(volume, 0, MaxVolume))

			loopStart := int(binary.BigEndian.Uint16(hdr[26:28])) * 2
			sample.LoopBegin = sample.Begin + loopStart
			if sample.LoopBegin > dataEnd {
				cb.Message(events.SampleBoundaries, i+1, 2)
				return nil, curated.Errorf(events.SampleBoundaries, SampleBoundsPattern, i+1, sample.LoopBegin)
			}

			loopLength := int(binary.BigEndian.Uint16(hdr[28:30])) * 2
			sample.LoopEnd = sample.LoopBegin + loopLength
			if sample.LoopEnd > dataEnd {
				cb.Message(events.SampleBoundaries, i+1, 3)
				return nil, curated.Errorf(events.SampleBoundaries, SampleBoundsPattern, i+1, sample.LoopEnd)
			}

			if loopLength < int(minLoopLength) && loopStart != 0 {
				cb.Message(events.SampleLoopLength, i+1, loopLength, int(minLoopLength))
				return nil, curated.Errorf(events.SampleLoopLength, LoopTooShortPattern, i+1, loopLength, minLoopLength)
			}

			sampleData = sample.End
			cb.SampleLoad(uint8(i+1), events.SampleInfo{
				Number: uint8(i + 1), Length: length,
				Finetune: sample.Finetune, Volume: uint8(sample.Volume),
			})
		} else {
			if length > 2 {
				cb.Message(events.SampleBoundaries, i+1, 1)
			}

			sample.Begin, sample.End = sampleData, sampleData
			sample.LoopBegin, sample.LoopEnd = sampleData, sampleData

			volume := hdr[25]
			if volume > MaxVolume {
				cb.Message(events.SampleVolume, i+1, int(volume))
			}
			sample.Volume = int8(clampU8(volume, 0, MaxVolume))

			if sample.Volume != 0 {
				cb.SampleLoad(uint8(i+1), events.SampleInfo{
					Number: uint8(i + 1), Volume: uint8(sample.Volume), Loopless: true,
				})
			}
		}
	}

	return s, nil
}

func isSupportedTag(tag string) bool {
	switch tag {
	case "M.K.", "4CHN", "FLT4":
		return true
	default:
		return false
	}
}

func trimTrailingZeros(b []byte) string {
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	return string(b[:end])
}

func clampU8(v, lo, hi uint8) uint8 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
