// Command mod8wav is the host driver spec.md deliberately places outside
// the engine's scope: it reads a .mod file, drives the player in a tight
// loop, and writes the resulting stream to a .wav file.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/out61h/AVRModPlay/events"
	"github.com/out61h/AVRModPlay/logger"
	"github.com/out61h/AVRModPlay/player"
	"github.com/out61h/AVRModPlay/stats"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "mod8wav:", err)
		logger.Tail(os.Stderr, 10)
		os.Exit(1)
	}
}

func run() error {
	mixingFreq := flag.Uint("rate", 48000, "mixing frequency in Hz")
	downsampling := flag.Int("downsample", 1, "mixing downsampling factor (1 or 2)")
	lerp := flag.Bool("lerp", false, "linearly interpolate downsampled output")
	loop := flag.Bool("loop", false, "loop the song indefinitely instead of stopping at song end")
	dashboard := flag.Bool("dashboard", false, "launch a live playback stats dashboard")
	flag.Parse()

	if flag.NArg() != 2 {
		return fmt.Errorf("usage: mod8wav [flags] <input.mod> <output.wav>")
	}

	inPath, outPath := flag.Arg(0), flag.Arg(1)

	data, err := os.ReadFile(inPath)
	if err != nil {
		return err
	}

	progress := newProgress()
	defer progress.close()

	cb := events.Callbacks{
		OnSongLoad: func(s events.SongInfo) {
			progress.setSong(s.Name)
			logger.Logf("mod8wav", "loaded %q (%d patterns, %d orders)", s.Name, s.PatternCount, s.OrderCount)
		},
		OnSongLoadError: func(s events.SongInfo) {
			logger.Logf("mod8wav", "failed to load %q", s.Name)
		},
		OnPlayPattern: func(order, pattern uint8) {
			progress.setPosition(order, 0)
		},
		OnPlayRowBegin: func(row uint8) {
			progress.setRow(row)
		},
		OnMessage: func(msg events.Message, args ...int) {
			logger.Logf("mod8wav", "%s %v", msg, args)
		},
	}

	p := player.New(uint32(*mixingFreq),
		player.WithDownsampling(*downsampling),
		player.WithLinearInterpolation(*lerp),
		player.WithCallbacks(cb),
		player.WithVolumeAttenuation(2),
	)

	if err := p.Load(data); err != nil {
		return err
	}

	if *loop {
		p.SetMode(player.LoopSong)
	}

	if *dashboard {
		d := stats.New(stats.DefaultAddr, stats.DefaultStatsAddr, p.Stats)
		d.Launch(os.Stdout)
	}

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()

	enc := wav.NewEncoder(out, int(*mixingFreq), 16, 2, 1)
	defer enc.Close()

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: int(*mixingFreq)},
		Data:           make([]int, 0, 2*int(*mixingFreq)),
		SourceBitDepth: 16,
	}

	for {
		p.Tick()

		left, right := p.Output()
		buf.Data = append(buf.Data, int(left), int(right))

		if len(buf.Data) >= cap(buf.Data) {
			if err := enc.Write(buf); err != nil {
				return err
			}
			buf.Data = buf.Data[:0]
		}

		result := p.Update()
		if result == player.Inactive {
			break
		}

		progress.setSamples(p.Stats().SampleCount)
	}

	if len(buf.Data) > 0 {
		if err := enc.Write(buf); err != nil {
			return err
		}
	}

	progress.finish()

	return nil
}
