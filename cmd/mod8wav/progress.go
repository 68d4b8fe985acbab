package main

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/term"
)

// progress echoes coarse playback position (song title, order/row, elapsed
// samples) to the controlling terminal, redrawing a single line. Falls
// back to plain stdout when no controlling terminal is available.
type progress struct {
	out   io.Writer
	tty   *term.Term
	name  string
	order uint8
	row   uint8
}

func newProgress() *progress {
	p := &progress{out: os.Stdout}

	tty, err := term.Open("/dev/tty")
	if err == nil {
		p.tty = tty
		p.out = tty
	}

	return p
}

func (p *progress) setSong(name string) {
	p.name = name
}

func (p *progress) setPosition(order, row uint8) {
	p.order = order
	p.row = row
}

func (p *progress) setRow(row uint8) {
	p.row = row
}

func (p *progress) setSamples(count uint64) {
	fmt.Fprintf(p.out, "\r%-32s order %3d row %3d  %10d samples", p.name, p.order, p.row, count)
}

func (p *progress) finish() {
	fmt.Fprintln(p.out)
}

func (p *progress) close() {
	if p.tty == nil {
		return
	}
	p.tty.Restore()
	p.tty.Close()
}
