package logger_test

import (
	"strings"
	"testing"

	"github.com/out61h/AVRModPlay/logger"
)

func TestLogCollapsesRepeats(t *testing.T) {
	l := logger.New(100)
	w := &strings.Builder{}

	l.Write(w)
	if w.String() != "" {
		t.Fatalf("expected empty log, got %q", w.String())
	}

	l.Log("song", "loaded")
	l.Log("song", "loaded")
	w.Reset()
	l.Write(w)

	want := "song: loaded (repeat x2)\n"
	if w.String() != want {
		t.Fatalf("got %q, want %q", w.String(), want)
	}
}

func TestLogTailBounds(t *testing.T) {
	l := logger.New(100)
	for i := 0; i < 5; i++ {
		l.Logf("tag", "entry %d", i)
	}

	w := &strings.Builder{}
	l.Tail(w, 2)
	want := "tag: entry 3\ntag: entry 4\n"
	if w.String() != want {
		t.Fatalf("got %q, want %q", w.String(), want)
	}

	w.Reset()
	l.Tail(w, 100)
	if strings.Count(w.String(), "\n") != 5 {
		t.Fatalf("asking for more than available should be clamped: %q", w.String())
	}
}

func TestLogMaxEntries(t *testing.T) {
	l := logger.New(3)
	for i := 0; i < 10; i++ {
		l.Logf("tag", "entry %d", i)
	}

	w := &strings.Builder{}
	l.Write(w)
	want := "tag: entry 7\ntag: entry 8\ntag: entry 9\n"
	if w.String() != want {
		t.Fatalf("got %q, want %q", w.String(), want)
	}
}
