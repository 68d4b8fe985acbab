// Package logger implements a small, bounded, in-process log used by the
// engine to record soft warnings and lifecycle events even when no
// observability callback is listening.
package logger

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// Entry is a single line in the log.
type Entry struct {
	Timestamp time.Time
	Tag       string
	Detail    string
	repeated  int
}

func (e *Entry) String() string {
	s := strings.Builder{}
	s.WriteString(fmt.Sprintf("%s: %s", e.Tag, e.Detail))
	if e.repeated > 0 {
		s.WriteString(fmt.Sprintf(" (repeat x%d)", e.repeated+1))
	}
	s.WriteString("\n")
	return s.String()
}

// Log is a bounded ring of Entry values with repeat-collapsing: logging the
// same tag/detail pair twice in a row bumps a counter instead of growing the
// buffer.
type Log struct {
	maxEntries int
	entries    []Entry
	echo       io.Writer
}

// New creates a Log holding at most maxEntries.
func New(maxEntries int) *Log {
	return &Log{
		maxEntries: maxEntries,
		entries:    make([]Entry, 0, maxEntries),
	}
}

// SetEcho makes every future entry also get written to w as it is logged.
// Pass nil to disable.
func (l *Log) SetEcho(w io.Writer) {
	l.echo = w
}

// Log records tag/detail, collapsing into the previous entry if identical.
func (l *Log) Log(tag, detail string) {
	if n := len(l.entries); n > 0 {
		last := &l.entries[n-1]
		if last.Tag == tag && last.Detail == detail {
			last.repeated++
			last.Timestamp = time.Now()
			if l.echo != nil {
				io.WriteString(l.echo, last.String())
			}
			return
		}
	}

	e := Entry{Timestamp: time.Now(), Tag: tag, Detail: detail}
	l.entries = append(l.entries, e)

	if len(l.entries) > l.maxEntries {
		l.entries = l.entries[len(l.entries)-l.maxEntries:]
	}

	if l.echo != nil {
		io.WriteString(l.echo, l.entries[len(l.entries)-1].String())
	}
}

// Logf records a formatted entry.
func (l *Log) Logf(tag, format string, args ...interface{}) {
	l.Log(tag, fmt.Sprintf(format, args...))
}

// Clear removes all entries.
func (l *Log) Clear() {
	l.entries = l.entries[:0]
}

// Write dumps every entry to w.
func (l *Log) Write(w io.Writer) {
	for i := range l.entries {
		io.WriteString(w, l.entries[i].String())
	}
}

// Tail writes at most the last n entries to w.
func (l *Log) Tail(w io.Writer, n int) {
	if n > len(l.entries) {
		n = len(l.entries)
	}
	for _, e := range l.entries[len(l.entries)-n:] {
		io.WriteString(w, e.String())
	}
}
