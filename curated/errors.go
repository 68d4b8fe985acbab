// Package curated implements a small wrapped-error idiom for this engine's
// load-time failures: each error carries an events.Message classification
// alongside a format pattern, so callers can recognise what went wrong
// either structurally (Code) or by pattern (Is/Has) without string-matching
// the formatted message.
package curated

import (
	"fmt"
	"strings"

	"github.com/out61h/AVRModPlay/events"
)

// Uncategorized marks a curated error that predates events.Message
// classification (malformed input rejected before a Song exists to attach a
// channel/sample number to).
const Uncategorized events.Message = 0

type curated struct {
	code    events.Message
	pattern string
	values  []interface{}
}

// Errorf creates a new curated error classified under code. Unlike
// fmt.Errorf the pattern is kept around unformatted so Is/Has can recognise
// it later.
func Errorf(code events.Message, pattern string, values ...interface{}) error {
	return curated{code: code, pattern: pattern, values: values}
}

// Error returns the formatted message, with a duplicated leading
// "part: part" segment pair collapsed into one. Only the first two
// segments are compared; later repeats are left as they are.
func (e curated) Error() string {
	s := fmt.Errorf(e.pattern, e.values...).Error()

	parts := strings.SplitN(s, ": ", 3)
	if len(parts) > 1 && parts[0] == parts[1] {
		return strings.Join(parts[1:], ": ")
	}
	return strings.Join(parts, ": ")
}

// Code reports the events.Message classification carried by err, along with
// whether err is a curated error at all.
func Code(err error) (events.Message, bool) {
	e, ok := err.(curated)
	if !ok {
		return 0, false
	}
	return e.code, true
}

// IsAny reports whether err was created by Errorf.
func IsAny(err error) bool {
	if err == nil {
		return false
	}
	_, ok := err.(curated)
	return ok
}

// Is reports whether err was created by Errorf with the given pattern.
func Is(err error, pattern string) bool {
	if err == nil {
		return false
	}
	e, ok := err.(curated)
	return ok && e.pattern == pattern
}

// Has reports whether err, or any curated error wrapped in its values, was
// created with the given pattern.
func Has(err error, pattern string) bool {
	if err == nil || !IsAny(err) {
		return false
	}
	if Is(err, pattern) {
		return true
	}
	for _, v := range err.(curated).values {
		if wrapped, ok := v.(curated); ok && Has(wrapped, pattern) {
			return true
		}
	}
	return false
}
