package curated_test

import (
	"errors"
	"testing"

	"github.com/out61h/AVRModPlay/curated"
	"github.com/out61h/AVRModPlay/events"
)

const patternA = "load failed: %v"
const patternB = "unsupported format: %q"

func TestIsRecognisesPattern(t *testing.T) {
	err := curated.Errorf(events.UnsupportedFormat, patternB, "XYZ!")
	if !curated.Is(err, patternB) {
		t.Fatalf("expected Is to recognise the pattern used to build the error")
	}
	if curated.Is(err, patternA) {
		t.Fatalf("Is should not match an unrelated pattern")
	}
}

func TestHasFindsWrappedPattern(t *testing.T) {
	inner := curated.Errorf(events.UnsupportedFormat, patternB, "XYZ!")
	outer := curated.Errorf(curated.Uncategorized, patternA, inner)

	if curated.Is(outer, patternB) {
		t.Fatalf("Is should not match through a wrapped error")
	}
	if !curated.Has(outer, patternB) {
		t.Fatalf("Has should find the pattern in the wrapped error")
	}
}

func TestErrorDeduplicatesAdjacentParts(t *testing.T) {
	err := curated.Errorf(curated.Uncategorized, "mod8: %v",
		curated.Errorf(curated.Uncategorized, "mod8: bad tag"))
	want := "mod8: bad tag"
	if err.Error() != want {
		t.Fatalf("got %q, want %q", err.Error(), want)
	}
}

func TestIsAnyRejectsPlainErrors(t *testing.T) {
	if curated.IsAny(nil) {
		t.Fatalf("nil is not a curated error")
	}
	if curated.IsAny(errors.New("plain")) {
		t.Fatalf("a plain error is not a curated error")
	}
}

func TestCodeReportsClassification(t *testing.T) {
	err := curated.Errorf(events.SampleLoopLength, "mod8: sample %d loop length %d is below the minimum %d", 3, 10, 64)

	code, ok := curated.Code(err)
	if !ok {
		t.Fatalf("expected Code to recognise a curated error")
	}
	if code != events.SampleLoopLength {
		t.Fatalf("got code %v, want %v", code, events.SampleLoopLength)
	}

	if _, ok := curated.Code(nil); ok {
		t.Fatalf("Code should not recognise nil")
	}
	if _, ok := curated.Code(errors.New("plain")); ok {
		t.Fatalf("Code should not recognise a plain error")
	}
}
