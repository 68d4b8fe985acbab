package logger

import "io"

// maxCentral is the number of entries kept by the process-wide log. There is
// no need for more than one central log per process.
const maxCentral = 256

var central = New(maxCentral)

// LogEntry records tag/detail in the central log.
func LogEntry(tag, detail string) {
	central.Log(tag, detail)
}

// Logf records a formatted entry in the central log.
func Logf(tag, format string, args ...interface{}) {
	central.Logf(tag, format, args...)
}

// Clear empties the central log.
func Clear() {
	central.Clear()
}

// Write dumps the central log to w.
func Write(w io.Writer) {
	central.Write(w)
}

// Tail writes the last n entries of the central log to w.
func Tail(w io.Writer, n int) {
	central.Tail(w, n)
}

// SetEcho mirrors every future central log entry to w.
func SetEcho(w io.Writer) {
	central.SetEcho(w)
}
