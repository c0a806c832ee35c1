package log

import (
	"fmt"
)

const (
	// LogFormatPlain defines a logging format used for human-readable,
	// plain-text output.
	LogFormatPlain string = "plain"

	// LogFormatJSON defines a logging format for structured JSON output.
	LogFormatJSON string = "json"

	// Supported logging levels.
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Logger defines a generic logging interface compatible with structured,
// leveled logging. Every arvo component takes a Logger in its constructor
// rather than logging through a package global.
type Logger interface {
	Debug(msg string, keyVals ...interface{})
	Info(msg string, keyVals ...interface{})
	Error(msg string, keyVals ...interface{})

	With(keyVals ...interface{}) Logger
}

// Hexadecimal wraps a []byte so the fmt package renders it as uppercase
// hexadecimal.
type Hexadecimal struct {
	b []byte
}

func Hex(b []byte) Hexadecimal { return Hexadecimal{b: b} }

// String fulfills the fmt.Stringer interface.
func (h Hexadecimal) String() string {
	return fmt.Sprintf("%X", h.b)
}
