// Package errors provides the fatal-error facility used during image scanning.
package errors

import (
	"os"

	"github.com/rs/zerolog"
)

// AbortFunc reports an unrecoverable runtime state and does not return.
// flags is passed through to the diagnostic unchanged.
type AbortFunc func(flags uint32, msg string)

// exit is replaced in tests.
var exit = os.Exit

// LoggerAbort returns an AbortFunc that writes a fatal-level event to logger
// and terminates the process with status 1.
func LoggerAbort(logger zerolog.Logger) AbortFunc {
	return func(flags uint32, msg string) {
		logger.WithLevel(zerolog.FatalLevel).
			Uint32("flags", flags).
			Msg(msg)
		exit(1)
	}
}

// Aborted is the panic value raised by PanicAbort.
type Aborted struct {
	Flags   uint32
	Message string
}

func (a Aborted) Error() string {
	return a.Message
}

// PanicAbort panics with an Aborted value instead of exiting, so that an
// embedding program can recover and report the failure itself.
func PanicAbort(flags uint32, msg string) {
	panic(Aborted{Flags: flags, Message: msg})
}
