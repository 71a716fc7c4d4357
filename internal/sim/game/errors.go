package game

import "fmt"

// CommandError is a recoverable failure of one unit's current command. The
// dispatcher clears the command and the unit moves on; anything else returned
// from a handler aborts the tick.
type CommandError struct {
	Code string
	Msg  string
}

func (e *CommandError) Error() string {
	return e.Code + ": " + e.Msg
}

func cmdErr(code, format string, args ...any) error {
	return &CommandError{Code: code, Msg: fmt.Sprintf(format, args...)}
}
