// Package tracelogger is the runtime side of instrumented programs: it receives
// the calls inserted by the planner, decides when logging starts and stops and
// writes the records of the executed instructions to named trace streams
package tracelogger

import (
	"errors"
	"fmt"

	"github.com/Manu343726/lltrace/pkg/trace"
	"github.com/Manu343726/lltrace/pkg/utils"
)

var (
	ErrNestedTopLevel    = errors.New("cannot call a top level function from within another one")
	ErrReturnBeforeEntry = errors.New("returning from within a top level function before it was called")
	ErrTraceOpen         = errors.New("failed to open trace")
)

// Logging status of a trace session
type Status int

const (
	Status_DoNotLog Status = iota
	Status_LogAndContinue
)

func (s Status) String() string {
	switch s {
	case Status_DoNotLog:
		return "DO_NOT_LOG"
	case Status_LogAndContinue:
		return "LOG_AND_CONTINUE"
	}
	return fmt.Sprintf("status#%d", int(s))
}

// Next computes the logging status after an instrumented instruction of function.
//
//	toplevel mode | tracked | return | status
//	      0       |    0    |   -    | DO_NOT_LOG
//	      0       |    1    |   -    | LOG_AND_CONTINUE
//	      1       |    0    |   -    | current
//	      1       |    1    |   0    | LOG_AND_CONTINUE
//	      1       |    1    |   1    | DO_NOT_LOG if function is the current top level
//	                                   function, error otherwise
func Next(toplevelMode, tracked bool, opcode int, function, currentTopLevel string, current Status) (Status, error) {
	if !toplevelMode {
		if tracked {
			return Status_LogAndContinue, nil
		}
		return Status_DoNotLog, nil
	}

	if !tracked {
		return current, nil
	}

	if opcode != trace.ReturnOpcode {
		return Status_LogAndContinue, nil
	}

	if currentTopLevel == "" {
		return current, utils.MakeError(ErrReturnBeforeEntry, "'%v'", function)
	}

	if function == currentTopLevel {
		return Status_DoNotLog, nil
	}

	return current, utils.MakeError(ErrNestedTopLevel, "'%v' returned while '%v' is active", function, currentTopLevel)
}

// FatalError is raised through the fatal hook when the runtime finds an
// internal inconsistency it cannot recover from
type FatalError struct {
	Thread string
	Err    error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%v: %v", e.Thread, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}
