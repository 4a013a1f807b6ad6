package agent

import (
	"errors"
	"fmt"
	"strings"
)

// ErrStopped is the cooperative-cancellation signal. It is control flow, not
// a failure: the loop converts it to a stop entry and returns a PAUSED
// result, and no generic error-handling branch may match it.
var ErrStopped = errors.New("agent: stopped")

// MissingDelimiterError reports model output with no action delimiter, and
// also covers payloads that had the delimiter but no decodable action
// (Reason distinguishes the cases).
type MissingDelimiterError struct {
	Delimiter string
	Reason    string
}

func (e *MissingDelimiterError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid action format: %s", e.Reason)
	}
	return fmt.Sprintf("invalid action format: delimiter %q not found in model output", e.Delimiter)
}

func (e *MissingDelimiterError) formatError() {}

// MultipleActionsError reports more than one action delimiter in a single
// model output. The extractor never silently picks one.
type MultipleActionsError struct {
	Delimiter string
	Count     int
}

func (e *MultipleActionsError) Error() string {
	return fmt.Sprintf("invalid action format: delimiter %q appears %d times, expected exactly one", e.Delimiter, e.Count)
}

func (e *MultipleActionsError) formatError() {}

// IsFormatError reports whether err belongs to the format-error category
// that counts against the loop's retry budget.
func IsFormatError(err error) bool {
	var marker interface{ formatError() }
	return errors.As(err, &marker)
}

// ToolUnavailableError reports a tool name the registry does not know.
type ToolUnavailableError struct {
	Name      string
	Available []string
}

func (e *ToolUnavailableError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("tool %q unavailable: no tools registered", e.Name)
	}
	return fmt.Sprintf("tool %q unavailable; registered tools: %s", e.Name, strings.Join(e.Available, ", "))
}

// ToolExecutionError wraps a failing tool invocation, carrying the tool's
// description so the model can diagnose a misuse.
type ToolExecutionError struct {
	Name        string
	Description string
	Err         error
}

func (e *ToolExecutionError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("tool %q failed: %v (tool description: %s)", e.Name, e.Err, e.Description)
	}
	return fmt.Sprintf("tool %q failed: %v", e.Name, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// MaxIterationsError signals that the iteration budget ran out. It is a
// graceful-termination signal, not a crash: the run ends TERMINATED.
type MaxIterationsError struct {
	Limit int
}

func (e *MaxIterationsError) Error() string {
	return fmt.Sprintf("max iterations reached (%d)", e.Limit)
}

// UnhandledError wraps anything that escapes a step unrecognized; the loop
// logs it and continues.
type UnhandledError struct {
	Stage string
	Err   error
}

func (e *UnhandledError) Error() string {
	return fmt.Sprintf("unhandled error in %s: %v", e.Stage, e.Err)
}

func (e *UnhandledError) Unwrap() error { return e.Err }
