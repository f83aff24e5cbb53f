// Package verrors defines the error taxonomy shared by the session
// engine and the layers built on top of it. Command-level failures
// (non-zero exit, timeout) travel inside results as values; these types
// cover the failures that are returned as errors.
package verrors

import (
	"fmt"
	"strings"
	"time"
)

// ConnectionError covers a channel that never reached a usable state or
// died underneath the session. Every queued request fails with one.
type ConnectionError struct {
	Target string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s lost - %v", e.Target, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// TimeoutError marks a deadline hit while establishing or tearing down
// a channel. Command execution timeouts are NOT errors, they resolve as
// results with the TimedOut flag set.
type TimeoutError struct {
	Target string
	Op     string
	After  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s on %s timed out after %s", e.Op, e.Target, e.After)
}

// AuthenticationError distinguishes credential problems from generic
// command failures so callers can re-prompt instead of showing raw
// shell noise.
type AuthenticationError struct {
	Target string
	Reason string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication against %s failed: %s", e.Target, e.Reason)
}

// OperationError is the typed failure of one file operation. Message
// holds the raw remote output so nothing is lost for diagnosis.
type OperationError struct {
	Op      string
	Paths   []string
	Message string
}

func (e *OperationError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = "no output"
	}
	return fmt.Sprintf("%s %s failed: %s", e.Op, strings.Join(e.Paths, " -> "), msg)
}

// ParseError signals structured listing output that produced no
// entries. The listing layer converts it into an empty result; it is
// exported for callers that need the distinction. Lines holds the
// raw rejected lines so nothing is lost for diagnosis.
type ParseError struct {
	Dialect string
	Lines   []string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("no entries parsed from %d %s line(s)", len(e.Lines), e.Dialect)
}
