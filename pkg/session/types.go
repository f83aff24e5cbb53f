package session

import (
	"context"
	"io"
	"time"
)

// Status is the lifecycle state of a Session
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusReady
	StatusBusy
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusReady:
		return "ready"
	case StatusBusy:
		return "busy"
	case StatusClosed:
		return "closed"
	}
	return "unknown"
}

// Channel is the raw interactive shell transport a Session owns: a
// local pseudo-terminal or a remote SSH shell. Exactly one Session
// reads from and writes to a Channel.
type Channel interface {
	io.ReadWriteCloser
	// Target names the endpoint the channel talks to (local, or
	// user@host:port)
	Target() string
	// Resize propagates a terminal geometry change where supported
	Resize(cols, rows uint32) error
}

// ChannelFactory dials the underlying transport. Sessions call it on
// Connect so tests can hand in scripted fakes.
type ChannelFactory func(ctx context.Context) (Channel, error)

// CommandRequest describes one logical command execution. Created per
// Execute call, consumed once its result resolves.
type CommandRequest struct {
	// Command is the shell command text
	Command string
	// Dir, when set, runs the command from this working directory
	Dir string
	// Env overrides are exported inside a subshell so they never
	// leak into the session shell
	Env map[string]string
	// Timeout bounds the wait for the framed exit marker
	Timeout time.Duration
	// Quick selects the read-only path: shorter default timeout and
	// no credential watching. Meant for listings and metadata reads
	// that can never prompt once the channel is up.
	Quick bool

	done chan execOutcome
}

type execOutcome struct {
	result *CommandResult
	err    error
}

// CommandResult is the immutable outcome of one command execution.
// Non-zero exit codes and timeouts are data, not errors.
type CommandResult struct {
	// Output is the sanitized combined stdout+stderr text
	Output string
	// ExitCode is nil when unknown, i.e. the run timed out
	ExitCode *int
	// Elapsed is the wall time between dispatch and resolution
	Elapsed time.Duration
	// TimedOut marks a result resolved by deadline instead of the
	// exit marker
	TimedOut bool
}

// Failed reports whether the command is known to have exited non-zero
func (r *CommandResult) Failed() bool {
	return r.ExitCode != nil && *r.ExitCode != 0
}
