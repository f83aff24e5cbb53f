// Package session turns one long-lived interactive shell channel into
// a concurrency-safe command/response engine. Each Session owns
// exactly one Channel, serializes command executions through a FIFO
// queue, frames them with sentinel delimiters, and answers
// authentication prompts through the credential injector.
package session

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"velo/pkg/conf"
	"velo/pkg/creds"
	"velo/pkg/sanitize"
	"velo/pkg/verrors"
	"velo/pkg/vlog"

	"github.com/google/uuid"
)

// queueCapacity bounds how many requests may wait per session before
// Execute callers block
const queueCapacity = 64

// Config wires a Session's collaborators. Factory is the only
// required field besides Target; the rest default sensibly.
type Config struct {
	Target  string
	Factory ChannelFactory
	Logger  *vlog.Logger
	// Secrets resolves the credential for in-shell auth prompts.
	// Nil disables injection entirely.
	Secrets creds.SecretFunc
	// Sanitizer overrides the stock output sanitizer
	Sanitizer *sanitize.Sanitizer
	// DefaultTimeout applies to requests without one
	DefaultTimeout time.Duration
	// QuickTimeout applies to Quick requests without one
	QuickTimeout time.Duration
}

type Session struct {
	// ========================================
	// Core Identity
	// ========================================
	id        string
	target    string
	logger    *vlog.Logger
	sanitizer *sanitize.Sanitizer
	injector  *creds.Injector
	factory   ChannelFactory

	// ========================================
	// Channel Ownership
	// ========================================
	channel Channel

	// ========================================
	// Lifecycle State
	// ========================================
	status    Status
	statusMu  sync.Mutex
	connErr   error
	closedCh  chan struct{} // closed exactly once on teardown
	closeOnce sync.Once

	// ========================================
	// Command Queue
	// ========================================
	requests chan *CommandRequest
	chunks   chan []byte
	wg       sync.WaitGroup

	// ========================================
	// Attach Tap
	// ========================================
	tapMu sync.Mutex
	tap   io.Writer

	// ========================================
	// Accounting
	// ========================================
	createdAt  time.Time
	lastActive time.Time
	cmdCount   int64

	defaultTimeout time.Duration
	quickTimeout   time.Duration
}

// New builds a disconnected Session. Call Connect before Execute.
func New(cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = vlog.NewLogger("velo")
	}
	sz := cfg.Sanitizer
	if sz == nil {
		sz = sanitize.Default()
	}
	defTimeout := cfg.DefaultTimeout
	if defTimeout == 0 {
		defTimeout = conf.Timeout
	}
	quickTimeout := cfg.QuickTimeout
	if quickTimeout == 0 {
		quickTimeout = conf.QuickTimeout
	}
	lookup := cfg.Secrets
	if lookup == nil {
		lookup = func(string) (string, bool) { return "", false }
	}

	return &Session{
		id:             uuid.New().String(),
		target:         cfg.Target,
		logger:         logger,
		sanitizer:      sz,
		injector:       creds.NewInjector(cfg.Target, lookup, logger),
		factory:        cfg.Factory,
		status:         StatusDisconnected,
		closedCh:       make(chan struct{}),
		requests:       make(chan *CommandRequest, queueCapacity),
		chunks:         make(chan []byte, 64),
		createdAt:      time.Now(),
		defaultTimeout: defTimeout,
		quickTimeout:   quickTimeout,
	}
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// Target returns the connection target
func (s *Session) Target() string {
	return s.target
}

// shortID is the first uuid group, enough to tell sessions apart in logs.
func (s *Session) shortID() string {
	if len(s.id) > 8 {
		return s.id[:8]
	}
	return s.id
}

// Status returns the current lifecycle state
func (s *Session) Status() Status {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return s.status
}

// CreatedAt returns the session creation time
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// LastActive returns the time the last command resolved
func (s *Session) LastActive() time.Time {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return s.lastActive
}

// CommandCount returns how many commands this session has resolved
func (s *Session) CommandCount() int64 {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return s.cmdCount
}

// Injector exposes the credential injector, mainly for tests
func (s *Session) Injector() *creds.Injector {
	return s.injector
}

// Channel exposes the underlying transport. Collaborators that need
// more than command execution (sftp, dial-through) type-assert the
// result; nil until Connect succeeds.
func (s *Session) Channel() Channel {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return s.channel
}

func (s *Session) setStatus(st Status) {
	s.statusMu.Lock()
	s.status = st
	s.statusMu.Unlock()
}

// Connect dials the channel through the factory and starts the reader
// and worker goroutines. Connecting an already connected or closed
// session is an error.
func (s *Session) Connect(ctx context.Context) error {
	s.statusMu.Lock()
	switch s.status {
	case StatusClosed:
		s.statusMu.Unlock()
		return &verrors.ConnectionError{Target: s.target, Err: fmt.Errorf("session is closed")}
	case StatusDisconnected:
		// proceed
	default:
		s.statusMu.Unlock()
		return &verrors.ConnectionError{Target: s.target, Err: fmt.Errorf("session already %s", s.status)}
	}
	s.status = StatusConnecting
	s.statusMu.Unlock()

	if s.factory == nil {
		s.setStatus(StatusDisconnected)
		return &verrors.ConnectionError{Target: s.target, Err: fmt.Errorf("no channel factory configured")}
	}

	dialCtx, cancel := context.WithTimeout(ctx, conf.ConnectTimeout)
	defer cancel()

	ch, err := s.factory(dialCtx)
	if err != nil {
		s.setStatus(StatusDisconnected)
		if dialCtx.Err() != nil {
			return &verrors.TimeoutError{Target: s.target, Op: "connect", After: conf.ConnectTimeout}
		}
		return &verrors.ConnectionError{Target: s.target, Err: err}
	}

	s.statusMu.Lock()
	s.channel = ch
	s.status = StatusReady
	s.statusMu.Unlock()

	s.wg.Add(2)
	go s.readLoop()
	go s.workLoop()

	s.logger.DebugWith("Session connected",
		vlog.F("session_id", s.id),
		vlog.F("target", s.target))
	return nil
}

// readLoop continuously drains the channel and forwards chunks to the
// in-flight collector. With no command at the head of the queue the
// chunks pile into the buffered channel and are discarded by the next
// pre-dispatch drain, which is what keeps late output of timed-out
// commands from bleeding into the next capture.
func (s *Session) readLoop() {
	defer s.wg.Done()
	buf := make([]byte, conf.ReadBufferSize)
	for {
		n, err := s.channel.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.forwardTap(chunk)
			select {
			case s.chunks <- chunk:
			case <-s.closedCh:
				return
			default:
				// Collector not draining and buffer full: stale
				// inter-command output, drop it
			}
		}
		if err != nil {
			s.fail(err)
			return
		}
	}
}

// workLoop serializes command execution: exactly one request is in
// flight per channel, everything else waits its FIFO turn.
func (s *Session) workLoop() {
	defer s.wg.Done()
	for {
		select {
		case req := <-s.requests:
			s.setStatus(StatusBusy)
			s.runCommand(req)
			s.statusMu.Lock()
			if s.status == StatusBusy {
				s.status = StatusReady
			}
			s.lastActive = time.Now()
			s.cmdCount++
			s.statusMu.Unlock()
		case <-s.closedCh:
			s.failPending()
			return
		}
	}
}

// failPending rejects every queued request after teardown
func (s *Session) failPending() {
	for {
		select {
		case req := <-s.requests:
			req.done <- execOutcome{err: s.connError()}
		default:
			return
		}
	}
}

func (s *Session) connError() error {
	s.statusMu.Lock()
	err := s.connErr
	s.statusMu.Unlock()
	if err == nil {
		err = fmt.Errorf("session closed")
	}
	return &verrors.ConnectionError{Target: s.target, Err: err}
}

// fail tears the session down after a channel-level error. Every
// queued and in-flight request resolves with a connection error.
func (s *Session) fail(err error) {
	s.statusMu.Lock()
	if s.status == StatusClosed {
		s.statusMu.Unlock()
		return
	}
	s.status = StatusDisconnected
	if s.connErr == nil {
		s.connErr = err
	}
	s.statusMu.Unlock()

	s.logger.WarnWith("Session channel failed",
		vlog.F("session_id", s.id),
		vlog.F("target", s.target),
		vlog.F("err", err))

	s.teardown()
}

func (s *Session) teardown() {
	s.closeOnce.Do(func() {
		close(s.closedCh)
		if s.channel != nil {
			_ = s.channel.Close()
		}
	})
}

// Close ends the session permanently. Queued requests fail, the
// channel is closed, and no further commands are accepted.
func (s *Session) Close() error {
	s.statusMu.Lock()
	if s.status == StatusClosed {
		s.statusMu.Unlock()
		return nil
	}
	prev := s.status
	s.status = StatusClosed
	s.statusMu.Unlock()

	s.teardown()

	s.logger.DebugWith("Session closed",
		vlog.F("session_id", s.id),
		vlog.F("target", s.target),
		vlog.F("previous", prev.String()))
	return nil
}

// Attach registers w as the raw output tap: every chunk the channel
// produces is copied to w until detach is called or a tap write
// fails. At most one tap at a time. Pair with WriteRaw for an
// interactive bridge; queued commands keep working but their framed
// traffic shows up on the tap too.
func (s *Session) Attach(w io.Writer) (detach func(), err error) {
	s.statusMu.Lock()
	st := s.status
	s.statusMu.Unlock()
	if st != StatusReady && st != StatusBusy {
		return nil, &verrors.ConnectionError{Target: s.target, Err: fmt.Errorf("session is %s", st)}
	}

	s.tapMu.Lock()
	defer s.tapMu.Unlock()
	if s.tap != nil {
		return nil, fmt.Errorf("session already has an attached consumer")
	}
	s.tap = w

	return func() {
		s.tapMu.Lock()
		if s.tap == w {
			s.tap = nil
		}
		s.tapMu.Unlock()
	}, nil
}

// forwardTap copies chunk to the registered tap, dropping the tap on
// its first write error so a dead consumer cannot wedge the readLoop
func (s *Session) forwardTap(chunk []byte) {
	s.tapMu.Lock()
	defer s.tapMu.Unlock()
	if s.tap == nil {
		return
	}
	if _, err := s.tap.Write(chunk); err != nil {
		s.tap = nil
	}
}

// WriteRaw writes bytes straight to the channel, bypassing framing.
// Used by the interactive attach path; never mix raw writes with
// queued commands on the same session.
func (s *Session) WriteRaw(data []byte) error {
	s.statusMu.Lock()
	st := s.status
	ch := s.channel
	s.statusMu.Unlock()

	if st != StatusReady && st != StatusBusy {
		return &verrors.ConnectionError{Target: s.target, Err: fmt.Errorf("session is %s", st)}
	}
	_, err := ch.Write(data)
	if err != nil {
		s.fail(err)
		return &verrors.ConnectionError{Target: s.target, Err: err}
	}
	return nil
}

// Resize propagates terminal geometry to the channel
func (s *Session) Resize(cols, rows uint32) error {
	s.statusMu.Lock()
	ch := s.channel
	s.statusMu.Unlock()
	if ch == nil {
		return fmt.Errorf("session has no channel")
	}
	return ch.Resize(cols, rows)
}

// Execute queues one command and blocks until its result resolves,
// the timeout fires (still a result), or the session dies (an error).
func (s *Session) Execute(ctx context.Context, command string, timeout time.Duration) (*CommandResult, error) {
	return s.ExecuteRequest(ctx, &CommandRequest{Command: command, Timeout: timeout})
}

// QuickExecute runs command on the read-only path: shorter default
// timeout, no credential watching.
func (s *Session) QuickExecute(ctx context.Context, command string) (*CommandResult, error) {
	return s.ExecuteRequest(ctx, &CommandRequest{Command: command, Quick: true})
}

// ExecuteRequest queues req behind earlier requests (FIFO) and waits.
func (s *Session) ExecuteRequest(ctx context.Context, req *CommandRequest) (*CommandResult, error) {
	s.statusMu.Lock()
	st := s.status
	s.statusMu.Unlock()

	switch st {
	case StatusReady, StatusBusy:
		// accepted
	case StatusClosed:
		return nil, &verrors.ConnectionError{Target: s.target, Err: fmt.Errorf("session is closed")}
	default:
		return nil, &verrors.ConnectionError{Target: s.target, Err: fmt.Errorf("session is %s", st)}
	}

	if req.Timeout == 0 {
		if req.Quick {
			req.Timeout = s.quickTimeout
		} else {
			req.Timeout = s.defaultTimeout
		}
	}
	req.done = make(chan execOutcome, 1)

	select {
	case s.requests <- req:
	case <-s.closedCh:
		return nil, s.connError()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case out := <-req.done:
		return out.result, out.err
	case <-ctx.Done():
		// The worker may still resolve the slot later; the buffered
		// done channel keeps it from leaking
		return nil, ctx.Err()
	}
}
