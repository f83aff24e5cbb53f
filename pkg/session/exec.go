package session

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"velo/pkg/conf"
	"velo/pkg/creds"
	"velo/pkg/verrors"
	"velo/pkg/vlog"
)

// Each command is framed by a random per-command delimiter. The shell
// line becomes:
//
//	<command>; echo '<delimiter>'$?
//
// The terminal echoes the typed line back (delimiter followed by a
// quote), the command output follows, and finally the shell prints the
// delimiter immediately followed by the exit code. Everything after
// the previous frame and before that trailer is the command's output.

const delimiterPrefix = "__VELO_"

func newDelimiter() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing is effectively fatal elsewhere, but a
		// nanosecond stamp still yields a collision-free frame marker
		return fmt.Sprintf("%s%d__", delimiterPrefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s%x__", delimiterPrefix, b)
}

// Quote wraps s in single quotes for a POSIX shell, closing and
// reopening the quote around embedded single quotes. Safe for paths
// and env values.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// composeCommand wraps the user command with its working directory and
// environment in a subshell, then appends the frame trailer. A failed
// cd aborts the subshell so the command never runs in the wrong place.
func composeCommand(req *CommandRequest, delimiter string) string {
	var sb strings.Builder
	if req.Dir != "" || len(req.Env) > 0 {
		sb.WriteString("(")
		if req.Dir != "" {
			sb.WriteString("cd ")
			sb.WriteString(Quote(req.Dir))
			sb.WriteString(" || exit; ")
		}
		if len(req.Env) > 0 {
			keys := make([]string, 0, len(req.Env))
			for k := range req.Env {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			sb.WriteString("export")
			for _, k := range keys {
				sb.WriteString(" ")
				sb.WriteString(k)
				sb.WriteString("=")
				sb.WriteString(Quote(req.Env[k]))
			}
			sb.WriteString("; ")
		}
		sb.WriteString(req.Command)
		sb.WriteString(")")
	} else {
		sb.WriteString(req.Command)
	}
	sb.WriteString("; echo '")
	sb.WriteString(delimiter)
	sb.WriteString("'$?\n")
	return sb.String()
}

// findFrame scans buf for the frame trailer: the delimiter immediately
// followed (modulo CR/LF the terminal may insert) by the exit code
// digits. Occurrences where the next byte is anything else are the
// terminal echoing the typed command and are skipped. Returns the bytes
// before the trailer and the parsed exit code.
func findFrame(buf []byte, delimiter string) (pre []byte, code int, found bool) {
	d := []byte(delimiter)
	from := 0
	for {
		i := bytes.Index(buf[from:], d)
		if i < 0 {
			return nil, 0, false
		}
		at := from + i
		rest := buf[at+len(d):]

		j := 0
		for j < len(rest) && (rest[j] == '\r' || rest[j] == '\n') {
			j++
		}
		k := j
		for k < len(rest) && rest[k] >= '0' && rest[k] <= '9' {
			k++
		}
		if k > j {
			if k == len(rest) {
				// Digits may still be streaming in ("12" of "127"),
				// the shell always follows them with a newline
				return nil, 0, false
			}
			n, err := strconv.Atoi(string(rest[j:k]))
			if err == nil {
				return buf[:at], n, true
			}
		}
		if j == len(rest) {
			// Delimiter sits at the buffer edge, successor unknown yet
			return nil, 0, false
		}
		// Echoed occurrence, keep scanning
		from = at + len(d)
	}
}

// stripDelimiterLines drops every line that mentions the delimiter:
// the terminal echo of the dispatched command and, on timeout, any
// partially received trailer. Output handed to callers never contains
// the frame marker.
func stripDelimiterLines(text, delimiter string) string {
	if !strings.Contains(text, delimiter) {
		return text
	}
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if strings.Contains(l, delimiter) {
			continue
		}
		kept = append(kept, l)
	}
	return strings.Join(kept, "\n")
}

func (s *Session) extractOutput(raw []byte, delimiter string) string {
	text := stripDelimiterLines(string(raw), delimiter)
	text = s.sanitizer.Clean(text)
	return strings.TrimSpace(text)
}

// interruptChild sends ETX so a child stuck at an auth prompt dies and
// the shell comes back. Its frame trailer then surfaces as stale
// output, which the next pre-dispatch drain discards.
func (s *Session) interruptChild() {
	_, _ = s.channel.Write([]byte{0x03})
}

// drainStale empties the chunk queue before dispatching a command so
// late output from a previous (timed out) command never leaks into the
// next result.
func (s *Session) drainStale() {
	for {
		select {
		case <-s.chunks:
		default:
			return
		}
	}
}

// runCommand owns the channel for the duration of one framed command.
// It is only ever called from the worker goroutine, which serializes
// all shell traffic.
func (s *Session) runCommand(req *CommandRequest) {
	started := time.Now()
	delimiter := newDelimiter()
	line := composeCommand(req, delimiter)

	if !req.Quick {
		s.injector.Arm(req.Command)
	}
	s.drainStale()

	s.logger.DebugWith("dispatching command",
		vlog.F("session", s.shortID()),
		vlog.F("timeout", req.Timeout),
	)
	if _, err := s.channel.Write([]byte(line)); err != nil {
		s.fail(fmt.Errorf("channel write failed - %v", err))
		req.done <- execOutcome{err: &verrors.ConnectionError{
			Target: s.target,
			Err:    err,
		}}
		return
	}

	timer := time.NewTimer(req.Timeout)
	defer timer.Stop()

	var capture []byte
	for {
		select {
		case chunk := <-s.chunks:
			capture = append(capture, chunk...)
			if len(capture) > conf.MaxCaptureSize {
				// Keep the tail, the frame trailer arrives last
				capture = capture[len(capture)-conf.MaxCaptureSize:]
			}
			if !req.Quick {
				switch s.injector.Observe(capture, s.channel) {
				case creds.EventNoSecret:
					s.interruptChild()
					req.done <- execOutcome{err: &verrors.AuthenticationError{
						Target: s.target,
						Reason: "authentication prompt received and no credential is configured",
					}}
					return
				case creds.EventRejected:
					s.interruptChild()
					req.done <- execOutcome{err: &verrors.AuthenticationError{
						Target: s.target,
						Reason: "credential rejected by remote host",
					}}
					return
				}
			}
			if pre, code, ok := findFrame(capture, delimiter); ok {
				c := code
				req.done <- execOutcome{result: &CommandResult{
					Output:   s.extractOutput(pre, delimiter),
					ExitCode: &c,
					Elapsed:  time.Since(started),
				}}
				return
			}
		case <-timer.C:
			s.logger.WarnWith("command timed out",
				vlog.F("session", s.shortID()),
				vlog.F("after", req.Timeout),
			)
			req.done <- execOutcome{result: &CommandResult{
				Output:   s.extractOutput(capture, delimiter),
				Elapsed:  time.Since(started),
				TimedOut: true,
			}}
			return
		case <-s.closedCh:
			req.done <- execOutcome{err: s.connError()}
			return
		}
	}
}
