// Package creds watches interactive shell output for authentication
// prompts and answers each one at most once per top-level command.
// Secrets come from an injected lookup, are written straight into the
// channel input, and are zeroed afterwards. They are never logged and
// never retained.
package creds

import (
	"bytes"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"

	"velo/pkg/conf"
	"velo/pkg/vlog"
)

// Event reports what the injector did with one observed chunk.
type Event int

const (
	// EventNone means no prompt activity
	EventNone Event = iota
	// EventInjected means the secret was written to the channel
	EventInjected
	// EventNoSecret means a prompt matched but no credential is
	// configured for the target
	EventNoSecret
	// EventRejected means a fresh prompt appeared after injection,
	// i.e. the remote side did not accept the credential
	EventRejected
)

// SecretFunc resolves the credential for a target. The bool reports
// whether one is configured at all.
type SecretFunc func(target string) (string, bool)

// promptRe matches a password or passphrase request anchored at the
// end of the current line, the way sshd, sudo and ssh-add render them.
// The trailing colon is required so prose mentioning passwords never
// triggers.
var promptRe = regexp.MustCompile(`(?i)(password|passphrase)[^:\n]*:\s*$`)

// authCapable are the command words that may open a new prompt cycle.
var authCapable = []string{"ssh", "scp", "sftp", "sudo", "su", "rsync"}

// Injector holds the per-session prompt state. One Injector belongs to
// exactly one session and only ever writes to that session's channel.
type Injector struct {
	target string
	lookup SecretFunc
	settle time.Duration
	logger *vlog.Logger

	mu           sync.Mutex
	consumed     bool
	seenLen      int
	injectOffset int
}

// NewInjector starts consumed, i.e. not watching. The first
// auth-capable command arms it.
func NewInjector(target string, lookup SecretFunc, logger *vlog.Logger) *Injector {
	return &Injector{
		target:       target,
		lookup:       lookup,
		settle:       conf.SettleDelay,
		logger:       logger,
		consumed:     true,
		injectOffset: -1,
	}
}

// SetSettle overrides the post-prompt settle delay.
func (in *Injector) SetSettle(d time.Duration) {
	in.mu.Lock()
	in.settle = d
	in.mu.Unlock()
}

// Arm resets the consumed flag when command opens a new top-level
// authentication cycle (a fresh ssh/sudo/... invocation). Unrelated
// commands leave the state alone so mid-session output can never
// re-trigger an injection.
func (in *Injector) Arm(command string) {
	if !IsAuthCapable(command) {
		return
	}
	in.mu.Lock()
	in.consumed = false
	in.seenLen = 0
	in.injectOffset = -1
	in.mu.Unlock()
}

// IsAuthCapable reports whether the command text starts an invocation
// that may legitimately prompt for a credential.
func IsAuthCapable(command string) bool {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return false
	}
	head := fields[0]
	if i := strings.LastIndex(head, "/"); i >= 0 {
		head = head[i+1:]
	}
	for _, name := range authCapable {
		if head == name {
			return true
		}
	}
	return false
}

// Observe inspects the output accumulated so far for the command in
// flight and, when an unanswered prompt sits at the end of it, waits
// for the settle delay and writes the secret plus newline to w. The
// settle wait gives the remote side time to finish flushing the prompt
// and to turn echo off. Exactly one injection happens per armed cycle.
func (in *Injector) Observe(buf []byte, w io.Writer) Event {
	in.mu.Lock()

	if len(buf) == in.seenLen {
		in.mu.Unlock()
		return EventNone
	}
	in.seenLen = len(buf)

	lineStart := bytes.LastIndexByte(buf, '\n') + 1
	lastLine := string(buf[lineStart:])
	if !promptRe.MatchString(lastLine) {
		in.mu.Unlock()
		return EventNone
	}

	if in.consumed {
		// A prompt rendered after the injection point means the
		// credential was not accepted
		if in.injectOffset >= 0 && lineStart >= in.injectOffset {
			in.mu.Unlock()
			in.logger.DebugWith("Auth prompt repeated after injection",
				vlog.F("target", in.target))
			return EventRejected
		}
		in.mu.Unlock()
		return EventNone
	}

	secret, ok := in.lookup(in.target)
	if !ok {
		in.mu.Unlock()
		in.logger.DebugWith("Auth prompt detected without configured credential",
			vlog.F("target", in.target))
		return EventNoSecret
	}

	in.consumed = true
	settle := in.settle
	in.mu.Unlock()

	time.Sleep(settle)

	payload := append([]byte(secret), '\n')
	_, wErr := w.Write(payload)
	for i := range payload {
		payload[i] = 0
	}

	in.mu.Lock()
	in.injectOffset = in.seenLen
	in.mu.Unlock()

	if wErr != nil {
		in.logger.ErrorWith("Failed to answer auth prompt",
			vlog.F("target", in.target),
			vlog.F("err", wErr))
		return EventNone
	}

	in.logger.DebugWith("Credential injected",
		vlog.F("target", in.target))
	return EventInjected
}

// Consumed reports whether the current cycle already injected.
func (in *Injector) Consumed() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.consumed
}
