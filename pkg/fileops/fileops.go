// Package fileops drives remote file manipulation through a session.
// Every operation is one shell command with quote-escaped paths whose
// success is judged by a sentinel marker in the output plus exit code
// zero, never by the absence of error text: plenty of tools print
// warnings on success.
package fileops

import (
	"context"
	"encoding/base64"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"velo/pkg/conf"
	"velo/pkg/listing"
	"velo/pkg/session"
	"velo/pkg/verrors"
	"velo/pkg/vlog"
)

// successMarker only appears in output when the chained command left
// the shell with status zero.
const successMarker = "__VELO_OK__"

// heredocTag terminates multi-chunk writes
const heredocTag = "__VELO_B64__"

// Runner is the slice of session the operations need. Mutations go
// through the full path, reads through the quick one.
type Runner interface {
	Execute(ctx context.Context, command string, timeout time.Duration) (*session.CommandResult, error)
	QuickExecute(ctx context.Context, command string) (*session.CommandResult, error)
	Target() string
}

type Ops struct {
	run    Runner
	logger *vlog.Logger
}

func NewOps(run Runner, logger *vlog.Logger) *Ops {
	if logger == nil {
		logger = vlog.NewLogger("fileops")
	}
	return &Ops{run: run, logger: logger}
}

// mutate runs a state-changing command and maps the outcome onto the
// error taxonomy.
func (o *Ops) mutate(ctx context.Context, op string, paths []string, command string) error {
	res, err := o.run.Execute(ctx, command, 0)
	if err != nil {
		return err
	}
	if res.TimedOut {
		return &verrors.TimeoutError{Target: o.run.Target(), Op: op, After: res.Elapsed}
	}
	if res.Failed() || !strings.Contains(res.Output, successMarker) {
		return &verrors.OperationError{
			Op:      op,
			Paths:   paths,
			Message: cleanMessage(res.Output),
		}
	}
	return nil
}

// cleanMessage strips marker lines so errors carry only what the tool
// actually said.
func cleanMessage(out string) string {
	lines := strings.Split(out, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if strings.Contains(l, successMarker) {
			continue
		}
		kept = append(kept, l)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func marked(command string) string {
	return fmt.Sprintf("%s && echo '%s'", command, successMarker)
}

// CreateDirectory makes dir including missing parents
func (o *Ops) CreateDirectory(ctx context.Context, dir string) error {
	cmd := marked(fmt.Sprintf("mkdir -p -- %s", session.Quote(dir)))
	return o.mutate(ctx, "createDirectory", []string{dir}, cmd)
}

// CreateFile touches an empty file at p
func (o *Ops) CreateFile(ctx context.Context, p string) error {
	cmd := marked(fmt.Sprintf("touch -- %s", session.Quote(p)))
	return o.mutate(ctx, "createFile", []string{p}, cmd)
}

// Delete removes every given path, directories recursively
func (o *Ops) Delete(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return &verrors.OperationError{Op: "delete", Message: "no paths given"}
	}
	quoted := make([]string, len(paths))
	for i, p := range paths {
		quoted[i] = session.Quote(p)
	}
	cmd := marked(fmt.Sprintf("rm -rf -- %s", strings.Join(quoted, " ")))
	return o.mutate(ctx, "delete", paths, cmd)
}

// Rename gives p a new base name inside its directory
func (o *Ops) Rename(ctx context.Context, p, newName string) error {
	dst := path.Join(path.Dir(p), newName)
	cmd := marked(fmt.Sprintf("mv -- %s %s", session.Quote(p), session.Quote(dst)))
	return o.mutate(ctx, "rename", []string{p, dst}, cmd)
}

// Move relocates src to dst, which may be a directory or a full target
// path
func (o *Ops) Move(ctx context.Context, src, dst string) error {
	cmd := marked(fmt.Sprintf("mv -- %s %s", session.Quote(src), session.Quote(dst)))
	return o.mutate(ctx, "move", []string{src, dst}, cmd)
}

// Copy duplicates src to dst, recursing into directories and keeping
// permissions
func (o *Ops) Copy(ctx context.Context, src, dst string) error {
	cmd := marked(fmt.Sprintf("cp -Rp -- %s %s", session.Quote(src), session.Quote(dst)))
	return o.mutate(ctx, "copy", []string{src, dst}, cmd)
}

// Chmod applies mode (octal or symbolic) to p
func (o *Ops) Chmod(ctx context.Context, mode, p string) error {
	cmd := marked(fmt.Sprintf("chmod %s -- %s", session.Quote(mode), session.Quote(p)))
	return o.mutate(ctx, "chmod", []string{p}, cmd)
}

// Chown sets ownership, owner may be "user" or "user:group"
func (o *Ops) Chown(ctx context.Context, owner, p string) error {
	cmd := marked(fmt.Sprintf("chown %s -- %s", session.Quote(owner), session.Quote(p)))
	return o.mutate(ctx, "chown", []string{p}, cmd)
}

// Exists reports whether p names anything at all
func (o *Ops) Exists(ctx context.Context, p string) (bool, error) {
	cmd := marked(fmt.Sprintf("test -e %s", session.Quote(p)))
	res, err := o.run.QuickExecute(ctx, cmd)
	if err != nil {
		return false, err
	}
	return strings.Contains(res.Output, successMarker) && !res.Failed(), nil
}

// Read fetches p's exact bytes. Content travels base64-encoded so
// quoting, binary bytes, and trailing newlines survive the shell.
func (o *Ops) Read(ctx context.Context, p string) ([]byte, error) {
	sizeRes, err := o.run.QuickExecute(ctx, fmt.Sprintf("wc -c < %s", session.Quote(p)))
	if err != nil {
		return nil, err
	}
	if sizeRes.Failed() {
		return nil, &verrors.OperationError{
			Op:      "read",
			Paths:   []string{p},
			Message: cleanMessage(sizeRes.Output),
		}
	}
	size, err := strconv.ParseInt(strings.TrimSpace(sizeRes.Output), 10, 64)
	if err != nil {
		return nil, &verrors.OperationError{
			Op:      "read",
			Paths:   []string{p},
			Message: fmt.Sprintf("unreadable size %q", strings.TrimSpace(sizeRes.Output)),
		}
	}
	if size > conf.FileTransferCap {
		return nil, &verrors.OperationError{
			Op:      "read",
			Paths:   []string{p},
			Message: fmt.Sprintf("file is %d bytes, transfer cap is %d", size, conf.FileTransferCap),
		}
	}

	res, err := o.run.QuickExecute(ctx, marked(fmt.Sprintf("base64 < %s", session.Quote(p))))
	if err != nil {
		return nil, err
	}
	if res.Failed() || !strings.Contains(res.Output, successMarker) {
		return nil, &verrors.OperationError{
			Op:      "read",
			Paths:   []string{p},
			Message: cleanMessage(res.Output),
		}
	}

	// Joining fields tolerates both wrapped (GNU) and single-line
	// (BSD) base64 output
	encoded := strings.Join(strings.Fields(cleanMessage(res.Output)), "")
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, &verrors.OperationError{
			Op:      "read",
			Paths:   []string{p},
			Message: "remote sent invalid base64",
		}
	}
	return data, nil
}

// Write replaces p's content with exactly the given bytes. Small
// payloads go inline, larger ones through a heredoc so no single shell
// argument grows past its limits.
func (o *Ops) Write(ctx context.Context, p string, content []byte) error {
	if int64(len(content)) > conf.FileTransferCap {
		return &verrors.OperationError{
			Op:      "write",
			Paths:   []string{p},
			Message: fmt.Sprintf("content is %d bytes, transfer cap is %d", len(content), conf.FileTransferCap),
		}
	}

	encoded := base64.StdEncoding.EncodeToString(content)
	if len(content) <= conf.InlineWriteThreshold {
		cmd := marked(fmt.Sprintf("printf '%%s' '%s' | base64 -d > %s", encoded, session.Quote(p)))
		return o.mutate(ctx, "write", []string{p}, cmd)
	}

	// The heredoc terminator has to sit alone on its line and the
	// session appends its frame trailer to the last line, so a no-op
	// colon line closes the command.
	var sb strings.Builder
	fmt.Fprintf(&sb, "base64 -d > %s <<'%s' && echo '%s'\n",
		session.Quote(p), heredocTag, successMarker)
	for _, line := range wrapEncoded(encoded) {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	sb.WriteString(heredocTag)
	sb.WriteString("\n:")
	return o.mutate(ctx, "write", []string{p}, sb.String())
}

func wrapEncoded(encoded string) []string {
	width := conf.EncodedLineWidth
	lines := make([]string, 0, len(encoded)/width+1)
	for len(encoded) > width {
		lines = append(lines, encoded[:width])
		encoded = encoded[width:]
	}
	if len(encoded) > 0 {
		lines = append(lines, encoded)
	}
	return lines
}

// Search finds names matching pattern below dir, case-insensitively.
// Bare patterns are wrapped in wildcards; directories come back with
// folder kind. Results are capped remotely to keep the capture small.
func (o *Ops) Search(ctx context.Context, dir, pattern string) ([]*listing.Entry, error) {
	if !strings.ContainsAny(pattern, "*?[") {
		pattern = "*" + pattern + "*"
	}
	cmd := fmt.Sprintf(
		`find %s -iname %s \( -type d -exec printf '%%s/\n' {} \; -o -print \) | head -n %d`,
		session.Quote(dir), session.Quote(pattern), conf.MaxSearchResults)

	res, err := o.run.QuickExecute(ctx, cmd)
	if err != nil {
		return nil, err
	}

	var entries []*listing.Entry
	for _, line := range strings.Split(res.Output, "\n") {
		line = strings.TrimRight(strings.TrimRight(line, "\r"), " ")
		if line == "" || strings.HasPrefix(line, "find:") {
			continue
		}
		isDir := strings.HasSuffix(line, "/")
		p := strings.TrimSuffix(line, "/")
		if !strings.HasPrefix(p, "/") {
			p = path.Join(dir, p)
		}
		name := path.Base(p)
		entries = append(entries, &listing.Entry{
			Name: name,
			Path: p,
			Kind: listing.ClassifyName(name, isDir),
		})
	}
	return entries, nil
}
