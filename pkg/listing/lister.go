package listing

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"velo/pkg/session"
	"velo/pkg/verrors"
	"velo/pkg/vlog"
)

// Runner is the slice of session the lister needs: read-only command
// execution on the quick path.
type Runner interface {
	QuickExecute(ctx context.Context, command string) (*session.CommandResult, error)
}

// Lister lists remote directories by driving stat (GNU, then BSD
// flags) and falling back to ls. The first dialect that answers is
// remembered for the life of the lister.
type Lister struct {
	run    Runner
	logger *vlog.Logger

	mu      sync.Mutex
	dialect string
}

func NewLister(run Runner, logger *vlog.Logger) *Lister {
	if logger == nil {
		logger = vlog.NewLogger("listing")
	}
	return &Lister{run: run, logger: logger}
}

// Dialect returns the cached stat dialect, empty before the first
// successful listing.
func (l *Lister) Dialect() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dialect
}

func (l *Lister) setDialect(d string) {
	l.mu.Lock()
	if l.dialect != d {
		l.dialect = d
		l.logger.DebugWith("stat dialect resolved", vlog.F("dialect", d))
	}
	l.mu.Unlock()
}

// The cd keeps stat output relative and makes a missing directory
// distinguishable from an empty one. The two patterns cover plain and
// hidden names without pulling in . and ..
func gnuListCommand(dir string) string {
	return fmt.Sprintf(`cd %s && stat --printf='%%n|%%F|%%s|%%a|%%U|%%Y\n' -- * .[!.]*`,
		session.Quote(dir))
}

func bsdListCommand(dir string) string {
	return fmt.Sprintf(`cd %s && stat -f '%%N|%%HT|%%z|%%Mp%%Lp|%%Su|%%m' -- * .[!.]*`,
		session.Quote(dir))
}

func lsListCommand(dir string) string {
	return fmt.Sprintf(`ls -1AF -- %s`, session.Quote(dir))
}

// List returns the directory's entries, deduplicated and sorted
// folders first.
func (l *Lister) List(ctx context.Context, dir string) ([]*Entry, error) {
	dir = cleanDir(dir)

	var entries []*Entry
	var err error
	switch l.Dialect() {
	case DialectGNU:
		entries, err = l.listStat(ctx, dir, false)
	case DialectBSD:
		entries, err = l.listStat(ctx, dir, true)
	case DialectLS:
		entries, err = l.listLS(ctx, dir)
	default:
		entries, err = l.listCascade(ctx, dir)
	}
	if err != nil {
		// Output nothing could make sense of presents as an empty
		// directory; the rejected lines stay in the log
		var pe *verrors.ParseError
		if errors.As(err, &pe) {
			l.logger.WarnWith("discarding unparseable listing output",
				vlog.F("dir", dir),
				vlog.F("dialect", pe.Dialect),
				vlog.F("lines", len(pe.Lines)),
			)
			return []*Entry{}, nil
		}
		return nil, err
	}

	entries = Dedup(entries)
	Sort(entries)
	return entries, nil
}

// listCascade probes GNU stat, BSD stat, then ls, caching whichever
// dialect the remote understands.
func (l *Lister) listCascade(ctx context.Context, dir string) ([]*Entry, error) {
	entries, err := l.listStat(ctx, dir, false)
	if err == nil {
		l.setDialect(DialectGNU)
		return entries, nil
	}
	if !isDialectErr(err) {
		return nil, err
	}

	entries, err = l.listStat(ctx, dir, true)
	if err == nil {
		l.setDialect(DialectBSD)
		return entries, nil
	}
	if !isDialectErr(err) {
		return nil, err
	}

	entries, err = l.listLS(ctx, dir)
	if err != nil {
		return nil, err
	}
	l.setDialect(DialectLS)
	return entries, nil
}

// errDialect marks a stat flavor the remote's binary rejected, which
// tells the cascade to keep probing rather than give up.
type errDialect struct{ dialect string }

func (e *errDialect) Error() string {
	return fmt.Sprintf("remote stat does not speak the %s dialect", e.dialect)
}

func isDialectErr(err error) bool {
	_, ok := err.(*errDialect)
	return ok
}

func (l *Lister) listStat(ctx context.Context, dir string, bsd bool) ([]*Entry, error) {
	dialect := DialectGNU
	command := gnuListCommand(dir)
	if bsd {
		dialect = DialectBSD
		command = bsdListCommand(dir)
	}

	res, err := l.run.QuickExecute(ctx, command)
	if err != nil {
		return nil, err
	}

	entries, bad := parseStatLines(dir, res.Output, bsd)
	switch {
	case len(entries) > 0:
		// Partial noise alongside real rows is tolerated; glob
		// misses happen when only the hidden pattern is empty
		return entries, nil
	case len(bad) == 0:
		return []*Entry{}, nil
	case dialectMismatch(bad):
		return nil, &errDialect{dialect: dialect}
	case emptyGlob(bad):
		return []*Entry{}, nil
	case missingDir(bad):
		return nil, &verrors.OperationError{
			Op:      "list",
			Paths:   []string{dir},
			Message: "no such directory",
		}
	default:
		return nil, parseError(dialect, bad)
	}
}

func (l *Lister) listLS(ctx context.Context, dir string) ([]*Entry, error) {
	res, err := l.run.QuickExecute(ctx, lsListCommand(dir))
	if err != nil {
		return nil, err
	}

	entries, bad := parseLS(dir, res.Output)
	if len(entries) == 0 && len(bad) > 0 {
		return nil, &verrors.OperationError{
			Op:      "list",
			Paths:   []string{dir},
			Message: strings.TrimSpace(bad[0]),
		}
	}
	if len(entries) == 0 && res.Failed() && res.Output != "" {
		return nil, parseError(DialectLS, strings.Split(res.Output, "\n"))
	}
	return entries, nil
}

func gnuStatCommand(p string) string {
	return fmt.Sprintf(`stat --printf='%%n|%%F|%%s|%%a|%%U|%%Y\n' -- %s`, session.Quote(p))
}

func bsdStatCommand(p string) string {
	return fmt.Sprintf(`stat -f '%%N|%%HT|%%z|%%Mp%%Lp|%%Su|%%m' -- %s`, session.Quote(p))
}

// Stat describes a single remote path. On the ls fallback dialect only
// name and kind are available.
func (l *Lister) Stat(ctx context.Context, p string) (*Entry, error) {
	switch l.Dialect() {
	case DialectGNU:
		return l.statPath(ctx, p, false)
	case DialectBSD:
		return l.statPath(ctx, p, true)
	case DialectLS:
		return l.statLS(ctx, p)
	}

	e, err := l.statPath(ctx, p, false)
	if err == nil {
		l.setDialect(DialectGNU)
		return e, nil
	}
	if !isDialectErr(err) {
		return nil, err
	}
	e, err = l.statPath(ctx, p, true)
	if err == nil {
		l.setDialect(DialectBSD)
		return e, nil
	}
	if !isDialectErr(err) {
		return nil, err
	}
	e, err = l.statLS(ctx, p)
	if err == nil {
		l.setDialect(DialectLS)
	}
	return e, err
}

func (l *Lister) statPath(ctx context.Context, p string, bsd bool) (*Entry, error) {
	dialect := DialectGNU
	command := gnuStatCommand(p)
	if bsd {
		dialect = DialectBSD
		command = bsdStatCommand(p)
	}

	res, err := l.run.QuickExecute(ctx, command)
	if err != nil {
		return nil, err
	}

	entries, bad := parseStatLines(path.Dir(p), res.Output, bsd)
	switch {
	case len(entries) > 0:
		return entries[0], nil
	case dialectMismatch(bad):
		return nil, &errDialect{dialect: dialect}
	case noSuchPath(bad):
		return nil, &verrors.OperationError{
			Op:      "stat",
			Paths:   []string{p},
			Message: "no such file or directory",
		}
	default:
		return nil, parseError(dialect, bad)
	}
}

func (l *Lister) statLS(ctx context.Context, p string) (*Entry, error) {
	res, err := l.run.QuickExecute(ctx, fmt.Sprintf(`ls -1AFd -- %s`, session.Quote(p)))
	if err != nil {
		return nil, err
	}

	entries, bad := parseLS(path.Dir(p), res.Output)
	if len(entries) == 0 {
		msg := "no such file or directory"
		if len(bad) > 0 {
			msg = strings.TrimSpace(bad[0])
		}
		return nil, &verrors.OperationError{Op: "stat", Paths: []string{p}, Message: msg}
	}
	e := entries[0]
	e.Name = path.Base(e.Path)
	return e, nil
}

// cleanDir normalizes the target so produced paths never carry
// doubled separators.
func cleanDir(dir string) string {
	if dir == "" {
		return "."
	}
	if dir == "/" {
		return dir
	}
	trimmed := strings.TrimRight(dir, "/")
	if trimmed == "" {
		return "/"
	}
	return trimmed
}
