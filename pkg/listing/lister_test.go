package listing

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"velo/pkg/session"
	"velo/pkg/verrors"
)

type fakeReply struct {
	match string
	out   string
	code  int
}

type fakeRunner struct {
	mu      sync.Mutex
	calls   []string
	replies []fakeReply
}

func (f *fakeRunner) QuickExecute(ctx context.Context, command string) (*session.CommandResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, command)
	f.mu.Unlock()

	for _, r := range f.replies {
		if strings.Contains(command, r.match) {
			code := r.code
			return &session.CommandResult{Output: r.out, ExitCode: &code}, nil
		}
	}
	code := 127
	return &session.CommandResult{Output: "sh: command not found", ExitCode: &code}, nil
}

func (f *fakeRunner) callsMatching(sub string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.Contains(c, sub) {
			n++
		}
	}
	return n
}

func TestListGNUFirstTry(t *testing.T) {
	run := &fakeRunner{replies: []fakeReply{
		{match: "--printf", out: "docs|directory|4096|755|u|1700000000\nb.txt|regular file|5|644|u|1700000001\n"},
	}}
	l := NewLister(run, nil)

	entries, err := l.List(context.Background(), "/home/u")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entry count = %d, want 2", len(entries))
	}
	if entries[0].Name != "docs" {
		t.Errorf("folders must sort first, got %s", entries[0].Name)
	}
	if l.Dialect() != DialectGNU {
		t.Errorf("dialect = %q, want gnu", l.Dialect())
	}
}

func TestListFallsBackToBSD(t *testing.T) {
	run := &fakeRunner{replies: []fakeReply{
		{match: "--printf", out: "stat: illegal option -- -\nusage: stat [-FLnq] ...", code: 1},
		{match: "stat -f", out: "Movies|Directory|128|0755|kim|1700000000\n"},
	}}
	l := NewLister(run, nil)

	entries, err := l.List(context.Background(), "/Users/kim")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Kind != KindFolder {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	if l.Dialect() != DialectBSD {
		t.Fatalf("dialect = %q, want bsd", l.Dialect())
	}

	// The cached dialect skips the GNU probe on the next call
	if _, err := l.List(context.Background(), "/Users/kim"); err != nil {
		t.Fatalf("second list failed: %v", err)
	}
	if got := run.callsMatching("--printf"); got != 1 {
		t.Errorf("GNU probes = %d, want 1", got)
	}
}

func TestListFallsBackToLS(t *testing.T) {
	run := &fakeRunner{replies: []fakeReply{
		{match: "--printf", out: "stat: unrecognized option: printf=...", code: 1},
		{match: "stat -f", out: "stat: invalid option -- 'f'", code: 1},
		{match: "ls -1AF", out: "bin/\nREADME\nrun.sh*\n"},
	}}
	l := NewLister(run, nil)

	entries, err := l.List(context.Background(), "/srv")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entry count = %d, want 3", len(entries))
	}
	if l.Dialect() != DialectLS {
		t.Errorf("dialect = %q, want ls", l.Dialect())
	}
}

func TestListEmptyDirectory(t *testing.T) {
	run := &fakeRunner{replies: []fakeReply{
		{match: "--printf", out: "stat: cannot stat '*': No such file or directory\n" +
			"stat: cannot stat '.[!.]*': No such file or directory\n", code: 1},
	}}
	l := NewLister(run, nil)

	entries, err := l.List(context.Background(), "/empty")
	if err != nil {
		t.Fatalf("empty dir must not error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("entry count = %d, want 0", len(entries))
	}
	if l.Dialect() != DialectGNU {
		t.Errorf("empty listing should still cache the dialect")
	}
}

func TestListMissingDirectory(t *testing.T) {
	run := &fakeRunner{replies: []fakeReply{
		{match: "--printf", out: "sh: cd: /nope: No such file or directory\n", code: 1},
	}}
	l := NewLister(run, nil)

	_, err := l.List(context.Background(), "/nope")
	var oe *verrors.OperationError
	if !errors.As(err, &oe) {
		t.Fatalf("expected OperationError, got %v", err)
	}
	if oe.Op != "list" {
		t.Errorf("op = %q, want list", oe.Op)
	}
}

func TestListUnparseableOutput(t *testing.T) {
	run := &fakeRunner{replies: []fakeReply{
		{match: "--printf", out: "random garbage without structure\nmore noise\n", code: 0},
	}}
	l := NewLister(run, nil)

	entries, err := l.List(context.Background(), "/tmp")
	if err != nil {
		t.Fatalf("unparseable output must not surface as an error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("entry count = %d, want 0", len(entries))
	}
}

func TestStatOutputRejectedLines(t *testing.T) {
	run := &fakeRunner{replies: []fakeReply{
		{match: "--printf", out: "random garbage without structure\nmore noise\n", code: 0},
	}}
	l := NewLister(run, nil)

	_, err := l.listStat(context.Background(), "/tmp", false)
	var pe *verrors.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if pe.Dialect != DialectGNU {
		t.Errorf("dialect = %q, want gnu", pe.Dialect)
	}
	want := []string{"random garbage without structure", "more noise"}
	if len(pe.Lines) != len(want) || pe.Lines[0] != want[0] || pe.Lines[1] != want[1] {
		t.Errorf("rejected lines = %q, want %q", pe.Lines, want)
	}
	if !strings.Contains(pe.Error(), "2 gnu line") {
		t.Errorf("message = %q, want the rejected line count", pe.Error())
	}
}

func TestStatSinglePath(t *testing.T) {
	run := &fakeRunner{replies: []fakeReply{
		{match: "--printf", out: "/var/log/syslog|regular file|2048|640|syslog|1700000000\n"},
	}}
	l := NewLister(run, nil)

	e, err := l.Stat(context.Background(), "/var/log/syslog")
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if e.Name != "syslog" || e.Path != "/var/log/syslog" || e.Size != 2048 {
		t.Errorf("unexpected entry: %+v", e)
	}
	if l.Dialect() != DialectGNU {
		t.Errorf("stat success should cache the dialect")
	}
}

func TestStatMissingPath(t *testing.T) {
	run := &fakeRunner{replies: []fakeReply{
		{match: "--printf", out: "stat: cannot stat '/nope': No such file or directory\n", code: 1},
	}}
	l := NewLister(run, nil)

	_, err := l.Stat(context.Background(), "/nope")
	var oe *verrors.OperationError
	if !errors.As(err, &oe) {
		t.Fatalf("expected OperationError, got %v", err)
	}
}

func TestStatLSFallback(t *testing.T) {
	run := &fakeRunner{replies: []fakeReply{
		{match: "--printf", out: "stat: illegal option", code: 1},
		{match: "stat -f", out: "stat: illegal option", code: 1},
		{match: "ls -1AFd", out: "/opt/data/\n"},
	}}
	l := NewLister(run, nil)

	e, err := l.Stat(context.Background(), "/opt/data")
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if e.Name != "data" || e.Kind != KindFolder {
		t.Errorf("unexpected entry: %+v", e)
	}
}
