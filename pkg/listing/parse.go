package listing

import (
	"path"
	"strconv"
	"strings"

	"velo/pkg/verrors"
)

// Stat output dialects. GNU and BSD differ in both flags and format
// verbs; ls is the lowest common denominator when stat is unusable.
const (
	DialectGNU = "gnu"
	DialectBSD = "bsd"
	DialectLS  = "ls"
)

const statFieldCount = 6

// parseStatLines handles both stat dialects, which share the pipe
// layout name|type|size|perms|owner|mtime. Only the name may contain
// pipes, so the five metadata fields are taken from the right.
// Unparseable lines are returned for the caller to judge.
func parseStatLines(dir, out string, bsd bool) (entries []*Entry, bad []string) {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		parts := strings.Split(line, "|")
		if len(parts) < statFieldCount {
			bad = append(bad, line)
			continue
		}
		meta := parts[len(parts)-(statFieldCount-1):]
		name := strings.Join(parts[:len(parts)-(statFieldCount-1)], "|")

		size, sizeErr := strconv.ParseInt(meta[1], 10, 64)
		epoch, timeErr := strconv.ParseInt(meta[4], 10, 64)
		if sizeErr != nil || timeErr != nil {
			bad = append(bad, line)
			continue
		}

		var isDir bool
		if bsd {
			isDir = strings.EqualFold(strings.TrimSpace(meta[0]), "directory")
		} else {
			isDir = meta[0] == "directory"
		}

		base := path.Base(name)
		entries = append(entries, &Entry{
			Name:        base,
			Path:        entryPath(dir, name),
			Kind:        classify(base, isDir),
			Size:        size,
			Permissions: strings.TrimSpace(meta[2]),
			Owner:       meta[3],
			Modified:    epochTime(epoch),
		})
	}
	return entries, bad
}

// parseLS reads `ls -1AF` output: one name per line with a trailing
// type indicator. Only name and kind are knowable on this path.
func parseLS(dir, out string) (entries []*Entry, bad []string) {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.HasPrefix(line, "ls:") {
			bad = append(bad, line)
			continue
		}
		name := line
		isDir := false
		switch {
		case strings.HasSuffix(name, "/"):
			name = strings.TrimSuffix(name, "/")
			isDir = true
		case strings.HasSuffix(name, "*"),
			strings.HasSuffix(name, "@"),
			strings.HasSuffix(name, "="),
			strings.HasSuffix(name, "|"):
			name = name[:len(name)-1]
		}
		if name == "" {
			continue
		}
		entries = append(entries, &Entry{
			Name: name,
			Path: entryPath(dir, name),
			Kind: classify(name, isDir),
		})
	}
	return entries, bad
}

// dialectMismatch reports whether the unparseable lines are a stat
// binary rejecting the other dialect's flags.
func dialectMismatch(bad []string) bool {
	for _, line := range bad {
		l := strings.ToLower(line)
		if strings.Contains(l, "illegal option") ||
			strings.Contains(l, "unrecognized option") ||
			strings.Contains(l, "invalid option") ||
			strings.Contains(l, "unknown option") ||
			strings.HasPrefix(l, "usage:") {
			return true
		}
	}
	return false
}

// emptyGlob reports whether the lines are stat complaining about the
// unexpanded glob patterns, which is what an empty directory looks
// like.
func emptyGlob(bad []string) bool {
	if len(bad) == 0 {
		return false
	}
	for _, line := range bad {
		if !strings.Contains(line, "*") {
			return false
		}
		if !strings.Contains(line, "No such file") &&
			!strings.Contains(line, "cannot stat") {
			return false
		}
	}
	return true
}

func noSuchPath(bad []string) bool {
	for _, line := range bad {
		if strings.Contains(strings.ToLower(line), "no such file") {
			return true
		}
	}
	return false
}

// missingDir reports whether the shell refused the cd into the target
func missingDir(bad []string) bool {
	for _, line := range bad {
		l := strings.ToLower(line)
		if strings.Contains(l, "cd:") || strings.Contains(l, "can't cd") {
			return true
		}
	}
	return false
}

func parseError(dialect string, bad []string) error {
	return &verrors.ParseError{Dialect: dialect, Lines: bad}
}
