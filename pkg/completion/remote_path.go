package completion

import (
	"strings"

	"velo/pkg/listing"
)

// SplitPath breaks a partially typed remote path into the directory
// to list and the name prefix to match. "/etc/ng" lists /etc and
// matches "ng"; a bare name lists ".".
func SplitPath(input string) (dir, prefix string) {
	idx := strings.LastIndex(input, "/")
	if idx < 0 {
		return ".", input
	}
	if idx == 0 {
		return "/", input[1:]
	}
	return input[:idx], input[idx+1:]
}

// RemotePaths maps directory entries onto completion candidates for
// input. Directories get a trailing slash so completion can descend;
// matching is case-sensitive prefix on the name component.
func RemotePaths(entries []*listing.Entry, input string) []string {
	dir, prefix := SplitPath(input)

	base := ""
	if dir == "/" {
		base = "/"
	} else if dir != "." {
		base = dir + "/"
	}

	var matches []string
	for _, e := range entries {
		if !strings.HasPrefix(e.Name, prefix) {
			continue
		}
		candidate := base + e.Name
		if e.IsDir() {
			candidate += "/"
		}
		matches = append(matches, candidate)
	}
	return matches
}
