// Package listing models remote directory contents. Entries come from
// parsing stat or ls output captured over a session; the parsers for
// the supported dialects live in this package too.
package listing

import (
	"path"
	"sort"
	"strings"
	"time"
)

// Kind classifies an entry for display purposes. Folders beat
// extension matches; images and videos are recognized by extension.
type Kind int

const (
	KindFile Kind = iota
	KindFolder
	KindImage
	KindVideo
)

func (k Kind) String() string {
	switch k {
	case KindFolder:
		return "folder"
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	default:
		return "file"
	}
}

func (k Kind) MarshalJSON() ([]byte, error) {
	return []byte(`"` + k.String() + `"`), nil
}

var imageExts = map[string]bool{
	".bmp":  true,
	".gif":  true,
	".heic": true,
	".ico":  true,
	".jpeg": true,
	".jpg":  true,
	".png":  true,
	".svg":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

var videoExts = map[string]bool{
	".avi":  true,
	".flv":  true,
	".m4v":  true,
	".mkv":  true,
	".mov":  true,
	".mp4":  true,
	".mpeg": true,
	".mpg":  true,
	".webm": true,
	".wmv":  true,
}

// Entry is one remote file or directory. Identity is the full Path;
// Name is just the base component.
type Entry struct {
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	Kind        Kind      `json:"kind"`
	Size        int64     `json:"size"`
	Permissions string    `json:"permissions,omitempty"`
	Owner       string    `json:"owner,omitempty"`
	Modified    time.Time `json:"modified,omitempty"`
}

func (e *Entry) IsDir() bool {
	return e.Kind == KindFolder
}

func classify(name string, isDir bool) Kind {
	if isDir {
		return KindFolder
	}
	ext := strings.ToLower(path.Ext(name))
	switch {
	case imageExts[ext]:
		return KindImage
	case videoExts[ext]:
		return KindVideo
	default:
		return KindFile
	}
}

// ClassifyName exposes the extension-based kind rules for callers that
// build entries from sources other than a listing.
func ClassifyName(name string, isDir bool) Kind {
	return classify(name, isDir)
}

func epochTime(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

// entryPath resolves a parsed name against the listed directory.
// Absolute names (stat on explicit paths) stand on their own.
func entryPath(dir, name string) string {
	if strings.HasPrefix(name, "/") {
		return path.Clean(name)
	}
	return path.Join(dir, name)
}

// Sort orders entries the way file browsers do: folders first, then
// everything else, case-insensitive by name within each group.
func Sort(entries []*Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		di, dj := entries[i].IsDir(), entries[j].IsDir()
		if di != dj {
			return di
		}
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})
}

// Dedup drops entries whose path was already seen, keeping the first
// occurrence and the original order.
func Dedup(entries []*Entry) []*Entry {
	seen := make(map[string]bool, len(entries))
	out := entries[:0]
	for _, e := range entries {
		if seen[e.Path] {
			continue
		}
		seen[e.Path] = true
		out = append(out, e)
	}
	return out
}
