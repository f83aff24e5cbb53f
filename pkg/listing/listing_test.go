package listing

import (
	"testing"
	"time"
)

func TestParseGNUStat(t *testing.T) {
	out := "photos|directory|4096|755|alice|1700000000\r\n" +
		"notes.txt|regular file|1204|644|alice|1700000100\r\n" +
		"clip.mp4|regular file|7340032|644|bob|1700000200\r\n" +
		"logo.png|regular file|51200|644|alice|1700000300\r\n" +
		".config|directory|4096|700|alice|1700000400\r\n" +
		"empty.log|regular empty file|0|640|root|1700000500\r\n"

	entries, bad := parseStatLines("/home/alice", out, false)
	if len(bad) != 0 {
		t.Fatalf("unexpected bad lines: %v", bad)
	}
	if len(entries) != 6 {
		t.Fatalf("entry count = %d, want 6", len(entries))
	}

	want := []struct {
		name  string
		path  string
		kind  Kind
		size  int64
		owner string
	}{
		{"photos", "/home/alice/photos", KindFolder, 4096, "alice"},
		{"notes.txt", "/home/alice/notes.txt", KindFile, 1204, "alice"},
		{"clip.mp4", "/home/alice/clip.mp4", KindVideo, 7340032, "bob"},
		{"logo.png", "/home/alice/logo.png", KindImage, 51200, "alice"},
		{".config", "/home/alice/.config", KindFolder, 4096, "alice"},
		{"empty.log", "/home/alice/empty.log", KindFile, 0, "root"},
	}
	for i, w := range want {
		e := entries[i]
		if e.Name != w.name || e.Path != w.path || e.Kind != w.kind ||
			e.Size != w.size || e.Owner != w.owner {
			t.Errorf("entry %d = %+v, want %+v", i, e, w)
		}
	}
	if got := entries[0].Modified; !got.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("modified = %v, want epoch 1700000000", got)
	}
	if entries[0].Permissions != "755" {
		t.Errorf("permissions = %q, want 755", entries[0].Permissions)
	}
}

func TestParseGNUStatNameWithPipe(t *testing.T) {
	out := "weird|name.txt|regular file|10|644|u|1700000000\n"
	entries, bad := parseStatLines("/tmp", out, false)
	if len(bad) != 0 || len(entries) != 1 {
		t.Fatalf("entries %d bad %v", len(entries), bad)
	}
	if entries[0].Name != "weird|name.txt" {
		t.Errorf("name = %q, want the pipe kept", entries[0].Name)
	}
}

func TestParseGNUStatAbsoluteName(t *testing.T) {
	out := "/var/log/syslog|regular file|2048|640|syslog|1700000000\n"
	entries, _ := parseStatLines("/var/log", out, false)
	if len(entries) != 1 {
		t.Fatalf("entry count = %d, want 1", len(entries))
	}
	if entries[0].Path != "/var/log/syslog" || entries[0].Name != "syslog" {
		t.Errorf("path %q name %q", entries[0].Path, entries[0].Name)
	}
}

func TestParseBSDStat(t *testing.T) {
	out := "Movies|Directory|128|0755|kim|1700000000\n" +
		"intro.mov|Regular File|104857600|0644|kim|1700000100\n"

	entries, bad := parseStatLines("/Users/kim", out, true)
	if len(bad) != 0 {
		t.Fatalf("unexpected bad lines: %v", bad)
	}
	if len(entries) != 2 {
		t.Fatalf("entry count = %d, want 2", len(entries))
	}
	if entries[0].Kind != KindFolder {
		t.Errorf("Directory type not recognized case-insensitively")
	}
	if entries[1].Kind != KindVideo {
		t.Errorf("intro.mov kind = %v, want video", entries[1].Kind)
	}
	if entries[0].Permissions != "0755" {
		t.Errorf("permissions = %q, want 0755", entries[0].Permissions)
	}
}

func TestParseStatBadLines(t *testing.T) {
	out := "good.txt|regular file|1|644|u|1700000000\n" +
		"stat: cannot stat '.[!.]*': No such file or directory\n" +
		"not enough fields\n"
	entries, bad := parseStatLines("/tmp", out, false)
	if len(entries) != 1 {
		t.Errorf("entry count = %d, want 1", len(entries))
	}
	if len(bad) != 2 {
		t.Errorf("bad count = %d, want 2: %v", len(bad), bad)
	}
}

func TestParseLS(t *testing.T) {
	out := "bin/\nREADME\nrun.sh*\nlink@\npipe|\nsock=\nmovie.mkv\n"
	entries, bad := parseLS("/srv", out)
	if len(bad) != 0 {
		t.Fatalf("unexpected bad lines: %v", bad)
	}
	want := []struct {
		name string
		kind Kind
	}{
		{"bin", KindFolder},
		{"README", KindFile},
		{"run.sh", KindFile},
		{"link", KindFile},
		{"pipe", KindFile},
		{"sock", KindFile},
		{"movie.mkv", KindVideo},
	}
	if len(entries) != len(want) {
		t.Fatalf("entry count = %d, want %d", len(entries), len(want))
	}
	for i, w := range want {
		if entries[i].Name != w.name || entries[i].Kind != w.kind {
			t.Errorf("entry %d = %s/%v, want %s/%v",
				i, entries[i].Name, entries[i].Kind, w.name, w.kind)
		}
	}
	if entries[0].Path != "/srv/bin" {
		t.Errorf("path = %q, want /srv/bin", entries[0].Path)
	}
}

func TestParseLSErrorLine(t *testing.T) {
	out := "ls: cannot access '/nope': No such file or directory\n"
	entries, bad := parseLS("/nope", out)
	if len(entries) != 0 {
		t.Errorf("error output produced %d entries", len(entries))
	}
	if len(bad) != 1 {
		t.Errorf("bad count = %d, want 1", len(bad))
	}
}

func TestSortFoldersFirst(t *testing.T) {
	entries := []*Entry{
		{Name: "zeta", Kind: KindFolder},
		{Name: "Alpha.txt", Kind: KindFile},
		{Name: "beta", Kind: KindFolder},
		{Name: "gamma.png", Kind: KindImage},
		{Name: "ALPHA", Kind: KindFolder},
	}
	Sort(entries)

	wantOrder := []string{"ALPHA", "beta", "zeta", "Alpha.txt", "gamma.png"}
	for i, w := range wantOrder {
		if entries[i].Name != w {
			got := make([]string, len(entries))
			for j, e := range entries {
				got[j] = e.Name
			}
			t.Fatalf("order = %v, want %v", got, wantOrder)
		}
	}
}

func TestDedupKeepsFirst(t *testing.T) {
	entries := []*Entry{
		{Name: "a", Path: "/x/a", Size: 1},
		{Name: "b", Path: "/x/b"},
		{Name: "a", Path: "/x/a", Size: 99},
	}
	out := Dedup(entries)
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	if out[0].Size != 1 {
		t.Error("dedup must keep the first occurrence")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		isDir bool
		want  Kind
	}{
		{"photo.JPG", false, KindImage},
		{"photo.jpeg", false, KindImage},
		{"clip.Mp4", false, KindVideo},
		{"movie.mp4", true, KindFolder},
		{"notes.txt", false, KindFile},
		{"Makefile", false, KindFile},
		{".hidden", false, KindFile},
		{"archive.tar.gz", false, KindFile},
	}
	for _, tt := range tests {
		if got := classify(tt.name, tt.isDir); got != tt.want {
			t.Errorf("classify(%q, %v) = %v, want %v", tt.name, tt.isDir, got, tt.want)
		}
	}
}

func TestCleanDir(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "."},
		{"/", "/"},
		{"/var/log", "/var/log"},
		{"/var/log/", "/var/log"},
		{"/var/log///", "/var/log"},
		{"//", "/"},
	}
	for _, tt := range tests {
		if got := cleanDir(tt.in); got != tt.want {
			t.Errorf("cleanDir(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
