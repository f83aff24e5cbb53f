package completion

import (
	"reflect"
	"testing"
	"time"

	"velo/pkg/inventory"
	"velo/pkg/listing"
)

func testInventory() *inventory.Inventory {
	return &inventory.Inventory{
		Targets: []inventory.Target{
			{Name: "web1", Host: "10.0.0.1"},
			{Name: "web2", Host: "10.0.0.2"},
			{Name: "db", Host: "10.0.0.3"},
		},
	}
}

func TestTargets(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		want   []string
	}{
		{"all", "", []string{"db", "local", "web1", "web2"}},
		{"web prefix", "web", []string{"web1", "web2"}},
		{"local prefix", "lo", []string{"local"}},
		{"no match", "zzz", []string{}},
	}

	inv := testInventory()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Targets(inv, tc.prefix)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Targets(%q) = %v, want %v", tc.prefix, got, tc.want)
			}
		})
	}
}

func TestSplitPath(t *testing.T) {
	tests := []struct {
		input  string
		dir    string
		prefix string
	}{
		{"", ".", ""},
		{"ng", ".", "ng"},
		{"/etc/ng", "/etc", "ng"},
		{"/etc/", "/etc", ""},
		{"/ng", "/", "ng"},
		{"var/log/sys", "var/log", "sys"},
	}

	for _, tc := range tests {
		dir, prefix := SplitPath(tc.input)
		if dir != tc.dir || prefix != tc.prefix {
			t.Errorf("SplitPath(%q) = (%q, %q), want (%q, %q)",
				tc.input, dir, prefix, tc.dir, tc.prefix)
		}
	}
}

func entry(name string, dir bool) *listing.Entry {
	return &listing.Entry{
		Name:     name,
		Path:     "/etc/" + name,
		Kind:     listing.ClassifyName(name, dir),
		Modified: time.Unix(1700000000, 0),
	}
}

func TestRemotePaths(t *testing.T) {
	entries := []*listing.Entry{
		entry("nginx", true),
		entry("network", true),
		entry("ngrc", false),
		entry("hosts", false),
	}

	got := RemotePaths(entries, "/etc/ng")
	want := []string{"/etc/nginx/", "/etc/ngrc"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("RemotePaths = %v, want %v", got, want)
	}
}

func TestRemotePathsRelative(t *testing.T) {
	entries := []*listing.Entry{
		entry("logs", true),
		entry("notes.txt", false),
	}

	got := RemotePaths(entries, "lo")
	want := []string{"logs/"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("RemotePaths = %v, want %v", got, want)
	}

	got = RemotePaths(entries, "")
	want = []string{"logs/", "notes.txt"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("RemotePaths(all) = %v, want %v", got, want)
	}
}
