package inventory

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeInventory(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "targets.yaml")
	if err := os.WriteFile(p, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadAppliesDefaults(t *testing.T) {
	p := writeInventory(t, `
defaults:
  user: deploy
  port: 2222
  keepalive: 45s
targets:
  - name: web1
    host: 10.0.0.5
  - name: db1
    host: 10.0.0.6
    user: postgres
    port: 5522
    keepalive: 90
  - name: here
    local: true
`)
	inv, err := Load(p)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(inv.Targets) != 3 {
		t.Fatalf("target count = %d, want 3", len(inv.Targets))
	}

	web, ok := inv.Find("web1")
	if !ok {
		t.Fatal("web1 not found")
	}
	if web.User != "deploy" || web.Port != 2222 {
		t.Errorf("defaults not applied: %+v", web)
	}
	if time.Duration(web.Keepalive) != 45*time.Second {
		t.Errorf("keepalive = %v, want 45s", time.Duration(web.Keepalive))
	}
	if web.Address() != "deploy@10.0.0.5:2222" {
		t.Errorf("address = %q", web.Address())
	}

	db, _ := inv.Find("db1")
	if db.User != "postgres" || db.Port != 5522 {
		t.Errorf("explicit values overridden: %+v", db)
	}
	if time.Duration(db.Keepalive) != 90*time.Second {
		t.Errorf("bare-int keepalive = %v, want 90s", time.Duration(db.Keepalive))
	}

	local, _ := inv.Find("here")
	if local.Address() != "local" {
		t.Errorf("local address = %q", local.Address())
	}
}

func TestDurationForms(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want time.Duration
		bad  bool
	}{
		{name: "unit string", yaml: `"45s"`, want: 45 * time.Second},
		{name: "compound string", yaml: `1m30s`, want: 90 * time.Second},
		{name: "bare seconds", yaml: `90`, want: 90 * time.Second},
		{name: "zero", yaml: `0`, want: 0},
		{name: "nonsense", yaml: `soon`, bad: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := writeInventory(t, "targets:\n  - name: web1\n    host: h\n    keepalive: "+tc.yaml+"\n")
			inv, err := Load(p)
			if tc.bad {
				if err == nil {
					t.Fatalf("keepalive %s must not parse", tc.yaml)
				}
				return
			}
			if err != nil {
				t.Fatalf("load failed: %v", err)
			}
			tgt, _ := inv.Find("web1")
			if got := time.Duration(tgt.Keepalive); got != tc.want {
				t.Errorf("keepalive = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDefaultPathFilename(t *testing.T) {
	t.Setenv("VELO_HOME", t.TempDir())
	if got := filepath.Base(DefaultPath()); got != "targets.yaml" {
		t.Errorf("inventory filename = %q, want targets.yaml", got)
	}
}

func TestLoadRejectsDuplicateNames(t *testing.T) {
	p := writeInventory(t, `
targets:
  - name: web1
    host: a
  - name: web1
    host: b
`)
	if _, err := Load(p); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("expected duplicate-name error, got %v", err)
	}
}

func TestLoadRejectsMissingHost(t *testing.T) {
	p := writeInventory(t, `
targets:
  - name: broken
`)
	if _, err := Load(p); err == nil || !strings.Contains(err.Error(), "no host") {
		t.Errorf("expected missing-host error, got %v", err)
	}
}

func TestPasswordFromEnv(t *testing.T) {
	tgt := Target{Name: "web1", Host: "h", PasswordEnv: "VELO_TEST_PW"}

	t.Setenv("VELO_TEST_PW", "hunter2")
	pw, ok := tgt.Password()
	if !ok || pw != "hunter2" {
		t.Errorf("password = %q, %v", pw, ok)
	}

	t.Setenv("VELO_TEST_PW", "")
	if _, ok := tgt.Password(); ok {
		t.Error("empty env value must count as no password")
	}

	none := Target{Name: "x", Host: "h"}
	if _, ok := none.Password(); ok {
		t.Error("target without password_env must have no password")
	}
}

func TestSecretFunc(t *testing.T) {
	t.Setenv("VELO_TEST_PW", "hunter2")
	inv := &Inventory{Targets: []Target{
		{Name: "web1", Host: "10.0.0.5", User: "deploy", Port: 22, PasswordEnv: "VELO_TEST_PW"},
	}}
	lookup := inv.SecretFunc()

	if pw, ok := lookup("web1"); !ok || pw != "hunter2" {
		t.Errorf("lookup by name = %q, %v", pw, ok)
	}
	if pw, ok := lookup("deploy@10.0.0.5:22"); !ok || pw != "hunter2" {
		t.Errorf("lookup by address = %q, %v", pw, ok)
	}
	if _, ok := lookup("stranger@host:22"); ok {
		t.Error("unknown target must have no secret")
	}
}

func TestResolve(t *testing.T) {
	inv := &Inventory{
		Defaults: Defaults{User: "deploy"},
		Targets: []Target{
			{Name: "web1", Host: "10.0.0.5", User: "deploy", Port: 22},
		},
	}

	_, label, err := inv.Resolve("web1", nil)
	if err != nil {
		t.Fatalf("resolve by name failed: %v", err)
	}
	if label != "deploy@10.0.0.5:22" {
		t.Errorf("label = %q", label)
	}

	_, label, err = inv.Resolve("root@192.168.1.1:2222", nil)
	if err != nil {
		t.Fatalf("ad-hoc resolve failed: %v", err)
	}
	if label != "root@192.168.1.1:2222" {
		t.Errorf("ad-hoc label = %q", label)
	}

	_, label, err = inv.Resolve("local", nil)
	if err != nil || label != "local" {
		t.Errorf("local resolve = %q, %v", label, err)
	}

	if _, _, err := inv.Resolve("nonsense", nil); err == nil {
		t.Error("unknown bare name must not resolve")
	}
}

func TestLoadDefaultMissingFile(t *testing.T) {
	t.Setenv("VELO_HOME", t.TempDir())
	inv, err := LoadDefault()
	if err != nil {
		t.Fatalf("missing inventory must not error: %v", err)
	}
	if len(inv.Targets) != 0 {
		t.Errorf("expected empty inventory, got %d targets", len(inv.Targets))
	}
}
