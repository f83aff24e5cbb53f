// Package service probes well-known server software on a target:
// whether it is installed, whether it runs, which version, where its
// configuration lives. Service types are looked up through a registry
// keyed by name; adding one means registering a Prober, not extending
// a switch.
package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"velo/pkg/session"
)

// Runner executes read-only probe commands on a target
type Runner interface {
	QuickExecute(ctx context.Context, command string) (*session.CommandResult, error)
}

// Prober answers the probe questions for one service type
type Prober interface {
	// Key names the service in API paths and CLI arguments
	Key() string
	// Status reports whether the service is installed and running
	Status(ctx context.Context, run Runner) (installed, running bool, err error)
	// Version returns the installed version, empty when undetectable
	Version(ctx context.Context, run Runner) (string, error)
	// Config returns the main configuration file path, empty when
	// none of the usual locations exist
	Config(ctx context.Context, run Runner) (string, error)
}

// Report is the combined outcome of probing one service
type Report struct {
	Key       string `json:"key"`
	Installed bool   `json:"installed"`
	Running   bool   `json:"running"`
	Version   string `json:"version,omitempty"`
	Config    string `json:"config,omitempty"`
}

// Registry resolves service keys to their probers
type Registry struct {
	mu      sync.RWMutex
	probers map[string]Prober
}

func NewRegistry() *Registry {
	return &Registry{probers: make(map[string]Prober)}
}

// Builtin returns a registry with every built-in prober registered
func Builtin() *Registry {
	r := NewRegistry()
	for _, p := range builtinProbers() {
		if err := r.Register(p); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a prober. Registering a key twice is an error.
func (r *Registry) Register(p Prober) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.probers[p.Key()]; ok {
		return fmt.Errorf("service %q already registered", p.Key())
	}
	r.probers[p.Key()] = p
	return nil
}

// Lookup resolves a service key
func (r *Registry) Lookup(key string) (Prober, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.probers[key]
	return p, ok
}

// Keys lists the registered service keys, sorted
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.probers))
	for k := range r.probers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Probe builds the full report for one service. Version and config
// failures degrade to empty fields; only runner-level failures error.
func (r *Registry) Probe(ctx context.Context, key string, run Runner) (*Report, error) {
	p, ok := r.Lookup(key)
	if !ok {
		return nil, fmt.Errorf("unknown service %q", key)
	}

	installed, running, err := p.Status(ctx, run)
	if err != nil {
		return nil, err
	}

	report := &Report{Key: key, Installed: installed, Running: running}
	if !installed {
		return report, nil
	}

	if v, vErr := p.Version(ctx, run); vErr == nil {
		report.Version = v
	}
	if c, cErr := p.Config(ctx, run); cErr == nil {
		report.Config = c
	}
	return report, nil
}

// ========================================
// Built-in probers
// ========================================

// unitProber covers software managed as a system unit with a
// resolvable binary, which is every built-in service type. The probe
// commands stay read-only.
type unitProber struct {
	key    string
	binary string
	// units holds the unit name candidates; any one active counts as
	// running
	units      []string
	versionCmd string
	// versionOf extracts the version from the command output; nil
	// takes the first non-empty line
	versionOf func(raw string) string
	// configPaths are checked in order, the first existing one wins
	configPaths []string
}

func (p *unitProber) Key() string { return p.key }

// statusCommand probes binary presence and unit activity in one round
// trip, which matters on high-latency targets
func (p *unitProber) statusCommand() string {
	var b strings.Builder
	b.WriteString("command -v -- ")
	b.WriteString(session.Quote(p.binary))
	b.WriteString(" >/dev/null 2>&1 && printf 'installed\\n'; systemctl is-active --")
	for _, u := range p.units {
		b.WriteString(" ")
		b.WriteString(session.Quote(u))
	}
	b.WriteString(" 2>/dev/null")
	return b.String()
}

func (p *unitProber) Status(ctx context.Context, run Runner) (bool, bool, error) {
	res, err := run.QuickExecute(ctx, p.statusCommand())
	if err != nil {
		return false, false, err
	}

	var installed, running bool
	for _, line := range strings.Split(res.Output, "\n") {
		switch strings.TrimSpace(line) {
		case "installed":
			installed = true
		case "active":
			running = true
		}
	}
	return installed, running, nil
}

func (p *unitProber) Version(ctx context.Context, run Runner) (string, error) {
	res, err := run.QuickExecute(ctx, p.versionCmd)
	if err != nil {
		return "", err
	}
	if res.Failed() || res.TimedOut {
		return "", nil
	}
	if p.versionOf != nil {
		return p.versionOf(res.Output), nil
	}
	return firstLine(res.Output), nil
}

func (p *unitProber) Config(ctx context.Context, run Runner) (string, error) {
	if len(p.configPaths) == 0 {
		return "", nil
	}
	var b strings.Builder
	b.WriteString("for f in")
	for _, c := range p.configPaths {
		b.WriteString(" ")
		b.WriteString(session.Quote(c))
	}
	b.WriteString("; do [ -e \"$f\" ] && printf '%s\\n' \"$f\" && break; done")

	res, err := run.QuickExecute(ctx, b.String())
	if err != nil {
		return "", err
	}
	return firstLine(res.Output), nil
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// versionAfter extracts the token following a marker, e.g.
// "nginx version: nginx/1.24.0" with marker "nginx/" yields "1.24.0"
func versionAfter(marker string) func(string) string {
	return func(raw string) string {
		line := firstLine(raw)
		idx := strings.Index(line, marker)
		if idx < 0 {
			return line
		}
		rest := line[idx+len(marker):]
		if sp := strings.IndexAny(rest, " \t,"); sp >= 0 {
			rest = rest[:sp]
		}
		return rest
	}
}

func builtinProbers() []Prober {
	return []Prober{
		&unitProber{
			key:         "nginx",
			binary:      "nginx",
			units:       []string{"nginx"},
			versionCmd:  "nginx -v 2>&1",
			versionOf:   versionAfter("nginx/"),
			configPaths: []string{"/etc/nginx/nginx.conf", "/usr/local/etc/nginx/nginx.conf"},
		},
		&unitProber{
			key:         "mysql",
			binary:      "mysql",
			units:       []string{"mysql", "mysqld", "mariadb"},
			versionCmd:  "mysql --version",
			configPaths: []string{"/etc/mysql/my.cnf", "/etc/my.cnf"},
		},
		&unitProber{
			key:         "postgresql",
			binary:      "psql",
			units:       []string{"postgresql"},
			versionCmd:  "psql --version",
			versionOf:   versionAfter("(PostgreSQL) "),
			configPaths: []string{"/etc/postgresql", "/var/lib/pgsql/data/postgresql.conf"},
		},
		&unitProber{
			key:         "redis",
			binary:      "redis-server",
			units:       []string{"redis", "redis-server"},
			versionCmd:  "redis-server --version",
			versionOf:   versionAfter("v="),
			configPaths: []string{"/etc/redis/redis.conf", "/etc/redis.conf"},
		},
		&unitProber{
			key:         "docker",
			binary:      "docker",
			units:       []string{"docker"},
			versionCmd:  "docker --version",
			versionOf:   versionAfter("Docker version "),
			configPaths: []string{"/etc/docker/daemon.json"},
		},
		&unitProber{
			key:         "php-fpm",
			binary:      "php",
			units:       []string{"php-fpm", "php8.3-fpm", "php8.2-fpm", "php8.1-fpm", "php7.4-fpm"},
			versionCmd:  "php -v",
			versionOf:   versionAfter("PHP "),
			configPaths: []string{"/etc/php-fpm.conf", "/etc/php"},
		},
		&unitProber{
			key:         "ufw",
			binary:      "ufw",
			units:       []string{"ufw"},
			versionCmd:  "ufw --version",
			versionOf:   versionAfter("ufw "),
			configPaths: []string{"/etc/ufw/ufw.conf"},
		},
	}
}
