// Package inventory loads the target registry: named hosts with their
// connection settings. Secrets never live in the file; a target may
// name an environment variable the password is read from at use time.
package inventory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"velo/pkg/channel"
	"velo/pkg/conf"
	"velo/pkg/creds"
	"velo/pkg/session"
	"velo/pkg/vlog"

	"gopkg.in/yaml.v3"
)

const inventoryFile = "targets.yaml"

// Duration adds yaml decoding for both "60s" strings and bare seconds
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	// A bare integer scalar decodes into a string just fine, so the
	// numeric form has to be recognized on the scalar text, not by a
	// failed string decode
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration value")
	}
	if n, err := strconv.Atoi(s); err == nil {
		*d = Duration(time.Duration(n) * time.Second)
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q", s)
	}
	*d = Duration(parsed)
	return nil
}

type Defaults struct {
	User      string   `yaml:"user,omitempty"`
	Port      int      `yaml:"port,omitempty"`
	Keepalive Duration `yaml:"keepalive,omitempty"`
}

type Target struct {
	Name        string `yaml:"name"`
	Host        string `yaml:"host,omitempty"`
	User        string `yaml:"user,omitempty"`
	Port        int    `yaml:"port,omitempty"`
	KeyPath     string `yaml:"key,omitempty"`
	Fingerprint string `yaml:"fingerprint,omitempty"`
	// PasswordEnv names the environment variable holding the
	// password, keeping the secret itself out of this file
	PasswordEnv string   `yaml:"password_env,omitempty"`
	Keepalive   Duration `yaml:"keepalive,omitempty"`
	// Local marks the target as this machine's own shell
	Local bool `yaml:"local,omitempty"`
}

type Inventory struct {
	Defaults Defaults `yaml:"defaults,omitempty"`
	Targets  []Target `yaml:"targets"`
}

// DefaultPath is where the inventory lives under the velo home
func DefaultPath() string {
	return filepath.Join(conf.GetVeloHome(), inventoryFile)
}

// Load reads and validates an inventory file
func Load(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory - %v", err)
	}
	inv := &Inventory{}
	if err := yaml.Unmarshal(data, inv); err != nil {
		return nil, fmt.Errorf("failed to parse inventory - %v", err)
	}
	if err := inv.validate(); err != nil {
		return nil, err
	}
	inv.applyDefaults()
	return inv, nil
}

// LoadDefault reads the inventory from the velo home. A missing file
// is an empty inventory, not an error.
func LoadDefault() (*Inventory, error) {
	path := DefaultPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &Inventory{}, nil
	}
	return Load(path)
}

func (inv *Inventory) validate() error {
	seen := make(map[string]bool, len(inv.Targets))
	for i, t := range inv.Targets {
		if t.Name == "" {
			return fmt.Errorf("target %d has no name", i)
		}
		if seen[t.Name] {
			return fmt.Errorf("duplicate target name %q", t.Name)
		}
		seen[t.Name] = true
		if !t.Local && t.Host == "" {
			return fmt.Errorf("target %q has no host", t.Name)
		}
	}
	return nil
}

func (inv *Inventory) applyDefaults() {
	for i := range inv.Targets {
		t := &inv.Targets[i]
		if t.Local {
			continue
		}
		if t.User == "" {
			t.User = inv.Defaults.User
		}
		if t.Port == 0 {
			t.Port = inv.Defaults.Port
		}
		if t.Port == 0 {
			t.Port = conf.DefaultSSHPort
		}
		if t.Keepalive == 0 {
			t.Keepalive = inv.Defaults.Keepalive
		}
	}
}

// Find resolves a target by name
func (inv *Inventory) Find(name string) (*Target, bool) {
	for i := range inv.Targets {
		if inv.Targets[i].Name == name {
			return &inv.Targets[i], true
		}
	}
	return nil, false
}

// Names lists the configured target names in file order
func (inv *Inventory) Names() []string {
	names := make([]string, 0, len(inv.Targets))
	for _, t := range inv.Targets {
		names = append(names, t.Name)
	}
	return names
}

// Address is the canonical user@host:port form used as the session
// target label
func (t *Target) Address() string {
	if t.Local {
		return "local"
	}
	if t.User == "" {
		return fmt.Sprintf("%s:%d", t.Host, t.Port)
	}
	return fmt.Sprintf("%s@%s:%d", t.User, t.Host, t.Port)
}

// Password resolves the target's password from its environment
// variable, if one is configured
func (t *Target) Password() (string, bool) {
	if t.PasswordEnv == "" {
		return "", false
	}
	v, ok := os.LookupEnv(t.PasswordEnv)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Factory builds the channel factory for this target
func (t *Target) Factory(logger *vlog.Logger) session.ChannelFactory {
	if t.Local {
		return channel.Local(logger)
	}
	password, _ := t.Password()
	return channel.SSH(channel.SSHConfig{
		Target:      t.Address(),
		User:        t.User,
		Host:        t.Host,
		Port:        t.Port,
		Password:    password,
		KeyPath:     expandHome(t.KeyPath),
		Fingerprint: t.Fingerprint,
		Keepalive:   time.Duration(t.Keepalive),
		Logger:      logger,
	})
}

// Resolve maps a name or ad-hoc user@host[:port] spec onto a channel
// factory and the canonical target label. Unknown names that do not
// look like an address are an error.
func (inv *Inventory) Resolve(spec string, logger *vlog.Logger) (session.ChannelFactory, string, error) {
	if spec == "" || spec == "local" {
		return channel.Local(logger), "local", nil
	}
	if t, ok := inv.Find(spec); ok {
		return t.Factory(logger), t.Address(), nil
	}
	if strings.Contains(spec, "@") {
		adhoc := Target{Name: spec, Host: spec}
		u, h, p, err := channel.ParseTarget(spec)
		if err != nil {
			return nil, "", err
		}
		adhoc.User, adhoc.Host, adhoc.Port = u, h, p
		if adhoc.User == "" {
			adhoc.User = inv.Defaults.User
		}
		return adhoc.Factory(logger), adhoc.Address(), nil
	}
	return nil, "", fmt.Errorf("unknown target %q", spec)
}

// SecretFunc adapts the inventory into the credential lookup the
// session's injector uses: target label in, password out.
func (inv *Inventory) SecretFunc() creds.SecretFunc {
	return func(target string) (string, bool) {
		for i := range inv.Targets {
			t := &inv.Targets[i]
			if t.Name == target || t.Address() == target {
				return t.Password()
			}
		}
		return "", false
	}
}

// PoolConfig assembles the session pool configuration for this
// inventory
func (inv *Inventory) PoolConfig(logger *vlog.Logger) session.PoolConfig {
	return session.PoolConfig{
		Logger:  logger,
		Secrets: inv.SecretFunc(),
		Factory: func(target string) session.ChannelFactory {
			factory, _, err := inv.Resolve(target, logger)
			if err != nil {
				return func(ctx context.Context) (session.Channel, error) {
					return nil, err
				}
			}
			return factory
		},
	}
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}
