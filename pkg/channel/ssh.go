package channel

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/user"
	"strconv"
	"sync"
	"time"

	"velo/pkg/conf"
	"velo/pkg/keys"
	"velo/pkg/session"
	"velo/pkg/vlog"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// SSHConfig describes one remote shell target. Transport-level
// authentication (key, agent, login password) happens here; in-shell
// prompts after connect are the credential injector's business.
type SSHConfig struct {
	Target        string // "user@host[:port]", parsed unless User/Host set
	User          string
	Host          string
	Port          int
	Password      string
	KeyPath       string
	KeyPassphrase string
	// Fingerprint pins the host key (SHA256:...). Empty accepts any.
	Fingerprint string
	Keepalive   time.Duration
	Logger      *vlog.Logger
}

// SSHChannel is an interactive shell riding one SSH connection. The
// underlying client stays reachable for collaborators that multiplex
// more channels over it (sftp, forwarding).
type SSHChannel struct {
	client *ssh.Client
	shell  *ssh.Session
	stdin  io.WriteCloser
	stdout io.Reader
	target string
	logger *vlog.Logger

	stopKeepalive chan struct{}
	closeOnce     sync.Once
	closeErr      error
}

func (c *SSHChannel) Read(p []byte) (int, error)  { return c.stdout.Read(p) }
func (c *SSHChannel) Write(p []byte) (int, error) { return c.stdin.Write(p) }
func (c *SSHChannel) Target() string              { return c.target }

// Client exposes the SSH transport for channel multiplexing
func (c *SSHChannel) Client() *ssh.Client { return c.client }

func (c *SSHChannel) Resize(cols, rows uint32) error {
	return c.shell.WindowChange(int(rows), int(cols))
}

func (c *SSHChannel) Close() error {
	c.closeOnce.Do(func() {
		close(c.stopKeepalive)
		_ = c.shell.Close()
		c.closeErr = c.client.Close()
	})
	return c.closeErr
}

// SSH returns a factory dialing cfg on each session connect
func SSH(cfg SSHConfig) session.ChannelFactory {
	return func(ctx context.Context) (session.Channel, error) {
		return dialSSH(ctx, cfg)
	}
}

func dialSSH(ctx context.Context, cfg SSHConfig) (*SSHChannel, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = vlog.NewLogger("channel")
	}

	if cfg.Host == "" && cfg.Target != "" {
		u, h, p, err := ParseTarget(cfg.Target)
		if err != nil {
			return nil, err
		}
		if cfg.User == "" {
			cfg.User = u
		}
		cfg.Host = h
		if cfg.Port == 0 {
			cfg.Port = p
		}
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("ssh channel has no host")
	}
	if cfg.Port == 0 {
		cfg.Port = conf.DefaultSSHPort
	}
	if cfg.User == "" {
		if u, err := user.Current(); err == nil {
			cfg.User = u.Username
		}
	}
	target := cfg.Target
	if target == "" {
		target = fmt.Sprintf("%s@%s:%d", cfg.User, cfg.Host, cfg.Port)
	}

	methods := authMethods(cfg, logger)
	if len(methods) == 0 {
		return nil, fmt.Errorf("no usable authentication for %s", target)
	}

	clientCfg := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            methods,
		HostKeyCallback: keys.FingerprintCallback(cfg.Fingerprint),
		Timeout:         conf.ConnectTimeout,
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s - %v", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientCfg)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s failed - %v", addr, err)
	}
	_ = conn.SetDeadline(time.Time{})
	client := ssh.NewClient(sshConn, chans, reqs)

	ch, err := startShell(client, target, logger)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	interval := cfg.Keepalive
	if interval == 0 {
		interval = conf.Keepalive
	}
	if interval < conf.MinKeepAlive {
		interval = conf.MinKeepAlive
	}
	go ch.keepalive(interval)

	logger.DebugWith("ssh shell established",
		vlog.F("target", target),
		vlog.F("addr", addr))
	return ch, nil
}

func startShell(client *ssh.Client, target string, logger *vlog.Logger) (*SSHChannel, error) {
	shell, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to open shell channel - %v", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := shell.RequestPty("xterm-256color",
		conf.DefaultTerminalHeight, conf.DefaultTerminalWidth, modes); err != nil {
		_ = shell.Close()
		return nil, fmt.Errorf("pty request failed - %v", err)
	}

	stdin, err := shell.StdinPipe()
	if err != nil {
		_ = shell.Close()
		return nil, fmt.Errorf("stdin pipe failed - %v", err)
	}
	stdout, err := shell.StdoutPipe()
	if err != nil {
		_ = shell.Close()
		return nil, fmt.Errorf("stdout pipe failed - %v", err)
	}

	if err := shell.Shell(); err != nil {
		_ = shell.Close()
		return nil, fmt.Errorf("shell start failed - %v", err)
	}

	return &SSHChannel{
		client:        client,
		shell:         shell,
		stdin:         stdin,
		stdout:        stdout,
		target:        target,
		logger:        logger,
		stopKeepalive: make(chan struct{}),
	}, nil
}

// authMethods builds the transport auth chain: explicit key, then
// agent, then password (also answering keyboard-interactive servers).
func authMethods(cfg SSHConfig, logger *vlog.Logger) []ssh.AuthMethod {
	var methods []ssh.AuthMethod

	if cfg.KeyPath != "" {
		signer, err := keys.SignerFromFile(cfg.KeyPath, cfg.KeyPassphrase)
		if err != nil {
			logger.WarnWith("ssh key unusable, skipping",
				vlog.F("path", cfg.KeyPath),
				vlog.F("err", err))
		} else {
			methods = append(methods, ssh.PublicKeys(signer))
		}
	}

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}

	if cfg.Password != "" {
		password := cfg.Password
		methods = append(methods,
			ssh.Password(password),
			ssh.KeyboardInteractive(func(name, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range questions {
					answers[i] = password
				}
				return answers, nil
			}),
		)
	}
	return methods
}

// keepalive pings the server over an OOB global request so NAT
// timeouts and dead peers are noticed even while no command runs.
func (c *SSHChannel) keepalive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, _, err := c.client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				c.logger.DebugWith("keepalive lost",
					vlog.F("target", c.target),
					vlog.F("err", err))
				return
			}
		case <-c.stopKeepalive:
			return
		}
	}
}
