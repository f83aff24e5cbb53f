// Package vproxy runs a local SOCKS5 endpoint whose outbound
// connections are dialed by a session's transport, turning any
// connected target into an egress point. Sessions on a local shell
// dial directly.
package vproxy

import (
	"context"
	"fmt"
	"net"
	"sync"

	"velo/pkg/channel"
	"velo/pkg/session"
	"velo/pkg/vlog"

	"github.com/armon/go-socks5"
)

// DialFunc opens an outbound connection on behalf of a proxied client
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Session is the part of a live session the proxy needs
type Session interface {
	ID() string
	Target() string
	Channel() session.Channel
}

// passthroughResolver leaves names unresolved so they travel to the
// dialing side verbatim. A name reaching the target over SSH must
// resolve on the target, not here.
type passthroughResolver struct{}

func (passthroughResolver) Resolve(ctx context.Context, name string) (context.Context, net.IP, error) {
	return ctx, nil, nil
}

type Config struct {
	Logger *vlog.Logger
	// Port to listen on, 0 picks a free one
	Port int
	// Expose binds all interfaces instead of loopback
	Expose bool
}

// Proxy is one running SOCKS5 endpoint bound to one session
type Proxy struct {
	target    string
	server    *socks5.Server
	listener  net.Listener
	port      int
	logger    *vlog.Logger
	closeOnce sync.Once
}

// New builds the proxy for a connected session and binds its listener.
// Call Serve to start accepting.
func New(sess Session, cfg Config) (*Proxy, error) {
	ch := sess.Channel()
	if ch == nil {
		return nil, fmt.Errorf("session %s is not connected", sess.ID())
	}

	var dial DialFunc
	if provider, ok := ch.(channel.ClientProvider); ok {
		dial = provider.Client().DialContext
	} else {
		var d net.Dialer
		dial = d.DialContext
	}

	return newProxy(sess.Target(), dial, cfg)
}

func newProxy(target string, dial DialFunc, cfg Config) (*Proxy, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = vlog.NewLogger("vproxy")
	}

	server, err := socks5.New(&socks5.Config{
		Dial:     dial,
		Resolver: passthroughResolver{},
		Logger:   vlog.NewDummyLog(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 server - %v", err)
	}

	bindAddr := "127.0.0.1"
	if cfg.Expose {
		bindAddr = "0.0.0.0"
	}
	listener, lErr := net.Listen("tcp", fmt.Sprintf("%s:%d", bindAddr, cfg.Port))
	if lErr != nil {
		return nil, fmt.Errorf("failed to create listener - %v", lErr)
	}

	return &Proxy{
		target:   target,
		server:   server,
		listener: listener,
		port:     listener.Addr().(*net.TCPAddr).Port,
		logger:   logger,
	}, nil
}

// Port returns the bound listener port
func (p *Proxy) Port() int {
	return p.port
}

// Addr returns the bound listener address
func (p *Proxy) Addr() string {
	return p.listener.Addr().String()
}

// Target returns the session target this proxy egresses through
func (p *Proxy) Target() string {
	return p.target
}

// Serve accepts and serves SOCKS5 connections until Stop closes the
// listener. It blocks.
func (p *Proxy) Serve() {
	p.logger.InfoWith("SOCKS endpoint listening",
		vlog.F("target", p.target),
		vlog.F("port", p.port))

	for {
		conn, aErr := p.listener.Accept()
		if aErr != nil {
			p.logger.InfoWith("SOCKS endpoint down", vlog.F("target", p.target))
			return
		}

		go func(c net.Conn) {
			defer func() { _ = c.Close() }()
			p.logger.DebugWith("Serving SOCKS connection",
				vlog.F("remote", c.RemoteAddr()))
			if sErr := p.server.ServeConn(c); sErr != nil {
				p.logger.DebugWith("SOCKS connection error", vlog.F("err", sErr))
			}
		}(conn)
	}
}

// Stop closes the listener, unwinding Serve. Safe to call more than
// once.
func (p *Proxy) Stop() error {
	var err error
	p.closeOnce.Do(func() {
		err = p.listener.Close()
	})
	return err
}

// Manager enforces at most one proxy per session and tracks the live
// ones for the daemon
type Manager struct {
	logger *vlog.Logger
	mu     sync.Mutex
	active map[string]*Proxy
}

func NewManager(logger *vlog.Logger) *Manager {
	return &Manager{
		logger: logger,
		active: make(map[string]*Proxy),
	}
}

// Start binds a proxy for the session and serves it in the background.
// A session that already has one keeps it; starting a second is an
// error.
func (m *Manager) Start(sess Session, cfg Config) (*Proxy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.active[sess.ID()]; ok {
		return nil, fmt.Errorf("session %s already has a proxy on port %d",
			sess.ID(), p.Port())
	}

	if cfg.Logger == nil {
		cfg.Logger = m.logger
	}
	p, err := New(sess, cfg)
	if err != nil {
		return nil, err
	}
	m.active[sess.ID()] = p

	go func() {
		p.Serve()
		m.forget(sess.ID(), p)
	}()

	return p, nil
}

func (m *Manager) forget(sessionID string, p *Proxy) {
	m.mu.Lock()
	if m.active[sessionID] == p {
		delete(m.active, sessionID)
	}
	m.mu.Unlock()
}

// Get returns the running proxy for a session, if any
func (m *Manager) Get(sessionID string) (*Proxy, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.active[sessionID]
	return p, ok
}

// Stop shuts the session's proxy down
func (m *Manager) Stop(sessionID string) error {
	m.mu.Lock()
	p, ok := m.active[sessionID]
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("session %s has no running proxy", sessionID)
	}
	return p.Stop()
}

// StopAll shuts every running proxy down
func (m *Manager) StopAll() {
	m.mu.Lock()
	proxies := make([]*Proxy, 0, len(m.active))
	for _, p := range m.active {
		proxies = append(proxies, p)
	}
	m.mu.Unlock()

	for _, p := range proxies {
		_ = p.Stop()
	}
}
