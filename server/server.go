// Package server is the velo daemon: a JSON/WebSocket API over the
// session engine. It owns the session pool, resolves targets through
// the inventory, and exposes command execution, file operations,
// transfers, service probes and SOCKS proxies over HTTP.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"velo/pkg/auth"
	"velo/pkg/conf"
	"velo/pkg/fileops"
	"velo/pkg/inventory"
	"velo/pkg/keys"
	"velo/pkg/listing"
	"velo/pkg/service"
	"velo/pkg/session"
	"velo/pkg/transfer"
	"velo/pkg/vlog"
	"velo/pkg/vproxy"
)

// Server wires the engine together behind the HTTP API
type Server struct {
	conf     *Config
	logger   *vlog.Logger
	inv      *inventory.Inventory
	pool     *session.Pool
	services *service.Registry
	proxies  *vproxy.Manager
	stats    *statsCollector

	// secret signs API tokens. Derived fresh from an ephemeral seed
	// on every start, so tokens do not outlive the process.
	secret []byte

	started time.Time
	httpSrv *http.Server

	// toolsMu guards the per-session collaborator cache
	toolsMu sync.Mutex
	tools   map[string]*sessionTools
}

// sessionTools caches the stateful per-session collaborators, mainly
// so the lister keeps its negotiated dialect and the transfer client
// its SFTP subsystem between requests
type sessionTools struct {
	lister *listing.Lister
	ops    *fileops.Ops
	xfer   *transfer.Client
}

// New assembles a stopped daemon from its configuration
func New(cfg *Config, logger *vlog.Logger) (*Server, error) {
	if logger == nil {
		logger = vlog.NewLogger(conf.Banner)
	}

	inv, err := loadInventory(cfg)
	if err != nil {
		return nil, err
	}

	kp, err := keys.NewEd25519KeyPair()
	if err != nil {
		return nil, fmt.Errorf("failed to generate token seed - %v", err)
	}
	secret := auth.DeriveSecret([]byte(kp.PrivateKey), "velo-api-token")

	s := &Server{
		conf:     cfg,
		logger:   logger,
		inv:      inv,
		pool:     session.NewPool(inv.PoolConfig(logger)),
		services: service.Builtin(),
		proxies:  vproxy.NewManager(logger),
		stats:    newStatsCollector(cfg.StatsInterval),
		secret:   secret,
		tools:    make(map[string]*sessionTools),
	}
	return s, nil
}

func loadInventory(cfg *Config) (*inventory.Inventory, error) {
	if cfg.Inventory != "" {
		return inventory.Load(cfg.Inventory)
	}
	return inventory.LoadDefault()
}

// Start binds the listener and serves until Shutdown or a listener
// error. It blocks, run it from a goroutine when the caller needs to
// keep going.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.conf.ListenAddr())
	if err != nil {
		return fmt.Errorf("failed to bind %s - %v", s.conf.ListenAddr(), err)
	}
	return s.Serve(ln)
}

// Serve runs the API on an already bound listener
func (s *Server) Serve(ln net.Listener) error {
	s.started = time.Now()
	s.stats.Start()

	s.httpSrv = &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          vlog.NewDummyLog(),
	}

	if s.conf.AdminPassword == "" {
		s.logger.Warnf("VELO_ADMIN_PASSWORD is not set, API login is disabled")
	}
	s.logger.InfoWith("Daemon listening",
		vlog.F("addr", ln.Addr().String()),
		vlog.F("version", conf.Version),
		vlog.F("targets", len(s.inv.Targets)),
	)

	err := s.httpSrv.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains the HTTP server, then tears down proxies, sessions
// and the stats collector.
func (s *Server) Shutdown(ctx context.Context) error {
	var httpErr error
	if s.httpSrv != nil {
		httpErr = s.httpSrv.Shutdown(ctx)
	}

	s.proxies.StopAll()
	s.pool.CloseAll()
	s.stats.Stop()

	s.logger.Infof("Daemon stopped")
	return httpErr
}

// sessionByID resolves a pooled session from a request path id
func (s *Server) sessionByID(id string) (*session.Session, error) {
	sess, ok := s.pool.ByID(id)
	if !ok {
		return nil, fmt.Errorf("unknown session %q", id)
	}
	return sess, nil
}

// toolsFor returns the cached collaborators for sess, building them
// on first use
func (s *Server) toolsFor(sess *session.Session) *sessionTools {
	s.toolsMu.Lock()
	defer s.toolsMu.Unlock()
	t, ok := s.tools[sess.ID()]
	if !ok {
		t = &sessionTools{
			lister: listing.NewLister(sess, s.logger),
			ops:    fileops.NewOps(sess, s.logger),
		}
		s.tools[sess.ID()] = t
	}
	return t
}

// dropSession removes a session and everything hanging off it
func (s *Server) dropSession(id string) {
	_ = s.proxies.Stop(id)
	s.toolsMu.Lock()
	if t, ok := s.tools[id]; ok && t.xfer != nil {
		_ = t.xfer.Close()
	}
	delete(s.tools, id)
	s.toolsMu.Unlock()
	s.pool.Remove(id)
	sessionsOpen.Set(float64(s.pool.Count()))
}
