package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"velo/pkg/creds"
	"velo/pkg/sanitize"
	"velo/pkg/vlog"
)

// PoolConfig carries the shared collaborators every pooled session is
// built with. Factory maps a target onto the channel dialer for it, so
// the pool itself stays transport agnostic.
type PoolConfig struct {
	Logger         *vlog.Logger
	Secrets        creds.SecretFunc
	Sanitizer      *sanitize.Sanitizer
	Factory        func(target string) ChannelFactory
	DefaultTimeout time.Duration
	QuickTimeout   time.Duration
}

// Pool tracks live sessions by id and hands out at most one session
// per target.
type Pool struct {
	cfg PoolConfig

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewPool(cfg PoolConfig) *Pool {
	if cfg.Logger == nil {
		cfg.Logger = vlog.NewLogger("pool")
	}
	return &Pool{
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// GetOrCreate returns the live session for target, dialing a fresh one
// if none exists. Sessions found in a dead state are dropped and
// replaced rather than returned.
func (p *Pool) GetOrCreate(ctx context.Context, target string) (*Session, error) {
	p.mu.Lock()
	for _, s := range p.sessions {
		if s.Target() != target {
			continue
		}
		switch s.Status() {
		case StatusReady, StatusBusy, StatusConnecting:
			p.mu.Unlock()
			return s, nil
		default:
			delete(p.sessions, s.ID())
		}
	}
	p.mu.Unlock()

	s := New(Config{
		Target:         target,
		Factory:        p.cfg.Factory(target),
		Logger:         p.cfg.Logger,
		Secrets:        p.cfg.Secrets,
		Sanitizer:      p.cfg.Sanitizer,
		DefaultTimeout: p.cfg.DefaultTimeout,
		QuickTimeout:   p.cfg.QuickTimeout,
	})
	if err := s.Connect(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	// A concurrent GetOrCreate may have won the dial race, prefer the
	// session that is already registered and discard ours
	for _, prev := range p.sessions {
		if prev.Target() == target {
			st := prev.Status()
			if st == StatusReady || st == StatusBusy || st == StatusConnecting {
				p.mu.Unlock()
				_ = s.Close()
				return prev, nil
			}
		}
	}
	p.sessions[s.ID()] = s
	p.mu.Unlock()

	p.cfg.Logger.InfoWith("session registered",
		vlog.F("session", s.shortID()),
		vlog.F("target", target),
	)
	return s, nil
}

func (p *Pool) ByID(id string) (*Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[id]
	return s, ok
}

func (p *Pool) ByTarget(target string) (*Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.sessions {
		if s.Target() == target {
			return s, true
		}
	}
	return nil, false
}

// List returns sessions ordered by creation time, oldest first.
func (p *Pool) List() []*Session {
	p.mu.Lock()
	out := make([]*Session, 0, len(p.sessions))
	for _, s := range p.sessions {
		out = append(out, s)
	}
	p.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt().Before(out[j].CreatedAt())
	})
	return out
}

func (p *Pool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// Remove closes the session and forgets it. Removing an unknown id is
// a no-op.
func (p *Pool) Remove(id string) {
	p.mu.Lock()
	s, ok := p.sessions[id]
	if ok {
		delete(p.sessions, id)
	}
	p.mu.Unlock()

	if ok {
		_ = s.Close()
		p.cfg.Logger.InfoWith("session removed",
			vlog.F("session", s.shortID()),
			vlog.F("target", s.Target()),
		)
	}
}

// CloseAll tears down every pooled session, used on daemon shutdown.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	all := make([]*Session, 0, len(p.sessions))
	for id, s := range p.sessions {
		all = append(all, s)
		delete(p.sessions, id)
	}
	p.mu.Unlock()

	for _, s := range all {
		_ = s.Close()
	}
}
