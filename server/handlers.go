package server

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strconv"
	"time"

	"velo/pkg/auth"
	"velo/pkg/conf"
	"velo/pkg/listing"
	"velo/pkg/session"
	"velo/pkg/transfer"
	"velo/pkg/verrors"
	"velo/pkg/vlog"
	"velo/pkg/vproxy"
)

// maxBodySize bounds JSON request bodies. File content rides inside
// them base64 encoded, so this tracks the transfer cap with headroom.
const maxBodySize = 16 << 20

// ========================================
// JSON plumbing
// ========================================

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, format string, args ...interface{}) {
	writeJSON(w, status, map[string]string{"error": fmt.Sprintf(format, args...)})
}

func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body - %v", err)
	}
	return nil
}

// errStatus maps engine failures onto HTTP statuses. Remote-side
// failures are gateway errors: the API call itself was fine.
func errStatus(err error) int {
	var (
		connErr *verrors.ConnectionError
		toErr   *verrors.TimeoutError
		authErr *verrors.AuthenticationError
		opErr   *verrors.OperationError
	)
	switch {
	case errors.As(err, &toErr):
		return http.StatusGatewayTimeout
	case errors.As(err, &connErr), errors.As(err, &authErr):
		return http.StatusBadGateway
	case errors.As(err, &opErr):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	writeError(w, errStatus(err), "%v", err)
}

// withSession resolves the {id} path segment or answers 404 itself
func (s *Server) withSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessionByID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "%v", err)
		return nil, false
	}
	return sess, true
}

// ========================================
// Auth
// ========================================

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.conf.AdminPassword == "" {
		writeError(w, http.StatusForbidden, "login is disabled, set VELO_ADMIN_PASSWORD")
		return
	}

	var req struct {
		User     string `json:"user"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}

	userOK := subtle.ConstantTimeCompare([]byte(req.User), []byte(s.conf.AdminUser))
	passOK := subtle.ConstantTimeCompare([]byte(req.Password), []byte(s.conf.AdminPassword))
	if userOK&passOK != 1 {
		s.logger.WarnWith("API login rejected",
			vlog.F("user", req.User),
			vlog.F("remote", r.RemoteAddr))
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	claims := auth.NewClaims(req.User, s.conf.TokenTTL)
	token, err := auth.Sign(claims, s.secret)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	s.logger.InfoWith("API login",
		vlog.F("user", req.User),
		vlog.F("remote", r.RemoteAddr))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":      token,
		"expires_at": time.Unix(claims.ExpiresAt, 0).UTC(),
	})
}

// ========================================
// Sessions
// ========================================

type sessionInfo struct {
	ID         string    `json:"id"`
	Target     string    `json:"target"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
	Commands   int64     `json:"commands"`
}

func infoOf(sess *session.Session) sessionInfo {
	return sessionInfo{
		ID:         sess.ID(),
		Target:     sess.Target(),
		Status:     sess.Status().String(),
		CreatedAt:  sess.CreatedAt(),
		LastActive: sess.LastActive(),
		Commands:   sess.CommandCount(),
	}
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.pool.List()
	infos := make([]sessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		infos = append(infos, infoOf(sess))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": infos})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Target string `json:"target"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if req.Target == "" {
		req.Target = "local"
	}

	// Fail fast on specs the inventory cannot resolve instead of
	// burning a connect attempt
	if _, _, err := s.inv.Resolve(req.Target, s.logger); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}

	sess, err := s.pool.GetOrCreate(r.Context(), req.Target)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	sessionsOpen.Set(float64(s.pool.Count()))
	writeJSON(w, http.StatusCreated, infoOf(sess))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.withSession(w, r)
	if !ok {
		return
	}
	reply := map[string]interface{}{
		"session": infoOf(sess),
		"dialect": s.toolsFor(sess).lister.Dialect(),
	}
	if p, ok := s.proxies.Get(sess.ID()); ok {
		reply["proxy"] = proxyInfo(p)
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.withSession(w, r)
	if !ok {
		return
	}
	s.dropSession(sess.ID())
	w.WriteHeader(http.StatusNoContent)
}

// ========================================
// Command execution
// ========================================

func (s *Server) handleExec(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.withSession(w, r)
	if !ok {
		return
	}

	var req struct {
		Command        string            `json:"command"`
		Dir            string            `json:"dir"`
		Env            map[string]string `json:"env"`
		TimeoutSeconds int               `json:"timeout_seconds"`
		Quick          bool              `json:"quick"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if req.Command == "" {
		writeError(w, http.StatusBadRequest, "command is required")
		return
	}

	res, err := sess.ExecuteRequest(r.Context(), &session.CommandRequest{
		Command: req.Command,
		Dir:     req.Dir,
		Env:     req.Env,
		Timeout: time.Duration(req.TimeoutSeconds) * time.Second,
		Quick:   req.Quick,
	})
	if err != nil {
		recordCommand("error", 0)
		s.writeEngineError(w, err)
		return
	}

	switch {
	case res.TimedOut:
		recordCommand("timeout", res.Elapsed)
	case res.Failed():
		recordCommand("failed", res.Elapsed)
	default:
		recordCommand("ok", res.Elapsed)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"output":     res.Output,
		"exit_code":  res.ExitCode,
		"elapsed_ms": res.Elapsed.Milliseconds(),
		"timed_out":  res.TimedOut,
	})
}

// ========================================
// Files
// ========================================

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.withSession(w, r)
	if !ok {
		return
	}
	dir := r.URL.Query().Get("dir")
	if dir == "" {
		dir = "/"
	}
	entries, err := s.toolsFor(sess).lister.List(r.Context(), dir)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"dir":     dir,
		"entries": entries,
	})
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.withSession(w, r)
	if !ok {
		return
	}
	dir := r.URL.Query().Get("dir")
	if dir == "" {
		dir = "/"
	}
	depth := 1
	if v := r.URL.Query().Get("depth"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid depth %q", v)
			return
		}
		if n > 5 {
			n = 5
		}
		depth = n
	}

	root := listing.NewTree(dir)
	if err := root.Expand(r.Context(), s.toolsFor(sess).lister, depth); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, root)
}

func (s *Server) handleStatFile(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.withSession(w, r)
	if !ok {
		return
	}
	p := r.URL.Query().Get("path")
	if p == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	entry, err := s.toolsFor(sess).lister.Stat(r.Context(), p)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleSearchFiles(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.withSession(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	dir, pattern := q.Get("dir"), q.Get("pattern")
	if dir == "" {
		dir = "/"
	}
	if pattern == "" {
		writeError(w, http.StatusBadRequest, "pattern is required")
		return
	}
	entries, err := s.toolsFor(sess).ops.Search(r.Context(), dir, pattern)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"dir":     dir,
		"pattern": pattern,
		"entries": entries,
	})
}

func (s *Server) handleReadFile(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.withSession(w, r)
	if !ok {
		return
	}
	p := r.URL.Query().Get("path")
	if p == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	content, err := s.toolsFor(sess).ops.Read(r.Context(), p)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"path":    p,
		"size":    len(content),
		"content": base64.StdEncoding.EncodeToString(content),
	})
}

func (s *Server) handleWriteFile(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.withSession(w, r)
	if !ok {
		return
	}
	var req struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	content, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		writeError(w, http.StatusBadRequest, "content is not valid base64 - %v", err)
		return
	}
	if err := s.toolsFor(sess).ops.Write(r.Context(), req.Path, content); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"path": req.Path,
		"size": len(content),
	})
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.withSession(w, r)
	if !ok {
		return
	}
	p := r.URL.Query().Get("path")
	if p == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	if err := s.toolsFor(sess).ops.Delete(r.Context(), p); err != nil {
		s.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// pathOp decodes a single-path JSON body and runs op against it
func (s *Server) pathOp(w http.ResponseWriter, r *http.Request, op func(sess *session.Session, path string) error) {
	sess, ok := s.withSession(w, r)
	if !ok {
		return
	}
	var req struct {
		Path string `json:"path"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	if err := op(sess, req.Path); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": req.Path})
}

func (s *Server) handleMkdir(w http.ResponseWriter, r *http.Request) {
	s.pathOp(w, r, func(sess *session.Session, p string) error {
		return s.toolsFor(sess).ops.CreateDirectory(r.Context(), p)
	})
}

func (s *Server) handleTouch(w http.ResponseWriter, r *http.Request) {
	s.pathOp(w, r, func(sess *session.Session, p string) error {
		return s.toolsFor(sess).ops.CreateFile(r.Context(), p)
	})
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.withSession(w, r)
	if !ok {
		return
	}
	var req struct {
		Path    string `json:"path"`
		NewName string `json:"new_name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if req.Path == "" || req.NewName == "" {
		writeError(w, http.StatusBadRequest, "path and new_name are required")
		return
	}
	if err := s.toolsFor(sess).ops.Rename(r.Context(), req.Path, req.NewName); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": req.Path, "new_name": req.NewName})
}

// srcDstOp decodes a src/dst JSON body and runs op against it
func (s *Server) srcDstOp(w http.ResponseWriter, r *http.Request, op func(sess *session.Session, src, dst string) error) {
	sess, ok := s.withSession(w, r)
	if !ok {
		return
	}
	var req struct {
		Src string `json:"src"`
		Dst string `json:"dst"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if req.Src == "" || req.Dst == "" {
		writeError(w, http.StatusBadRequest, "src and dst are required")
		return
	}
	if err := op(sess, req.Src, req.Dst); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"src": req.Src, "dst": req.Dst})
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	s.srcDstOp(w, r, func(sess *session.Session, src, dst string) error {
		return s.toolsFor(sess).ops.Move(r.Context(), src, dst)
	})
}

func (s *Server) handleCopy(w http.ResponseWriter, r *http.Request) {
	s.srcDstOp(w, r, func(sess *session.Session, src, dst string) error {
		return s.toolsFor(sess).ops.Copy(r.Context(), src, dst)
	})
}

func (s *Server) handleChmod(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.withSession(w, r)
	if !ok {
		return
	}
	var req struct {
		Path string `json:"path"`
		Mode string `json:"mode"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if req.Path == "" || req.Mode == "" {
		writeError(w, http.StatusBadRequest, "path and mode are required")
		return
	}
	if err := s.toolsFor(sess).ops.Chmod(r.Context(), req.Mode, req.Path); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": req.Path, "mode": req.Mode})
}

func (s *Server) handleChown(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.withSession(w, r)
	if !ok {
		return
	}
	var req struct {
		Path  string `json:"path"`
		Owner string `json:"owner"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if req.Path == "" || req.Owner == "" {
		writeError(w, http.StatusBadRequest, "path and owner are required")
		return
	}
	if err := s.toolsFor(sess).ops.Chown(r.Context(), req.Owner, req.Path); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": req.Path, "owner": req.Owner})
}

// ========================================
// Transfers
// ========================================

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.withSession(w, r)
	if !ok {
		return
	}
	p := r.URL.Query().Get("path")
	if p == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	xfer, err := s.transferFor(sess)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	// Spool through a temporary file so transfer failures surface as
	// a clean error instead of a truncated response
	tmp, err := os.CreateTemp("", "velo-dl-*")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to spool download - %v", err)
		return
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer func() { _ = os.Remove(tmpPath) }()

	n, err := xfer.Download(r.Context(), p, tmpPath, nil)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	recordTransfer("download", n)

	f, err := os.Open(tmpPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to open spool - %v", err)
		return
	}
	defer func() { _ = f.Close() }()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(n, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(p)))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, f)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.withSession(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(4 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form - %v", err)
		return
	}
	dst := r.FormValue("path")
	if dst == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required - %v", err)
		return
	}
	defer func() { _ = file.Close() }()

	xfer, err := s.transferFor(sess)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	tmp, err := os.CreateTemp("", "velo-ul-*")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to spool upload - %v", err)
		return
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := io.Copy(tmp, file); err != nil {
		_ = tmp.Close()
		writeError(w, http.StatusInternalServerError, "failed to spool upload - %v", err)
		return
	}
	_ = tmp.Close()

	n, err := xfer.Upload(r.Context(), tmpPath, dst, nil)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	recordTransfer("upload", n)

	s.logger.InfoWith("Upload complete",
		vlog.F("session", sess.ID()),
		vlog.F("file", header.Filename),
		vlog.F("dst", dst),
		vlog.F("bytes", n))
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"path": dst,
		"size": n,
	})
}

// ========================================
// Service probes
// ========================================

func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"services": s.services.Keys()})
}

func (s *Server) handleProbeService(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.withSession(w, r)
	if !ok {
		return
	}
	key := r.PathValue("key")
	report, err := s.services.Probe(r.Context(), key, sess)
	if err != nil {
		if _, known := s.services.Lookup(key); !known {
			writeError(w, http.StatusNotFound, "%v", err)
			return
		}
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ========================================
// SOCKS proxies
// ========================================

func proxyInfo(p *vproxy.Proxy) map[string]interface{} {
	return map[string]interface{}{
		"port":   p.Port(),
		"addr":   p.Addr(),
		"target": p.Target(),
	}
}

func (s *Server) handleGetProxy(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.withSession(w, r)
	if !ok {
		return
	}
	p, ok := s.proxies.Get(sess.ID())
	if !ok {
		writeError(w, http.StatusNotFound, "session %q has no running proxy", sess.ID())
		return
	}
	writeJSON(w, http.StatusOK, proxyInfo(p))
}

func (s *Server) handleStartProxy(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.withSession(w, r)
	if !ok {
		return
	}
	var req struct {
		Port   int  `json:"port"`
		Expose bool `json:"expose"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}

	p, err := s.proxies.Start(sess, vproxy.Config{
		Logger: s.logger,
		Port:   req.Port,
		Expose: req.Expose,
	})
	if err != nil {
		if _, running := s.proxies.Get(sess.ID()); running {
			writeError(w, http.StatusConflict, "%v", err)
			return
		}
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, proxyInfo(p))
}

func (s *Server) handleStopProxy(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.withSession(w, r)
	if !ok {
		return
	}
	if err := s.proxies.Stop(sess.ID()); err != nil {
		writeError(w, http.StatusNotFound, "%v", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ========================================
// Daemon
// ========================================

func (s *Server) handleListTargets(w http.ResponseWriter, r *http.Request) {
	type targetInfo struct {
		Name        string `json:"name"`
		Address     string `json:"address"`
		Local       bool   `json:"local,omitempty"`
		Fingerprint string `json:"fingerprint,omitempty"`
	}
	infos := make([]targetInfo, 0, len(s.inv.Targets))
	for i := range s.inv.Targets {
		t := &s.inv.Targets[i]
		infos = append(infos, targetInfo{
			Name:        t.Name,
			Address:     t.Address(),
			Local:       t.Local,
			Fingerprint: t.Fingerprint,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"targets": infos})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"version":        conf.Version,
		"started_at":     s.started.UTC(),
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"sessions":       s.pool.Count(),
		"host":           s.stats.Get(),
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// transferFor returns the session's cached transfer client, opening
// the SFTP subsystem on first use
func (s *Server) transferFor(sess *session.Session) (*transfer.Client, error) {
	t := s.toolsFor(sess)
	s.toolsMu.Lock()
	defer s.toolsMu.Unlock()
	if t.xfer == nil {
		xfer, err := transfer.New(sess, s.logger)
		if err != nil {
			return nil, err
		}
		xfer.SetLimit(s.conf.TransferCap)
		t.xfer = xfer
	}
	return t.xfer, nil
}
