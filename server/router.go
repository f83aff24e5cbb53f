package server

import (
	"net/http"

	"velo/pkg/auth"
)

// routes builds the daemon's handler tree. Everything under /api/
// except login requires a valid token; the index, health, metrics and
// login endpoints stay public.
func (s *Server) routes() http.Handler {
	api := http.NewServeMux()

	// Sessions
	api.HandleFunc("GET /api/sessions", s.handleListSessions)
	api.HandleFunc("POST /api/sessions", s.handleCreateSession)
	api.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	api.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)
	api.HandleFunc("POST /api/sessions/{id}/exec", s.handleExec)
	api.HandleFunc("GET /api/sessions/{id}/attach", s.handleAttach)

	// Files
	api.HandleFunc("GET /api/sessions/{id}/files", s.handleListFiles)
	api.HandleFunc("GET /api/sessions/{id}/files/tree", s.handleTree)
	api.HandleFunc("GET /api/sessions/{id}/files/stat", s.handleStatFile)
	api.HandleFunc("GET /api/sessions/{id}/files/search", s.handleSearchFiles)
	api.HandleFunc("GET /api/sessions/{id}/file", s.handleReadFile)
	api.HandleFunc("PUT /api/sessions/{id}/file", s.handleWriteFile)
	api.HandleFunc("DELETE /api/sessions/{id}/file", s.handleDeleteFile)
	api.HandleFunc("POST /api/sessions/{id}/files/mkdir", s.handleMkdir)
	api.HandleFunc("POST /api/sessions/{id}/files/touch", s.handleTouch)
	api.HandleFunc("POST /api/sessions/{id}/files/rename", s.handleRename)
	api.HandleFunc("POST /api/sessions/{id}/files/move", s.handleMove)
	api.HandleFunc("POST /api/sessions/{id}/files/copy", s.handleCopy)
	api.HandleFunc("POST /api/sessions/{id}/files/chmod", s.handleChmod)
	api.HandleFunc("POST /api/sessions/{id}/files/chown", s.handleChown)

	// Transfers
	api.HandleFunc("GET /api/sessions/{id}/download", s.handleDownload)
	api.HandleFunc("POST /api/sessions/{id}/upload", s.handleUpload)

	// Service probes
	api.HandleFunc("GET /api/sessions/{id}/services", s.handleListServices)
	api.HandleFunc("GET /api/sessions/{id}/services/{key}", s.handleProbeService)

	// SOCKS proxies
	api.HandleFunc("GET /api/sessions/{id}/proxy", s.handleGetProxy)
	api.HandleFunc("POST /api/sessions/{id}/proxy", s.handleStartProxy)
	api.HandleFunc("DELETE /api/sessions/{id}/proxy", s.handleStopProxy)

	// Daemon
	api.HandleFunc("GET /api/targets", s.handleListTargets)
	api.HandleFunc("GET /api/status", s.handleStatus)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.Handle("GET /metrics", metricsHandler())
	mux.Handle("/api/", auth.Middleware(s.secret, s.logger)(api))

	return metricsMiddleware(mux)
}
