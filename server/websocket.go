package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"velo/pkg/sanitize"
	"velo/pkg/session"
	"velo/pkg/vlog"

	"github.com/gorilla/websocket"
)

const (
	// wsPingInterval is how often the daemon pings an attached client
	wsPingInterval = 30 * time.Second
	// wsReadDeadline is reset on every pong; a client silent for this
	// long is considered gone
	wsReadDeadline = 75 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// wsUpgrader allows any origin. The attach endpoint sits behind token
// auth, and browsers cannot set Authorization on upgrade requests
// anyway, which is why the middleware also accepts ?token=.
var wsUpgrader = websocket.Upgrader{
	HandshakeTimeout: 10 * time.Second,
	CheckOrigin:      func(r *http.Request) bool { return true },
}

// wsWriter is the session tap: channel output lands here and goes out
// as binary frames, stripped through the streaming cleaner unless the
// client asked for the raw byte stream.
type wsWriter struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	cleaner *sanitize.Cleaner
}

func (ww *wsWriter) Write(p []byte) (int, error) {
	out := p
	if ww.cleaner != nil {
		out = ww.cleaner.Process(p)
		if len(out) == 0 {
			return len(p), nil
		}
	}
	if err := ww.send(websocket.BinaryMessage, out); err != nil {
		return 0, err
	}
	return len(p), nil
}

// writeError sends a 0x00-prefixed JSON error frame
func (ww *wsWriter) writeError(msg string) {
	data, _ := json.Marshal(map[string]string{"type": "error", "message": msg})
	_ = ww.send(websocket.BinaryMessage, append([]byte{0x00}, data...))
}

func (ww *wsWriter) send(msgType int, payload []byte) error {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	_ = ww.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return ww.conn.WriteMessage(msgType, payload)
}

// wsControl is the JSON control frame clients send prefixed with a
// 0x00 byte (or as a text message) to keep it apart from raw stdin
type wsControl struct {
	Type string `json:"type"`
	Rows uint16 `json:"rows"`
	Cols uint16 `json:"cols"`
}

// handleAttach bridges a WebSocket to the session's shell channel:
// client frames go to the channel as raw stdin, channel output comes
// back as binary frames through the attach tap.
func (s *Server) handleAttach(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.withSession(w, r)
	if !ok {
		return
	}

	raw := r.URL.Query().Get("raw") == "1"

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already answered the request
		return
	}
	defer func() { _ = conn.Close() }()

	writer := &wsWriter{conn: conn}
	if !raw {
		writer.cleaner = sanitize.NewCleaner()
	}

	detach, err := sess.Attach(writer)
	if err != nil {
		writer.writeError(err.Error())
		return
	}
	defer detach()

	attachedTerminals.Inc()
	defer attachedTerminals.Dec()
	s.logger.InfoWith("Terminal attached",
		vlog.F("session", sess.ID()),
		vlog.F("target", sess.Target()),
		vlog.F("remote", r.RemoteAddr))
	defer s.logger.InfoWith("Terminal detached",
		vlog.F("session", sess.ID()),
		vlog.F("remote", r.RemoteAddr))

	// Keep-alive: ping on a ticker, extend the read deadline on pong.
	// WriteControl is safe to call concurrently with WriteMessage.
	_ = conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
	})
	stopPing := make(chan struct{})
	defer close(stopPing)
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
					return
				}
			case <-stopPing:
				return
			}
		}
	}()

	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}

		// Control frame: JSON, sent as text or 0x00-prefixed binary
		if mt == websocket.TextMessage || (len(msg) > 0 && msg[0] == 0x00) {
			s.handleControlFrame(sess, msg)
			continue
		}

		if err := sess.WriteRaw(msg); err != nil {
			writer.writeError(err.Error())
			return
		}
	}
}

func (s *Server) handleControlFrame(sess *session.Session, raw []byte) {
	if len(raw) > 0 && raw[0] == 0x00 {
		raw = raw[1:]
	}
	var ctrl wsControl
	if err := json.Unmarshal(raw, &ctrl); err != nil {
		return
	}
	if ctrl.Type == "resize" && ctrl.Rows > 0 && ctrl.Cols > 0 {
		if err := sess.Resize(uint32(ctrl.Cols), uint32(ctrl.Rows)); err != nil {
			s.logger.DebugWith("Resize failed",
				vlog.F("session", sess.ID()),
				vlog.F("err", err))
		}
	}
}

