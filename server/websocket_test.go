package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func wsURL(env *testEnv, path string) string {
	return "ws" + strings.TrimPrefix(env.ts.URL, "http") + path
}

func dialAttach(t *testing.T, env *testEnv, id, extra string) *websocket.Conn {
	t.Helper()
	url := wsURL(env, "/api/sessions/"+id+"/attach?token="+env.token(t)+extra)
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("ws dial: %v (status %d)", err, status)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readBinary(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ws read: %v", err)
	}
	return msg
}

func TestAttachBridgeRaw(t *testing.T) {
	env := newTestEnv(t, echoScript)
	id := env.createSession(t)

	conn := dialAttach(t, env, id, "&raw=1")
	if err := conn.WriteMessage(websocket.BinaryMessage, []byte("uptime\n")); err != nil {
		t.Fatalf("ws write: %v", err)
	}

	msg := readBinary(t, conn)
	if !bytes.Contains(msg, []byte("uptime\n")) {
		t.Fatalf("echo frame = %q", msg)
	}
	// Raw mode keeps the terminal's escape sequences
	if !bytes.Contains(msg, []byte{0x1b}) {
		t.Errorf("raw frame lost its escapes: %q", msg)
	}

	// The write reached the shell as raw stdin, unframed
	sh := env.lastShell(t)
	raws := sh.rawWrites()
	if len(raws) != 1 || raws[0] != "uptime\n" {
		t.Errorf("shell raw writes = %q", raws)
	}
}

func TestAttachBridgeCleansOutput(t *testing.T) {
	env := newTestEnv(t, echoScript)
	id := env.createSession(t)

	conn := dialAttach(t, env, id, "")
	if err := conn.WriteMessage(websocket.BinaryMessage, []byte("uptime\n")); err != nil {
		t.Fatalf("ws write: %v", err)
	}

	msg := readBinary(t, conn)
	if !bytes.Contains(msg, []byte("uptime\n")) {
		t.Fatalf("echo frame = %q", msg)
	}
	if bytes.Contains(msg, []byte{0x1b}) {
		t.Errorf("cleaned frame still has escapes: %q", msg)
	}
}

func TestAttachResizeControlFrames(t *testing.T) {
	env := newTestEnv(t, echoScript)
	id := env.createSession(t)

	conn := dialAttach(t, env, id, "&raw=1")
	sh := env.lastShell(t)

	// Binary control frame with the 0x00 prefix
	ctrl, _ := json.Marshal(wsControl{Type: "resize", Rows: 50, Cols: 120})
	if err := conn.WriteMessage(websocket.BinaryMessage, append([]byte{0x00}, ctrl...)); err != nil {
		t.Fatalf("ws write control: %v", err)
	}
	waitFor(t, func() bool { return sh.resizeCount() == 1 })

	// Text frames are control frames too
	if err := conn.WriteMessage(websocket.TextMessage, ctrl); err != nil {
		t.Fatalf("ws write text control: %v", err)
	}
	waitFor(t, func() bool { return sh.resizeCount() == 2 })

	// Malformed control frames are ignored, not fatal
	if err := conn.WriteMessage(websocket.TextMessage, []byte("{nope")); err != nil {
		t.Fatalf("ws write junk: %v", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, []byte("id\n")); err != nil {
		t.Fatalf("ws write after junk: %v", err)
	}
	msg := readBinary(t, conn)
	if !bytes.Contains(msg, []byte("id\n")) {
		t.Fatalf("bridge died after junk control frame: %q", msg)
	}
}

func TestAttachRefusesSecondConsumer(t *testing.T) {
	env := newTestEnv(t, echoScript)
	id := env.createSession(t)

	first := dialAttach(t, env, id, "&raw=1")
	defer func() { _ = first.Close() }()

	second := dialAttach(t, env, id, "&raw=1")
	msg := readBinary(t, second)
	if len(msg) == 0 || msg[0] != 0x00 {
		t.Fatalf("expected a control frame, got %q", msg)
	}
	var ctrl struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(msg[1:], &ctrl); err != nil {
		t.Fatalf("control frame %q: %v", msg, err)
	}
	if ctrl.Type != "error" || !strings.Contains(ctrl.Message, "attached consumer") {
		t.Errorf("control frame = %+v", ctrl)
	}
}

func TestAttachUnknownSession(t *testing.T) {
	env := newTestEnv(t, echoScript)

	url := wsURL(env, "/api/sessions/nope/attach?token="+env.token(t))
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial to unknown session succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 handshake, got %+v", resp)
	}
}

func TestAttachRequiresToken(t *testing.T) {
	env := newTestEnv(t, echoScript)
	id := env.createSession(t)

	url := wsURL(env, "/api/sessions/"+id+"/attach")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial without token succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 handshake, got %+v", resp)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}
