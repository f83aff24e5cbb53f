package server

import (
	"bytes"
	"encoding/base64"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fileScript answers the shell traffic the file endpoints generate
func fileScript(cmd string) (string, int) {
	switch {
	case strings.HasPrefix(cmd, "cd ") && strings.Contains(cmd, "stat --printf"):
		return "notes.txt|regular file|512|644|app|1700000000\r\n" +
			".config|directory|4096|755|app|1700000100\r\n", 0
	case strings.Contains(cmd, "stat --printf"):
		return "/etc/motd|regular file|6|644|root|1700000000\r\n", 0
	case strings.HasPrefix(cmd, "wc -c <"):
		return "6\r\n", 0
	case strings.Contains(cmd, "base64 < "):
		return "aGVsbG8K\r\n__VELO_OK__\r\n", 0
	case strings.HasPrefix(cmd, "find "):
		return "/srv/app/notes.txt\r\n/srv/app/archive/\r\n", 0
	case strings.Contains(cmd, "mkdir -p -- '/denied'"):
		return "mkdir: cannot create directory '/denied': Permission denied\r\n", 1
	default:
		// Mutations answer with their success marker
		return "__VELO_OK__\r\n", 0
	}
}

func TestListFilesEndpoint(t *testing.T) {
	env := newTestEnv(t, fileScript)
	id := env.createSession(t)

	var reply struct {
		Dir     string `json:"dir"`
		Entries []struct {
			Name string `json:"name"`
			Path string `json:"path"`
			Kind string `json:"kind"`
			Size int64  `json:"size"`
		} `json:"entries"`
	}
	resp := env.call(t, http.MethodGet, "/api/sessions/"+id+"/files?dir=/etc", nil, &reply)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list files: status %d", resp.StatusCode)
	}
	if reply.Dir != "/etc" || len(reply.Entries) != 2 {
		t.Fatalf("list files reply = %+v", reply)
	}
	// Folders sort first
	if reply.Entries[0].Name != ".config" || reply.Entries[0].Kind != "folder" {
		t.Errorf("first entry = %+v", reply.Entries[0])
	}
	if reply.Entries[1].Name != "notes.txt" || reply.Entries[1].Size != 512 {
		t.Errorf("second entry = %+v", reply.Entries[1])
	}
}

func TestStatFileEndpoint(t *testing.T) {
	env := newTestEnv(t, fileScript)
	id := env.createSession(t)

	var entry struct {
		Name string `json:"name"`
		Path string `json:"path"`
		Size int64  `json:"size"`
	}
	resp := env.call(t, http.MethodGet, "/api/sessions/"+id+"/files/stat?path=/etc/motd", nil, &entry)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stat: status %d", resp.StatusCode)
	}
	if entry.Name != "motd" || entry.Size != 6 {
		t.Errorf("stat entry = %+v", entry)
	}

	resp = env.call(t, http.MethodGet, "/api/sessions/"+id+"/files/stat", nil, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("stat without path: status %d, want 400", resp.StatusCode)
	}
}

func TestReadWriteFileEndpoints(t *testing.T) {
	env := newTestEnv(t, fileScript)
	id := env.createSession(t)

	var read struct {
		Path    string `json:"path"`
		Size    int    `json:"size"`
		Content string `json:"content"`
	}
	resp := env.call(t, http.MethodGet, "/api/sessions/"+id+"/file?path=/etc/motd", nil, &read)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("read: status %d", resp.StatusCode)
	}
	decoded, err := base64.StdEncoding.DecodeString(read.Content)
	if err != nil {
		t.Fatalf("read content is not base64: %v", err)
	}
	if string(decoded) != "hello\n" || read.Size != 6 {
		t.Errorf("read = %+v decoded %q", read, decoded)
	}

	body := map[string]string{
		"path":    "/etc/motd",
		"content": base64.StdEncoding.EncodeToString([]byte("updated\n")),
	}
	resp = env.call(t, http.MethodPut, "/api/sessions/"+id+"/file", body, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("write: status %d", resp.StatusCode)
	}

	resp = env.call(t, http.MethodPut, "/api/sessions/"+id+"/file",
		map[string]string{"path": "/etc/motd", "content": "not-base64!!!"}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad base64 write: status %d, want 400", resp.StatusCode)
	}
}

func TestFileMutationEndpoints(t *testing.T) {
	env := newTestEnv(t, fileScript)
	id := env.createSession(t)
	base := "/api/sessions/" + id

	cases := []struct {
		name   string
		method string
		path   string
		body   interface{}
		want   int
	}{
		{"mkdir", http.MethodPost, "/files/mkdir", map[string]string{"path": "/srv/app"}, http.StatusOK},
		{"mkdir denied", http.MethodPost, "/files/mkdir", map[string]string{"path": "/denied"}, http.StatusUnprocessableEntity},
		{"touch", http.MethodPost, "/files/touch", map[string]string{"path": "/srv/app/new.txt"}, http.StatusOK},
		{"rename", http.MethodPost, "/files/rename", map[string]string{"path": "/srv/app/new.txt", "new_name": "old.txt"}, http.StatusOK},
		{"rename incomplete", http.MethodPost, "/files/rename", map[string]string{"path": "/srv/app/new.txt"}, http.StatusBadRequest},
		{"move", http.MethodPost, "/files/move", map[string]string{"src": "/srv/a", "dst": "/srv/b"}, http.StatusOK},
		{"copy", http.MethodPost, "/files/copy", map[string]string{"src": "/srv/a", "dst": "/srv/c"}, http.StatusOK},
		{"copy incomplete", http.MethodPost, "/files/copy", map[string]string{"src": "/srv/a"}, http.StatusBadRequest},
		{"chmod", http.MethodPost, "/files/chmod", map[string]string{"path": "/srv/a", "mode": "0750"}, http.StatusOK},
		{"chown", http.MethodPost, "/files/chown", map[string]string{"path": "/srv/a", "owner": "app:app"}, http.StatusOK},
		{"mkdir empty path", http.MethodPost, "/files/mkdir", map[string]string{}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := env.call(t, tc.method, base+tc.path, tc.body, nil)
			if resp.StatusCode != tc.want {
				t.Errorf("%s: status %d, want %d", tc.path, resp.StatusCode, tc.want)
			}
		})
	}

	resp := env.call(t, http.MethodDelete, base+"/file?path=/srv/app/old.txt", nil, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete file: status %d, want 204", resp.StatusCode)
	}
}

func TestSearchEndpoint(t *testing.T) {
	env := newTestEnv(t, fileScript)
	id := env.createSession(t)

	var reply struct {
		Entries []struct {
			Name string `json:"name"`
			Path string `json:"path"`
			Kind string `json:"kind"`
		} `json:"entries"`
	}
	resp := env.call(t, http.MethodGet,
		"/api/sessions/"+id+"/files/search?dir=/srv/app&pattern=notes", nil, &reply)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("search: status %d", resp.StatusCode)
	}
	if len(reply.Entries) != 2 {
		t.Fatalf("search entries = %+v", reply.Entries)
	}
	if reply.Entries[1].Name != "archive" || reply.Entries[1].Kind != "folder" {
		t.Errorf("directory hit = %+v", reply.Entries[1])
	}

	resp = env.call(t, http.MethodGet, "/api/sessions/"+id+"/files/search?dir=/srv", nil, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("search without pattern: status %d, want 400", resp.StatusCode)
	}
}

// ========================================
// Transfers
// ========================================

func TestUploadDownloadRoundTrip(t *testing.T) {
	env := newTestEnv(t, echoScript)
	id := env.createSession(t)
	dir := t.TempDir()
	remotePath := filepath.Join(dir, "payload.bin")
	payload := bytes.Repeat([]byte("velo"), 600)

	// Upload a multipart file onto the (local-backed) target
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("path", remotePath); err != nil {
		t.Fatal(err)
	}
	fw, err := mw.CreateFormFile("file", "payload.bin")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(payload); err != nil {
		t.Fatal(err)
	}
	_ = mw.Close()

	req, _ := http.NewRequest(http.MethodPost, env.ts.URL+"/api/sessions/"+id+"/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+env.token(t))
	resp, err := env.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload: status %d", resp.StatusCode)
	}

	got, err := os.ReadFile(remotePath)
	if err != nil {
		t.Fatalf("uploaded file missing: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("uploaded %d bytes, want %d", len(got), len(payload))
	}

	// Download it back over the API
	req, _ = http.NewRequest(http.MethodGet,
		env.ts.URL+"/api/sessions/"+id+"/download?path="+remotePath, nil)
	req.Header.Set("Authorization", "Bearer "+env.token(t))
	resp, err = env.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("download: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("download body: %v", err)
	}
	if !bytes.Equal(body, payload) {
		t.Fatalf("downloaded %d bytes, want %d", len(body), len(payload))
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "payload.bin") {
		t.Errorf("content disposition = %q", cd)
	}
}

func TestDownloadMissingFile(t *testing.T) {
	env := newTestEnv(t, echoScript)
	id := env.createSession(t)

	resp := env.call(t, http.MethodGet,
		"/api/sessions/"+id+"/download?path="+filepath.Join(t.TempDir(), "nope.bin"), nil, nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("missing file download: status %d, want 422", resp.StatusCode)
	}
}

// ========================================
// Service probes
// ========================================

func TestServiceEndpoints(t *testing.T) {
	env := newTestEnv(t, func(cmd string) (string, int) {
		switch {
		case strings.Contains(cmd, "command -v -- 'nginx'"):
			return "installed\r\nactive\r\n", 0
		case strings.Contains(cmd, "nginx -v"):
			return "nginx version: nginx/1.24.0\r\n", 0
		case strings.Contains(cmd, "for f in"):
			return "/etc/nginx/nginx.conf\r\n", 0
		}
		return "", 0
	})
	id := env.createSession(t)

	var keys struct {
		Services []string `json:"services"`
	}
	resp := env.call(t, http.MethodGet, "/api/sessions/"+id+"/services", nil, &keys)
	if resp.StatusCode != http.StatusOK || len(keys.Services) == 0 {
		t.Fatalf("services list: status %d, %v", resp.StatusCode, keys.Services)
	}

	var report struct {
		Key       string `json:"key"`
		Installed bool   `json:"installed"`
		Running   bool   `json:"running"`
		Version   string `json:"version"`
		Config    string `json:"config"`
	}
	resp = env.call(t, http.MethodGet, "/api/sessions/"+id+"/services/nginx", nil, &report)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("probe: status %d", resp.StatusCode)
	}
	if !report.Installed || !report.Running || report.Version != "1.24.0" {
		t.Errorf("probe report = %+v", report)
	}
	if report.Config != "/etc/nginx/nginx.conf" {
		t.Errorf("probe config = %q", report.Config)
	}

	resp = env.call(t, http.MethodGet, "/api/sessions/"+id+"/services/kafka", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown service: status %d, want 404", resp.StatusCode)
	}
}

// ========================================
// SOCKS proxies
// ========================================

func TestProxyEndpoints(t *testing.T) {
	env := newTestEnv(t, echoScript)
	id := env.createSession(t)
	base := "/api/sessions/" + id + "/proxy"

	resp := env.call(t, http.MethodGet, base, nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("proxy before start: status %d, want 404", resp.StatusCode)
	}

	var started struct {
		Port int    `json:"port"`
		Addr string `json:"addr"`
	}
	resp = env.call(t, http.MethodPost, base, map[string]interface{}{"port": 0}, &started)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start proxy: status %d", resp.StatusCode)
	}
	if started.Port == 0 || started.Addr == "" {
		t.Fatalf("start proxy reply = %+v", started)
	}

	resp = env.call(t, http.MethodPost, base, map[string]interface{}{"port": 0}, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second proxy: status %d, want 409", resp.StatusCode)
	}

	var gotten struct {
		Port int `json:"port"`
	}
	resp = env.call(t, http.MethodGet, base, nil, &gotten)
	if resp.StatusCode != http.StatusOK || gotten.Port != started.Port {
		t.Fatalf("get proxy: status %d port %d", resp.StatusCode, gotten.Port)
	}

	resp = env.call(t, http.MethodDelete, base, nil, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("stop proxy: status %d", resp.StatusCode)
	}

	resp = env.call(t, http.MethodDelete, base, nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("stop again: status %d, want 404", resp.StatusCode)
	}
}
