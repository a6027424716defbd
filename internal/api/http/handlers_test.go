//go:build !windows

package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vterm/vterm/backend/internal/infrastructure/config"
	"github.com/vterm/vterm/backend/internal/infrastructure/logging"
	"github.com/vterm/vterm/backend/internal/providers/store"
	"github.com/vterm/vterm/backend/internal/session"
)

func newTestRouter(t *testing.T) (*gin.Engine, *session.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := &logging.Logger{Logger: zap.NewNop()}

	cfg := config.SessionConfig{
		Shell:         "/bin/sh",
		IdleThreshold: 3 * time.Second,
		ActivityTick:  time.Second,
		DefaultCols:   80,
		DefaultRows:   24,
	}
	manager := session.NewManager(cfg, session.NewHub(), logger)
	t.Cleanup(func() { manager.CloseAll(5 * time.Second) })

	h := NewHandlers(manager, store.New(t.TempDir(), logger))

	router := gin.New()
	router.GET("/health", h.Health)
	router.GET("/sessions", h.ListSessions)
	router.POST("/sessions", h.CreateSession)
	router.DELETE("/sessions/:id", h.KillSession)
	router.POST("/sessions/:id/resize", h.ResizeSession)
	router.POST("/projects/detect", h.DetectProject)
	router.GET("/documents/:name", h.LoadDocument)
	router.PUT("/documents/:name", h.SaveDocument)
	return router, manager
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("health = %d", w.Code)
	}
}

func TestSessionEndpoints(t *testing.T) {
	router, manager := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/sessions", map[string]interface{}{
		"project_id":  "proj_rest",
		"kind":        "main",
		"working_dir": t.TempDir(),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d: %s", w.Code, w.Body)
	}

	var created struct {
		Session session.Info `json:"session"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.Session.ID == "" {
		t.Fatal("no session id in response")
	}

	w = doJSON(t, router, http.MethodGet, "/sessions", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}

	w = doJSON(t, router, http.MethodPost, "/sessions/"+created.Session.ID+"/resize",
		map[string]int{"cols": 120, "rows": 40})
	if w.Code != http.StatusOK {
		t.Fatalf("resize = %d: %s", w.Code, w.Body)
	}
	if info, ok := manager.Get(created.Session.ID); !ok || info.Cols != 120 {
		t.Errorf("resize did not land: %+v ok=%v", info, ok)
	}

	w = doJSON(t, router, http.MethodDelete, "/sessions/"+created.Session.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("kill = %d", w.Code)
	}

	// Idempotent: the second delete also succeeds.
	w = doJSON(t, router, http.MethodDelete, "/sessions/"+created.Session.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("second kill = %d", w.Code)
	}
}

func TestCreateSessionValidation(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/sessions", map[string]string{"kind": "daemon"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad kind = %d", w.Code)
	}

	w = doJSON(t, router, http.MethodPost, "/sessions", map[string]string{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing kind = %d", w.Code)
	}
}

func TestDetectProjectEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	dir := t.TempDir()
	if err := writeFile(dir+"/Cargo.toml", "[package]\nname = \"app\"\n"); err != nil {
		t.Fatal(err)
	}

	w := doJSON(t, router, http.MethodPost, "/projects/detect", map[string]string{"path": dir})
	if w.Code != http.StatusOK {
		t.Fatalf("detect = %d", w.Code)
	}

	var res struct {
		Type          string `json:"type"`
		ServerCommand string `json:"server_command"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Type != "rust" || res.ServerCommand != "cargo run" {
		t.Errorf("detect result = %+v", res)
	}
}

func TestDocumentEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPut, "/documents/settings.json",
		bytes.NewBufferString(`{"theme":"dark"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("save = %d: %s", w.Code, w.Body)
	}

	w = doJSON(t, router, http.MethodGet, "/documents/settings.json", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("load = %d", w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/documents/never.json", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing doc = %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPut, "/documents/bad.json",
		bytes.NewBufferString("not json"))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid doc save = %d", w.Code)
	}
}
