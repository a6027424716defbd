//go:build !windows

package ws

import (
	"encoding/base64"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vterm/vterm/backend/internal/infrastructure/config"
	"github.com/vterm/vterm/backend/internal/infrastructure/logging"
	"github.com/vterm/vterm/backend/internal/providers/dialog"
	"github.com/vterm/vterm/backend/internal/providers/notify"
	"github.com/vterm/vterm/backend/internal/providers/store"
	"github.com/vterm/vterm/backend/internal/session"
)

func newTestStream(t *testing.T) (*websocket.Conn, *session.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := &logging.Logger{Logger: zap.NewNop()}

	cfg := config.SessionConfig{
		Shell:         "/bin/sh",
		IdleThreshold: 500 * time.Millisecond,
		ActivityTick:  50 * time.Millisecond,
		DefaultCols:   80,
		DefaultRows:   24,
	}
	manager := session.NewManager(cfg, session.NewHub(), logger)
	t.Cleanup(func() { manager.CloseAll(5 * time.Second) })

	h := NewHandler(manager, dialog.New(logger), notify.New(logger), store.New(t.TempDir(), logger), logger)
	t.Cleanup(h.Shutdown)

	router := gin.New()
	router.GET("/stream", h.HandleConnection)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, manager
}

func sendMessage(t *testing.T, conn *websocket.Conn, msgType, requestID string, payload interface{}) {
	t.Helper()
	frame := encode(msgType, requestID, payload)
	if frame == nil {
		t.Fatal("failed to encode frame")
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

// readUntil reads frames until match returns true, failing on timeout.
func readUntil(t *testing.T, conn *websocket.Conn, timeout time.Duration, match func(Message) bool) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(timeout))
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		var msg Message
		if err := sonic.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("bad frame %s: %v", raw, err)
		}
		if match(msg) {
			return msg
		}
	}
}

func TestSessionLifecycleOverStream(t *testing.T) {
	conn, _ := newTestStream(t)

	sendMessage(t, conn, TypeSessionCreate, "req-1", SessionCreatePayload{
		ProjectID:  "proj_demo",
		Kind:       "main",
		WorkingDir: t.TempDir(),
	})

	result := readUntil(t, conn, 5*time.Second, func(m Message) bool {
		return m.RequestID == "req-1"
	})
	if result.Type != TypeResult {
		t.Fatalf("expected result, got %s: %s", result.Type, result.Payload)
	}

	var info session.Info
	if err := sonic.Unmarshal(result.Payload, &info); err != nil {
		t.Fatalf("bad result payload: %v", err)
	}
	if info.ID == "" {
		t.Fatal("result carried no session id")
	}

	sendMessage(t, conn, TypeSessionWrite, "", SessionWritePayload{
		SessionID: info.ID,
		Data:      "echo over-the-wire\n",
	})

	readUntil(t, conn, 5*time.Second, func(m Message) bool {
		if m.Type != TypeSessionOutput {
			return false
		}
		var p SessionOutputPayload
		if sonic.Unmarshal(m.Payload, &p) != nil || p.SessionID != info.ID {
			return false
		}
		data, err := base64.StdEncoding.DecodeString(p.Data)
		return err == nil && strings.Contains(string(data), "over-the-wire")
	})

	sendMessage(t, conn, TypeSessionKill, "req-2", SessionKillPayload{SessionID: info.ID})

	kill := readUntil(t, conn, 5*time.Second, func(m Message) bool {
		return m.RequestID == "req-2"
	})
	if kill.Type != TypeResult {
		t.Fatalf("kill answered with %s: %s", kill.Type, kill.Payload)
	}

	readUntil(t, conn, 5*time.Second, func(m Message) bool {
		if m.Type != TypeSessionExit {
			return false
		}
		var p SessionExitPayload
		return sonic.Unmarshal(m.Payload, &p) == nil && p.SessionID == info.ID
	})
}

func TestUnknownMessageType(t *testing.T) {
	conn, _ := newTestStream(t)

	sendMessage(t, conn, "time_travel", "req-9", struct{}{})

	msg := readUntil(t, conn, 5*time.Second, func(m Message) bool {
		return m.RequestID == "req-9"
	})
	if msg.Type != TypeError {
		t.Fatalf("expected error, got %s", msg.Type)
	}
	var p ErrorPayload
	if err := sonic.Unmarshal(msg.Payload, &p); err != nil || p.Code != ErrCodeUnknownType {
		t.Errorf("error payload = %s", msg.Payload)
	}
}

func TestMalformedFrame(t *testing.T) {
	conn, _ := newTestStream(t)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{nope")); err != nil {
		t.Fatal(err)
	}

	msg := readUntil(t, conn, 5*time.Second, func(m Message) bool {
		return m.Type == TypeError
	})
	var p ErrorPayload
	if err := sonic.Unmarshal(msg.Payload, &p); err != nil || p.Code != ErrCodeInvalidMessage {
		t.Errorf("error payload = %s", msg.Payload)
	}
}

func TestSessionCreateRejectsBadKind(t *testing.T) {
	conn, _ := newTestStream(t)

	sendMessage(t, conn, TypeSessionCreate, "req-3", SessionCreatePayload{
		ProjectID: "proj_demo",
		Kind:      "daemon",
	})

	msg := readUntil(t, conn, 5*time.Second, func(m Message) bool {
		return m.RequestID == "req-3"
	})
	if msg.Type != TypeError {
		t.Fatalf("expected error, got %s: %s", msg.Type, msg.Payload)
	}
}

func TestKillUnknownSessionStillSucceeds(t *testing.T) {
	conn, _ := newTestStream(t)

	sendMessage(t, conn, TypeSessionKill, "req-4", SessionKillPayload{SessionID: "sess_gone"})

	msg := readUntil(t, conn, 5*time.Second, func(m Message) bool {
		return m.RequestID == "req-4"
	})
	if msg.Type != TypeResult {
		t.Fatalf("kill of unknown id answered with %s", msg.Type)
	}
}

func TestDocumentRoundTripOverStream(t *testing.T) {
	conn, _ := newTestStream(t)

	sendMessage(t, conn, TypeDocSave, "req-5", DocSavePayload{
		Name: "prompts.json",
		Data: []byte(`{"items":["make test"]}`),
	})
	saveMsg := readUntil(t, conn, 5*time.Second, func(m Message) bool {
		return m.RequestID == "req-5"
	})
	var saveRes DocSaveResult
	if err := sonic.Unmarshal(saveMsg.Payload, &saveRes); err != nil || !saveRes.Saved {
		t.Fatalf("save result = %s", saveMsg.Payload)
	}

	sendMessage(t, conn, TypeDocLoad, "req-6", DocLoadPayload{Name: "prompts.json"})
	loadMsg := readUntil(t, conn, 5*time.Second, func(m Message) bool {
		return m.RequestID == "req-6"
	})
	var loadRes DocLoadResult
	if err := sonic.Unmarshal(loadMsg.Payload, &loadRes); err != nil || !loadRes.Found {
		t.Fatalf("load result = %s", loadMsg.Payload)
	}
	if string(loadRes.Data) != `{"items":["make test"]}` {
		t.Errorf("loaded %s", loadRes.Data)
	}

	sendMessage(t, conn, TypeDocLoad, "req-7", DocLoadPayload{Name: "missing.json"})
	missMsg := readUntil(t, conn, 5*time.Second, func(m Message) bool {
		return m.RequestID == "req-7"
	})
	var missRes DocLoadResult
	if err := sonic.Unmarshal(missMsg.Payload, &missRes); err != nil || missRes.Found {
		t.Errorf("missing doc result = %s", missMsg.Payload)
	}
}

func writeProjectFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestProjectDetectOverStream(t *testing.T) {
	conn, _ := newTestStream(t)

	dir := t.TempDir()
	writeProjectFile(t, dir, "go.mod", "module example.com/demo\n")
	writeProjectFile(t, dir, "CLAUDE.md", "# rules\n")

	sendMessage(t, conn, TypeProjectDetect, "req-8", ProjectPathPayload{Path: dir})

	msg := readUntil(t, conn, 5*time.Second, func(m Message) bool {
		return m.RequestID == "req-8"
	})
	var res ProjectDetectResult
	if err := sonic.Unmarshal(msg.Payload, &res); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	if res.Type != "go" || res.ServerCommand != "go run ." || !res.HasInstructions {
		t.Errorf("detect result = %+v", res)
	}
}
