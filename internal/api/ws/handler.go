package ws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vterm/vterm/backend/internal/infrastructure/logging"
	"github.com/vterm/vterm/backend/internal/infrastructure/monitoring"
	"github.com/vterm/vterm/backend/internal/providers/dialog"
	"github.com/vterm/vterm/backend/internal/providers/notify"
	"github.com/vterm/vterm/backend/internal/providers/project"
	"github.com/vterm/vterm/backend/internal/providers/store"
	"github.com/vterm/vterm/backend/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // local IPC; the listener binds loopback
	},
}

// Handler serves the /stream endpoint.
type Handler struct {
	manager  *session.Manager
	dialog   *dialog.Dialog
	notifier *notify.Notifier
	store    *store.Store
	watcher  *project.Watcher
	logger   *logging.Logger
	metrics  *monitoring.Metrics

	mu      sync.RWMutex
	clients map[*client]bool
}

// NewHandler creates the stream handler. The project watcher is owned by
// the handler; its change events go out as project_changed frames.
func NewHandler(
	manager *session.Manager,
	dlg *dialog.Dialog,
	notifier *notify.Notifier,
	st *store.Store,
	logger *logging.Logger,
) *Handler {
	h := &Handler{
		manager:  manager,
		dialog:   dlg,
		notifier: notifier,
		store:    st,
		logger:   logger.Named("ws"),
		clients:  make(map[*client]bool),
	}
	h.watcher = project.NewWatcher(h.onProjectChanged, logger)
	return h
}

// WithMetrics attaches a metrics collector.
func (h *Handler) WithMetrics(metrics *monitoring.Metrics) *Handler {
	h.metrics = metrics
	return h
}

// HandleConnection upgrades the request and runs the connection until it
// closes. One hub subscription per connection, disposed on disconnect.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	cl := &client{
		id:      uuid.NewString(),
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		handler: h,
	}

	h.mu.Lock()
	h.clients[cl] = true
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.IncWSConnections()
	}
	h.logger.Debug("Client connected",
		zap.String("client_id", cl.id),
		zap.String("remote", conn.RemoteAddr().String()))

	events, disposeSub := h.manager.Hub().Subscribe()
	cl.dispose = disposeSub
	go h.forwardEvents(cl, events)

	go cl.writePump()
	go cl.readPump()
}

// Shutdown stops the project watcher. Connections close with the listener.
func (h *Handler) Shutdown() {
	h.watcher.Shutdown()
}

// removeClient is called by the read pump exactly once per connection.
func (h *Handler) removeClient(cl *client) {
	h.mu.Lock()
	_, ok := h.clients[cl]
	if ok {
		delete(h.clients, cl)
	}
	h.mu.Unlock()

	if !ok {
		return
	}
	// Disposing closes the event channel, which ends forwardEvents. The
	// send channel is left open; the write pump exits on its dead conn.
	cl.dispose()
	if h.metrics != nil {
		h.metrics.DecWSConnections()
	}
	h.logger.Debug("Client disconnected", zap.String("client_id", cl.id))
}

// forwardEvents translates hub events into frames for one client. It runs
// until the client's hub subscription is disposed.
func (h *Handler) forwardEvents(cl *client, events <-chan session.Event) {
	for ev := range events {
		frame := encodeEvent(ev)
		if frame == nil {
			continue
		}
		select {
		case cl.send <- frame:
			if h.metrics != nil {
				h.metrics.IncWSMessages("out", string(ev.Type))
			}
		default:
			// Slow client; the terminal view resyncs from later output.
		}
	}
}

// encodeEvent maps a hub event to its wire frame.
func encodeEvent(ev session.Event) []byte {
	switch ev.Type {
	case session.EventOutput:
		return encode(TypeSessionOutput, "", SessionOutputPayload{
			SessionID: ev.SessionID,
			ProjectID: ev.ProjectID,
			Data:      base64.StdEncoding.EncodeToString(ev.Data),
		})
	case session.EventExit:
		return encode(TypeSessionExit, "", SessionExitPayload{
			SessionID: ev.SessionID,
			ProjectID: ev.ProjectID,
			ExitCode:  ev.ExitCode,
		})
	case session.EventBusy:
		return encode(TypeSessionBusy, "", SessionBusyPayload{
			SessionID: ev.SessionID,
			ProjectID: ev.ProjectID,
			Busy:      ev.Busy,
		})
	case session.EventPrompt:
		return encode(TypeSessionPrompt, "", SessionPromptPayload{
			SessionID: ev.SessionID,
			ProjectID: ev.ProjectID,
			Line:      string(ev.Data),
		})
	case session.EventStatus:
		return encode(TypeSessionStatus, "", SessionStatusPayload{
			SessionID: ev.SessionID,
			ProjectID: ev.ProjectID,
			Running:   ev.Running,
		})
	}
	return nil
}

// dispatch routes one inbound frame.
func (h *Handler) dispatch(cl *client, raw []byte) {
	var msg Message
	if err := sonic.Unmarshal(raw, &msg); err != nil {
		cl.enqueue(encode(TypeError, "", ErrorPayload{
			Code:    ErrCodeInvalidMessage,
			Message: "malformed frame",
		}))
		return
	}
	if h.metrics != nil {
		h.metrics.IncWSMessages("in", msg.Type)
	}

	switch msg.Type {
	case TypeSessionCreate:
		h.handleSessionCreate(cl, msg)
	case TypeSessionKill:
		h.handleSessionKill(cl, msg)
	case TypeFolderSelect:
		h.handleFolderSelect(cl, msg)
	case TypeProjectDetect:
		h.handleProjectDetect(cl, msg)
	case TypeProjectIcon:
		h.handleProjectIcon(cl, msg)
	case TypeDocLoad:
		h.handleDocLoad(cl, msg)
	case TypeDocSave:
		h.handleDocSave(cl, msg)

	case TypeSessionWrite:
		var p SessionWritePayload
		if sonic.Unmarshal(msg.Payload, &p) == nil {
			h.manager.Write(p.SessionID, []byte(p.Data))
		}
	case TypeSessionResize:
		var p SessionResizePayload
		if sonic.Unmarshal(msg.Payload, &p) == nil {
			h.manager.Resize(p.SessionID, p.Cols, p.Rows)
		}
	case TypeNotify:
		var p NotifyPayload
		if sonic.Unmarshal(msg.Payload, &p) == nil {
			h.notifier.Notify(p.Title, p.Body)
		}
	case TypeAttentionBounce:
		h.notifier.Bounce()
	case TypeOpenExternal:
		var p OpenExternalPayload
		if sonic.Unmarshal(msg.Payload, &p) == nil {
			h.notifier.OpenExternal(p.URL)
		}
	case TypeProjectWatch:
		var p ProjectWatchPayload
		if sonic.Unmarshal(msg.Payload, &p) == nil {
			if err := h.watcher.Watch(p.ProjectID, p.Path); err != nil {
				h.logger.Debug("Watch failed",
					zap.String("project_id", p.ProjectID), zap.Error(err))
			}
		}
	case TypeProjectUnwatch:
		var p ProjectWatchPayload
		if sonic.Unmarshal(msg.Payload, &p) == nil {
			h.watcher.Unwatch(p.ProjectID)
		}

	default:
		cl.enqueue(encode(TypeError, msg.RequestID, ErrorPayload{
			Code:    ErrCodeUnknownType,
			Message: "unknown message type: " + msg.Type,
		}))
	}
}

func (h *Handler) handleSessionCreate(cl *client, msg Message) {
	var p SessionCreatePayload
	if err := sonic.Unmarshal(msg.Payload, &p); err != nil {
		cl.enqueue(encode(TypeError, msg.RequestID, ErrorPayload{
			Code:    ErrCodeInvalidMessage,
			Message: "bad session_create payload",
		}))
		return
	}

	kind, err := session.ParseKind(p.Kind)
	if err != nil {
		cl.enqueue(encode(TypeError, msg.RequestID, ErrorPayload{
			Code:    ErrCodeInvalidMessage,
			Message: err.Error(),
		}))
		return
	}

	info, err := h.manager.Create(p.ProjectID, kind, p.WorkingDir)
	if err != nil {
		code := ErrCodeInvalidMessage
		if errors.Is(err, session.ErrSpawnFailed) {
			code = ErrCodeSpawnFailed
		}
		cl.enqueue(encode(TypeError, msg.RequestID, ErrorPayload{
			Code:    code,
			Message: err.Error(),
		}))
		return
	}
	cl.enqueue(encode(TypeResult, msg.RequestID, info))
}

func (h *Handler) handleSessionKill(cl *client, msg Message) {
	var p SessionKillPayload
	if err := sonic.Unmarshal(msg.Payload, &p); err != nil {
		cl.enqueue(encode(TypeError, msg.RequestID, ErrorPayload{
			Code:    ErrCodeInvalidMessage,
			Message: "bad session_kill payload",
		}))
		return
	}
	// Unknown ids are fine; the kill already happened from the caller's
	// point of view.
	h.manager.Kill(p.SessionID)
	cl.enqueue(encode(TypeResult, msg.RequestID, struct{}{}))
}

func (h *Handler) handleFolderSelect(cl *client, msg Message) {
	// The picker blocks on the user; never stall the read pump for it.
	go func() {
		path, ok := h.dialog.SelectFolder(context.Background())
		cl.enqueue(encode(TypeResult, msg.RequestID, FolderSelectResult{
			Path:     path,
			Selected: ok,
		}))
	}()
}

func (h *Handler) handleProjectDetect(cl *client, msg Message) {
	var p ProjectPathPayload
	if err := sonic.Unmarshal(msg.Payload, &p); err != nil || p.Path == "" {
		cl.enqueue(encode(TypeError, msg.RequestID, ErrorPayload{
			Code:    ErrCodeInvalidMessage,
			Message: "bad project_detect payload",
		}))
		return
	}

	det := project.Detect(p.Path)
	cl.enqueue(encode(TypeResult, msg.RequestID, ProjectDetectResult{
		Type:            det.Type,
		ServerCommand:   det.ServerCommand,
		HasInstructions: project.HasInstructions(p.Path),
	}))
}

func (h *Handler) handleProjectIcon(cl *client, msg Message) {
	var p ProjectPathPayload
	if err := sonic.Unmarshal(msg.Payload, &p); err != nil || p.Path == "" {
		cl.enqueue(encode(TypeError, msg.RequestID, ErrorPayload{
			Code:    ErrCodeInvalidMessage,
			Message: "bad project_icon payload",
		}))
		return
	}

	data, mime, found := project.DetectIcon(p.Path)
	res := ProjectIconResult{Found: found}
	if found {
		res.Data = base64.StdEncoding.EncodeToString(data)
		res.Mime = mime
	}
	cl.enqueue(encode(TypeResult, msg.RequestID, res))
}

func (h *Handler) handleDocLoad(cl *client, msg Message) {
	var p DocLoadPayload
	if err := sonic.Unmarshal(msg.Payload, &p); err != nil {
		cl.enqueue(encode(TypeError, msg.RequestID, ErrorPayload{
			Code:    ErrCodeInvalidMessage,
			Message: "bad doc_load payload",
		}))
		return
	}

	data, found := h.store.Load(p.Name)
	res := DocLoadResult{Found: found}
	if found {
		res.Data = json.RawMessage(data)
	}
	cl.enqueue(encode(TypeResult, msg.RequestID, res))
}

func (h *Handler) handleDocSave(cl *client, msg Message) {
	var p DocSavePayload
	if err := sonic.Unmarshal(msg.Payload, &p); err != nil {
		cl.enqueue(encode(TypeError, msg.RequestID, ErrorPayload{
			Code:    ErrCodeInvalidMessage,
			Message: "bad doc_save payload",
		}))
		return
	}
	saved := h.store.Save(p.Name, p.Data)
	cl.enqueue(encode(TypeResult, msg.RequestID, DocSaveResult{Saved: saved}))
}

// onProjectChanged broadcasts a watcher notification to every client.
func (h *Handler) onProjectChanged(projectID, path string) {
	h.broadcast(encode(TypeProjectChanged, "", ProjectChangedPayload{
		ProjectID: projectID,
		Path:      path,
	}))
}

// PublishUpdateAvailable broadcasts an update_available event. The update
// checker lives outside the backend; this is its entry point.
func (h *Handler) PublishUpdateAvailable(payload interface{}) {
	h.broadcast(encode(TypeUpdateAvailable, "", payload))
}

// PublishUpdateDownloaded broadcasts an update_downloaded event.
func (h *Handler) PublishUpdateDownloaded(payload interface{}) {
	h.broadcast(encode(TypeUpdateDownloaded, "", payload))
}

func (h *Handler) broadcast(frame []byte) {
	if frame == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for cl := range h.clients {
		cl.enqueue(frame)
	}
}
