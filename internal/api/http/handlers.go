// Package http exposes the REST mirror of the stream operations for
// non-streaming callers: health probes, scripts, and anything that wants a
// one-shot answer without a WebSocket.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vterm/vterm/backend/internal/providers/project"
	"github.com/vterm/vterm/backend/internal/providers/store"
	"github.com/vterm/vterm/backend/internal/session"
)

// Handlers bundles the REST endpoints and their collaborators.
type Handlers struct {
	manager *session.Manager
	store   *store.Store
	started time.Time
}

// NewHandlers creates the REST handler set.
func NewHandlers(manager *session.Manager, st *store.Store) *Handlers {
	return &Handlers{
		manager: manager,
		store:   st,
		started: time.Now(),
	}
}

// Health reports process liveness.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"uptime_seconds": int(time.Since(h.started).Seconds()),
		"sessions":       len(h.manager.List()),
	})
}

// ListSessions returns snapshots of all live sessions.
func (h *Handlers) ListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"sessions": h.manager.List(),
	})
}

// CreateSession spawns a session.
func (h *Handlers) CreateSession(c *gin.Context) {
	var req struct {
		ProjectID  string `json:"project_id"`
		Kind       string `json:"kind" binding:"required"`
		WorkingDir string `json:"working_dir"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	kind, err := session.ParseKind(req.Kind)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	info, err := h.manager.Create(req.ProjectID, kind, req.WorkingDir)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, session.ErrSpawnFailed) {
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "session": info})
}

// KillSession requests teardown. Unknown ids succeed; the session is gone
// either way.
func (h *Handlers) KillSession(c *gin.Context) {
	h.manager.Kill(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ResizeSession updates PTY dimensions.
func (h *Handlers) ResizeSession(c *gin.Context) {
	var req struct {
		Cols int `json:"cols" binding:"required"`
		Rows int `json:"rows" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	h.manager.Resize(c.Param("id"), req.Cols, req.Rows)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// DetectProject classifies a project directory.
func (h *Handlers) DetectProject(c *gin.Context) {
	var req struct {
		Path string `json:"path" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	det := project.Detect(req.Path)
	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"type":             det.Type,
		"server_command":   det.ServerCommand,
		"has_instructions": project.HasInstructions(req.Path),
	})
}

// LoadDocument returns a stored JSON document.
func (h *Handlers) LoadDocument(c *gin.Context) {
	data, found := h.store.Load(c.Param("name"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "document not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": json.RawMessage(data)})
}

// SaveDocument stores a JSON document.
func (h *Handlers) SaveDocument(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	if !h.store.Save(c.Param("name"), raw) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "document rejected"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
