package ws

import (
	"encoding/json"

	"github.com/bytedance/sonic"
)

// Message is the envelope for every frame in both directions. Requests
// carry a client-chosen request id echoed on the matching result or error;
// fire-and-forget commands and server events leave it empty.
type Message struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Client -> server: requests (answered with result or error).
const (
	TypeSessionCreate = "session_create"
	TypeSessionKill   = "session_kill"
	TypeFolderSelect  = "folder_select"
	TypeProjectDetect = "project_detect"
	TypeProjectIcon   = "project_icon"
	TypeDocLoad       = "doc_load"
	TypeDocSave       = "doc_save"
)

// Client -> server: fire-and-forget commands.
const (
	TypeSessionWrite    = "session_write"
	TypeSessionResize   = "session_resize"
	TypeNotify          = "notify"
	TypeAttentionBounce = "attention_bounce"
	TypeOpenExternal    = "open_external"
	TypeProjectWatch    = "project_watch"
	TypeProjectUnwatch  = "project_unwatch"
)

// Server -> client.
const (
	TypeResult           = "result"
	TypeError            = "error"
	TypeSessionOutput    = "session_output"
	TypeSessionExit      = "session_exit"
	TypeSessionBusy      = "session_busy"
	TypeSessionPrompt    = "session_prompt"
	TypeSessionStatus    = "session_status"
	TypeProjectChanged   = "project_changed"
	TypeUpdateAvailable  = "update_available"
	TypeUpdateDownloaded = "update_downloaded"
)

// Error codes.
const (
	ErrCodeInvalidMessage = "INVALID_MESSAGE"
	ErrCodeSpawnFailed    = "SPAWN_FAILED"
	ErrCodeUnknownType    = "UNKNOWN_TYPE"
)

// Client -> server payloads.

type SessionCreatePayload struct {
	ProjectID  string `json:"project_id"`
	Kind       string `json:"kind"`
	WorkingDir string `json:"working_dir"`
}

type SessionWritePayload struct {
	SessionID string `json:"session_id"`
	Data      string `json:"data"`
}

type SessionResizePayload struct {
	SessionID string `json:"session_id"`
	Cols      int    `json:"cols"`
	Rows      int    `json:"rows"`
}

type SessionKillPayload struct {
	SessionID string `json:"session_id"`
}

type ProjectPathPayload struct {
	Path string `json:"path"`
}

type ProjectWatchPayload struct {
	ProjectID string `json:"project_id"`
	Path      string `json:"path,omitempty"`
}

type DocLoadPayload struct {
	Name string `json:"name"`
}

type DocSavePayload struct {
	Name string          `json:"name"`
	Data json.RawMessage `json:"data"`
}

type NotifyPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type OpenExternalPayload struct {
	URL string `json:"url"`
}

// Server -> client payloads.

type FolderSelectResult struct {
	Path     string `json:"path,omitempty"`
	Selected bool   `json:"selected"`
}

type ProjectDetectResult struct {
	Type            string `json:"type,omitempty"`
	ServerCommand   string `json:"server_command,omitempty"`
	HasInstructions bool   `json:"has_instructions"`
}

type ProjectIconResult struct {
	Data  string `json:"data,omitempty"` // base64
	Mime  string `json:"mime,omitempty"`
	Found bool   `json:"found"`
}

type DocLoadResult struct {
	Data  json.RawMessage `json:"data,omitempty"`
	Found bool            `json:"found"`
}

type DocSaveResult struct {
	Saved bool `json:"saved"`
}

type SessionOutputPayload struct {
	SessionID string `json:"session_id"`
	ProjectID string `json:"project_id,omitempty"`
	Data      string `json:"data"` // base64; terminal output is raw bytes
}

type SessionExitPayload struct {
	SessionID string `json:"session_id"`
	ProjectID string `json:"project_id,omitempty"`
	ExitCode  int    `json:"exit_code"`
}

type SessionBusyPayload struct {
	SessionID string `json:"session_id"`
	ProjectID string `json:"project_id,omitempty"`
	Busy      bool   `json:"busy"`
}

type SessionPromptPayload struct {
	SessionID string `json:"session_id"`
	ProjectID string `json:"project_id,omitempty"`
	Line      string `json:"line"`
}

type SessionStatusPayload struct {
	SessionID string `json:"session_id"`
	ProjectID string `json:"project_id,omitempty"`
	Running   bool   `json:"running"`
}

type ProjectChangedPayload struct {
	ProjectID string `json:"project_id"`
	Path      string `json:"path"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// encode marshals an envelope with its payload, or nil on failure.
func encode(msgType, requestID string, payload interface{}) []byte {
	var raw json.RawMessage
	if payload != nil {
		data, err := sonic.Marshal(payload)
		if err != nil {
			return nil
		}
		raw = data
	}
	frame, err := sonic.Marshal(Message{Type: msgType, RequestID: requestID, Payload: raw})
	if err != nil {
		return nil
	}
	return frame
}
