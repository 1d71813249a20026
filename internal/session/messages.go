package session

// Message types on the Home Assistant WebSocket API.
const (
	typeAuth            = "auth"
	typeAuthRequired    = "auth_required"
	typeAuthOK          = "auth_ok"
	typeAuthInvalid     = "auth_invalid"
	typeRegistryUpdate  = "config/entity_registry/update"
	defaultErrorMessage = "Unknown error"
)

type envelope struct {
	Type string `json:"type"`
}

type authRequest struct {
	Type        string `json:"type"`
	AccessToken string `json:"access_token"`
}

type authResult struct {
	Type      string `json:"type"`
	Message   string `json:"message,omitempty"`
	HAVersion string `json:"ha_version,omitempty"`
}

// UpdateRequest is a registry update for one entity. Optional fields are
// omitted when empty.
type UpdateRequest struct {
	ID          int    `json:"id"`
	Type        string `json:"type"`
	EntityID    string `json:"entity_id"`
	NewEntityID string `json:"new_entity_id,omitempty"`
	Name        string `json:"name,omitempty"`
}

// UpdateReply is the server's answer to an UpdateRequest.
type UpdateReply struct {
	ID      int         `json:"id,omitempty"`
	Type    string      `json:"type,omitempty"`
	Success bool        `json:"success"`
	Error   *ReplyError `json:"error,omitempty"`
}

// ReplyError is the error object of a failed reply.
type ReplyError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorMessage returns the server's message, or "Unknown error".
func (r UpdateReply) ErrorMessage() string {
	if r.Error == nil || r.Error.Message == "" {
		return defaultErrorMessage
	}
	return r.Error.Message
}
