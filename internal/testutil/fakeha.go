// Package testutil provides a fake Home Assistant server and CLI helpers for tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
)

// UpdateCall is one registry update received by the fake server.
type UpdateCall struct {
	ID          int     `json:"id"`
	Type        string  `json:"type"`
	EntityID    string  `json:"entity_id"`
	NewEntityID *string `json:"new_entity_id"`
	Name        *string `json:"name"`
}

// ReplyFunc decides the reply to an update. Returning nil drops the
// connection instead of replying.
type ReplyFunc func(call UpdateCall) any

// SuccessReply is the default reply for every update.
func SuccessReply(call UpdateCall) any {
	return map[string]any{"id": call.ID, "type": "result", "success": true, "result": map[string]any{}}
}

// FailureReply builds a failed reply. An empty message omits the error object.
func FailureReply(call UpdateCall, message string) any {
	reply := map[string]any{"id": call.ID, "type": "result", "success": false}
	if message != "" {
		reply["error"] = map[string]any{"code": "invalid_format", "message": message}
	}
	return reply
}

// FakeHA is a fake Home Assistant exposing /api/states and /api/websocket.
type FakeHA struct {
	Token string

	t        testing.TB
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu          sync.Mutex
	states      []map[string]any
	statesCode  int
	reply       ReplyFunc
	authInvalid bool
	dropAfter   int
	updates     []UpdateCall
	authTokens  []string
	connections int
}

// NewFakeHA creates a fake server builder. Call Start to serve.
func NewFakeHA(t testing.TB) *FakeHA {
	t.Helper()
	return &FakeHA{
		Token:      "test-token",
		t:          t,
		statesCode: http.StatusOK,
		reply:      SuccessReply,
		dropAfter:  -1,
	}
}

// WithToken sets the token the server accepts.
func (f *FakeHA) WithToken(token string) *FakeHA {
	f.Token = token
	return f
}

// WithEntity adds an entity to /api/states. An empty label omits friendly_name.
func (f *FakeHA) WithEntity(entityID, label string) *FakeHA {
	attrs := map[string]any{}
	if label != "" {
		attrs["friendly_name"] = label
	}
	f.states = append(f.states, map[string]any{
		"entity_id":  entityID,
		"state":      "on",
		"attributes": attrs,
	})
	return f
}

// WithStatesStatus makes /api/states answer with code.
func (f *FakeHA) WithStatesStatus(code int) *FakeHA {
	f.statesCode = code
	return f
}

// WithReply sets the reply function for updates.
func (f *FakeHA) WithReply(fn ReplyFunc) *FakeHA {
	f.reply = fn
	return f
}

// WithAuthInvalid makes the server reject every token.
func (f *FakeHA) WithAuthInvalid() *FakeHA {
	f.authInvalid = true
	return f
}

// DropAfter closes the connection after n updates have been answered.
func (f *FakeHA) DropAfter(n int) *FakeHA {
	f.dropAfter = n
	return f
}

// Start starts the server and registers cleanup on the test.
func (f *FakeHA) Start() *FakeHA {
	f.t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/states", f.handleStates)
	mux.HandleFunc("/api/websocket", f.handleWebSocket)
	f.server = httptest.NewServer(mux)
	f.t.Cleanup(f.server.Close)
	return f
}

// Host returns host:port of the server.
func (f *FakeHA) Host() string {
	return strings.TrimPrefix(f.server.URL, "http://")
}

// BaseURL returns the HTTP base URL.
func (f *FakeHA) BaseURL() string {
	return f.server.URL
}

// WebSocketURL returns the WebSocket endpoint.
func (f *FakeHA) WebSocketURL() string {
	return "ws://" + f.Host() + "/api/websocket"
}

// Updates returns the updates received so far, in order.
func (f *FakeHA) Updates() []UpdateCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]UpdateCall, len(f.updates))
	copy(out, f.updates)
	return out
}

// AuthTokens returns every token presented in an auth message.
func (f *FakeHA) AuthTokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.authTokens...)
}

// Connections returns the number of WebSocket connections accepted.
func (f *FakeHA) Connections() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connections
}

func (f *FakeHA) handleStates(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+f.Token {
		http.Error(w, `{"message":"Invalid authentication"}`, http.StatusUnauthorized)
		return
	}
	f.mu.Lock()
	code := f.statesCode
	states := f.states
	f.mu.Unlock()

	if code != http.StatusOK {
		http.Error(w, `{"message":"boom"}`, code)
		return
	}
	if states == nil {
		states = []map[string]any{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(states)
}

func (f *FakeHA) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	f.mu.Lock()
	f.connections++
	f.mu.Unlock()

	if err := conn.WriteJSON(map[string]any{"type": "auth_required", "ha_version": "2024.6.0"}); err != nil {
		return
	}

	var auth struct {
		Type        string `json:"type"`
		AccessToken string `json:"access_token"`
	}
	if err := conn.ReadJSON(&auth); err != nil {
		return
	}
	f.mu.Lock()
	f.authTokens = append(f.authTokens, auth.AccessToken)
	f.mu.Unlock()

	if f.authInvalid || auth.AccessToken != f.Token {
		_ = conn.WriteJSON(map[string]any{"type": "auth_invalid", "message": "Invalid access token or password"})
		return
	}
	if err := conn.WriteJSON(map[string]any{"type": "auth_ok", "ha_version": "2024.6.0"}); err != nil {
		return
	}

	f.mu.Lock()
	reply := f.reply
	dropAfter := f.dropAfter
	f.mu.Unlock()

	for answered := 0; dropAfter < 0 || answered < dropAfter; answered++ {
		var call UpdateCall
		if err := conn.ReadJSON(&call); err != nil {
			return
		}
		f.mu.Lock()
		f.updates = append(f.updates, call)
		f.mu.Unlock()

		payload := reply(call)
		if payload == nil {
			return
		}
		if raw, ok := payload.(json.RawMessage); ok {
			if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		} else if err := conn.WriteJSON(payload); err != nil {
			return
		}
	}
}
