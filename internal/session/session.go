// Package session applies a rename plan over the Home Assistant WebSocket API.
//
// A Session owns exactly one connection for exactly one plan. Requests are
// strictly sequential: each update is sent only after the reply to the
// previous one has been read, and replies are matched to requests by order.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hassrename/hren/internal/plan"
)

// DefaultReplyTimeout bounds the wait for any single inbound message.
const DefaultReplyTimeout = 30 * time.Second

// State is the session's position in the protocol.
type State int

const (
	Disconnected State = iota
	Authenticating
	Ready
	Sending
	AwaitingReply
	Closed
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Authenticating:
		return "authenticating"
	case Ready:
		return "ready"
	case Sending:
		return "sending"
	case AwaitingReply:
		return "awaiting_reply"
	case Closed:
		return "closed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the result of one update request.
type Outcome struct {
	ID    string `json:"entity_id"`
	NewID string `json:"new_entity_id,omitempty"`
	Label string `json:"name,omitempty"`
	// OriginalLabel is the friendly name before the update.
	OriginalLabel string `json:"friendly_name,omitempty"`
	Success       bool   `json:"success"`
	Error         string `json:"error,omitempty"`
}

// Config holds everything needed to open a session.
type Config struct {
	// URL is the WebSocket endpoint, e.g. "ws://homeassistant.local:8123/api/websocket".
	URL string
	// Token is the long-lived access token sent in the auth message.
	Token string
	// ReplyTimeout bounds each read. Zero means DefaultReplyTimeout.
	ReplyTimeout time.Duration
	// Dialer opens the connection. If nil, websocket.DefaultDialer is used.
	Dialer *websocket.Dialer
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
	// OnOutcome, if set, is called once per outcome in plan order.
	OnOutcome func(index int, outcome Outcome)
}

// URL builds the WebSocket endpoint for host.
func URL(host string, tls bool) string {
	scheme := "ws"
	if tls {
		scheme = "wss"
	}
	return scheme + "://" + strings.TrimRight(host, "/") + "/api/websocket"
}

// Session is a single authenticated connection.
type Session struct {
	conn    *websocket.Conn
	cfg     Config
	logger  *slog.Logger
	state   State
	lastID  int
	version string
}

// Apply runs p over a fresh session. When confirmed is false it returns
// ErrNotConfirmed without touching the network.
//
// On a channel failure the outcomes collected so far are returned together
// with a *ChannelError; nothing is rolled back or retried.
func Apply(ctx context.Context, cfg Config, p *plan.Plan, confirmed bool) ([]Outcome, error) {
	if !confirmed {
		return nil, ErrNotConfirmed
	}
	if p.Len() == 0 {
		return nil, plan.ErrEmptyPlan
	}

	s, err := Dial(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	if err := s.Authenticate(ctx); err != nil {
		return nil, err
	}
	return s.Run(ctx, p)
}

// Dial opens the connection. The caller must Close the returned session.
func Dial(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("session: URL is required")
	}
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = DefaultReplyTimeout
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if err := ctx.Err(); err != nil {
		return nil, &ChannelError{Stage: StageDial, Err: err}
	}
	conn, resp, err := dialer.DialContext(ctx, cfg.URL, http.Header{})
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, &ChannelError{Stage: StageDial, Err: err}
	}

	logger.Info("connected", "url", cfg.URL)
	return &Session{
		conn:   conn,
		cfg:    cfg,
		logger: logger,
		state:  Disconnected,
	}, nil
}

// State returns the current protocol state.
func (s *Session) State() State {
	return s.state
}

// ServerVersion is the ha_version reported in the auth result, if any.
func (s *Session) ServerVersion() string {
	return s.version
}

// Authenticate waits for the server hello, sends the token, and reads the
// auth result. Only an explicit auth_invalid is treated as failure.
func (s *Session) Authenticate(ctx context.Context) error {
	if s.state != Disconnected {
		return fmt.Errorf("session: cannot authenticate in state %s", s.state)
	}
	s.state = Authenticating

	hello, err := s.read(ctx)
	if err != nil {
		return s.fail(StageHello, 0, err)
	}
	var helloEnv envelope
	_ = json.Unmarshal(hello, &helloEnv)
	if helloEnv.Type != typeAuthRequired {
		s.logger.Warn("unexpected hello", "type", helloEnv.Type)
	} else {
		s.logger.Debug("received hello", "type", helloEnv.Type)
	}

	if err := s.write(ctx, authRequest{Type: typeAuth, AccessToken: s.cfg.Token}); err != nil {
		return s.fail(StageAuth, 0, err)
	}
	s.logger.Debug("sent auth")

	raw, err := s.read(ctx)
	if err != nil {
		return s.fail(StageAuth, 0, err)
	}
	var result authResult
	if err := json.Unmarshal(raw, &result); err == nil {
		switch result.Type {
		case typeAuthInvalid:
			return s.fail(StageAuth, 0, &AuthError{Message: result.Message})
		case typeAuthOK:
			s.logger.Debug("authenticated", "ha_version", result.HAVersion)
		default:
			s.logger.Warn("unexpected auth result, continuing", "type", result.Type)
		}
		s.version = result.HAVersion
	}

	s.state = Ready
	return nil
}

// Run sends one update per row, in order, waiting for each reply before
// sending the next.
func (s *Session) Run(ctx context.Context, p *plan.Plan) ([]Outcome, error) {
	if s.state != Ready {
		return nil, fmt.Errorf("session: cannot run plan in state %s", s.state)
	}

	outcomes := make([]Outcome, 0, p.Len())
	for i, row := range p.Rows {
		outcome, err := s.Update(ctx, row)
		if err != nil {
			return outcomes, err
		}
		outcomes = append(outcomes, outcome)
		if s.cfg.OnOutcome != nil {
			s.cfg.OnOutcome(i, outcome)
		}
	}
	return outcomes, nil
}

// Update sends a single registry update and waits for its reply. A
// server-reported failure is returned as an unsuccessful Outcome, not an
// error.
func (s *Session) Update(ctx context.Context, row plan.Row) (Outcome, error) {
	if s.state != Ready {
		return Outcome{}, fmt.Errorf("session: cannot send in state %s", s.state)
	}

	s.lastID++
	req := NewUpdateRequest(s.lastID, row)

	s.state = Sending
	if err := s.write(ctx, req); err != nil {
		return Outcome{}, s.fail(StageSend, req.ID, err)
	}
	s.logger.Debug("sent update", "id", req.ID, "entity_id", req.EntityID,
		"new_entity_id", req.NewEntityID, "name", req.Name)

	s.state = AwaitingReply
	raw, err := s.read(ctx)
	if err != nil {
		return Outcome{}, s.fail(StageReply, req.ID, err)
	}

	var reply UpdateReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return Outcome{}, s.fail(StageReply, req.ID, &ProtocolError{Message: fmt.Sprintf("malformed reply: %v", err)})
	}
	if reply.ID != 0 && reply.ID != req.ID {
		return Outcome{}, s.fail(StageReply, req.ID, &ProtocolError{
			Message: fmt.Sprintf("reply id %d does not match request id %d", reply.ID, req.ID),
		})
	}
	s.logger.Debug("received reply", "id", req.ID, "success", reply.Success)

	s.state = Ready
	return outcomeFor(req, row, reply), nil
}

// NewUpdateRequest builds the update message for row.
func NewUpdateRequest(id int, row plan.Row) UpdateRequest {
	return UpdateRequest{
		ID:          id,
		Type:        typeRegistryUpdate,
		EntityID:    row.ID,
		NewEntityID: row.NewID,
		Name:        row.NewLabel,
	}
}

func outcomeFor(req UpdateRequest, row plan.Row, reply UpdateReply) Outcome {
	if reply.Success {
		return Outcome{
			ID:            req.EntityID,
			NewID:         req.NewEntityID,
			Label:         req.Name,
			OriginalLabel: row.OriginalLabel,
			Success:       true,
		}
	}
	return Outcome{
		ID:            req.EntityID,
		OriginalLabel: row.OriginalLabel,
		Error:         reply.ErrorMessage(),
	}
}

// Close closes the connection. It is safe to call more than once.
func (s *Session) Close() error {
	if s.conn == nil {
		return nil
	}
	conn := s.conn
	s.conn = nil
	if s.state != Failed {
		s.state = Closed
	}

	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	err := conn.Close()
	s.logger.Info("connection closed", "state", s.state.String(), "requests", s.lastID)
	return err
}

func (s *Session) fail(stage Stage, index int, err error) error {
	s.state = Failed
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		_ = s.Close()
	}
	s.logger.Debug("session failed", "stage", string(stage), "index", index, "error", err)
	return &ChannelError{Stage: stage, Index: index, Err: err}
}

func (s *Session) write(ctx context.Context, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := s.conn.SetWriteDeadline(s.deadline(ctx)); err != nil {
		return err
	}
	conn := s.conn
	stop := context.AfterFunc(ctx, func() { _ = conn.SetWriteDeadline(time.Now()) })
	defer stop()
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

func (s *Session) read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.conn.SetReadDeadline(s.deadline(ctx)); err != nil {
		return nil, err
	}
	// Cancellation expires the deadline so a blocked read returns at once.
	conn := s.conn
	stop := context.AfterFunc(ctx, func() { _ = conn.SetReadDeadline(time.Now()) })
	defer stop()
	_, data, err := conn.ReadMessage()
	if err != nil {
		var netErr net.Error
		if ctxErr := ctx.Err(); ctxErr != nil && errors.As(err, &netErr) && netErr.Timeout() {
			return nil, ctxErr
		}
		return nil, err
	}
	return data, nil
}

// deadline is the earlier of the reply timeout and the context deadline.
func (s *Session) deadline(ctx context.Context) time.Time {
	d := time.Now().Add(s.cfg.ReplyTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(d) {
		return ctxDeadline
	}
	return d
}
