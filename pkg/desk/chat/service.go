package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-logr/logr"

	apperrors "github.com/agentdesk-dev/agentdesk/pkg/desk/errors"
	"github.com/agentdesk-dev/agentdesk/pkg/desk/gateway"
	"github.com/agentdesk-dev/agentdesk/pkg/desk/render"
)

// Caller issues authenticated calls to the API gateway.
type Caller interface {
	Call(ctx context.Context, endpoint string, opts gateway.CallOptions) (json.RawMessage, error)
}

// ExchangeRequest carries one user turn plus its routing fields.
type ExchangeRequest struct {
	Text      string
	UserID    string
	AppName   string
	SessionID string
}

// Service defines the conversation operations against the agent backend.
type Service interface {
	// AcquireSession creates a new conversation session and returns its id.
	AcquireSession(ctx context.Context, userID, appName string) (string, error)

	// ListSessions returns the user's existing sessions for the app.
	ListSessions(ctx context.Context, userID, appName string) ([]Session, error)

	// Exchange sends one user turn and returns the model's reply.
	Exchange(ctx context.Context, req ExchangeRequest) (*Message, error)
}

// HTTPService implements Service over the authenticated gateway.
type HTTPService struct {
	gw       Caller
	renderer render.Renderer
	now      func() time.Time
	log      logr.Logger
}

// ServiceOption configures an HTTPService.
type ServiceOption func(*HTTPService)

// WithClock overrides the timestamp source for generated message ids.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *HTTPService) { s.now = now }
}

// WithServiceLogger sets the service logger.
func WithServiceLogger(log logr.Logger) ServiceOption {
	return func(s *HTTPService) { s.log = log }
}

// NewHTTPService creates a conversation service on top of the gateway.
func NewHTTPService(gw Caller, renderer render.Renderer, opts ...ServiceOption) *HTTPService {
	if renderer == nil {
		renderer = render.Plain{}
	}
	s := &HTTPService{
		gw:       gw,
		renderer: renderer,
		now:      time.Now,
		log:      logr.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type sessionResponse struct {
	ID string `json:"id"`
}

type messagePart struct {
	Text string `json:"text"`
}

type newMessage struct {
	Role  string        `json:"role"`
	Parts []messagePart `json:"parts"`
}

type runRequest struct {
	AppName    string     `json:"appName"`
	UserID     string     `json:"userId"`
	SessionID  string     `json:"sessionId"`
	NewMessage newMessage `json:"newMessage"`
	Streaming  bool       `json:"streaming"`
}

type eventContent struct {
	Parts []messagePart `json:"parts"`
}

// agentEvent is one entry of the backend's reply list. The backend may return
// multiple turns (tool calls and intermediate steps); only the final part of
// the final entry is user-facing.
type agentEvent struct {
	ID      string        `json:"id"`
	Content *eventContent `json:"content"`
}

func (s *HTTPService) AcquireSession(ctx context.Context, userID, appName string) (string, error) {
	s.log.V(1).Info("acquiring session", "user", userID, "app", appName)

	raw, err := s.gw.Call(ctx, "agent/session", gateway.CallOptions{Method: http.MethodPost})
	if err != nil {
		return "", err
	}
	if raw == nil {
		return "", apperrors.New(apperrors.ErrCodeSessionResponse, "failed to acquire session or session ID missing", nil)
	}

	var resp sessionResponse
	if err := json.Unmarshal(raw, &resp); err != nil || resp.ID == "" {
		return "", apperrors.New(apperrors.ErrCodeSessionResponse, "failed to acquire session or session ID missing", err)
	}

	s.log.V(1).Info("session acquired", "session", resp.ID)
	return resp.ID, nil
}

func (s *HTTPService) ListSessions(ctx context.Context, userID, appName string) ([]Session, error) {
	raw, err := s.gw.Call(ctx, "agent/session", gateway.CallOptions{Method: http.MethodGet})
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	var sessions []Session
	if err := json.Unmarshal(raw, &sessions); err != nil {
		return nil, apperrors.New(apperrors.ErrCodeSessionResponse, "failed to decode session list", err)
	}
	return sessions, nil
}

func (s *HTTPService) Exchange(ctx context.Context, req ExchangeRequest) (*Message, error) {
	payload := runRequest{
		AppName:   req.AppName,
		UserID:    req.UserID,
		SessionID: req.SessionID,
		NewMessage: newMessage{
			Role:  string(RoleUser),
			Parts: []messagePart{{Text: req.Text}},
		},
		Streaming: false,
	}

	raw, err := s.gw.Call(ctx, "agent/run", gateway.CallOptions{Method: http.MethodPost, Body: payload})
	if err != nil {
		return nil, err
	}

	var events []agentEvent
	if raw != nil {
		if err := json.Unmarshal(raw, &events); err != nil {
			return nil, apperrors.New(apperrors.ErrCodeMalformedContent, "response does not contain expected content structure", err)
		}
	}
	if len(events) == 0 {
		return nil, apperrors.New(apperrors.ErrCodeEmptyResponse, "invalid response structure from the agent (empty or null)", nil)
	}

	last := events[len(events)-1]
	if last.Content == nil || len(last.Content.Parts) == 0 {
		return nil, apperrors.New(apperrors.ErrCodeMalformedContent, "response does not contain expected content structure", nil)
	}

	text := last.Content.Parts[len(last.Content.Parts)-1].Text

	rendered, err := s.renderer.Render(text)
	if err != nil {
		// Never lose the reply over a rendering failure.
		s.log.Error(err, "failed to render reply, falling back to raw text")
		rendered = text
	}

	id := last.ID
	if id == "" {
		id = fmt.Sprintf("model-%d", s.now().UnixMilli())
	}

	return &Message{
		ID:           id,
		Role:         RoleModel,
		Text:         text,
		RenderedText: rendered,
	}, nil
}
