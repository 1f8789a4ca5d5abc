package link

import (
	"context"
	"encoding/json"
	"net/http"

	apperrors "github.com/agentdesk-dev/agentdesk/pkg/desk/errors"
	"github.com/agentdesk-dev/agentdesk/pkg/desk/gateway"
)

// Caller issues authenticated calls to the API gateway.
type Caller interface {
	Call(ctx context.Context, endpoint string, opts gateway.CallOptions) (json.RawMessage, error)
}

// Status describes whether a third-party account is linked.
type Status struct {
	Connected bool   `json:"connected"`
	Username  string `json:"username,omitempty"`
}

// Service defines the account-linking operations against the backend.
type Service interface {
	// ConnectURL asks the backend to start a linking flow and returns the
	// provider redirect target.
	ConnectURL(ctx context.Context) (string, error)

	// Disconnect removes the third-party account association.
	Disconnect(ctx context.Context) error

	// Status reports the current linking state.
	Status(ctx context.Context) (*Status, error)
}

// HTTPService implements Service over the authenticated gateway.
type HTTPService struct {
	gw Caller
}

// NewHTTPService creates a linking service on top of the gateway.
func NewHTTPService(gw Caller) *HTTPService {
	return &HTTPService{gw: gw}
}

type connectResponse struct {
	RedirectURL string `json:"redirectUrl"`
}

func (s *HTTPService) ConnectURL(ctx context.Context) (string, error) {
	raw, err := s.gw.Call(ctx, "github/connect", gateway.CallOptions{Method: http.MethodGet})
	if err != nil {
		return "", err
	}

	var resp connectResponse
	if raw != nil {
		if err := json.Unmarshal(raw, &resp); err != nil {
			return "", apperrors.New(apperrors.ErrCodeNoRedirectURL, "No redirect URL provided.", err)
		}
	}
	if resp.RedirectURL == "" {
		return "", apperrors.New(apperrors.ErrCodeNoRedirectURL, "No redirect URL provided.", nil)
	}
	return resp.RedirectURL, nil
}

func (s *HTTPService) Disconnect(ctx context.Context) error {
	_, err := s.gw.Call(ctx, "github/disconnect", gateway.CallOptions{Method: http.MethodDelete})
	return err
}

func (s *HTTPService) Status(ctx context.Context) (*Status, error) {
	raw, err := s.gw.Call(ctx, "github/status", gateway.CallOptions{Method: http.MethodGet})
	if err != nil {
		return nil, err
	}

	var status Status
	if raw != nil {
		if err := json.Unmarshal(raw, &status); err != nil {
			return nil, apperrors.New(apperrors.ErrCodeLinkStatus, "failed to decode linking status", err)
		}
	}
	return &status, nil
}
