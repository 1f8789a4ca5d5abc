package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentdesk-dev/agentdesk/pkg/desk/auth"
	apperrors "github.com/agentdesk-dev/agentdesk/pkg/desk/errors"
)

// fakeProvider hands out scripted credentials and counts refreshes.
type fakeProvider struct {
	mu           sync.Mutex
	current      *auth.Credential
	refreshed    *auth.Credential
	refreshErr   error
	refreshCalls int
}

func (f *fakeProvider) Credential(ctx context.Context) (*auth.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current, nil
}

func (f *fakeProvider) ForceRefresh(ctx context.Context) (*auth.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	if f.refreshed != nil {
		f.current = f.refreshed
	}
	return f.current, nil
}

func (f *fakeProvider) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCalls
}

func validProvider() *fakeProvider {
	return &fakeProvider{current: &auth.Credential{Token: "tok-1"}}
}

func TestCall_Success(t *testing.T) {
	var gotAuth, gotPath, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"sess-1"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, validProvider())
	raw, err := c.Call(context.Background(), "agent/session", CallOptions{Method: http.MethodPost})
	require.NoError(t, err)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, "sess-1", payload["id"])
	assert.Equal(t, "Bearer tok-1", gotAuth)
	assert.Equal(t, "/api/v1/agent/session", gotPath)
	assert.Equal(t, "application/json", gotContentType)
}

func TestCall_EncodesBody(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, validProvider())
	_, err := c.Call(context.Background(), "agent/run", CallOptions{
		Method: http.MethodPost,
		Body:   map[string]string{"sessionId": "sess-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "sess-1", gotBody["sessionId"])
}

func TestCall_NoContent_ReturnsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, validProvider())
	raw, err := c.Call(context.Background(), "github/disconnect", CallOptions{Method: http.MethodDelete})
	require.NoError(t, err)
	assert.Nil(t, raw)
}

func TestCall_NoCredential_NoNetworkCall(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer srv.Close()

	c := NewClient(srv.URL, &fakeProvider{current: nil})
	_, err := c.Call(context.Background(), "agent/session", CallOptions{})

	assert.True(t, errors.Is(err, apperrors.New(apperrors.ErrCodeAuthRequired, "", nil)))
	assert.Zero(t, requests)
}

func TestCall_MissingBaseURL(t *testing.T) {
	c := NewClient("", validProvider())
	_, err := c.Call(context.Background(), "agent/session", CallOptions{})

	assert.True(t, errors.Is(err, apperrors.New(apperrors.ErrCodeConfigInvalid, "", nil)))
}

func TestCall_401_RefreshAndRetryOnce(t *testing.T) {
	attempts := 0
	var tokens []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		tokens = append(tokens, r.Header.Get("Authorization"))
		if attempts == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	provider := validProvider()
	provider.refreshed = &auth.Credential{Token: "tok-2"}

	c := NewClient(srv.URL, provider)
	raw, err := c.Call(context.Background(), "agent/run", CallOptions{Method: http.MethodPost})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(raw))

	// Exactly two network attempts and one refresh.
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 1, provider.calls())
	assert.Equal(t, []string{"Bearer tok-1", "Bearer tok-2"}, tokens)
}

func TestCall_401_RefreshCredentialError_NoRetry(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	provider := validProvider()
	provider.refreshed = &auth.Credential{Token: "tok-2", Err: "RefreshAccessTokenError"}

	c := NewClient(srv.URL, provider)
	_, err := c.Call(context.Background(), "agent/run", CallOptions{Method: http.MethodPost})

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.New(apperrors.ErrCodeRefreshFailed, "", nil)))
	assert.Equal(t, "RefreshAccessTokenError", apperrors.UserMessage(err))
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, provider.calls())
}

func TestCall_401_TransientRefreshFailure_RetriedWithBackoff(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	// First refresh attempt fails with a transport error, then succeeds.
	provider := &flakyProvider{
		fakeProvider: fakeProvider{current: &auth.Credential{Token: "tok-1"}},
		failures:     1,
	}

	c := NewClient(srv.URL, provider, WithRefreshRetry(3, time.Millisecond))
	raw, err := c.Call(context.Background(), "agent/run", CallOptions{Method: http.MethodPost})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(raw))
	assert.Equal(t, 2, provider.calls())
}

func TestCall_401_ExhaustedTransientRefresh_SurfacesError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	provider := &flakyProvider{
		fakeProvider: fakeProvider{current: &auth.Credential{Token: "tok-1"}},
		failures:     10,
	}

	c := NewClient(srv.URL, provider, WithRefreshRetry(2, time.Millisecond))
	_, err := c.Call(context.Background(), "agent/run", CallOptions{Method: http.MethodPost})

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.New(apperrors.ErrCodeRefreshFailed, "", nil)))
	assert.Equal(t, 2, provider.calls())
}

func TestCall_401_OnRetriedAttempt_FailsWithHTTPError(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	provider := validProvider()
	provider.refreshed = &auth.Credential{Token: "tok-2"}

	c := NewClient(srv.URL, provider)
	_, err := c.Call(context.Background(), "agent/run", CallOptions{Method: http.MethodPost})

	require.Error(t, err)
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusUnauthorized, httpErr.Status)

	// Retry is bounded: two attempts, one refresh, no recursion.
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 1, provider.calls())
}

func TestCall_NonOK_ParsesErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"session not found"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, validProvider())
	_, err := c.Call(context.Background(), "agent/run", CallOptions{Method: http.MethodPost})

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusBadRequest, httpErr.Status)
	assert.Equal(t, "session not found", httpErr.Message)
	assert.Equal(t, "session not found", apperrors.UserMessage(err))
}

func TestCall_NonOK_NonJSONBody_BestEffortMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream unavailable"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, validProvider())
	_, err := c.Call(context.Background(), "agent/run", CallOptions{})

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusBadGateway, httpErr.Status)
	assert.Contains(t, httpErr.Message, "502")
	assert.Equal(t, "upstream unavailable", string(httpErr.Body))
}

// flakyProvider fails the first N refreshes with a transport error.
type flakyProvider struct {
	fakeProvider
	failures int
}

func (f *flakyProvider) ForceRefresh(ctx context.Context) (*auth.Credential, error) {
	f.mu.Lock()
	f.refreshCalls++
	remaining := f.failures
	f.failures--
	f.mu.Unlock()
	if remaining > 0 {
		return nil, errors.New("connection reset")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = &auth.Credential{Token: "tok-2"}
	return f.current, nil
}
