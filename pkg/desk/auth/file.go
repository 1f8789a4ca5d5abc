package auth

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/go-logr/logr"

	apperrors "github.com/agentdesk-dev/agentdesk/pkg/desk/errors"
)

const (
	DefaultCredentialPath = "/var/run/secrets/agentdesk/credential.json"
	DefaultRefreshPeriod  = 60 * time.Second
)

// FileProvider reads credentials from a JSON file maintained by an external
// identity agent. The file holds a single Credential object; the identity
// agent rotates it as tokens expire.
type FileProvider struct {
	path          string
	refreshPeriod time.Duration
	log           logr.Logger

	mu       sync.RWMutex
	cred     *Credential
	stopCh   chan struct{}
	stopOnce sync.Once
}

// FileProviderOption configures a FileProvider.
type FileProviderOption func(*FileProvider)

// WithRefreshPeriod overrides the background reload interval.
func WithRefreshPeriod(d time.Duration) FileProviderOption {
	return func(p *FileProvider) { p.refreshPeriod = d }
}

// WithLogger sets the provider logger.
func WithLogger(log logr.Logger) FileProviderOption {
	return func(p *FileProvider) { p.log = log }
}

// NewFileProvider creates a FileProvider reading from path.
func NewFileProvider(path string, opts ...FileProviderOption) *FileProvider {
	if path == "" {
		path = DefaultCredentialPath
	}
	p := &FileProvider{
		path:          path,
		refreshPeriod: DefaultRefreshPeriod,
		log:           logr.Discard(),
		stopCh:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start loads the credential and begins the background reload cycle.
func (p *FileProvider) Start(ctx context.Context) error {
	if err := p.reload(); err != nil {
		return apperrors.New(apperrors.ErrCodeCredentialSource, "failed to load initial credential", err)
	}

	ticker := time.NewTicker(p.refreshPeriod)
	go func() {
		for {
			select {
			case <-ticker.C:
				if err := p.reload(); err != nil {
					p.log.Error(err, "failed to reload credential")
				}
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-p.stopCh:
				ticker.Stop()
				return
			}
		}
	}()

	return nil
}

// Stop stops the background reload cycle. Safe to call more than once.
func (p *FileProvider) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

// Credential returns the most recently loaded credential, or nil when the
// credential file does not exist (the user is signed out).
func (p *FileProvider) Credential(ctx context.Context) (*Credential, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cred, nil
}

// ForceRefresh re-reads the credential file unconditionally. The identity
// agent is expected to have written a fresh credential by the time the
// backend rejects the old one.
func (p *FileProvider) ForceRefresh(ctx context.Context) (*Credential, error) {
	if err := p.reload(); err != nil {
		return nil, apperrors.New(apperrors.ErrCodeCredentialSource, "failed to reload credential", err)
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cred, nil
}

func (p *FileProvider) reload() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		// A missing file is not an error: it means no user is signed in.
		if os.IsNotExist(err) {
			p.mu.Lock()
			p.cred = nil
			p.mu.Unlock()
			return nil
		}
		return err
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return err
	}

	p.mu.Lock()
	p.cred = &cred
	p.mu.Unlock()

	return nil
}
