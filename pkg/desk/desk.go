// Package desk wires the client together: the credential source, the
// authenticated gateway, the chat conversation and the account linking
// coordinator, all built from a single Config.
package desk

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/agentdesk-dev/agentdesk/internal/relay"
	"github.com/agentdesk-dev/agentdesk/pkg/desk/auth"
	"github.com/agentdesk-dev/agentdesk/pkg/desk/chat"
	"github.com/agentdesk-dev/agentdesk/pkg/desk/config"
	apperrors "github.com/agentdesk-dev/agentdesk/pkg/desk/errors"
	"github.com/agentdesk-dev/agentdesk/pkg/desk/gateway"
	"github.com/agentdesk-dev/agentdesk/pkg/desk/link"
	"github.com/agentdesk-dev/agentdesk/pkg/desk/render"
)

// App is the assembled client.
type App struct {
	Config       *config.Config
	Credentials  *auth.FileProvider
	Gateway      *gateway.Client
	Chat         chat.Service
	Conversation *chat.Conversation
	LinkService  link.Service
	Relay        *relay.Relay
	Link         *link.Coordinator

	callbacks link.Callbacks
	log       logr.Logger
}

// Option configures an App.
type Option func(*App)

// WithLogger sets the logger passed down to every component.
func WithLogger(log logr.Logger) Option {
	return func(a *App) { a.log = log }
}

// NewApp builds the client from cfg. callbacks receive linking outcomes;
// renderer formats agent replies (nil means plain text). The linking
// coordinator is created by Start, once the callback relay has an address.
func NewApp(cfg *config.Config, renderer render.Renderer, callbacks link.Callbacks, opts ...Option) *App {
	app := &App{
		Config:    cfg,
		callbacks: callbacks,
		log:       logr.Discard(),
	}
	for _, opt := range opts {
		opt(app)
	}

	app.Credentials = auth.NewFileProvider(cfg.Auth.CredentialPath,
		auth.WithRefreshPeriod(cfg.Auth.RefreshPeriod),
		auth.WithLogger(app.log.WithName("auth")),
	)
	app.Gateway = gateway.NewClient(cfg.API.BaseURL, app.Credentials,
		gateway.WithVersion(cfg.API.Version),
		gateway.WithLogger(app.log.WithName("gateway")),
	)
	app.Chat = chat.NewHTTPService(app.Gateway, renderer,
		chat.WithServiceLogger(app.log.WithName("chat")),
	)
	app.Conversation = chat.NewConversation(app.Chat, cfg.User.ID, cfg.App.Name,
		chat.WithConversationLogger(app.log.WithName("conversation")),
	)
	app.LinkService = link.NewHTTPService(app.Gateway)

	return app
}

// Start brings up the credential source and the callback relay, then
// builds the linking coordinator around the relay's origin.
func (a *App) Start(ctx context.Context) error {
	if err := a.Credentials.Start(ctx); err != nil {
		return apperrors.New(apperrors.ErrCodeCredentialSource, "failed to start credential source", err)
	}

	rly, err := relay.Start(a.Config.Link.RelayAddr, relay.WithLogger(a.log.WithName("relay")))
	if err != nil {
		a.Credentials.Stop()
		return err
	}
	a.Relay = rly

	a.Link = link.NewCoordinator(a.LinkService, rly, rly, rly.Origin(), a.callbacks,
		link.WithPollInterval(a.Config.Link.PollInterval),
		link.WithCoordinatorLogger(a.log.WithName("link")),
	)

	return nil
}

// Stop tears the client down. Safe to call after a failed Start.
func (a *App) Stop() {
	a.Conversation.Close()
	if a.Relay != nil {
		if err := a.Relay.Close(); err != nil {
			a.log.Error(err, "failed to close callback relay")
		}
	}
	a.Credentials.Stop()
}
