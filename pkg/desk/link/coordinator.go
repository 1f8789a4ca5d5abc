package link

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"

	apperrors "github.com/agentdesk-dev/agentdesk/pkg/desk/errors"
)

// DefaultPollInterval is how often the secondary context's liveness is
// checked while waiting for the completion message.
const DefaultPollInterval = 500 * time.Millisecond

// FeedbackKind classifies a feedback callback invocation.
type FeedbackKind string

const (
	FeedbackSuccess FeedbackKind = "success"
	FeedbackError   FeedbackKind = "error"
)

// Callbacks are how the coordinator communicates back to its owner. Both
// are optional.
type Callbacks struct {
	// Refetch asks the owner to reload the profile state after a
	// (possibly) completed linking attempt.
	Refetch func()

	// Feedback surfaces a user-facing message.
	Feedback func(message string, kind FeedbackKind)
}

// attempt is the transient bundle of one linking run: the window handle and
// the event subscription, torn down exactly once whichever completion signal
// fires first.
type attempt struct {
	win         Window
	unsubscribe func()
	once        sync.Once
}

type outcome struct {
	refetch bool
	message string
	kind    FeedbackKind
}

// Coordinator drives the account connection flow without blocking its owner:
// Connect returns once the secondary context is open, and completion is
// reported through the callbacks.
type Coordinator struct {
	svc          Service
	opener       Opener
	bus          Bus
	origin       string
	pollInterval time.Duration
	callbacks    Callbacks
	log          logr.Logger

	mu            sync.Mutex
	connecting    bool
	disconnecting bool
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithPollInterval overrides the liveness check interval.
func WithPollInterval(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) { c.pollInterval = d }
}

// WithCoordinatorLogger sets the coordinator logger.
func WithCoordinatorLogger(log logr.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.log = log }
}

// NewCoordinator creates a Coordinator. origin is the trusted event origin;
// completion messages from any other origin are ignored.
func NewCoordinator(svc Service, opener Opener, bus Bus, origin string, callbacks Callbacks, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		svc:          svc,
		opener:       opener,
		bus:          bus,
		origin:       origin,
		pollInterval: DefaultPollInterval,
		callbacks:    callbacks,
		log:          logr.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connecting reports whether a linking attempt is in flight.
func (c *Coordinator) Connecting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connecting
}

// Connect starts a linking attempt: it asks the backend for the provider
// redirect target, opens the secondary context there and returns. Completion
// is detected by whichever fires first of the completion message and the
// liveness check, and handled exactly once.
func (c *Coordinator) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connecting {
		c.mu.Unlock()
		return nil
	}
	c.connecting = true
	c.mu.Unlock()

	redirectURL, err := c.svc.ConnectURL(ctx)
	if err != nil {
		c.abort(err)
		return err
	}

	win, err := c.opener.Open(redirectURL)
	if err != nil || win == nil {
		blocked := apperrors.New(apperrors.ErrCodePopupBlocked, "Popup window was blocked or failed to open.", err)
		c.abort(blocked)
		return blocked
	}

	events, unsubscribe := c.bus.Subscribe()
	a := &attempt{win: win, unsubscribe: unsubscribe}
	go c.watch(ctx, a, events)

	return nil
}

// Disconnect removes the account association. A single authenticated call,
// no completion race to manage.
func (c *Coordinator) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.disconnecting {
		c.mu.Unlock()
		return nil
	}
	c.disconnecting = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.disconnecting = false
		c.mu.Unlock()
	}()

	if err := c.svc.Disconnect(ctx); err != nil {
		c.feedback(apperrors.UserMessage(err), FeedbackError)
		return err
	}

	c.feedback("Account disconnected successfully!", FeedbackSuccess)
	if c.callbacks.Refetch != nil {
		c.callbacks.Refetch()
	}
	return nil
}

// Status reports the current linking state.
func (c *Coordinator) Status(ctx context.Context) (*Status, error) {
	return c.svc.Status(ctx)
}

func (c *Coordinator) watch(ctx context.Context, a *attempt, events <-chan Event) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Owner went away: tear down without refetch or feedback.
			c.settle(a, outcome{})
			return

		case ev, ok := <-events:
			if !ok {
				c.settle(a, outcome{})
				return
			}
			if ev.Origin != c.origin {
				c.log.Info("ignoring completion message from unexpected origin", "origin", ev.Origin)
				continue
			}
			if ev.Source != EventSource {
				continue
			}
			switch ev.Status {
			case StatusSuccess:
				c.settle(a, outcome{
					refetch: true,
					message: "Account connected successfully!",
					kind:    FeedbackSuccess,
				})
				return
			case StatusError:
				c.settle(a, outcome{
					message: CallbackErrorMessage(ev.Code),
					kind:    FeedbackError,
				})
				return
			}

		case <-ticker.C:
			if a.win.Closed() {
				// The context closed without delivering a message. The
				// outcome is unknown, so refetch conservatively and make
				// no success announcement.
				c.settle(a, outcome{refetch: true})
				return
			}
		}
	}
}

// settle performs the single teardown of an attempt: unsubscribe, close the
// window if still open, clear the connecting flag, then run the outcome
// callbacks. Guarded so the second completion signal is a no-op.
func (c *Coordinator) settle(a *attempt, out outcome) {
	a.once.Do(func() {
		a.unsubscribe()

		if !a.win.Closed() {
			if err := a.win.Close(); err != nil {
				c.log.Error(err, "failed to close linking window")
			}
		}

		c.mu.Lock()
		c.connecting = false
		c.mu.Unlock()

		if out.refetch && c.callbacks.Refetch != nil {
			c.callbacks.Refetch()
		}
		if out.message != "" {
			c.feedback(out.message, out.kind)
		}
	})
}

// abort fails a linking attempt before any window was opened.
func (c *Coordinator) abort(err error) {
	c.log.Error(err, "linking attempt failed")
	c.feedback(apperrors.UserMessage(err), FeedbackError)
	c.mu.Lock()
	c.connecting = false
	c.mu.Unlock()
}

func (c *Coordinator) feedback(message string, kind FeedbackKind) {
	if c.callbacks.Feedback != nil {
		c.callbacks.Feedback(message, kind)
	}
}
