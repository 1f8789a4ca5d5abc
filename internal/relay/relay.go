// Package relay bridges the provider's OAuth callback into the linking
// flow's completion protocol. It runs a loopback HTTP server that the
// backend redirects to at the end of a linking attempt, republishes the
// outcome as a completion event, and tracks the opened browser tab's
// liveness so the coordinator's polling fallback has something to poll.
package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	apperrors "github.com/agentdesk-dev/agentdesk/pkg/desk/errors"
	"github.com/agentdesk-dev/agentdesk/pkg/desk/link"
)

const shutdownTimeout = 2 * time.Second

// Relay is the loopback callback endpoint for linking attempts. It
// implements link.Bus for completion events and link.Opener for launching
// the system browser.
type Relay struct {
	origin string
	token  string
	server *http.Server
	ln     net.Listener
	log    logr.Logger

	mu        sync.Mutex
	subs      map[int]chan link.Event
	nextSub   int
	callbacks int

	closeOnce sync.Once
}

// Option configures a Relay.
type Option func(*Relay)

// WithLogger sets the relay logger.
func WithLogger(log logr.Logger) Option {
	return func(r *Relay) { r.log = log }
}

// Start listens on addr (host:port, port 0 picks a free one) and begins
// serving the callback route. The route carries an unguessable token so
// stray local requests cannot forge a completion.
func Start(addr string, opts ...Option) (*Relay, error) {
	if addr == "" {
		addr = "127.0.0.1:0"
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeRelayFailed, "failed to listen for link callbacks", err)
	}

	r := &Relay{
		token: uuid.NewString(),
		ln:    ln,
		log:   logr.Discard(),
		subs:  make(map[int]chan link.Event),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.origin = fmt.Sprintf("http://%s", ln.Addr().String())

	router := mux.NewRouter()
	router.HandleFunc("/link/callback/{token}", r.handleCallback).Methods(http.MethodGet)
	r.server = &http.Server{Handler: router}

	go func() {
		if serveErr := r.server.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			r.log.Error(serveErr, "relay server stopped")
		}
	}()

	return r, nil
}

// Origin is the relay's own origin. Completion events are stamped with it,
// and the coordinator should trust exactly this origin.
func (r *Relay) Origin() string {
	return r.origin
}

// CallbackURL is the address the backend must redirect to after the
// provider callback completes.
func (r *Relay) CallbackURL() string {
	return fmt.Sprintf("%s/link/callback/%s", r.origin, r.token)
}

// Subscribe implements link.Bus.
func (r *Relay) Subscribe() (<-chan link.Event, func()) {
	ch := make(chan link.Event, 4)

	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch
	r.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, id)
			r.mu.Unlock()
		})
	}
	return ch, cancel
}

// Open implements link.Opener by launching the system browser at url. The
// returned Window reports Closed once the callback page has been served
// (the page tells the user to close the tab) or Close was called.
func (r *Relay) Open(url string) (link.Window, error) {
	cmd := browserCommand(url)
	if err := cmd.Start(); err != nil {
		return nil, apperrors.New(apperrors.ErrCodePopupBlocked, "failed to launch browser", err)
	}
	// Reap the launcher process; browsers detach immediately.
	go func() { _ = cmd.Wait() }()

	r.mu.Lock()
	mark := r.callbacks
	r.mu.Unlock()

	return &tab{relay: r, mark: mark}, nil
}

// Close shuts the relay down.
func (r *Relay) Close() error {
	var err error
	r.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err = r.server.Shutdown(ctx)
	})
	return err
}

func (r *Relay) handleCallback(w http.ResponseWriter, req *http.Request) {
	if mux.Vars(req)["token"] != r.token {
		http.NotFound(w, req)
		return
	}

	q := req.URL.Query()
	ev := link.Event{
		Origin: r.origin,
		Source: link.EventSource,
	}
	switch {
	case q.Get("github_error") != "":
		ev.Status = link.StatusError
		ev.Code = q.Get("github_error")
	case q.Get("github_connected") == "true", q.Get("status") == link.StatusSuccess:
		ev.Status = link.StatusSuccess
	default:
		ev.Status = link.StatusError
	}

	r.publish(ev)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "<html><body>Account linking finished. You can close this window.</body></html>")
}

func (r *Relay) publish(ev link.Event) {
	r.mu.Lock()
	r.callbacks++
	subs := make([]chan link.Event, 0, len(r.subs))
	for _, ch := range r.subs {
		subs = append(subs, ch)
	}
	r.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			r.log.Info("dropping completion event for slow subscriber")
		}
	}
}

func (r *Relay) callbackCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.callbacks
}

// tab is the Window handle for a system browser tab. A real tab cannot be
// force-closed from here, so Close only records the intent; liveness comes
// from whether the callback page was served after the tab opened.
type tab struct {
	relay *Relay
	mark  int

	mu     sync.Mutex
	closed bool
}

func (t *tab) Closed() bool {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	return closed || t.relay.callbackCount() > t.mark
}

func (t *tab) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}

func browserCommand(url string) *exec.Cmd {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url)
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return exec.Command("xdg-open", url)
	}
}
