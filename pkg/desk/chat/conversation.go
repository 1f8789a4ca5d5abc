package chat

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"

	apperrors "github.com/agentdesk-dev/agentdesk/pkg/desk/errors"
)

// Snapshot is an immutable view of the conversation state, safe to hand to
// display code.
type Snapshot struct {
	Session  *Session
	Messages []Message
	Busy     bool
	Typing   bool
	Err      string
}

// Conversation is the state machine driving one conversation instance. It
// owns the message log, the session id and the busy/typing flags; all
// mutation happens through Send and EnsureSession, one step at a time.
//
// The log is append-only: messages are never edited or removed.
type Conversation struct {
	svc     Service
	userID  string
	appName string
	now     func() time.Time
	log     logr.Logger

	mu       sync.Mutex
	session  *Session
	messages []Message
	busy     bool
	typing   bool
	errMsg   string
	closed   bool
	subs     map[int]func(Snapshot)
	nextSub  int
}

// ConversationOption configures a Conversation.
type ConversationOption func(*Conversation)

// WithConversationClock overrides the timestamp source for generated ids.
func WithConversationClock(now func() time.Time) ConversationOption {
	return func(c *Conversation) { c.now = now }
}

// WithConversationLogger sets the conversation logger.
func WithConversationLogger(log logr.Logger) ConversationOption {
	return func(c *Conversation) { c.log = log }
}

// NewConversation creates an empty conversation for the given user and app.
func NewConversation(svc Service, userID, appName string, opts ...ConversationOption) *Conversation {
	c := &Conversation{
		svc:     svc,
		userID:  userID,
		appName: appName,
		now:     time.Now,
		log:     logr.Discard(),
		subs:    make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot returns the current conversation state.
func (c *Conversation) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe registers fn to be called after every state change. The returned
// cancel function removes the subscription.
func (c *Conversation) Subscribe(fn func(Snapshot)) (cancel func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// Close tears the conversation down. In-flight calls are abandoned: their
// eventual resolution no longer mutates state or notifies subscribers.
func (c *Conversation) Close() {
	c.mu.Lock()
	c.closed = true
	c.subs = map[int]func(Snapshot){}
	c.mu.Unlock()
}

// Send submits one user turn. It is a no-op when the trimmed text is empty
// or an exchange is already in flight. The user message is appended
// synchronously before any network activity; failures append a system
// message and set the error flag, and busy/typing are always cleared.
func (c *Conversation) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	c.mu.Lock()
	if c.closed || c.busy {
		c.mu.Unlock()
		return nil
	}
	if c.userID == "" {
		errMsg := "User ID is not available. Cannot send message."
		c.errMsg = errMsg
		c.appendLocked(Message{ID: c.generateID("syserr"), Role: RoleSystem, Text: "Error: " + errMsg})
		c.mu.Unlock()
		c.notify()
		return apperrors.New(apperrors.ErrCodeUserIDMissing, errMsg, nil)
	}

	c.busy = true
	c.errMsg = ""
	c.appendLocked(Message{ID: c.generateID("user"), Role: RoleUser, Text: text})
	sess := c.session
	c.mu.Unlock()
	c.notify()

	defer func() {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.busy = false
		c.typing = false
		c.mu.Unlock()
		c.notify()
	}()

	if sess == nil {
		id, err := c.svc.AcquireSession(ctx, c.userID, c.appName)
		if err != nil {
			c.fail(err)
			return err
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil
		}
		c.session = &Session{ID: id, AppName: c.appName, UserID: c.userID}
		sess = c.session
		c.mu.Unlock()
	}

	// Typing asserts only once the session is confirmed: acquisition is not
	// the agent composing a reply.
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.typing = true
	c.mu.Unlock()
	c.notify()

	reply, err := c.svc.Exchange(ctx, ExchangeRequest{
		Text:      text,
		UserID:    c.userID,
		AppName:   c.appName,
		SessionID: sess.ID,
	})
	if err != nil {
		c.fail(err)
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.appendLocked(*reply)
	c.errMsg = ""
	c.mu.Unlock()
	c.notify()

	return nil
}

// EnsureSession acquires the session ahead of the first message. It is a
// no-op when a session already exists or an exchange is in flight.
func (c *Conversation) EnsureSession(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.session != nil {
		id := c.session.ID
		c.mu.Unlock()
		return id, nil
	}
	if c.closed || c.busy {
		c.mu.Unlock()
		return "", nil
	}
	c.busy = true
	c.errMsg = ""
	c.mu.Unlock()
	c.notify()

	defer func() {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.busy = false
		c.mu.Unlock()
		c.notify()
	}()

	id, err := c.svc.AcquireSession(ctx, c.userID, c.appName)
	if err != nil {
		c.fail(err)
		return "", err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", nil
	}
	c.session = &Session{ID: id, AppName: c.appName, UserID: c.userID}
	c.mu.Unlock()
	c.notify()

	return id, nil
}

// fail records a failure: one system message in the log plus the error flag
// on the snapshot, so display code can avoid rendering the error twice.
func (c *Conversation) fail(err error) {
	errMsg := apperrors.UserMessage(err)
	c.log.Error(err, "conversation step failed")

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.errMsg = errMsg
	c.appendLocked(Message{ID: c.generateID("syserr"), Role: RoleSystem, Text: "Error: " + errMsg})
	c.mu.Unlock()
	c.notify()
}

func (c *Conversation) appendLocked(msg Message) {
	c.messages = append(c.messages, msg)
}

func (c *Conversation) generateID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, c.now().UnixMilli())
}

func (c *Conversation) snapshotLocked() Snapshot {
	snap := Snapshot{
		Messages: slices.Clone(c.messages),
		Busy:     c.busy,
		Typing:   c.typing,
		Err:      c.errMsg,
	}
	if c.session != nil {
		sess := *c.session
		snap.Session = &sess
	}
	return snap
}

func (c *Conversation) notify() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	snap := c.snapshotLocked()
	subs := make([]func(Snapshot), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}
