// Package chat manages the conversation with the remote agent service: the
// service facade for session acquisition and message exchange, and the
// state machine that owns the message log.
package chat

// Role identifies who produced a message.
type Role string

const (
	RoleUser   Role = "user"
	RoleModel  Role = "model"
	RoleSystem Role = "system"
)

// Message is one entry in the conversation log.
type Message struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
	Text string `json:"text"`

	// RenderedText is the display markup produced by the renderer for
	// model replies. Empty for user and system messages.
	RenderedText string `json:"renderedText,omitempty"`
}

// Session is the server-side conversation context. Created once per
// conversation lifetime and immutable afterwards.
type Session struct {
	ID      string `json:"id"`
	AppName string `json:"appName"`
	UserID  string `json:"userId"`
}
