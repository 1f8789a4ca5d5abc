// Package link drives the third-party account connection flow: it opens a
// secondary browsing context for the provider's OAuth consent screen and
// reconciles the two racing completion signals (the completion message and
// the context's liveness check) into exactly one teardown.
package link

import "strings"

// EventSource is the source tag carried by completion messages from the
// linking popup. Messages with any other source are ignored.
const EventSource = "link-popup"

// Completion statuses carried by popup messages.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Event is the cross-context completion message: the one bespoke protocol of
// the linking flow.
type Event struct {
	Origin string
	Source string
	Status string

	// Code is an optional error code from the provider callback, one of the
	// CallbackErrorMessage inputs.
	Code string
}

// Bus delivers completion events from the secondary browsing context.
// Subscribe returns a receive channel and a cancel function that releases it;
// cancel must be safe to call more than once.
type Bus interface {
	Subscribe() (<-chan Event, func())
}

// Window is a handle on the secondary browsing context.
type Window interface {
	// Closed reports whether the context has terminated.
	Closed() bool

	// Close terminates the context if it is still open. Must be idempotent.
	Close() error
}

// Opener opens a secondary browsing context at a URL. A blocked or failed
// open returns an error and no Window.
type Opener interface {
	Open(url string) (Window, error)
}

// CallbackErrorMessage maps a provider callback error code to a user-facing
// message. Unknown codes fall through to a generic description built from
// the code itself.
func CallbackErrorMessage(code string) string {
	switch code {
	case "missing_params":
		return "Account connection failed: Missing parameters."
	case "config_error":
		return "Account connection failed: Server configuration error."
	case "token_exchange_failed":
		return "Account connection failed: Could not get access token."
	case "user_fetch_failed":
		return "Account connection failed: Could not fetch user details."
	case "api_error":
		return "Account connection failed: API communication error."
	case "internal_error":
		return "Account connection failed: internal error."
	case "":
		return "An unknown error occurred with the account connection."
	default:
		return "Account connection failed: " + strings.ReplaceAll(code, "_", " ") + "."
	}
}
