// Package uiprotect is an unofficial client for the UniFi Protect
// controller. It authenticates against the private HTTPS API, loads the
// bootstrap device graph, and keeps it synchronized in near-real time
// over the controller's binary websocket event stream.
package uiprotect

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Match with errors.Is; every error the client returns
// wraps exactly one of these.
var (
	// ErrAuthentication: login rejected, or 401 that survived one
	// re-login. The session state moves to failed.
	ErrAuthentication = errors.New("authentication failed")

	// ErrPermission: the controller returned 403 for an operation.
	ErrPermission = errors.New("permission denied")

	// ErrNotFound: 404 for a specific device action.
	ErrNotFound = errors.New("not found")

	// ErrBadRequest: any other 4xx, carrying the controller message.
	ErrBadRequest = errors.New("bad request")

	// ErrTransport: connect, DNS or TLS failure after retries.
	ErrTransport = errors.New("transport error")

	// ErrProtocol: malformed frame or unreconcilable payload.
	ErrProtocol = errors.New("protocol error")

	// ErrStream: the websocket closed unexpectedly.
	ErrStream = errors.New("stream error")

	// ErrState: the operation is invalid in the current session state.
	ErrState = errors.New("invalid state")
)

// APIError carries the HTTP layer detail behind one of the sentinel
// kinds above.
type APIError struct {
	Kind       error
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%v (status %d)", e.Kind, e.StatusCode)
	}
	return fmt.Sprintf("%v (status %d): %s", e.Kind, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error { return e.Kind }

// errorFromStatus maps a non-2xx response to its error kind.
func errorFromStatus(status int, message string) error {
	kind := ErrBadRequest
	switch {
	case status == http.StatusUnauthorized:
		kind = ErrAuthentication
	case status == http.StatusForbidden:
		kind = ErrPermission
	case status == http.StatusNotFound:
		kind = ErrNotFound
	case status >= 500:
		kind = ErrTransport
	}
	return &APIError{Kind: kind, StatusCode: status, Message: message}
}
