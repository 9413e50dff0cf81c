package domologica

import (
	"fmt"

	"github.com/daemonp/domologica2mqtt/internal/types"
)

// ConnectivityError covers transport failures, timeouts and non-success
// HTTP statuses. It is recoverable, the next poll retries.
type ConnectivityError struct {
	Op         string
	URL        string
	StatusCode int
	Err        error
}

func (e *ConnectivityError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: unexpected HTTP status %d", e.Op, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// MalformedDocumentError means the payload is not parseable markup at all.
// Individual records with missing fields are skipped, not reported.
type MalformedDocumentError struct {
	Document string
	Err      error
}

func (e *MalformedDocumentError) Error() string {
	return fmt.Sprintf("malformed %s document: %v", e.Document, e.Err)
}

func (e *MalformedDocumentError) Unwrap() error {
	return e.Err
}

// CommandError is returned when a state-changing request fails.
type CommandError struct {
	Element types.ElementID
	Action  Action
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s on element %s failed: %v", e.Action, e.Element, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
