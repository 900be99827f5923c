// Package buserrs defines the error taxonomy shared by every corebus
// component. Errors are typed so callers can use errors.As to branch on
// kind rather than matching strings.
package buserrs

import "fmt"

// TransportNotFoundError is raised when the registry cannot resolve a
// transport pool for an API, directly or via the "default" fallback.
type TransportNotFoundError struct {
	TransportType string
	APIName       string
}

func (e *TransportNotFoundError) Error() string {
	return fmt.Sprintf(
		"no %s transport found for API %q: neither a specific transport nor a default transport is configured",
		e.TransportType, e.APIName,
	)
}

// TransportsNotInstalledError is raised by TransportRegistry.LoadConfig
// when no transport factory is registered under a configured name. Family
// holds "<family>:<name>" (e.g. "rpc:tcp"); the same error is returned
// whether the family has no transports registered at all or only lacks
// that name.
type TransportsNotInstalledError struct {
	Family string
}

func (e *TransportsNotInstalledError) Error() string {
	return fmt.Sprintf("no %s transports are registered; check the transport is imported for its side-effecting registration", e.Family)
}

// NoAPIsToListenOnError is raised when ConsumeRPCs is called with an empty
// API list and no registered APIs to default to.
type NoAPIsToListenOnError struct{}

func (e *NoAPIsToListenOnError) Error() string {
	return "no APIs to consume on: either an empty API list was given explicitly, or the API registry is empty"
}

// UnrecognisedCommandError is raised by a dock's dispatcher when it is
// handed a Command variant it does not implement a case for. This is always
// a programming error — the exhaustiveness check should have caught it.
type UnrecognisedCommandError struct {
	CommandType string
}

func (e *UnrecognisedCommandError) Error() string {
	return fmt.Sprintf("unrecognised command type %s", e.CommandType)
}

// CallTimeoutError is raised when an RPC call's result does not arrive
// within the configured timeout.
type CallTimeoutError struct {
	CanonicalName string
	Elapsed       string
}

func (e *CallTimeoutError) Error() string {
	return fmt.Sprintf(
		"timeout calling RPC %s after waiting %s: no process may be serving this API, or it is taking too long to reply; consider raising the call's timeout",
		e.CanonicalName, e.Elapsed,
	)
}

// RemoteCallError wraps a server-side application error surfaced back to
// the caller of CallRPCRemote.
type RemoteCallError struct {
	CanonicalName string
	Message       string
	Trace         string
}

func (e *RemoteCallError) Error() string {
	return fmt.Sprintf("error calling %s: %s\nremote trace:\n%s", e.CanonicalName, e.Message, e.Trace)
}

// SchemaValidationError is raised when an outgoing or incoming message
// fails validation against its API's schema.
type SchemaValidationError struct {
	CanonicalName string
	Direction     string // "outgoing" or "incoming"
	Reason        string
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("%s validation failed for %s: %s", e.Direction, e.CanonicalName, e.Reason)
}

// SuddenDeath is the test-only sentinel used to simulate message loss: a
// procedure implementation returns this error to signal that no result
// should be sent at all. It is never converted into a ResultMessage.
var SuddenDeath = fmt.Errorf("sudden death: simulated message loss")
