// Package schema defines the validation contract Bus invokes at the
// prescribed points in the call and serve pipelines. Validation internals
// — what a schema looks like, how a payload is checked against one — are
// an external collaborator (spec.md explicitly places "schema validation
// internals" out of core scope); this package only specifies the
// interface the core calls through. A real application supplies its own
// Validator (e.g. backed by JSON Schema, protobuf reflection, or a
// hand-written rule set) built from the schemas transport.SchemaTransport
// makes available via Load.
package schema

import "corebus/message"

// Validator checks outgoing and incoming payloads against an API's
// declared schema. Implementations must be safe for concurrent use —
// Bus may call Validate* from multiple in-flight calls at once.
type Validator interface {
	// ValidateCall checks kwargs being sent to (or received for) a
	// procedure call against the schema for apiName/procedureName.
	ValidateCall(apiName, procedureName string, kwargs message.Kwargs) error

	// ValidateResult checks a procedure's result value, on its way out
	// to the wire or in off of it, against the schema for
	// apiName/procedureName.
	ValidateResult(apiName, procedureName string, result any) error
}

// Noop is the default Validator: every payload passes. Installed
// automatically when a Bus is built without an explicit Validator, so
// the schema-validation pipeline steps are always present (spec.md's
// call/serve flows name them unconditionally) but never reject anything
// unless the caller opts into real validation.
type Noop struct{}

func (Noop) ValidateCall(apiName, procedureName string, kwargs message.Kwargs) error { return nil }
func (Noop) ValidateResult(apiName, procedureName string, result any) error          { return nil }
