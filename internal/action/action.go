package action

import (
	"context"
	"errors"
)

// ErrorKind categorizes an action failure.
type ErrorKind string

const (
	// KindInvalidInput means the model's arguments failed the action's
	// input schema.
	KindInvalidInput ErrorKind = "invalid_input"
	// KindMissingCredential means no active external integration exists
	// for the caller.
	KindMissingCredential ErrorKind = "missing_credential"
	// KindExternalService means a downstream API returned a non-success
	// response.
	KindExternalService ErrorKind = "external_service"
	// KindParseFailure means a downstream response could not be read as
	// the expected structured payload.
	KindParseFailure ErrorKind = "parse_failure"
	// KindExecutionFailure means an unexpected defect inside the action
	// was caught at the registry boundary.
	KindExecutionFailure ErrorKind = "execution_failure"
	// KindTransport means the model-streaming connection itself failed.
	KindTransport ErrorKind = "transport"
)

// Outcome is the structured result every action returns. Expected failures
// are represented here, never as panics or error returns across the
// registry boundary.
type Outcome struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Message   string      `json:"message"`
	ErrorKind ErrorKind   `json:"error_kind,omitempty"`
}

// OK builds a success outcome.
func OK(message string, data interface{}) Outcome {
	return Outcome{Success: true, Data: data, Message: message}
}

// Fail builds a failure outcome.
func Fail(kind ErrorKind, message string) Outcome {
	return Outcome{Success: false, Message: message, ErrorKind: kind}
}

// Caller identifies who is invoking an action; used to look up stored
// external credentials.
type Caller struct {
	ID string
}

// ExecuteFunc performs an action's external effect with validated input.
type ExecuteFunc func(ctx context.Context, input map[string]interface{}, caller Caller) Outcome

// Definition declares a callable action: its name, the JSON Schema its
// arguments must satisfy, and the routine that performs the effect.
type Definition struct {
	Name        string
	Description string
	// Parameters is the raw JSON Schema document. It is advertised to the
	// model verbatim and compiled for input validation on registration.
	Parameters map[string]interface{}
	Execute    ExecuteFunc
}

// Credential is one active external integration record.
type Credential struct {
	ExternalID  string // e.g. the shop domain
	AccessToken string
}

// ErrNoCredential is returned by a CredentialSource when the caller has no
// active integration of the requested kind.
var ErrNoCredential = errors.New("no active integration")

// CredentialSource resolves a caller's stored integration credentials.
// Lookups happen fresh per invocation; implementations must not cache on
// behalf of actions.
type CredentialSource interface {
	ActiveCredential(ctx context.Context, callerID, integration string) (*Credential, error)
}
