package models

import "encoding/json"

// Result is the uniform outcome of every session operation. A zero Kind or
// FailureNone means success; any other kind is a failure whose Message is
// safe to show to the caller.
type Result struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

// Ok creates a successful result
func Ok(message string) Result {
	return Result{Kind: FailureNone, Message: message}
}

// Fail creates a failed result of the given kind
func Fail(kind FailureKind, message string) Result {
	if kind == FailureNone || kind == "" {
		kind = FailureTransport
	}
	return Result{Kind: kind, Message: message}
}

// Success reports whether the operation succeeded
func (r Result) Success() bool {
	return r.Kind == FailureNone || r.Kind == ""
}

// String returns the message
func (r Result) String() string {
	return r.Message
}

// MarshalJSON adds the derived success flag
func (r Result) MarshalJSON() ([]byte, error) {
	kind := r.Kind
	if kind == "" {
		kind = FailureNone
	}
	return json.Marshal(struct {
		Success bool        `json:"success"`
		Kind    FailureKind `json:"kind"`
		Message string      `json:"message"`
	}{
		Success: r.Success(),
		Kind:    kind,
		Message: r.Message,
	})
}
