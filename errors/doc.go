// Package errors provides structured error types for the bridge runtime.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: the offending handle or value and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseDispatch, errors.KindTypeMismatch).
//		Handle(h).
//		Detail("cannot read integer from %s value", kind).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.InvalidHandle(errors.PhaseRegistry, h)
//	err := errors.UnknownOpcode(op)
//
// All errors implement the standard error interface and support errors.Is/As.
// Peer-raised failures travel as RaisedError, which preserves the remote
// failure's payload when it cannot be represented as a local error.
package errors
