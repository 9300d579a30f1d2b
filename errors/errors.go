package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseTransport Phase = "transport" // stream reads/writes
	PhaseDecode    Phase = "decode"    // frame payload decoding
	PhaseDispatch  Phase = "dispatch"  // command execution
	PhaseRegistry  Phase = "registry"  // handle table operations
	PhaseResolve   Phase = "resolve"   // dotted-name resolution
	PhaseCall      Phase = "call"      // local callable invocation
	PhaseProtocol  Phase = "protocol"  // frame grammar / loop integrity
)

// Kind categorizes the error
type Kind string

const (
	KindTypeMismatch  Kind = "type_mismatch"
	KindInvalidHandle Kind = "invalid_handle"
	KindUnknownOpcode Kind = "unknown_opcode"
	KindNotCallable   Kind = "not_callable"
	KindNotFound      Kind = "not_found"
	KindOverflow      Kind = "overflow"
	KindInvalidUTF8   Kind = "invalid_utf8"
	KindInvalidInput  Kind = "invalid_input"
	KindPeerRaised    Kind = "peer_raised"
	KindViolation     Kind = "protocol_violation"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value   any
	Cause   error
	Phase   Phase
	Kind    Kind
	Handle  int64
	HasHand bool
	Detail  string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.HasHand {
		fmt.Fprintf(&b, " (handle %d)", e.Handle)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Handle sets the offending handle
func (b *Builder) Handle(h int64) *Builder {
	b.err.Handle = h
	b.err.HasHand = true
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// InvalidHandle creates an invalid handle error
func InvalidHandle(phase Phase, handle int64) *Error {
	return &Error{
		Phase:   phase,
		Kind:    KindInvalidHandle,
		Handle:  handle,
		HasHand: true,
		Detail:  "handle is out of range or already freed",
	}
}

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, want string, got any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Detail: fmt.Sprintf("required %s, got %T", want, got),
		Value:  got,
	}
}

// UnknownOpcode creates an unknown opcode error
func UnknownOpcode(op byte) *Error {
	return &Error{
		Phase:  PhaseDispatch,
		Kind:   KindUnknownOpcode,
		Detail: fmt.Sprintf("opcode %q", op),
		Value:  op,
	}
}

// NotCallable creates a not-callable error
func NotCallable(v any) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindNotCallable,
		Detail: fmt.Sprintf("value of type %T cannot be invoked", v),
		Value:  v,
	}
}

// NotFound creates a name resolution failure
func NotFound(namespace, member string) *Error {
	return &Error{
		Phase:  PhaseResolve,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s.%s", namespace, member),
	}
}

// Overflow creates an integer width overflow error
func Overflow(value int64, width int) *Error {
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindOverflow,
		Detail: fmt.Sprintf("value %d does not fit in %d byte(s)", value, width),
		Value:  value,
	}
}

// InvalidUTF8 creates an invalid UTF-8 error
func InvalidUTF8(data []byte) *Error {
	preview := data
	if len(preview) > 32 {
		preview = preview[:32]
	}
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindInvalidUTF8,
		Detail: fmt.Sprintf("invalid UTF-8 sequence: %x", preview),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Violation creates a protocol integrity error
func Violation(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseProtocol,
		Kind:   KindViolation,
		Detail: detail,
		Cause:  cause,
	}
}

// Transport wraps a stream-level failure
func Transport(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseTransport,
		Kind:   KindInvalidInput,
		Detail: detail,
		Cause:  cause,
	}
}

// RaisedError carries a failure raised by the peer. Value preserves the
// referenced registry payload when the failure cannot be represented as a
// local error: typically a Remote proxy for an exception object that only
// the peer can interpret.
type RaisedError struct {
	Value any
}

// Error implements the error interface
func (e *RaisedError) Error() string {
	return fmt.Sprintf("[dispatch] peer_raised: %v", e.Value)
}

// Is reports whether target matches this error type
func (e *RaisedError) Is(target error) bool {
	_, ok := target.(*RaisedError)
	return ok
}
