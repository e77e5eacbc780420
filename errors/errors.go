package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in code generation the error occurred
type Phase string

const (
	PhaseEmit     Phase = "emit"     // instruction append
	PhaseVerify   Phase = "verify"   // operand stack verification
	PhasePatch    Phase = "patch"    // deferred patch application
	PhasePeephole Phase = "peephole" // peephole rewriting
	PhaseFlush    Phase = "flush"    // end-of-method cleanup
	PhaseLower    Phase = "lower"    // block lowering
	PhaseCompile  Phase = "compile"  // per-method driver
	PhaseParse    Phase = "parse"    // IR file decoding
)

// Kind categorizes the error
type Kind string

const (
	KindStackUnderflow  Kind = "stack_underflow"
	KindStackMismatch   Kind = "stack_mismatch"
	KindTypeMismatch    Kind = "type_mismatch"
	KindUnsupported     Kind = "unsupported"
	KindUnresolvedLabel Kind = "unresolved_label"
	KindInvalidScope    Kind = "invalid_scope"
	KindInvalidState    Kind = "invalid_state"
	KindInternal        Kind = "internal"
	KindInvalidData     Kind = "invalid_data"
	KindNotFound        Kind = "not_found"
)

// Error is the structured error type used throughout the emitter
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Method string
	Type   string
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Method != "" {
		b.WriteString(" in ")
		b.WriteString(e.Method)
	}

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Type != "" {
		b.WriteString(": type ")
		b.WriteString(e.Type)
	}

	if e.Detail != "" {
		if e.Type != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
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

// IsVerification reports whether the error is a fatal verification failure.
func (e *Error) IsVerification() bool {
	return e.Phase == PhaseVerify
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

// Path sets the block path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Method sets the method being compiled
func (b *Builder) Method(name string) *Builder {
	b.err.Method = name
	return b
}

// Type sets the semantic type name
func (b *Builder) Type(t string) *Builder {
	b.err.Type = t
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

// StackUnderflow creates an error for popping past the bottom of the operand stack
func StackUnderflow(want, have int) *Error {
	return &Error{
		Phase:  PhaseVerify,
		Kind:   KindStackUnderflow,
		Detail: fmt.Sprintf("pop %d value(s) from a stack of depth %d", want, have),
		Value:  want,
	}
}

// StackMismatch creates an error for two stack depths that must agree but do not
func StackMismatch(what string, left, right int) *Error {
	return &Error{
		Phase:  PhaseVerify,
		Kind:   KindStackMismatch,
		Detail: fmt.Sprintf("%s: depth %d != %d", what, left, right),
	}
}

// TypeMismatch creates a type mismatch verification error
func TypeMismatch(path []string, want, got string) *Error {
	return &Error{
		Phase:  PhaseVerify,
		Kind:   KindTypeMismatch,
		Path:   path,
		Type:   got,
		Detail: fmt.Sprintf("expected %s", want),
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// InvalidScope creates an error for a break/continue that has no valid target
func InvalidScope(detail string) *Error {
	return &Error{
		Phase:  PhaseVerify,
		Kind:   KindInvalidScope,
		Detail: detail,
	}
}

// InvalidState creates an error for an API call made in the wrong state
func InvalidState(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidState,
		Detail: detail,
	}
}

// UnresolvedLabels creates an error for patches discarded at flush
func UnresolvedLabels(count int, kinds []string) *Error {
	return &Error{
		Phase:  PhaseFlush,
		Kind:   KindUnresolvedLabel,
		Detail: fmt.Sprintf("%d patch(es) never resolved: %s", count, strings.Join(kinds, ", ")),
		Value:  count,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// Internal wraps a verification failure into an internal compiler error for a method.
// It is distinct from source-level diagnostics: it signals a bug in the IR producer.
func Internal(method string, cause error) *Error {
	return &Error{
		Phase:  PhaseCompile,
		Kind:   KindInternal,
		Method: method,
		Detail: "internal compiler error",
		Cause:  cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// ParseFailed creates a parsing error
func ParseFailed(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindInvalidData,
		Detail: fmt.Sprintf("parse %s", what),
		Cause:  cause,
	}
}
