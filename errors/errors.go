package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseLoad    Phase = "load"    // module resolution
	PhaseVerify  Phase = "verify"  // hot-patch signature checks
	PhaseEnv     Phase = "env"     // environment creation and disposal
	PhaseCall    Phase = "call"    // function dispatch into the VM
	PhaseGC      Phase = "gc"      // collector scheduling
	PhaseConfig  Phase = "config"  // configuration parsing and validation
	PhaseRuntime Phase = "runtime" // host lifecycle
)

// Kind categorizes the error
type Kind string

const (
	KindNotFound       Kind = "not_found"
	KindVerification   Kind = "verification_failure"
	KindConfiguration  Kind = "configuration"
	KindDoubleDisposal Kind = "double_disposal"
	KindScript         Kind = "script"
	KindNotInitialized Kind = "not_initialized"
	KindInvalidInput   Kind = "invalid_input"
	KindConflict       Kind = "conflict"
)

// Error is the structured error type used throughout luahost
type Error struct {
	Cause  error
	Phase  Phase
	Kind   Kind
	Name   string
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Name != "" {
		b.WriteString(" ")
		b.WriteString(fmt.Sprintf("%q", e.Name))
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
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase != "" && t.Phase != e.Phase {
		return false
	}
	return e.Kind == t.Kind
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

// Name sets the module, function or table the error refers to
func (b *Builder) Name(name string) *Builder {
	b.err.Name = name
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

// Sentinels for errors.Is checks that ignore the phase.
var (
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrVerification   = &Error{Kind: KindVerification}
	ErrConfiguration  = &Error{Kind: KindConfiguration}
	ErrNotInitialized = &Error{Kind: KindNotInitialized}
	ErrScript         = &Error{Kind: KindScript}
)

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsNotFound reports whether err is a NotFound error.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Name:   name,
		Detail: fmt.Sprintf("%s not found", what),
	}
}

// Verification creates a signature verification failure
func Verification(name string, cause error) *Error {
	return &Error{
		Phase:  PhaseVerify,
		Kind:   KindVerification,
		Name:   name,
		Detail: "signature rejected",
		Cause:  cause,
	}
}

// Configuration creates a configuration error
func Configuration(phase Phase, detail string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindConfiguration,
		Detail: detail,
		Cause:  cause,
	}
}

// Script wraps an error raised by the VM while running name
func Script(phase Phase, name string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindScript,
		Name:   name,
		Detail: "script error",
		Cause:  cause,
	}
}

// NotInitialized creates a not-initialized error for a missing or closed component
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
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

// Conflict creates a conflict error, e.g. a second live runtime
func Conflict(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindConflict,
		Detail: detail,
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
