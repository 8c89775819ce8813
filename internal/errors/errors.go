// Package errors provides the harvest error taxonomy.
//
// Every failure surfaced by a fetch, a source or a store carries a Kind that
// decides what the engine does with it:
//
//	switch errors.KindOf(err) {
//	case errors.KindConfiguration:
//	    // fatal at startup
//	case errors.KindTransient, errors.KindSource:
//	    // skip the current unit of work, log, continue
//	}
//
// Sentinels match by Kind, so errors.Is(err, errors.ErrTransient) holds for any
// transient error regardless of its message or cause.
package errors

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
	New    = errors.New
)

// Kind classifies a failure by how the engine must react to it.
type Kind string

// Error kinds.
const (
	// KindThrottle is an explicit rate-limit response. The fetcher retries it
	// after a cooldown and only surfaces it when a throttle cap is configured.
	KindThrottle Kind = "THROTTLE"
	// KindTransient covers timeouts, connection resets and 5xx responses that
	// outlived the retry budget.
	KindTransient Kind = "TRANSIENT"
	// KindSource covers 4xx responses and malformed bodies.
	KindSource Kind = "SOURCE"
	// KindConfiguration is fatal at startup.
	KindConfiguration Kind = "CONFIGURATION"
	// KindInternal is a local failure (disk, encoding).
	KindInternal Kind = "INTERNAL"
)

// Skippable reports whether a unit of work failing with this kind may be
// skipped while the run continues.
func (k Kind) Skippable() bool {
	switch k {
	case KindThrottle, KindTransient, KindSource:
		return true
	default:
		return false
	}
}

// Error is a classified harvest error.
type Error struct {
	Kind    Kind
	Op      string // e.g. "fetch", "page", "detail"
	Source  string // limiter key / catalog name, if applicable
	Status  int    // HTTP status, if applicable
	Message string
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Op != "" {
		if e.Source != "" {
			msg = fmt.Sprintf("%s [%s]: %s", e.Op, e.Source, msg)
		} else {
			msg = e.Op + ": " + msg
		}
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// WithOp returns a copy of the error annotated with an operation and source.
func (e *Error) WithOp(op, source string) *Error {
	c := *e
	c.Op = op
	c.Source = source
	return &c
}

// Sentinel errors for use with errors.Is().
var (
	ErrThrottle      = &Error{Kind: KindThrottle, Message: "throttled"}
	ErrTransient     = &Error{Kind: KindTransient, Message: "transient failure"}
	ErrSource        = &Error{Kind: KindSource, Message: "source error"}
	ErrConfiguration = &Error{Kind: KindConfiguration, Message: "configuration error"}
	ErrInternal      = &Error{Kind: KindInternal, Message: "internal error"}
)

// KindOf returns the Kind of err. Unclassified errors are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Throttled creates a throttle error for a source that exhausted its throttle budget.
func Throttled(source string, attempts int) *Error {
	return &Error{
		Kind:    KindThrottle,
		Source:  source,
		Status:  429,
		Message: fmt.Sprintf("still throttled after %d attempts", attempts),
	}
}

// Transient wraps a retryable failure whose retries were exhausted.
func Transient(source string, attempts int, cause error) *Error {
	return &Error{
		Kind:    KindTransient,
		Source:  source,
		Message: fmt.Sprintf("gave up after %d attempts", attempts),
		cause:   cause,
	}
}

// maxBodyExcerpt bounds the response body kept in a source error message.
const maxBodyExcerpt = 200

// SourceStatus creates a source error for an unexpected HTTP status.
func SourceStatus(source string, status int, body string) *Error {
	if len(body) > maxBodyExcerpt {
		cut := maxBodyExcerpt
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut] + "..."
	}
	return &Error{
		Kind:    KindSource,
		Source:  source,
		Status:  status,
		Message: "unexpected status: " + body,
	}
}

// Malformed creates a source error for a response body that could not be decoded.
func Malformed(source string, cause error) *Error {
	return &Error{Kind: KindSource, Source: source, Message: "malformed response", cause: cause}
}

// Configuration creates a configuration error.
func Configuration(msg string) *Error {
	return &Error{Kind: KindConfiguration, Message: msg}
}

// Configurationf creates a configuration error with formatted message.
func Configurationf(format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...)}
}

// Internal wraps a local failure.
func Internal(msg string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: msg, cause: cause}
}

// Wrap creates an error of the given kind around cause.
func Wrap(kind Kind, source, msg string, cause error) *Error {
	return &Error{Kind: kind, Source: source, Message: msg, cause: cause}
}
