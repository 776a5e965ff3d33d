// Package transmuxerr defines the error taxonomy shared by every stage of
// the pipeline: transport, demux and remux errors all carry a Kind so a
// consumer can switch on the failure class without string matching.
package transmuxerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind identifies which layer of the pipeline raised an error and how a
// consumer should react to it, mirroring the (errorType, errorDetail, info)
// triple that the core emits to its consumer.
type Kind string

const (
	// Transport errors.
	KindConnectingTimeout      Kind = "ConnectingTimeout"
	KindHTTPStatusCodeInvalid  Kind = "HttpStatusCodeInvalid"
	KindEarlyEOF               Kind = "EarlyEof"
	KindUnrecoverableEarlyEOF  Kind = "UnrecoverableEarlyEof"
	KindTransportException     Kind = "Exception"

	// Demux errors.
	KindFormatError       Kind = "FormatError"
	KindCodecUnsupported  Kind = "CodecUnsupported"
	KindInternalError     Kind = "InternalError"

	// Remux errors.
	KindIllegalState Kind = "IllegalState"
)

// Error is a taxonomy-tagged error. Detail is a short human string; Cause,
// when present, is the underlying error that triggered this one and is
// reachable via errors.Unwrap/errors.Cause.
type Error struct {
	Kind   Kind
	Detail string
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.cause }

// Cause lets github.com/pkg/errors.Cause walk past the taxonomy wrapper.
func (e *Error) Cause() error { return e.cause }

// New builds a taxonomy error with no underlying cause.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Wrap builds a taxonomy error around an underlying cause, preserving it for
// errors.Cause/errors.Unwrap while still tagging it with a Kind.
func Wrap(kind Kind, detail string, cause error) *Error {
	return &Error{Kind: kind, Detail: detail, cause: errors.WithStack(cause)}
}

// Is reports whether err is a *Error of the given Kind.
func Is(err error, kind Kind) bool {
	var te *Error
	if !errors.As(err, &te) {
		return false
	}
	return te.Kind == kind
}

// Recoverable reports whether the taxonomy kind is one the I/O controller
// handles internally (currently only a plain EarlyEof on a non-live stream
// of known length); every other kind must be surfaced to the consumer.
func (k Kind) Recoverable() bool {
	return k == KindEarlyEOF
}
