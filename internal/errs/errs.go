// Package errs defines the structured error kinds surfaced to keyring callers.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a keyring error. The string form is what hosts see.
type Kind int

const (
	KindUnknown Kind = iota
	KindMethodNotSupported
	KindDuplicateName
	KindNotFound
	KindUnsupportedChain
	KindSponsorshipFailed
	KindBundlerError
	KindAmbiguousSubmission
	KindSigningError
	KindUnsupported
	KindUnsupportedMethod
	KindInvalidParams
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindMethodNotSupported:
		return "MethodNotSupported"
	case KindDuplicateName:
		return "DuplicateName"
	case KindNotFound:
		return "NotFound"
	case KindUnsupportedChain:
		return "UnsupportedChain"
	case KindSponsorshipFailed:
		return "SponsorshipFailed"
	case KindBundlerError:
		return "BundlerError"
	case KindAmbiguousSubmission:
		return "AmbiguousSubmission"
	case KindSigningError:
		return "SigningError"
	case KindUnsupported:
		return "Unsupported"
	case KindUnsupportedMethod:
		return "UnsupportedMethod"
	case KindInvalidParams:
		return "InvalidParams"
	case KindInternal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// Code returns the JSON-RPC error code used when the kind crosses the wire.
func (k Kind) Code() int {
	switch k {
	case KindMethodNotSupported, KindUnsupportedMethod:
		return -32601
	case KindInvalidParams:
		return -32602
	case KindInternal:
		return -32603
	default:
		return -32000
	}
}

// Sentinels for errors.Is checks. Any *Error matches the sentinel of its kind.
var (
	MethodNotSupported  = &Error{Kind: KindMethodNotSupported}
	DuplicateName       = &Error{Kind: KindDuplicateName}
	NotFound            = &Error{Kind: KindNotFound}
	UnsupportedChain    = &Error{Kind: KindUnsupportedChain}
	SponsorshipFailed   = &Error{Kind: KindSponsorshipFailed}
	BundlerError        = &Error{Kind: KindBundlerError}
	AmbiguousSubmission = &Error{Kind: KindAmbiguousSubmission}
	SigningError        = &Error{Kind: KindSigningError}
	Unsupported         = &Error{Kind: KindUnsupported}
	UnsupportedMethod   = &Error{Kind: KindUnsupportedMethod}
	InvalidParams       = &Error{Kind: KindInvalidParams}
	Internal            = &Error{Kind: KindInternal}
)

// Error is a classified keyring error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports kind equality so that errors.Is(err, errs.NotFound) works for
// any NotFound error regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New creates an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind. A nil err yields nil.
func Wrap(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the outermost *Error in the chain, or
// KindInternal for unclassified errors.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
