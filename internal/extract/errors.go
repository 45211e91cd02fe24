package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperifyio/contentxtractor/internal/browser"
	"github.com/hyperifyio/contentxtractor/internal/crx"
)

// Kind categorizes extraction failures.
type Kind string

const (
	KindNavigation             Kind = "navigation"
	KindTargetCountMismatch    Kind = "target_count_mismatch"
	KindUnsupportedPlatform    Kind = "unsupported_platform"
	KindInvalidExtensionFormat Kind = "invalid_extension_format"
	KindCanceled               Kind = "canceled"
	KindUnexpected             Kind = "unexpected"
)

// ErrInvalidRequest is wrapped by request validation failures.
var ErrInvalidRequest = errors.New("invalid request")

// Error is a categorized extraction failure.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsKind reports whether err carries an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// KindOf returns the kind of err, or KindUnexpected when it is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}

func newError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// classify maps err to an *Error. Any failure after ctx is done is reported
// as canceled, since the browser was torn down underneath the operation.
func classify(ctx context.Context, msg string, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		if IsKind(err, KindCanceled) {
			return err
		}
		return newError(KindCanceled, msg, errors.Join(ctx.Err(), err))
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	switch {
	case errors.Is(err, crx.ErrInvalidFormat):
		return newError(KindInvalidExtensionFormat, msg, err)
	case errors.Is(err, crx.ErrUnsupportedPlatform), errors.Is(err, browser.ErrUnsupportedPlatform):
		return newError(KindUnsupportedPlatform, msg, err)
	default:
		return newError(KindUnexpected, msg, err)
	}
}
