package idempotency

import (
	"errors"
	"fmt"
)

// Kind classifies failures raised at the coordinator boundary.
type Kind int

const (
	KindUnknown Kind = iota
	// KindKeyMissing means the caller omitted a required idempotency key.
	KindKeyMissing
	// KindBodyMismatch means the key was reused for a different request body.
	KindBodyMismatch
	// KindConflict means a request with the same key is still in flight.
	KindConflict
	// KindStoreUnavailable marks a store I/O failure. The coordinator degrades on it
	// and never returns it to its caller.
	KindStoreUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindKeyMissing:
		return "key_missing"
	case KindBodyMismatch:
		return "body_mismatch"
	case KindConflict:
		return "conflict"
	case KindStoreUnavailable:
		return "store_unavailable"
	default:
		return "unknown"
	}
}

// Error is the tagged error type for idempotency failures.
type Error struct {
	Kind Kind
	// Key is the raw client key, or the header name for KindKeyMissing.
	Key string
	Err error
}

var (
	ErrKeyMissing       = &Error{Kind: KindKeyMissing}
	ErrBodyMismatch     = &Error{Kind: KindBodyMismatch}
	ErrConflict         = &Error{Kind: KindConflict}
	ErrStoreUnavailable = &Error{Kind: KindStoreUnavailable}
)

func (e *Error) Error() string {
	var msg string
	switch e.Kind {
	case KindKeyMissing:
		msg = "missing required idempotency header"
		if e.Key != "" {
			msg += ": " + e.Key
		}
	case KindBodyMismatch:
		msg = fmt.Sprintf("idempotency key %q was already used with a different request body", e.Key)
	case KindConflict:
		msg = fmt.Sprintf("request with idempotency key %q is already being processed", e.Key)
	case KindStoreUnavailable:
		msg = "idempotency store unavailable"
	default:
		msg = "idempotency error"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the package sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the Kind carried by err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func storeUnavailable(op string, err error) error {
	return &Error{Kind: KindStoreUnavailable, Err: fmt.Errorf("%s: %w", op, err)}
}
