package newsie

import (
	"errors"
	"strconv"
)

// Kind classifies engine errors so callers can render feedback without
// string matching.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindDuplicateFeed
	KindFetch
	KindStorage
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindDuplicateFeed:
		return "duplicate_feed"
	case KindFetch:
		return "fetch"
	case KindStorage:
		return "storage"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is. An *Error matches the sentinel of its Kind.
var (
	ErrValidation    = errors.New("invalid feed url")
	ErrDuplicateFeed = errors.New("feed already added")
	ErrFetch         = errors.New("fetch failed")
	ErrStorage       = errors.New("storage error")
	ErrNotFound      = errors.New("not found")
)

func (k Kind) sentinel() error {
	switch k {
	case KindValidation:
		return ErrValidation
	case KindDuplicateFeed:
		return ErrDuplicateFeed
	case KindFetch:
		return ErrFetch
	case KindStorage:
		return ErrStorage
	case KindNotFound:
		return ErrNotFound
	default:
		return nil
	}
}

// Error is returned by every Engine operation that fails for a reason the
// caller can act on.
type Error struct {
	Kind Kind
	Op   string // operation, e.g. "add feed"
	URL  string // feed URL or ID the operation was about, if any
	Err  error
}

// Error formats the failure. Fetch errors pass the fetcher's message
// through unchanged.
func (e *Error) Error() string {
	if e.Kind == KindFetch && e.Err != nil {
		return e.Err.Error()
	}
	msg := e.Kind.sentinel()
	s := "error"
	if msg != nil {
		s = msg.Error()
	}
	if e.URL != "" {
		s += " " + strconv.Quote(e.URL)
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf returns the Kind of the first *Error in err's chain, or
// KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
