// Package socialpublish holds the publish contract shared by every network adapter, plus the pieces
// the adapters compose: error classification, the HTTP call helper, the post formatter, the
// container poller, and the media fetcher.
package socialpublish

import (
	"context"
	"errors"
	"fmt"

	"github.com/PortNumber53/quote-autopost/internal/models"
)

// Request is what the runner hands to an adapter.
type Request struct {
	Text     string
	QuoteURL string
	ImageURL string
}

// Post identifies a published item on the remote network.
type Post struct {
	ID  string
	URL string
}

// Publisher is the per-network publish contract.
type Publisher interface {
	Platform() models.Platform
	Publish(ctx context.Context, req Request) (Post, error)
}

type ErrorKind string

const (
	KindConfig       ErrorKind = "config"
	KindPrecondition ErrorKind = "precondition"
	KindNetwork      ErrorKind = "network"
	KindTransport    ErrorKind = "transport"
	KindAPI          ErrorKind = "api"
	KindContainer    ErrorKind = "container"
	KindTimeout      ErrorKind = "timeout"
	KindMedia        ErrorKind = "media"
)

// Error is the classified failure of a publish step. Error() is persisted verbatim.
type Error struct {
	Platform models.Platform
	Kind     ErrorKind
	Op       string
	Status   int
	Message  string
	Err      error
}

func (e *Error) Error() string {
	prefix := string(e.Platform)
	if e.Op != "" {
		prefix += " " + e.Op
	}
	switch e.Kind {
	case KindAPI:
		return fmt.Sprintf("%s: api error (status %d): %s", prefix, e.Status, e.Message)
	case KindTransport:
		return fmt.Sprintf("%s: http %d: %s", prefix, e.Status, e.Message)
	case KindNetwork:
		return fmt.Sprintf("%s: network error: %s", prefix, e.Message)
	default:
		return fmt.Sprintf("%s: %s", prefix, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the classification of err, or "" when err is not an *Error.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// Errorf builds an unclassified-status *Error of the given kind.
func Errorf(p models.Platform, kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Platform: p, Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}
