// Package transport carries prompts to the assistant and delivers its
// replies through callbacks.
package transport

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable means the assistant could not be reached at all.
	ErrUnavailable = errors.New("assistant unavailable")
	// ErrNoResponse means the assistant stayed silent past the max wait.
	ErrNoResponse = errors.New("no response from assistant")
)

// Handlers receive transport events. They may be called from any goroutine;
// nil handlers are skipped.
type Handlers struct {
	OnReply  func(reply string)
	OnError  func(err error)
	OnClosed func(code int)
}

func (h Handlers) reply(s string) {
	if h.OnReply != nil {
		h.OnReply(s)
	}
}

func (h Handlers) fail(err error) {
	if h.OnError != nil {
		h.OnError(err)
	}
}

func (h Handlers) closed(code int) {
	if h.OnClosed != nil {
		h.OnClosed(code)
	}
}

// Transport dispatches one prompt at a time. Send returns once the prompt
// is handed off; the reply arrives later through Handlers.
type Transport interface {
	Send(ctx context.Context, text string) error
	Close() error
}
