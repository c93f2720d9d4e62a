// Package router dispatches host calls through an ordered chain of handlers.
package router

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/yolodolo42/scwkeyring/internal/errs"
)

// Request is one inbound host call.
type Request struct {
	Origin string
	ID     json.RawMessage
	Method string
	Params json.RawMessage
}

// Handler services a call or declines it with errs.MethodNotSupported.
type Handler interface {
	Handle(ctx context.Context, req Request) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req Request) (any, error)

func (f HandlerFunc) Handle(ctx context.Context, req Request) (any, error) {
	return f(ctx, req)
}

// Router tries its handlers in order.
type Router struct {
	handlers []Handler
}

func New(handlers ...Handler) *Router {
	return &Router{handlers: handlers}
}

// Handle returns the first result that is not a decline. When every handler
// declines the caller gets MethodNotSupported.
func (r *Router) Handle(ctx context.Context, req Request) (any, error) {
	for _, h := range r.handlers {
		result, err := h.Handle(ctx, req)
		if err != nil && errors.Is(err, errs.MethodNotSupported) {
			continue
		}
		return result, err
	}
	return nil, NotSupported(req.Method)
}

// NotSupported is the decline error for method.
func NotSupported(method string) error {
	return errs.New(errs.KindMethodNotSupported, "method not supported: %s", method)
}

// Logging records every call and always declines.
func Logging() Handler {
	return HandlerFunc(func(_ context.Context, req Request) (any, error) {
		id := "null"
		if len(req.ID) > 0 {
			id = string(req.ID)
		}
		log.Debug().
			Str("id", id).
			Str("origin", req.Origin).
			Str("method", req.Method).
			Int("params_len", len(req.Params)).
			Msg("request")
		return nil, NotSupported(req.Method)
	})
}
