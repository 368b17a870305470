package proxy

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/trace"

	"github.com/backchannelauth/ciba/pkg/ciba"
)

// RequestKind is the capability a handler declares. Dispatch routes by kind,
// never by the handler's concrete type.
type RequestKind string

const (
	KindAuthRequest        RequestKind = "auth-request"
	KindTokenRequest       RequestKind = "token-request"
	KindClientRegistration RequestKind = "client-registration"
	KindUserRegistration   RequestKind = "user-registration"
)

// Handler serves one request kind.
type Handler interface {
	Kind() RequestKind
	Handle(ctx context.Context, req any) (any, error)
}

var ErrNilHandler = errors.New("proxy: nil handler")

// Dispatcher routes incoming requests to the handler registered for their
// kind. Registration and deregistration are serialized by a single lock and
// publish a fresh lookup map, so Dispatch reads without locking.
type Dispatcher struct {
	mu       sync.Mutex
	handlers []Handler
	byKind   atomic.Value // map[RequestKind]Handler
}

func NewDispatcher() *Dispatcher {
	d := new(Dispatcher)
	d.byKind.Store(map[RequestKind]Handler{})
	return d
}

// Register adds the handler if not already present. Registering the same
// handler twice leaves a single entry.
func (d *Dispatcher) Register(handler Handler) error {
	if handler == nil {
		return ErrNilHandler
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, h := range d.handlers {
		if h == handler {
			return nil
		}
	}
	d.handlers = append(d.handlers, handler)
	d.publish()
	return nil
}

// Deregister removes the handler, a no-op if it was never registered.
func (d *Dispatcher) Deregister(handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, h := range d.handlers {
		if h == handler {
			d.handlers = append(d.handlers[:i], d.handlers[i+1:]...)
			d.publish()
			return
		}
	}
}

// publish rebuilds the kind lookup. Caller must hold d.mu. The first
// registered handler of a kind wins.
func (d *Dispatcher) publish() {
	byKind := make(map[RequestKind]Handler, len(d.handlers))
	for _, h := range d.handlers {
		if _, ok := byKind[h.Kind()]; !ok {
			byKind[h.Kind()] = h
		}
	}
	d.byKind.Store(byKind)
}

// Dispatch invokes the handler registered for kind.
func (d *Dispatcher) Dispatch(ctx context.Context, kind RequestKind, req any) (any, error) {
	ctx, span := tracer.Start(ctx, "Dispatch", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	byKind := d.byKind.Load().(map[RequestKind]Handler)
	handler, ok := byKind[kind]
	if !ok {
		return nil, ciba.ErrServerError().WithDescription("no handlers registered")
	}
	return handler.Handle(ctx, req)
}
