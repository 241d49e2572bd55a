package messaging

import (
	"context"
	"log/slog"

	"github.com/BTreeMap/StudyLine/internal/models"
)

// EventHandler processes one normalized inbound event end to end. The
// returned attempt trail is consumed for logging only.
type EventHandler interface {
	HandleEvent(ctx context.Context, ev models.InboundEvent) []models.DeliveryAttempt
}

// Router consumes a transport's inbound events and dispatches each to the
// handler in its own goroutine. Per-identity ordering is not enforced here;
// the conversation store's per-identity critical section provides the
// serialization, so a slow delivery for one user never stalls ingress for
// another.
type Router struct {
	transport Transport
	handler   EventHandler
}

// NewRouter creates a router over the given transport and handler.
func NewRouter(transport Transport, handler EventHandler) *Router {
	return &Router{transport: transport, handler: handler}
}

// Start begins consuming inbound events. It returns immediately; the loop
// runs until the transport's channel closes or ctx is cancelled.
func (rt *Router) Start(ctx context.Context) {
	slog.Info("Router starting event processing")

	go func() {
		defer slog.Info("Router stopped event processing")

		for {
			select {
			case event, ok := <-rt.transport.Events():
				if !ok {
					slog.Debug("Router events channel closed")
					return
				}
				go rt.dispatch(ctx, event)

			case <-ctx.Done():
				slog.Debug("Router stopping due to context cancellation")
				return
			}
		}
	}()
}

// dispatch runs one event through the handler, recovering panics so a single
// malformed conversation can never take down the ingress loop.
func (rt *Router) dispatch(ctx context.Context, event models.InboundEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Router recovered from handler panic", "panic", rec, "from", event.From)
		}
	}()

	attempts := rt.handler.HandleEvent(ctx, event)
	if !models.Succeeded(attempts) {
		slog.Error("Router event handled but nothing was delivered", "from", event.From, "attempts", len(attempts))
	}
}
