// Package dispatch routes named gateway events to registered handlers.
// Registration is validated against the known event kinds up front; a
// separate custom path exists for provider event types the table does
// not know about yet.
package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"

	"github.com/availex/twitch-gateway-go/internal/logger"
	"github.com/availex/twitch-gateway-go/internal/model"
)

// Handler consumes one dispatched event. The payload is
// json.RawMessage for EventSub notifications and a typed model value
// for chat events.
type Handler func(ctx context.Context, payload any)

// lifecycleEvents are dispatchable names that do not correspond to an
// EventSub subscription.
var lifecycleEvents = map[string]bool{
	"ready":           true,
	"chat_connected":  true,
	"room_joined":     true,
	"room_left":       true,
	"revocation":      true,
	"token_refreshed": true,
}

// Registry is the event-name → handler mapping. Safe for concurrent
// use; registration normally happens before the channels start.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	log      *logger.Logger
}

// New creates an empty Registry.
func New(log *logger.Logger) *Registry {
	return &Registry{
		handlers: make(map[string][]Handler),
		log:      log,
	}
}

// On registers a handler for a known event name. Unknown names are
// rejected; use OnCustom for provider types outside the table.
func (r *Registry) On(name string, h Handler) error {
	if !model.KnownEvent(name) && !lifecycleEvents[name] {
		return fmt.Errorf("unknown event %q; use OnCustom for custom subscription types", name)
	}
	r.add(name, h)
	return nil
}

// OnCustom registers a handler for an arbitrary event name. The name
// is used verbatim as the subscription type.
func (r *Registry) OnCustom(name string, h Handler) {
	r.add(name, h)
}

func (r *Registry) add(name string, h Handler) {
	r.mu.Lock()
	r.handlers[name] = append(r.handlers[name], h)
	r.mu.Unlock()
}

// Dispatch invokes all handlers for name, fire-and-forget. Handler
// panics are recovered and logged so one handler cannot take down a
// channel's read loop.
func (r *Registry) Dispatch(ctx context.Context, name string, payload any) {
	r.mu.RLock()
	handlers := r.handlers[name]
	r.mu.RUnlock()

	for _, h := range handlers {
		h := h
		go func() {
			defer func() {
				if rec := recover(); rec != nil {
					r.log.Error("Event handler panicked",
						"event", name, "panic", rec, "stack", string(debug.Stack()))
				}
			}()
			h(ctx, payload)
		}()
	}
}

// SubscribableEvents returns the sorted registered names that map to
// EventSub descriptors. Lifecycle-only names are excluded.
func (r *Registry) SubscribableEvents() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		if lifecycleEvents[name] {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
