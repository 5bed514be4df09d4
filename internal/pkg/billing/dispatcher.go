package billing

import (
	"context"
	"sort"

	"github.com/ManuelReschke/InvoiceFox/app/models"
)

// HandlerResult is what a handler reports back to the webhook pipeline.
type HandlerResult struct {
	Outcome       string
	Notifications []Notification
}

func applied(notes ...Notification) HandlerResult {
	return HandlerResult{Outcome: models.EventOutcomeApplied, Notifications: notes}
}

func ignored() HandlerResult {
	return HandlerResult{Outcome: models.EventOutcomeIgnored}
}

// HandlerFunc mutates the subscription store for one event type. It runs inside
// the transaction that reserved the event and must be safe to re-run.
type HandlerFunc func(ctx context.Context, tx Repository, ev Event) (HandlerResult, error)

// Dispatcher maps event types to handlers. Unknown types are ignored.
type Dispatcher struct {
	handlers map[string]HandlerFunc
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]HandlerFunc)}
}

func (d *Dispatcher) Register(eventType string, h HandlerFunc) {
	d.handlers[eventType] = h
}

func (d *Dispatcher) Handles(eventType string) bool {
	_, ok := d.handlers[eventType]
	return ok
}

// EventTypes lists the registered event types in sorted order.
func (d *Dispatcher) EventTypes() []string {
	out := make([]string, 0, len(d.handlers))
	for t := range d.handlers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (d *Dispatcher) Dispatch(ctx context.Context, tx Repository, ev Event) (HandlerResult, error) {
	h, ok := d.handlers[ev.Type]
	if !ok {
		return ignored(), nil
	}
	return h(ctx, tx, ev)
}
