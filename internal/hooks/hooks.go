// Package hooks implements the process-wide lifecycle event registry: a
// typed pub/sub store that lets the scheduler, datastore, and message bus
// emit and observe lifecycle events without importing one another.
package hooks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// EventType identifies one of the defined lifecycle events.
type EventType string

// Defined lifecycle event types.
const (
	OnServiceInit  EventType = "ON_SERVICE_INIT"
	PreDispatch    EventType = "PRE_DISPATCH"
	PostDispatch   EventType = "POST_DISPATCH"
	OnDataIOError  EventType = "ON_DATA_IO_ERROR"
	OnSystemStress EventType = "ON_SYSTEM_STRESS"
)

// EventContext carries the data passed to a handler when an event fires.
// Fields beyond Type/Timestamp/ServiceName/Payload are optional and
// event-specific: RequestInfo is populated for PRE_DISPATCH/POST_DISPATCH,
// Err for ON_DATA_IO_ERROR, SystemStatus for ON_SYSTEM_STRESS.
type EventContext struct {
	Type         EventType
	Timestamp    time.Time
	ServiceName  string
	Payload      any
	RequestInfo  any
	SystemStatus any
	Err          error
}

// Handler processes one lifecycle event. A Handler that returns an error or
// panics is isolated: the error is logged and does not propagate to the
// trigger caller or to sibling handlers.
type Handler func(ctx context.Context, evt EventContext) error

type subscription struct {
	id          uint64
	serviceName string
	handler     Handler
}

// Registry is the process-wide lifecycle hook store. The zero value is not
// usable; construct with New.
type Registry struct {
	mu       sync.RWMutex
	handlers map[EventType][]subscription
	nextID   uint64
	logger   *zap.Logger
}

// New creates an empty Registry.
func New(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		handlers: make(map[EventType][]subscription),
		logger:   logger,
	}
}

// SubscriptionID identifies one registered handler, returned by Subscribe and
// consumed by Unsubscribe.
type SubscriptionID struct {
	eventType EventType
	id        uint64
}

// Subscribe registers handler for eventType. serviceName is recorded for
// debugging which service subscribed to which events; pass "" if unknown.
func (r *Registry) Subscribe(eventType EventType, handler Handler, serviceName string) SubscriptionID {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	r.handlers[eventType] = append(r.handlers[eventType], subscription{
		id:          id,
		serviceName: serviceName,
		handler:     handler,
	})

	return SubscriptionID{eventType: eventType, id: id}
}

// Unsubscribe removes a previously registered handler. Safe to call with a
// SubscriptionID that has already been removed.
func (r *Registry) Unsubscribe(sub SubscriptionID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs := r.handlers[sub.eventType]
	for i, s := range subs {
		if s.id == sub.id {
			r.handlers[sub.eventType] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Subscribers returns the service names subscribed to eventType, for
// debugging and introspection.
func (r *Registry) Subscribers(eventType EventType) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := r.handlers[eventType]
	names := make([]string, 0, len(subs))
	for _, s := range subs {
		names = append(names, s.serviceName)
	}
	return names
}

// TriggerEvent fans evt out to every handler subscribed to evt.Type. Every
// handler is launched concurrently and the call blocks until all of them
// return; a handler's error or panic is logged and isolated from its
// siblings and from the caller.
func (r *Registry) TriggerEvent(ctx context.Context, evt EventContext) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	r.mu.RLock()
	subs := make([]subscription, len(r.handlers[evt.Type]))
	copy(subs, r.handlers[evt.Type])
	r.mu.RUnlock()

	if len(subs) == 0 {
		return
	}

	var wg sync.WaitGroup
	wg.Add(len(subs))

	for _, s := range subs {
		go func(s subscription) {
			defer wg.Done()
			defer r.recoverPanic(evt, s)

			if err := s.handler(ctx, evt); err != nil {
				r.logger.Warn("lifecycle hook handler failed",
					zap.String("event_type", string(evt.Type)),
					zap.String("service_name", s.serviceName),
					zap.Error(err),
				)
			}
		}(s)
	}

	wg.Wait()
}

func (r *Registry) recoverPanic(evt EventContext, s subscription) {
	if rec := recover(); rec != nil {
		r.logger.Error("lifecycle hook handler panicked",
			zap.String("event_type", string(evt.Type)),
			zap.String("service_name", s.serviceName),
			zap.Any("panic", rec),
		)
	}
}

// String renders a SubscriptionID for logging.
func (s SubscriptionID) String() string {
	return fmt.Sprintf("%s#%d", s.eventType, s.id)
}
