// Package bus implements the in-process priority message bus: three
// strictly-ordered priority classes dispatched by a single goroutine, with
// publish/subscribe/unsubscribe and a request/response convenience built on
// top of a one-shot reply subscription.
package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iruldev/concurrency-core/internal/core/bridge"
	"github.com/iruldev/concurrency-core/internal/coreerr"
	"github.com/iruldev/concurrency-core/internal/intent"
)

// Priority is one of the bus's three dispatch classes.
type Priority = intent.MessagePriority

// The three dispatch classes, re-exported from intent.
const (
	High   = intent.MessagePriorityHigh
	Normal = intent.MessagePriorityNormal
	Low    = intent.MessagePriorityLow
)

var priorityOrder = [3]Priority{High, Normal, Low}

// MessageType classifies the intent of a published Message.
type MessageType string

// The four defined message types.
const (
	Command  MessageType = "COMMAND"
	Event    MessageType = "EVENT"
	Query    MessageType = "QUERY"
	Response MessageType = "RESPONSE"
)

// Message is one published event: a topic, an arbitrary payload, and the
// priority class it was published at. ReplyTo is set only for messages
// published through RequestResponse and names the private topic a handler
// should Reply on. CorrelationID and Metadata are caller-supplied and
// otherwise left zero-valued; Intent records which intent tag (if any)
// selected this message's priority.
type Message struct {
	ID            string
	Type          MessageType
	Topic         string
	Payload       any
	Priority      Priority
	CorrelationID string
	ReplyTo       string
	Metadata      map[string]string
	Intent        intent.Tag
	Timestamp     time.Time
}

// PublishOption customizes a message published via PublishMessage.
type PublishOption func(*Message)

// WithCorrelationID stamps msg.CorrelationID, letting a caller tie a
// published message back to the request that triggered it.
func WithCorrelationID(id string) PublishOption {
	return func(m *Message) { m.CorrelationID = id }
}

// WithMetadata attaches caller-defined key/value metadata to the message.
func WithMetadata(md map[string]string) PublishOption {
	return func(m *Message) { m.Metadata = md }
}

// WithIntent records which intent tag selected this message's priority, for
// observability; it does not itself change Priority (callers resolve that
// from an intent.Registry and pass it to PublishMessage directly).
func WithIntent(tag intent.Tag) PublishOption {
	return func(m *Message) { m.Intent = tag }
}

// Callback handles one delivered Message. A callback that panics or returns
// an error is isolated: it never affects sibling callbacks or the
// dispatcher.
type Callback func(ctx context.Context, msg Message) error

// SubscriptionID identifies one registered callback for Unsubscribe.
type SubscriptionID struct {
	topic string
	id    uint64
}

type subscriber struct {
	id uint64
	cb Callback
}

type envelope struct {
	msg Message
}

// Bus is the priority message bus. The zero value is not usable; construct
// with New.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]subscriber
	nextID uint64

	queues map[Priority]chan envelope
	wake   chan struct{}

	bridgeOut bridge.Bridge

	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *zap.Logger
}

// Config sizes each priority queue's buffer.
type Config struct {
	HighCapacity   int
	NormalCapacity int
	LowCapacity    int
}

// DefaultConfig gives lower-priority queues more room, since they drain
// last: 100/200/500 (the scheduler's queue-limit defaults are 50/100/200).
func DefaultConfig() Config {
	return Config{HighCapacity: 100, NormalCapacity: 200, LowCapacity: 500}
}

// New constructs a Bus and starts its single strict-priority dispatcher
// goroutine. out is an optional outbound Bridge for mirroring dispatched
// messages to an external broker; pass bridge.NewNopBridge() to disable
// external fan-out.
func New(cfg Config, out bridge.Bridge, logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	if out == nil {
		out = bridge.NewNopBridge()
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		subs:      make(map[string][]subscriber),
		queues:    make(map[Priority]chan envelope, 3),
		wake:      make(chan struct{}, 1),
		bridgeOut: out,
		cancel:    cancel,
		logger:    logger,
	}
	b.queues[High] = make(chan envelope, cfg.HighCapacity)
	b.queues[Normal] = make(chan envelope, cfg.NormalCapacity)
	b.queues[Low] = make(chan envelope, cfg.LowCapacity)

	b.wg.Add(1)
	go b.dispatchLoop(ctx)

	return b
}

// Publish enqueues msg for delivery to every subscriber of topic at
// priority. Publish never blocks the caller past the queue's buffer: a full
// priority queue returns CORE-001.
func (b *Bus) Publish(ctx context.Context, topic string, payload any, priority Priority) error {
	_, err := b.publish(ctx, topic, payload, priority, Event, "", nil)
	return err
}

// PublishMessage is the full external entry point: it stamps a message type
// and lets the caller attach a correlation id, metadata, and the intent tag
// that selected priority, then returns the generated message id.
func (b *Bus) PublishMessage(ctx context.Context, topic string, payload any, priority Priority, msgType MessageType, opts ...PublishOption) (string, error) {
	return b.publish(ctx, topic, payload, priority, msgType, "", opts)
}

func (b *Bus) publish(ctx context.Context, topic string, payload any, priority Priority, msgType MessageType, replyTo string, opts []PublishOption) (string, error) {
	q, ok := b.queues[priority]
	if !ok {
		return "", coreerr.NewValidationError("unknown priority: " + string(priority))
	}

	msg := Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Topic:     topic,
		Payload:   payload,
		Priority:  priority,
		ReplyTo:   replyTo,
		Timestamp: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&msg)
	}

	select {
	case q <- envelope{msg: msg}:
		b.notifyDispatcher()
		return msg.ID, nil
	default:
		return "", coreerr.NewQueueFullError("bus:" + string(priority))
	}
}

// notifyDispatcher wakes the dispatch loop if it's blocked waiting for
// work. The buffered size-1 channel means a burst of publishes only ever
// needs one wake-up: the loop re-checks every priority queue on each pass.
func (b *Bus) notifyDispatcher() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Subscribe registers cb for every message published on topic, at any
// priority.
func (b *Bus) Subscribe(topic string, cb Callback) SubscriptionID {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscriber{id: id, cb: cb})
	return SubscriptionID{topic: topic, id: id}
}

// Unsubscribe removes a previously registered callback. Safe to call with
// an already-removed SubscriptionID.
func (b *Bus) Unsubscribe(sub SubscriptionID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[sub.topic]
	for i, s := range list {
		if s.id == sub.id {
			b.subs[sub.topic] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// RequestResponse publishes payload on topic at priority, then waits for
// exactly one reply on a freshly generated, private reply topic. The reply
// subscription is always torn down before RequestResponse returns, whether
// it succeeded, timed out, or ctx was cancelled.
func (b *Bus) RequestResponse(ctx context.Context, topic string, payload any, priority Priority, timeout time.Duration) (any, error) {
	replyTopic := fmt.Sprintf("_reply.%s", uuid.NewString())

	replyCh := make(chan Message, 1)
	sub := b.Subscribe(replyTopic, func(_ context.Context, msg Message) error {
		select {
		case replyCh <- msg:
		default:
		}
		return nil
	})
	defer b.Unsubscribe(sub)

	if _, err := b.publish(ctx, topic, payload, priority, Query, replyTopic, nil); err != nil {
		return nil, err
	}

	waitCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	select {
	case msg := <-replyCh:
		return msg.Payload, nil
	case <-waitCtx.Done():
		return nil, coreerr.NewTimeoutError(waitCtx.Err())
	}
}

// Reply publishes payload on original's reply topic, if original was
// published via RequestResponse. Handlers that don't expect a reply should
// ignore Reply entirely; calling it on a message with no ReplyTo is a
// validation error.
func (b *Bus) Reply(ctx context.Context, original Message, payload any) error {
	if original.ReplyTo == "" {
		return coreerr.NewValidationError("message was not published via RequestResponse")
	}
	_, err := b.publish(ctx, original.ReplyTo, payload, Normal, Response, "", []PublishOption{WithCorrelationID(original.ID)})
	return err
}

// dispatchLoop is the bus's single dispatcher: on every pass it checks High,
// then Normal, then Low, always delivering from the first non-empty queue it
// finds. This gives strict priority ordering across topics but no
// starvation guarantee for Low under sustained High/Normal traffic.
func (b *Bus) dispatchLoop(ctx context.Context) {
	defer b.wg.Done()
	for {
		if b.drainOnce(ctx) {
			return
		}
	}
}

// drainOnce processes exactly one message from the highest-priority
// non-empty queue. If every queue is empty it blocks until a publish wakes
// it or ctx is cancelled. Returns true when the loop should stop.
func (b *Bus) drainOnce(ctx context.Context) bool {
	for _, p := range priorityOrder {
		select {
		case env := <-b.queues[p]:
			b.deliver(ctx, env.msg)
			return false
		default:
		}
	}

	select {
	case <-ctx.Done():
		return true
	case <-b.wake:
	}
	return false
}

// deliver fans msg out to every subscriber of its topic concurrently, then
// mirrors it to the outbound bridge. Each callback's panic or error is
// isolated from its siblings.
func (b *Bus) deliver(ctx context.Context, msg Message) {
	b.mu.RLock()
	subs := make([]subscriber, len(b.subs[msg.Topic]))
	copy(subs, b.subs[msg.Topic])
	b.mu.RUnlock()

	var wg sync.WaitGroup
	wg.Add(len(subs))
	for _, s := range subs {
		go func(s subscriber) {
			defer wg.Done()
			defer b.recoverPanic(msg, s.id)
			if err := s.cb(ctx, msg); err != nil {
				b.logger.Warn("bus subscriber callback failed",
					zap.String("topic", msg.Topic),
					zap.Uint64("subscriber_id", s.id),
					zap.Error(err))
			}
		}(s)
	}
	wg.Wait()

	b.mirrorToBridge(ctx, msg)
}

func (b *Bus) mirrorToBridge(ctx context.Context, msg Message) {
	bm, err := bridge.NewMessage(msg.Topic, msg.Payload)
	if err != nil {
		b.logger.Warn("bus: failed to marshal message for bridge mirror",
			zap.String("topic", msg.Topic), zap.Error(err))
		return
	}
	if err := b.bridgeOut.PublishAsync(ctx, msg.Topic, bm); err != nil {
		b.logger.Warn("bus: bridge mirror failed",
			zap.String("topic", msg.Topic), zap.Error(err))
	}
}

func (b *Bus) recoverPanic(msg Message, subscriberID uint64) {
	if r := recover(); r != nil {
		b.logger.Error("bus subscriber callback panicked",
			zap.String("topic", msg.Topic),
			zap.Uint64("subscriber_id", subscriberID),
			zap.Any("panic", r))
	}
}

// Close stops the dispatcher goroutine. Already-queued messages are
// dropped; callers wanting a drained shutdown should stop publishing and
// wait for queues to empty before calling Close.
func (b *Bus) Close() {
	b.cancel()
	b.wg.Wait()
}
