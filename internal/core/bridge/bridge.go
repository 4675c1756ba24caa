// Package bridge adapts already-dispatched Message Bus deliveries to an
// external broker for cross-process fan-out. A Bridge is a pure consumer: it
// never feeds a message back into the in-process bus, so the bus stays the
// sole source of truth for request/reply correlation.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Message is the wire-shaped representation of a bus Message handed to a
// Bridge for outbound delivery.
type Message struct {
	// ID is the unique identifier for the message.
	ID string `json:"id"`

	// Topic is the bus topic the message was published on.
	Topic string `json:"topic"`

	// Payload is the message data as JSON.
	Payload json.RawMessage `json:"payload"`

	// Timestamp is when the message was published.
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage builds a Message with a generated ID and current timestamp.
func NewMessage(topic string, payload interface{}) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}

	return Message{
		ID:        uuid.New().String(),
		Topic:     topic,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Bridge mirrors in-process bus deliveries to an external broker. Implement
// this for RabbitMQ, Kafka, or any other broker the bus should fan out to.
type Bridge interface {
	// Publish sends a message synchronously and waits for broker confirmation.
	Publish(ctx context.Context, topic string, msg Message) error

	// PublishAsync sends a message asynchronously; the broker write happens
	// in the background and errors are logged but not returned.
	PublishAsync(ctx context.Context, topic string, msg Message) error
}

// NopBridge discards every message. Used when no external fan-out is
// configured.
type NopBridge struct{}

// NewNopBridge returns a Bridge that discards all messages.
func NewNopBridge() Bridge {
	return &NopBridge{}
}

func (b *NopBridge) Publish(_ context.Context, _ string, _ Message) error      { return nil }
func (b *NopBridge) PublishAsync(_ context.Context, _ string, _ Message) error { return nil }

// Sentinel errors for inbound bridge consumption (used by integration tests
// that simulate a broker echoing a message back for processing).
var (
	ErrConsumerClosed    = errors.New("consumer closed")
	ErrProcessingTimeout = errors.New("processing timeout exceeded")
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

// Handler processes a Message consumed from a broker. It must be idempotent;
// a message may be redelivered after a failure.
type Handler func(ctx context.Context, msg Message) error

// Consumer reads messages back from a broker. A Bridge never wires a
// Consumer into the in-process bus itself (that would violate the
// no-durable-cross-process-queue rule); Consumer exists for standalone
// broker-side tooling such as dead-letter replays.
type Consumer interface {
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Close() error
}

// ConsumerConfig configures retry/concurrency behavior for a Consumer.
type ConsumerConfig struct {
	GroupID           string
	MaxRetries        int
	Concurrency       int
	ProcessingTimeout time.Duration
	AutoAck           bool
}

// DefaultConsumerConfig returns sensible defaults for consumer configuration.
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		MaxRetries:        3,
		Concurrency:       1,
		ProcessingTimeout: 30 * time.Second,
		AutoAck:           true,
	}
}

// Validate checks the ConsumerConfig for invalid values.
func (c ConsumerConfig) Validate() error {
	if c.MaxRetries < 0 {
		return errors.New("MaxRetries must be >= 0")
	}
	if c.Concurrency < 1 {
		return errors.New("Concurrency must be >= 1")
	}
	if c.ProcessingTimeout < 0 {
		return errors.New("ProcessingTimeout must be >= 0")
	}
	return nil
}

// NopConsumer is a no-op Consumer for testing. Subscribe returns immediately.
type NopConsumer struct {
	mu     sync.Mutex
	closed bool
}

// NewNopConsumer creates a new NopConsumer.
func NewNopConsumer() Consumer {
	return &NopConsumer{}
}

func (c *NopConsumer) Subscribe(_ context.Context, _ string, _ Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConsumerClosed
	}
	return nil
}

func (c *NopConsumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// MockConsumer is a test double that captures handler calls.
type MockConsumer struct {
	handler    Handler
	topic      string
	messages   []Message
	mu         sync.Mutex
	closed     bool
	cancelFunc context.CancelFunc
}

// NewMockConsumer creates a new MockConsumer.
func NewMockConsumer() *MockConsumer {
	return &MockConsumer{messages: make([]Message, 0)}
}

// Subscribe stores the handler for later simulation and blocks until
// cancelled.
func (m *MockConsumer) Subscribe(ctx context.Context, topic string, handler Handler) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrConsumerClosed
	}
	m.handler = handler
	m.topic = topic
	ctx, m.cancelFunc = context.WithCancel(ctx)
	m.mu.Unlock()

	<-ctx.Done()
	return nil
}

func (m *MockConsumer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	if m.cancelFunc != nil {
		m.cancelFunc()
	}
	return nil
}

// SimulateMessage triggers the subscribed handler with a test message.
func (m *MockConsumer) SimulateMessage(msg Message) error {
	m.mu.Lock()
	if m.handler == nil {
		m.mu.Unlock()
		return errors.New("no handler subscribed")
	}
	handler := m.handler
	m.messages = append(m.messages, msg)
	m.mu.Unlock()

	return handler(context.Background(), msg)
}

// HandlerCalled reports whether the handler was invoked at least once.
func (m *MockConsumer) HandlerCalled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages) > 0
}

// LastMessage returns the last message passed to the handler.
func (m *MockConsumer) LastMessage() Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) == 0 {
		return Message{}
	}
	return m.messages[len(m.messages)-1]
}

// Messages returns all messages that have been simulated.
func (m *MockConsumer) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]Message, len(m.messages))
	copy(result, m.messages)
	return result
}

// Topic returns the topic that was subscribed to.
func (m *MockConsumer) Topic() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.topic
}

// DeadMessage represents a message moved to a dead letter queue after
// exhausting retries.
type DeadMessage struct {
	Original     Message           `json:"original_message"`
	ErrorMessage string            `json:"error_message"`
	RetryCount   int               `json:"retry_count"`
	FailedAt     time.Time         `json:"failed_at"`
	SourceTopic  string            `json:"source_topic"`
	StackTrace   string            `json:"stack_trace,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
}

// DeadLetterQueue accepts messages a Consumer could not process after
// exhausting retries.
type DeadLetterQueue interface {
	Send(ctx context.Context, msg DeadMessage) error
	Close() error
}

// DLQMetrics records dead-letter-queue activity.
type DLQMetrics interface {
	IncDLQTotal(topic, errType string)
	IncDLQErrors(topic string)
}

// NopDLQMetrics discards all metrics.
type NopDLQMetrics struct{}

func (m NopDLQMetrics) IncDLQTotal(_, _ string) {}
func (m NopDLQMetrics) IncDLQErrors(_ string)   {}

// DLQConfig configures DeadLetterQueue handler behavior.
type DLQConfig struct {
	TopicName         string
	AlertThreshold    int
	IncludeStackTrace bool
	RetryDelay        time.Duration
}

// DefaultDLQConfig returns sensible defaults.
func DefaultDLQConfig() DLQConfig {
	return DLQConfig{
		AlertThreshold:    100,
		IncludeStackTrace: false,
		RetryDelay:        1 * time.Second,
	}
}

func (c DLQConfig) Validate() error {
	if c.AlertThreshold < 0 {
		return errors.New("AlertThreshold must be >= 0")
	}
	if c.RetryDelay < 0 {
		return errors.New("RetryDelay must be >= 0")
	}
	return nil
}

var (
	ErrDLQClosed = errors.New("dlq closed")
	ErrDLQFull   = errors.New("dlq full")
)

// DLQHandler wraps a Handler with bounded retry, forwarding to a
// DeadLetterQueue once retries are exhausted.
type DLQHandler struct {
	handler      Handler
	dlq          DeadLetterQueue
	maxRetries   int
	retryDelay   time.Duration
	dlqTopic     string
	includeStack bool
	metrics      DLQMetrics
}

// NewDLQHandler builds a Handler that retries failures and forwards
// exhausted ones to dlq.
//
// If the broker-side consumer already retries on error, set its MaxRetries
// to 0 when wrapping with DLQHandler to avoid N*M double retries.
func NewDLQHandler(handler Handler, dlq DeadLetterQueue, cfg DLQConfig, consumerCfg ConsumerConfig, metrics DLQMetrics) Handler {
	if metrics == nil {
		metrics = NopDLQMetrics{}
	}
	h := &DLQHandler{
		handler:      handler,
		dlq:          dlq,
		maxRetries:   consumerCfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
		dlqTopic:     cfg.TopicName,
		includeStack: cfg.IncludeStackTrace,
		metrics:      metrics,
	}
	return h.Handle
}

// Handle processes msg with retry logic, forwarding to the DLQ on final
// failure.
func (h *DLQHandler) Handle(ctx context.Context, msg Message) error {
	var lastErr error
	for attempt := 0; attempt <= h.maxRetries; attempt++ {
		err := h.handler(ctx, msg)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt < h.maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(h.retryDelay):
			}
		}
	}

	dead := DeadMessage{
		Original:     msg,
		ErrorMessage: lastErr.Error(),
		RetryCount:   h.maxRetries + 1,
		FailedAt:     time.Now().UTC(),
		SourceTopic:  h.dlqTopic,
	}
	if h.includeStack {
		dead.StackTrace = string(debug.Stack())
	}

	if err := h.dlq.Send(ctx, dead); err != nil {
		h.metrics.IncDLQErrors(h.dlqTopic)
		return fmt.Errorf("failed to send to DLQ: %w", err)
	}

	h.metrics.IncDLQTotal(h.dlqTopic, "processing_failed")
	return nil
}

// NopDeadLetterQueue discards everything sent to it.
type NopDeadLetterQueue struct {
	mu     sync.Mutex
	closed bool
}

// NewNopDeadLetterQueue creates a new NopDeadLetterQueue.
func NewNopDeadLetterQueue() DeadLetterQueue {
	return &NopDeadLetterQueue{}
}

func (q *NopDeadLetterQueue) Send(_ context.Context, _ DeadMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrDLQClosed
	}
	return nil
}

func (q *NopDeadLetterQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

// MockDeadLetterQueue is a test double that captures sent dead messages.
type MockDeadLetterQueue struct {
	messages []DeadMessage
	mu       sync.Mutex
	closed   bool
}

// NewMockDeadLetterQueue creates a new MockDeadLetterQueue.
func NewMockDeadLetterQueue() *MockDeadLetterQueue {
	return &MockDeadLetterQueue{messages: make([]DeadMessage, 0)}
}

func (m *MockDeadLetterQueue) Send(_ context.Context, msg DeadMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrDLQClosed
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *MockDeadLetterQueue) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Messages returns captured dead messages.
func (m *MockDeadLetterQueue) Messages() []DeadMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]DeadMessage, len(m.messages))
	copy(result, m.messages)
	return result
}

// LastMessage returns the last message sent to the DLQ.
func (m *MockDeadLetterQueue) LastMessage() DeadMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) == 0 {
		return DeadMessage{}
	}
	return m.messages[len(m.messages)-1]
}

// Clear resets captured messages.
func (m *MockDeadLetterQueue) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = []DeadMessage{}
}
