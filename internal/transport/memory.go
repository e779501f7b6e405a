package transport

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/ambrosia/pkg/schema"
)

// MemoryTransport is an in-process at-least-once transport. Messages for a
// topic without a subscriber wait in a backlog until one subscribes.
type MemoryTransport struct {
	pool   *WorkerPool
	policy RedeliveryPolicy
	logger *slog.Logger

	mu       sync.Mutex
	handlers map[string]Handler
	backlog  map[string][]Message
	pending  []Message
	busy     int
	closed   bool

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

// NewMemoryTransport starts a transport delivering on poolSize workers.
func NewMemoryTransport(poolSize int, policy RedeliveryPolicy, logger *slog.Logger) *MemoryTransport {
	if logger == nil {
		logger = slog.Default()
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	t := &MemoryTransport{
		pool:     NewWorkerPool(poolSize),
		policy:   policy,
		logger:   logger,
		handlers: make(map[string]Handler),
		backlog:  make(map[string][]Message),
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go t.dispatch()
	return t
}

func (t *MemoryTransport) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if topic == "" {
		return schema.InvalidArgument("topic is required")
	}
	msg := Message{
		ID:          uuid.NewString(),
		Topic:       topic,
		Payload:     append([]byte(nil), payload...),
		Attempt:     1,
		PublishedAt: time.Now().UTC(),
	}
	if !t.enqueue(msg, true) {
		return errClosed(topic)
	}
	return nil
}

// Subscribe registers the single handler of topic and releases its backlog.
func (t *MemoryTransport) Subscribe(topic string, h Handler) (func(), error) {
	if h == nil {
		return nil, schema.InvalidArgument("handler is required")
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, errClosed(topic)
	}
	if _, exists := t.handlers[topic]; exists {
		t.mu.Unlock()
		return nil, schema.NewErrorf(schema.ErrCodeConflict, "topic %s already has a subscriber", topic)
	}
	t.handlers[topic] = h
	queued := t.backlog[topic]
	delete(t.backlog, topic)
	t.busy += len(queued)
	t.pending = append(t.pending, queued...)
	t.mu.Unlock()
	t.signal()

	unsubscribe := func() {
		t.mu.Lock()
		delete(t.handlers, topic)
		t.mu.Unlock()
	}
	return unsubscribe, nil
}

// Flush blocks until every published message has been handled or parked in
// a backlog, including scheduled redeliveries.
func (t *MemoryTransport) Flush(ctx context.Context) error {
	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()
	for {
		t.mu.Lock()
		idle := t.busy == 0
		t.mu.Unlock()
		if idle {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Backlog returns how many messages wait for a subscriber on topic.
func (t *MemoryTransport) Backlog(topic string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.backlog[topic])
}

// Metrics exposes the worker pool counters.
func (t *MemoryTransport) Metrics() PoolMetrics {
	return t.pool.Metrics()
}

// Close stops dispatching and waits for running handlers.
func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	close(t.stop)
	<-t.done
	t.pool.Shutdown()
	return nil
}

// enqueue queues msg for routing. fresh is false for redeliveries, which
// are already counted as busy.
func (t *MemoryTransport) enqueue(msg Message, fresh bool) bool {
	t.mu.Lock()
	if t.closed {
		if !fresh {
			t.busy--
		}
		t.mu.Unlock()
		return false
	}
	if fresh {
		t.busy++
	}
	t.pending = append(t.pending, msg)
	t.mu.Unlock()
	t.signal()
	return true
}

func (t *MemoryTransport) signal() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

func (t *MemoryTransport) dispatch() {
	defer close(t.done)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-t.stop
		cancel()
	}()

	for {
		t.mu.Lock()
		batch := t.pending
		t.pending = nil
		t.mu.Unlock()

		for _, msg := range batch {
			t.route(ctx, msg)
		}

		select {
		case <-t.wake:
		case <-t.stop:
			return
		}
	}
}

func (t *MemoryTransport) route(ctx context.Context, msg Message) {
	t.mu.Lock()
	h, ok := t.handlers[msg.Topic]
	if !ok {
		t.backlog[msg.Topic] = append(t.backlog[msg.Topic], msg)
		t.busy--
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	err := t.pool.Submit(ctx, func(ctx context.Context) error {
		return h(ctx, msg)
	}, func(err error) {
		t.settle(msg, err)
	})
	if err != nil {
		t.logger.Warn("message dropped on shutdown",
			slog.String("topic", msg.Topic),
			slog.String("message_id", msg.ID),
			slog.String("error", err.Error()),
		)
		t.finish()
	}
}

// settle decides what happens after a handler ran.
func (t *MemoryTransport) settle(msg Message, err error) {
	if err == nil {
		t.finish()
		return
	}

	log := t.logger.With(
		slog.String("topic", msg.Topic),
		slog.String("message_id", msg.ID),
		slog.Int("attempt", msg.Attempt),
		slog.String("error", err.Error()),
	)

	if IsRedeliverable(err) && msg.Attempt < t.policy.MaxAttempts {
		delay := t.policy.BackoffFor(msg.Attempt - 1)
		log.Warn("redelivering message", slog.Duration("delay", delay))
		next := msg
		next.Attempt++
		time.AfterFunc(delay, func() { t.enqueue(next, false) })
		return
	}

	if IsDeadLetterTopic(msg.Topic) {
		log.Error("dead-letter handler failed; message discarded")
		t.finish()
		return
	}

	log.Error("dead-lettering message")
	dl := DeadLetter{
		MessageID: msg.ID,
		Topic:     msg.Topic,
		Payload:   msg.Payload,
		Error:     describe(err),
		Attempts:  msg.Attempt,
		FailedAt:  time.Now().UTC(),
	}
	if perr := PublishJSON(context.Background(), t, DeadLetterTopic(msg.Topic), dl); perr != nil {
		log.Error("dead-letter publish failed", slog.String("publish_error", perr.Error()))
	}
	t.finish()
}

func (t *MemoryTransport) finish() {
	t.mu.Lock()
	t.busy--
	t.mu.Unlock()
}

var _ Transport = (*MemoryTransport)(nil)
