package export

import (
	"context"
	"log/slog"
	"sync"

	"github.com/rendis/ambrosia/internal/logging"
	"github.com/rendis/ambrosia/internal/transport"
	"github.com/rendis/ambrosia/pkg/schema"
)

// Consumer routes renderer replies and dead letters to the service and
// runs the broker after each one.
type Consumer struct {
	svc    *Service
	logger *slog.Logger

	mu     sync.Mutex
	unsubs []func()
}

// NewConsumer creates a consumer for svc.
func NewConsumer(svc *Service) *Consumer {
	return &Consumer{svc: svc, logger: svc.logger}
}

// Topics returns the topics the consumer subscribes to.
func Topics() []string {
	return []string{
		transport.TopicResult,
		transport.TopicError,
		transport.TopicRetry,
		transport.DeadLetterTopic(transport.TopicRequest),
		transport.DeadLetterTopic(transport.TopicRetry),
	}
}

// Start subscribes every handler. On failure prior subscriptions are undone.
func (c *Consumer) Start() error {
	handlers := map[string]transport.Handler{
		transport.TopicResult: c.handleResult,
		transport.TopicError:  c.handleError,
		transport.TopicRetry:  c.handleRetry,
		transport.DeadLetterTopic(transport.TopicRequest): c.handleRequestDeadLetter,
		transport.DeadLetterTopic(transport.TopicRetry):   c.handleRetryDeadLetter,
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, topic := range Topics() {
		unsub, err := c.svc.transport.Subscribe(topic, handlers[topic])
		if err != nil {
			for _, u := range c.unsubs {
				u()
			}
			c.unsubs = nil
			return err
		}
		c.unsubs = append(c.unsubs, unsub)
	}
	return nil
}

// Stop removes all subscriptions.
func (c *Consumer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, u := range c.unsubs {
		u()
	}
	c.unsubs = nil
}

// handleResult stores the snippet and resolves its request. A reply the
// snippet strategy rejects resolves the request as failed.
func (c *Consumer) handleResult(ctx context.Context, msg transport.Message) error {
	var sn schema.ExportAmbrosiaSnippet
	if err := transport.Decode(msg, &sn); err != nil {
		return err
	}
	ctx = logging.WithIDs(ctx, sn.ExportID, sn.NotificationID, sn.ElementID)

	var content *string
	if sn.Snippet != "" {
		content = &sn.Snippet
	}
	// The reply may omit its export id. Broadcast the persisted one.
	var r *schema.ExportResultNotification
	_, err := c.svc.Create(ctx, sn.ExportID, sn.NotificationID, sn.ElementID, sn.ElementType, sn.AccountID, content)
	switch {
	case schema.IsCode(err, schema.ErrCodeInvalidArgument) && sn.NotificationID != "":
		logging.LogWith(ctx, c.logger).Warn("rejected render result", slog.String("error", err.Error()))
		r, err = c.svc.ProcessErrorNotification(ctx, &schema.ExportErrorNotification{
			NotificationID: sn.NotificationID,
			ExportID:       sn.ExportID,
			ElementID:      sn.ElementID,
			ElementType:    sn.ElementType,
			ErrorMessage:   "render result rejected: " + err.Error(),
			Cause:          schema.ErrCodeInvalidArgument,
		})
	case err != nil:
		return err
	default:
		r, err = c.svc.ProcessResultSnippet(ctx, &sn)
	}
	if err != nil {
		return err
	}
	return c.broadcast(ctx, r.ExportID)
}

func (c *Consumer) handleError(ctx context.Context, msg transport.Message) error {
	var e schema.ExportErrorNotification
	if err := transport.Decode(msg, &e); err != nil {
		return err
	}
	ctx = logging.WithIDs(ctx, e.ExportID, e.NotificationID, e.ElementID)
	r, err := c.svc.ProcessErrorNotification(ctx, &e)
	if err != nil {
		return err
	}
	return c.broadcast(ctx, r.ExportID)
}

func (c *Consumer) handleRetry(ctx context.Context, msg transport.Message) error {
	var rt schema.ExportRetryNotification
	if err := transport.Decode(msg, &rt); err != nil {
		return err
	}
	ctx = logging.WithIDs(ctx, rt.ExportID, rt.NotificationID, rt.ElementID)
	r, err := c.svc.ProcessRetryNotification(ctx, &rt)
	if err != nil {
		return err
	}
	return c.broadcast(ctx, r.ExportID)
}

func (c *Consumer) handleRequestDeadLetter(ctx context.Context, msg transport.Message) error {
	dl, err := transport.DecodeDeadLetter(msg)
	if err != nil {
		return err
	}
	var n schema.ExportRequestNotification
	if err := transport.Decode(transport.Message{ID: dl.MessageID, Topic: dl.Topic, Payload: dl.Payload}, &n); err != nil {
		return err
	}
	ctx = logging.WithIDs(ctx, n.ExportID, n.NotificationID, n.ElementID)
	logging.LogWith(ctx, c.logger).Warn("render request dead-lettered",
		slog.Int("attempts", dl.Attempts), slog.String("error", dl.Error))
	r, err := c.svc.ProcessSubmitDeadLetters(ctx, &n, dl.Payload)
	if err != nil {
		return err
	}
	return c.broadcast(ctx, r.ExportID)
}

func (c *Consumer) handleRetryDeadLetter(ctx context.Context, msg transport.Message) error {
	dl, err := transport.DecodeDeadLetter(msg)
	if err != nil {
		return err
	}
	var rt schema.ExportRetryNotification
	if err := transport.Decode(transport.Message{ID: dl.MessageID, Topic: dl.Topic, Payload: dl.Payload}, &rt); err != nil {
		return err
	}
	ctx = logging.WithIDs(ctx, rt.ExportID, rt.NotificationID, rt.ElementID)
	logging.LogWith(ctx, c.logger).Warn("retry notification dead-lettered",
		slog.Int("attempts", dl.Attempts), slog.String("error", dl.Error))
	r, err := c.svc.ProcessRetryDeadLetters(ctx, &rt, dl.Payload)
	if err != nil {
		return err
	}
	return c.broadcast(ctx, r.ExportID)
}

func (c *Consumer) broadcast(ctx context.Context, exportID string) error {
	_, err := c.svc.broker.Broadcast(ctx, exportID)
	return err
}
