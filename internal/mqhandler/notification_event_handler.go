package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	mqcontracts "notifydecision/contracts/mq"
	"notifydecision/internal/model"
	"notifydecision/pkg/logger"
	"notifydecision/pkg/mq"
	"notifydecision/pkg/util"
)

const (
	handlerName = "decide"
	// stepDecided marks an event whose verdict is already published, so a
	// retry caused by a later step does not publish it twice.
	stepDecided = "decide.published"
)

type Decider interface {
	Decide(ctx context.Context, ev model.Event) (model.Verdict, error)
}

type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
	PublishToDLQ(ctx context.Context, routingKey string, payload []byte, originalError string) error
}

type Deduper interface {
	AcquireOnce(ctx context.Context, handler, id string) bool
	Release(ctx context.Context, handler, id string)
}

type RetryCounter interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

// Options carries the optional Redis-backed helpers. A nil Deduper disables
// cross-instance deduplication and keeps step markers in process memory. A nil
// RetryCounter falls back to the broker's delivery count.
type Options struct {
	Deduper      Deduper
	RetryCounter RetryCounter
	MaxRetries   int64
}

type NotificationEventHandler struct {
	decider   Decider
	publisher Publisher
	opts      Options
	steps     Deduper
	logger    *zap.Logger
}

func NewNotificationEventHandler(decider Decider, publisher Publisher, opts Options, logger *zap.Logger) *NotificationEventHandler {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 5
	}
	var steps Deduper = &localMarks{marks: map[string]struct{}{}}
	if opts.Deduper != nil {
		steps = opts.Deduper
	}
	return &NotificationEventHandler{
		decider:   decider,
		publisher: publisher,
		opts:      opts,
		steps:     steps,
		logger:    logger,
	}
}

// localMarks is the in-process step marker used without Redis.
type localMarks struct {
	mu    sync.Mutex
	marks map[string]struct{}
}

func (l *localMarks) AcquireOnce(_ context.Context, handler, id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := handler + ":" + id
	if _, ok := l.marks[key]; ok {
		return false
	}
	l.marks[key] = struct{}{}
	return true
}

func (l *localMarks) Release(_ context.Context, handler, id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.marks, handler+":"+id)
}

// Handle decides one notification event and publishes the verdict.
// A nil return acks the message; an error nacks and requeues it.
func (h *NotificationEventHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	log := logger.WithTrace(ctx, h.logger)

	var p mqcontracts.NotificationEventPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Error("Failed to unmarshal notification event (non-retryable, sending to DLQ)",
			zap.Error(err),
			zap.String("raw_payload", string(raw)),
		)
		h.deadLetter(ctx, raw, fmt.Errorf("json_unmarshal_error: %w", err))
		return nil
	}

	ev := model.Event{
		EventID:   p.EventID,
		UserID:    p.UserID,
		EventType: p.EventType,
		Timestamp: p.Timestamp,
		Payload:   p.Payload,
	}
	log = log.With(
		zap.String("event_id", ev.EventID),
		zap.String("user_id", ev.UserID),
		zap.String("event_type", ev.EventType),
	)

	if err := ev.Validate(); err != nil {
		log.Error("Invalid notification event (non-retryable, sending to DLQ)", zap.Error(err))
		h.deadLetter(ctx, raw, err)
		return nil
	}

	// Redis 去重：同一 eventId 只处理一次
	if h.opts.Deduper != nil && !h.opts.Deduper.AcquireOnce(ctx, handlerName, ev.EventID) {
		return nil
	}

	err := h.process(ctx, ev)
	if err == nil {
		h.finish(ctx, ev.EventID)
		return nil
	}

	isRetryable, errType := retryableError(err)
	log.Error("Failed to process notification event",
		zap.String("error_type", errType),
		zap.Bool("retryable", isRetryable),
		zap.Error(err),
	)

	if !isRetryable {
		h.deadLetter(ctx, raw, err)
		h.finish(ctx, ev.EventID)
		return nil
	}

	retryCount := h.incrementRetries(ctx, ev.EventID)
	if !util.ShouldRetry(retryCount, h.opts.MaxRetries, isRetryable) {
		log.Warn("Max retries exceeded, sending to DLQ",
			zap.Int64("retry_count", retryCount),
			zap.Int64("max_retries", h.opts.MaxRetries),
		)
		h.deadLetter(ctx, raw, err)
		h.finish(ctx, ev.EventID)
		return nil
	}

	// 释放去重键，让重新入队的消息可以再次处理
	if h.opts.Deduper != nil {
		h.opts.Deduper.Release(ctx, handlerName, ev.EventID)
	}
	return err
}

func (h *NotificationEventHandler) process(ctx context.Context, ev model.Event) error {
	verdict, err := h.decider.Decide(ctx, ev)
	if err != nil {
		return err
	}

	if h.steps.AcquireOnce(ctx, stepDecided, ev.EventID) {
		if err := h.publishDecided(ctx, ev, verdict); err != nil {
			h.steps.Release(ctx, stepDecided, ev.EventID)
			return err
		}
	}

	if verdict.Decision != model.DecisionProcess {
		return nil
	}
	dispatch := mqcontracts.NotificationDispatchPayload{
		EventID:   verdict.EventID,
		UserID:    verdict.UserID,
		EventType: ev.EventType,
		Channels:  verdict.Channels,
		Payload:   ev.Payload,
	}
	return h.publisher.Publish(ctx, mqcontracts.RoutingKeyNotificationDispatch, dispatch)
}

func (h *NotificationEventHandler) publishDecided(ctx context.Context, ev model.Event, verdict model.Verdict) error {
	decided := mqcontracts.NotificationDecidedPayload{
		EventID:   verdict.EventID,
		UserID:    verdict.UserID,
		EventType: ev.EventType,
		Decision:  string(verdict.Decision),
		Reason:    string(verdict.Reason),
		Channels:  verdict.Channels,
		DecidedAt: time.Now().UTC(),
	}
	return h.publisher.Publish(ctx, mqcontracts.RoutingKeyNotificationDecided, decided)
}

// finish runs once the message is about to be acked.
func (h *NotificationEventHandler) finish(ctx context.Context, eventID string) {
	h.steps.Release(ctx, stepDecided, eventID)
	h.resetRetries(ctx, eventID)
}

func (h *NotificationEventHandler) deadLetter(ctx context.Context, raw []byte, cause error) {
	if err := h.publisher.PublishToDLQ(ctx, mqcontracts.RoutingKeyNotificationEvent, raw, cause.Error()); err != nil {
		logger.WithTrace(ctx, h.logger).Error("Failed to publish to DLQ", zap.Error(err))
	}
}

func (h *NotificationEventHandler) incrementRetries(ctx context.Context, eventID string) int64 {
	if h.opts.RetryCounter == nil {
		return deliveryAttempt(ctx)
	}
	count, err := h.opts.RetryCounter.IncrementAndGet(ctx, util.FormatRetryKey(handlerName, eventID))
	if err != nil {
		// Redis 错误不影响处理，退回到 broker 的投递次数
		h.logger.Warn("Failed to get retry count, using delivery count", zap.String("event_id", eventID), zap.Error(err))
		return deliveryAttempt(ctx)
	}
	return count
}

func deliveryAttempt(ctx context.Context) int64 {
	if n := mq.DeliveryAttempt(ctx); n > 0 {
		return n
	}
	return 1
}

func (h *NotificationEventHandler) resetRetries(ctx context.Context, eventID string) {
	if h.opts.RetryCounter == nil {
		return
	}
	if err := h.opts.RetryCounter.Reset(ctx, util.FormatRetryKey(handlerName, eventID)); err != nil {
		h.logger.Warn("Failed to reset retry count", zap.String("event_id", eventID), zap.Error(err))
	}
}
