package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"go.uber.org/zap"

	mqcontracts "notifydecision/contracts/mq"
	"notifydecision/internal/model"
	"notifydecision/pkg/mq"
)

type fakeDecider struct {
	verdict model.Verdict
	err     error
	calls   int
}

func (f *fakeDecider) Decide(_ context.Context, ev model.Event) (model.Verdict, error) {
	f.calls++
	if f.err != nil {
		return model.Verdict{}, f.err
	}
	v := f.verdict
	v.EventID, v.UserID = ev.EventID, ev.UserID
	return v, nil
}

type published struct {
	routingKey string
	payload    any
}

type fakePublisher struct {
	published []published
	dlq       []string
	// failures per routing key, consumed one per publish
	failures map[string][]error
}

func (f *fakePublisher) Publish(_ context.Context, routingKey string, payload any) error {
	if errs := f.failures[routingKey]; len(errs) > 0 {
		f.failures[routingKey] = errs[1:]
		return errs[0]
	}
	f.published = append(f.published, published{routingKey, payload})
	return nil
}

func (f *fakePublisher) count(routingKey string) int {
	n := 0
	for _, p := range f.published {
		if p.routingKey == routingKey {
			n++
		}
	}
	return n
}

func (f *fakePublisher) PublishToDLQ(_ context.Context, _ string, _ []byte, originalError string) error {
	f.dlq = append(f.dlq, originalError)
	return nil
}

type memDeduper struct{ seen map[string]bool }

func (d *memDeduper) AcquireOnce(_ context.Context, handler, id string) bool {
	if d.seen == nil {
		d.seen = map[string]bool{}
	}
	key := handler + ":" + id
	if d.seen[key] {
		return false
	}
	d.seen[key] = true
	return true
}

func (d *memDeduper) Release(_ context.Context, handler, id string) {
	delete(d.seen, handler+":"+id)
}

type memRetries struct{ counts map[string]int64 }

func (r *memRetries) IncrementAndGet(_ context.Context, key string) (int64, error) {
	if r.counts == nil {
		r.counts = map[string]int64{}
	}
	r.counts[key]++
	return r.counts[key], nil
}

func (r *memRetries) Reset(_ context.Context, key string) error {
	delete(r.counts, key)
	return nil
}

func eventBody(t *testing.T) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(mqcontracts.NotificationEventPayload{
		EventID:   "123",
		UserID:    "456",
		EventType: "ORDER_SHIPPED",
		Timestamp: "2025-01-01T12:00:00.000Z",
		Payload:   json.RawMessage(`{"orderId":"789"}`),
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestHandle_ProcessPublishesVerdictAndDispatch(t *testing.T) {
	decider := &fakeDecider{verdict: model.Verdict{Decision: model.DecisionProcess, Channels: []string{"email"}}}
	pub := &fakePublisher{}
	h := NewNotificationEventHandler(decider, pub, Options{}, zap.NewNop())

	if err := h.Handle(context.Background(), eventBody(t)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(pub.published) != 2 {
		t.Fatalf("want 2 messages, got %d", len(pub.published))
	}
	if pub.published[0].routingKey != mqcontracts.RoutingKeyNotificationDecided ||
		pub.published[1].routingKey != mqcontracts.RoutingKeyNotificationDispatch {
		t.Fatalf("unexpected routing keys %+v", pub.published)
	}
	dispatch := pub.published[1].payload.(mqcontracts.NotificationDispatchPayload)
	if string(dispatch.Payload) != `{"orderId":"789"}` || dispatch.Channels[0] != "email" {
		t.Fatalf("unexpected dispatch %+v", dispatch)
	}
}

func TestHandle_SuppressedPublishesOnlyVerdict(t *testing.T) {
	decider := &fakeDecider{verdict: model.Verdict{Decision: model.DecisionDoNotNotify, Reason: model.ReasonUserDNDActive}}
	pub := &fakePublisher{}
	h := NewNotificationEventHandler(decider, pub, Options{}, zap.NewNop())

	if err := h.Handle(context.Background(), eventBody(t)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(pub.published) != 1 {
		t.Fatalf("want only the verdict, got %+v", pub.published)
	}
	decided := pub.published[0].payload.(mqcontracts.NotificationDecidedPayload)
	if decided.Reason != string(model.ReasonUserDNDActive) {
		t.Fatalf("unexpected verdict %+v", decided)
	}
}

func TestHandle_MalformedGoesToDLQ(t *testing.T) {
	decider := &fakeDecider{}
	pub := &fakePublisher{}
	h := NewNotificationEventHandler(decider, pub, Options{}, zap.NewNop())

	for _, body := range []string{`{not json`, `{"eventId":"1"}`} {
		if err := h.Handle(context.Background(), json.RawMessage(body)); err != nil {
			t.Fatalf("%s: malformed messages must be acked, got %v", body, err)
		}
	}
	if len(pub.dlq) != 2 || decider.calls != 0 {
		t.Fatalf("want 2 DLQ messages and no decisions, got dlq=%d calls=%d", len(pub.dlq), decider.calls)
	}
}

func TestHandle_SkipsDuplicates(t *testing.T) {
	decider := &fakeDecider{verdict: model.Verdict{Decision: model.DecisionDoNotNotify, Reason: model.ReasonUserUnsubscribed}}
	h := NewNotificationEventHandler(decider, &fakePublisher{}, Options{Deduper: &memDeduper{}}, zap.NewNop())

	for i := 0; i < 2; i++ {
		if err := h.Handle(context.Background(), eventBody(t)); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}
	if decider.calls != 1 {
		t.Fatalf("want one decision, got %d", decider.calls)
	}
}

func TestHandle_RetriesStoreFailuresThenDeadLetters(t *testing.T) {
	decider := &fakeDecider{err: fmt.Errorf("%w: timeout", model.ErrStoreUnavailable)}
	pub := &fakePublisher{}
	dedup := &memDeduper{}
	h := NewNotificationEventHandler(decider, pub, Options{
		Deduper:      dedup,
		RetryCounter: &memRetries{},
		MaxRetries:   2,
	}, zap.NewNop())

	for i := 1; i <= 2; i++ {
		if err := h.Handle(context.Background(), eventBody(t)); !errors.Is(err, model.ErrStoreUnavailable) {
			t.Fatalf("attempt %d: want requeue, got %v", i, err)
		}
	}
	if err := h.Handle(context.Background(), eventBody(t)); err != nil {
		t.Fatalf("attempt 3: want ack after max retries, got %v", err)
	}
	if decider.calls != 3 || len(pub.dlq) != 1 {
		t.Fatalf("want 3 attempts and 1 DLQ message, got calls=%d dlq=%d", decider.calls, len(pub.dlq))
	}
}

func TestHandle_NonRetryableGoesToDLQ(t *testing.T) {
	decider := &fakeDecider{err: fmt.Errorf("%w: bad", model.ErrInvalidRequest)}
	pub := &fakePublisher{}
	h := NewNotificationEventHandler(decider, pub, Options{}, zap.NewNop())

	if err := h.Handle(context.Background(), eventBody(t)); err != nil {
		t.Fatalf("want ack, got %v", err)
	}
	if len(pub.dlq) != 1 {
		t.Fatalf("want 1 DLQ message, got %d", len(pub.dlq))
	}
}

func TestHandle_DispatchRetryDoesNotRepublishVerdict(t *testing.T) {
	for name, opts := range map[string]Options{
		"in process": {},
		"redis":      {Deduper: &memDeduper{}, RetryCounter: &memRetries{}},
	} {
		t.Run(name, func(t *testing.T) {
			decider := &fakeDecider{verdict: model.Verdict{Decision: model.DecisionProcess, Channels: []string{"email"}}}
			pub := &fakePublisher{failures: map[string][]error{
				mqcontracts.RoutingKeyNotificationDispatch: {errors.New("connection reset by peer")},
			}}
			h := NewNotificationEventHandler(decider, pub, opts, zap.NewNop())

			if err := h.Handle(context.Background(), eventBody(t)); err == nil {
				t.Fatal("failed dispatch must requeue")
			}
			if err := h.Handle(context.Background(), eventBody(t)); err != nil {
				t.Fatalf("retry: %v", err)
			}

			if n := pub.count(mqcontracts.RoutingKeyNotificationDecided); n != 1 {
				t.Fatalf("want the verdict published once, got %d", n)
			}
			if n := pub.count(mqcontracts.RoutingKeyNotificationDispatch); n != 1 {
				t.Fatalf("want one dispatch, got %d", n)
			}
		})
	}
}

func TestHandle_FailedVerdictPublishIsRetried(t *testing.T) {
	decider := &fakeDecider{verdict: model.Verdict{Decision: model.DecisionDoNotNotify, Reason: model.ReasonUserUnsubscribed}}
	pub := &fakePublisher{failures: map[string][]error{
		mqcontracts.RoutingKeyNotificationDecided: {errors.New("connection reset by peer")},
	}}
	h := NewNotificationEventHandler(decider, pub, Options{}, zap.NewNop())

	if err := h.Handle(context.Background(), eventBody(t)); err == nil {
		t.Fatal("failed publish must requeue")
	}
	if err := h.Handle(context.Background(), eventBody(t)); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if n := pub.count(mqcontracts.RoutingKeyNotificationDecided); n != 1 {
		t.Fatalf("want the verdict published on retry, got %d", n)
	}
}

func TestHandle_WithoutRetryCounterUsesDeliveryCount(t *testing.T) {
	decider := &fakeDecider{err: fmt.Errorf("%w: timeout", model.ErrStoreUnavailable)}
	pub := &fakePublisher{}
	h := NewNotificationEventHandler(decider, pub, Options{MaxRetries: 2}, zap.NewNop())

	ctx := mq.WithDeliveryAttempt(context.Background(), 2)
	if err := h.Handle(ctx, eventBody(t)); err == nil {
		t.Fatal("second delivery must still requeue")
	}

	ctx = mq.WithDeliveryAttempt(context.Background(), 3)
	if err := h.Handle(ctx, eventBody(t)); err != nil {
		t.Fatalf("third delivery must be acked, got %v", err)
	}
	if len(pub.dlq) != 1 {
		t.Fatalf("want 1 DLQ message, got %d", len(pub.dlq))
	}
}
