package model

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestNormalizeChannels(t *testing.T) {
	got, err := NormalizeChannels([]string{"push", "email", "push"})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"email", "push"}) {
		t.Fatalf("unexpected channels %v", got)
	}

	got, err = NormalizeChannels(nil)
	if err != nil || got == nil || len(got) != 0 {
		t.Fatalf("want empty non-nil slice, got %v (%v)", got, err)
	}

	if _, err := NormalizeChannels([]string{"pigeon"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("want ErrInvalidRequest, got %v", err)
	}
}

func TestEventValidate(t *testing.T) {
	ok := Event{
		EventID:   "123",
		UserID:    "456",
		EventType: "ORDER_SHIPPED",
		Timestamp: "2025-01-01T12:00:00.000Z",
		Payload:   json.RawMessage(`{"orderId":"789"}`),
	}
	if err := ok.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	bad := ok
	bad.Timestamp = "yesterday"
	if err := bad.Validate(); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("want ErrInvalidRequest, got %v", err)
	}

	bad = ok
	bad.UserID = ""
	if err := bad.Validate(); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("want ErrInvalidRequest, got %v", err)
	}
}

func TestVerdictJSON_OmitsUnusedFields(t *testing.T) {
	ev := Event{EventID: "e1", UserID: "u1"}

	b, _ := json.Marshal(Suppress(ev, ReasonUserUnsubscribed))
	want := `{"decision":"DO_NOT_NOTIFY","eventId":"e1","userId":"u1","reason":"USER_UNSUBSCRIBED"}`
	if string(b) != want {
		t.Fatalf("want %s, got %s", want, b)
	}

	b, _ = json.Marshal(Process(ev, []string{"email"}))
	want = `{"decision":"PROCESS_NOTIFICATION","eventId":"e1","userId":"u1","channels":["email"]}`
	if string(b) != want {
		t.Fatalf("want %s, got %s", want, b)
	}
}
