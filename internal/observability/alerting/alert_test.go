package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "ChainAgent/internal/errors"
)

func TestFromErrorFiltersByCode(t *testing.T) {
	if _, ok := FromError("api", apperrors.New(apperrors.CodeInvalidArgument, "bad input")); ok {
		t.Fatalf("INVALID_ARGUMENT must not alert")
	}
	event, ok := FromError("queue", apperrors.New(apperrors.CodeQueueFailure, "broker down"))
	if !ok {
		t.Fatalf("QUEUE_FAILURE should alert")
	}
	if event.Code != apperrors.CodeQueueFailure || event.Component != "queue" {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestWebhookNotifierDelivers(t *testing.T) {
	var received Event
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode: %v", err)
		}
	}))
	defer server.Close()

	notifier := &WebhookNotifier{URL: server.URL}
	event, _ := FromError("pool", apperrors.New(apperrors.CodePoolExhausted, ""))
	if err := notifier.Notify(context.Background(), event); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if received.Code != apperrors.CodePoolExhausted {
		t.Fatalf("webhook payload wrong: %+v", received)
	}
}

func TestFanoutCollectsErrors(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	dispatcher := NewFanout(LogNotifier{}, &WebhookNotifier{URL: bad.URL})
	event, _ := FromError("llm", apperrors.New(apperrors.CodeLLMFailure, ""))
	if err := dispatcher.Notify(context.Background(), event); err == nil {
		t.Fatalf("failing webhook should surface an error")
	}
}
