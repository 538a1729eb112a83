package llm

import (
	"context"
	"testing"
)

type stubClient struct{ name string }

func (s *stubClient) Chat(context.Context, ChatRequest) (*ChatResponse, error) {
	return &ChatResponse{Content: "ok"}, nil
}

func (s *stubClient) Name() string { return s.name }

func TestNewUsesRegisteredFactory(t *testing.T) {
	RegisterFactory("stub-provider", func(opts Options) (Client, error) {
		return &stubClient{name: opts.Provider}, nil
	})

	client, err := New(Options{Provider: "Stub-Provider", APIKey: "k"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if client.Name() != "Stub-Provider" {
		t.Fatalf("factory lookup should be case insensitive: %s", client.Name())
	}
}

func TestNewRejectsMissingKeyAndUnknownProvider(t *testing.T) {
	if _, err := New(Options{Provider: "stub-provider"}); err == nil {
		t.Fatalf("missing api key must fail")
	}
	if _, err := New(Options{Provider: "no-such-provider", APIKey: "k"}); err == nil {
		t.Fatalf("unknown provider must fail")
	}
}
