package orchestrator

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	apperrors "ChainAgent/internal/errors"
	"ChainAgent/internal/archive"
	"ChainAgent/internal/llm"
	"ChainAgent/internal/observability/alerting"
	"ChainAgent/internal/session"
	"ChainAgent/internal/tool"
)

type scriptedModel struct {
	responses []*llm.ChatResponse
	requests  []llm.ChatRequest
}

func (m *scriptedModel) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	m.requests = append(m.requests, req)
	if len(m.responses) == 0 {
		return &llm.ChatResponse{Content: "fallthrough"}, nil
	}
	next := m.responses[0]
	m.responses = m.responses[1:]
	return next, nil
}

func (m *scriptedModel) Name() string { return "scripted" }

type scriptedTransport struct {
	invoke func(req tool.CallRequest) (any, error)
}

func (s *scriptedTransport) Invoke(_ context.Context, req tool.CallRequest, _ tool.AgentContext) (any, error) {
	return s.invoke(req)
}

func (s *scriptedTransport) Ping(context.Context) error { return nil }
func (s *scriptedTransport) Close() error               { return nil }

type scriptedProvider struct {
	invoke func(req tool.CallRequest) (any, error)
}

func (s *scriptedProvider) Key() string { return "scripted" }

func (s *scriptedProvider) Descriptors() []tool.Descriptor {
	return []tool.Descriptor{{Name: "get_balance"}, {Name: "get_gas_price"}}
}

func (s *scriptedProvider) Dial(context.Context) (tool.Transport, error) {
	return &scriptedTransport{invoke: s.invoke}, nil
}

type harness struct {
	orch     *Orchestrator
	model    *scriptedModel
	sessions *session.Manager
	turns    *archive.MemoryStore
}

func newHarness(t *testing.T, model *scriptedModel, invoke func(req tool.CallRequest) (any, error), cfg Config) *harness {
	t.Helper()
	if invoke == nil {
		invoke = func(tool.CallRequest) (any, error) { return "ok", nil }
	}
	registry := tool.NewRegistry()
	if err := registry.Register(&scriptedProvider{invoke: invoke}); err != nil {
		t.Fatalf("register: %v", err)
	}
	pool := tool.NewPool(2, time.Second)
	t.Cleanup(func() { pool.Close() })
	executor := tool.NewExecutor(registry, pool, tool.ExecutorConfig{RetryAttempts: 1})

	sessions := session.NewManager(session.NewMemoryStore(time.Hour), 50)
	turns := archive.NewMemoryStore()
	orch := New(sessions, model, executor, cfg, WithArchive(turns))
	return &harness{orch: orch, model: model, sessions: sessions, turns: turns}
}

func TestDirectAnswerCompletesInOneIteration(t *testing.T) {
	model := &scriptedModel{responses: []*llm.ChatResponse{{Content: "The answer is 42."}}}
	h := newHarness(t, model, nil, Config{MaxIterations: 10})

	result, err := h.orch.Chat(context.Background(), ChatRequest{Message: "what is the answer?"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if result.Iterations != 1 || result.Exhausted {
		t.Fatalf("no tool calls should finish in one iteration: %+v", result)
	}
	if result.Content != "The answer is 42." || len(result.ToolCalls) != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}

	sess, err := h.sessions.Get(context.Background(), result.SessionID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if len(sess.Messages) != 2 ||
		sess.Messages[0].Role != session.RoleUser ||
		sess.Messages[1].Role != session.RoleAssistant {
		t.Fatalf("history should be user then assistant: %+v", sess.Messages)
	}
}

func TestToolResultsFeedBackIntoNextCall(t *testing.T) {
	model := &scriptedModel{responses: []*llm.ChatResponse{
		{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "get_balance", Arguments: map[string]any{}}}},
		{Content: "Your balance is 42 wei."},
	}}
	h := newHarness(t, model, func(tool.CallRequest) (any, error) {
		return map[string]any{"balance_wei": "42"}, nil
	}, Config{MaxIterations: 10})

	result, err := h.orch.Chat(context.Background(), ChatRequest{Message: "balance?"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if result.Iterations != 2 || result.Content != "Your balance is 42 wei." {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(result.ToolCalls) != 1 || result.ToolCalls[0].Name != "get_balance" {
		t.Fatalf("tool call summary missing: %+v", result.ToolCalls)
	}

	second := h.model.requests[1]
	var sawToolResult bool
	for _, m := range second.Messages {
		if m.Role == llm.RoleTool && m.ToolCallID == "c1" && strings.Contains(m.Content, "42") {
			sawToolResult = true
		}
	}
	if !sawToolResult {
		t.Fatalf("second model call should carry the tool result: %+v", second.Messages)
	}

	sess, _ := h.sessions.Get(context.Background(), result.SessionID)
	var persisted bool
	for _, m := range sess.Messages {
		if m.Role == session.RoleTool && m.ToolCallID == "c1" {
			persisted = true
		}
	}
	if !persisted {
		t.Fatalf("tool result should be persisted in session history: %+v", sess.Messages)
	}
}

func TestFailedToolsTriggerCorrectiveFollowUp(t *testing.T) {
	model := &scriptedModel{responses: []*llm.ChatResponse{
		{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "get_gas_price", Arguments: map[string]any{}}}},
		{Content: "I could not fetch the gas price."},
	}}
	h := newHarness(t, model, func(tool.CallRequest) (any, error) {
		return nil, apperrors.New(apperrors.CodeRPCFailure, "node unreachable")
	}, Config{MaxIterations: 10})

	result, err := h.orch.Chat(context.Background(), ChatRequest{Message: "gas?"})
	if err != nil {
		t.Fatalf("a failed tool call must not abort the turn: %v", err)
	}
	if result.Content != "I could not fetch the gas price." {
		t.Fatalf("unexpected content: %q", result.Content)
	}
	if len(result.ToolCalls) != 1 || !strings.HasPrefix(result.ToolCalls[0].Result, "error:") {
		t.Fatalf("failure should surface in the summary: %+v", result.ToolCalls)
	}

	second := h.model.requests[1]
	last := second.Messages[len(second.Messages)-1]
	if last.Role != llm.RoleUser || !strings.Contains(last.Content, "get_gas_price") {
		t.Fatalf("corrective follow-up missing: %+v", last)
	}
}

func TestIterationBudgetExhaustion(t *testing.T) {
	// The model keeps asking for tools and never answers.
	var responses []*llm.ChatResponse
	for i := 0; i < 20; i++ {
		responses = append(responses, &llm.ChatResponse{
			ToolCalls: []llm.ToolCall{{ID: "c", Name: "get_balance", Arguments: map[string]any{}}},
		})
	}
	model := &scriptedModel{responses: responses}
	h := newHarness(t, model, nil, Config{MaxIterations: 3})

	result, err := h.orch.Chat(context.Background(), ChatRequest{Message: "loop forever"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if !result.Exhausted || result.Iterations != 3 {
		t.Fatalf("expected exhaustion after 3 iterations: %+v", result)
	}
	if len(h.model.requests) != 3 {
		t.Fatalf("model must be called exactly MaxIterations times, got %d", len(h.model.requests))
	}
	if !strings.Contains(result.Content, "could not finish") {
		t.Fatalf("fallback answer missing: %q", result.Content)
	}

	turns, _ := h.turns.ListBySession(context.Background(), result.SessionID, 1)
	if len(turns) != 1 || turns[0].Status != archive.StatusExhausted {
		t.Fatalf("exhausted turn should be archived as such: %+v", turns)
	}
}

type recordingDispatcher struct {
	events []alerting.Event
}

func (d *recordingDispatcher) Notify(_ context.Context, event alerting.Event) error {
	d.events = append(d.events, event)
	return nil
}

func TestExhaustionRaisesAlert(t *testing.T) {
	var responses []*llm.ChatResponse
	for i := 0; i < 5; i++ {
		responses = append(responses, &llm.ChatResponse{
			ToolCalls: []llm.ToolCall{{ID: "c", Name: "get_balance", Arguments: map[string]any{}}},
		})
	}
	model := &scriptedModel{responses: responses}
	h := newHarness(t, model, nil, Config{MaxIterations: 2})
	dispatcher := &recordingDispatcher{}
	WithAlerts(dispatcher)(h.orch)

	result, err := h.orch.Chat(context.Background(), ChatRequest{Message: "loop"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if len(dispatcher.events) != 1 {
		t.Fatalf("expected one alert event, got %d", len(dispatcher.events))
	}
	event := dispatcher.events[0]
	if event.Code != apperrors.CodeIterationBudget || event.SessionID != result.SessionID {
		t.Fatalf("unexpected alert event: %+v", event)
	}
}

func TestChatUnknownSession(t *testing.T) {
	model := &scriptedModel{}
	h := newHarness(t, model, nil, Config{MaxIterations: 3})

	_, err := h.orch.Chat(context.Background(), ChatRequest{SessionID: "missing", Message: "hi"})
	if apperrors.CodeOf(err) != apperrors.CodeSessionNotFound {
		t.Fatalf("expected SESSION_NOT_FOUND, got %v", err)
	}
	if len(h.model.requests) != 0 {
		t.Fatalf("model must not be called for a missing session")
	}
}

func TestTurnArchived(t *testing.T) {
	model := &scriptedModel{responses: []*llm.ChatResponse{{Content: "done"}}}
	h := newHarness(t, model, nil, Config{MaxIterations: 5})

	result, err := h.orch.Chat(context.Background(), ChatRequest{
		Message:       "archive me",
		WalletAddress: "0xabc",
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	turns, err := h.turns.ListBySession(context.Background(), result.SessionID, 10)
	if err != nil {
		t.Fatalf("list turns: %v", err)
	}
	if len(turns) != 1 {
		t.Fatalf("expected one archived turn, got %d", len(turns))
	}
	turn := turns[0]
	if turn.UserMessage != "archive me" || turn.AssistantMessage != "done" ||
		turn.WalletAddress != "0xabc" || turn.Status != archive.StatusDone {
		t.Fatalf("unexpected archived turn: %+v", turn)
	}
}

// gatedModel blocks its first call until released, so a test can hold one
// turn open while issuing another.
type gatedModel struct {
	mu      sync.Mutex
	calls   int
	started chan struct{}
	release chan struct{}
}

func (m *gatedModel) Chat(context.Context, llm.ChatRequest) (*llm.ChatResponse, error) {
	m.mu.Lock()
	m.calls++
	n := m.calls
	m.mu.Unlock()
	if n == 1 {
		close(m.started)
		<-m.release
		return &llm.ChatResponse{Content: "answer A"}, nil
	}
	return &llm.ChatResponse{Content: "answer B"}, nil
}

func (m *gatedModel) Name() string { return "gated" }

func TestConcurrentTurnsOnOneSessionDoNotInterleave(t *testing.T) {
	model := &gatedModel{started: make(chan struct{}), release: make(chan struct{})}
	registry := tool.NewRegistry()
	pool := tool.NewPool(1, time.Second)
	t.Cleanup(func() { pool.Close() })
	executor := tool.NewExecutor(registry, pool, tool.ExecutorConfig{RetryAttempts: 1})
	sessions := session.NewManager(session.NewMemoryStore(time.Hour), 50)
	orch := New(sessions, model, executor, Config{MaxIterations: 3})

	sess, err := sessions.Create(context.Background(), "")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	doneA := make(chan error, 1)
	go func() {
		_, err := orch.Chat(context.Background(), ChatRequest{SessionID: sess.ID, Message: "turn A"})
		doneA <- err
	}()
	<-model.started

	doneB := make(chan error, 1)
	go func() {
		_, err := orch.Chat(context.Background(), ChatRequest{SessionID: sess.ID, Message: "turn B"})
		doneB <- err
	}()

	select {
	case <-doneB:
		t.Fatal("second turn finished while the first still owned the session")
	case <-time.After(50 * time.Millisecond):
	}

	close(model.release)
	for _, done := range []chan error{doneA, doneB} {
		if err := <-done; err != nil {
			t.Fatalf("chat: %v", err)
		}
	}

	got, err := sessions.Get(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	want := []struct {
		role    session.Role
		content string
	}{
		{session.RoleUser, "turn A"},
		{session.RoleAssistant, "answer A"},
		{session.RoleUser, "turn B"},
		{session.RoleAssistant, "answer B"},
	}
	if len(got.Messages) != len(want) {
		t.Fatalf("expected %d messages, got %+v", len(want), got.Messages)
	}
	for i, w := range want {
		if got.Messages[i].Role != w.role || got.Messages[i].Content != w.content {
			t.Fatalf("turns interleaved at message %d: %+v", i, got.Messages)
		}
	}
}

func TestKeywordCompletionStopsEarly(t *testing.T) {
	model := &scriptedModel{responses: []*llm.ChatResponse{{
		Content:   "FINAL ANSWER: nothing to do",
		ToolCalls: []llm.ToolCall{{ID: "c", Name: "get_balance"}},
	}}}
	h := newHarness(t, model, nil, Config{MaxIterations: 5})
	h.orch.done = KeywordCompletion("final answer")

	result, err := h.orch.Chat(context.Background(), ChatRequest{Message: "hi"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if result.Iterations != 1 || len(result.ToolCalls) != 0 {
		t.Fatalf("keyword predicate should end the turn before dispatch: %+v", result)
	}
}
