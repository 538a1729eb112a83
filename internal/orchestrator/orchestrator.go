// Package orchestrator runs the multi-turn conversation loop: model calls,
// tool dispatch and session persistence for one chat turn.
package orchestrator

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"

	apperrors "ChainAgent/internal/errors"
	"ChainAgent/internal/archive"
	"ChainAgent/internal/knowledge"
	"ChainAgent/internal/llm"
	"ChainAgent/internal/observability/alerting"
	"ChainAgent/internal/observability/metrics"
	"ChainAgent/internal/session"
	"ChainAgent/internal/tool"
	"ChainAgent/pkg/logger"
)

// ChatRequest is one user turn.
type ChatRequest struct {
	SessionID     string // empty starts a new session
	Message       string
	WalletAddress string // from the verified credential, if any
	Chain         string
}

// ToolCallSummary reports one tool invocation made during a turn.
type ToolCallSummary struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Result string `json:"result"`
	ok     bool
}

// Result is the completed turn.
type Result struct {
	Content    string            `json:"content"`
	SessionID  string            `json:"session_id"`
	ToolCalls  []ToolCallSummary `json:"tool_calls,omitempty"`
	Iterations int               `json:"-"`
	Exhausted  bool              `json:"-"`
}

// Config tunes the loop.
type Config struct {
	MaxIterations int
	MaxSnippets   int
}

// Orchestrator wires the model, tools and session store into one turn loop.
type Orchestrator struct {
	sessions  *session.Manager
	model     llm.Client
	executor  *tool.Executor
	knowledge knowledge.Provider  // optional
	turns     archive.Store       // optional
	alerts    alerting.Dispatcher // optional
	cfg       Config
	done      CompletionPredicate
	log       *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithKnowledge grounds the system prompt with background snippets.
func WithKnowledge(p knowledge.Provider) Option {
	return func(o *Orchestrator) { o.knowledge = p }
}

// WithArchive records completed turns.
func WithArchive(store archive.Store) Option {
	return func(o *Orchestrator) { o.turns = store }
}

// WithCompletionPredicate overrides the turn termination signal.
func WithCompletionPredicate(p CompletionPredicate) Option {
	return func(o *Orchestrator) { o.done = p }
}

// WithAlerts raises an alert event when a turn burns its whole iteration
// budget without reaching an answer.
func WithAlerts(d alerting.Dispatcher) Option {
	return func(o *Orchestrator) { o.alerts = d }
}

// New builds an orchestrator.
func New(sessions *session.Manager, model llm.Client, executor *tool.Executor, cfg Config, opts ...Option) *Orchestrator {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 10
	}
	o := &Orchestrator{
		sessions: sessions,
		model:    model,
		executor: executor,
		cfg:      cfg,
		done:     StructuralCompletion,
		log:      logger.Named("orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Chat runs one conversation turn to completion or budget exhaustion.
func (o *Orchestrator) Chat(ctx context.Context, req ChatRequest) (*Result, error) {
	if req.Message == "" {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "message is required")
	}

	sess, err := o.loadOrCreate(ctx, req)
	if err != nil {
		return nil, err
	}

	// The turn owns its session until the final assistant message is written;
	// a concurrent turn on the same session waits here instead of weaving its
	// messages into ours. Append below re-reads the history under the lock, so
	// the transcript sees everything the previous turn wrote.
	unlock := o.sessions.LockTurn(sess.ID)
	defer unlock()

	sess, err = o.sessions.Append(ctx, sess.ID, session.NewMessage(session.RoleUser, req.Message))
	if err != nil {
		return nil, err
	}

	transcript := historyToTranscript(sess.Messages)
	system := o.systemPrompt(req)
	tools := o.executor.Descriptors()
	actx := tool.AgentContext{
		SessionID:     sess.ID,
		WalletAddress: req.WalletAddress,
		Chain:         req.Chain,
	}

	result := &Result{SessionID: sess.ID}
	for iteration := 1; iteration <= o.cfg.MaxIterations; iteration++ {
		result.Iterations = iteration
		resp, err := o.model.Chat(ctx, llm.ChatRequest{
			System:   system,
			Messages: transcript,
			Tools:    tools,
		})
		if err != nil {
			return nil, err
		}

		if o.done(resp) {
			result.Content = resp.Content
			return result, o.finishTurn(ctx, req, result, archive.StatusDone)
		}

		transcript = append(transcript, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		iterationResults := o.dispatch(ctx, sess.ID, resp.ToolCalls, actx, &transcript)
		result.ToolCalls = append(result.ToolCalls, iterationResults...)

		// Steer the next model call; guidance is per-iteration and is not
		// part of the durable history.
		if anyFailed(iterationResults) {
			transcript = append(transcript, llm.Message{
				Role:    llm.RoleUser,
				Content: correctiveFollowUp(iterationResults),
			})
		} else if len(iterationResults) > 0 {
			transcript = append(transcript, llm.Message{
				Role:    llm.RoleUser,
				Content: continueFollowUp,
			})
		}
	}

	result.Exhausted = true
	result.Content = exhaustedFallback(result.ToolCalls)
	o.log.Warn("iteration budget exhausted",
		"session_id", sess.ID, "iterations", result.Iterations, "tool_calls", len(result.ToolCalls))
	if o.alerts != nil {
		budgetErr := apperrors.New(apperrors.CodeIterationBudget, "",
			apperrors.WithMetadata("iterations", strconv.Itoa(result.Iterations)))
		if event, ok := alerting.FromError("orchestrator", budgetErr); ok {
			event.SessionID = sess.ID
			if err := o.alerts.Notify(ctx, event); err != nil {
				o.log.Error("alert delivery failed", "session_id", sess.ID, "error", err)
			}
		}
	}
	return result, o.finishTurn(ctx, req, result, archive.StatusExhausted)
}

func (o *Orchestrator) loadOrCreate(ctx context.Context, req ChatRequest) (*session.Session, error) {
	if req.SessionID == "" {
		return o.sessions.Create(ctx, req.WalletAddress)
	}
	return o.sessions.Get(ctx, req.SessionID)
}

// dispatch runs the requested calls sequentially, in the order the model
// asked for them, persisting each result as it lands.
func (o *Orchestrator) dispatch(ctx context.Context, sessionID string, calls []llm.ToolCall, actx tool.AgentContext, transcript *[]llm.Message) []ToolCallSummary {
	summaries := make([]ToolCallSummary, 0, len(calls))
	persisted := make([]session.Message, 0, len(calls))
	for _, call := range calls {
		callResult := o.executor.Execute(ctx, tool.CallRequest{
			ID:        call.ID,
			Name:      call.Name,
			Arguments: call.Arguments,
		}, actx)

		metrics.ObserveToolCall(call.Name, callResult.Success)
		content := callResult.Content
		if !callResult.Success {
			content = "error: " + callResult.Error
		}
		summaries = append(summaries, ToolCallSummary{
			ID:     call.ID,
			Name:   call.Name,
			Result: content,
			ok:     callResult.Success,
		})
		*transcript = append(*transcript, llm.Message{
			Role:       llm.RoleTool,
			Content:    content,
			ToolCallID: call.ID,
		})
		msg := session.NewMessage(session.RoleTool, content)
		msg.ToolCallID = call.ID
		persisted = append(persisted, msg)
	}
	if len(persisted) > 0 {
		if _, err := o.sessions.Append(ctx, sessionID, persisted...); err != nil {
			o.log.Error("persist tool results", "session_id", sessionID, "error", err)
		}
	}
	return summaries
}

func (o *Orchestrator) finishTurn(ctx context.Context, req ChatRequest, result *Result, status string) error {
	if _, err := o.sessions.Append(ctx, result.SessionID,
		session.NewMessage(session.RoleAssistant, result.Content)); err != nil {
		return err
	}
	if o.turns == nil {
		return nil
	}
	turn := archive.NewTurn(result.SessionID)
	turn.WalletAddress = req.WalletAddress
	turn.UserMessage = req.Message
	turn.AssistantMessage = result.Content
	turn.Iterations = result.Iterations
	turn.Status = status
	if len(result.ToolCalls) > 0 {
		encoded, err := json.Marshal(result.ToolCalls)
		if err == nil {
			turn.ToolCalls = string(encoded)
		}
	}
	// Archiving is best effort; the user already has their answer.
	if err := o.turns.SaveTurn(ctx, turn); err != nil {
		o.log.Error("archive turn", "session_id", result.SessionID, "error", err)
	}
	return nil
}

func (o *Orchestrator) systemPrompt(req ChatRequest) string {
	var snippets []knowledge.Snippet
	if o.knowledge != nil {
		snippets = o.knowledge.Search(req.Message, o.cfg.MaxSnippets)
	}
	return buildSystemPrompt(snippets, req.WalletAddress, req.Chain)
}

// historyToTranscript converts the persisted history into model messages.
// Stored tool results lose their pairing with the assistant call that made
// them once the turn is over, so they replay as plain user context.
func historyToTranscript(history []session.Message) []llm.Message {
	out := make([]llm.Message, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case session.RoleAssistant:
			out = append(out, llm.Message{Role: llm.RoleAssistant, Content: m.Content})
		case session.RoleTool:
			out = append(out, llm.Message{Role: llm.RoleUser, Content: "[earlier tool result] " + m.Content})
		default:
			out = append(out, llm.Message{Role: llm.RoleUser, Content: m.Content})
		}
	}
	return out
}

func anyFailed(summaries []ToolCallSummary) bool {
	for _, s := range summaries {
		if !s.ok {
			return true
		}
	}
	return false
}
