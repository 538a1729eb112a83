package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	apperrors "ChainAgent/internal/errors"
	"ChainAgent/internal/observability/metrics"
	"ChainAgent/pkg/logger"
)

// ExecutorConfig tunes retry and timeout behaviour per tool call.
type ExecutorConfig struct {
	RetryAttempts int           // total attempts per call, including the first
	RetryBackoff  time.Duration // linear: attempt n waits n * backoff
	CallTimeout   time.Duration // per-attempt invocation deadline
}

// Executor runs tool calls through the registry and pool. Every failure is
// returned as a CallResult with Success=false so the conversation loop can
// feed it back to the model instead of aborting the turn.
type Executor struct {
	registry *Registry
	pool     *Pool
	cfg      ExecutorConfig
	log      *slog.Logger
}

// NewExecutor wires an executor over a registry and pool.
func NewExecutor(registry *Registry, pool *Pool, cfg ExecutorConfig) *Executor {
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 1
	}
	return &Executor{
		registry: registry,
		pool:     pool,
		cfg:      cfg,
		log:      logger.Named("tool_executor"),
	}
}

// Descriptors lists the tools the executor can dispatch to.
func (e *Executor) Descriptors() []Descriptor {
	return e.registry.List()
}

// Execute runs one tool call. Unknown tools and schema violations fail
// without touching the pool.
func (e *Executor) Execute(ctx context.Context, req CallRequest, actx AgentContext) CallResult {
	descriptor, provider, err := e.registry.Resolve(req.Name)
	if err != nil {
		return e.failure(req, err)
	}
	if err := ValidateArguments(descriptor, req.Arguments); err != nil {
		return e.failure(req, err)
	}

	var lastErr error
	for attempt := 1; attempt <= e.cfg.RetryAttempts; attempt++ {
		if attempt > 1 {
			delay := time.Duration(attempt-1) * e.cfg.RetryBackoff
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return e.failure(req, apperrors.Wrap(apperrors.CodeTimeout, ctx.Err(), "tool call cancelled"))
			}
			e.log.Info("retrying tool call",
				"tool", req.Name, "attempt", attempt, "session_id", actx.SessionID)
		}

		value, err := e.invokeOnce(ctx, provider, req, actx)
		if err == nil {
			return e.success(req, value)
		}
		if apperrors.CodeOf(err) == apperrors.CodePoolExhausted {
			metrics.ObservePoolExhausted(provider.Key())
		}
		lastErr = err
		if !apperrors.Retryable(err) {
			break
		}
	}
	return e.failure(req, lastErr)
}

func (e *Executor) invokeOnce(ctx context.Context, provider Provider, req CallRequest, actx AgentContext) (any, error) {
	lease, err := e.pool.Acquire(ctx, provider)
	if err != nil {
		return nil, err
	}

	callCtx := ctx
	cancel := context.CancelFunc(func() {})
	if e.cfg.CallTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, e.cfg.CallTimeout)
	}
	defer cancel()

	value, err := lease.Transport().Invoke(callCtx, req, actx)
	if err != nil {
		// A failed call may have poisoned the connection; let the pool
		// replace it.
		lease.Release(false)
		if callCtx.Err() != nil && ctx.Err() == nil {
			return nil, apperrors.Wrap(apperrors.CodeTimeout, err, "tool call deadline exceeded",
				apperrors.WithMetadata("tool", req.Name))
		}
		return nil, err
	}
	lease.Release(true)
	return value, nil
}

func (e *Executor) success(req CallRequest, value any) CallResult {
	content, err := encodeResult(value)
	if err != nil {
		return e.failure(req, apperrors.Wrap(apperrors.CodeToolExecution, err, "encode tool result"))
	}
	return CallResult{ID: req.ID, Name: req.Name, Success: true, Content: content}
}

func (e *Executor) failure(req CallRequest, err error) CallResult {
	message := "tool execution failed"
	if err != nil {
		message = err.Error()
	}
	e.log.Warn("tool call failed", "tool", req.Name, "error", message)
	return CallResult{ID: req.ID, Name: req.Name, Success: false, Error: message}
}

func encodeResult(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("marshal tool result: %w", err)
		}
		return string(data), nil
	}
}
