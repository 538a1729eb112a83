package task

import (
	"context"
	"log/slog"
	"sync"
	"time"

	apperrors "ChainAgent/internal/errors"
	"ChainAgent/internal/observability/alerting"
	"ChainAgent/internal/orchestrator"
	"ChainAgent/pkg/logger"
)

// Runner executes one chat turn; satisfied by orchestrator.Orchestrator.
type Runner interface {
	Chat(ctx context.Context, req orchestrator.ChatRequest) (*orchestrator.Result, error)
}

// Service accepts deferred turns and runs them on a worker pool.
type Service struct {
	queue   Queue
	store   Store
	runner  Runner
	workers int
	alerts  alerting.Dispatcher // optional
	log     *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithAlerts raises alert events for failed deferred turns. Nobody is watching
// a deferred turn when it fails, so the failure has to announce itself.
func WithAlerts(d alerting.Dispatcher) ServiceOption {
	return func(s *Service) { s.alerts = d }
}

// NewService wires the deferred-turn service.
func NewService(queue Queue, store Store, runner Runner, workers int, opts ...ServiceOption) *Service {
	if workers <= 0 {
		workers = 2
	}
	s := &Service{
		queue:   queue,
		store:   store,
		runner:  runner,
		workers: workers,
		log:     logger.Named("task_service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit enqueues a deferred turn and records it as queued.
func (s *Service) Submit(ctx context.Context, t *Task) (*Record, error) {
	if t.Message == "" {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "message is required")
	}
	record := &Record{Task: *t, Status: StatusQueued, UpdatedAt: time.Now().Unix()}
	if err := s.store.Put(ctx, record); err != nil {
		return nil, err
	}
	if err := s.queue.Enqueue(ctx, t); err != nil {
		record.Status = StatusFailed
		record.Error = err.Error()
		record.UpdatedAt = time.Now().Unix()
		_ = s.store.Put(ctx, record)
		return nil, err
	}
	return record, nil
}

// Lookup returns the current state of a deferred turn.
func (s *Service) Lookup(ctx context.Context, id string) (*Record, error) {
	return s.store.Get(ctx, id)
}

// Start launches the worker pool. Workers stop when the context ends.
func (s *Service) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.work(ctx, i)
	}
}

// Stop cancels the workers and waits for in-flight turns to finish.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Service) work(ctx context.Context, id int) {
	defer s.wg.Done()
	log := s.log.With("worker", id)
	for {
		t, err := s.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("dequeue failed", "error", err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		s.run(ctx, log, t)
	}
}

func (s *Service) run(ctx context.Context, log *slog.Logger, t *Task) {
	record := &Record{Task: *t, Status: StatusRunning, UpdatedAt: time.Now().Unix()}
	if err := s.store.Put(ctx, record); err != nil {
		log.Error("mark task running", "task_id", t.ID, "error", err)
	}

	result, err := s.runner.Chat(ctx, orchestrator.ChatRequest{
		SessionID:     t.SessionID,
		Message:       t.Message,
		WalletAddress: t.WalletAddress,
		Chain:         t.Chain,
	})
	record.UpdatedAt = time.Now().Unix()
	if err != nil {
		record.Status = StatusFailed
		record.Error = err.Error()
		log.Warn("deferred turn failed", "task_id", t.ID, "error", err)
		if s.alerts != nil {
			if event, ok := alerting.FromError("task_service", err); ok {
				event.SessionID = t.SessionID
				if notifyErr := s.alerts.Notify(ctx, event); notifyErr != nil {
					log.Error("alert delivery failed", "task_id", t.ID, "error", notifyErr)
				}
			}
		}
	} else {
		record.Status = StatusDone
		record.Content = result.Content
		record.SessionID = result.SessionID
	}
	if err := s.store.Put(ctx, record); err != nil {
		log.Error("record task outcome", "task_id", t.ID, "error", err)
	}
}
