package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"ChainAgent/internal/api"
	"ChainAgent/internal/archive"
	"ChainAgent/internal/config"
	"ChainAgent/internal/knowledge"
	"ChainAgent/internal/llm"
	_ "ChainAgent/internal/llm/anthropic"
	_ "ChainAgent/internal/llm/openai"
	"ChainAgent/internal/observability/alerting"
	"ChainAgent/internal/orchestrator"
	"ChainAgent/internal/session"
	"ChainAgent/internal/task"
	"ChainAgent/internal/tool"
	"ChainAgent/internal/tool/chaintools"
	"ChainAgent/internal/walletauth"
	"ChainAgent/internal/web3"
	"ChainAgent/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("chainagentd failed: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := flag.String("config", filepath.Join("configs", "chainagent.json"), "path to the configuration file")
	flag.Parse()

	// A missing .env is not an error; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled: cfg.Logging.AuditPath != "",
			Path:    cfg.Logging.AuditPath,
		},
	}); err != nil {
		return err
	}
	defer func() {
		if err := logger.Sync(); err != nil {
			log.Printf("flush logs: %v", err)
		}
	}()

	sessionStore, err := createSessionStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer sessionStore.Close()
	sessions := session.NewManager(sessionStore, cfg.Session.MaxMessages)

	nonceStore, err := createNonceStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer nonceStore.Close()

	auth, err := walletauth.NewService(nonceStore, walletauth.Config{
		JWTSecret: cfg.Auth.JWTSecret,
		NonceTTL:  time.Duration(cfg.Auth.NonceTTLSeconds) * time.Second,
		TokenTTL:  time.Duration(cfg.Auth.TokenTTLSeconds) * time.Second,
	})
	if err != nil {
		return err
	}

	chains, err := web3.LoadChains(cfg.Web3.ChainsFile)
	if err != nil {
		return err
	}

	registry := tool.NewRegistry()
	if err := registry.Register(chaintools.NewProvider(chains, cfg.Web3.DefaultChain)); err != nil {
		return err
	}
	pool := tool.NewPool(cfg.Pool.MaxPerProvider, time.Duration(cfg.Pool.AcquireTimeoutSeconds)*time.Second)
	defer pool.Close()
	executor := tool.NewExecutor(registry, pool, tool.ExecutorConfig{
		RetryAttempts: cfg.Agent.ToolRetryAttempts,
		RetryBackoff:  time.Duration(cfg.Agent.RetryBackoffMillis) * time.Millisecond,
		CallTimeout:   time.Duration(cfg.Agent.ToolTimeoutSeconds) * time.Second,
	})

	model, err := llm.New(llm.Options{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
		Model:    cfg.LLM.Model,
		Timeout:  time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return err
	}

	turnStore, err := createArchiveStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer turnStore.Close()

	alerts := createAlerts()

	orchestratorOpts := []orchestrator.Option{
		orchestrator.WithArchive(turnStore),
		orchestrator.WithAlerts(alerts),
	}
	if cfg.Knowledge.Path != "" {
		static, err := knowledge.LoadStatic(cfg.Knowledge.Path)
		if err != nil {
			return err
		}
		orchestratorOpts = append(orchestratorOpts, orchestrator.WithKnowledge(static))
	}
	agent := orchestrator.New(sessions, model, executor, orchestrator.Config{
		MaxIterations: cfg.Agent.MaxIterations,
		MaxSnippets:   cfg.Knowledge.MaxResults,
	}, orchestratorOpts...)

	taskQueue, err := createTaskQueue(ctx, cfg)
	if err != nil {
		return err
	}
	defer taskQueue.Close()

	tasks := task.NewService(taskQueue, task.NewMemoryStore(), agent, cfg.TaskQueue.Workers,
		task.WithAlerts(alerts))
	tasks.Start(ctx)
	defer tasks.Stop()

	server := api.NewServer(api.Config{Address: cfg.Server.Address}, sessions, agent, auth,
		api.WithTasks(tasks), api.WithHistory(turnStore))

	logger.L().Info("chainagentd starting",
		"address", cfg.Server.Address,
		"llm_provider", cfg.LLM.Provider,
		"default_chain", cfg.Web3.DefaultChain)

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func createSessionStore(ctx context.Context, cfg *config.Config) (session.Store, error) {
	ttl := time.Duration(cfg.Session.TTLSeconds) * time.Second
	switch cfg.Session.Driver {
	case "", "memory":
		return session.NewMemoryStore(ttl), nil
	case "redis":
		return session.NewRedisStore(ctx,
			cfg.Session.Redis.Address, cfg.Session.Redis.Password, cfg.Session.Redis.DB, ttl)
	default:
		return nil, fmt.Errorf("unknown session driver: %s", cfg.Session.Driver)
	}
}

func createNonceStore(ctx context.Context, cfg *config.Config) (walletauth.NonceStore, error) {
	switch cfg.Auth.NonceDriver {
	case "", "memory":
		return walletauth.NewMemoryNonceStore(), nil
	case "redis":
		return walletauth.NewRedisNonceStore(ctx,
			cfg.Auth.Redis.Address, cfg.Auth.Redis.Password, cfg.Auth.Redis.DB)
	default:
		return nil, fmt.Errorf("unknown nonce driver: %s", cfg.Auth.NonceDriver)
	}
}

func createArchiveStore(ctx context.Context, cfg *config.Config) (archive.Store, error) {
	switch cfg.Archive.Driver {
	case "", "memory":
		return archive.NewMemoryStore(), nil
	case "mysql":
		return archive.NewMySQLStore(ctx, cfg.Archive.DSN)
	default:
		return nil, fmt.Errorf("unknown archive driver: %s", cfg.Archive.Driver)
	}
}

func createTaskQueue(ctx context.Context, cfg *config.Config) (task.Queue, error) {
	switch cfg.TaskQueue.Driver {
	case "", "memory":
		return task.NewMemoryQueue(1024), nil
	case "redis":
		return task.NewRedisQueue(ctx,
			cfg.TaskQueue.Redis.Address, cfg.TaskQueue.Redis.Password, cfg.TaskQueue.Redis.DB,
			cfg.TaskQueue.RedisKey)
	case "rabbitmq":
		return task.NewRabbitQueue(task.RabbitConfig{
			URL:      cfg.TaskQueue.RabbitMQ.URL,
			Queue:    cfg.TaskQueue.RabbitMQ.Queue,
			Prefetch: cfg.TaskQueue.RabbitMQ.Prefetch,
			Durable:  cfg.TaskQueue.RabbitMQ.Durable,
		})
	default:
		return nil, fmt.Errorf("unknown task queue driver: %s", cfg.TaskQueue.Driver)
	}
}

func createAlerts() alerting.Dispatcher {
	notifiers := []alerting.Notifier{alerting.LogNotifier{}}
	if url := os.Getenv("CHAINAGENT_ALERT_WEBHOOK"); url != "" {
		notifiers = append(notifiers, &alerting.WebhookNotifier{URL: url})
	}
	return alerting.NewFanout(notifiers...)
}
