package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Config captures everything the daemon needs at startup.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Session   SessionConfig   `json:"session"`
	Auth      AuthConfig      `json:"auth"`
	LLM       LLMConfig       `json:"llm"`
	Agent     AgentConfig     `json:"agent"`
	Pool      PoolConfig      `json:"pool"`
	Web3      Web3Config      `json:"web3"`
	Archive   ArchiveConfig   `json:"archive"`
	TaskQueue TaskQueueConfig `json:"task_queue"`
	Knowledge KnowledgeConfig `json:"knowledge"`
	Logging   LoggingConfig   `json:"logging"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Address string `json:"address"`
}

// SessionConfig selects and tunes the session store.
type SessionConfig struct {
	Driver      string      `json:"driver"` // memory | redis
	TTLSeconds  int         `json:"ttl_seconds"`
	MaxMessages int         `json:"max_messages"`
	Redis       RedisConfig `json:"redis"`
}

// RedisConfig is shared by every Redis-backed component.
type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// AuthConfig tunes the wallet authentication service.
type AuthConfig struct {
	JWTSecret       string      `json:"jwt_secret"`
	NonceTTLSeconds int         `json:"nonce_ttl_seconds"`
	TokenTTLSeconds int         `json:"token_ttl_seconds"`
	NonceDriver     string      `json:"nonce_driver"` // memory | redis
	Redis           RedisConfig `json:"redis"`
}

// LLMConfig selects the model provider.
type LLMConfig struct {
	Provider       string `json:"provider"` // openai | deepseek | qwen | claude
	APIKey         string `json:"api_key"`
	BaseURL        string `json:"base_url"`
	Model          string `json:"model"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// AgentConfig tunes the conversation loop.
type AgentConfig struct {
	MaxIterations      int `json:"max_iterations"`
	ToolRetryAttempts  int `json:"tool_retry_attempts"`
	ToolTimeoutSeconds int `json:"tool_timeout_seconds"`
	RetryBackoffMillis int `json:"retry_backoff_millis"`
}

// PoolConfig tunes the tool connection pool.
type PoolConfig struct {
	MaxPerProvider        int `json:"max_per_provider"`
	AcquireTimeoutSeconds int `json:"acquire_timeout_seconds"`
}

// Web3Config points at the chain definition file.
type Web3Config struct {
	ChainsFile   string `json:"chains_file"`
	DefaultChain string `json:"default_chain"`
}

// ArchiveConfig selects the completed-turn archive backend.
type ArchiveConfig struct {
	Driver string `json:"driver"` // memory | mysql
	DSN    string `json:"dsn"`
}

// TaskQueueConfig selects the deferred-turn queue backend.
type TaskQueueConfig struct {
	Driver   string         `json:"driver"` // memory | redis | rabbitmq
	Workers  int            `json:"workers"`
	Redis    RedisConfig    `json:"redis"`
	RedisKey string         `json:"redis_key"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// RabbitMQConfig holds broker connection parameters.
type RabbitMQConfig struct {
	URL      string `json:"url"`
	Queue    string `json:"queue"`
	Prefetch int    `json:"prefetch"`
	Durable  bool   `json:"durable"`
}

// KnowledgeConfig points at the static knowledge file.
type KnowledgeConfig struct {
	Path       string `json:"path"`
	MaxResults int    `json:"max_results"`
}

// LoggingConfig mirrors pkg/logger.Config.
type LoggingConfig struct {
	Level       string   `json:"level"`
	Format      string   `json:"format"`
	OutputPaths []string `json:"output_paths"`
	AuditPath   string   `json:"audit_path"`
}

// Load parses the JSON configuration file, applies defaults and environment
// overrides. Secrets are expected from the environment in production.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults(filepath.Dir(path))
	cfg.applyEnv()
	return &cfg, nil
}

func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Session.Driver == "" {
		c.Session.Driver = "memory"
	}
	if c.Session.TTLSeconds <= 0 {
		c.Session.TTLSeconds = 86400
	}
	if c.Session.MaxMessages <= 0 {
		c.Session.MaxMessages = 50
	}
	if c.Auth.NonceTTLSeconds <= 0 {
		c.Auth.NonceTTLSeconds = 300
	}
	if c.Auth.TokenTTLSeconds <= 0 {
		c.Auth.TokenTTLSeconds = 86400
	}
	if c.Auth.NonceDriver == "" {
		c.Auth.NonceDriver = "memory"
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = 60
	}
	if c.Agent.MaxIterations <= 0 {
		c.Agent.MaxIterations = 10
	}
	if c.Agent.ToolRetryAttempts <= 0 {
		c.Agent.ToolRetryAttempts = 3
	}
	if c.Agent.ToolTimeoutSeconds <= 0 {
		c.Agent.ToolTimeoutSeconds = 30
	}
	if c.Agent.RetryBackoffMillis <= 0 {
		c.Agent.RetryBackoffMillis = 200
	}
	if c.Pool.MaxPerProvider <= 0 {
		c.Pool.MaxPerProvider = 4
	}
	if c.Pool.AcquireTimeoutSeconds <= 0 {
		c.Pool.AcquireTimeoutSeconds = 5
	}
	if c.Web3.ChainsFile == "" {
		c.Web3.ChainsFile = filepath.Join(baseDir, "chains.yaml")
	} else if !filepath.IsAbs(c.Web3.ChainsFile) {
		c.Web3.ChainsFile = filepath.Join(baseDir, c.Web3.ChainsFile)
	}
	if c.Web3.DefaultChain == "" {
		c.Web3.DefaultChain = "ethereum"
	}
	if c.Archive.Driver == "" {
		c.Archive.Driver = "memory"
	}
	if c.TaskQueue.Driver == "" {
		c.TaskQueue.Driver = "memory"
	}
	if c.TaskQueue.Workers <= 0 {
		c.TaskQueue.Workers = 2
	}
	if c.Knowledge.Path != "" && !filepath.IsAbs(c.Knowledge.Path) {
		c.Knowledge.Path = filepath.Join(baseDir, c.Knowledge.Path)
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// applyEnv pulls secrets and connection strings from the environment so they
// never have to live in the config file.
func (c *Config) applyEnv() {
	if v := os.Getenv("CHAINAGENT_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("CHAINAGENT_LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("CHAINAGENT_ARCHIVE_DSN"); v != "" {
		c.Archive.DSN = v
	}
	if v := os.Getenv("CHAINAGENT_REDIS_ADDR"); v != "" {
		c.Session.Redis.Address = v
		c.Auth.Redis.Address = v
		c.TaskQueue.Redis.Address = v
	}
	if v := os.Getenv("CHAINAGENT_RABBITMQ_URL"); v != "" {
		c.TaskQueue.RabbitMQ.URL = v
	}
}

// Validate reports configuration combinations that cannot work.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret (or CHAINAGENT_JWT_SECRET) must be set")
	}
	if c.Session.Driver == "redis" && c.Session.Redis.Address == "" {
		return errors.New("session.redis.address must be set for the redis driver")
	}
	if c.Auth.NonceDriver == "redis" && c.Auth.Redis.Address == "" {
		return errors.New("auth.redis.address must be set for the redis nonce driver")
	}
	if c.Archive.Driver == "mysql" && c.Archive.DSN == "" {
		return errors.New("archive.dsn must be set for the mysql driver")
	}
	if c.TaskQueue.Driver == "rabbitmq" && c.TaskQueue.RabbitMQ.URL == "" {
		return errors.New("task_queue.rabbitmq.url must be set for the rabbitmq driver")
	}
	return nil
}
