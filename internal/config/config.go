// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	APIKey         string        `yaml:"api_key"` // bearer token for operator routes; empty disables the check
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	Driver     string `yaml:"driver"` // postgres|sqlite
	URL        string `yaml:"url"`
	SQLitePath string `yaml:"sqlite_path"`
	MaxConns   int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type ProviderConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	FaceSwapModel  string        `yaml:"face_swap_model"`
	GenerateModel  string        `yaml:"generate_model"`
	WebhookBaseURL string        `yaml:"webhook_base_url"`
	WebhookSecret  string        `yaml:"webhook_secret"`
	WebhookTTL     time.Duration `yaml:"webhook_ttl"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"max_retries"`
}

type VeoConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

type StorageConfig struct {
	Bucket          string        `yaml:"bucket"`
	PublicBaseURL   string        `yaml:"public_base_url"`
	CredentialsFile string        `yaml:"credentials_file"`
	SignedURLTTL    time.Duration `yaml:"signed_url_ttl"`
}

type DistributionConfig struct {
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

type CaptionConfig struct {
	OpenAIKey       string `yaml:"openai_key"`
	BaseURL         string `yaml:"base_url"`
	Model           string `yaml:"model"`
	MaxPromptTokens int    `yaml:"max_prompt_tokens"`
}

type TelegramConfig struct {
	Token        string  `yaml:"token"`
	AdminChatIDs []int64 `yaml:"admin_chat_ids"`
}

type RecoveryConfig struct {
	Interval    time.Duration `yaml:"interval"`
	StuckAfter  time.Duration `yaml:"stuck_after"`
	MinInterval time.Duration `yaml:"min_interval"`
	MaxAttempts int           `yaml:"max_attempts"`
	BatchSize   int           `yaml:"batch_size"`
}

type PublishConfig struct {
	LockBackend    string        `yaml:"lock_backend"` // store|redis
	LockTTL        time.Duration `yaml:"lock_ttl"`
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
	Concurrency    int           `yaml:"concurrency"`
}

type WorkerConfig struct {
	Concurrency  int           `yaml:"concurrency"`
	QueueSize    int           `yaml:"queue_size"`
	RequeueAfter time.Duration `yaml:"requeue_after"`
}

type MediaConfig struct {
	FFmpegPath string `yaml:"ffmpeg_path"`
	WorkDir    string `yaml:"work_dir"`
}

type BatchConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type Config struct {
	HTTP         HTTPConfig         `yaml:"http"`
	Log          LogConfig          `yaml:"log"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Provider     ProviderConfig     `yaml:"provider"`
	Veo          VeoConfig          `yaml:"veo"`
	Storage      StorageConfig      `yaml:"storage"`
	Distribution DistributionConfig `yaml:"distribution"`
	Caption      CaptionConfig      `yaml:"caption"`
	Telegram     TelegramConfig     `yaml:"telegram"`
	Recovery     RecoveryConfig     `yaml:"recovery"`
	Publish      PublishConfig      `yaml:"publish"`
	Worker       WorkerConfig       `yaml:"worker"`
	Media        MediaConfig        `yaml:"media"`
	Batch        BatchConfig        `yaml:"batch"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return cfg, nil
}

// Parse decodes YAML, applies defaults and validates.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	cfg.HTTP.RequestTimeout = orDuration(cfg.HTTP.RequestTimeout, 30*time.Second)
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/mediaflow.db"
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	cfg.Provider.Timeout = orDuration(cfg.Provider.Timeout, 30*time.Second)
	cfg.Provider.WebhookTTL = orDuration(cfg.Provider.WebhookTTL, 48*time.Hour)
	if cfg.Provider.MaxRetries <= 0 {
		cfg.Provider.MaxRetries = 3
	}
	if cfg.Veo.Model == "" {
		cfg.Veo.Model = "veo-2.0-generate-001"
	}
	cfg.Storage.SignedURLTTL = orDuration(cfg.Storage.SignedURLTTL, time.Hour)
	cfg.Distribution.Timeout = orDuration(cfg.Distribution.Timeout, 60*time.Second)
	if cfg.Distribution.MaxRetries <= 0 {
		cfg.Distribution.MaxRetries = 3
	}
	if cfg.Caption.Model == "" {
		cfg.Caption.Model = "gpt-4o-mini"
	}
	if cfg.Caption.MaxPromptTokens <= 0 {
		cfg.Caption.MaxPromptTokens = 512
	}

	cfg.Recovery.Interval = orDuration(cfg.Recovery.Interval, 5*time.Minute)
	cfg.Recovery.StuckAfter = orDuration(cfg.Recovery.StuckAfter, 10*time.Minute)
	cfg.Recovery.MinInterval = orDuration(cfg.Recovery.MinInterval, time.Minute)
	if cfg.Recovery.MaxAttempts <= 0 {
		cfg.Recovery.MaxAttempts = 12
	}
	if cfg.Recovery.BatchSize <= 0 {
		cfg.Recovery.BatchSize = 200
	}

	if cfg.Publish.LockBackend == "" {
		cfg.Publish.LockBackend = "store"
	}
	cfg.Publish.LockTTL = orDuration(cfg.Publish.LockTTL, 5*time.Minute)
	cfg.Publish.IdempotencyTTL = orDuration(cfg.Publish.IdempotencyTTL, 24*time.Hour)
	if cfg.Publish.Concurrency <= 0 {
		cfg.Publish.Concurrency = 4
	}

	if cfg.Worker.Concurrency <= 0 {
		cfg.Worker.Concurrency = 8
	}
	if cfg.Worker.QueueSize <= 0 {
		cfg.Worker.QueueSize = cfg.Worker.Concurrency * 16
	}
	cfg.Worker.RequeueAfter = orDuration(cfg.Worker.RequeueAfter, 2*time.Minute)

	if cfg.Media.FFmpegPath == "" {
		cfg.Media.FFmpegPath = "ffmpeg"
	}
	if cfg.Media.WorkDir == "" {
		cfg.Media.WorkDir = os.TempDir()
	}
	cfg.Batch.CacheTTL = orDuration(cfg.Batch.CacheTTL, 30*time.Second)
}

// Minimal validation
func (cfg *Config) validate() error {
	switch cfg.Database.Driver {
	case "postgres":
		if cfg.Database.URL == "" {
			return errors.New("database.url is required for the postgres driver")
		}
	case "sqlite":
	default:
		return fmt.Errorf("database.driver %q is not supported", cfg.Database.Driver)
	}
	switch cfg.Publish.LockBackend {
	case "store":
	case "redis":
		if cfg.Redis.URL == "" {
			return errors.New("redis.url is required when publish.lock_backend is redis")
		}
	default:
		return fmt.Errorf("publish.lock_backend %q is not supported", cfg.Publish.LockBackend)
	}
	if cfg.Provider.BaseURL == "" {
		return errors.New("provider.base_url is required")
	}
	if cfg.Provider.WebhookBaseURL == "" {
		return errors.New("provider.webhook_base_url is required")
	}
	if cfg.Provider.WebhookSecret == "" {
		return errors.New("provider.webhook_secret is required")
	}
	if cfg.Storage.Bucket == "" {
		return errors.New("storage.bucket is required")
	}
	return nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}

func orDuration(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
