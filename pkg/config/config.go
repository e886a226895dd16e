package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when neither -config nor FINPULSE_CONFIG is set.
const DefaultPath = "config.yaml"

// PathEnv names the environment variable holding the config path.
const PathEnv = "FINPULSE_CONFIG"

type Config struct {
	Environment   string              `yaml:"environment" default:"development"`
	Log           LogConfig           `yaml:"log"`
	Server        ServerConfig        `yaml:"server"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Sources       []SourceConfig      `yaml:"sources" validate:"dive"`
	Collector     CollectorConfig     `yaml:"collector"`
	LLM           LLMConfig           `yaml:"llm"`
	Rules         []Rule              `yaml:"rules" validate:"dive"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Dedup         DedupConfig         `yaml:"dedup"`
	Redis         RedisConfig         `yaml:"redis"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	ClickHouse    ClickHouseConfig    `yaml:"clickhouse"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"json" validate:"oneof=json console"`
	Output string `yaml:"output" default:"stderr"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port" default:"8080" validate:"gte=0,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	Disabled        bool          `yaml:"disabled"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path" default:"/metrics" validate:"startswith=/"`
}

// SourceConfig describes one adapter. Which fields matter depends on Type.
type SourceConfig struct {
	ID          string        `yaml:"id" validate:"required"`
	Type        string        `yaml:"type" validate:"required,oneof=binance stock rss policy stream kafka"`
	Market      string        `yaml:"market" validate:"omitempty,oneof=stocks crypto news"`
	Symbols     []string      `yaml:"symbols"`
	URL         string        `yaml:"url" validate:"omitempty,url"`
	BaseURL     string        `yaml:"base_url" validate:"omitempty,url"`
	Category    string        `yaml:"category" default:"general"`
	Selectors   []string      `yaml:"selectors"`
	Topic       string        `yaml:"topic"`
	Timeout     time.Duration `yaml:"timeout" default:"10s" validate:"gt=0"`
	MinInterval time.Duration `yaml:"min_interval" validate:"gte=0"`
	MaxItems    int           `yaml:"max_items" default:"20" validate:"gt=0"`
	MaxAge      time.Duration `yaml:"max_age" default:"24h"`
	Disabled    bool          `yaml:"disabled"`
}

// MarketGroup returns the group used by `analyze -market`.
func (s SourceConfig) MarketGroup() string {
	if s.Market != "" {
		return s.Market
	}
	switch s.Type {
	case "stock":
		return "stocks"
	case "binance", "stream", "kafka":
		return "crypto"
	default:
		return "news"
	}
}

type CollectorConfig struct {
	// Workers bounds concurrent fetches; 0 means one per source.
	Workers int `yaml:"workers" validate:"gte=0"`
}

type LLMConfig struct {
	Provider       string        `yaml:"provider" default:"deepseek" validate:"oneof=deepseek openai compatible anthropic"`
	Model          string        `yaml:"model"`
	APIKey         string        `yaml:"api_key"`
	BaseURL        string        `yaml:"base_url" validate:"omitempty,url"`
	Temperature    float64       `yaml:"temperature" default:"0.3" validate:"gte=0,lte=2"`
	MaxTokens      int           `yaml:"max_tokens" default:"2000" validate:"gt=0"`
	Timeout        time.Duration `yaml:"timeout" default:"60s" validate:"gt=0"`
	MaxAttempts    int           `yaml:"max_attempts" default:"3" validate:"gte=1,lte=10"`
	HistoryWindow  int           `yaml:"history_window" default:"3" validate:"gte=0,lte=50"`
	MaxPromptChars int           `yaml:"max_prompt_chars" default:"12000" validate:"gte=1000"`
	Keywords       []string      `yaml:"keywords"`
	Disabled       bool          `yaml:"disabled"`
}

// ModelOrDefault returns the configured model or the provider's default.
func (l LLMConfig) ModelOrDefault() string {
	if l.Model != "" {
		return l.Model
	}
	switch l.Provider {
	case "openai":
		return "gpt-4o"
	case "anthropic":
		return "claude-sonnet-4-5"
	default:
		return "deepseek-chat"
	}
}

// BaseURLOrDefault returns the configured base URL or the provider's default.
func (l LLMConfig) BaseURLOrDefault() string {
	if l.BaseURL != "" {
		return l.BaseURL
	}
	switch l.Provider {
	case "deepseek":
		return "https://api.deepseek.com"
	case "openai":
		return "https://api.openai.com/v1"
	}
	return ""
}

// Rule is the raw form of an alert rule; compiled by the rule engine.
type Rule struct {
	ID        string        `yaml:"id" validate:"required"`
	Field     string        `yaml:"field" validate:"required"`
	Op        string        `yaml:"op" validate:"required"`
	Threshold float64       `yaml:"threshold"`
	Cooldown  time.Duration `yaml:"cooldown" default:"1h" validate:"gt=0"`
	Severity  string        `yaml:"severity" default:"warning" validate:"oneof=info warning critical"`
	Symbols   []string      `yaml:"symbols"`
	Message   string        `yaml:"message"`
}

type SchedulerConfig struct {
	PollInterval time.Duration   `yaml:"poll_interval" default:"5s" validate:"gt=0"`
	Triggers     []TriggerConfig `yaml:"triggers" validate:"dive"`
}

// TriggerConfig sets exactly one of Every or Cron.
type TriggerConfig struct {
	Name       string        `yaml:"name" validate:"required"`
	Every      time.Duration `yaml:"every" validate:"gte=0"`
	Cron       string        `yaml:"cron"`
	Timezone   string        `yaml:"timezone"`
	RunOnStart bool          `yaml:"run_on_start"`
	Digest     bool          `yaml:"digest"`
}

type NotificationsConfig struct {
	Timeout    time.Duration    `yaml:"timeout" default:"10s" validate:"gt=0"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	WeChat     WeChatConfig     `yaml:"wechat"`
	Webhooks   []WebhookConfig  `yaml:"webhooks" validate:"dive"`
	Kafka      KafkaChannel     `yaml:"kafka"`
	RedisQueue RedisQueueConfig `yaml:"redis_queue"`
}

type TelegramConfig struct {
	Enabled     bool   `yaml:"enabled"`
	BotToken    string `yaml:"bot_token" validate:"required_if=Enabled true"`
	ChatID      string `yaml:"chat_id" validate:"required_if=Enabled true"`
	APIEndpoint string `yaml:"api_endpoint"`
}

type WeChatConfig struct {
	Enabled bool   `yaml:"enabled"`
	Webhook string `yaml:"webhook" validate:"required_if=Enabled true"`
}

type WebhookConfig struct {
	Name string `yaml:"name" validate:"required"`
	URL  string `yaml:"url" validate:"required,url"`
}

type KafkaChannel struct {
	Enabled bool   `yaml:"enabled"`
	Topic   string `yaml:"topic" default:"finpulse.alerts"`
}

type RedisQueueConfig struct {
	Enabled bool   `yaml:"enabled"`
	Queue   string `yaml:"queue" default:"finpulse:alerts"`
}

type DedupConfig struct {
	Backend    string        `yaml:"backend" default:"memory" validate:"oneof=memory redis sqlite"`
	Path       string        `yaml:"path" default:"finpulse.db"`
	Prefix     string        `yaml:"prefix" default:"finpulse:dedup"`
	MaxEntries int           `yaml:"max_entries" default:"10000" validate:"gt=0"`
	Grace      time.Duration `yaml:"grace" default:"1m"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" default:"localhost:6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers      []string `yaml:"brokers"`
	RequiredAcks int      `yaml:"required_acks" default:"1"`
	Compression  string   `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
	Producer     struct {
		MaxAttempts  int           `yaml:"max_attempts" default:"3"`
		Linger       time.Duration `yaml:"linger" default:"10ms"`
		BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		Async        bool          `yaml:"async"`
	} `yaml:"producer"`
	Consumer struct {
		GroupID  string `yaml:"group_id" default:"finpulse"`
		MinBytes int    `yaml:"min_bytes" default:"1"`
		MaxBytes int    `yaml:"max_bytes" default:"10485760"`
	} `yaml:"consumer"`
}

type ClickHouseConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Host             string        `yaml:"host" default:"localhost"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"finpulse"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
}

// ResolvePath picks the config path: flag, then FINPULSE_CONFIG, then config.yaml.
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := os.Getenv(PathEnv); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads a YAML configuration file, expands ${VAR} references,
// applies defaults and validates the structure.
func Load(path string) (*Config, error) {
	b, err := readWithDotEnv(path)
	if err != nil {
		return nil, err
	}
	return parse(b, os.Getenv, false)
}

// LoadWithEnv is Load plus the credential overrides of ApplyEnv, applied
// before validation so secrets may live only in the environment.
func LoadWithEnv(path string) (*Config, error) {
	b, err := readWithDotEnv(path)
	if err != nil {
		return nil, err
	}
	return parse(b, os.Getenv, true)
}

// Parse decodes raw YAML against the process environment.
func Parse(b []byte) (*Config, error) {
	return parse(b, os.Getenv, false)
}

func readWithDotEnv(path string) ([]byte, error) {
	loadDotEnv(filepath.Join(filepath.Dir(path), ".env"), ".env")
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return b, nil
}

func parse(b []byte, getenv func(string) string, overlay bool) (*Config, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(b, &root); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	expandNode(&root, getenv)

	var c Config
	if len(root.Content) > 0 {
		if err := root.Decode(&c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := c.applyDefaults(); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if overlay {
		c.ApplyEnv(getenv)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// ApplyEnv overlays the well-known credential variables.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("DEEPSEEK_API_KEY"); v != "" && c.LLM.Provider == "deepseek" {
		c.LLM.APIKey = v
	}
	if v := getenv("OPENAI_API_KEY"); v != "" && (c.LLM.Provider == "openai" || c.LLM.Provider == "compatible") && c.LLM.APIKey == "" {
		c.LLM.APIKey = v
	}
	if v := getenv("ANTHROPIC_API_KEY"); v != "" && c.LLM.Provider == "anthropic" {
		c.LLM.APIKey = v
	}
	if v := getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Notifications.Telegram.ChatID = v
	}
	if v := getenv("WECHAT_WEBHOOK"); v != "" {
		c.Notifications.WeChat.Webhook = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
}

// EnabledSources returns the sources not marked disabled, in config order.
func (c *Config) EnabledSources() []SourceConfig {
	out := make([]SourceConfig, 0, len(c.Sources))
	for _, s := range c.Sources {
		if !s.Disabled {
			out = append(out, s)
		}
	}
	return out
}

func (c *Config) applyDefaults() error {
	if err := defaults.Set(c); err != nil {
		return err
	}
	for i := range c.Sources {
		if err := defaults.Set(&c.Sources[i]); err != nil {
			return fmt.Errorf("sources[%d]: %w", i, err)
		}
	}
	for i := range c.Rules {
		if err := defaults.Set(&c.Rules[i]); err != nil {
			return fmt.Errorf("rules[%d]: %w", i, err)
		}
	}
	return nil
}

// IsNotExist reports whether err came from a missing config file.
func IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
