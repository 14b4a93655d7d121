package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"

	"github.com/GriffinCanCode/apmcore/internal/tracecontext"
)

// EnvPrefix prefixes every environment variable, e.g. APM_TRACER_TRANSACTION_SAMPLE_RATE
const EnvPrefix = "APM"

var (
	// ErrUnsupportedFormat is returned for config files that are neither YAML nor TOML
	ErrUnsupportedFormat = errors.New("unsupported config file format")
	// ErrUnknownReporter is returned by Validate for an unknown reporter kind
	ErrUnknownReporter = errors.New("unknown reporter kind")
)

// Reporter kinds
const (
	ReporterHTTP = "http"
	ReporterOTLP = "otlp"
	ReporterLog  = "log"
	ReporterNone = "none"
)

// Config holds all application configuration.
type Config struct {
	Service   ServiceConfig   `yaml:"service" toml:"service" envconfig:"SERVICE"`
	Tracer    TracerConfig    `yaml:"tracer" toml:"tracer" envconfig:"TRACER"`
	Reporter  ReporterConfig  `yaml:"reporter" toml:"reporter" envconfig:"REPORTER"`
	Logging   LogConfig       `yaml:"logging" toml:"logging" envconfig:"LOG"`
	Server    ServerConfig    `yaml:"server" toml:"server" envconfig:"SERVER"`
	RateLimit RateLimitConfig `yaml:"rate_limit" toml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// ServiceConfig identifies the instrumented service.
type ServiceConfig struct {
	Name        string `yaml:"name" toml:"name" envconfig:"NAME"`
	Version     string `yaml:"version" toml:"version" envconfig:"VERSION"`
	Environment string `yaml:"environment" toml:"environment" envconfig:"ENVIRONMENT"`
}

// TracerConfig holds the settings consumed by the tracer core.
type TracerConfig struct {
	TransactionSampleRate      float64  `yaml:"transaction_sample_rate" toml:"transaction_sample_rate" envconfig:"TRANSACTION_SAMPLE_RATE"`
	TransactionMaxSpans        int      `yaml:"transaction_max_spans" toml:"transaction_max_spans" envconfig:"TRANSACTION_MAX_SPANS"`
	ExitSpanMinDuration        Duration `yaml:"exit_span_min_duration" toml:"exit_span_min_duration" envconfig:"EXIT_SPAN_MIN_DURATION"`
	SpanCompressionEnabled     bool     `yaml:"span_compression_enabled" toml:"span_compression_enabled" envconfig:"SPAN_COMPRESSION_ENABLED"`
	ExactMatchMaxDuration      Duration `yaml:"span_compression_exact_match_max_duration" toml:"span_compression_exact_match_max_duration" envconfig:"SPAN_COMPRESSION_EXACT_MATCH_MAX_DURATION"`
	SameKindMaxDuration        Duration `yaml:"span_compression_same_kind_max_duration" toml:"span_compression_same_kind_max_duration" envconfig:"SPAN_COMPRESSION_SAME_KIND_MAX_DURATION"`
	UseVendorTraceParentHeader bool     `yaml:"use_elastic_traceparent_header" toml:"use_elastic_traceparent_header" envconfig:"USE_ELASTIC_TRACEPARENT_HEADER"`
	TraceStateMaxLength        int      `yaml:"tracestate_max_length" toml:"tracestate_max_length" envconfig:"TRACESTATE_MAX_LENGTH"`
	ContextManager             string   `yaml:"context_manager" toml:"context_manager" envconfig:"CONTEXT_MANAGER"`
	TransactionIgnoreURLs      []string `yaml:"transaction_ignore_urls" toml:"transaction_ignore_urls" envconfig:"TRANSACTION_IGNORE_URLS"`
	SendUnsampledTransactions  bool     `yaml:"send_unsampled_transactions" toml:"send_unsampled_transactions" envconfig:"SEND_UNSAMPLED_TRANSACTIONS"`
	FlushTimeout               Duration `yaml:"flush_timeout" toml:"flush_timeout" envconfig:"FLUSH_TIMEOUT"`
}

// ReporterConfig selects and tunes the event sink.
type ReporterConfig struct {
	Kind           string   `yaml:"kind" toml:"kind" envconfig:"KIND"`
	ServerURL      string   `yaml:"server_url" toml:"server_url" envconfig:"SERVER_URL"`
	OTLPEndpoint   string   `yaml:"otlp_endpoint" toml:"otlp_endpoint" envconfig:"OTLP_ENDPOINT"`
	SecretToken    string   `yaml:"secret_token" toml:"secret_token" envconfig:"SECRET_TOKEN"`
	Timeout        Duration `yaml:"timeout" toml:"timeout" envconfig:"TIMEOUT"`
	MaxRequestSize int      `yaml:"max_request_size" toml:"max_request_size" envconfig:"MAX_REQUEST_SIZE"`
	RequestRate    float64  `yaml:"request_rate" toml:"request_rate" envconfig:"REQUEST_RATE"`
	RequestBurst   int      `yaml:"request_burst" toml:"request_burst" envconfig:"REQUEST_BURST"`
	MaxRetries     int      `yaml:"max_retries" toml:"max_retries" envconfig:"MAX_RETRIES"`
	Compress       bool     `yaml:"compress" toml:"compress" envconfig:"COMPRESS"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `yaml:"level" toml:"level" envconfig:"LEVEL"`
	Development bool   `yaml:"development" toml:"development" envconfig:"DEV"`
}

// ServerConfig holds demo HTTP server configuration.
type ServerConfig struct {
	Port string `yaml:"port" toml:"port" envconfig:"PORT"`
	Host string `yaml:"host" toml:"host" envconfig:"HOST"`
}

// RateLimitConfig holds demo rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `yaml:"rps" toml:"rps" envconfig:"RPS"`
	Burst             int  `yaml:"burst" toml:"burst" envconfig:"BURST"`
	Enabled           bool `yaml:"enabled" toml:"enabled" envconfig:"ENABLED"`
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "apmcore-demo",
			Environment: "development",
		},
		Tracer: TracerConfig{
			TransactionSampleRate:     1.0,
			TransactionMaxSpans:       500,
			SpanCompressionEnabled:    true,
			ExactMatchMaxDuration:     Milliseconds(50),
			SameKindMaxDuration:       0,
			TraceStateMaxLength:       tracecontext.DefaultMaxTraceStateLength,
			ContextManager:            "context",
			SendUnsampledTransactions: true,
			FlushTimeout:              Milliseconds(1000),
		},
		Reporter: ReporterConfig{
			Kind:           ReporterLog,
			ServerURL:      "http://localhost:8200",
			OTLPEndpoint:   "localhost:4317",
			Timeout:        Milliseconds(30000),
			MaxRequestSize: 768 * 1024,
			RequestRate:    10,
			RequestBurst:   20,
			MaxRetries:     3,
			Compress:       true,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}

// Load layers Default, the optional file at path, then the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := LoadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads configuration or returns default on any error.
func LoadOrDefault(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		return Default()
	}
	return cfg
}

// LoadFile decodes a YAML or TOML file over cfg, chosen by extension.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate clamps out-of-range values and rejects unusable ones.
func (c *Config) Validate() error {
	t := &c.Tracer
	t.TransactionSampleRate = tracecontext.RoundSampleRate(t.TransactionSampleRate)
	if t.TransactionMaxSpans < -1 {
		t.TransactionMaxSpans = -1
	}
	if t.ExitSpanMinDuration < 0 {
		t.ExitSpanMinDuration = 0
	}
	if t.TraceStateMaxLength <= 0 {
		t.TraceStateMaxLength = tracecontext.DefaultMaxTraceStateLength
	}
	if t.FlushTimeout <= 0 {
		t.FlushTimeout = Milliseconds(1000)
	}
	t.ContextManager = strings.ToLower(strings.TrimSpace(t.ContextManager))

	r := &c.Reporter
	r.Kind = strings.ToLower(strings.TrimSpace(r.Kind))
	switch r.Kind {
	case ReporterHTTP, ReporterOTLP, ReporterLog, ReporterNone:
	case "":
		r.Kind = ReporterNone
	default:
		return fmt.Errorf("%w: %q", ErrUnknownReporter, r.Kind)
	}
	if r.RequestBurst < 1 {
		r.RequestBurst = 1
	}
	return nil
}
