// Package config assembles runtime settings from .env files, an optional
// YAML file and environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/seo-optimizer/competitor/analyzer"
	"github.com/seo-optimizer/competitor/crawler"
)

// EnvConfigFile names the YAML file to load, if any
const EnvConfigFile = "SEO_CONFIG"

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
	Crawl   CrawlConfig   `yaml:"crawl"`
	Report  ReportConfig  `yaml:"report"`
	DataDir string        `yaml:"data_dir"`
}

type ServerConfig struct {
	Port    string `yaml:"port"`
	GinMode string `yaml:"gin_mode"`
	// DevMode exposes detailed usage statistics
	DevMode        bool     `yaml:"dev_mode"`
	RateLimit      float64  `yaml:"rate_limit"`
	RateBurst      int      `yaml:"rate_burst"`
	MaxUploadBytes int64    `yaml:"max_upload_bytes"`
	ShutdownGrace  Duration `yaml:"shutdown_grace"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type CrawlConfig struct {
	MaxDepth          int      `yaml:"max_depth"`
	MaxPages          int      `yaml:"max_pages"`
	Concurrency       int      `yaml:"concurrency"`
	RequestTimeout    Duration `yaml:"request_timeout"`
	Timeout           Duration `yaml:"timeout"`
	Retries           int      `yaml:"retries"`
	RetryDelay        Duration `yaml:"retry_delay"`
	RespectRobots     bool     `yaml:"respect_robots"`
	RequestsPerSecond float64  `yaml:"requests_per_second"`
	UserAgent         string   `yaml:"user_agent"`
	MaxBodyBytes      int64    `yaml:"max_body_bytes"`
	MinWordCount      int      `yaml:"min_word_count"`
}

type ReportConfig struct {
	TopKeywords int `yaml:"top_keywords"`
}

// Default returns the configuration used when nothing overrides it
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:           "8082",
			GinMode:        gin.ReleaseMode,
			RateLimit:      2,
			RateBurst:      5,
			MaxUploadBytes: 32 << 20,
			ShutdownGrace:  DurationOf(10 * time.Second),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Crawl: CrawlConfig{
			MaxDepth:       crawler.DefaultMaxDepth,
			MaxPages:       crawler.DefaultMaxPages,
			Concurrency:    crawler.DefaultConcurrency,
			RequestTimeout: DurationOf(crawler.DefaultRequestTimeout),
			Timeout:        DurationOf(crawler.DefaultTimeout),
			Retries:        crawler.DefaultRetries,
			RetryDelay:     DurationOf(crawler.DefaultRetryDelay),
			RespectRobots:  true,
			UserAgent:      crawler.DefaultUserAgent,
			MaxBodyBytes:   5 << 20,
			MinWordCount:   analyzer.DefaultMinWordCount,
		},
		Report: ReportConfig{
			TopKeywords: 20,
		},
		DataDir: "data",
	}
}

// LoadEnv loads .env.development, falling back to .env. Missing files are
// not an error; it reports whether a file was found.
func LoadEnv() bool {
	if err := godotenv.Load(".env.development"); err != nil {
		if err := godotenv.Load(); err != nil {
			return false
		}
	}
	return true
}

// Load builds the configuration from defaults, the YAML file named by
// SEO_CONFIG and the process environment.
func Load() (*Config, error) {
	return load(os.LookupEnv)
}

func load(lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	if path, ok := lookup(EnvConfigFile); ok && strings.TrimSpace(path) != "" {
		fh, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer fh.Close()
		if err := decodeYAML(fh, &cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// LoadFromReader decodes YAML over the defaults, without the environment
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decodeYAML(r, &cfg); err != nil {
		return nil, err
	}
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

type envBinding struct {
	key   string
	apply func(string) error
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(dst *string) func(string) error {
		return func(v string) error { *dst = v; return nil }
	}
	integer := func(dst *int) func(string) error {
		return func(v string) error {
			n, err := strconv.Atoi(v)
			*dst = n
			return err
		}
	}
	float := func(dst *float64) func(string) error {
		return func(v string) error {
			f, err := strconv.ParseFloat(v, 64)
			*dst = f
			return err
		}
	}
	boolean := func(dst *bool) func(string) error {
		return func(v string) error {
			b, err := strconv.ParseBool(v)
			*dst = b
			return err
		}
	}
	duration := func(dst *Duration) func(string) error {
		return func(v string) error { return dst.UnmarshalText([]byte(v)) }
	}

	bindings := []envBinding{
		{"PORT", str(&c.Server.Port)},
		{"GIN_MODE", str(&c.Server.GinMode)},
		{"DEV_MODE", boolean(&c.Server.DevMode)},
		{"RATE_LIMIT", float(&c.Server.RateLimit)},
		{"RATE_BURST", integer(&c.Server.RateBurst)},
		{"LOG_LEVEL", str(&c.Logging.Level)},
		{"LOG_FORMAT", str(&c.Logging.Format)},
		{"DATA_DIR", str(&c.DataDir)},
		{"CRAWL_MAX_DEPTH", integer(&c.Crawl.MaxDepth)},
		{"CRAWL_MAX_PAGES", integer(&c.Crawl.MaxPages)},
		{"CRAWL_CONCURRENCY", integer(&c.Crawl.Concurrency)},
		{"CRAWL_REQUEST_TIMEOUT", duration(&c.Crawl.RequestTimeout)},
		{"CRAWL_TIMEOUT", duration(&c.Crawl.Timeout)},
		{"CRAWL_RETRIES", integer(&c.Crawl.Retries)},
		{"CRAWL_RESPECT_ROBOTS", boolean(&c.Crawl.RespectRobots)},
		{"CRAWL_REQUESTS_PER_SECOND", float(&c.Crawl.RequestsPerSecond)},
		{"CRAWL_USER_AGENT", str(&c.Crawl.UserAgent)},
	}
	for _, b := range bindings {
		v, ok := lookup(b.key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		if err := b.apply(strings.TrimSpace(v)); err != nil {
			return fmt.Errorf("env %s: %w", b.key, err)
		}
	}
	return nil
}

func (c *Config) normalise() {
	c.Server.Port = strings.TrimPrefix(strings.TrimSpace(c.Server.Port), ":")
	c.Server.GinMode = strings.ToLower(strings.TrimSpace(c.Server.GinMode))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Crawl.UserAgent = strings.TrimSpace(c.Crawl.UserAgent)
	c.DataDir = strings.TrimSpace(c.DataDir)
	if c.Crawl.RequestTimeout.Duration > c.Crawl.Timeout.Duration {
		c.Crawl.RequestTimeout = c.Crawl.Timeout
	}
}

// Validate rejects settings the server cannot run with
func (c Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server.port must be set")
	}
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return fmt.Errorf("server.port %q is not a number", c.Server.Port)
	}
	switch c.Server.GinMode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
	default:
		return fmt.Errorf("server.gin_mode %q is not one of debug, release, test", c.Server.GinMode)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must be >= 0 (got %g)", c.Server.RateLimit)
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst < 1 {
		return fmt.Errorf("server.rate_burst must be >= 1 (got %d)", c.Server.RateBurst)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("server.max_upload_bytes must be > 0 (got %d)", c.Server.MaxUploadBytes)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}
	if c.Crawl.MaxDepth < 0 {
		return fmt.Errorf("crawl.max_depth must be >= 0 (got %d)", c.Crawl.MaxDepth)
	}
	if c.Crawl.MaxPages <= 0 {
		return fmt.Errorf("crawl.max_pages must be > 0 (got %d)", c.Crawl.MaxPages)
	}
	if c.Crawl.Concurrency <= 0 {
		return fmt.Errorf("crawl.concurrency must be > 0 (got %d)", c.Crawl.Concurrency)
	}
	if c.Crawl.Timeout.Duration <= 0 || c.Crawl.RequestTimeout.Duration <= 0 {
		return errors.New("crawl timeouts must be > 0")
	}
	if c.Crawl.Retries < 0 {
		return fmt.Errorf("crawl.retries must be >= 0 (got %d)", c.Crawl.Retries)
	}
	if c.Crawl.RequestsPerSecond < 0 {
		return fmt.Errorf("crawl.requests_per_second must be >= 0 (got %g)", c.Crawl.RequestsPerSecond)
	}
	if c.Crawl.UserAgent == "" {
		return errors.New("crawl.user_agent must be set")
	}
	if c.Crawl.MaxBodyBytes <= 0 {
		return fmt.Errorf("crawl.max_body_bytes must be > 0 (got %d)", c.Crawl.MaxBodyBytes)
	}
	if c.Report.TopKeywords <= 0 {
		return fmt.Errorf("report.top_keywords must be > 0 (got %d)", c.Report.TopKeywords)
	}
	if c.DataDir == "" {
		return errors.New("data_dir must be set")
	}
	return nil
}

// CrawlOptions converts the crawl section into crawler options
func (c CrawlConfig) CrawlOptions() crawler.Options {
	opts := crawler.DefaultOptions()
	opts.MaxDepth = c.MaxDepth
	opts.MaxPages = c.MaxPages
	opts.Concurrency = c.Concurrency
	opts.RequestTimeout = c.RequestTimeout.Duration
	opts.Timeout = c.Timeout.Duration
	opts.Retries = c.Retries
	opts.RetryDelay = c.RetryDelay.Duration
	opts.RespectRobots = c.RespectRobots
	opts.RequestsPerSecond = c.RequestsPerSecond
	opts.MinWordCount = c.MinWordCount
	return opts
}

// Addr is the listen address of the HTTP server
func (s ServerConfig) Addr() string {
	return ":" + s.Port
}
