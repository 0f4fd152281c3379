package core

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/denizumutdereli/npsrisk/pkg/batch"
	"github.com/denizumutdereli/npsrisk/pkg/classifier"
	"github.com/denizumutdereli/npsrisk/pkg/risk"
)

// ---------------------------------------------------------------------------
// Config: central configuration for an npsrisk process.
//
// The configuration is resolved through a four-level hierarchy where each
// layer overrides values set by the layer beneath it:
//
//	Priority (highest → lowest):
//	  1. Programmatic overrides (CLI flags applied after loading)
//	  2. YAML configuration file
//	  3. Environment variables (NPSRISK_* prefix)
//	  4. Built-in defaults
//
// Duration fields accept Go duration strings ("20s", "1m").
// ---------------------------------------------------------------------------

// ServerConfig groups network listener settings.
type ServerConfig struct {
	// HTTPAddr is the TCP address the HTTP API binds to.
	HTTPAddr string `yaml:"httpAddr"`
}

// SecurityConfig groups network security and request-limiting settings.
type SecurityConfig struct {
	// AllowedOrigins controls the CORS Access-Control-Allow-Origin header.
	// "*" allows every origin; otherwise a comma-separated list.
	AllowedOrigins string `yaml:"allowedOrigins"`

	// MaxRequestBody is the maximum HTTP request body in bytes. 0 disables
	// the limit.
	MaxRequestBody int64 `yaml:"maxRequestBody"`

	// MaxCommentBytes bounds a single description or comment.
	MaxCommentBytes int64 `yaml:"maxCommentBytes"`

	// RateLimitRPS is the per-client request rate on /v1. 0 disables it.
	RateLimitRPS   float64 `yaml:"rateLimitRPS"`
	RateLimitBurst int     `yaml:"rateLimitBurst"`

	TLSCert string `yaml:"tlsCert"`
	TLSKey  string `yaml:"tlsKey"`

	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
}

// LexiconConfig selects the scoring vocabulary.
type LexiconConfig struct {
	// Path is an optional YAML lexicon replacing the embedded pt-BR one.
	Path string `yaml:"path"`

	// Overlap is the overlapping-term policy: longest | all.
	Overlap string `yaml:"overlap"`
}

// ClassifierConfig groups external LLM classifier settings.
type ClassifierConfig struct {
	// Provider is none | openai | gemini.
	Provider        string        `yaml:"provider"`
	Model           string        `yaml:"model"`
	APIKey          string        `yaml:"apiKey"`
	BaseURL         string        `yaml:"baseURL"`
	Timeout         time.Duration `yaml:"timeout"`
	RateLimitRPS    float64       `yaml:"rateLimitRPS"`
	RateLimitBurst  int           `yaml:"rateLimitBurst"`
	Temperature     float64       `yaml:"temperature"`
	MaxOutputTokens int           `yaml:"maxOutputTokens"`
}

// BatchConfig groups dataset processing settings.
type BatchConfig struct {
	// Workers bounds concurrent analyses. 0 uses GOMAXPROCS.
	Workers int `yaml:"workers"`

	// MaxRows rejects larger datasets. 0 means unlimited.
	MaxRows int `yaml:"maxRows"`

	// HeaderRow is the 1-based line holding column titles.
	HeaderRow int `yaml:"headerRow"`

	// Delimiter is the single CSV field separator.
	Delimiter string `yaml:"delimiter"`

	// DescriptionColumn is empty to auto-detect or "(nenhuma)" to skip.
	DescriptionColumn string `yaml:"descriptionColumn"`
	CommentColumn     string `yaml:"commentColumn"`
	GradeColumn       string `yaml:"gradeColumn"`
	ExplanationColumn string `yaml:"explanationColumn"`

	// StripMarkup removes HTML and control runes from cells before scoring.
	StripMarkup bool `yaml:"stripMarkup"`
}

// MCPConfig groups Model Context Protocol endpoint settings.
type MCPConfig struct {
	// Enabled controls whether the MCP endpoint is exposed.
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP route for MCP transport.
	Path string `yaml:"path"`

	// APIKey is an optional shared secret validated from X-API-Key or Bearer token.
	APIKey string `yaml:"apiKey"`

	// Stateless enables stateless session-id handling for streamable HTTP.
	Stateless bool `yaml:"stateless"`

	// RateLimitRPS controls per-client rate limiting. 0 disables it.
	RateLimitRPS   float64 `yaml:"rateLimitRPS"`
	RateLimitBurst int     `yaml:"rateLimitBurst"`

	// EnablePrompts toggles registration of the triage prompt.
	EnablePrompts bool `yaml:"enablePrompts"`
}

// MetricsConfig groups Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Config is the root configuration object.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Security   SecurityConfig   `yaml:"security"`
	Lexicon    LexiconConfig    `yaml:"lexicon"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Batch      BatchConfig      `yaml:"batch"`
	MCP        MCPConfig        `yaml:"mcp"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ---------------------------------------------------------------------------
// Factory functions
// ---------------------------------------------------------------------------

// DefaultConfig returns a Config populated with safe defaults. The external
// classifier is off until a provider is configured.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr: ":8080",
		},
		Security: SecurityConfig{
			AllowedOrigins:  "http://localhost:8080",
			MaxRequestBody:  8 << 20,
			MaxCommentBytes: DefaultMaxCommentBytes,
			RateLimitRPS:    0,
			RateLimitBurst:  0,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute,
		},
		Lexicon: LexiconConfig{
			Overlap: string(risk.OverlapLongest),
		},
		Classifier: ClassifierConfig{
			Provider:        classifier.ProviderNone,
			Timeout:         classifier.DefaultTimeout,
			RateLimitRPS:    5,
			RateLimitBurst:  5,
			Temperature:     classifier.DefaultTemperature,
			MaxOutputTokens: classifier.DefaultMaxOutputTokens,
		},
		Batch: BatchConfig{
			Workers:           0,
			MaxRows:           100_000,
			HeaderRow:         1,
			Delimiter:         ",",
			GradeColumn:       batch.DefaultGradeColumn,
			ExplanationColumn: batch.DefaultExplanationColumn,
		},
		MCP: MCPConfig{
			Enabled:        false,
			Path:           "/mcp",
			Stateless:      true,
			RateLimitRPS:   30,
			RateLimitBurst: 60,
			EnablePrompts:  true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// ConfigFromFile reads a YAML configuration file and merges it on top of
// the built-in defaults. Fields absent from the file retain their defaults.
func ConfigFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	return cfg, nil
}

// ConfigFromEnv applies environment variable overrides to the given Config.
// If cfg is nil a new default Config is created first.
//
// Environment variable mapping (all optional, prefix NPSRISK_):
//
//	NPSRISK_HTTP_ADDR                    → Server.HTTPAddr
//	NPSRISK_ALLOWED_ORIGINS              → Security.AllowedOrigins
//	NPSRISK_MAX_REQUEST_BODY             → Security.MaxRequestBody   (bytes)
//	NPSRISK_MAX_COMMENT_BYTES            → Security.MaxCommentBytes  (bytes)
//	NPSRISK_RATE_LIMIT_RPS               → Security.RateLimitRPS     (float)
//	NPSRISK_RATE_LIMIT_BURST             → Security.RateLimitBurst
//	NPSRISK_TLS_CERT                     → Security.TLSCert
//	NPSRISK_TLS_KEY                      → Security.TLSKey
//	NPSRISK_READ_TIMEOUT                 → Security.ReadTimeout      (duration)
//	NPSRISK_WRITE_TIMEOUT                → Security.WriteTimeout     (duration)
//	NPSRISK_LEXICON_PATH                 → Lexicon.Path
//	NPSRISK_LEXICON_OVERLAP              → Lexicon.Overlap           (longest|all)
//	NPSRISK_CLASSIFIER_PROVIDER          → Classifier.Provider       (none|openai|gemini)
//	NPSRISK_CLASSIFIER_MODEL             → Classifier.Model
//	NPSRISK_CLASSIFIER_API_KEY           → Classifier.APIKey
//	NPSRISK_CLASSIFIER_BASE_URL          → Classifier.BaseURL
//	NPSRISK_CLASSIFIER_TIMEOUT           → Classifier.Timeout        (duration)
//	NPSRISK_CLASSIFIER_RATE_LIMIT_RPS    → Classifier.RateLimitRPS   (float)
//	NPSRISK_CLASSIFIER_RATE_LIMIT_BURST  → Classifier.RateLimitBurst
//	NPSRISK_CLASSIFIER_TEMPERATURE       → Classifier.Temperature    (float)
//	NPSRISK_CLASSIFIER_MAX_OUTPUT_TOKENS → Classifier.MaxOutputTokens
//	NPSRISK_BATCH_WORKERS                → Batch.Workers
//	NPSRISK_BATCH_MAX_ROWS               → Batch.MaxRows
//	NPSRISK_BATCH_HEADER_ROW             → Batch.HeaderRow
//	NPSRISK_BATCH_DELIMITER              → Batch.Delimiter
//	NPSRISK_BATCH_DESCRIPTION_COLUMN     → Batch.DescriptionColumn
//	NPSRISK_BATCH_COMMENT_COLUMN         → Batch.CommentColumn
//	NPSRISK_BATCH_GRADE_COLUMN           → Batch.GradeColumn
//	NPSRISK_BATCH_EXPLANATION_COLUMN     → Batch.ExplanationColumn
//	NPSRISK_BATCH_STRIP_MARKUP           → Batch.StripMarkup         ("true"/"false")
//	NPSRISK_MCP_ENABLED                  → MCP.Enabled               ("true"/"false")
//	NPSRISK_MCP_PATH                     → MCP.Path
//	NPSRISK_MCP_API_KEY                  → MCP.APIKey
//	NPSRISK_MCP_STATELESS                → MCP.Stateless             ("true"/"false")
//	NPSRISK_MCP_RATE_LIMIT_RPS           → MCP.RateLimitRPS          (float)
//	NPSRISK_MCP_RATE_LIMIT_BURST         → MCP.RateLimitBurst
//	NPSRISK_MCP_ENABLE_PROMPTS           → MCP.EnablePrompts         ("true"/"false")
//	NPSRISK_METRICS_ENABLED              → Metrics.Enabled           ("true"/"false")
//	NPSRISK_METRICS_PATH                 → Metrics.Path
//
// OPENAI_API_KEY and GEMINI_API_KEY are read as a last resort for
// Classifier.APIKey when the matching provider is selected.
func ConfigFromEnv(cfg *Config) *Config {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	// -- Server --
	setEnvStr("NPSRISK_HTTP_ADDR", &cfg.Server.HTTPAddr)

	// -- Security --
	setEnvStr("NPSRISK_ALLOWED_ORIGINS", &cfg.Security.AllowedOrigins)
	setEnvInt64("NPSRISK_MAX_REQUEST_BODY", &cfg.Security.MaxRequestBody)
	setEnvInt64("NPSRISK_MAX_COMMENT_BYTES", &cfg.Security.MaxCommentBytes)
	setEnvFloat("NPSRISK_RATE_LIMIT_RPS", &cfg.Security.RateLimitRPS)
	setEnvInt("NPSRISK_RATE_LIMIT_BURST", &cfg.Security.RateLimitBurst)
	setEnvStr("NPSRISK_TLS_CERT", &cfg.Security.TLSCert)
	setEnvStr("NPSRISK_TLS_KEY", &cfg.Security.TLSKey)
	setEnvDuration("NPSRISK_READ_TIMEOUT", &cfg.Security.ReadTimeout)
	setEnvDuration("NPSRISK_WRITE_TIMEOUT", &cfg.Security.WriteTimeout)

	// -- Lexicon --
	setEnvStr("NPSRISK_LEXICON_PATH", &cfg.Lexicon.Path)
	setEnvStr("NPSRISK_LEXICON_OVERLAP", &cfg.Lexicon.Overlap)

	// -- Classifier --
	setEnvStr("NPSRISK_CLASSIFIER_PROVIDER", &cfg.Classifier.Provider)
	setEnvStr("NPSRISK_CLASSIFIER_MODEL", &cfg.Classifier.Model)
	setEnvStr("NPSRISK_CLASSIFIER_API_KEY", &cfg.Classifier.APIKey)
	setEnvStr("NPSRISK_CLASSIFIER_BASE_URL", &cfg.Classifier.BaseURL)
	setEnvDuration("NPSRISK_CLASSIFIER_TIMEOUT", &cfg.Classifier.Timeout)
	setEnvFloat("NPSRISK_CLASSIFIER_RATE_LIMIT_RPS", &cfg.Classifier.RateLimitRPS)
	setEnvInt("NPSRISK_CLASSIFIER_RATE_LIMIT_BURST", &cfg.Classifier.RateLimitBurst)
	setEnvFloat("NPSRISK_CLASSIFIER_TEMPERATURE", &cfg.Classifier.Temperature)
	setEnvInt("NPSRISK_CLASSIFIER_MAX_OUTPUT_TOKENS", &cfg.Classifier.MaxOutputTokens)
	if cfg.Classifier.APIKey == "" {
		switch strings.ToLower(strings.TrimSpace(cfg.Classifier.Provider)) {
		case classifier.ProviderOpenAI:
			setEnvStr("OPENAI_API_KEY", &cfg.Classifier.APIKey)
		case classifier.ProviderGemini:
			setEnvStr("GEMINI_API_KEY", &cfg.Classifier.APIKey)
		}
	}

	// -- Batch --
	setEnvInt("NPSRISK_BATCH_WORKERS", &cfg.Batch.Workers)
	setEnvInt("NPSRISK_BATCH_MAX_ROWS", &cfg.Batch.MaxRows)
	setEnvInt("NPSRISK_BATCH_HEADER_ROW", &cfg.Batch.HeaderRow)
	setEnvStr("NPSRISK_BATCH_DELIMITER", &cfg.Batch.Delimiter)
	setEnvStr("NPSRISK_BATCH_DESCRIPTION_COLUMN", &cfg.Batch.DescriptionColumn)
	setEnvStr("NPSRISK_BATCH_COMMENT_COLUMN", &cfg.Batch.CommentColumn)
	setEnvStr("NPSRISK_BATCH_GRADE_COLUMN", &cfg.Batch.GradeColumn)
	setEnvStr("NPSRISK_BATCH_EXPLANATION_COLUMN", &cfg.Batch.ExplanationColumn)
	setEnvBool("NPSRISK_BATCH_STRIP_MARKUP", &cfg.Batch.StripMarkup)

	// -- MCP --
	setEnvBool("NPSRISK_MCP_ENABLED", &cfg.MCP.Enabled)
	setEnvStr("NPSRISK_MCP_PATH", &cfg.MCP.Path)
	setEnvStr("NPSRISK_MCP_API_KEY", &cfg.MCP.APIKey)
	setEnvBool("NPSRISK_MCP_STATELESS", &cfg.MCP.Stateless)
	setEnvFloat("NPSRISK_MCP_RATE_LIMIT_RPS", &cfg.MCP.RateLimitRPS)
	setEnvInt("NPSRISK_MCP_RATE_LIMIT_BURST", &cfg.MCP.RateLimitBurst)
	setEnvBool("NPSRISK_MCP_ENABLE_PROMPTS", &cfg.MCP.EnablePrompts)

	// -- Metrics --
	setEnvBool("NPSRISK_METRICS_ENABLED", &cfg.Metrics.Enabled)
	setEnvStr("NPSRISK_METRICS_PATH", &cfg.Metrics.Path)

	return cfg
}

// LoadConfig implements the full four-level configuration hierarchy:
//
//  1. Start with built-in defaults.
//  2. If configPath is non-empty, overlay the YAML file.
//  3. Apply environment variable overrides.
//  4. The caller may then apply programmatic overrides (e.g. CLI flags).
func LoadConfig(configPath string) (*Config, error) {
	var cfg *Config

	if configPath != "" {
		var err error
		cfg, err = ConfigFromFile(configPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = DefaultConfig()
	}

	cfg = ConfigFromEnv(cfg)
	return cfg, nil
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// Validate performs structural validation of the entire configuration and
// normalises enum-like fields in place. The returned error wraps
// ErrInvalidConfig and names the first invalid field by its yaml path.
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func (c *Config) validate() error {
	// Server
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.httpAddr must not be empty")
	}

	// Security
	if c.Security.MaxRequestBody < 0 {
		return fmt.Errorf("security.maxRequestBody must be >= 0 (0 = unlimited, not recommended)")
	}
	if c.Security.MaxCommentBytes <= 0 {
		return fmt.Errorf("security.maxCommentBytes must be > 0")
	}
	if c.Security.RateLimitRPS < 0 {
		return fmt.Errorf("security.rateLimitRPS must be >= 0")
	}
	if c.Security.RateLimitBurst < 0 {
		return fmt.Errorf("security.rateLimitBurst must be >= 0")
	}
	if c.Security.ReadTimeout <= 0 {
		return fmt.Errorf("security.readTimeout must be > 0")
	}
	if c.Security.WriteTimeout <= 0 {
		return fmt.Errorf("security.writeTimeout must be > 0")
	}
	if c.Security.AllowedOrigins == "*" {
		log.Printf("⚠ WARNING: security.allowedOrigins is set to \"*\" (allow all), restrict it for production use")
	}
	if c.Security.TLSCert != "" && c.Security.TLSKey == "" {
		return fmt.Errorf("security.tlsKey is required when security.tlsCert is set")
	}
	if c.Security.TLSKey != "" && c.Security.TLSCert == "" {
		return fmt.Errorf("security.tlsCert is required when security.tlsKey is set")
	}

	// Lexicon
	overlap, err := risk.ParseOverlapPolicy(c.Lexicon.Overlap)
	if err != nil {
		return fmt.Errorf("lexicon.overlap must be one of longest|all")
	}
	c.Lexicon.Overlap = string(overlap)

	// Classifier
	provider := strings.ToLower(strings.TrimSpace(c.Classifier.Provider))
	if provider == "" {
		provider = classifier.ProviderNone
	}
	switch provider {
	case classifier.ProviderNone, classifier.ProviderOpenAI, classifier.ProviderGemini:
	default:
		return fmt.Errorf("classifier.provider must be one of none|openai|gemini")
	}
	c.Classifier.Provider = provider
	if provider != classifier.ProviderNone {
		if c.Classifier.Timeout <= 0 {
			return fmt.Errorf("classifier.timeout must be > 0")
		}
		if c.Classifier.Temperature < 0 || c.Classifier.Temperature > 2 {
			return fmt.Errorf("classifier.temperature must be between 0 and 2, got %v", c.Classifier.Temperature)
		}
		if c.Classifier.MaxOutputTokens < 1 {
			return fmt.Errorf("classifier.maxOutputTokens must be >= 1, got %d", c.Classifier.MaxOutputTokens)
		}
		if c.Classifier.APIKey == "" {
			log.Printf("⚠ WARNING: classifier.apiKey is empty; provider %s will rely on its own environment lookup", provider)
		}
	}
	if c.Classifier.RateLimitRPS < 0 {
		return fmt.Errorf("classifier.rateLimitRPS must be >= 0")
	}
	if c.Classifier.RateLimitBurst < 0 {
		return fmt.Errorf("classifier.rateLimitBurst must be >= 0")
	}

	// Batch
	if c.Batch.Workers < 0 {
		return fmt.Errorf("batch.workers must be >= 0")
	}
	if c.Batch.MaxRows < 0 {
		return fmt.Errorf("batch.maxRows must be >= 0")
	}
	if c.Batch.HeaderRow < 1 {
		return fmt.Errorf("batch.headerRow must be >= 1, got %d", c.Batch.HeaderRow)
	}
	if c.Batch.Delimiter == "" {
		c.Batch.Delimiter = ","
	}
	if utf8.RuneCountInString(c.Batch.Delimiter) != 1 {
		return fmt.Errorf("batch.delimiter must be a single character, got %q", c.Batch.Delimiter)
	}
	if strings.TrimSpace(c.Batch.GradeColumn) == "" || strings.TrimSpace(c.Batch.ExplanationColumn) == "" {
		return fmt.Errorf("batch.gradeColumn and batch.explanationColumn must not be empty")
	}
	if strings.EqualFold(strings.TrimSpace(c.Batch.GradeColumn), strings.TrimSpace(c.Batch.ExplanationColumn)) {
		return fmt.Errorf("batch.gradeColumn and batch.explanationColumn must differ")
	}
	if c.Batch.Workers > 256 {
		log.Printf("⚠ WARNING: batch.workers=%d is very high; external classifier quotas will throttle it anyway", c.Batch.Workers)
	}

	// MCP
	mcpPath, err := routePath(c.MCP.Path, "/mcp")
	if err != nil {
		return fmt.Errorf("mcp.path %w", err)
	}
	c.MCP.Path = mcpPath
	if c.MCP.RateLimitRPS < 0 {
		return fmt.Errorf("mcp.rateLimitRPS must be >= 0")
	}
	if c.MCP.RateLimitBurst < 0 {
		return fmt.Errorf("mcp.rateLimitBurst must be >= 0")
	}

	// Metrics
	metricsPath, err := routePath(c.Metrics.Path, "/metrics")
	if err != nil {
		return fmt.Errorf("metrics.path %w", err)
	}
	c.Metrics.Path = metricsPath
	if c.MCP.Enabled && c.Metrics.Enabled && c.MCP.Path == c.Metrics.Path {
		return fmt.Errorf("metrics.path must differ from mcp.path")
	}

	return nil
}

// routePath trims a configured route and checks it is absolute.
func routePath(p, fallback string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		p = fallback
	}
	if !strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("must start with '/'")
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	return p, nil
}

// ---------------------------------------------------------------------------
// Derived settings
// ---------------------------------------------------------------------------

// ClassifierSettings converts the classifier section for classifier.New.
func (c *Config) ClassifierSettings() classifier.Config {
	return classifier.Config{
		Provider:        c.Classifier.Provider,
		Model:           c.Classifier.Model,
		APIKey:          c.Classifier.APIKey,
		BaseURL:         c.Classifier.BaseURL,
		Timeout:         c.Classifier.Timeout,
		RateLimitRPS:    c.Classifier.RateLimitRPS,
		RateLimitBurst:  c.Classifier.RateLimitBurst,
		Temperature:     c.Classifier.Temperature,
		MaxOutputTokens: c.Classifier.MaxOutputTokens,
	}
}

// ReadOptions converts the batch section for batch.ReadCSV.
func (c *Config) ReadOptions() batch.ReadOptions {
	delim, _ := utf8.DecodeRuneInString(c.Batch.Delimiter)
	if delim == utf8.RuneError {
		delim = ','
	}
	return batch.ReadOptions{
		HeaderRow: c.Batch.HeaderRow,
		Delimiter: delim,
		MaxRows:   c.Batch.MaxRows,
	}
}

// Columns converts the batch section for batch.Processor.Run.
func (c *Config) Columns() batch.Columns {
	return batch.Columns{
		Description: c.Batch.DescriptionColumn,
		Comment:     c.Batch.CommentColumn,
		Grade:       c.Batch.GradeColumn,
		Explanation: c.Batch.ExplanationColumn,
	}
}

// ---------------------------------------------------------------------------
// Environment variable helpers
// ---------------------------------------------------------------------------

// setEnvStr sets *target to the value of the named env var if it is non-empty.
func setEnvStr(key string, target *string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

// setEnvBool sets *target to the parsed boolean value of the named env var.
// Accepted values: "true", "1" → true; "false", "0" → false.
func setEnvBool(key string, target *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*target = b
		}
	}
}

// setEnvInt sets *target to the parsed integer value of the named env var.
func setEnvInt(key string, target *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

// setEnvInt64 sets *target to the parsed int64 value of the named env var.
func setEnvInt64(key string, target *int64) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*target = n
		}
	}
}

// setEnvDuration sets *target to the parsed duration of the named env var.
func setEnvDuration(key string, target *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*target = d
		}
	}
}

// setEnvFloat sets *target to the parsed float64 value of the named env var.
func setEnvFloat(key string, target *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*target = f
		}
	}
}

// ---------------------------------------------------------------------------
// CLI flag overrides: final layer of the configuration hierarchy.
// ---------------------------------------------------------------------------

// CLIOverrides carries optional values set via command-line flags.
// Pointer fields are nil when the flag was not explicitly provided,
// allowing the caller to distinguish "not set" from the zero value.
type CLIOverrides struct {
	ConfigPath        *string
	HTTPAddr          *string
	AllowedOrigins    *string
	MaxRequestBody    *int64
	TLSCert           *string
	TLSKey            *string
	LexiconPath       *string
	Overlap           *string
	Provider          *string
	Model             *string
	APIKey            *string
	BaseURL           *string
	ClassifierTimeout *time.Duration
	Workers           *int
	MaxRows           *int
	HeaderRow         *int
	Delimiter         *string
	DescriptionColumn *string
	CommentColumn     *string
	GradeColumn       *string
	ExplanationColumn *string
	StripMarkup       *bool
	MCPEnabled        *bool
	MCPAPIKey         *string
	MetricsEnabled    *bool
}

// ApplyCLIOverrides patches the Config with any explicitly-set CLI flags.
func (c *Config) ApplyCLIOverrides(o *CLIOverrides) {
	if o == nil {
		return
	}
	setIf(&c.Server.HTTPAddr, o.HTTPAddr)
	setIf(&c.Security.AllowedOrigins, o.AllowedOrigins)
	setIf(&c.Security.MaxRequestBody, o.MaxRequestBody)
	setIf(&c.Security.TLSCert, o.TLSCert)
	setIf(&c.Security.TLSKey, o.TLSKey)
	setIf(&c.Lexicon.Path, o.LexiconPath)
	setIf(&c.Lexicon.Overlap, o.Overlap)
	setIf(&c.Classifier.Provider, o.Provider)
	setIf(&c.Classifier.Model, o.Model)
	setIf(&c.Classifier.APIKey, o.APIKey)
	setIf(&c.Classifier.BaseURL, o.BaseURL)
	setIf(&c.Classifier.Timeout, o.ClassifierTimeout)
	setIf(&c.Batch.Workers, o.Workers)
	setIf(&c.Batch.MaxRows, o.MaxRows)
	setIf(&c.Batch.HeaderRow, o.HeaderRow)
	setIf(&c.Batch.Delimiter, o.Delimiter)
	setIf(&c.Batch.DescriptionColumn, o.DescriptionColumn)
	setIf(&c.Batch.CommentColumn, o.CommentColumn)
	setIf(&c.Batch.GradeColumn, o.GradeColumn)
	setIf(&c.Batch.ExplanationColumn, o.ExplanationColumn)
	setIf(&c.Batch.StripMarkup, o.StripMarkup)
	setIf(&c.MCP.Enabled, o.MCPEnabled)
	setIf(&c.MCP.APIKey, o.MCPAPIKey)
	setIf(&c.Metrics.Enabled, o.MetricsEnabled)
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// ---------------------------------------------------------------------------
// Lifecycle helpers
// ---------------------------------------------------------------------------

// WaitForShutdown blocks until an OS interrupt or termination signal is
// received, then cancels the provided context to initiate graceful shutdown.
func WaitForShutdown(ctx context.Context, cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		log.Printf("Received signal %v, initiating shutdown...", sig)
		cancel()
	case <-ctx.Done():
	}
}

// Version is stamped at build time with -ldflags "-X .../pkg/core.Version=...".
var Version = "dev"

// PrintBanner prints the npsrisk banner to stdout.
func PrintBanner() {
	banner := `
  _ __  _ __  ___ _ __(_)___| | __
 | '_ \| '_ \/ __| '__| / __| |/ /
 | | | | |_) \__ \ |  | \__ \   <
 |_| |_| .__/|___/_|  |_|___/_|\_\
       |_|
    NPS comment risk triage
    ───────────────────────
`
	fmt.Print(banner)
}
