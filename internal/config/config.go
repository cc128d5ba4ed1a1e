// Package config loads application configuration from file and environment.
package config

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	DAWA       DAWAConfig       `yaml:"dawa" mapstructure:"dawa"`
	EJF        EJFConfig        `yaml:"ejf" mapstructure:"ejf"`
	CVR        CVRConfig        `yaml:"cvr" mapstructure:"cvr"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Firecrawl  FirecrawlConfig  `yaml:"firecrawl" mapstructure:"firecrawl"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Match      MatchConfig      `yaml:"match" mapstructure:"match"`
	Validation ValidationConfig `yaml:"validation" mapstructure:"validation"`
	Dedup      DedupConfig      `yaml:"dedup" mapstructure:"dedup"`
	Gate       GateConfig       `yaml:"gate" mapstructure:"gate"`
	Workflow   WorkflowConfig   `yaml:"workflow" mapstructure:"workflow"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the run store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Path        string `yaml:"path" mapstructure:"path"`
}

// DAWAConfig holds Danish address API settings.
type DAWAConfig struct {
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	MirrorURL string `yaml:"mirror_url" mapstructure:"mirror_url"`
}

// EJFConfig holds Ejerfortegnelsen (Datafordeler) credentials.
type EJFConfig struct {
	BaseURL  string `yaml:"base_url" mapstructure:"base_url"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
}

// CVRConfig holds business register API settings.
type CVRConfig struct {
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	UserAgent string `yaml:"user_agent" mapstructure:"user_agent"`
}

// JinaConfig holds Jina AI Reader settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// FirecrawlConfig holds Firecrawl API settings (scrape fallback only).
type FirecrawlConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	HaikuModel  string `yaml:"haiku_model" mapstructure:"haiku_model"`
	SonnetModel string `yaml:"sonnet_model" mapstructure:"sonnet_model"`
}

// SalesforceConfig holds Salesforce JWT auth settings.
type SalesforceConfig struct {
	ClientID          string  `yaml:"client_id" mapstructure:"client_id"`
	Username          string  `yaml:"username" mapstructure:"username"`
	KeyPath           string  `yaml:"key_path" mapstructure:"key_path"`
	LoginURL          string  `yaml:"login_url" mapstructure:"login_url"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// MatchConfig holds the registry match scoring weights and threshold.
// Scores are summed and clamped to [0,100].
type MatchConfig struct {
	ExactName      int `yaml:"exact_name" mapstructure:"exact_name"`
	SubstringName  int `yaml:"substring_name" mapstructure:"substring_name"`
	TokenOverlap   int `yaml:"token_overlap" mapstructure:"token_overlap"`
	PostalMatch    int `yaml:"postal_match" mapstructure:"postal_match"`
	StreetMatch    int `yaml:"street_match" mapstructure:"street_match"`
	Municipality   int `yaml:"municipality" mapstructure:"municipality"`
	RegionMismatch int `yaml:"region_mismatch" mapstructure:"region_mismatch"`
	DomainKeyword  int `yaml:"domain_keyword" mapstructure:"domain_keyword"`
	Threshold      int `yaml:"threshold" mapstructure:"threshold"`
	MaxCandidates  int `yaml:"max_candidates" mapstructure:"max_candidates"`
}

// ValidationConfig holds confidence ceilings applied by the validator.
type ValidationConfig struct {
	UnlistedEmailCeiling float64 `yaml:"unlisted_email_ceiling" mapstructure:"unlisted_email_ceiling"`
	UnverifiedCeiling    float64 `yaml:"unverified_ceiling" mapstructure:"unverified_ceiling"`
	GenericEmailCeiling  float64 `yaml:"generic_email_ceiling" mapstructure:"generic_email_ceiling"`
	VerifiedConfidence   float64 `yaml:"verified_confidence" mapstructure:"verified_confidence"`
}

// DedupConfig holds the cross-batch contact reuse penalties.
type DedupConfig struct {
	PenaltyPerUse float64 `yaml:"penalty_per_use" mapstructure:"penalty_per_use"`
	MaxPenalty    float64 `yaml:"max_penalty" mapstructure:"max_penalty"`
	CutoffUses    int     `yaml:"cutoff_uses" mapstructure:"cutoff_uses"`
	CutoffCeiling float64 `yaml:"cutoff_ceiling" mapstructure:"cutoff_ceiling"`
}

// GateConfig holds the quality gate thresholds.
type GateConfig struct {
	MinConfidence         float64 `yaml:"min_confidence" mapstructure:"min_confidence"`
	IndirectMinConfidence float64 `yaml:"indirect_min_confidence" mapstructure:"indirect_min_confidence"`
}

// WorkflowConfig configures the orchestrator.
type WorkflowConfig struct {
	SafeMode          bool     `yaml:"safe_mode" mapstructure:"safe_mode"`
	Locations         []string `yaml:"locations" mapstructure:"locations"`
	LocationFile      string   `yaml:"location_file" mapstructure:"location_file"`
	HistorySize       int      `yaml:"history_size" mapstructure:"history_size"`
	ScrapeConcurrency int      `yaml:"scrape_concurrency" mapstructure:"scrape_concurrency"`
	BatchLimit        int      `yaml:"batch_limit" mapstructure:"batch_limit"`
}

// RetryConfig configures the shared retry policy for upstream calls.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// ServerConfig configures the observability server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("OWNERSHIP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "ownership.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("dawa.base_url", "https://api.dataforsyningen.dk")
	v.SetDefault("dawa.mirror_url", "https://dawa.aws.dk")
	v.SetDefault("ejf.base_url", "https://services.datafordeler.dk")
	v.SetDefault("cvr.base_url", "https://cvrapi.dk/api")
	v.SetDefault("cvr.user_agent", "Adnord Ejendomsresearch kontakt@adnord.dk")
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v1")
	v.SetDefault("anthropic.haiku_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.sonnet_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("salesforce.requests_per_second", 5.0)
	v.SetDefault("match.exact_name", 40)
	v.SetDefault("match.substring_name", 30)
	v.SetDefault("match.token_overlap", 25)
	v.SetDefault("match.postal_match", 15)
	v.SetDefault("match.street_match", 20)
	v.SetDefault("match.municipality", 15)
	v.SetDefault("match.region_mismatch", 20)
	v.SetDefault("match.domain_keyword", 10)
	v.SetDefault("match.threshold", 60)
	v.SetDefault("match.max_candidates", 8)
	v.SetDefault("validation.unlisted_email_ceiling", 0.1)
	v.SetDefault("validation.unverified_ceiling", 0.4)
	v.SetDefault("validation.generic_email_ceiling", 0.2)
	v.SetDefault("validation.verified_confidence", 0.7)
	v.SetDefault("dedup.penalty_per_use", 0.15)
	v.SetDefault("dedup.max_penalty", 0.5)
	v.SetDefault("dedup.cutoff_uses", 2)
	v.SetDefault("dedup.cutoff_ceiling", 0.15)
	v.SetDefault("gate.min_confidence", 0.7)
	v.SetDefault("gate.indirect_min_confidence", 0.8)
	v.SetDefault("workflow.history_size", 50)
	v.SetDefault("workflow.scrape_concurrency", 4)
	v.SetDefault("workflow.batch_limit", 25)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 8000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.2)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if cfg.Workflow.LocationFile != "" {
		locs, err := loadLocationFile(cfg.Workflow.LocationFile)
		if err != nil {
			return nil, err
		}
		cfg.Workflow.Locations = append(cfg.Workflow.Locations, locs...)
	}

	return &cfg, nil
}

// loadLocationFile reads a YAML list of supported municipalities/postal
// prefixes that the batch processor is allowed to work on.
func loadLocationFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read location file %s", path)
	}
	var doc struct {
		Locations []string `yaml:"locations"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrapf(err, "config: parse location file %s", path)
	}
	return doc.Locations, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
