package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Provider  ProviderConfig  `yaml:"provider" mapstructure:"provider"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Jina      JinaConfig      `yaml:"jina" mapstructure:"jina"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Sweeper   SweeperConfig   `yaml:"sweeper" mapstructure:"sweeper"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ProviderConfig holds the content provider API settings shared by every
// platform dataset.
type ProviderConfig struct {
	Key               string  `yaml:"key" mapstructure:"key"`
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	RegistryPath      string  `yaml:"registry_path" mapstructure:"registry_path"`
	RequestsPerSec    float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	PollIntervalSecs  int     `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
	PollTimeoutMins   int     `yaml:"poll_timeout_mins" mapstructure:"poll_timeout_mins"`
	DownloadRetries   int     `yaml:"download_retries" mapstructure:"download_retries"`
	DownloadBackoffMs int     `yaml:"download_backoff_ms" mapstructure:"download_backoff_ms"`
}

// AnthropicConfig holds the classifier model settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// JinaConfig holds the embeddings API settings.
type JinaConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// PipelineConfig configures orchestration behavior.
type PipelineConfig struct {
	ClassifyBatchSize  int     `yaml:"classify_batch_size" mapstructure:"classify_batch_size"`
	MaxConcurrentRuns  int     `yaml:"max_concurrent_runs" mapstructure:"max_concurrent_runs"`
	RelevanceThreshold float64 `yaml:"relevance_threshold" mapstructure:"relevance_threshold"`
	Embeddings         bool    `yaml:"embeddings" mapstructure:"embeddings"`
}

// SweeperConfig configures stuck-run recovery.
type SweeperConfig struct {
	CutoffMins int `yaml:"cutoff_mins" mapstructure:"cutoff_mins"`
}

// ServerConfig configures the REST server.
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
	v.SetEnvPrefix("LISTENING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("provider.base_url", "https://api.datacollector.dev/v3")
	v.SetDefault("provider.registry_path", "platforms.yaml")
	v.SetDefault("provider.requests_per_sec", 5)
	v.SetDefault("provider.poll_interval_secs", 10)
	v.SetDefault("provider.poll_timeout_mins", 30)
	v.SetDefault("provider.download_retries", 3)
	v.SetDefault("provider.download_backoff_ms", 2000)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("jina.base_url", "https://api.jina.ai")
	v.SetDefault("jina.model", "jina-embeddings-v3")
	v.SetDefault("pipeline.classify_batch_size", 20)
	v.SetDefault("pipeline.max_concurrent_runs", 4)
	v.SetDefault("pipeline.relevance_threshold", 0.5)
	v.SetDefault("sweeper.cutoff_mins", 60)

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

	return &cfg, nil
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
