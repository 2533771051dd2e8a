package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Grading   GradingConfig   `mapstructure:"grading"`
	Structure StructureConfig `mapstructure:"structure"`
	Reports   ReportsConfig   `mapstructure:"reports"`
	Tasks     TasksConfig     `mapstructure:"tasks"`
	CORS      CORSConfig      `mapstructure:"cors"`
}

type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
}

// ProviderConfig describes one vision-language model endpoint. Gemini uses
// only APIKey and Model; OpenAI-compatible endpoints also need BaseURL.
type ProviderConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	APIKey            string `mapstructure:"api_key"`
	BaseURL           string `mapstructure:"base_url"`
	Model             string `mapstructure:"model"`
	MaxTokens         int    `mapstructure:"max_tokens"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
	Burst             int    `mapstructure:"burst"`
}

type ProvidersConfig struct {
	Gemini ProviderConfig `mapstructure:"gemini"`
	Qwen   ProviderConfig `mapstructure:"qwen"`
	GLM    ProviderConfig `mapstructure:"glm"`
}

type GradingConfig struct {
	MaxConcurrent           int           `mapstructure:"max_concurrent"`
	AttemptTimeout          time.Duration `mapstructure:"attempt_timeout"`
	RetryTimeout            time.Duration `mapstructure:"retry_timeout"`
	MalformedWeight         float64       `mapstructure:"malformed_weight"`
	DisagreementThreshold   float64       `mapstructure:"disagreement_threshold"`
	MalformedPenalty        float64       `mapstructure:"malformed_penalty"`
	LowConfidenceCap        float64       `mapstructure:"low_confidence_cap"`
	MaxImageDimension       int           `mapstructure:"max_image_dimension"`
	JPEGQuality             int           `mapstructure:"jpeg_quality"`
	RegionPaddingPx         int           `mapstructure:"region_padding_px"`
	CircuitFailureThreshold int           `mapstructure:"circuit_failure_threshold"`
	CircuitRecoveryTimeout  time.Duration `mapstructure:"circuit_recovery_timeout"`
}

type StructureConfig struct {
	ColumnGapFraction  float64 `mapstructure:"column_gap_fraction"`
	LeftMarginFraction float64 `mapstructure:"left_margin_fraction"`
	HeaderBandFraction float64 `mapstructure:"header_band_fraction"`
}

type ReportsConfig struct {
	Dir      string        `mapstructure:"dir"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type TasksConfig struct {
	Retention time.Duration `mapstructure:"retention"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	viper.SetEnvPrefix("paperscore")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "60s")
	viper.SetDefault("server.shutdown_timeout", "10s")
	viper.SetDefault("server.max_upload_bytes", 32<<20)

	viper.SetDefault("providers.gemini.enabled", true)
	viper.SetDefault("providers.gemini.model", "gemini-2.0-flash")
	viper.SetDefault("providers.gemini.requests_per_minute", 60)
	viper.SetDefault("providers.gemini.burst", 5)

	viper.SetDefault("providers.qwen.enabled", true)
	viper.SetDefault("providers.qwen.base_url", "https://dashscope.aliyuncs.com/compatible-mode/v1")
	viper.SetDefault("providers.qwen.model", "qwen-vl-max")
	viper.SetDefault("providers.qwen.max_tokens", 4096)
	viper.SetDefault("providers.qwen.requests_per_minute", 60)
	viper.SetDefault("providers.qwen.burst", 5)

	viper.SetDefault("providers.glm.enabled", false)
	viper.SetDefault("providers.glm.base_url", "https://open.bigmodel.cn/api/paas/v4")
	viper.SetDefault("providers.glm.model", "glm-4v")
	viper.SetDefault("providers.glm.max_tokens", 4096)
	viper.SetDefault("providers.glm.requests_per_minute", 60)
	viper.SetDefault("providers.glm.burst", 5)

	viper.SetDefault("grading.max_concurrent", 8)
	viper.SetDefault("grading.attempt_timeout", "90s")
	viper.SetDefault("grading.retry_timeout", "45s")
	viper.SetDefault("grading.malformed_weight", 0.5)
	viper.SetDefault("grading.disagreement_threshold", 0.2)
	viper.SetDefault("grading.malformed_penalty", 0.3)
	viper.SetDefault("grading.low_confidence_cap", 0.5)
	viper.SetDefault("grading.max_image_dimension", 1536)
	viper.SetDefault("grading.jpeg_quality", 85)
	viper.SetDefault("grading.region_padding_px", 12)
	viper.SetDefault("grading.circuit_failure_threshold", 5)
	viper.SetDefault("grading.circuit_recovery_timeout", "30s")

	viper.SetDefault("structure.column_gap_fraction", 0.05)
	viper.SetDefault("structure.left_margin_fraction", 0.18)
	viper.SetDefault("structure.header_band_fraction", 0.04)

	viper.SetDefault("reports.dir", "./reports")
	viper.SetDefault("reports.cache_ttl", "30m")

	viper.SetDefault("tasks.retention", "1h")

	viper.SetDefault("cors.allowed_origins", []string{"*"})
	viper.SetDefault("cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	viper.SetDefault("cors.allowed_headers", []string{"Accept", "Authorization", "Content-Type"})
	viper.SetDefault("cors.allow_credentials", false)
	viper.SetDefault("cors.max_age", 300)
}
