package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	DB       DBConfig
	S3       S3Config
	Log      LogConfig
	Vision   VisionConfig
	CORS     CORSConfig
	Queue    QueueConfig
	Pipeline PipelineConfig
	Climate  ClimateConfig
	Calc     CalcConfig
}

// QueueConfig holds calculation queue worker settings.
type QueueConfig struct {
	PollIntervalSecs int `mapstructure:"poll_interval_secs"`
	MaxRetries       int `mapstructure:"max_retries"`
	Concurrency      int `mapstructure:"concurrency"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// VisionProviderConfig holds settings for a single vision model provider.
type VisionProviderConfig struct {
	Provider     string `mapstructure:"provider"`
	APIKey       string `mapstructure:"api_key"`
	DefaultModel string `mapstructure:"default_model"`
	MaxRetries   int    `mapstructure:"max_retries"`
	TimeoutSecs  int    `mapstructure:"timeout_secs"`
}

// VisionConfig holds vision model settings with multi-provider support.
type VisionConfig struct {
	// Legacy flat fields (backwards-compatible)
	Provider     string `mapstructure:"provider"`
	APIKey       string `mapstructure:"api_key"`
	DefaultModel string `mapstructure:"default_model"`
	MaxRetries   int    `mapstructure:"max_retries"`
	TimeoutSecs  int    `mapstructure:"timeout_secs"`

	// Multi-provider fields
	Primary   VisionProviderConfig `mapstructure:"primary"`
	Secondary VisionProviderConfig `mapstructure:"secondary"`
}

// PrimaryConfig returns the primary vision provider config, falling back to legacy flat fields.
func (c *VisionConfig) PrimaryConfig() *VisionProviderConfig {
	if c.Primary.Provider != "" {
		return &c.Primary
	}
	return &VisionProviderConfig{
		Provider:     c.Provider,
		APIKey:       c.APIKey,
		DefaultModel: c.DefaultModel,
		MaxRetries:   c.MaxRetries,
		TimeoutSecs:  c.TimeoutSecs,
	}
}

// SecondaryConfig returns the secondary vision provider config, or nil if not configured.
func (c *VisionConfig) SecondaryConfig() *VisionProviderConfig {
	if c.Secondary.Provider != "" {
		return &c.Secondary
	}
	return nil
}

// PipelineConfig holds blueprint pipeline settings.
type PipelineConfig struct {
	MaxPages           int     `mapstructure:"max_pages"`
	PageTimeoutSecs    int     `mapstructure:"page_timeout_secs"`
	MaxVisionPages     int     `mapstructure:"max_vision_pages"`
	DefaultFeetPerInch float64 `mapstructure:"default_feet_per_inch"`
}

// ClimateConfig holds design-condition lookup settings.
type ClimateConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	TimeoutSecs     int    `mapstructure:"timeout_secs"`
	DefaultLocation string `mapstructure:"default_location"`
}

// CalcConfig holds load calculation settings.
type CalcConfig struct {
	IndoorHeatingTemp         float64 `mapstructure:"indoor_heating_temp"`
	IndoorCoolingTemp         float64 `mapstructure:"indoor_cooling_temp"`
	InfiltrationDivisorSingle float64 `mapstructure:"infiltration_divisor_single"`
	InfiltrationDivisorMulti  float64 `mapstructure:"infiltration_divisor_multi"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Environment  string        `mapstructure:"environment"`
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxOpen  int    `mapstructure:"max_open"`
	MaxIdle  int    `mapstructure:"max_idle"`
}

// DSN returns the PostgreSQL connection string.
func (d *DBConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// S3Config holds AWS S3 settings.
type S3Config struct {
	Region        string `mapstructure:"region"`
	Bucket        string `mapstructure:"bucket"`
	Endpoint      string `mapstructure:"endpoint"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	MaxFileSizeMB int64  `mapstructure:"max_file_size_mb"`
	PresignExpiry int64  `mapstructure:"presign_expiry"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from environment variables with the LOADPLAN_ prefix.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LOADPLAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Server defaults
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.environment", "development")

	// DB defaults
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "loadplan")
	v.SetDefault("db.password", "loadplan_secret")
	v.SetDefault("db.name", "loadplan_db")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_open", 25)
	v.SetDefault("db.max_idle", 10)

	// S3 defaults
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.bucket", "loadplan-uploads")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.max_file_size_mb", 50)
	v.SetDefault("s3.presign_expiry", 3600)

	// Log defaults
	v.SetDefault("log.level", "debug")
	v.SetDefault("log.format", "console")

	// CORS defaults (localhost origins for development)
	v.SetDefault("cors.allowed_origins", "http://localhost:3000,http://127.0.0.1:3000,http://localhost:3001,http://127.0.0.1:3001")

	// Queue defaults
	v.SetDefault("queue.poll_interval_secs", 10)
	v.SetDefault("queue.max_retries", 3)
	v.SetDefault("queue.concurrency", 2)

	// Vision defaults (legacy flat)
	v.SetDefault("vision.provider", "claude")
	v.SetDefault("vision.api_key", "")
	v.SetDefault("vision.default_model", "claude-sonnet-4-20250514")
	v.SetDefault("vision.max_retries", 2)
	v.SetDefault("vision.timeout_secs", 120)

	// Vision primary/secondary defaults
	v.SetDefault("vision.primary.provider", "")
	v.SetDefault("vision.primary.api_key", "")
	v.SetDefault("vision.primary.default_model", "")
	v.SetDefault("vision.primary.max_retries", 2)
	v.SetDefault("vision.primary.timeout_secs", 120)
	v.SetDefault("vision.secondary.provider", "")
	v.SetDefault("vision.secondary.api_key", "")
	v.SetDefault("vision.secondary.default_model", "")
	v.SetDefault("vision.secondary.max_retries", 2)
	v.SetDefault("vision.secondary.timeout_secs", 120)

	// Pipeline defaults. The page-size scale fallback stays off unless an
	// operator opts in with a feet-per-inch value.
	v.SetDefault("pipeline.max_pages", 40)
	v.SetDefault("pipeline.page_timeout_secs", 90)
	v.SetDefault("pipeline.max_vision_pages", 8)
	v.SetDefault("pipeline.default_feet_per_inch", 0)

	// Climate defaults
	v.SetDefault("climate.endpoint", "")
	v.SetDefault("climate.timeout_secs", 10)
	v.SetDefault("climate.default_location", "")

	// Calc defaults
	v.SetDefault("calc.indoor_heating_temp", 70.0)
	v.SetDefault("calc.indoor_cooling_temp", 75.0)
	v.SetDefault("calc.infiltration_divisor_single", 20.0)
	v.SetDefault("calc.infiltration_divisor_multi", 15.0)

	// Bind environment variables explicitly for nested keys
	envBindings := map[string]string{
		"server.port":          "LOADPLAN_SERVER_PORT",
		"server.read_timeout":  "LOADPLAN_SERVER_READ_TIMEOUT",
		"server.write_timeout": "LOADPLAN_SERVER_WRITE_TIMEOUT",
		"server.environment":   "LOADPLAN_SERVER_ENVIRONMENT",
		"db.host":              "LOADPLAN_DB_HOST",
		"db.port":              "LOADPLAN_DB_PORT",
		"db.user":              "LOADPLAN_DB_USER",
		"db.password":          "LOADPLAN_DB_PASSWORD",
		"db.name":              "LOADPLAN_DB_NAME",
		"db.sslmode":           "LOADPLAN_DB_SSLMODE",
		"db.max_open":          "LOADPLAN_DB_MAX_OPEN",
		"db.max_idle":          "LOADPLAN_DB_MAX_IDLE",
		"s3.region":            "LOADPLAN_S3_REGION",
		"s3.bucket":            "LOADPLAN_S3_BUCKET",
		"s3.endpoint":          "LOADPLAN_S3_ENDPOINT",
		"s3.access_key":        "LOADPLAN_S3_ACCESS_KEY",
		"s3.secret_key":        "LOADPLAN_S3_SECRET_KEY",
		"s3.max_file_size_mb":  "LOADPLAN_S3_MAX_FILE_SIZE_MB",
		"s3.presign_expiry":    "LOADPLAN_S3_PRESIGN_EXPIRY",
		"log.level":            "LOADPLAN_LOG_LEVEL",
		"log.format":           "LOADPLAN_LOG_FORMAT",
		"cors.allowed_origins":            "LOADPLAN_CORS_ALLOWED_ORIGINS",
		"queue.poll_interval_secs":        "LOADPLAN_QUEUE_POLL_INTERVAL_SECS",
		"queue.max_retries":               "LOADPLAN_QUEUE_MAX_RETRIES",
		"queue.concurrency":               "LOADPLAN_QUEUE_CONCURRENCY",
		"vision.provider":                 "LOADPLAN_VISION_PROVIDER",
		"vision.api_key":                  "LOADPLAN_VISION_API_KEY",
		"vision.default_model":            "LOADPLAN_VISION_DEFAULT_MODEL",
		"vision.max_retries":              "LOADPLAN_VISION_MAX_RETRIES",
		"vision.timeout_secs":             "LOADPLAN_VISION_TIMEOUT_SECS",
		"vision.primary.provider":         "LOADPLAN_VISION_PRIMARY_PROVIDER",
		"vision.primary.api_key":          "LOADPLAN_VISION_PRIMARY_API_KEY",
		"vision.primary.default_model":    "LOADPLAN_VISION_PRIMARY_DEFAULT_MODEL",
		"vision.primary.max_retries":      "LOADPLAN_VISION_PRIMARY_MAX_RETRIES",
		"vision.primary.timeout_secs":     "LOADPLAN_VISION_PRIMARY_TIMEOUT_SECS",
		"vision.secondary.provider":       "LOADPLAN_VISION_SECONDARY_PROVIDER",
		"vision.secondary.api_key":        "LOADPLAN_VISION_SECONDARY_API_KEY",
		"vision.secondary.default_model":  "LOADPLAN_VISION_SECONDARY_DEFAULT_MODEL",
		"vision.secondary.max_retries":    "LOADPLAN_VISION_SECONDARY_MAX_RETRIES",
		"vision.secondary.timeout_secs":   "LOADPLAN_VISION_SECONDARY_TIMEOUT_SECS",
		"pipeline.max_pages":              "LOADPLAN_PIPELINE_MAX_PAGES",
		"pipeline.page_timeout_secs":      "LOADPLAN_PIPELINE_PAGE_TIMEOUT_SECS",
		"pipeline.max_vision_pages":       "LOADPLAN_PIPELINE_MAX_VISION_PAGES",
		"pipeline.default_feet_per_inch":  "LOADPLAN_PIPELINE_DEFAULT_FEET_PER_INCH",
		"climate.endpoint":                "LOADPLAN_CLIMATE_ENDPOINT",
		"climate.timeout_secs":            "LOADPLAN_CLIMATE_TIMEOUT_SECS",
		"climate.default_location":        "LOADPLAN_CLIMATE_DEFAULT_LOCATION",
		"calc.indoor_heating_temp":        "LOADPLAN_CALC_INDOOR_HEATING_TEMP",
		"calc.indoor_cooling_temp":        "LOADPLAN_CALC_INDOOR_COOLING_TEMP",
		"calc.infiltration_divisor_single": "LOADPLAN_CALC_INFILTRATION_DIVISOR_SINGLE",
		"calc.infiltration_divisor_multi":  "LOADPLAN_CALC_INFILTRATION_DIVISOR_MULTI",
	}
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	cfg := &Config{}

	// Railway/Heroku/Render set a PORT env var. Use it if LOADPLAN_SERVER_PORT is not explicitly set.
	serverPort := v.GetString("server.port")
	if port := os.Getenv("PORT"); port != "" && os.Getenv("LOADPLAN_SERVER_PORT") == "" {
		serverPort = ":" + port
	}

	cfg.Server = ServerConfig{
		Port:         serverPort,
		ReadTimeout:  v.GetDuration("server.read_timeout"),
		WriteTimeout: v.GetDuration("server.write_timeout"),
		Environment:  v.GetString("server.environment"),
	}
	cfg.DB = DBConfig{
		Host:     v.GetString("db.host"),
		Port:     v.GetInt("db.port"),
		User:     v.GetString("db.user"),
		Password: v.GetString("db.password"),
		Name:     v.GetString("db.name"),
		SSLMode:  v.GetString("db.sslmode"),
		MaxOpen:  v.GetInt("db.max_open"),
		MaxIdle:  v.GetInt("db.max_idle"),
	}
	cfg.S3 = S3Config{
		Region:        v.GetString("s3.region"),
		Bucket:        v.GetString("s3.bucket"),
		Endpoint:      v.GetString("s3.endpoint"),
		AccessKey:     v.GetString("s3.access_key"),
		SecretKey:     v.GetString("s3.secret_key"),
		MaxFileSizeMB: v.GetInt64("s3.max_file_size_mb"),
		PresignExpiry: v.GetInt64("s3.presign_expiry"),
	}
	cfg.Log = LogConfig{
		Level:  v.GetString("log.level"),
		Format: v.GetString("log.format"),
	}
	// Parse CORS allowed origins from comma-separated string
	var corsOrigins []string
	for _, o := range strings.Split(v.GetString("cors.allowed_origins"), ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			corsOrigins = append(corsOrigins, o)
		}
	}
	cfg.CORS = CORSConfig{
		AllowedOrigins: corsOrigins,
	}

	cfg.Vision = VisionConfig{
		Provider:     v.GetString("vision.provider"),
		APIKey:       v.GetString("vision.api_key"),
		DefaultModel: v.GetString("vision.default_model"),
		MaxRetries:   v.GetInt("vision.max_retries"),
		TimeoutSecs:  v.GetInt("vision.timeout_secs"),
		Primary: VisionProviderConfig{
			Provider:     v.GetString("vision.primary.provider"),
			APIKey:       v.GetString("vision.primary.api_key"),
			DefaultModel: v.GetString("vision.primary.default_model"),
			MaxRetries:   v.GetInt("vision.primary.max_retries"),
			TimeoutSecs:  v.GetInt("vision.primary.timeout_secs"),
		},
		Secondary: VisionProviderConfig{
			Provider:     v.GetString("vision.secondary.provider"),
			APIKey:       v.GetString("vision.secondary.api_key"),
			DefaultModel: v.GetString("vision.secondary.default_model"),
			MaxRetries:   v.GetInt("vision.secondary.max_retries"),
			TimeoutSecs:  v.GetInt("vision.secondary.timeout_secs"),
		},
	}

	cfg.Queue = QueueConfig{
		PollIntervalSecs: v.GetInt("queue.poll_interval_secs"),
		MaxRetries:       v.GetInt("queue.max_retries"),
		Concurrency:      v.GetInt("queue.concurrency"),
	}

	cfg.Pipeline = PipelineConfig{
		MaxPages:           v.GetInt("pipeline.max_pages"),
		PageTimeoutSecs:    v.GetInt("pipeline.page_timeout_secs"),
		MaxVisionPages:     v.GetInt("pipeline.max_vision_pages"),
		DefaultFeetPerInch: v.GetFloat64("pipeline.default_feet_per_inch"),
	}

	cfg.Climate = ClimateConfig{
		Endpoint:        v.GetString("climate.endpoint"),
		TimeoutSecs:     v.GetInt("climate.timeout_secs"),
		DefaultLocation: v.GetString("climate.default_location"),
	}

	cfg.Calc = CalcConfig{
		IndoorHeatingTemp:         v.GetFloat64("calc.indoor_heating_temp"),
		IndoorCoolingTemp:         v.GetFloat64("calc.indoor_cooling_temp"),
		InfiltrationDivisorSingle: v.GetFloat64("calc.infiltration_divisor_single"),
		InfiltrationDivisorMulti:  v.GetFloat64("calc.infiltration_divisor_multi"),
	}

	return cfg, nil
}
