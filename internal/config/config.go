// Package config handles application configuration loading from YAML files and environment variables.
package config

import (
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	contextutils "triageapp/internal/utils"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig `json:"server" yaml:"server"`

	// Database configuration
	Database DatabaseConfig `json:"database" yaml:"database"`

	// Redis backs the analysis job queue and rate limiting; both are optional
	Redis RedisConfig `json:"redis" yaml:"redis"`

	// Media storage configuration
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// AI triage configuration
	Analysis AnalysisConfig `json:"analysis" yaml:"analysis"`

	// Report lifecycle configuration
	Reports ReportsConfig `json:"reports" yaml:"reports"`

	// Worker configuration
	Worker WorkerConfig `json:"worker" yaml:"worker"`

	// OpenTelemetry Configuration
	OpenTelemetry OpenTelemetryConfig `json:"open_telemetry" yaml:"open_telemetry"`

	// Email Configuration
	Email EmailConfig `json:"email" yaml:"email"`

	// Internal fields
	IsTest bool `json:"is_test" yaml:"is_test"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port            string   `json:"port" yaml:"port"`
	WorkerPort      string   `json:"worker_port" yaml:"worker_port"`
	SessionSecret   string   `json:"session_secret" yaml:"session_secret"`
	Debug           bool     `json:"debug" yaml:"debug"`
	LogLevel        string   `json:"log_level" yaml:"log_level"`
	BackendBaseURL  string   `json:"backend_base_url" yaml:"backend_base_url"`
	AppBaseURL      string   `json:"app_base_url" yaml:"app_base_url"`
	CORSOrigins     []string `json:"cors_origins" yaml:"cors_origins"`
	MaxHistory      int      `json:"max_history" yaml:"max_history"`
	MaxActivityLogs int      `json:"max_activity_logs" yaml:"max_activity_logs"`
	// CircuitBreaker sheds API traffic with 503 after repeated 5xx responses
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker" yaml:"circuit_breaker"`
}

// CircuitBreakerConfig configures load shedding on the API server
type CircuitBreakerConfig struct {
	Enabled   bool          `json:"enabled" yaml:"enabled"`
	Threshold int           `json:"threshold" yaml:"threshold" validate:"gte=0"`
	Cooldown  time.Duration `json:"cooldown" yaml:"cooldown" validate:"gte=0"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	URL             string        `json:"url" yaml:"url"`
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns" validate:"gte=0"`       // Maximum number of open connections to the database
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns" validate:"gte=0"`       // Maximum number of idle connections in the pool
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime" validate:"gte=0"` // Maximum amount of time a connection may be reused
}

// RedisConfig represents the optional Redis connection
type RedisConfig struct {
	URL      string `json:"url" yaml:"url"`
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db" validate:"gte=0"`
	QueueKey string `json:"queue_key" yaml:"queue_key"`
}

// Enabled reports whether a Redis connection has been configured
func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Addr != ""
}

// StorageConfig selects and configures the media storage driver
type StorageConfig struct {
	Driver             string                  `json:"driver" yaml:"driver" validate:"omitempty,oneof=s3 filesystem"`
	PresignExpiry      time.Duration           `json:"presign_expiry" yaml:"presign_expiry"`
	MaxScreenshotBytes int64                   `json:"max_screenshot_bytes" yaml:"max_screenshot_bytes" validate:"gte=0"`
	MaxVideoBytes      int64                   `json:"max_video_bytes" yaml:"max_video_bytes" validate:"gte=0"`
	S3                 S3StorageConfig         `json:"s3" yaml:"s3"`
	Filesystem         FilesystemStorageConfig `json:"filesystem" yaml:"filesystem"`
}

// S3StorageConfig configures the S3 media driver
type S3StorageConfig struct {
	Bucket         string `json:"bucket" yaml:"bucket"`
	Region         string `json:"region" yaml:"region"`
	Endpoint       string `json:"endpoint" yaml:"endpoint"`
	ForcePathStyle bool   `json:"force_path_style" yaml:"force_path_style"`
	PublicBaseURL  string `json:"public_base_url" yaml:"public_base_url"`
}

// FilesystemStorageConfig configures the local media driver
type FilesystemStorageConfig struct {
	Root          string `json:"root" yaml:"root"`
	PublicBaseURL string `json:"public_base_url" yaml:"public_base_url"`
}

// AnalysisConfig configures the AI triage provider
type AnalysisConfig struct {
	Provider      ProviderConfig `json:"provider" yaml:"provider"`
	MaxConcurrent int            `json:"max_concurrent" yaml:"max_concurrent" validate:"gte=0"`
	Temperature   float64        `json:"temperature" yaml:"temperature" validate:"gte=0,lte=2"`
	DocsCatalog   string         `json:"docs_catalog" yaml:"docs_catalog"`
}

// ProviderConfig defines an OpenAI-compatible chat completions provider
type ProviderConfig struct {
	Name               string `json:"name" yaml:"name"`
	URL                string `json:"url,omitempty" yaml:"url,omitempty" validate:"omitempty,url"`
	APIKey             string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Model              string `json:"model" yaml:"model"`
	MaxTokens          int    `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty" validate:"gte=0"`
	SupportsJSONSchema bool   `json:"supports_json_schema,omitempty" yaml:"supports_json_schema,omitempty"`
	SupportsVision     bool   `json:"supports_vision,omitempty" yaml:"supports_vision,omitempty"`
}

// ReportsConfig represents report lifecycle settings
type ReportsConfig struct {
	AutoCloseAfter     time.Duration `json:"auto_close_after" yaml:"auto_close_after"`
	StaffEmail         string        `json:"staff_email" yaml:"staff_email" validate:"omitempty,email"`
	RateLimitWindow    time.Duration `json:"rate_limit_window" yaml:"rate_limit_window"`
	MaxReportsPerUser  int           `json:"max_reports_per_window" yaml:"max_reports_per_window" validate:"gte=0"`
	MaxMessagesPerUser int           `json:"max_messages_per_window" yaml:"max_messages_per_window" validate:"gte=0"`
}

// WorkerConfig represents analysis worker settings
type WorkerConfig struct {
	PollInterval        time.Duration `json:"poll_interval" yaml:"poll_interval"`
	MaintenanceSchedule string        `json:"maintenance_schedule" yaml:"maintenance_schedule"`
	StaleJobAfter       time.Duration `json:"stale_job_after" yaml:"stale_job_after"`
	// Embedded runs the worker inside the API server process, fed by an in-process queue when Redis is off
	Embedded bool `json:"embedded" yaml:"embedded"`
}

// OpenTelemetryConfig holds all OpenTelemetry-related configuration
type OpenTelemetryConfig struct {
	Endpoint       string            `json:"endpoint" yaml:"endpoint"`               // Default: "http://localhost:4317"
	Protocol       string            `json:"protocol" yaml:"protocol"`               // "grpc" or "http", default: "grpc"
	Insecure       bool              `json:"insecure" yaml:"insecure"`               // Default: true (for localhost)
	Headers        map[string]string `json:"headers" yaml:"headers"`                 // For authenticated endpoints
	ServiceName    string            `json:"service_name" yaml:"service_name"`       // Default: "triage-backend" or "triage-worker"
	ServiceVersion string            `json:"service_version" yaml:"service_version"` // From version package
	EnableTracing  bool              `json:"enable_tracing" yaml:"enable_tracing"`
	EnableMetrics  bool              `json:"enable_metrics" yaml:"enable_metrics"`
	EnableLogging  bool              `json:"enable_logging" yaml:"enable_logging"`
	SamplingRate   float64           `json:"sampling_rate" yaml:"sampling_rate" validate:"gte=0,lte=1"` // Default: 1.0 (100%)
	UseAutoSDK     bool              `json:"use_auto_sdk" yaml:"use_auto_sdk"`
	// Environment becomes the deployment.environment resource attribute; "development" switches to console logs
	Environment     string        `json:"environment" yaml:"environment"`
	MetricsInterval time.Duration `json:"metrics_interval" yaml:"metrics_interval"`
	// LogLevel defaults to server.log_level
	LogLevel string `json:"log_level" yaml:"log_level"`
}

// EmailConfig represents email/SMTP configuration
type EmailConfig struct {
	SMTP    SMTPConfig `json:"smtp" yaml:"smtp"`
	Enabled bool       `json:"enabled" yaml:"enabled"`
}

// SMTPConfig represents SMTP server configuration
type SMTPConfig struct {
	Host        string `json:"host" yaml:"host"`
	Port        int    `json:"port" yaml:"port"`
	Username    string `json:"username" yaml:"username"`
	Password    string `json:"password" yaml:"password"`
	FromAddress string `json:"from_address" yaml:"from_address"`
	FromName    string `json:"from_name" yaml:"from_name"`
}

var configValidator = validator.New()

// NewConfig loads configuration from YAML file first, then overrides with environment variables
func NewConfig() (result0 *Config, err error) {
	config, err := loadConfigWithOverrides()
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to load config: %w", err)
	}

	config.overrideFromEnv()
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the struct-level constraints of the configuration
func (c *Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return contextutils.WrapError(contextutils.ErrInvalidInput, "invalid configuration: "+err.Error())
	}
	return nil
}

// applyDefaults fills in values that have a sensible default when left empty
func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.WorkerPort == "" {
		c.Server.WorkerPort = "8081"
	}
	if c.Server.MaxHistory == 0 {
		c.Server.MaxHistory = 50
	}
	if c.Server.MaxActivityLogs == 0 {
		c.Server.MaxActivityLogs = 200
	}
	if c.OpenTelemetry.MetricsInterval == 0 {
		c.OpenTelemetry.MetricsInterval = DefaultMetricsInterval
	}
	if c.OpenTelemetry.LogLevel == "" {
		c.OpenTelemetry.LogLevel = c.Server.LogLevel
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "filesystem"
	}
	if c.Storage.PresignExpiry == 0 {
		c.Storage.PresignExpiry = DefaultPresignExpiry
	}
	if c.Storage.MaxScreenshotBytes == 0 {
		c.Storage.MaxScreenshotBytes = DefaultMaxScreenshotBytes
	}
	if c.Storage.MaxVideoBytes == 0 {
		c.Storage.MaxVideoBytes = DefaultMaxVideoBytes
	}
	if c.Storage.Filesystem.Root == "" {
		c.Storage.Filesystem.Root = "data/media"
	}
	if c.Redis.QueueKey == "" {
		c.Redis.QueueKey = DefaultAnalysisQueueKey
	}
	if c.Analysis.MaxConcurrent == 0 {
		c.Analysis.MaxConcurrent = 2
	}
	if c.Reports.AutoCloseAfter == 0 {
		c.Reports.AutoCloseAfter = DefaultAutoCloseAfter
	}
	if c.Reports.RateLimitWindow == 0 {
		c.Reports.RateLimitWindow = time.Hour
	}
	if c.Worker.PollInterval == 0 {
		c.Worker.PollInterval = WorkerCheckInterval
	}
	if c.Worker.MaintenanceSchedule == "" {
		c.Worker.MaintenanceSchedule = "@hourly"
	}
	if c.Worker.StaleJobAfter == 0 {
		c.Worker.StaleJobAfter = 2 * AIRequestTimeout
	}
}

// overrideFromEnv overrides config values with environment variables using reflection
func (c *Config) overrideFromEnv() {
	overrideStructFromEnv(c)
}

// overrideStructFromEnv recursively overrides struct fields with environment variables
func overrideStructFromEnv(v interface{}) {
	overrideStructFromEnvWithPrefix(v, "")
}

var durationType = reflect.TypeOf(time.Duration(0))

// overrideStructFromEnvWithPrefix recursively overrides struct fields with environment variables.
// The variable name is the upper-cased yaml tag path, e.g. STORAGE_S3_BUCKET.
func overrideStructFromEnvWithPrefix(v interface{}, prefix string) {
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	if val.Kind() != reflect.Struct {
		return
	}

	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		if !field.CanSet() {
			continue
		}

		yamlTag := strings.Split(fieldType.Tag.Get("yaml"), ",")[0]
		if yamlTag == "" || yamlTag == "-" {
			continue
		}

		envKey := strings.ToUpper(strings.ReplaceAll(yamlTag, "-", "_"))
		if prefix != "" {
			envKey = prefix + "_" + envKey
		}

		if field.Type() == durationType {
			if envVal := os.Getenv(envKey); envVal != "" {
				if d, err := time.ParseDuration(envVal); err == nil {
					field.SetInt(int64(d))
				}
			}
			continue
		}

		switch field.Kind() {
		case reflect.String:
			if envVal := os.Getenv(envKey); envVal != "" {
				field.SetString(envVal)
			}
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if envVal := os.Getenv(envKey); envVal != "" {
				if intVal, err := strconv.ParseInt(envVal, 10, 64); err == nil {
					field.SetInt(intVal)
				}
			}
		case reflect.Float32, reflect.Float64:
			if envVal := os.Getenv(envKey); envVal != "" {
				if floatVal, err := strconv.ParseFloat(envVal, 64); err == nil {
					field.SetFloat(floatVal)
				}
			}
		case reflect.Bool:
			if envVal := os.Getenv(envKey); envVal != "" {
				if boolVal, err := strconv.ParseBool(envVal); err == nil {
					field.SetBool(boolVal)
				}
			}
		case reflect.Slice:
			if envVal := os.Getenv(envKey); envVal != "" {
				if field.Type().Elem().Kind() == reflect.String {
					slice := strings.Split(envVal, ",")
					field.Set(reflect.ValueOf(slice))
				}
			}
		case reflect.Struct:
			if field.CanAddr() {
				overrideStructFromEnvWithPrefix(field.Addr().Interface(), envKey)
			}
		case reflect.Ptr:
			if !field.IsNil() && field.Elem().Kind() == reflect.Struct {
				overrideStructFromEnvWithPrefix(field.Interface(), envKey)
			}
		}
	}
}

// loadConfigWithOverrides loads the config file named by TRIAGE_CONFIG_FILE, falling back to config.yaml
func loadConfigWithOverrides() (result0 *Config, err error) {
	if envPath := os.Getenv("TRIAGE_CONFIG_FILE"); envPath != "" {
		config, err := loadConfigFromFile(envPath)
		if err != nil {
			return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to load config from %s: %w", envPath, err)
		}
		return config, nil
	}

	return loadConfigFromFile("config.yaml")
}

// loadConfigFromFile loads configuration from a specific file
func loadConfigFromFile(path string) (result0 *Config, err error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := yaml.Unmarshal(yamlFile, &config); err != nil {
		return nil, err
	}

	return &config, nil
}
