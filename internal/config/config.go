package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. GALLEY_SERVER_PORT.
const EnvPrefix = "GALLEY_"

// Config defines server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	DB        DBConfig        `yaml:"db" envPrefix:"DB_"`
	Log       LogConfig       `yaml:"log" envPrefix:"LOG_"`
	Transport TransportConfig `yaml:"transport" envPrefix:"TRANSPORT_"`
	Auth      AuthConfig      `yaml:"auth" envPrefix:"AUTH_"`
	Workflows WorkflowsConfig `yaml:"workflows" envPrefix:"WORKFLOWS_"`
	OCC       OCCConfig       `yaml:"occ" envPrefix:"OCC_"`
	Jobs      JobsConfig      `yaml:"jobs" envPrefix:"JOBS_"`
	Notify    NotifyConfig    `yaml:"notify" envPrefix:"NOTIFY_"`
	Telemetry TelemetryConfig `yaml:"telemetry" envPrefix:"TELEMETRY_"`
}

type ServerConfig struct {
	Host string `yaml:"host" env:"HOST"`
	Port int    `yaml:"port" env:"PORT"`
}

// DBConfig names the database as a URL: sqlite:path, file:path or
// postgres://... A bare path is a SQLite file.
type DBConfig struct {
	URL string `yaml:"url" env:"URL"`
}

type LogConfig struct {
	Level string `yaml:"level" env:"LEVEL"`
	// Path sends logs to a size-capped file instead of the console.
	Path string `yaml:"path" env:"PATH"`
}

// TransportConfig selects how the MCP tools are served: "http" mounts them
// next to the REST API, "stdio" speaks MCP over stdin/stdout.
type TransportConfig struct {
	Mode string `yaml:"mode" env:"MODE"`
}

// AuthConfig controls bearer authentication. With auth disabled every call
// runs as the default principal.
type AuthConfig struct {
	Enabled       bool   `yaml:"enabled" env:"ENABLED"`
	DefaultTenant string `yaml:"default_tenant" env:"DEFAULT_TENANT"`
	DefaultActor  string `yaml:"default_actor" env:"DEFAULT_ACTOR"`
}

type WorkflowsConfig struct {
	Dir string `yaml:"dir" env:"DIR"`
}

// OCCConfig bounds optimistic concurrency retries.
type OCCConfig struct {
	MaxRetries int           `yaml:"max_retries" env:"MAX_RETRIES"`
	RetryDelay time.Duration `yaml:"retry_delay" env:"RETRY_DELAY"`
}

// JobsConfig points at the external job service. An empty endpoint logs
// jobs instead of sending them.
type JobsConfig struct {
	Endpoint          string         `yaml:"endpoint" env:"ENDPOINT"`
	Timeout           time.Duration  `yaml:"timeout" env:"TIMEOUT"`
	BackgroundTimeout time.Duration  `yaml:"background_timeout" env:"BACKGROUND_TIMEOUT"`
	Auth              JobsAuthConfig `yaml:"auth" envPrefix:"AUTH_"`
}

type JobsAuthConfig struct {
	Kind          string        `yaml:"kind" env:"KIND"`
	APIKey        string        `yaml:"api_key" env:"API_KEY"`
	APIKeyHeader  string        `yaml:"api_key_header" env:"API_KEY_HEADER"`
	SigningSecret string        `yaml:"signing_secret" env:"SIGNING_SECRET"`
	Issuer        string        `yaml:"issuer" env:"ISSUER"`
	Audience      string        `yaml:"audience" env:"AUDIENCE"`
	TokenTTL      time.Duration `yaml:"token_ttl" env:"TOKEN_TTL"`
}

type NotifyConfig struct {
	WebhookURL string        `yaml:"webhook_url" env:"WEBHOOK_URL"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// TelemetryConfig enables OTLP trace export when Endpoint is set.
type TelemetryConfig struct {
	Endpoint    string `yaml:"endpoint" env:"ENDPOINT"`
	Insecure    bool   `yaml:"insecure" env:"INSECURE"`
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		DB: DBConfig{
			URL: "sqlite:galley.db",
		},
		Log: LogConfig{
			Level: "info",
		},
		Transport: TransportConfig{
			Mode: "http",
		},
		Auth: AuthConfig{
			Enabled:       true,
			DefaultTenant: "default",
			DefaultActor:  "local",
		},
		Workflows: WorkflowsConfig{
			Dir: "workflows",
		},
		OCC: OCCConfig{
			MaxRetries: 5,
			RetryDelay: 100 * time.Millisecond,
		},
		Jobs: JobsConfig{
			Timeout:           10 * time.Second,
			BackgroundTimeout: 30 * time.Second,
			Auth:              JobsAuthConfig{Kind: "none"},
		},
		Notify: NotifyConfig{
			Timeout: 5 * time.Second,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "galley",
		},
	}
}

// Load starts from Default, applies the YAML file named by
// GALLEY_CONFIG_PATH if set, then environment overrides.
func Load() (Config, error) {
	return LoadFrom(os.Getenv(EnvPrefix + "CONFIG_PATH"))
}

// LoadFrom is Load with an explicit config file. An empty path skips the
// file.
func LoadFrom(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings no component can run with.
func (c Config) Validate() error {
	switch c.Transport.Mode {
	case "http", "stdio":
	default:
		return fmt.Errorf("invalid transport mode %q: want http or stdio", c.Transport.Mode)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.DB.URL == "" {
		return fmt.Errorf("db url is required")
	}
	if c.OCC.MaxRetries < 1 {
		return fmt.Errorf("occ max_retries must be at least 1, got %d", c.OCC.MaxRetries)
	}
	if c.OCC.RetryDelay < 0 {
		return fmt.Errorf("occ retry_delay must not be negative")
	}
	if !c.Auth.Enabled && (c.Auth.DefaultTenant == "" || c.Auth.DefaultActor == "") {
		return fmt.Errorf("auth disabled requires default_tenant and default_actor")
	}
	return nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}
