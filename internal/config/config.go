package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"schwabgw/internal/errors"
	"schwabgw/internal/logger"
	"schwabgw/internal/schwab"
)

// Environment variable prefixes.
const (
	SchwabPrefix  = "SCHWAB_"
	GatewayPrefix = "GATEWAY_"
)

// Environments.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// Config represents the application configuration
type Config struct {
	App         AppConfig         `yaml:"app"`
	Server      ServerConfig      `yaml:"server"`
	Schwab      SchwabConfig      `yaml:"schwab"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Monitoring  MonitoringConfig  `yaml:"monitoring"`
	CORS        CORSConfig        `yaml:"cors"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// AppConfig represents application configuration
type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Env     string `yaml:"env"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// SchwabConfig holds the brokerage credentials and upstream settings.
type SchwabConfig struct {
	ClientID       string        `yaml:"client_id"`
	ClientSecret   string        `yaml:"client_secret"`
	RedirectURI    string        `yaml:"redirect_uri"`
	RefreshToken   string        `yaml:"refresh_token"`
	AccountID      string        `yaml:"account_id"`
	BaseURL        string        `yaml:"base_url"`
	CodeVerifier   string        `yaml:"code_verifier"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// PersistenceConfig controls where rotated credentials are written.
type PersistenceConfig struct {
	TokenFile     string `yaml:"token_file"`
	EnvFile       string `yaml:"env_file"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

// MonitoringConfig represents monitoring configuration
type MonitoringConfig struct {
	PrometheusEnabled bool   `yaml:"prometheus_enabled"`
	PrometheusPath    string `yaml:"prometheus_path"`
}

// CORSConfig represents CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowed_origins"`
	AllowedMethods   []string `yaml:"allowed_methods"`
	AllowedHeaders   []string `yaml:"allowed_headers"`
	AllowCredentials bool     `yaml:"allow_credentials"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	File   string `yaml:"file"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:    "schwabgw",
			Version: "1.0.0",
			Env:     EnvProduction,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Schwab: SchwabConfig{
			BaseURL:        schwab.DefaultBaseURL,
			RequestTimeout: schwab.DefaultTimeout,
		},
		Persistence: PersistenceConfig{
			TokenFile: ".schwab_tokens.json",
			EnvFile:   ".env",
		},
		Monitoring: MonitoringConfig{
			PrometheusEnabled: true,
			PrometheusPath:    "/metrics",
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Load builds the configuration from defaults, then the optional YAML file
// at filename, then the process environment.
func Load(filename string) (*Config, error) {
	cfg := Default()

	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv builds the configuration from defaults and the environment only.
func LoadFromEnv() (*Config, error) {
	return Load("")
}

// NewEnv returns the SCHWAB_ environment manager, keyed by GATEWAY_ENCRYPTION_KEY.
func NewEnv() *EnvManager {
	return NewEnvManager(os.Getenv(GatewayPrefix+"ENCRYPTION_KEY"), SchwabPrefix)
}

func (c *Config) applyEnv() error {
	sw := NewEnv()
	gw := sw.WithPrefix(GatewayPrefix)

	var problems []string
	str := func(em *EnvManager, key string, dst *string) {
		v, err := em.GetEncryptedString(key, *dst)
		if err != nil {
			problems = append(problems, err.Error())
			return
		}
		*dst = v
	}
	num := func(em *EnvManager, key string, dst *int) {
		v, err := em.GetInt(key, *dst)
		if err != nil {
			problems = append(problems, err.Error())
			return
		}
		*dst = v
	}
	flag := func(em *EnvManager, key string, dst *bool) {
		v, err := em.GetBool(key, *dst)
		if err != nil {
			problems = append(problems, err.Error())
			return
		}
		*dst = v
	}
	dur := func(em *EnvManager, key string, dst *time.Duration) {
		v, err := em.GetDuration(key, *dst)
		if err != nil {
			problems = append(problems, err.Error())
			return
		}
		*dst = v
	}

	str(sw, "client_id", &c.Schwab.ClientID)
	str(sw, "client_secret", &c.Schwab.ClientSecret)
	str(sw, "redirect_uri", &c.Schwab.RedirectURI)
	str(sw, "refresh_token", &c.Schwab.RefreshToken)
	str(sw, "account_id", &c.Schwab.AccountID)
	str(sw, "base_url", &c.Schwab.BaseURL)
	str(sw, "code_verifier", &c.Schwab.CodeVerifier)
	dur(sw, "request_timeout", &c.Schwab.RequestTimeout)

	str(gw, "env", &c.App.Env)
	str(gw, "host", &c.Server.Host)
	num(gw, "port", &c.Server.Port)
	str(gw, "log_level", &c.Logging.Level)
	str(gw, "log_format", &c.Logging.Format)
	str(gw, "log_output", &c.Logging.Output)
	str(gw, "log_file", &c.Logging.File)
	str(gw, "token_file", &c.Persistence.TokenFile)
	str(gw, "env_file", &c.Persistence.EnvFile)
	str(gw, "redis_addr", &c.Persistence.RedisAddr)
	str(gw, "redis_password", &c.Persistence.RedisPassword)
	flag(gw, "metrics_enabled", &c.Monitoring.PrometheusEnabled)

	if origins, ok := gw.Lookup("cors_origins"); ok {
		c.CORS.AllowedOrigins = splitList(origins)
	}

	if len(problems) > 0 {
		return errors.NewConfigError("Invalid environment configuration", problems...)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate reports every missing required setting, then any malformed one.
func (c *Config) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{SchwabPrefix + "CLIENT_ID", c.Schwab.ClientID},
		{SchwabPrefix + "CLIENT_SECRET", c.Schwab.ClientSecret},
		{SchwabPrefix + "REDIRECT_URI", c.Schwab.RedirectURI},
		{SchwabPrefix + "REFRESH_TOKEN", c.Schwab.RefreshToken},
		{SchwabPrefix + "ACCOUNT_ID", c.Schwab.AccountID},
	}

	var missing []string
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.name)
		}
	}
	if len(missing) > 0 {
		return errors.NewConfigError("Missing required configuration", missing...)
	}

	var invalid []string
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		invalid = append(invalid, fmt.Sprintf("server port out of range: %d", c.Server.Port))
	}
	if c.Schwab.RequestTimeout <= 0 {
		invalid = append(invalid, "schwab request timeout must be positive")
	}
	if !strings.HasPrefix(c.Schwab.BaseURL, "http://") && !strings.HasPrefix(c.Schwab.BaseURL, "https://") {
		invalid = append(invalid, fmt.Sprintf("schwab base url must be http(s): %q", c.Schwab.BaseURL))
	}
	switch c.App.Env {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		invalid = append(invalid, fmt.Sprintf("unknown environment %q", c.App.Env))
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		invalid = append(invalid, fmt.Sprintf("unknown log level %q", c.Logging.Level))
	}
	switch c.Logging.Output {
	case "stdout", "stderr", "file":
	default:
		invalid = append(invalid, fmt.Sprintf("unknown log output %q", c.Logging.Output))
	}

	if len(invalid) > 0 {
		return errors.NewConfigError("Invalid configuration", invalid...)
	}
	return nil
}

// Credentials returns the brokerage credential set.
func (c *Config) Credentials() schwab.Credentials {
	return schwab.Credentials{
		ClientID:     c.Schwab.ClientID,
		ClientSecret: c.Schwab.ClientSecret,
		RedirectURI:  c.Schwab.RedirectURI,
		RefreshToken: c.Schwab.RefreshToken,
		CodeVerifier: c.Schwab.CodeVerifier,
		BaseURL:      c.Schwab.BaseURL,
	}
}

// IsDevelopment reports whether development-only routes should be served.
func (c *Config) IsDevelopment() bool {
	return c.App.Env == EnvDevelopment
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// LoggerConfig maps logging settings onto the logger package.
func (c *Config) LoggerConfig() logger.Config {
	lc := logger.DefaultConfig
	level := strings.ToLower(c.Logging.Level)
	if level == "warning" {
		level = "warn"
	}
	lc.Level = logger.LogLevel(level)
	lc.Format = logger.LogFormat(c.Logging.Format)
	lc.Output = c.Logging.Output
	lc.Filename = c.Logging.File
	return lc
}
