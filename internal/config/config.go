package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	koanf "github.com/knadh/koanf/v2"
)

// Config holds all runtime configuration. Values come from defaults, an optional
// YAML file (CONFIG_FILE) and environment variables, in increasing precedence.
type Config struct {
	AppPort        string   `koanf:"app_port" validate:"required,numeric"`
	AppEnv         string   `koanf:"app_env" validate:"oneof=development test staging production"`
	LogDir         string   `koanf:"log_dir"`
	LogTee         bool     `koanf:"log_tee"`
	AllowedOrigins []string `koanf:"allowed_origins"` // CORS allowed origins
	// TrustedProxies are the peers (IPs or CIDRs) whose X-Forwarded-For is believed.
	TrustedProxies []string `koanf:"trusted_proxies" validate:"dive,cidr|ip"`

	JWTSecret       string        `koanf:"jwt_secret"` // empty is reported at sign time, not at startup
	AccessTokenTTL  time.Duration `koanf:"access_token_ttl" validate:"gt=0"`
	RefreshTokenTTL time.Duration `koanf:"refresh_token_ttl" validate:"gt=0"`
	CookieMaxAge    time.Duration `koanf:"cookie_max_age" validate:"gt=0"`
	CookieSecure    bool          `koanf:"cookie_secure"`

	TwoFactorRoles     []string      `koanf:"two_factor_roles"`
	CodeTTL            time.Duration `koanf:"code_ttl" validate:"gt=0"`
	CodeMaxAttempts    int           `koanf:"code_max_attempts" validate:"gte=1"`
	CodeResendCooldown time.Duration `koanf:"code_resend_cooldown" validate:"gte=0"`
	CodeRetention      time.Duration `koanf:"code_retention" validate:"gte=0"`
	CodeStore          string        `koanf:"code_store" validate:"oneof=memory redis dynamo"`
	CodeStoreCapacity  int           `koanf:"code_store_capacity" validate:"gte=0"`
	CodeSweepInterval  time.Duration `koanf:"code_sweep_interval" validate:"gt=0"`

	RedisAddr     string `koanf:"redis_addr" validate:"required_if=CodeStore redis"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`

	AWSRegion       string `koanf:"aws_region"`
	AWSEndpointURL  string `koanf:"aws_endpoint_url"` // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID  string `koanf:"aws_access_key_id"`
	AWSSecretKey    string `koanf:"aws_secret_access_key"`
	DynamoCodeTable string `koanf:"dynamo_table_codes" validate:"required_if=CodeStore dynamo"`
	DynamoBootstrap bool   `koanf:"dynamo_bootstrap"`
	TemplateBucket  string `koanf:"template_bucket"` // empty means embedded templates only
	TemplatePrefix  string `koanf:"template_prefix"`
	SNSRegion       string `koanf:"sns_region"`
	SMSEnabled      bool   `koanf:"sms_enabled"`

	SMTPHost     string `koanf:"smtp_host"`
	SMTPPort     int    `koanf:"smtp_port"`
	SMTPUsername string `koanf:"smtp_username"`
	SMTPPassword string `koanf:"smtp_password"`
	SMTPFrom     string `koanf:"smtp_from" validate:"omitempty,email"`
	SMTPFromName string `koanf:"smtp_from_name"`

	BackendMode    string        `koanf:"backend_mode" validate:"oneof=rest mock"`
	BackendURL     string        `koanf:"backend_url" validate:"omitempty,url"`
	BackendTimeout time.Duration `koanf:"backend_timeout" validate:"gt=0"`
	MockUsers      string        `koanf:"mock_users"` // email|password|role|name, comma separated

	RateLimitRPS   float64 `koanf:"rate_limit_rps" validate:"gt=0"`
	RateLimitBurst int     `koanf:"rate_limit_burst" validate:"gte=1"`
}

var defaults = map[string]interface{}{
	"app_port":             "3000",
	"app_env":              "development",
	"log_dir":              "./logs",
	"log_tee":              true,
	"allowed_origins":      "*",
	"access_token_ttl":     24 * time.Hour,
	"refresh_token_ttl":    6 * time.Hour,
	"cookie_max_age":       7 * 24 * time.Hour,
	"cookie_secure":        false,
	"two_factor_roles":     "*",
	"code_ttl":             10 * time.Minute,
	"code_max_attempts":    3,
	"code_resend_cooldown": 30 * time.Second,
	"code_retention":       15 * time.Minute,
	"code_store":           "memory",
	"code_store_capacity":  100000,
	"code_sweep_interval":  time.Minute,
	"redis_db":             0,
	"aws_region":           "us-east-1",
	"dynamo_table_codes":   "two_factor_codes",
	"dynamo_bootstrap":     false,
	"template_prefix":      "templates/",
	"sns_region":           "us-east-1",
	"sms_enabled":          false,
	"smtp_port":            587,
	"smtp_from":            "noreply@example.com",
	"smtp_from_name":       "Equity Platform",
	"backend_mode":         "mock",
	"backend_timeout":      10 * time.Second,
	"rate_limit_rps":       5.0,
	"rate_limit_burst":     10,
}

var v = validator.New()

// Load builds the configuration from defaults, the optional CONFIG_FILE YAML file
// and the environment, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")
	for key, val := range defaults {
		if err := k.Set(key, val); err != nil {
			return nil, fmt.Errorf("config default %s: %w", key, err)
		}
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	// Env overrides: SMTP_HOST → smtp_host. Unknown variables are ignored.
	if err := k.Load(env.Provider("", ".", func(s string) string {
		key := strings.ToLower(s)
		if _, known := defaults[key]; known || isOptionalKey(key) {
			return key
		}
		return ""
	}), nil); err != nil {
		return nil, fmt.Errorf("config env overlay: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal: %w", err)
	}
	cfg.AllowedOrigins = splitList(cfg.AllowedOrigins)
	cfg.TwoFactorRoles = splitList(cfg.TwoFactorRoles)
	cfg.TrustedProxies = splitList(cfg.TrustedProxies)

	if err := v.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	if cfg.BackendMode == "rest" && cfg.BackendURL == "" {
		return nil, fmt.Errorf("config validation: backend_url is required when backend_mode is rest")
	}
	return &cfg, nil
}

// optionalKeys have no default but are still read from the environment.
var optionalKeys = []string{
	"jwt_secret",
	"redis_addr", "redis_password",
	"aws_endpoint_url", "aws_access_key_id", "aws_secret_access_key",
	"template_bucket",
	"smtp_host", "smtp_username", "smtp_password",
	"backend_url", "mock_users",
	"trusted_proxies",
}

func isOptionalKey(key string) bool {
	for _, k := range optionalKeys {
		if k == key {
			return true
		}
	}
	return false
}

// splitList normalises list values that arrive either as YAML sequences or as
// a single comma separated string.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
