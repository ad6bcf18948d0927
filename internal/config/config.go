// Package config loads service configuration from an optional YAML file,
// then applies LOYALTY_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dukerupert/loyalty/internal/model"
)

type Config struct {
	Port    string `yaml:"port"`
	DBPath  string `yaml:"db_path"`
	BaseURL string `yaml:"base_url"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// AdminTokenHash is a bcrypt hash of the operator token that may act on
	// any merchant.
	AdminTokenHash string   `yaml:"admin_token_hash"`
	AllowedOrigins []string `yaml:"allowed_origins"`

	Email   EmailConfig   `yaml:"email"`
	Push    PushConfig    `yaml:"push"`
	Loyalty LoyaltyConfig `yaml:"loyalty"`
	Archive ArchiveConfig `yaml:"archive"`

	// WebhookRateLimit is the number of webhook requests a merchant may make
	// per minute.
	WebhookRateLimit int `yaml:"webhook_rate_limit"`
}

type EmailConfig struct {
	PostmarkToken string `yaml:"postmark_token"`
	From          string `yaml:"from"`
	OperatorEmail string `yaml:"operator_email"`
}

type PushConfig struct {
	VAPIDPublicKey  string `yaml:"vapid_public_key"`
	VAPIDPrivateKey string `yaml:"vapid_private_key"`
	Subscriber      string `yaml:"subscriber"`
}

type LoyaltyConfig struct {
	RewardPolicy  string        `yaml:"reward_policy"`
	NotifyTimeout time.Duration `yaml:"notify_timeout"`
	LedgerRetries uint64        `yaml:"ledger_retries"`
	LedgerBackoff time.Duration `yaml:"ledger_backoff"`
}

type ArchiveConfig struct {
	Endpoint   string        `yaml:"endpoint"`
	Bucket     string        `yaml:"bucket"`
	Region     string        `yaml:"region"`
	AccessKey  string        `yaml:"access_key"`
	SecretKey  string        `yaml:"secret_key"`
	Prefix     string        `yaml:"prefix"`
	Passphrase string        `yaml:"passphrase"`
	Interval   time.Duration `yaml:"interval"`
}

func Default() *Config {
	return &Config{
		Port:      "8080",
		DBPath:    "loyalty.db",
		BaseURL:   "http://localhost:8080",
		LogLevel:  "info",
		LogFormat: "text",
		Loyalty: LoyaltyConfig{
			RewardPolicy:  string(model.RewardPolicyOldest),
			NotifyTimeout: 10 * time.Second,
			LedgerRetries: 5,
			LedgerBackoff: 10 * time.Millisecond,
		},
		Archive: ArchiveConfig{
			Region: "us-east-1",
			Prefix: "loyalty",
		},
		WebhookRateLimit: 120,
	}
}

// Load reads path when it is non-empty, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup("LOYALTY_" + key); ok {
			*dst = v
		}
	}
	str("PORT", &c.Port)
	str("DB_PATH", &c.DBPath)
	str("BASE_URL", &c.BaseURL)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	str("ADMIN_TOKEN_HASH", &c.AdminTokenHash)
	str("POSTMARK_TOKEN", &c.Email.PostmarkToken)
	str("EMAIL_FROM", &c.Email.From)
	str("OPERATOR_EMAIL", &c.Email.OperatorEmail)
	str("VAPID_PUBLIC_KEY", &c.Push.VAPIDPublicKey)
	str("VAPID_PRIVATE_KEY", &c.Push.VAPIDPrivateKey)
	str("VAPID_SUBSCRIBER", &c.Push.Subscriber)
	str("REWARD_POLICY", &c.Loyalty.RewardPolicy)
	str("S3_ENDPOINT", &c.Archive.Endpoint)
	str("S3_BUCKET", &c.Archive.Bucket)
	str("S3_REGION", &c.Archive.Region)
	str("S3_ACCESS_KEY", &c.Archive.AccessKey)
	str("S3_SECRET_KEY", &c.Archive.SecretKey)
	str("S3_PREFIX", &c.Archive.Prefix)
	str("ARCHIVE_PASSPHRASE", &c.Archive.Passphrase)

	if v, ok := lookup("LOYALTY_ALLOWED_ORIGINS"); ok {
		c.AllowedOrigins = splitList(v)
	}

	var errs []error
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup("LOYALTY_" + key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("LOYALTY_%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	dur("NOTIFY_TIMEOUT", &c.Loyalty.NotifyTimeout)
	dur("LEDGER_BACKOFF", &c.Loyalty.LedgerBackoff)
	dur("ARCHIVE_INTERVAL", &c.Archive.Interval)

	if v, ok := lookup("LOYALTY_LEDGER_RETRIES"); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("LOYALTY_LEDGER_RETRIES: %w", err))
		} else {
			c.Loyalty.LedgerRetries = n
		}
	}
	if v, ok := lookup("LOYALTY_WEBHOOK_RATE_LIMIT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("LOYALTY_WEBHOOK_RATE_LIMIT: %w", err))
		} else {
			c.WebhookRateLimit = n
		}
	}
	return errors.Join(errs...)
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

func (c *Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("port is required"))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path is required"))
	}
	switch model.RewardPolicy(c.Loyalty.RewardPolicy) {
	case model.RewardPolicyOldest, model.RewardPolicyNewest, model.RewardPolicyExpiringSoonest:
	default:
		errs = append(errs, fmt.Errorf("unknown reward_policy %q", c.Loyalty.RewardPolicy))
	}
	if c.WebhookRateLimit <= 0 {
		errs = append(errs, errors.New("webhook_rate_limit must be positive"))
	}
	if (c.Push.VAPIDPublicKey == "") != (c.Push.VAPIDPrivateKey == "") {
		errs = append(errs, errors.New("vapid public and private keys must be set together"))
	}
	if c.Archive.Bucket != "" && c.Archive.Passphrase == "" {
		errs = append(errs, errors.New("archive passphrase is required when a bucket is set"))
	}
	return errors.Join(errs...)
}

// EmailEnabled reports whether Postmark delivery is configured.
func (c *Config) EmailEnabled() bool {
	return c.Email.PostmarkToken != "" && c.Email.From != ""
}
