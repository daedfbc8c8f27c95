package config

import (
	"os"
	"strconv"
	"strings"

	"k8s.io/apimachinery/pkg/util/validation/field"
)

// Environment variable names for client configuration
const (
	EnvAppID            = "PRIVY_APP_ID"
	EnvAppSecret        = "PRIVY_APP_SECRET"
	EnvAuthorizationKey = "PRIVY_AUTHORIZATION_KEY"
	EnvBaseURL          = "PRIVY_BASE_URL"
	EnvKMSKeyID         = "PRIVY_KMS_KEY_ID"
	EnvDebug            = "PRIVY_DEBUG"
)

// DefaultBaseURL is the production API endpoint.
const DefaultBaseURL = "https://api.privy.io"

// Config holds the client configuration, typically loaded from the
// environment. AuthorizationKeys and KMSKeyID are optional; without either,
// requests are sent unsigned.
type Config struct {
	AppID     string
	AppSecret string
	BaseURL   string

	// AuthorizationKeys are base64 PKCS#8 P-256 authorization private keys,
	// with or without the "wallet-auth:" prefix.
	AuthorizationKeys []string

	// KMSKeyID names an AWS KMS key to sign with instead of (or in
	// addition to) local authorization keys.
	KMSKeyID string

	Debug bool
}

// NewConfigFromEnv loads the configuration from environment variables.
// PRIVY_AUTHORIZATION_KEY accepts multiple keys separated by commas.
func NewConfigFromEnv() *Config {
	cfg := &Config{
		AppID:     os.Getenv(EnvAppID),
		AppSecret: os.Getenv(EnvAppSecret),
		BaseURL:   os.Getenv(EnvBaseURL),
		KMSKeyID:  os.Getenv(EnvKMSKeyID),
	}

	if raw := os.Getenv(EnvAuthorizationKey); raw != "" {
		for _, key := range strings.Split(raw, ",") {
			if key = strings.TrimSpace(key); key != "" {
				cfg.AuthorizationKeys = append(cfg.AuthorizationKeys, key)
			}
		}
	}

	if v := os.Getenv(EnvDebug); v != "" {
		debug, err := strconv.ParseBool(v)
		cfg.Debug = err == nil && debug
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return cfg
}

func (c *Config) Validate() error {
	var allErrors field.ErrorList
	if c.AppID == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("appID"), "app ID is required"))
	}
	if c.AppSecret == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("appSecret"), "app secret is required"))
	}
	if c.BaseURL == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("baseURL"), "base URL is required"))
	} else if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		allErrors = append(allErrors, field.Invalid(field.NewPath("baseURL"), c.BaseURL, "must be an http or https URL"))
	}
	for i, key := range c.AuthorizationKeys {
		if key == "" {
			allErrors = append(allErrors, field.Invalid(field.NewPath("authorizationKeys").Index(i), key, "key must not be empty"))
		}
	}
	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}
