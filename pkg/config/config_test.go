package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv(EnvAppID, "app_1")
	t.Setenv(EnvAppSecret, "secret")
	t.Setenv(EnvAuthorizationKey, "wallet-auth:key1, key2 ,")
	t.Setenv(EnvDebug, "true")

	cfg := NewConfigFromEnv()
	assert.Equal(t, "app_1", cfg.AppID)
	assert.Equal(t, "secret", cfg.AppSecret)
	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, []string{"wallet-auth:key1", "key2"}, cfg.AuthorizationKeys)
	assert.True(t, cfg.Debug)
	require.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:   "valid minimal",
			config: Config{AppID: "app_1", AppSecret: "secret", BaseURL: DefaultBaseURL},
		},
		{
			name:    "missing app ID",
			config:  Config{AppSecret: "secret", BaseURL: DefaultBaseURL},
			wantErr: true,
		},
		{
			name:    "missing app secret",
			config:  Config{AppID: "app_1", BaseURL: DefaultBaseURL},
			wantErr: true,
		},
		{
			name:    "bad base URL",
			config:  Config{AppID: "app_1", AppSecret: "secret", BaseURL: "ftp://x"},
			wantErr: true,
		},
		{
			name:    "empty authorization key entry",
			config:  Config{AppID: "app_1", AppSecret: "secret", BaseURL: DefaultBaseURL, AuthorizationKeys: []string{""}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
