package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexhq/cortex/pkg/llm"
)

func baseConfig() *Config {
	cfg := &Config{
		LLM: LLMConfig{
			OptimizeFor: "balanced",
			MinCalls:    10,
			Tiers: []llm.TierConfig{
				{Name: "sonnet", Provider: "anthropic", Model: "claude-sonnet-4-5"},
			},
		},
		Accounts: []AccountConfig{
			{
				ID:      "work",
				Enabled: true,
				Mail: &MailConfig{
					Host:        "mail.example.com",
					Username:    "alice@example.com",
					PasswordRef: "work/imap-password",
				},
			},
		},
	}
	applyDefaults(cfg)
	return cfg
}

func TestValidateAcceptsBaseConfig(t *testing.T) {
	require.NoError(t, validate(baseConfig()))
}

func TestValidateAccountRules(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{
			name:    "no accounts",
			mutate:  func(c *Config) { c.Accounts = nil },
			wantMsg: "accounts",
		},
		{
			name: "no enabled account",
			mutate: func(c *Config) {
				c.Accounts[0].Enabled = false
			},
			wantMsg: "exactly one account must be enabled, got 0",
		},
		{
			name: "two enabled accounts",
			mutate: func(c *Config) {
				second := c.Accounts[0]
				second.ID = "personal"
				second.Mail = &MailConfig{Host: "h", Username: "other@example.com", PasswordRef: "p/x"}
				c.Accounts = append(c.Accounts, second)
			},
			wantMsg: "exactly one account must be enabled, got 2",
		},
		{
			name: "duplicate account id",
			mutate: func(c *Config) {
				second := c.Accounts[0]
				second.Enabled = false
				second.Mail = &MailConfig{Host: "h", Username: "other@example.com", PasswordRef: "p/x"}
				c.Accounts = append(c.Accounts, second)
			},
			wantMsg: "duplicate account id",
		},
		{
			name: "duplicate mail username",
			mutate: func(c *Config) {
				second := c.Accounts[0]
				second.ID = "personal"
				second.Enabled = false
				c.Accounts = append(c.Accounts, second)
			},
			wantMsg: "username already used by account 'work'",
		},
		{
			name: "default account must exist",
			mutate: func(c *Config) {
				c.DefaultAccount = "ghost"
			},
			wantMsg: "default account is not configured",
		},
		{
			name: "account without any source",
			mutate: func(c *Config) {
				c.Accounts[0].Mail = nil
			},
			wantMsg: "at least one of mail, chat, calendar",
		},
		{
			name: "missing password ref",
			mutate: func(c *Config) {
				c.Accounts[0].Mail.PasswordRef = ""
			},
			wantMsg: "mail.password_ref",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			tt.mutate(cfg)
			err := validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestValidateLLMRules(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{
			name:    "no tiers",
			mutate:  func(c *Config) { c.LLM.Tiers = nil },
			wantMsg: "tiers",
		},
		{
			name:    "unknown optimizer",
			mutate:  func(c *Config) { c.LLM.OptimizeFor = "vibes" },
			wantMsg: "optimize_for",
		},
		{
			name: "duplicate tier name",
			mutate: func(c *Config) {
				c.LLM.Tiers = append(c.LLM.Tiers, c.LLM.Tiers[0])
			},
			wantMsg: "duplicate tier name",
		},
		{
			name: "unknown provider",
			mutate: func(c *Config) {
				c.LLM.Tiers[0].Provider = "cohere"
			},
			wantMsg: "provider",
		},
		{
			name: "missing model",
			mutate: func(c *Config) {
				c.LLM.Tiers[0].Model = ""
			},
			wantMsg: "model",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			tt.mutate(cfg)
			err := validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := baseConfig()
	cfg.Accounts[0].Enabled = false
	cfg.LLM.Tiers = nil
	cfg.API.Listen = "8080"

	err := validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "enabled")
	assert.Contains(t, err.Error(), "tiers")
	assert.Contains(t, err.Error(), "host:port")
}
