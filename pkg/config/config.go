// Package config loads and validates the cortex.yaml configuration:
// accounts, LLM tiers, queue sizing, API surface, and masking patterns.
// Credential values never appear in the file; accounts carry credential
// references resolved through the secrets store at use time.
package config

import (
	"fmt"

	"github.com/cortexhq/cortex/pkg/llm"
	"github.com/cortexhq/cortex/pkg/masking"
	"github.com/cortexhq/cortex/pkg/queue"
)

// FolderConfig names the mail folders actions move messages into.
type FolderConfig struct {
	Archive   string `yaml:"archive"`
	Trash     string `yaml:"trash"`
	Reference string `yaml:"reference"`
}

// DefaultFolderConfig returns the standard IMAP folder names.
func DefaultFolderConfig() FolderConfig {
	return FolderConfig{
		Archive:   "Archive",
		Trash:     "Trash",
		Reference: "Reference",
	}
}

// MailConfig is the per-account mail endpoint. PasswordRef is a secrets-store
// key, never the credential itself.
type MailConfig struct {
	Host        string       `yaml:"host"`
	Port        int          `yaml:"port"`
	Username    string       `yaml:"username"`
	PasswordRef string       `yaml:"password_ref"`
	Folders     FolderConfig `yaml:"folders"`
}

// ChatConfig is the per-account chat endpoint.
type ChatConfig struct {
	Endpoint string `yaml:"endpoint"`
	Username string `yaml:"username"`
	TokenRef string `yaml:"token_ref"`
}

// CalendarConfig is the per-account calendar endpoint.
type CalendarConfig struct {
	Endpoint string `yaml:"endpoint"`
	Username string `yaml:"username"`
	TokenRef string `yaml:"token_ref"`
}

// AccountConfig is one configured account. Exactly one account in the list
// must be enabled.
type AccountConfig struct {
	ID          string          `yaml:"id"`
	DisplayName string          `yaml:"display_name"`
	Enabled     bool            `yaml:"enabled"`
	Mail        *MailConfig     `yaml:"mail,omitempty"`
	Chat        *ChatConfig     `yaml:"chat,omitempty"`
	Calendar    *CalendarConfig `yaml:"calendar,omitempty"`
}

// APIConfig configures the HTTP/WebSocket surface.
type APIConfig struct {
	Listen         string   `yaml:"listen"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	AuthTokenRef   string   `yaml:"auth_token_ref"`
}

// LLMConfig configures the model router.
type LLMConfig struct {
	// OptimizeFor selects the provider-tracker ranking: cost, latency,
	// reliability, or balanced.
	OptimizeFor string `yaml:"optimize_for"`
	// MinCalls gates tracker-informed promotion until enough samples exist.
	MinCalls int              `yaml:"min_calls"`
	Tiers    []llm.TierConfig `yaml:"tiers"`
}

// Config is the loaded, validated configuration.
type Config struct {
	configDir string

	DataDir     string                     `yaml:"data_dir"`
	DatabaseURL string                     `yaml:"database_url"`
	API         APIConfig                  `yaml:"api"`
	LLM         LLMConfig                  `yaml:"llm"`
	Queue       queue.Config               `yaml:"queue"`
	Masking     map[string]masking.Pattern `yaml:"masking_patterns"`
	Accounts    []AccountConfig            `yaml:"accounts"`
	// DefaultAccount, when set, must name a configured account id.
	DefaultAccount string `yaml:"default_account"`

	// Legacy single-account layout: a top-level mail/chat/calendar block
	// migrates into a one-element Accounts list with id "default".
	LegacyMail     *MailConfig     `yaml:"mail,omitempty"`
	LegacyChat     *ChatConfig     `yaml:"chat,omitempty"`
	LegacyCalendar *CalendarConfig `yaml:"calendar,omitempty"`
}

// ConfigDir returns the directory the configuration was loaded from.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// EnabledAccount returns the single enabled account.
func (c *Config) EnabledAccount() (*AccountConfig, error) {
	for i := range c.Accounts {
		if c.Accounts[i].Enabled {
			return &c.Accounts[i], nil
		}
	}
	return nil, fmt.Errorf("%w: no enabled account", ErrAccountNotFound)
}

// Account returns the account with the given id.
func (c *Config) Account(id string) (*AccountConfig, error) {
	for i := range c.Accounts {
		if c.Accounts[i].ID == id {
			return &c.Accounts[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
}

// Stats summarizes the loaded configuration for startup logging.
type Stats struct {
	Accounts int
	LLMTiers int
	Patterns int
}

// Stats returns counts of configured components.
func (c *Config) Stats() Stats {
	return Stats{
		Accounts: len(c.Accounts),
		LLMTiers: len(c.LLM.Tiers),
		Patterns: len(c.Masking),
	}
}
