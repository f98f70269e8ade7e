package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/cortexhq/cortex/pkg/queue"
)

// ConfigFileName is the single configuration file loaded from the config dir.
const ConfigFileName = "cortex.yaml"

// Initialize loads, resolves, and validates configuration from configDir.
//
// Steps performed:
//  1. Read cortex.yaml
//  2. Expand environment variables ({{.VAR}} template syntax)
//  3. Parse YAML
//  4. Migrate legacy single-account layout
//  5. Apply defaults for unset values
//  6. Validate
func Initialize(_ context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("initializing configuration")

	cfg, err := load(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}

	stats := cfg.Stats()
	log.Info("configuration initialized",
		"accounts", stats.Accounts,
		"llm_tiers", stats.LLMTiers,
		"masking_patterns", stats.Patterns)

	return cfg, nil
}

func load(configDir string) (*Config, error) {
	cfg := &Config{configDir: configDir}
	if err := loadYAML(filepath.Join(configDir, ConfigFileName), cfg); err != nil {
		return nil, NewLoadError(ConfigFileName, err)
	}

	migrateLegacyAccount(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func loadYAML(path string, target any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	// ExpandEnv passes the original data through on template errors so plain
	// YAML still parses (or fails with a clearer YAML error).
	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return nil
}

// migrateLegacyAccount converts a top-level mail/chat/calendar block into a
// one-element account list with id "default". A populated Accounts list wins;
// the legacy block is then ignored.
func migrateLegacyAccount(cfg *Config) {
	hasLegacy := cfg.LegacyMail != nil || cfg.LegacyChat != nil || cfg.LegacyCalendar != nil
	if !hasLegacy {
		return
	}
	if len(cfg.Accounts) == 0 {
		slog.Info("migrating legacy single-account configuration", "account_id", "default")
		cfg.Accounts = []AccountConfig{{
			ID:          "default",
			DisplayName: "Default",
			Enabled:     true,
			Mail:        cfg.LegacyMail,
			Chat:        cfg.LegacyChat,
			Calendar:    cfg.LegacyCalendar,
		}}
	} else {
		slog.Warn("ignoring legacy account block, accounts list is configured")
	}
	cfg.LegacyMail = nil
	cfg.LegacyChat = nil
	cfg.LegacyCalendar = nil
}

func applyDefaults(cfg *Config) {
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if cfg.API.Listen == "" {
		cfg.API.Listen = ":8080"
	}
	if cfg.LLM.OptimizeFor == "" {
		cfg.LLM.OptimizeFor = "balanced"
	}
	if cfg.LLM.MinCalls <= 0 {
		cfg.LLM.MinCalls = 10
	}

	queueDefaults := queue.DefaultConfig()
	if cfg.Queue.WorkerCount <= 0 {
		cfg.Queue.WorkerCount = queueDefaults.WorkerCount
	}
	if cfg.Queue.MaxConcurrent <= 0 {
		cfg.Queue.MaxConcurrent = queueDefaults.MaxConcurrent
	}
	if cfg.Queue.PollInterval <= 0 {
		cfg.Queue.PollInterval = queueDefaults.PollInterval
	}
	if cfg.Queue.PollIntervalJitter <= 0 {
		cfg.Queue.PollIntervalJitter = queueDefaults.PollIntervalJitter
	}
	if cfg.Queue.EventTimeout <= 0 {
		cfg.Queue.EventTimeout = queueDefaults.EventTimeout
	}
	if cfg.Queue.IntakeCapacity <= 0 {
		cfg.Queue.IntakeCapacity = queueDefaults.IntakeCapacity
	}

	for i := range cfg.Accounts {
		account := &cfg.Accounts[i]
		if account.DisplayName == "" {
			account.DisplayName = account.ID
		}
		if account.Mail != nil {
			if account.Mail.Port == 0 {
				account.Mail.Port = 993
			}
			defaults := DefaultFolderConfig()
			if account.Mail.Folders.Archive == "" {
				account.Mail.Folders.Archive = defaults.Archive
			}
			if account.Mail.Folders.Trash == "" {
				account.Mail.Folders.Trash = defaults.Trash
			}
			if account.Mail.Folders.Reference == "" {
				account.Mail.Folders.Reference = defaults.Reference
			}
		}
	}
}
