package config

import (
	"fmt"
	"strings"
)

// validate checks the resolved configuration. All failures are collected so a
// broken file reports every problem at once.
func validate(cfg *Config) error {
	var errs []string

	for _, err := range validateAccounts(cfg) {
		errs = append(errs, err.Error())
	}
	for _, err := range validateLLM(cfg) {
		errs = append(errs, err.Error())
	}
	for _, err := range validateAPI(cfg) {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateAccounts(cfg *Config) []error {
	var errs []error

	if len(cfg.Accounts) == 0 {
		errs = append(errs, NewValidationError("accounts", "", "", ErrMissingRequiredField))
		return errs
	}

	seenIDs := make(map[string]bool)
	seenUsernames := make(map[string]string)
	enabled := 0

	for _, account := range cfg.Accounts {
		if account.ID == "" {
			errs = append(errs, NewValidationError("account", "?", "id", ErrMissingRequiredField))
			continue
		}
		if seenIDs[account.ID] {
			errs = append(errs, NewValidationError("account", account.ID, "id",
				fmt.Errorf("%w: duplicate account id", ErrInvalidValue)))
		}
		seenIDs[account.ID] = true

		if account.Enabled {
			enabled++
		}

		if account.Mail == nil && account.Chat == nil && account.Calendar == nil {
			errs = append(errs, NewValidationError("account", account.ID, "",
				fmt.Errorf("%w: at least one of mail, chat, calendar", ErrMissingRequiredField)))
		}

		if account.Mail != nil {
			if account.Mail.Host == "" {
				errs = append(errs, NewValidationError("account", account.ID, "mail.host", ErrMissingRequiredField))
			}
			if account.Mail.Username == "" {
				errs = append(errs, NewValidationError("account", account.ID, "mail.username", ErrMissingRequiredField))
			} else if other, dup := seenUsernames[account.Mail.Username]; dup {
				errs = append(errs, NewValidationError("account", account.ID, "mail.username",
					fmt.Errorf("%w: username already used by account '%s'", ErrInvalidValue, other)))
			} else {
				seenUsernames[account.Mail.Username] = account.ID
			}
			if account.Mail.PasswordRef == "" {
				errs = append(errs, NewValidationError("account", account.ID, "mail.password_ref", ErrMissingRequiredField))
			}
		}
	}

	if enabled != 1 {
		errs = append(errs, NewValidationError("accounts", "", "enabled",
			fmt.Errorf("%w: exactly one account must be enabled, got %d", ErrInvalidValue, enabled)))
	}

	if cfg.DefaultAccount != "" && !seenIDs[cfg.DefaultAccount] {
		errs = append(errs, NewValidationError("accounts", cfg.DefaultAccount, "default_account",
			fmt.Errorf("%w: default account is not configured", ErrAccountNotFound)))
	}

	return errs
}

func validateLLM(cfg *Config) []error {
	var errs []error

	if len(cfg.LLM.Tiers) == 0 {
		errs = append(errs, NewValidationError("llm", "", "tiers", ErrMissingRequiredField))
		return errs
	}

	switch cfg.LLM.OptimizeFor {
	case "cost", "latency", "reliability", "balanced":
	default:
		errs = append(errs, NewValidationError("llm", "", "optimize_for",
			fmt.Errorf("%w: %q", ErrInvalidValue, cfg.LLM.OptimizeFor)))
	}

	seen := make(map[string]bool)
	for _, tier := range cfg.LLM.Tiers {
		if tier.Name == "" {
			errs = append(errs, NewValidationError("llm_tier", "?", "name", ErrMissingRequiredField))
			continue
		}
		if seen[tier.Name] {
			errs = append(errs, NewValidationError("llm_tier", tier.Name, "name",
				fmt.Errorf("%w: duplicate tier name", ErrInvalidValue)))
		}
		seen[tier.Name] = true

		if tier.Provider != "anthropic" && tier.Provider != "openai" {
			errs = append(errs, NewValidationError("llm_tier", tier.Name, "provider",
				fmt.Errorf("%w: %q", ErrInvalidValue, tier.Provider)))
		}
		if tier.Model == "" {
			errs = append(errs, NewValidationError("llm_tier", tier.Name, "model", ErrMissingRequiredField))
		}
	}

	return errs
}

func validateAPI(cfg *Config) []error {
	var errs []error
	if !strings.Contains(cfg.API.Listen, ":") {
		errs = append(errs, NewValidationError("api", "", "listen",
			fmt.Errorf("%w: %q is not a host:port address", ErrInvalidValue, cfg.API.Listen)))
	}
	return errs
}
