package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0o600))
	return dir
}

const validConfig = `
data_dir: /tmp/cortex-data
database_url: "{{.CORTEX_TEST_DB_URL}}"
api:
  listen: ":9090"
llm:
  optimize_for: cost
  tiers:
    - name: sonnet
      provider: anthropic
      model: claude-sonnet-4-5
      cost_per_1k_in: 0.003
      cost_per_1k_out: 0.015
    - name: mini
      provider: openai
      model: gpt-4o-mini
queue:
  worker_count: 3
accounts:
  - id: work
    display_name: Work
    enabled: true
    mail:
      host: mail.example.com
      username: alice@example.com
      password_ref: work/imap-password
  - id: personal
    mail:
      host: imap.example.org
      username: alice@example.org
      password_ref: personal/imap-password
default_account: work
`

func TestInitializeLoadsValidConfig(t *testing.T) {
	t.Setenv("CORTEX_TEST_DB_URL", "postgres://localhost/cortex")
	dir := writeConfig(t, validConfig)

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.ConfigDir())
	assert.Equal(t, "/tmp/cortex-data", cfg.DataDir)
	assert.Equal(t, "postgres://localhost/cortex", cfg.DatabaseURL)
	assert.Equal(t, ":9090", cfg.API.Listen)

	require.Len(t, cfg.LLM.Tiers, 2)
	assert.Equal(t, "cost", cfg.LLM.OptimizeFor)
	assert.Equal(t, 10, cfg.LLM.MinCalls)
	assert.Equal(t, "anthropic", cfg.LLM.Tiers[0].Provider)
	assert.Equal(t, 0.003, cfg.LLM.Tiers[0].CostPer1KIn)

	// User worker_count kept, remaining queue fields defaulted.
	assert.Equal(t, 3, cfg.Queue.WorkerCount)
	assert.Equal(t, 2*time.Second, cfg.Queue.PollInterval)
	assert.Equal(t, 256, cfg.Queue.IntakeCapacity)

	enabled, err := cfg.EnabledAccount()
	require.NoError(t, err)
	assert.Equal(t, "work", enabled.ID)

	// Mail defaults applied to both accounts.
	personal, err := cfg.Account("personal")
	require.NoError(t, err)
	assert.Equal(t, "personal", personal.DisplayName)
	assert.Equal(t, 993, personal.Mail.Port)
	assert.Equal(t, "Archive", personal.Mail.Folders.Archive)
}

func TestInitializeMigratesLegacyAccount(t *testing.T) {
	dir := writeConfig(t, `
llm:
  tiers:
    - name: sonnet
      provider: anthropic
      model: claude-sonnet-4-5
mail:
  host: mail.example.com
  username: alice@example.com
  password_ref: default/imap-password
`)

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	require.Len(t, cfg.Accounts, 1)
	account := cfg.Accounts[0]
	assert.Equal(t, "default", account.ID)
	assert.True(t, account.Enabled)
	assert.Equal(t, "mail.example.com", account.Mail.Host)
	assert.Nil(t, cfg.LegacyMail)
}

func TestInitializeMissingFile(t *testing.T) {
	_, err := Initialize(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestInitializeInvalidYAML(t *testing.T) {
	dir := writeConfig(t, "accounts: [unclosed")
	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestExpandEnvLeavesDollarAlone(t *testing.T) {
	t.Setenv("CORTEX_TEST_VAR", "expanded")

	out := ExpandEnv([]byte("value: {{.CORTEX_TEST_VAR}} pattern: ^secret.*$"))
	assert.Equal(t, "value: expanded pattern: ^secret.*$", string(out))

	// Missing variables expand to empty string.
	out = ExpandEnv([]byte("value: {{.CORTEX_TEST_MISSING_VAR}}!"))
	assert.Equal(t, "value: !", string(out))
}
