package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: 9090
  host: "0.0.0.0"

ga4:
  property_id: "123456789"
  credentials_json: '{"type":"service_account"}'
  timeout_seconds: 45

search_console:
  site_url: "sc-domain:example.com"

youtube:
  channel_id: "UCtest"
  client_id: "cid"
  client_secret: "csecret"
  refresh_token: "rtoken"

wistia:
  api_token: "wistia-token"

meta_ads:
  account_id: "act_42"
  access_token: "meta-token"

kit:
  api_key: "kit-key"

unbounce:
  sub_account_id: "sub-1"
  api_key: "ub-key"

narrative:
  provider: "bedrock"

storage:
  local_path: "./test-data/report.json"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)

	assert.Equal(t, "123456789", cfg.GA4.PropertyID)
	assert.Equal(t, 45, cfg.GA4.TimeoutSeconds)
	assert.Equal(t, 45*time.Second, cfg.GA4.Timeout())

	// Search Console inherits the GA4 service account when not set
	assert.Equal(t, cfg.GA4.CredentialsJSON, cfg.SearchConsole.CredentialsJSON)
	assert.Equal(t, 30, cfg.SearchConsole.TimeoutSeconds)

	assert.Equal(t, "UCtest", cfg.YouTube.ChannelID)
	assert.Equal(t, "rtoken", cfg.YouTube.RefreshToken)

	assert.Equal(t, "bedrock", cfg.Narrative.Provider)
	assert.Equal(t, "gpt-4o", cfg.Narrative.OpenAIModel)
	assert.Equal(t, "anthropic.claude-3-sonnet-20240229-v1:0", cfg.Narrative.BedrockModelID)

	assert.Equal(t, "./test-data/report.json", cfg.Storage.LocalPath)
}

func TestLoadDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  port: 0\n"), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 30, cfg.GA4.TimeoutSeconds)
	assert.Equal(t, 60, cfg.MetaAds.TimeoutSeconds)
	assert.Equal(t, "openai", cfg.Narrative.Provider)
	assert.Equal(t, 120, cfg.Narrative.TimeoutSeconds)
	assert.Equal(t, "data/report.json", cfg.Storage.LocalPath)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	configContent := `
kit:
  api_key: "from-yaml"
storage:
  local_path: "yaml/report.json"
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	t.Setenv("KIT_API_KEY", "from-env")
	t.Setenv("REPORT_PATH", "env/report.json")
	t.Setenv("OPENAI_API_KEY", "sk-env")

	cfg, err := LoadFromEnv(configPath)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Kit.APIKey)
	assert.Equal(t, "env/report.json", cfg.Storage.LocalPath)
	assert.Equal(t, "sk-env", cfg.Narrative.OpenAIAPIKey)
}
