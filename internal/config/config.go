package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the weekly report run and the dashboard.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	GA4           GA4Config           `yaml:"ga4"`
	SearchConsole SearchConsoleConfig `yaml:"search_console"`
	YouTube       YouTubeConfig       `yaml:"youtube"`
	Wistia        WistiaConfig        `yaml:"wistia"`
	MetaAds       MetaAdsConfig       `yaml:"meta_ads"`
	Kit           KitConfig           `yaml:"kit"`
	Unbounce      UnbounceConfig      `yaml:"unbounce"`
	Narrative     NarrativeConfig     `yaml:"narrative"`
	Storage       StorageConfig       `yaml:"storage"`
}

// ServerConfig holds dashboard HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container detection.
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// GA4Config holds Google Analytics Data API configuration.
// CredentialsJSON is the service-account key file contents.
type GA4Config struct {
	PropertyID      string `yaml:"property_id"`
	CredentialsJSON string `yaml:"credentials_json"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration.
func (c GA4Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SearchConsoleConfig holds Search Console API configuration. It shares the
// GA4 service account unless its own credentials are set.
type SearchConsoleConfig struct {
	SiteURL         string `yaml:"site_url"`
	CredentialsJSON string `yaml:"credentials_json"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration.
func (c SearchConsoleConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// YouTubeConfig holds YouTube Data API OAuth configuration.
type YouTubeConfig struct {
	ChannelID      string `yaml:"channel_id"`
	ClientID       string `yaml:"client_id"`
	ClientSecret   string `yaml:"client_secret"`
	RefreshToken   string `yaml:"refresh_token"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration.
func (c YouTubeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// WistiaConfig holds Wistia Stats API configuration.
type WistiaConfig struct {
	APIToken       string `yaml:"api_token"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration.
func (c WistiaConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// MetaAdsConfig holds Meta Graph API insights configuration.
type MetaAdsConfig struct {
	AccountID      string `yaml:"account_id"`
	AccessToken    string `yaml:"access_token"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration.
func (c MetaAdsConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// KitConfig holds Kit (ConvertKit) API configuration.
type KitConfig struct {
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration.
func (c KitConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// UnbounceConfig holds Unbounce API configuration.
type UnbounceConfig struct {
	SubAccountID   string `yaml:"sub_account_id"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration.
func (c UnbounceConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// NarrativeConfig selects and configures the narrative generation backend.
// Provider is "openai" or "bedrock".
type NarrativeConfig struct {
	Provider       string `yaml:"provider"`
	OpenAIAPIKey   string `yaml:"openai_api_key"`
	OpenAIModel    string `yaml:"openai_model"`
	BedrockModelID string `yaml:"bedrock_model_id"`
	BedrockRegion  string `yaml:"bedrock_region"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration.
func (c NarrativeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// StorageConfig holds artifact persistence configuration. The local path is
// the contract; the S3 mirror is optional.
type StorageConfig struct {
	LocalPath string `yaml:"local_path"`
	S3Bucket  string `yaml:"s3_bucket"`
	S3Region  string `yaml:"s3_region"`
	AWSKey    string `yaml:"aws_key"`
	AWSSecret string `yaml:"aws_secret"`
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.GA4.TimeoutSeconds == 0 {
		cfg.GA4.TimeoutSeconds = 30
	}
	if cfg.SearchConsole.TimeoutSeconds == 0 {
		cfg.SearchConsole.TimeoutSeconds = 30
	}
	if cfg.SearchConsole.CredentialsJSON == "" {
		cfg.SearchConsole.CredentialsJSON = cfg.GA4.CredentialsJSON
	}
	if cfg.YouTube.TimeoutSeconds == 0 {
		cfg.YouTube.TimeoutSeconds = 30
	}
	if cfg.Wistia.TimeoutSeconds == 0 {
		cfg.Wistia.TimeoutSeconds = 30
	}
	if cfg.MetaAds.TimeoutSeconds == 0 {
		// Insights queries are the slowest vendor calls
		cfg.MetaAds.TimeoutSeconds = 60
	}
	if cfg.Kit.TimeoutSeconds == 0 {
		cfg.Kit.TimeoutSeconds = 30
	}
	if cfg.Unbounce.TimeoutSeconds == 0 {
		cfg.Unbounce.TimeoutSeconds = 30
	}
	if cfg.Narrative.Provider == "" {
		cfg.Narrative.Provider = "openai"
	}
	if cfg.Narrative.OpenAIModel == "" {
		cfg.Narrative.OpenAIModel = "gpt-4o"
	}
	if cfg.Narrative.BedrockModelID == "" {
		cfg.Narrative.BedrockModelID = "anthropic.claude-3-sonnet-20240229-v1:0"
	}
	if cfg.Narrative.BedrockRegion == "" {
		cfg.Narrative.BedrockRegion = "us-east-1"
	}
	if cfg.Narrative.TimeoutSeconds == 0 {
		cfg.Narrative.TimeoutSeconds = 120
	}
	if cfg.Storage.LocalPath == "" {
		cfg.Storage.LocalPath = "data/report.json"
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) before reading env vars, so secrets can
// live in .env locally and in real env vars in production.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("GA4_PROPERTY_ID"); v != "" {
		cfg.GA4.PropertyID = v
	}
	if v := os.Getenv("GOOGLE_CREDENTIALS_JSON"); v != "" {
		cfg.GA4.CredentialsJSON = v
		cfg.SearchConsole.CredentialsJSON = v
	}
	if v := os.Getenv("SEARCH_CONSOLE_SITE_URL"); v != "" {
		cfg.SearchConsole.SiteURL = v
	}
	if v := os.Getenv("YOUTUBE_CHANNEL_ID"); v != "" {
		cfg.YouTube.ChannelID = v
	}
	if v := os.Getenv("YOUTUBE_CLIENT_ID"); v != "" {
		cfg.YouTube.ClientID = v
	}
	if v := os.Getenv("YOUTUBE_CLIENT_SECRET"); v != "" {
		cfg.YouTube.ClientSecret = v
	}
	if v := os.Getenv("YOUTUBE_REFRESH_TOKEN"); v != "" {
		cfg.YouTube.RefreshToken = v
	}
	if v := os.Getenv("WISTIA_API_TOKEN"); v != "" {
		cfg.Wistia.APIToken = v
	}
	if v := os.Getenv("META_ADS_ACCOUNT_ID"); v != "" {
		cfg.MetaAds.AccountID = v
	}
	if v := os.Getenv("META_ADS_ACCESS_TOKEN"); v != "" {
		cfg.MetaAds.AccessToken = v
	}
	if v := os.Getenv("KIT_API_KEY"); v != "" {
		cfg.Kit.APIKey = v
	}
	if v := os.Getenv("UNBOUNCE_API_KEY"); v != "" {
		cfg.Unbounce.APIKey = v
	}
	if v := os.Getenv("UNBOUNCE_SUB_ACCOUNT_ID"); v != "" {
		cfg.Unbounce.SubAccountID = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Narrative.OpenAIAPIKey = v
	}
	if v := os.Getenv("NARRATIVE_PROVIDER"); v != "" {
		cfg.Narrative.Provider = v
	}
	if v := os.Getenv("REPORT_PATH"); v != "" {
		cfg.Storage.LocalPath = v
	}
	if v := os.Getenv("REPORT_S3_BUCKET"); v != "" {
		cfg.Storage.S3Bucket = v
	}

	return cfg, nil
}
