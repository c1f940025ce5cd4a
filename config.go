package aiola

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds client settings read from AIOLA_* environment variables.
type Config struct {
	APIKey      string        `envconfig:"API_KEY"`
	AccessToken string        `envconfig:"ACCESS_TOKEN"`
	BaseURL     string        `envconfig:"BASE_URL" default:"https://apis.aiola.ai"`
	AuthBaseURL string        `envconfig:"AUTH_BASE_URL" default:"https://auth.aiola.ai"`
	WorkflowID  string        `envconfig:"WORKFLOW_ID"`
	Timeout     time.Duration `envconfig:"TIMEOUT" default:"30s"`
}

// LoadConfig reads configuration from the environment, after loading a
// .env file from the working directory if one exists.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()
	return LoadConfigFromEnv()
}

// LoadConfigFromEnv reads configuration from the environment only.
func LoadConfigFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("AIOLA", &cfg); err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("failed to load config: %v", err)}
	}
	return &cfg, nil
}

// ClientOptions converts the configuration into client options. Empty
// values are skipped so client defaults apply.
func (c *Config) ClientOptions() []ClientOption {
	var opts []ClientOption
	if c.APIKey != "" {
		opts = append(opts, WithAPIKey(c.APIKey))
	}
	if c.AccessToken != "" {
		opts = append(opts, WithAccessToken(c.AccessToken))
	}
	if c.BaseURL != "" {
		opts = append(opts, WithBaseURL(c.BaseURL))
	}
	if c.AuthBaseURL != "" {
		opts = append(opts, WithAuthBaseURL(c.AuthBaseURL))
	}
	if c.WorkflowID != "" {
		opts = append(opts, WithWorkflowID(c.WorkflowID))
	}
	if c.Timeout > 0 {
		opts = append(opts, WithTimeout(c.Timeout))
	}
	return opts
}

// NewClientFromEnv creates a client from AIOLA_* environment variables.
// Options passed explicitly override the environment.
func NewClientFromEnv(opts ...ClientOption) (*Client, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	return NewClient(append(cfg.ClientOptions(), opts...)...)
}
