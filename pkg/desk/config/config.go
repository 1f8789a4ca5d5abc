// Package config loads client configuration with multi-source priority:
// environment variables override the config file, which overrides the
// built-in defaults.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"

	"github.com/agentdesk-dev/agentdesk/pkg/desk/auth"
	apperrors "github.com/agentdesk-dev/agentdesk/pkg/desk/errors"
	"github.com/agentdesk-dev/agentdesk/pkg/desk/link"
)

// EnvPrefix is the prefix for all environment overrides.
const EnvPrefix = "AGENTDESK"

// APIConfig addresses the assistant backend.
type APIConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Version string `mapstructure:"version"`
}

// AppConfig identifies the agent application on the backend.
type AppConfig struct {
	Name string `mapstructure:"name"`
}

// UserConfig identifies the local user. An empty ID is tolerated here and
// rejected when the first message is sent.
type UserConfig struct {
	ID string `mapstructure:"id"`
}

// AuthConfig controls the file-backed credential source.
type AuthConfig struct {
	CredentialPath string        `mapstructure:"credential_path"`
	RefreshPeriod  time.Duration `mapstructure:"refresh_period"`
}

// LinkConfig controls the account linking flow.
type LinkConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	RelayAddr    string        `mapstructure:"relay_addr"`
}

// Config stores client configuration.
type Config struct {
	API  APIConfig  `mapstructure:"api"`
	App  AppConfig  `mapstructure:"app"`
	User UserConfig `mapstructure:"user"`
	Auth AuthConfig `mapstructure:"auth"`
	Link LinkConfig `mapstructure:"link"`
}

// Default returns the built-in defaults. BaseURL has no default; the
// gateway rejects calls until one is configured.
func Default() Config {
	return Config{
		API: APIConfig{Version: "v1"},
		App: AppConfig{Name: "agentdesk"},
		Auth: AuthConfig{
			CredentialPath: auth.DefaultCredentialPath,
			RefreshPeriod:  auth.DefaultRefreshPeriod,
		},
		Link: LinkConfig{
			PollInterval: link.DefaultPollInterval,
			RelayAddr:    "127.0.0.1:0",
		},
	}
}

// Load reads configuration from path, or from ~/.agentdesk/config.yaml and
// the current directory when path is empty. A missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".agentdesk"))
		}
		v.AddConfigPath(".")
		v.SetConfigName("config")
	}

	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if path != "" || !notFound {
			return nil, apperrors.New(apperrors.ErrCodeConfigInvalid, "failed to read config file", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperrors.New(apperrors.ErrCodeConfigInvalid, "failed to parse configuration", err)
	}

	// Fill any field the file and environment left unset.
	if err := mergo.Merge(&cfg, Default()); err != nil {
		return nil, apperrors.New(apperrors.ErrCodeConfigInvalid, "failed to apply defaults", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, apperrors.New(apperrors.ErrCodeConfigInvalid, err.Error(), err)
	}

	return &cfg, nil
}

func bindEnvVariables(v *viper.Viper) {
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("api.base_url", EnvPrefix+"_API_BASE_URL")
	mustBind("api.version", EnvPrefix+"_API_VERSION")
	mustBind("app.name", EnvPrefix+"_APP_NAME")
	mustBind("user.id", EnvPrefix+"_USER_ID")
	mustBind("auth.credential_path", EnvPrefix+"_CREDENTIAL_PATH")
	mustBind("auth.refresh_period", EnvPrefix+"_REFRESH_PERIOD")
	mustBind("link.poll_interval", EnvPrefix+"_LINK_POLL_INTERVAL")
	mustBind("link.relay_addr", EnvPrefix+"_LINK_RELAY_ADDR")
}

// Validate reports every problem at once rather than stopping at the
// first. An empty BaseURL passes; the gateway reports it at call time.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.API.BaseURL != "" {
		u, err := url.Parse(c.API.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			result = multierror.Append(result, fmt.Errorf("api.base_url %q is not an absolute URL", c.API.BaseURL))
		}
	}
	if c.API.Version == "" {
		result = multierror.Append(result, fmt.Errorf("api.version must not be empty"))
	}
	if c.App.Name == "" {
		result = multierror.Append(result, fmt.Errorf("app.name must not be empty"))
	}
	if c.Auth.CredentialPath == "" {
		result = multierror.Append(result, fmt.Errorf("auth.credential_path must not be empty"))
	}
	if c.Auth.RefreshPeriod <= 0 {
		result = multierror.Append(result, fmt.Errorf("auth.refresh_period must be positive, got %s", c.Auth.RefreshPeriod))
	}
	if c.Link.PollInterval <= 0 {
		result = multierror.Append(result, fmt.Errorf("link.poll_interval must be positive, got %s", c.Link.PollInterval))
	}

	return result.ErrorOrNil()
}
