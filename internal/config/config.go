// Package config provides configuration management for steps-auth.
//
// Configuration is loaded from:
// 1. steps-auth.yaml (optional), or the file named by --config
// 2. Environment variables (nested keys joined by "_": AWS_REGION, STACK_ID)
// 3. Default values
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/anirudhbiyani/steps-auth/pkg/authstack"
	"github.com/anirudhbiyani/steps-auth/pkg/providers/awsclient"
)

// Config is the root configuration structure.
type Config struct {
	AWS    AWSConfig    `mapstructure:"aws"`
	Stack  StackConfig  `mapstructure:"stack"`
	Deploy DeployConfig `mapstructure:"deploy"`
	Log    LogConfig    `mapstructure:"log"`
	State  StateConfig  `mapstructure:"state"`
}

// AWSConfig selects the target account and credentials.
type AWSConfig struct {
	Region  string `mapstructure:"region"`
	Profile string `mapstructure:"profile"`
	// Account, when set, pins the stack to one account.
	Account string `mapstructure:"account"`
}

// StackConfig contains the stack's hosting properties.
type StackConfig struct {
	ID           string            `mapstructure:"id"`
	Description  string            `mapstructure:"description"`
	Tags         map[string]string `mapstructure:"tags"`
	ExportPrefix string            `mapstructure:"export_prefix"`
}

// DeployConfig contains provisioning settings.
type DeployConfig struct {
	Provider string        `mapstructure:"provider"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// StateConfig locates the deployment state file.
type StateConfig struct {
	Path string `mapstructure:"path"`
}

// Load reads configuration from file and environment variables. An empty
// path searches the default locations; a missing default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("steps-auth")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.steps-auth")
	}

	// Maps nested config: deploy.provider → DEPLOY_PROVIDER
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Validate checks for configuration errors.
func (c *Config) Validate() error {
	if c.Stack.ID == "" {
		return fmt.Errorf("stack.id must not be empty")
	}
	switch authstack.ProviderName(c.Deploy.Provider) {
	case authstack.ProviderCloudFormation, authstack.ProviderCognito:
	default:
		return fmt.Errorf("deploy.provider must be %q or %q, got %q",
			authstack.ProviderCloudFormation, authstack.ProviderCognito, c.Deploy.Provider)
	}
	if c.Deploy.Timeout < 0 {
		return fmt.Errorf("deploy.timeout must not be negative")
	}
	if c.AWS.Account != "" {
		if err := authstack.ValidateAWSAccountID(c.AWS.Account); err != nil {
			return fmt.Errorf("aws.account: %w", err)
		}
	}
	if c.AWS.Region != "" {
		if err := authstack.ValidateAWSRegion(c.AWS.Region); err != nil {
			return fmt.Errorf("aws.region: %w", err)
		}
	}
	return nil
}

// StackProps returns the stack properties the configuration describes.
func (c *Config) StackProps() *authstack.StackProps {
	return &authstack.StackProps{
		Env: authstack.Environment{
			Account: c.AWS.Account,
			Region:  c.AWS.Region,
		},
		Description:  c.Stack.Description,
		Tags:         c.Stack.Tags,
		ExportPrefix: c.Stack.ExportPrefix,
	}
}

// ProviderConfig returns the provider factory configuration.
func (c *Config) ProviderConfig() map[string]interface{} {
	return map[string]interface{}{
		awsclient.ConfigRegion:  c.AWS.Region,
		awsclient.ConfigProfile: c.AWS.Profile,
	}
}

func setDefaults(v *viper.Viper) {
	// AWS; empty values defer to the SDK's default chain
	v.SetDefault("aws.region", "")
	v.SetDefault("aws.profile", "")
	v.SetDefault("aws.account", "")

	// Stack
	v.SetDefault("stack.id", "AuthStack")
	v.SetDefault("stack.description", "")
	v.SetDefault("stack.export_prefix", "")

	// Deploy
	v.SetDefault("deploy.provider", string(authstack.ProviderCloudFormation))
	v.SetDefault("deploy.timeout", "15m")

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// State
	v.SetDefault("state.path", authstack.DefaultStateStorePath())
}
