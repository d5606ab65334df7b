package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses configuration from a file. ${VAR} placeholders are
// interpolated from the environment before parsing. If a .checksums manifest
// exists next to the config file, the file is hash-verified against it.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	if err := verifyConfigHash(absPath); err != nil {
		return nil, err
	}

	interpolated := interpolateEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults merges default values into cfg where not explicitly set.
func applyDefaults(cfg *Config) {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.Listen == "" {
		cfg.Service.Listen = defaults.Service.Listen
	}
	if cfg.Service.BaseURL == "" {
		cfg.Service.BaseURL = defaults.Service.BaseURL
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}

	if cfg.Delivery.TokenTTLMinutes == 0 {
		cfg.Delivery.TokenTTLMinutes = defaults.Delivery.TokenTTLMinutes
	}
	if cfg.Delivery.EbooksDir == "" {
		cfg.Delivery.EbooksDir = defaults.Delivery.EbooksDir
	}
	if cfg.Delivery.CatalogPath == "" {
		cfg.Delivery.CatalogPath = defaults.Delivery.CatalogPath
	}

	if cfg.State.Path == "" {
		cfg.State.Path = defaults.State.Path
	}
	if cfg.Audit.Retention == 0 {
		cfg.Audit.Retention = defaults.Audit.Retention
	}

	if cfg.Email.Mode == "" {
		cfg.Email.Mode = defaults.Email.Mode
	}
	if cfg.Email.Port == 0 {
		cfg.Email.Port = defaults.Email.Port
	}
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}

	if cfg.Service.BaseURL == "" {
		return fmt.Errorf("service.base_url is required")
	}

	if cfg.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}

	if cfg.Delivery.TokenTTLMinutes <= 0 {
		return fmt.Errorf("delivery.token_ttl_minutes must be positive")
	}

	// Secrets must resolve: an unresolved ${VAR} means the operator forgot
	// to export it, and a silently empty secret would accept nothing (or,
	// worse, everything signed with an empty key).
	for name, value := range map[string]string{
		"secrets.webhook_secret": cfg.Secrets.WebhookSecret,
		"secrets.proxy_secret":   cfg.Secrets.ProxySecret,
		"secrets.dashboard_key":  cfg.Secrets.DashboardKey,
	} {
		if envVarPattern.MatchString(value) {
			matches := envVarPattern.FindStringSubmatch(value)
			return fmt.Errorf("%s: environment variable ${%s} is not set", name, matches[1])
		}
	}

	if cfg.Secrets.WebhookSecret == "" {
		return fmt.Errorf("secrets.webhook_secret is required")
	}
	if cfg.Secrets.ProxySecret == "" {
		return fmt.Errorf("secrets.proxy_secret is required")
	}

	switch cfg.Email.Mode {
	case "console":
	case "smtp":
		if cfg.Email.Host == "" {
			return fmt.Errorf("email.host is required in smtp mode")
		}
		if cfg.Email.From == "" {
			return fmt.Errorf("email.from is required in smtp mode")
		}
	default:
		return fmt.Errorf("email.mode must be console or smtp (got %q)", cfg.Email.Mode)
	}

	return nil
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}
