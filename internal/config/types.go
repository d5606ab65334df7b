package config

// Config represents the complete bindery configuration.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Secrets  SecretsConfig  `yaml:"secrets"`
	Delivery DeliveryConfig `yaml:"delivery"`
	State    StateConfig    `yaml:"state"`
	Audit    AuditConfig    `yaml:"audit"`
	Email    EmailConfig    `yaml:"email"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name     string `yaml:"name"`
	Listen   string `yaml:"listen"`
	BaseURL  string `yaml:"base_url"`
	LogLevel string `yaml:"log_level"`
}

// SecretsConfig holds the shared secrets for the two inbound trust
// boundaries plus the optional dashboard access key. Values are normally
// provided as ${VAR} references resolved from the environment.
type SecretsConfig struct {
	WebhookSecret string `yaml:"webhook_secret"`
	ProxySecret   string `yaml:"proxy_secret"`
	DashboardKey  string `yaml:"dashboard_key,omitempty"`
}

// DeliveryConfig defines token and file-serving behavior.
type DeliveryConfig struct {
	// TokenTTLMinutes is how long an issued download link stays valid.
	TokenTTLMinutes int `yaml:"token_ttl_minutes"`

	// ExpireAfterDownload enables the single-use policy: a redeemed token
	// becomes permanently unusable. Pointer so an explicit false survives
	// default application.
	ExpireAfterDownload *bool `yaml:"expire_after_download,omitempty"`

	// EbooksDir is the directory deliverable files are served from.
	EbooksDir string `yaml:"ebooks_dir"`

	// CatalogPath is the product-to-file mapping file.
	CatalogPath string `yaml:"catalog_path"`
}

// StateConfig defines state storage settings.
type StateConfig struct {
	Path string `yaml:"path"`
}

// AuditConfig defines audit trail settings.
type AuditConfig struct {
	// Retention is the maximum number of audit events kept (oldest evicted
	// first).
	Retention int `yaml:"retention"`
}

// EmailConfig defines the outbound mail transport. Mode "console" logs
// messages instead of sending them.
type EmailConfig struct {
	Mode     string `yaml:"mode"`
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	From     string `yaml:"from,omitempty"`
}

// SingleUse reports whether the expire-after-download policy is enabled.
func (d DeliveryConfig) SingleUse() bool {
	return d.ExpireAfterDownload == nil || *d.ExpireAfterDownload
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:     "bindery",
			Listen:   "127.0.0.1:3007",
			BaseURL:  "http://localhost:3007",
			LogLevel: "info",
		},
		Delivery: DeliveryConfig{
			TokenTTLMinutes: 5,
			EbooksDir:       "./storage/ebooks",
			CatalogPath:     "./config/ebooks.yaml",
		},
		State: StateConfig{
			Path: "./storage/bindery.db",
		},
		Audit: AuditConfig{
			Retention: 500,
		},
		Email: EmailConfig{
			Mode: "console",
			Port: 587,
		},
	}
}
