package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// DatabaseConfig holds the SQLite database settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// IMAPConfig holds the mail transport settings.
type IMAPConfig struct {
	// Providers maps a provider name to its IMAPS host:port endpoint.
	Providers map[string]string `mapstructure:"providers" yaml:"providers"`

	// Folder is the mailbox folder to scan.
	Folder string `mapstructure:"folder" yaml:"folder"`

	// ConnectTimeoutSec bounds connect and authentication.
	ConnectTimeoutSec int `mapstructure:"connect_timeout_sec" yaml:"connect_timeout_sec"`

	// InsecureSkipVerify disables TLS certificate validation.
	// Leave false unless a provider endpoint genuinely requires it.
	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify"`
}

// ScanConfig holds the scan scheduling and search settings.
type ScanConfig struct {
	// IntervalSec is how often the periodic scan fires.
	IntervalSec int `mapstructure:"interval_sec" yaml:"interval_sec"`

	// InitialDelaySec delays the first scan after startup.
	InitialDelaySec int `mapstructure:"initial_delay_sec" yaml:"initial_delay_sec"`

	// WindowDays is the search window for accounts that have never
	// been synced.
	WindowDays int `mapstructure:"window_days" yaml:"window_days"`

	// UnseenOnly restricts the search to unread messages.
	UnseenOnly bool `mapstructure:"unseen_only" yaml:"unseen_only"`

	// AccountTimeoutSec bounds one account's entire scan pass.
	AccountTimeoutSec int `mapstructure:"account_timeout_sec" yaml:"account_timeout_sec"`
}

// HTTPConfig holds the operational HTTP listener settings.
type HTTPConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// AppConfig is the top-level service configuration.
type AppConfig struct {
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	IMAP     IMAPConfig     `mapstructure:"imap" yaml:"imap"`
	Scan     ScanConfig     `mapstructure:"scan" yaml:"scan"`
	HTTP     HTTPConfig     `mapstructure:"http" yaml:"http"`
}

// DefaultConfigPath returns the default path for the configuration
// file, located at ~/.config/mailscan/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "mailscan", "config.yaml")
}

func defaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "mailscan.db")
	}
	return filepath.Join(home, ".config", "mailscan", "mailscan.db")
}

func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Database: DatabaseConfig{Path: defaultDatabasePath()},
		IMAP: IMAPConfig{
			Providers: map[string]string{
				string(ProviderGmail):   "imap.gmail.com:993",
				string(ProviderOutlook): "imap-mail.outlook.com:993",
			},
			Folder:            "INBOX",
			ConnectTimeoutSec: 10,
		},
		Scan: ScanConfig{
			IntervalSec:       300,
			InitialDelaySec:   10,
			WindowDays:        7,
			UnseenOnly:        true,
			AccountTimeoutSec: 120,
		},
		HTTP: HTTPConfig{Addr: "127.0.0.1:8940"},
	}
}

// LoadConfig reads configuration from the given YAML file path using
// Viper. If the file does not exist, it returns a default
// configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("database.path", defaultDatabasePath())
	v.SetDefault("imap.providers", map[string]string{
		string(ProviderGmail):   "imap.gmail.com:993",
		string(ProviderOutlook): "imap-mail.outlook.com:993",
	})
	v.SetDefault("imap.folder", "INBOX")
	v.SetDefault("imap.connect_timeout_sec", 10)
	v.SetDefault("scan.interval_sec", 300)
	v.SetDefault("scan.initial_delay_sec", 10)
	v.SetDefault("scan.window_days", 7)
	v.SetDefault("scan.unseen_only", true)
	v.SetDefault("scan.account_timeout_sec", 120)
	v.SetDefault("http.addr", "127.0.0.1:8940")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaultAppConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultAppConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}
