package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "CRM_MAILBOX_"

// ProviderConfig locates the mail provider's REST API
type ProviderConfig struct {
	BaseURL string `json:"base_url" yaml:"base_url" env:"BASE_URL"`
	Timeout string `json:"timeout" yaml:"timeout" env:"TIMEOUT"`
}

// AuthConfig holds the OAuth2 settings used to obtain bearer tokens
type AuthConfig struct {
	TenantID    string   `json:"tenant_id" yaml:"tenant_id" env:"TENANT_ID"`
	ClientID    string   `json:"client_id" yaml:"client_id" env:"CLIENT_ID"`
	Scopes      []string `json:"scopes" yaml:"scopes" env:"SCOPES"`
	RedirectURL string   `json:"redirect_url" yaml:"redirect_url" env:"REDIRECT_URL"`
	Account     string   `json:"account" yaml:"account" env:"ACCOUNT"`

	// TokenStore is "file" or "keyring"
	TokenStore string `json:"token_store" yaml:"token_store" env:"TOKEN_STORE"`
	TokenPath  string `json:"token_path" yaml:"token_path" env:"TOKEN_PATH"`
	// AccessToken bypasses the token store; useful against a local provider
	AccessToken string `json:"-" yaml:"-" env:"ACCESS_TOKEN"`
}

// MailboxConfig tunes the conversation engine
type MailboxConfig struct {
	DefaultFolder    string `json:"default_folder" yaml:"default_folder" env:"DEFAULT_FOLDER"`
	DefaultSelection string `json:"default_selection" yaml:"default_selection" env:"DEFAULT_SELECTION"`
	NavigationDelay  string `json:"navigation_delay" yaml:"navigation_delay" env:"NAVIGATION_DELAY"`
	SearchTop        int    `json:"search_top" yaml:"search_top" env:"SEARCH_TOP"`
	BodyContentType  string `json:"body_content_type" yaml:"body_content_type" env:"BODY_CONTENT_TYPE"`
	SaveToSentItems  bool   `json:"save_to_sent_items" yaml:"save_to_sent_items" env:"SAVE_TO_SENT_ITEMS"`

	// FolderAliases maps provider folder identifiers to display names
	FolderAliases map[string]string `json:"folder_aliases" yaml:"folder_aliases"`
}

// AttachmentsConfig configures where downloads go
type AttachmentsConfig struct {
	DownloadPath string `json:"download_path" yaml:"download_path" env:"DOWNLOAD_PATH"`
}

// StorageConfig configures the local search-history database
type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" env:"ENABLED"`
	DBPath  string `json:"db_path" yaml:"db_path" env:"DB_PATH"`
}

// KeyBindings defines keyboard shortcuts for the TUI
type KeyBindings struct {
	Compose     string `json:"compose" yaml:"compose"`
	Reply       string `json:"reply" yaml:"reply"`
	Forward     string `json:"forward" yaml:"forward"`
	Move        string `json:"move" yaml:"move"`
	Delete      string `json:"delete" yaml:"delete"`
	Refresh     string `json:"refresh" yaml:"refresh"`
	Search      string `json:"search" yaml:"search"`
	Attachments string `json:"attachments" yaml:"attachments"`
	EditDraft   string `json:"edit_draft" yaml:"edit_draft"`
	SendDraft   string `json:"send_draft" yaml:"send_draft"`
	NextFolder  string `json:"next_folder" yaml:"next_folder"`
	Help        string `json:"help" yaml:"help"`
	Quit        string `json:"quit" yaml:"quit"`
}

// Config holds all configuration for the CRM mailbox
type Config struct {
	Provider    ProviderConfig    `json:"provider" yaml:"provider" envPrefix:"PROVIDER_"`
	Auth        AuthConfig        `json:"auth" yaml:"auth" envPrefix:"AUTH_"`
	Mailbox     MailboxConfig     `json:"mailbox" yaml:"mailbox" envPrefix:"MAILBOX_"`
	Attachments AttachmentsConfig `json:"attachments" yaml:"attachments" envPrefix:"ATTACHMENTS_"`
	Storage     StorageConfig     `json:"storage" yaml:"storage" envPrefix:"STORAGE_"`
	Keys        KeyBindings       `json:"keys" yaml:"keys"`

	// Theme is a YAML color file, relative to the config dir or absolute
	Theme string `json:"theme" yaml:"theme" env:"THEME"`

	LogFile string `json:"log_file" yaml:"log_file" env:"LOG_FILE"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{
			BaseURL: "http://localhost:3000/api/outlook",
			Timeout: "30s",
		},
		Auth: AuthConfig{
			TenantID:    "common",
			Scopes:      []string{"offline_access", "Mail.ReadWrite", "Mail.Send"},
			RedirectURL: "http://localhost:8765/callback",
			TokenStore:  "file",
		},
		Mailbox: MailboxConfig{
			DefaultFolder:    "Inbox",
			DefaultSelection: "first",
			NavigationDelay:  "150ms",
			SearchTop:        25,
			BodyContentType:  "Text",
			SaveToSentItems:  true,
			FolderAliases:    map[string]string{},
		},
		Storage: StorageConfig{Enabled: true},
		Keys:    DefaultKeyBindings(),
	}
}

// DefaultKeyBindings returns default keyboard shortcuts
func DefaultKeyBindings() KeyBindings {
	return KeyBindings{
		Compose:     "c",
		Reply:       "r",
		Forward:     "f",
		Move:        "m",
		Delete:      "d",
		Refresh:     "R",
		Search:      "/",
		Attachments: "a",
		EditDraft:   "e",
		SendDraft:   "S",
		NextFolder:  "tab",
		Help:        "?",
		Quit:        "q",
	}
}

// LoadConfig loads the file at configPath over the defaults, then applies
// environment overrides. A missing file is not an error.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			if err := unmarshal(configPath, data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", configPath, err)
			}
		}
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	var existing []string
	for _, p := range paths {
		if fileExists(p) {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// ApplyEnv overrides cfg from CRM_MAILBOX_* environment variables
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}
	return nil
}

func unmarshal(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

// Validate checks the values the engine depends on
func (c *Config) Validate() error {
	u, err := url.Parse(c.Provider.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("provider.base_url must be an absolute URL, got %q", c.Provider.BaseURL)
	}
	switch c.Mailbox.DefaultSelection {
	case "", "first", "latest":
	default:
		return fmt.Errorf("mailbox.default_selection must be first or latest, got %q", c.Mailbox.DefaultSelection)
	}
	switch c.Mailbox.BodyContentType {
	case "", "HTML", "Text":
	default:
		return fmt.Errorf("mailbox.body_content_type must be HTML or Text, got %q", c.Mailbox.BodyContentType)
	}
	switch c.Auth.TokenStore {
	case "", "file", "keyring":
	default:
		return fmt.Errorf("auth.token_store must be file or keyring, got %q", c.Auth.TokenStore)
	}
	if c.Mailbox.NavigationDelay != "" {
		if _, err := time.ParseDuration(c.Mailbox.NavigationDelay); err != nil {
			return fmt.Errorf("mailbox.navigation_delay: %w", err)
		}
	}
	return nil
}

// GetNavigationDelay returns the parsed folder-to-conversation delay
func (c *Config) GetNavigationDelay() time.Duration {
	if c.Mailbox.NavigationDelay != "" {
		if d, err := time.ParseDuration(c.Mailbox.NavigationDelay); err == nil && d >= 0 {
			return d
		}
	}
	return 150 * time.Millisecond
}

// GetProviderTimeout returns the parsed HTTP timeout
func (c *Config) GetProviderTimeout() time.Duration {
	if c.Provider.Timeout != "" {
		if d, err := time.ParseDuration(c.Provider.Timeout); err == nil && d > 0 {
			return d
		}
	}
	return 30 * time.Second
}

// DefaultConfigDir returns ~/.config/crm-mailbox
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "crm-mailbox")
}

// DefaultConfigPath returns the default configuration file path
func DefaultConfigPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.json")
}

// DefaultTokenPath returns the default path of the file token store
func DefaultTokenPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "token.json")
}

// DefaultDBPath returns the default search-history database path
func DefaultDBPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "mailbox.db")
}

// DefaultLogDir returns the default log directory path
func DefaultLogDir() string {
	return DefaultConfigDir()
}

// ResolvePath makes a relative path relative to the config directory and
// expands a leading ~/
func ResolvePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(DefaultConfigDir(), p)
}

// SaveConfig saves the configuration to a file, as YAML for .yaml/.yml paths
func (c *Config) SaveConfig(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
