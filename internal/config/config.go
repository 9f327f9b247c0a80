package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"freebies_claimer/internal/model"
	"freebies_claimer/internal/utils"
)

type Config struct {
	Accounts  []model.Account `yaml:"accounts"`
	Options   OptionsConfig   `yaml:"options"`
	Delay     *float64        `yaml:"delay"`
	Loop      bool            `yaml:"loop"`
	Locale    string          `yaml:"locale"`
	TwoFactor TwoFactorConfig `yaml:"twoFactor"`
	Provider  ProviderConfig  `yaml:"provider"`
	Proxy     ProxyConfig     `yaml:"proxy"`
	Limits    LimitsConfig    `yaml:"limits"`
	Storage   StorageConfig   `yaml:"storage"`
	Server    ServerConfig    `yaml:"server"`
	Notify    NotifyConfig    `yaml:"notify"`
	Log       LogConfig       `yaml:"log"`
}

// OptionsConfig is passed through to the interactive login adapter.
type OptionsConfig struct {
	Cookies             []model.BrowserCookie `yaml:"cookies"`
	Headless            bool                  `yaml:"headless"`
	BrowserBin          string                `yaml:"browserBin"`
	UserDataDir         string                `yaml:"userDataDir"`
	LoginURL            string                `yaml:"loginURL"`
	ExchangeURL         string                `yaml:"exchangeURL"`
	LoginTimeoutSeconds int                   `yaml:"loginTimeoutSeconds"`
}

func (c OptionsConfig) LoginTimeout() time.Duration {
	if c.LoginTimeoutSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.LoginTimeoutSeconds) * time.Second
}

func (c OptionsConfig) LoginOptions() model.LoginOptions {
	return model.LoginOptions{
		Cookies:      c.Cookies,
		Headless:     c.Headless,
		BrowserBin:   c.BrowserBin,
		UserDataDir:  c.UserDataDir,
		LoginURL:     c.LoginURL,
		ExchangeURL:  c.ExchangeURL,
		LoginTimeout: c.LoginTimeout(),
	}
}

type TwoFactorConfig struct {
	// RefreshBeforeFallback regenerates the one-time code before the
	// interactive login starts, since the first one may have expired.
	RefreshBeforeFallback *bool `yaml:"refreshBeforeFallback"`
}

func (c TwoFactorConfig) RefreshEnabled() bool {
	return c.RefreshBeforeFallback == nil || *c.RefreshBeforeFallback
}

type ProviderConfig struct {
	BaseURL   string           `yaml:"baseURL"`
	TimeoutMs int              `yaml:"timeoutMs"`
	Retry     ProviderRetryCfg `yaml:"retry"`
	UserAgent string           `yaml:"userAgent"`
}

type ProviderRetryCfg struct {
	Count     int `yaml:"count"`
	WaitMs    int `yaml:"waitMs"`
	MaxWaitMs int `yaml:"maxWaitMs"`
}

func (c ProviderConfig) Timeout() time.Duration {
	if c.TimeoutMs <= 0 {
		return 20 * time.Second
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

func (c ProviderRetryCfg) Wait() time.Duration {
	if c.WaitMs <= 0 {
		return 200 * time.Millisecond
	}
	return time.Duration(c.WaitMs) * time.Millisecond
}

func (c ProviderRetryCfg) MaxWait() time.Duration {
	if c.MaxWaitMs <= 0 {
		return 1200 * time.Millisecond
	}
	return time.Duration(c.MaxWaitMs) * time.Millisecond
}

type ProxyConfig struct {
	Global string `yaml:"global"`
}

type LimitsConfig struct {
	GlobalQPS   float64 `yaml:"globalQPS"`
	GlobalBurst int     `yaml:"globalBurst"`
	// ResolveConcurrency caps parallel product/bundle lookups per pass.
	ResolveConcurrency int `yaml:"resolveConcurrency"`
}

type StorageConfig struct {
	SQLitePath string `yaml:"sqlitePath"`
}

type ServerConfig struct {
	// Addr enables the status API when non-empty.
	Addr string     `yaml:"addr"`
	Cors CorsConfig `yaml:"cors"`
}

type CorsConfig struct {
	AllowOrigins     []string `yaml:"allowOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
}

type NotifyConfig struct {
	Email model.EmailSettings `yaml:"email"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DelayDuration converts the configured delay (minutes) into a duration.
// An explicit 0 restarts the next pass immediately.
func (c Config) DelayDuration() time.Duration {
	if c.Delay == nil || *c.Delay <= 0 {
		return 0
	}
	return time.Duration(*c.Delay * float64(time.Minute))
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

// Parse decodes a YAML (or JSON) document.
func Parse(b []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyArgs replaces the configured accounts with a single account built from
// positional arguments: email password remember(0/1) secret cookiesJSON.
// Any such invocation disables looping.
func (c *Config) ApplyArgs(args []string) error {
	if len(args) == 0 {
		return nil
	}
	get := func(i int) string {
		if i < len(args) {
			return args[i]
		}
		return ""
	}

	acc := model.Account{
		Email:    get(0),
		Password: get(1),
		Secret:   get(3),
	}
	if v := strings.TrimSpace(get(2)); v != "" {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("remember flag %q: %w", v, err)
		}
		acc.RememberLastSession = n != 0
	}
	if v := strings.TrimSpace(get(4)); v != "" {
		if err := json.Unmarshal([]byte(v), &acc.Cookies); err != nil {
			return fmt.Errorf("cookies argument: %w", err)
		}
	}

	c.Loop = false
	c.Accounts = []model.Account{acc}
	return c.validate()
}

func (c *Config) applyDefaults() {
	if c.Delay == nil {
		day := 1440.0
		c.Delay = &day
	} else if *c.Delay < 0 {
		zero := 0.0
		c.Delay = &zero
	}
	if c.Locale == "" {
		c.Locale = "en-US"
	}
	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = "http://127.0.0.1:8080/mock"
	}
	if c.Provider.UserAgent == "" {
		c.Provider.UserAgent = utils.DefaultDesktopUserAgent()
	}
	if c.Provider.Retry.Count < 0 {
		c.Provider.Retry.Count = 0
	}
	if c.Limits.GlobalQPS <= 0 {
		c.Limits.GlobalQPS = 5
	}
	if c.Limits.GlobalBurst <= 0 {
		c.Limits.GlobalBurst = 10
	}
	if c.Limits.ResolveConcurrency <= 0 {
		c.Limits.ResolveConcurrency = 4
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "file::memory:?cache=shared"
	}
	if c.Options.LoginURL == "" {
		c.Options.LoginURL = "https://www.epicgames.com/id/login"
	}
	if c.Options.ExchangeURL == "" {
		c.Options.ExchangeURL = "https://www.epicgames.com/id/api/exchange"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}

// RequireAccounts fails when neither the file nor the command line supplied
// an account.
func (c Config) RequireAccounts() error {
	if len(c.Accounts) == 0 {
		return errors.New("at least one account is required")
	}
	return nil
}

func (c Config) validate() error {
	for i, acc := range c.Accounts {
		if strings.TrimSpace(acc.Email) == "" {
			return fmt.Errorf("accounts[%d].email is required", i)
		}
	}
	if c.Provider.BaseURL == "" {
		return errors.New("provider.baseURL is required")
	}
	return nil
}
