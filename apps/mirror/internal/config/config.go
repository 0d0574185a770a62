// Package config holds the mirror's runtime settings: compiled-in defaults,
// optionally overlaid by a YAML profile and then by environment variables.
package config

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultBaseURL is the anonymized repository service.
const DefaultBaseURL = "https://anonymous.4open.science"

// Headers is the request header profile sent with every call to the
// anonymized service. The service rejects requests that do not look like a
// same-origin browser fetch.
type Headers struct {
	Accept          string            `yaml:"accept"`
	AcceptLanguage  string            `yaml:"accept_language"`
	Cookie          string            `yaml:"cookie"`
	Referer         string            `yaml:"referer"`
	SecCHUA         string            `yaml:"sec_ch_ua"`
	SecCHUAMobile   string            `yaml:"sec_ch_ua_mobile"`
	SecCHUAPlatform string            `yaml:"sec_ch_ua_platform"`
	SecFetchDest    string            `yaml:"sec_fetch_dest"`
	SecFetchMode    string            `yaml:"sec_fetch_mode"`
	SecFetchSite    string            `yaml:"sec_fetch_site"`
	UserAgent       string            `yaml:"user_agent"`
	Extra           map[string]string `yaml:"extra"`
}

// DefaultHeaders returns the browser profile the service is known to accept.
// The cookie is a fixed session value and is not refreshed.
func DefaultHeaders() Headers {
	return Headers{
		Accept:          "application/json, text/plain, */*",
		AcceptLanguage:  "en-US,en;q=0.9",
		Cookie:          "_ga=GA1.2.1832924814.1645409307; _gid=GA1.2.549999584.1647030574; _gat=1",
		Referer:         "https://anonymous.4open.science/r/Paper470/ReverseTool/package-lock.json",
		SecCHUA:         `" Not A;Brand";v="99", "Chromium";v="99", "Google Chrome";v="99"`,
		SecCHUAMobile:   "?0",
		SecCHUAPlatform: `"Linux"`,
		SecFetchDest:    "empty",
		SecFetchMode:    "cors",
		SecFetchSite:    "same-origin",
		UserAgent:       "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/99.0.4844.51 Safari/537.36",
	}
}

// HTTPHeader renders the profile as an http.Header. Empty values are omitted.
func (h Headers) HTTPHeader() http.Header {
	out := make(http.Header)
	set := func(k, v string) {
		if v != "" {
			out.Set(k, v)
		}
	}
	set("Accept", h.Accept)
	set("Accept-Language", h.AcceptLanguage)
	set("Cookie", h.Cookie)
	set("Referer", h.Referer)
	set("Sec-Ch-Ua", h.SecCHUA)
	set("Sec-Ch-Ua-Mobile", h.SecCHUAMobile)
	set("Sec-Ch-Ua-Platform", h.SecCHUAPlatform)
	set("Sec-Fetch-Dest", h.SecFetchDest)
	set("Sec-Fetch-Mode", h.SecFetchMode)
	set("Sec-Fetch-Site", h.SecFetchSite)
	set("User-Agent", h.UserAgent)
	for k, v := range h.Extra {
		set(k, v)
	}
	return out
}

// Delay bounds the pause after each download.
type Delay struct {
	Min time.Duration `yaml:"min"`
	Max time.Duration `yaml:"max"`
}

// GitHub configures the github.com source.
type GitHub struct {
	Token          string `yaml:"token"`
	BaseURL        string `yaml:"base_url"`
	AppID          int64  `yaml:"app_id"`
	InstallationID int64  `yaml:"installation_id"`
	PrivateKeyPath string `yaml:"private_key_path"`
}

// Config is the full mirror configuration.
type Config struct {
	BaseURL          string        `yaml:"base_url"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	Headers          Headers       `yaml:"headers"`
	Delay            Delay         `yaml:"delay"`
	GitHub           GitHub        `yaml:"github"`
	RedisAddr        string        `yaml:"redis_addr"`
	PostgresURL      string        `yaml:"postgres_url"`
	TemporalHostPort string        `yaml:"temporal_hostport"`
	OTelEnabled      bool          `yaml:"otel_enabled"`
}

// Default returns the compiled-in configuration.
func Default() Config {
	return Config{
		BaseURL: DefaultBaseURL,
		Headers: DefaultHeaders(),
		Delay:   Delay{Min: 1000 * time.Millisecond, Max: 10000 * time.Millisecond},
	}
}

// Load returns Default overlaid by the YAML file at path (skipped when path is
// empty) and then by environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.BaseURL = envOr("ANON_BASE_URL", c.BaseURL)
	c.Headers.Cookie = envOr("ANON_COOKIE", c.Headers.Cookie)
	c.RedisAddr = envOr("REDIS_ADDR", c.RedisAddr)
	c.PostgresURL = envOr("POSTGRES_URL", c.PostgresURL)
	c.TemporalHostPort = envOr("TEMPORAL_HOSTPORT", c.TemporalHostPort)
	c.GitHub.Token = envOr("GITHUB_TOKEN", c.GitHub.Token)
	c.GitHub.BaseURL = envOr("GITHUB_API_URL", c.GitHub.BaseURL)
	c.GitHub.PrivateKeyPath = envOr("GITHUB_APP_PRIVATE_KEY_PATH", c.GitHub.PrivateKeyPath)

	if v := os.Getenv("OTEL_ENABLED"); v != "" {
		c.OTelEnabled = v == "true"
	}
	if v := os.Getenv("ANON_REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("ANON_REQUEST_TIMEOUT: %w", err)
		}
		c.RequestTimeout = d
	}
	for key, dst := range map[string]*int64{
		"GITHUB_APP_ID":              &c.GitHub.AppID,
		"GITHUB_APP_INSTALLATION_ID": &c.GitHub.InstallationID,
	} {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
	}
	return nil
}

// Validate reports settings that cannot produce a working run.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if c.Delay.Min < 0 || c.Delay.Max < c.Delay.Min {
		return fmt.Errorf("delay: need 0 <= min <= max, got min=%s max=%s", c.Delay.Min, c.Delay.Max)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout must not be negative")
	}
	return nil
}

// UsesGitHubApp reports whether GitHub App credentials are configured.
func (c Config) UsesGitHubApp() bool {
	return c.GitHub.AppID != 0 && c.GitHub.InstallationID != 0 && c.GitHub.PrivateKeyPath != ""
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
