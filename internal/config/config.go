// Package config loads the client and relay settings from YAML, a .env
// file and POWERBOARD_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Origin          string              `yaml:"origin"`
	NotificationAPI string              `yaml:"notification_api"`
	LoginURL        string              `yaml:"login_url"`
	Auth            AuthConfig          `yaml:"auth"`
	Gateway         GatewayConfig       `yaml:"gateway"`
	Toasts          ToastConfig         `yaml:"toasts"`
	Notifications   NotificationsConfig `yaml:"notifications"`
	Storage         StorageConfig       `yaml:"storage"`
	Log             LogConfig           `yaml:"log"`
	Metrics         MetricsConfig       `yaml:"metrics"`
	Relay           RelayConfig         `yaml:"relay"`
}

type AuthConfig struct {
	TokenURL      string `yaml:"token_url"`
	DeviceAuthURL string `yaml:"device_auth_url"`
	ClientID      string `yaml:"client_id"`
	Audience      string `yaml:"audience"`
	Scope         string `yaml:"scope"`
}

// Scopes splits Scope on whitespace.
func (a AuthConfig) Scopes() []string {
	return strings.Fields(a.Scope)
}

type GatewayConfig struct {
	ReconnectPolicy   string        `yaml:"reconnect_policy"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	ReconnectMaxDelay time.Duration `yaml:"reconnect_max_delay"`
	MaxElapsed        time.Duration `yaml:"max_elapsed"`
}

type ToastConfig struct {
	MaxVisible int           `yaml:"max_visible"`
	Duration   time.Duration `yaml:"duration"`
}

type NotificationsConfig struct {
	OnFailure string `yaml:"on_failure"`
}

type StorageConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type RelayConfig struct {
	Addr           string   `yaml:"addr"`
	InternalSecret string   `yaml:"internal_secret"`
	JWTSecret      string   `yaml:"jwt_secret"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxConnections int      `yaml:"max_connections"`
}

func defaultConfig() *Config {
	return &Config{
		Origin:          "http://localhost:5173",
		NotificationAPI: "http://localhost:5173/api",
		LoginURL:        "http://localhost:5173/login",
		Auth: AuthConfig{
			Scope: "openid profile email offline_access",
		},
		Gateway: GatewayConfig{
			ReconnectPolicy:   "fixed",
			ReconnectDelay:    3 * time.Second,
			ReconnectMaxDelay: 30 * time.Second,
		},
		Toasts: ToastConfig{
			MaxVisible: 3,
			Duration:   4 * time.Second,
		},
		Notifications: NotificationsConfig{OnFailure: "keep"},
		Storage:       StorageConfig{Path: "~/.powerboard/client.db"},
		Log:           LogConfig{Level: "info"},
		Relay: RelayConfig{
			Addr:           ":8090",
			InternalSecret: "dev-secret",
		},
	}
}

// DefaultPath is ~/.powerboard/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".powerboard", "config.yaml")
}

// Load reads path over the defaults, then applies .env and environment
// overrides. A missing file is not an error when path is the default.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && path == DefaultPath():
	default:
		return nil, err
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg.applyEnv(os.Getenv)

	cfg.Storage.Path = expandHome(cfg.Storage.Path)
	cfg.Log.File = expandHome(cfg.Log.File)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := getenv(k); v != "" {
				*dst = v
				return
			}
		}
	}
	set(&c.Origin, "POWERBOARD_ORIGIN")
	set(&c.NotificationAPI, "POWERBOARD_NOTIFICATION_API")
	set(&c.LoginURL, "POWERBOARD_LOGIN_URL")
	set(&c.Auth.TokenURL, "POWERBOARD_AUTH_TOKEN_URL")
	set(&c.Auth.DeviceAuthURL, "POWERBOARD_AUTH_DEVICE_URL")
	set(&c.Auth.ClientID, "POWERBOARD_AUTH_CLIENT_ID")
	set(&c.Auth.Audience, "POWERBOARD_AUTH_AUDIENCE", "AUTH0_AUDIENCE")
	set(&c.Log.Level, "POWERBOARD_LOG_LEVEL")
	set(&c.Metrics.Addr, "POWERBOARD_METRICS_ADDR")
	set(&c.Relay.Addr, "POWERBOARD_RELAY_ADDR")
	set(&c.Relay.InternalSecret, "POWERBOARD_RELAY_INTERNAL_SECRET", "GATEWAY_INTERNAL_SECRET")
	set(&c.Relay.JWTSecret, "POWERBOARD_RELAY_JWT_SECRET")
}

// Validate rejects settings the components cannot run with.
func (c *Config) Validate() error {
	var errs []error
	u, err := url.Parse(c.Origin)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("origin %q must be an http(s) URL", c.Origin))
	}
	switch c.Gateway.ReconnectPolicy {
	case "fixed", "exponential":
	default:
		errs = append(errs, fmt.Errorf("gateway.reconnect_policy %q must be fixed or exponential", c.Gateway.ReconnectPolicy))
	}
	if c.Gateway.ReconnectDelay <= 0 {
		errs = append(errs, errors.New("gateway.reconnect_delay must be positive"))
	}
	if c.Gateway.ReconnectPolicy == "exponential" && c.Gateway.ReconnectMaxDelay < c.Gateway.ReconnectDelay {
		errs = append(errs, errors.New("gateway.reconnect_max_delay must not be below reconnect_delay"))
	}
	if c.Toasts.MaxVisible <= 0 {
		errs = append(errs, errors.New("toasts.max_visible must be positive"))
	}
	if c.Toasts.Duration <= 0 {
		errs = append(errs, errors.New("toasts.duration must be positive"))
	}
	switch c.Notifications.OnFailure {
	case "keep", "revert":
	default:
		errs = append(errs, fmt.Errorf("notifications.on_failure %q must be keep or revert", c.Notifications.OnFailure))
	}
	return errors.Join(errs...)
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
