/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	applog "dashpoint/internal/log"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables are treated as read-only overrides at runtime.
//
// config_version: bump when the structure changes in a backward-incompatible way.
// Unknown fields are ignored on unmarshal.

type BackendConfig struct {
	BaseURL     string `yaml:"base_url"`
	TimeoutMs   int    `yaml:"timeout_ms"`
	TLSInsecure bool   `yaml:"tls_insecure"`
	// Token is not stored on disk; it lives in the OS keychain.
}

type ServerConfig struct {
	Addr        string `yaml:"addr"`
	DatabaseURL string `yaml:"database_url"`
	// AuthSecret signs bearer tokens. Prefer the env override over the file.
	AuthSecret string `yaml:"auth_secret"`
	// AdminKey gates token minting outside dev mode. The CLI sends it on login.
	AdminKey string `yaml:"admin_key"`
	// Dev lets anyone mint tokens. An empty AuthSecret implies it.
	Dev bool `yaml:"dev"`
}

type CanvasConfig struct {
	PersistDelayMs int     `yaml:"persist_delay_ms"`
	WriteTimeoutMs int     `yaml:"write_timeout_ms"`
	Gap            float64 `yaml:"gap"`
	SnapThreshold  float64 `yaml:"snap_threshold"`
}

type CacheConfig struct {
	Path string `yaml:"path"` // empty means the per-user cache dir
}

type GeneralConfig struct {
	TelemetryOptIn    bool   `yaml:"telemetry_opt_in"`
	TelemetryEndpoint string `yaml:"telemetry_endpoint"`
	Theme             string `yaml:"theme"` // "system" | "light" | "dark"
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

type AppConfig struct {
	ConfigVersion int           `yaml:"config_version"`
	General       GeneralConfig `yaml:"general"`
	Backend       BackendConfig `yaml:"backend"`
	Server        ServerConfig  `yaml:"server"`
	Canvas        CanvasConfig  `yaml:"canvas"`
	Cache         CacheConfig   `yaml:"cache"`
	Logging       LoggingConfig `yaml:"logging"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		General:       GeneralConfig{Theme: "system"},
		Backend:       BackendConfig{BaseURL: "http://localhost:8080", TimeoutMs: 15000},
		Server:        ServerConfig{Addr: ":8080"},
		Canvas:        CanvasConfig{PersistDelayMs: 500, WriteTimeoutMs: 10000, Gap: 24, SnapThreshold: 6},
		Logging:       LoggingConfig{Level: "info", Format: "console"},
	}
}

// Env var names used as overrides.
const (
	EnvBackendURL       = "DP_BACKEND_URL"
	EnvBackendTimeoutMs = "DP_BACKEND_TIMEOUT_MS"
	EnvBackendTLSInsec  = "DP_TLS_INSECURE"
	EnvTelemetryOptIn   = "DP_TELEMETRY_OPT_IN"
	EnvServerAddr       = "DP_SERVER_ADDR"
	EnvDatabaseURL      = "DP_DATABASE_URL"
	EnvAuthSecret       = "DP_AUTH_SECRET"
	EnvAdminKey         = "DP_ADMIN_KEY"
	EnvServerDev        = "DP_DEV"
	EnvPersistDelayMs   = "DP_PERSIST_DELAY_MS"
	EnvCachePath        = "DP_CACHE_PATH"
	// EnvLogLevel Logging envs
	EnvLogLevel  = "DP_LOG_LEVEL"
	EnvLogFormat = "DP_LOG_FORMAT"
	EnvLogSource = "DP_LOG_SOURCE"
	EnvLogFile   = "DP_LOG_FILE"
	// EnvConfigPath points at an alternative config file.
	EnvConfigPath = "DP_CONFIG"
)

// Service/keys for OS keyring.
const (
	keyringService = "Dashpoint"
	keyringToken   = "backend_token"
)

// TokenStore abstracts the keyring so tests can stub it.
type TokenStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

var tokenStore TokenStore = osKeyring{}

// SetTokenStore replaces the token store and returns the previous one.
func SetTokenStore(s TokenStore) TokenStore {
	prev := tokenStore
	tokenStore = s
	return prev
}

// osKeyring implements TokenStore using the OS keyring via github.com/zalando/go-keyring.
type osKeyring struct{}

func (osKeyring) Get(service, key string) (string, error) { return keyring.Get(service, key) }
func (osKeyring) Set(service, key, value string) error    { return keyring.Set(service, key, value) }
func (osKeyring) Delete(service, key string) error        { return keyring.Delete(service, key) }

// ConfigPath returns the per-user config file path. DP_CONFIG wins when set.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p, nil
	}
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" { // fallback
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "Dashpoint")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "Dashpoint")
	default: // linux and others
		base = filepath.Join(os.Getenv("HOME"), ".config", "dashpoint")
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads the user config file (if present), applies defaults, and merges environment overrides.
// It also loads the backend token from keyring (not kept inside the struct; returned separately).
func Load() (AppConfig, string, error) {
	path, err := ConfigPath()
	if err != nil {
		return Defaults(), "", err
	}
	cfg, err := LoadFile(path)
	// token from keyring; a missing entry is not an error
	tok, _ := tokenStore.Get(keyringService, keyringToken)
	return cfg, tok, err
}

// LoadFile reads path over the defaults and applies env overrides. A missing
// file yields the defaults; a malformed file is reported but the defaults
// (with env overrides) are still returned.
func LoadFile(path string) (AppConfig, error) {
	cfg := Defaults()
	var perr error
	if data, err := os.ReadFile(path); err == nil {
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			perr = err
		} else {
			mergeInto(&cfg, &fileCfg)
		}
	}
	applyEnvOverrides(&cfg)
	return cfg, perr
}

// Save writes the user config YAML and persists the token into OS keyring (if non-empty).
func Save(cfg AppConfig, token string) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := SaveFile(path, cfg); err != nil {
		return err
	}
	if token != "" {
		if err := tokenStore.Set(keyringService, keyringToken, token); err != nil {
			return err
		}
	}
	return nil
}

// SaveFile writes cfg as YAML to path.
func SaveFile(path string, cfg AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// ClearToken removes the stored backend token.
func ClearToken() error {
	err := tokenStore.Delete(keyringService, keyringToken)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	if src.General.Theme != "" {
		dst.General.Theme = src.General.Theme
	}
	// booleans: copy directly from src (file) so user preferences persist
	dst.General.TelemetryOptIn = src.General.TelemetryOptIn
	if src.General.TelemetryEndpoint != "" {
		dst.General.TelemetryEndpoint = src.General.TelemetryEndpoint
	}
	if src.Backend.BaseURL != "" {
		dst.Backend.BaseURL = src.Backend.BaseURL
	}
	if src.Backend.TimeoutMs != 0 {
		dst.Backend.TimeoutMs = src.Backend.TimeoutMs
	}
	dst.Backend.TLSInsecure = src.Backend.TLSInsecure
	if src.Server.Addr != "" {
		dst.Server.Addr = src.Server.Addr
	}
	if src.Server.DatabaseURL != "" {
		dst.Server.DatabaseURL = src.Server.DatabaseURL
	}
	if src.Server.AuthSecret != "" {
		dst.Server.AuthSecret = src.Server.AuthSecret
	}
	if src.Server.AdminKey != "" {
		dst.Server.AdminKey = src.Server.AdminKey
	}
	dst.Server.Dev = src.Server.Dev
	if src.Canvas.PersistDelayMs > 0 {
		dst.Canvas.PersistDelayMs = src.Canvas.PersistDelayMs
	}
	if src.Canvas.WriteTimeoutMs > 0 {
		dst.Canvas.WriteTimeoutMs = src.Canvas.WriteTimeoutMs
	}
	if src.Canvas.Gap > 0 {
		dst.Canvas.Gap = src.Canvas.Gap
	}
	if src.Canvas.SnapThreshold > 0 {
		dst.Canvas.SnapThreshold = src.Canvas.SnapThreshold
	}
	if strings.TrimSpace(src.Cache.Path) != "" {
		dst.Cache.Path = strings.TrimSpace(src.Cache.Path)
	}
	// logging
	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	dst.Logging.Source = src.Logging.Source
	if strings.TrimSpace(src.Logging.File) != "" {
		dst.Logging.File = strings.TrimSpace(src.Logging.File)
	}
}

func truthy(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

func applyEnvOverrides(cfg *AppConfig) {
	str := func(env string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			*dst = v
		}
	}
	num := func(env string, dst *int) {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				*dst = n
			}
		}
	}
	flag := func(env string, dst *bool) {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			*dst = truthy(v)
		}
	}
	str(EnvBackendURL, &cfg.Backend.BaseURL)
	num(EnvBackendTimeoutMs, &cfg.Backend.TimeoutMs)
	flag(EnvBackendTLSInsec, &cfg.Backend.TLSInsecure)
	flag(EnvTelemetryOptIn, &cfg.General.TelemetryOptIn)
	str(EnvServerAddr, &cfg.Server.Addr)
	str(EnvDatabaseURL, &cfg.Server.DatabaseURL)
	str(EnvAuthSecret, &cfg.Server.AuthSecret)
	str(EnvAdminKey, &cfg.Server.AdminKey)
	flag(EnvServerDev, &cfg.Server.Dev)
	num(EnvPersistDelayMs, &cfg.Canvas.PersistDelayMs)
	str(EnvCachePath, &cfg.Cache.Path)
	// logging overrides
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	flag(EnvLogSource, &cfg.Logging.Source)
	str(EnvLogFile, &cfg.Logging.File)
}

var envByKey = map[string]string{
	"backend.base_url":         EnvBackendURL,
	"backend.timeout_ms":       EnvBackendTimeoutMs,
	"backend.tls_insecure":     EnvBackendTLSInsec,
	"general.telemetry_opt_in": EnvTelemetryOptIn,
	"server.addr":              EnvServerAddr,
	"server.database_url":      EnvDatabaseURL,
	"server.auth_secret":       EnvAuthSecret,
	"server.admin_key":         EnvAdminKey,
	"server.dev":               EnvServerDev,
	"canvas.persist_delay_ms":  EnvPersistDelayMs,
	"cache.path":               EnvCachePath,
	"logging.level":            EnvLogLevel,
	"logging.format":           EnvLogFormat,
	"logging.source":           EnvLogSource,
	"logging.file":             EnvLogFile,
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	env, ok := envByKey[key]
	if !ok || os.Getenv(env) == "" {
		return "", false
	}
	return env, true
}

// Timeout returns the backend request timeout.
func (b BackendConfig) Timeout() time.Duration {
	if b.TimeoutMs <= 0 {
		return time.Duration(Defaults().Backend.TimeoutMs) * time.Millisecond
	}
	return time.Duration(b.TimeoutMs) * time.Millisecond
}

// PersistDelay is the debounce before a layout change is sent to the backend.
func (c CanvasConfig) PersistDelay() time.Duration {
	return time.Duration(c.PersistDelayMs) * time.Millisecond
}

// WriteTimeout bounds a single remote layout write.
func (c CanvasConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutMs) * time.Millisecond
}

// LogOptions converts the logging section for log.Init.
func (l LoggingConfig) LogOptions() applog.Options {
	return applog.Options{Level: l.Level, Format: l.Format, AddSource: l.Source, File: l.File}
}
