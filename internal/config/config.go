// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/mimochat/internal/completion"
	"github.com/jeranaias/mimochat/internal/offline"
	"github.com/jeranaias/mimochat/internal/session"
	"github.com/jeranaias/mimochat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete mimochat configuration.
type Config struct {
	Endpoint EndpointConfig `toml:"endpoint" json:"endpoint"`
	Session  SessionConfig  `toml:"session" json:"session"`
	Server   ServerConfig   `toml:"server" json:"server"`
	UI       UIConfig       `toml:"ui" json:"ui"`
	Log      LogConfig      `toml:"log" json:"log"`
}

// EndpointConfig locates the completion endpoint and sets sampling.
type EndpointConfig struct {
	URL                string  `toml:"url" json:"url"`
	Model              string  `toml:"model" json:"model"`
	Temperature        float64 `toml:"temperature" json:"temperature"`
	MaxTokens          int     `toml:"max_tokens" json:"max_tokens"`
	ConnectTimeoutSecs int     `toml:"connect_timeout_secs" json:"connect_timeout_secs"`

	// LocalOnly rejects endpoints that are not on the loopback interface.
	LocalOnly bool `toml:"local_only" json:"local_only"`
}

// SessionConfig shapes each conversation.
type SessionConfig struct {
	SystemPrompt string `toml:"system_prompt" json:"system_prompt"`

	// InactivityResetSecs drops prior turns after this long without a
	// submission. 0 disables the reset.
	InactivityResetSecs int `toml:"inactivity_reset_secs" json:"inactivity_reset_secs"`

	// ReinforcePrompt appends an instruction naming the current prompt.
	ReinforcePrompt bool `toml:"reinforce_prompt" json:"reinforce_prompt"`
}

// ServerConfig configures the browser surface.
type ServerConfig struct {
	Addr           string   `toml:"addr" json:"addr"`
	AllowedOrigins []string `toml:"allowed_origins" json:"allowed_origins"`
	CodeStyle      string   `toml:"code_style" json:"code_style"`
}

// UIConfig configures the terminal surfaces.
type UIConfig struct {
	// Theme is auto, dark, light or notty.
	Theme string `toml:"theme" json:"theme"`

	// MaxFPS caps live-region redraws. 0 means unthrottled.
	MaxFPS float64 `toml:"max_fps" json:"max_fps"`

	// RenderMode is rich (markdown and math) or plain.
	RenderMode string `toml:"render_mode" json:"render_mode"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `toml:"level" json:"level"`
	Format string `toml:"format" json:"format"`
	File   string `toml:"file" json:"file"`
}

// Render modes.
const (
	RenderRich  = "rich"
	RenderPlain = "plain"
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Endpoint: EndpointConfig{
			URL:                completion.DefaultURL,
			Model:              completion.DefaultModel,
			Temperature:        completion.DefaultTemperature,
			MaxTokens:          completion.NoTokenLimit,
			ConnectTimeoutSecs: 10,
		},
		Session: SessionConfig{
			SystemPrompt:        session.DefaultSystemPrompt,
			InactivityResetSecs: int(session.DefaultInactivityThreshold / time.Second),
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8501",
		},
		UI: UIConfig{
			Theme:      "auto",
			MaxFPS:     session.DefaultMaxFPS,
			RenderMode: RenderRich,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// SessionOptions converts the configuration into controller options.
func (c *Config) SessionOptions() session.Options {
	return session.Options{
		Model:               c.Endpoint.Model,
		Temperature:         c.Endpoint.Temperature,
		MaxTokens:           c.Endpoint.MaxTokens,
		SystemPrompt:        c.Session.SystemPrompt,
		InactivityThreshold: time.Duration(c.Session.InactivityResetSecs) * time.Second,
		Reinforce:           c.Session.ReinforcePrompt,
		MaxFPS:              c.UI.MaxFPS,
	}
}

// ClientConfig converts the configuration into completion client settings.
func (c *Config) ClientConfig() completion.Config {
	cfg := completion.DefaultConfig()
	cfg.URL = c.Endpoint.URL
	cfg.Model = c.Endpoint.Model
	cfg.ConnectTimeout = time.Duration(c.Endpoint.ConnectTimeoutSecs) * time.Second
	return cfg
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the mimochat configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".mimochat"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// DefaultPath returns the config file Load would read: the TOML file if it
// exists, else the JSON file if it exists, else the TOML path.
func DefaultPath() (string, error) {
	tomlPath, err := ConfigPathTOML()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(tomlPath); err == nil {
		return tomlPath, nil
	}
	jsonPath, err := ConfigPathJSON()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(jsonPath); err == nil {
		return jsonPath, nil
	}
	return tomlPath, nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the default location. A missing file yields
// the defaults. Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := DefaultPath()
	if err != nil {
		return finish(Default())
	}
	if _, statErr := os.Stat(path); statErr != nil {
		return finish(Default())
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific file. Files ending in
// .json are read as JSON, everything else as TOML.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if strings.HasSuffix(strings.ToLower(path), ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else if err := LoadTOML(cfg, path); err != nil {
		return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
	}
	return finish(cfg)
}

// LoadTOML decodes a TOML file over cfg. Keys absent from the file keep the
// values already in cfg.
func LoadTOML(cfg *Config, path string) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

// LoadJSON decodes a JSON file over cfg.
func LoadJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	fillDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// fillDefaults fills empty strings with defaults. Numeric zeroes are
// meaningful (temperature 0, reset disabled) and are kept.
func fillDefaults(cfg *Config) {
	defaults := Default()

	if cfg.Endpoint.URL == "" {
		cfg.Endpoint.URL = defaults.Endpoint.URL
	}
	if cfg.Endpoint.Model == "" {
		cfg.Endpoint.Model = defaults.Endpoint.Model
	}
	if cfg.Endpoint.ConnectTimeoutSecs <= 0 {
		cfg.Endpoint.ConnectTimeoutSecs = defaults.Endpoint.ConnectTimeoutSecs
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaults.Server.Addr
	}
	if cfg.UI.Theme == "" {
		cfg.UI.Theme = defaults.UI.Theme
	}
	if cfg.UI.RenderMode == "" {
		cfg.UI.RenderMode = defaults.UI.RenderMode
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = defaults.Log.Format
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

const fileHeader = `# mimochat configuration file
#
# Environment variables override these values:
#   MIMOCHAT_URL, MIMOCHAT_MODEL, MIMOCHAT_TEMPERATURE,
#   MIMOCHAT_INACTIVITY_SECS, MIMOCHAT_ADDR, MIMOCHAT_LOG_LEVEL,
#   MIMOCHAT_SYSTEM_PROMPT

`

// SaveTOML writes cfg to path atomically with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString(fileHeader)
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON writes cfg to path atomically with 0600 permissions.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Save writes cfg to path, choosing the format by extension.
func Save(cfg *Config, path string) error {
	if strings.HasSuffix(strings.ToLower(path), ".json") {
		return SaveJSON(cfg, path)
	}
	return SaveTOML(cfg, path)
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration and returns ValidateErrors listing every
// problem, or nil.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if err := offline.ValidateEndpoint(c.Endpoint.URL, c.Endpoint.LocalOnly); errors.Is(err, offline.ErrNonLocalhost) {
		add("endpoint.url", "must be a loopback address while local_only is set, got %q", c.Endpoint.URL)
	} else if err != nil {
		add("endpoint.url", "must be an absolute http(s) URL, got %q", c.Endpoint.URL)
	}
	if strings.TrimSpace(c.Endpoint.Model) == "" {
		add("endpoint.model", "must not be empty")
	}
	if c.Endpoint.Temperature < 0 || c.Endpoint.Temperature > 2 {
		add("endpoint.temperature", "must be between 0 and 2, got %g", c.Endpoint.Temperature)
	}
	if c.Endpoint.MaxTokens < -1 || c.Endpoint.MaxTokens == 0 {
		add("endpoint.max_tokens", "must be -1 (no limit) or positive, got %d", c.Endpoint.MaxTokens)
	}
	if c.Endpoint.ConnectTimeoutSecs < 1 || c.Endpoint.ConnectTimeoutSecs > 300 {
		add("endpoint.connect_timeout_secs", "must be between 1 and 300, got %d", c.Endpoint.ConnectTimeoutSecs)
	}

	if c.Session.InactivityResetSecs < 0 {
		add("session.inactivity_reset_secs", "must be 0 (disabled) or positive, got %d", c.Session.InactivityResetSecs)
	}

	if _, _, err := net.SplitHostPort(c.Server.Addr); err != nil {
		add("server.addr", "must be host:port, got %q", c.Server.Addr)
	}
	for _, origin := range c.Server.AllowedOrigins {
		if origin == "*" {
			continue
		}
		if u, err := url.Parse(origin); err != nil || u.Host == "" {
			add("server.allowed_origins", "invalid origin %q", origin)
		}
	}

	switch strings.ToLower(c.UI.Theme) {
	case "auto", "dark", "light", "notty":
	default:
		add("ui.theme", "must be one of auto, dark, light, notty, got %q", c.UI.Theme)
	}
	if c.UI.MaxFPS < 0 || c.UI.MaxFPS > 240 {
		add("ui.max_fps", "must be between 0 and 240, got %g", c.UI.MaxFPS)
	}
	switch c.UI.RenderMode {
	case RenderRich, RenderPlain:
	default:
		add("ui.render_mode", "must be rich or plain, got %q", c.UI.RenderMode)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		add("log.level", "must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		add("log.format", "must be text or json, got %q", c.Log.Format)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
// Unparseable numeric values are ignored.
//
// Supported environment variables:
//   - MIMOCHAT_URL: endpoint.url
//   - MIMOCHAT_MODEL: endpoint.model
//   - MIMOCHAT_TEMPERATURE: endpoint.temperature
//   - MIMOCHAT_INACTIVITY_SECS: session.inactivity_reset_secs
//   - MIMOCHAT_SYSTEM_PROMPT: session.system_prompt
//   - MIMOCHAT_ADDR: server.addr
//   - MIMOCHAT_LOG_LEVEL: log.level
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("MIMOCHAT_URL"); v != "" {
		c.Endpoint.URL = v
	}
	if v := os.Getenv("MIMOCHAT_MODEL"); v != "" {
		c.Endpoint.Model = v
	}
	if v := os.Getenv("MIMOCHAT_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Endpoint.Temperature = f
		}
	}
	if v := os.Getenv("MIMOCHAT_INACTIVITY_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Session.InactivityResetSecs = n
		}
	}
	if v, ok := os.LookupEnv("MIMOCHAT_SYSTEM_PROMPT"); ok {
		c.Session.SystemPrompt = v
	}
	if v := os.Getenv("MIMOCHAT_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("MIMOCHAT_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// =============================================================================
// GET HELPER (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value by its file key, e.g.
// "endpoint.temperature".
func (c *Config) Get(key string) (any, error) {
	if key == "" {
		return nil, errors.New("empty key")
	}
	parts := strings.Split(key, ".")
	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		field, ok := fieldByTag(v, part)
		if !ok {
			return nil, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return field.Interface(), nil
		}
		if field.Kind() != reflect.Struct {
			return nil, fmt.Errorf("field '%s' is not a section", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return nil, fmt.Errorf("invalid key: %s", key)
}

// Keys lists every leaf key in file order.
func Keys() []string {
	var keys []string
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		section := t.Field(i)
		for j := 0; j < section.Type.NumField(); j++ {
			keys = append(keys, section.Tag.Get("toml")+"."+section.Type.Field(j).Tag.Get("toml"))
		}
	}
	return keys
}

func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if t.Field(i).Tag.Get("toml") == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// =============================================================================
// COPY AND DISPLAY
// =============================================================================

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	if c.Server.AllowedOrigins != nil {
		clone.Server.AllowedOrigins = append([]string(nil), c.Server.AllowedOrigins...)
	}
	return &clone
}

// String renders the configuration as TOML.
func (c *Config) String() string {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Sprintf("<config: %v>", err)
	}
	return buf.String()
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance, loading it from the
// default location on first access. Load failures fall back to defaults.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
			cfg = Default()
		}
		globalConfigMu.Lock()
		if globalConfig == nil {
			globalConfig = cfg
		}
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// ReloadGlobal reloads the global configuration from disk. On failure the
// previous configuration stays in place.
func ReloadGlobal() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	SetGlobal(cfg)
	return nil
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigOnce.Do(func() {})
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
