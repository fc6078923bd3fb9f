package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ashwch/aipkg/internal/appdirs"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultAPIKeyEnv    = "GEMINI_API_KEY"
	AURHelperEnv        = "AI_PKG_AUR_HELPER"
	DefaultAURHelper    = "yay"
	DefaultGeminiModel  = "gemini-2.5-flash"
	OrderPackagesFirst  = "packages-first"
	OrderStepsFirst     = "steps-first"
	BackendGemini       = "gemini"
	BackendCommand      = "command"
	defaultRetryAttempt = 3
)

var ErrMissingAPIKey = errors.New("API key required")

type BackendConfig struct {
	Name           string `toml:"name" json:"name" yaml:"name"`
	Model          string `toml:"model" json:"model" yaml:"model"`
	APIKeyEnv      string `toml:"api_key_env" json:"api_key_env" yaml:"api_key_env"`
	Endpoint       string `toml:"endpoint,omitempty" json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	TimeoutSeconds int    `toml:"timeout_seconds" json:"timeout_seconds" yaml:"timeout_seconds"`
}

// CommandConfig drives the command backend, which shells out to an LLM CLI.
// Args may reference {prompt} and {model}.
type CommandConfig struct {
	Command string   `toml:"command" json:"command" yaml:"command"`
	Args    []string `toml:"args,omitempty" json:"args,omitempty" yaml:"args,omitempty"`
}

type RetryConfig struct {
	Attempts    int `toml:"attempts" json:"attempts" yaml:"attempts"`
	BaseDelayMS int `toml:"base_delay_ms" json:"base_delay_ms" yaml:"base_delay_ms"`
}

type InstallConfig struct {
	AURHelper   string `toml:"aur_helper" json:"aur_helper" yaml:"aur_helper"`
	Order       string `toml:"order" json:"order" yaml:"order"`
	AutoConfirm bool   `toml:"auto_confirm" json:"auto_confirm" yaml:"auto_confirm"`
	AutoRunEnv  bool   `toml:"auto_run_env" json:"auto_run_env" yaml:"auto_run_env"`
}

type UIConfig struct {
	Backend string `toml:"backend" json:"backend" yaml:"backend"`
}

type Config struct {
	Version int           `toml:"version" json:"version" yaml:"version"`
	Backend BackendConfig `toml:"backend" json:"backend" yaml:"backend"`
	Command CommandConfig `toml:"command" json:"command" yaml:"command"`
	Retry   RetryConfig   `toml:"retry" json:"retry" yaml:"retry"`
	Install InstallConfig `toml:"install" json:"install" yaml:"install"`
	UI      UIConfig      `toml:"ui" json:"ui" yaml:"ui"`
}

func Default() Config {
	return Config{
		Version: 1,
		Backend: BackendConfig{
			Name:           BackendGemini,
			Model:          DefaultGeminiModel,
			APIKeyEnv:      DefaultAPIKeyEnv,
			TimeoutSeconds: 60,
		},
		Command: CommandConfig{
			Command: "gemini",
			Args:    []string{"--model", "{model}", "--prompt", "{prompt}"},
		},
		Retry: RetryConfig{
			Attempts:    defaultRetryAttempt,
			BaseDelayMS: 1000,
		},
		Install: InstallConfig{
			AURHelper: DefaultAURHelper,
			Order:     OrderPackagesFirst,
		},
		UI: UIConfig{
			Backend: "auto",
		},
	}
}

func LoadOrCreate() (Config, string, error) {
	path, err := appdirs.ConfigFilePath()
	if err != nil {
		return Config{}, "", err
	}
	// An explicit path may live in a shared directory whose mode is not ours.
	if strings.TrimSpace(os.Getenv(appdirs.ConfigPathEnv)) == "" {
		if _, err := appdirs.EnsureConfigDir(); err != nil {
			return Config{}, "", err
		}
	}
	cfg, err := LoadOrCreateAt(path)
	if err != nil {
		return Config{}, "", err
	}
	return cfg, path, nil
}

func LoadOrCreateAt(path string) (Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := Save(path, cfg); err != nil {
			return Config{}, err
		}
		return cfg, nil
	} else if err != nil {
		return Config{}, fmt.Errorf("could not stat config path: %w", err)
	}

	bytes, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("could not read config file: %w", err)
	}
	if err := toml.Unmarshal(bytes, &cfg); err != nil {
		return Config{}, fmt.Errorf("could not parse config file: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

func Save(path string, cfg Config) error {
	cfg.normalize()
	payload, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("could not serialize config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("could not create config dir: %w", err)
	}
	tempFile, err := os.CreateTemp(dir, ".ai-pkg-config-*.toml")
	if err != nil {
		return fmt.Errorf("could not create temp config file: %w", err)
	}
	tempPath := tempFile.Name()
	cleanup := func() {
		_ = os.Remove(tempPath)
	}

	if _, err := tempFile.Write(payload); err != nil {
		_ = tempFile.Close()
		cleanup()
		return fmt.Errorf("could not write temp config file: %w", err)
	}
	if err := tempFile.Chmod(0o600); err != nil {
		_ = tempFile.Close()
		cleanup()
		return fmt.Errorf("could not secure temp config file permissions: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		cleanup()
		return fmt.Errorf("could not close temp config file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		cleanup()
		return fmt.Errorf("could not atomically replace config file: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		return fmt.Errorf("could not secure config file permissions: %w", err)
	}
	return nil
}

// LoadEnvFile reads KEY=VALUE pairs from the optional dotenv file next to
// the config. Variables already set in the environment win.
func LoadEnvFile() error {
	path, err := appdirs.EnvFilePath()
	if err != nil {
		return err
	}
	return loadEnvFileAt(path)
}

func loadEnvFileAt(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("could not load %s: %w", path, err)
	}
	return nil
}

func (c *Config) normalize() {
	defaults := Default()
	if c.Version == 0 {
		c.Version = defaults.Version
	}
	c.Backend.Name = strings.ToLower(strings.TrimSpace(c.Backend.Name))
	if c.Backend.Name == "" {
		c.Backend.Name = defaults.Backend.Name
	}
	if strings.TrimSpace(c.Backend.Model) == "" {
		c.Backend.Model = defaults.Backend.Model
	}
	if strings.TrimSpace(c.Backend.APIKeyEnv) == "" {
		c.Backend.APIKeyEnv = defaults.Backend.APIKeyEnv
	}
	if c.Backend.TimeoutSeconds <= 0 {
		c.Backend.TimeoutSeconds = defaults.Backend.TimeoutSeconds
	}
	if strings.TrimSpace(c.Command.Command) == "" {
		c.Command.Command = defaults.Command.Command
	}
	if len(c.Command.Args) == 0 {
		c.Command.Args = append([]string(nil), defaults.Command.Args...)
	}
	if c.Retry.Attempts <= 0 {
		c.Retry.Attempts = defaults.Retry.Attempts
	}
	if c.Retry.BaseDelayMS <= 0 {
		c.Retry.BaseDelayMS = defaults.Retry.BaseDelayMS
	}
	c.Install.AURHelper = strings.ToLower(strings.TrimSpace(c.Install.AURHelper))
	if c.Install.AURHelper == "" {
		c.Install.AURHelper = defaults.Install.AURHelper
	}
	c.Install.Order = normalizeOrder(c.Install.Order, defaults.Install.Order)
	c.UI.Backend = normalizeUIBackend(c.UI.Backend, defaults.UI.Backend)
}

func (c *Config) Set(key, value string) error {
	key = strings.TrimSpace(strings.ToLower(key))
	value = strings.TrimSpace(value)

	switch key {
	case "backend.name":
		name := strings.ToLower(value)
		if name != BackendGemini && name != BackendCommand {
			return fmt.Errorf("backend.name must be one of gemini|command")
		}
		c.Backend.Name = name
	case "backend.model":
		c.Backend.Model = value
	case "backend.api_key_env":
		c.Backend.APIKeyEnv = value
	case "backend.endpoint":
		c.Backend.Endpoint = value
	case "backend.timeout_seconds":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("backend.timeout_seconds must be a positive number")
		}
		c.Backend.TimeoutSeconds = n
	case "command.command":
		c.Command.Command = value
	case "command.args":
		c.Command.Args = splitCommaList(value)
	case "retry.attempts":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("retry.attempts must be a positive number")
		}
		c.Retry.Attempts = n
	case "retry.base_delay_ms":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("retry.base_delay_ms must be a positive number")
		}
		c.Retry.BaseDelayMS = n
	case "install.aur_helper":
		helper, err := ValidateAURHelper(value)
		if err != nil {
			return err
		}
		c.Install.AURHelper = helper
	case "install.order":
		order := normalizeOrder(value, "")
		if order == "" {
			return fmt.Errorf("install.order must be one of %s|%s", OrderPackagesFirst, OrderStepsFirst)
		}
		c.Install.Order = order
	case "install.auto_confirm":
		b, err := parseBool(value)
		if err != nil {
			return fmt.Errorf("install.auto_confirm must be boolean")
		}
		c.Install.AutoConfirm = b
	case "install.auto_run_env":
		b, err := parseBool(value)
		if err != nil {
			return fmt.Errorf("install.auto_run_env must be boolean")
		}
		c.Install.AutoRunEnv = b
	case "ui.backend":
		backend := normalizeUIBackend(value, "")
		if backend == "" {
			return fmt.Errorf("ui.backend must be one of auto|bubbletea|huh|tview|plain")
		}
		c.UI.Backend = backend
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	c.normalize()
	return nil
}

func (c Config) Get(key string) (string, error) {
	switch strings.TrimSpace(strings.ToLower(key)) {
	case "backend.name":
		return c.Backend.Name, nil
	case "backend.model":
		return c.Backend.Model, nil
	case "backend.api_key_env":
		return c.Backend.APIKeyEnv, nil
	case "backend.endpoint":
		return c.Backend.Endpoint, nil
	case "backend.timeout_seconds":
		return strconv.Itoa(c.Backend.TimeoutSeconds), nil
	case "command.command":
		return c.Command.Command, nil
	case "command.args":
		return strings.Join(c.Command.Args, ","), nil
	case "retry.attempts":
		return strconv.Itoa(c.Retry.Attempts), nil
	case "retry.base_delay_ms":
		return strconv.Itoa(c.Retry.BaseDelayMS), nil
	case "install.aur_helper":
		return c.Install.AURHelper, nil
	case "install.order":
		return c.Install.Order, nil
	case "install.auto_confirm":
		return strconv.FormatBool(c.Install.AutoConfirm), nil
	case "install.auto_run_env":
		return strconv.FormatBool(c.Install.AutoRunEnv), nil
	case "ui.backend":
		return c.UI.Backend, nil
	default:
		return "", fmt.Errorf("unknown config key: %s", key)
	}
}

func (c Config) BackendTimeout() time.Duration {
	return time.Duration(c.Backend.TimeoutSeconds) * time.Second
}

func (c Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.Retry.BaseDelayMS) * time.Millisecond
}

// ResolveAPIKey picks the credential from the explicit flag, then the
// configured environment variable.
func (c Config) ResolveAPIKey(explicit string) (string, error) {
	if key := strings.TrimSpace(explicit); key != "" {
		return key, nil
	}
	envName := strings.TrimSpace(c.Backend.APIKeyEnv)
	if envName == "" {
		envName = DefaultAPIKeyEnv
	}
	if key := strings.TrimSpace(os.Getenv(envName)); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("%w: set %s or pass --api-key", ErrMissingAPIKey, envName)
}

// ResolveAURHelper applies flag > AI_PKG_AUR_HELPER > config file > yay.
func (c Config) ResolveAURHelper(explicit string) (string, error) {
	return c.ResolveAURHelperFrom(explicit, os.Getenv)
}

// ResolveAURHelperFrom applies flag > env > config > default precedence,
// reading the environment through getenv.
func (c Config) ResolveAURHelperFrom(explicit string, getenv func(string) string) (string, error) {
	candidate := strings.TrimSpace(explicit)
	if candidate == "" && getenv != nil {
		candidate = strings.TrimSpace(getenv(AURHelperEnv))
	}
	if candidate == "" {
		candidate = strings.TrimSpace(c.Install.AURHelper)
	}
	if candidate == "" {
		candidate = DefaultAURHelper
	}
	return ValidateAURHelper(candidate)
}

func ValidateAURHelper(value string) (string, error) {
	helper := strings.ToLower(strings.TrimSpace(value))
	switch helper {
	case "yay", "paru":
		return helper, nil
	default:
		return "", fmt.Errorf("invalid AUR helper %q: must be 'yay' or 'paru'", value)
	}
}

func parseBool(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool: %s", value)
	}
}

func splitCommaList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		item := strings.TrimSpace(part)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}

func normalizeOrder(value string, fallback string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case OrderPackagesFirst, "packages":
		return OrderPackagesFirst
	case OrderStepsFirst, "steps":
		return OrderStepsFirst
	default:
		return fallback
	}
}

func normalizeUIBackend(value string, fallback string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "auto", "bubbletea", "huh", "tview", "plain":
		return normalized
	default:
		return strings.ToLower(strings.TrimSpace(fallback))
	}
}
