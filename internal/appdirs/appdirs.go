package appdirs

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const AppName = "ai-pkg"

// ConfigPathEnv points at an explicit config file and wins over the
// platform default.
const ConfigPathEnv = "AI_PKG_CONFIG"

func configBaseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not resolve home directory: %w", err)
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support"), nil
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return appData, nil
		}
		return filepath.Join(home, "AppData", "Roaming"), nil
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return xdg, nil
		}
		return filepath.Join(home, ".config"), nil
	}
}

func ConfigDir() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv(ConfigPathEnv)); explicit != "" {
		return filepath.Dir(explicit), nil
	}
	base, err := configBaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, AppName), nil
}

func ConfigFilePath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv(ConfigPathEnv)); explicit != "" {
		return explicit, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnvFilePath is an optional dotenv file holding credentials such as
// GEMINI_API_KEY.
func EnvFilePath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ".env"), nil
}

func EnsureConfigDir() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("could not create config dir: %w", err)
	}
	if err := os.Chmod(dir, 0o700); err != nil {
		return "", fmt.Errorf("could not secure config dir permissions: %w", err)
	}
	return dir, nil
}
