package doctor

import (
	"bufio"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/ashwch/aipkg/internal/appdirs"
	"github.com/ashwch/aipkg/internal/config"
)

const (
	StatusOK      = "ok"
	StatusMissing = "missing"
	StatusWarn    = "warn"
	StatusError   = "error"
)

const osReleasePath = "/etc/os-release"

type Check struct {
	Key    string `json:"key" yaml:"key"`
	Value  string `json:"value" yaml:"value"`
	Status string `json:"status" yaml:"status"`
}

// Probe is the view of the host the checks read. Tests replace it.
type Probe struct {
	GOOS     string
	LookPath func(string) (string, error)
	ReadFile func(string) ([]byte, error)
	Stat     func(string) (os.FileInfo, error)
	Getenv   func(string) string
}

func HostProbe() Probe {
	return Probe{
		GOOS:     runtime.GOOS,
		LookPath: exec.LookPath,
		ReadFile: os.ReadFile,
		Stat:     os.Stat,
		Getenv:   os.Getenv,
	}
}

// Run checks that the host can carry out a plan: an Arch-like system with
// pacman, a usable AUR helper and a reachable backend. aurHelper is the
// --aur-helper value, empty when the flag was not given.
func Run(cfg config.Config, cfgPath string, aurHelper string, probe Probe) []Check {
	checks := []Check{
		{Key: "os", Value: probe.GOOS, Status: statusIf(probe.GOOS == "linux", StatusWarn)},
		distroCheck(probe),
		{Key: "config_path", Value: cfgPath, Status: fileStatus(probe, cfgPath)},
	}
	if envPath, err := appdirs.EnvFilePath(); err == nil {
		status := fileStatus(probe, envPath)
		if status == StatusMissing {
			status = StatusOK
			envPath += " (not present)"
		}
		checks = append(checks, Check{Key: "env_file", Value: envPath, Status: status})
	}

	checks = append(checks,
		binaryCheck(probe, "pacman", StatusError),
		binaryCheck(probe, "sudo", StatusWarn),
	)
	checks = append(checks, helperCheck(cfg, aurHelper, probe))
	checks = append(checks, backendChecks(cfg, probe)...)
	return checks
}

// Failed reports whether any check blocks installation.
func Failed(checks []Check) bool {
	for _, check := range checks {
		if check.Status == StatusError {
			return true
		}
	}
	return false
}

// ParseOSRelease reads KEY=value lines in the os-release(5) format.
func ParseOSRelease(content string) map[string]string {
	values := map[string]string{}
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		values[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(value), `"'`)
	}
	return values
}

// IsArchLike is true for Arch itself and derivatives that declare it in
// ID_LIKE (Manjaro, EndeavourOS, CachyOS...).
func IsArchLike(release map[string]string) bool {
	if strings.EqualFold(release["ID"], "arch") {
		return true
	}
	for _, like := range strings.Fields(release["ID_LIKE"]) {
		if strings.EqualFold(like, "arch") {
			return true
		}
	}
	return false
}

func distroCheck(probe Probe) Check {
	content, err := probe.ReadFile(osReleasePath)
	if err != nil {
		return Check{Key: "distro", Value: "unknown", Status: StatusWarn}
	}
	release := ParseOSRelease(string(content))
	name := release["PRETTY_NAME"]
	if name == "" {
		name = release["ID"]
	}
	return Check{Key: "distro", Value: name, Status: statusIf(IsArchLike(release), StatusWarn)}
}

func helperCheck(cfg config.Config, explicit string, probe Probe) Check {
	helper, err := cfg.ResolveAURHelperFrom(explicit, probe.Getenv)
	if err != nil {
		return Check{Key: "aur_helper", Value: err.Error(), Status: StatusError}
	}
	check := binaryCheck(probe, helper, StatusWarn)
	check.Key = "aur_helper"
	check.Value = helper + ": " + check.Value
	return check
}

func backendChecks(cfg config.Config, probe Probe) []Check {
	name := strings.ToLower(strings.TrimSpace(cfg.Backend.Name))
	checks := []Check{{Key: "backend", Value: name + " (" + cfg.Backend.Model + ")", Status: StatusOK}}

	if name == config.BackendCommand {
		check := binaryCheck(probe, cfg.Command.Command, StatusError)
		check.Key = "backend_command"
		return append(checks, check)
	}

	envName := strings.TrimSpace(cfg.Backend.APIKeyEnv)
	if envName == "" {
		envName = config.DefaultAPIKeyEnv
	}
	if strings.TrimSpace(probe.Getenv(envName)) == "" {
		return append(checks, Check{Key: "api_key", Value: envName + " not set", Status: StatusWarn})
	}
	return append(checks, Check{Key: "api_key", Value: envName + " set", Status: StatusOK})
}

func binaryCheck(probe Probe, name string, missing string) Check {
	if strings.TrimSpace(name) == "" {
		return Check{Key: name, Value: "not configured", Status: missing}
	}
	path, err := probe.LookPath(name)
	if err != nil {
		return Check{Key: name, Value: "not found", Status: missing}
	}
	return Check{Key: name, Value: path, Status: StatusOK}
}

func fileStatus(probe Probe, path string) string {
	if _, err := probe.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return StatusMissing
		}
		return StatusError
	}
	return StatusOK
}

func statusIf(ok bool, otherwise string) string {
	if ok {
		return StatusOK
	}
	return otherwise
}
