// Package config loads maestro configuration from the environment, an
// optional .env file, command-line flags and an optional YAML manifest.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/spf13/viper"

	"github.com/poucet/maestro/pkg/fault"
	"github.com/poucet/maestro/pkg/procmgr"
)

// EnvPrefix prefixes every environment variable read by maestro
const EnvPrefix = "SIMPLY_MAESTRO"

// Configuration keys. Environment variables are EnvPrefix + "_" + upper-case key.
const (
	KeyTargetCmd          = "target_cmd"
	KeyWorkingDir         = "working_dir"
	KeyLogLevel           = "log_level"
	KeyMCPPort            = "mcp_port"
	KeyTransport          = "transport"
	KeyTargetPort         = "target_port"
	KeyRestartDelay       = "restart_delay"
	KeyMaxRestartAttempts = "max_restart_attempts"
	KeyCaptureOutput      = "capture_output"
	KeyLogToFile          = "log_to_file"
	KeyLogPath            = "log_path"
	KeyLogDir             = "log_dir"
	KeyAllowedPaths       = "allowed_paths"
	KeyMetricsPort        = "metrics_port"
	KeyHistoryDB          = "history_db"
	KeyManifest           = "manifest"
)

// Tool transports
const (
	TransportSSE   = "sse"
	TransportStdio = "stdio"
)

// HistoryOff disables the run history database
const HistoryOff = "off"

// Config is the resolved maestro configuration
type Config struct {
	TargetCmd          string
	WorkingDir         string
	LogLevel           string
	MCPPort            int
	Transport          string
	TargetPort         int
	RestartDelay       time.Duration
	MaxRestartAttempts int
	CaptureOutput      bool
	LogToFile          bool
	LogPath            string
	LogDir             string
	AllowedPaths       []string
	MetricsPort        int
	HistoryDB          string
	Manifest           string

	// Env holds extra child environment variables from the manifest
	Env map[string]string
}

// New returns a viper instance with maestro's defaults and environment
// binding. Callers bind flags on it before calling Load.
func New() *viper.Viper {
	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	v.SetDefault(KeyTargetCmd, "")
	v.SetDefault(KeyWorkingDir, ".")
	v.SetDefault(KeyLogLevel, "INFO")
	v.SetDefault(KeyMCPPort, 5000)
	v.SetDefault(KeyTransport, TransportSSE)
	v.SetDefault(KeyTargetPort, 0)
	v.SetDefault(KeyRestartDelay, "1s")
	v.SetDefault(KeyMaxRestartAttempts, 3)
	v.SetDefault(KeyCaptureOutput, true)
	v.SetDefault(KeyLogToFile, true)
	v.SetDefault(KeyLogPath, "")
	v.SetDefault(KeyLogDir, "logs")
	v.SetDefault(KeyAllowedPaths, "")
	v.SetDefault(KeyMetricsPort, 0)
	v.SetDefault(KeyHistoryDB, "")
	v.SetDefault(KeyManifest, "")

	return v
}

// Load resolves the configuration from v. A manifest named by the
// manifest key only fills values not set through flags or environment.
func Load(v *viper.Viper) (*Config, error) {
	var manifest *Manifest
	if path := v.GetString(KeyManifest); path != "" {
		m, err := LoadManifest(path)
		if err != nil {
			return nil, fault.ErrConfig(KeyManifest, err.Error()).WithCause(err)
		}
		m.applyDefaults(v)
		manifest = m
	}

	workingDir, err := filepath.Abs(v.GetString(KeyWorkingDir))
	if err != nil {
		return nil, fault.ErrConfig(KeyWorkingDir, err.Error()).WithCause(err)
	}

	delay, err := ParseDelay(v.GetString(KeyRestartDelay))
	if err != nil {
		return nil, fault.ErrConfig(KeyRestartDelay, err.Error()).WithCause(err)
	}

	cfg := &Config{
		TargetCmd:          strings.TrimSpace(v.GetString(KeyTargetCmd)),
		WorkingDir:         workingDir,
		LogLevel:           v.GetString(KeyLogLevel),
		MCPPort:            v.GetInt(KeyMCPPort),
		Transport:          strings.ToLower(v.GetString(KeyTransport)),
		TargetPort:         v.GetInt(KeyTargetPort),
		RestartDelay:       delay,
		MaxRestartAttempts: v.GetInt(KeyMaxRestartAttempts),
		CaptureOutput:      v.GetBool(KeyCaptureOutput),
		LogToFile:          v.GetBool(KeyLogToFile),
		LogPath:            v.GetString(KeyLogPath),
		LogDir:             resolve(workingDir, v.GetString(KeyLogDir)),
		MetricsPort:        v.GetInt(KeyMetricsPort),
		HistoryDB:          v.GetString(KeyHistoryDB),
		Manifest:           v.GetString(KeyManifest),
	}
	if cfg.LogPath != "" {
		cfg.LogPath = resolve(workingDir, cfg.LogPath)
	}
	if manifest != nil {
		cfg.Env = manifest.Env
	}

	for _, p := range strings.Split(v.GetString(KeyAllowedPaths), ",") {
		if p = strings.TrimSpace(p); p != "" {
			cfg.AllowedPaths = append(cfg.AllowedPaths, resolve(workingDir, p))
		}
	}
	if len(cfg.AllowedPaths) == 0 {
		cfg.AllowedPaths = []string{workingDir}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that do not depend on the target command
func (c *Config) Validate() error {
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}

	switch c.Transport {
	case TransportSSE, TransportStdio:
	default:
		return fault.ErrConfig(KeyTransport, fmt.Sprintf("transport must be %q or %q, got %q", TransportSSE, TransportStdio, c.Transport))
	}

	if c.MCPPort < 0 || c.MCPPort > 65535 {
		return fault.ErrConfig(KeyMCPPort, fmt.Sprintf("port must be between 0 and 65535, got %d", c.MCPPort))
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		return fault.ErrConfig(KeyMetricsPort, fmt.Sprintf("port must be between 0 and 65535, got %d", c.MetricsPort))
	}
	return nil
}

// Command tokenizes TargetCmd like a POSIX shell would
func (c *Config) Command() ([]string, error) {
	words, err := shellquote.Split(c.TargetCmd)
	if err != nil {
		return nil, fault.ErrConfig(KeyTargetCmd, fmt.Sprintf("cannot parse command %q: %v", c.TargetCmd, err)).WithCause(err)
	}
	if len(words) == 0 {
		return nil, fault.ErrConfig(KeyTargetCmd, "target command is required").
			WithSuggestion("Set " + EnvKey(KeyTargetCmd) + " or pass --target-cmd")
	}
	return words, nil
}

// ProcessConfig builds the supervised process configuration
func (c *Config) ProcessConfig() (procmgr.ProcessConfig, error) {
	command, err := c.Command()
	if err != nil {
		return procmgr.ProcessConfig{}, err
	}

	pc := procmgr.ProcessConfig{
		Command:            command,
		WorkingDir:         c.WorkingDir,
		Env:                c.Env,
		RestartDelay:       c.RestartDelay,
		MaxRestartAttempts: c.MaxRestartAttempts,
		CaptureOutput:      c.CaptureOutput,
		LogToFile:          c.LogToFile,
		LogPath:            c.LogPath,
		LogDir:             c.LogDir,
		Port:               c.TargetPort,
	}
	if err := pc.Validate(); err != nil {
		return procmgr.ProcessConfig{}, fault.ErrConfig("process", err.Error()).WithCause(err)
	}
	return pc, nil
}

// HistoryPath returns the run history database path, or "" when disabled
func (c *Config) HistoryPath() string {
	switch strings.ToLower(c.HistoryDB) {
	case HistoryOff:
		return ""
	case "":
		return filepath.Join(c.LogDir, "history.db")
	default:
		return resolve(c.WorkingDir, c.HistoryDB)
	}
}

// SlogLevel returns the configured log level
func (c *Config) SlogLevel() slog.Level {
	level, _ := ParseLevel(c.LogLevel)
	return level
}

// EnvKey returns the environment variable for a configuration key
func EnvKey(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(key)
}

// ParseLevel maps debug, info, warn/warning and error (any case) to a
// slog level
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error", "critical":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fault.ErrConfig(KeyLogLevel, fmt.Sprintf("unknown log level %q", s))
	}
}

// ParseDelay accepts a Go duration ("1.5s") or plain seconds ("1.5")
func ParseDelay(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid delay %q: use a duration like 1s or a number of seconds", s)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func resolve(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

// LoadDotEnv copies KEY=VALUE pairs from a .env file into the process
// environment without overriding variables that are already set. A missing
// file is ignored unless required.
func LoadDotEnv(path string, required bool) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) && !required {
			return nil
		}
		return fault.ErrConfig("env_file", err.Error()).WithCause(err)
	}

	dotenv := viper.New()
	dotenv.SetConfigFile(path)
	dotenv.SetConfigType("env")
	if err := dotenv.ReadInConfig(); err != nil {
		return fault.ErrConfig("env_file", fmt.Sprintf("read %s: %v", path, err)).WithCause(err)
	}

	for _, key := range dotenv.AllKeys() {
		name := strings.ToUpper(key)
		if _, exists := os.LookupEnv(name); exists {
			continue
		}
		if err := os.Setenv(name, dotenv.GetString(key)); err != nil {
			return fmt.Errorf("set %s: %w", name, err)
		}
	}
	return nil
}
