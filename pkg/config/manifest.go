package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kballard/go-shellquote"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Manifest is a declarative description of the supervised process
type Manifest struct {
	// Command as a shell-style string or an argument list
	Command CommandSpec `yaml:"command"`

	// Working directory (relative to the manifest file)
	WorkingDir string `yaml:"working_dir"`

	// Extra environment variables for the child process
	Env map[string]string `yaml:"env"`

	// Port the child listens on
	Port *int `yaml:"port"`

	RestartDelay       string `yaml:"restart_delay"`
	MaxRestartAttempts *int   `yaml:"max_restart_attempts"`
	CaptureOutput      *bool  `yaml:"capture_output"`
	LogToFile          *bool  `yaml:"log_to_file"`
	LogPath            string `yaml:"log_path"`
	LogDir             string `yaml:"log_dir"`

	// Internal: Absolute path to manifest file (populated during load)
	manifestPath string `yaml:"-"`
}

// CommandSpec accepts either `command: "python app.py"` or
// `command: [python, app.py]`
type CommandSpec struct {
	Line string
	Args []string
}

// UnmarshalYAML implements yaml.Unmarshaler
func (c *CommandSpec) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		return node.Decode(&c.Line)
	case yaml.SequenceNode:
		return node.Decode(&c.Args)
	default:
		return fmt.Errorf("line %d: command must be a string or a list", node.Line)
	}
}

// String renders the command as a shell-style string
func (c CommandSpec) String() string {
	if len(c.Args) > 0 {
		return shellquote.Join(c.Args...)
	}
	return c.Line
}

// IsZero reports whether no command was given
func (c CommandSpec) IsZero() bool {
	return c.Line == "" && len(c.Args) == 0
}

// LoadManifest loads a manifest from a YAML file
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve manifest path: %w", err)
	}
	manifest.manifestPath = absPath

	if err := manifest.Validate(); err != nil {
		return nil, fmt.Errorf("validate manifest: %w", err)
	}

	return &manifest, nil
}

// Validate checks the manifest's values
func (m *Manifest) Validate() error {
	if m.Port != nil && (*m.Port < 0 || *m.Port > 65535) {
		return fmt.Errorf("port must be between 0 and 65535, got: %d", *m.Port)
	}
	if m.MaxRestartAttempts != nil && *m.MaxRestartAttempts < 0 {
		return fmt.Errorf("max_restart_attempts must not be negative, got: %d", *m.MaxRestartAttempts)
	}
	if m.RestartDelay != "" {
		if d, err := ParseDelay(m.RestartDelay); err != nil {
			return err
		} else if d < 0 {
			return fmt.Errorf("restart_delay must not be negative, got: %s", m.RestartDelay)
		}
	}
	if !m.Command.IsZero() {
		if _, err := shellquote.Split(m.Command.String()); err != nil {
			return fmt.Errorf("command: %w", err)
		}
	}
	return nil
}

// WorkingDirPath returns the working directory resolved against the
// manifest's own directory
func (m *Manifest) WorkingDirPath() string {
	if m.WorkingDir == "" || filepath.IsAbs(m.WorkingDir) {
		return m.WorkingDir
	}
	return filepath.Join(filepath.Dir(m.manifestPath), m.WorkingDir)
}

// ManifestPath returns the absolute path to the manifest file
func (m *Manifest) ManifestPath() string {
	return m.manifestPath
}

// applyDefaults installs manifest values as viper defaults so flags and
// environment variables still take precedence
func (m *Manifest) applyDefaults(v *viper.Viper) {
	if !m.Command.IsZero() {
		v.SetDefault(KeyTargetCmd, m.Command.String())
	}
	if dir := m.WorkingDirPath(); dir != "" {
		v.SetDefault(KeyWorkingDir, dir)
	}
	if m.Port != nil {
		v.SetDefault(KeyTargetPort, *m.Port)
	}
	if m.RestartDelay != "" {
		v.SetDefault(KeyRestartDelay, m.RestartDelay)
	}
	if m.MaxRestartAttempts != nil {
		v.SetDefault(KeyMaxRestartAttempts, *m.MaxRestartAttempts)
	}
	if m.CaptureOutput != nil {
		v.SetDefault(KeyCaptureOutput, *m.CaptureOutput)
	}
	if m.LogToFile != nil {
		v.SetDefault(KeyLogToFile, *m.LogToFile)
	}
	if m.LogPath != "" {
		v.SetDefault(KeyLogPath, m.LogPath)
	}
	if m.LogDir != "" {
		v.SetDefault(KeyLogDir, m.LogDir)
	}
}
