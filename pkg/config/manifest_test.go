package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "maestro.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadManifest_CommandForms(t *testing.T) {
	dir := t.TempDir()

	m, err := LoadManifest(writeManifest(t, dir, `command: python app.py --debug`))
	require.NoError(t, err)
	assert.Equal(t, "python app.py --debug", m.Command.String())

	m, err = LoadManifest(writeManifest(t, dir, "command:\n  - python\n  - -c\n  - print('hi there')\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"python", "-c", "print('hi there')"}, m.Command.Args)
}

func TestLoadManifest_Invalid(t *testing.T) {
	dir := t.TempDir()
	for name, content := range map[string]string{
		"port":     "port: 99999",
		"attempts": "max_restart_attempts: -2",
		"delay":    "restart_delay: whenever",
		"command":  "command: {a: b}",
		"quote":    `command: "python 'app.py"`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := LoadManifest(writeManifest(t, dir, content))
			assert.Error(t, err)
		})
	}
}

func TestLoad_ManifestFillsUnsetValues(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "app"), 0o755))

	path := writeManifest(t, dir, `
command: [node, server.js]
working_dir: app
port: 3000
restart_delay: 250ms
max_restart_attempts: 7
capture_output: false
env:
  NODE_ENV: development
`)

	t.Setenv(EnvKey(KeyManifest), path)
	t.Setenv(EnvKey(KeyMaxRestartAttempts), "1")

	cfg, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "app"), cfg.WorkingDir)
	assert.Equal(t, 3000, cfg.TargetPort)
	assert.Equal(t, 250*time.Millisecond, cfg.RestartDelay)
	assert.False(t, cfg.CaptureOutput)
	// Environment wins over the manifest.
	assert.Equal(t, 1, cfg.MaxRestartAttempts)

	pc, err := cfg.ProcessConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"node", "server.js"}, pc.Command)
	assert.Equal(t, map[string]string{"NODE_ENV": "development"}, pc.Env)
}
