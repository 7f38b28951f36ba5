package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sasu-drooz/zigate-transport/coordinator"
	"github.com/sasu-drooz/zigate-transport/link"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	opts, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, coordinator.ZigBee, opts.Coordinator.Mode)
	assert.Equal(t, link.USB, opts.Link.Kind)
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := `
mode: aggressive
status_timeout_ms: 2500
aps_ack_mode: true
link_kind: wifi
link_address: 10.0.0.5
link_port: 9999
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	opts, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, coordinator.Aggressive, opts.Coordinator.Mode)
	assert.Equal(t, 2500000000, int(opts.Coordinator.StatusTimeout))
	assert.True(t, opts.Coordinator.APSAckMode)
	assert.Equal(t, link.Wifi, opts.Link.Kind)
	assert.Equal(t, "10.0.0.5", opts.Link.Address)
	assert.Equal(t, 9999, opts.Link.Port)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	opts, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, coordinator.ZigBee, opts.Coordinator.Mode)
}

func TestLoadUnknownModeErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mode: bogus\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadUnknownLinkKindErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("link_kind: bluetooth\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
