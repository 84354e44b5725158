package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestLoadEnvironmentFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "staging.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
moniker: staging
nym_api_url: https://staging-nym-api.example.invalid/api
vpn_api_url: https://staging.example.invalid/api
chain_id: staging-nyx
bech32_prefix: n
`), 0o600))

	got, err := LoadEnvironmentFile(path)
	require.NoError(t, err)

	want := &NetworkEnvironment{
		Moniker:      "staging",
		NymAPIURL:    "https://staging-nym-api.example.invalid/api",
		VpnAPIURL:    "https://staging.example.invalid/api",
		ChainID:      "staging-nyx",
		Bech32Prefix: "n",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("LoadEnvironmentFile() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadEnvironmentFile_DefaultsMoniker(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("nym_api_url: https://example.invalid/api\n"), 0o600))

	got, err := LoadEnvironmentFile(path)
	require.NoError(t, err)
	require.Equal(t, "custom", got.Moniker)
}

func TestLoadEnvironmentFile_MissingNymAPIURL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("moniker: bad\n"), 0o600))

	_, err := LoadEnvironmentFile(path)
	require.Error(t, err)
}

func TestLoadEnvironmentFile_NotFound(t *testing.T) {
	_, err := LoadEnvironmentFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
