package routing

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDnsHandler_SetAndResetRestoresPriorContents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "resolv.conf")
	require.NoError(t, os.WriteFile(path, []byte("nameserver 1.1.1.1\n"), 0o644))

	orig := resolvConfPath
	resolvConfPath = path
	defer func() { resolvConfPath = orig }()

	h := NewDnsHandler(nil)
	require.NoError(t, h.Set("nymtun0", []net.IP{net.IPv4(10, 0, 0, 53)}))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(got), "10.0.0.53")

	require.NoError(t, h.Reset())
	got, err = os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "nameserver 1.1.1.1\n", string(got))
}

func TestDnsHandler_Reset_NoOpWithoutPriorSet(t *testing.T) {
	h := NewDnsHandler(nil)
	require.NoError(t, h.Reset())
}

func TestDnsHandler_SetTwice_OnlySavesFirstSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "resolv.conf")
	require.NoError(t, os.WriteFile(path, []byte("nameserver 9.9.9.9\n"), 0o644))

	orig := resolvConfPath
	resolvConfPath = path
	defer func() { resolvConfPath = orig }()

	h := NewDnsHandler(nil)
	require.NoError(t, h.Set("nymtun0", []net.IP{net.IPv4(10, 0, 0, 1)}))
	require.NoError(t, h.Set("nymtun0", []net.IP{net.IPv4(10, 0, 0, 2)}))

	require.NoError(t, h.Reset())
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "nameserver 9.9.9.9\n", string(got))
}
