package wireguard

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadOrCreateKeyPair_GeneratesThenPersists(t *testing.T) {
	dir := t.TempDir()

	kp1, err := LoadOrCreateKeyPair(dir, RoleEntry)
	require.NoError(t, err)
	require.NotEqual(t, [32]byte{}, kp1.Private)

	kp2, err := LoadOrCreateKeyPair(dir, RoleEntry)
	require.NoError(t, err)
	require.Equal(t, kp1, kp2)
}

func TestLoadOrCreateKeyPair_RolesAreIndependent(t *testing.T) {
	dir := t.TempDir()

	entry, err := LoadOrCreateKeyPair(dir, RoleEntry)
	require.NoError(t, err)
	exit, err := LoadOrCreateKeyPair(dir, RoleExit)
	require.NoError(t, err)

	require.NotEqual(t, entry.Private, exit.Private)
}
