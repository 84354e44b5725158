package ipr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClient_CheckVersion(t *testing.T) {
	c := &Client{}

	require.NoError(t, c.checkVersion(CurrentVersion))
	require.NoError(t, c.checkVersion(CurrentVersion+1))
	require.ErrorIs(t, c.checkVersion(CurrentVersion+2), ErrReceivedResponseWithNewVersion)
	require.ErrorIs(t, c.checkVersion(CurrentVersion-1), ErrReceivedResponseWithOldVersion)
}

func TestConnectRequestDenied_Error(t *testing.T) {
	err := &ConnectRequestDenied{Reason: "taken"}
	require.Contains(t, err.Error(), "taken")
}
