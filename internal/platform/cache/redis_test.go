package cache

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestConnectPingsServer(t *testing.T) {
	server := miniredis.RunT(t)

	client, err := Connect(server.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NotNil(t, client.Client)
}

func TestConnectRequiresAddress(t *testing.T) {
	_, err := Connect("", "", 0)
	require.Error(t, err)
}

func TestCloseNilIsSafe(t *testing.T) {
	var client *Redis
	require.NoError(t, client.Close())
}
