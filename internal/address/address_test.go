package address

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsLocalhost(t *testing.T) {
	for _, addr := range []string{
		"", ":8080", "localhost", "LocalHost:80", "127.0.0.1", "127.0.0.1:443", "::1", "[::1]:80", "0.0.0.0",
	} {
		require.True(t, IsLocalhost(addr), addr)
	}

	for _, addr := range []string{"example.com", "example.com:443", "10.0.0.1", "[2001:db8::1]:80"} {
		require.False(t, IsLocalhost(addr), addr)
	}
}
