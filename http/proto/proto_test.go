package proto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromBytes(t *testing.T) {
	tcs := []struct {
		Token string
		Want  Proto
		Valid bool
	}{
		{"HTTP/1.1", HTTP11, true},
		{"HTTP/1.0", HTTP10, true},
		{"HTTP/2.0", Unknown, true},
		{"HTTP/1.2", Unknown, true},
		{"HTTP/1.x", Unknown, false},
		{"http/1.1", Unknown, false},
		{"HTTP/1.10", Unknown, false},
		{"", Unknown, false},
	}

	for _, tc := range tcs {
		t.Run(tc.Token, func(t *testing.T) {
			require.Equal(t, tc.Valid, Valid([]byte(tc.Token)))
			require.Equal(t, tc.Want, FromBytes([]byte(tc.Token)))
		})
	}
}
