package timer

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimer(t *testing.T) {
	t.Run("now is coarse but close", func(t *testing.T) {
		require.WithinDuration(t, time.Now(), Now(), 2*Resolution)
	})

	t.Run("date header", func(t *testing.T) {
		parsed, err := http.ParseTime(Date())
		require.NoError(t, err)
		require.WithinDuration(t, time.Now(), parsed, 2*time.Second)
	})
}
