//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestDetectClientID ensures the hostname-based client ID is prefixed and non-empty.
func TestDetectClientID(t *testing.T) {
	t.Parallel()

	id, err := DetectClientID()
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(id, ClientIDPrefix))
	require.Greater(t, len(id), len(ClientIDPrefix))
}
