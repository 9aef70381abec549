//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"fmt"
	"os"
	"strings"
)

// ClientIDPrefix starts every generated MQTT client ID.
const ClientIDPrefix = "alarm-beacon-"

// DetectClientID derives a broker client ID from the hostname so that every
// beacon of a fleet gets a stable, distinct session.
func DetectClientID() (string, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("hostname: %w", err)
	}

	return ClientIDPrefix + strings.ToLower(hostname), nil
}
