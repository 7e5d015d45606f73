//go:build e2e

package userservice_test

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadyzEndpoint(t *testing.T) {
	client := startService(t, relaxedLimits)

	health, err := client.Readyz(t.Context())
	require.NoError(t, err)
	require.Equal(t, "ok", health.Status)
	require.NotNil(t, health.Checks)
	require.Equal(t, "ok", health.Checks.Database)
}
