//go:build e2e

package userservice_test

import (
	"fmt"
	"testing"

	"github.com/aussiebroadwan/studyhub/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

// TestRateLimitRegister verifies the strict tier (10 req/min by IP) guards
// the public signup endpoint.
func TestRateLimitRegister(t *testing.T) {
	client := startService(t, nil)
	ctx := t.Context()

	for i := range 10 {
		_, err := client.Register(ctx, authsdk.RegisterRequest{
			Username: fmt.Sprintf("user%02d", i),
			Email:    fmt.Sprintf("user%02d@studyhub.test", i),
			Password: testPassword,
		})
		require.NoError(t, err, "request %d should not be rate limited", i+1)
	}

	_, err := client.Register(ctx, authsdk.RegisterRequest{
		Username: "user10", Email: "user10@studyhub.test", Password: testPassword,
	})
	requireAPIError(t, err, 429, "rate_limit_exceeded")
}
