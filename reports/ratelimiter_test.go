package reports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiterAllowsBurstThenThrottles(t *testing.T) {
	rl := NewRateLimiter[string]()

	admitted := 0
	for i := 0; i < requestsBurstable+1; i++ {
		if rl.Allow("ep") {
			admitted++
		}
	}
	require.GreaterOrEqual(t, admitted, 1)
	require.Less(t, admitted, requestsBurstable+1)
}

func TestRateLimiterWaitUnblocksAfterTokensRefill(t *testing.T) {
	rl := NewRateLimiter[string]()
	for rl.Allow("ep") {
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, rl.Wait(ctx, "ep"))
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	rl := NewRateLimiter[string]()
	for rl.Allow("a") {
	}
	require.True(t, rl.Allow("b"))
}
