package dialogue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiter_AllowsUpToMaxWithinWindow(t *testing.T) {
	req := require.New(t)

	rl := NewRateLimiter(3, time.Minute)
	defer rl.Close()

	req.True(rl.IsAllowed("conn-1"))
	req.True(rl.IsAllowed("conn-1"))
	req.True(rl.IsAllowed("conn-1"))
	req.False(rl.IsAllowed("conn-1"))

	req.Equal(0, rl.Remaining("conn-1"))
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	req := require.New(t)

	rl := NewRateLimiter(1, time.Minute)
	defer rl.Close()

	req.True(rl.IsAllowed("conn-1"))
	req.False(rl.IsAllowed("conn-1"))
	req.True(rl.IsAllowed("conn-2"))
}

func TestRateLimiter_ResetsAfterWindowExpires(t *testing.T) {
	req := require.New(t)

	rl := NewRateLimiter(1, 10*time.Millisecond)
	defer rl.Close()

	req.True(rl.IsAllowed("conn-1"))
	req.False(rl.IsAllowed("conn-1"))

	time.Sleep(20 * time.Millisecond)

	req.True(rl.IsAllowed("conn-1"))
}
