package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOfferRateLimiter(t *testing.T) {
	rl := NewOfferRateLimiter(2, time.Minute)

	assert.True(t, rl.Allow("alice"))
	assert.True(t, rl.Allow("alice"))
	assert.False(t, rl.Allow("alice"))

	// Identities are limited independently.
	assert.True(t, rl.Allow("bob"))
}

func TestOfferRateLimiterWindowExpiry(t *testing.T) {
	rl := NewOfferRateLimiter(1, 10*time.Millisecond)

	assert.True(t, rl.Allow("alice"))
	assert.False(t, rl.Allow("alice"))

	time.Sleep(20 * time.Millisecond)
	assert.True(t, rl.Allow("alice"))
}

func TestOfferRateLimiterDisabled(t *testing.T) {
	rl := NewOfferRateLimiter(0, time.Minute)
	for i := 0; i < 100; i++ {
		assert.True(t, rl.Allow("alice"))
	}
}
