package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCredentialsEmpty(t *testing.T) {
	assert.True(t, Credentials{}.Empty())
	assert.True(t, Credentials{ExpiresAt: time.Now()}.Empty())
	assert.False(t, Credentials{AccessToken: "a"}.Empty())
	assert.False(t, Credentials{RefreshToken: "r"}.Empty())
}

func TestCredentialsExpired(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	creds := Credentials{AccessToken: "a", RefreshToken: "r"}
	assert.False(t, creds.Expired(now), "zero expiry never expires")

	creds.ExpiresAt = now.Add(time.Hour)
	assert.False(t, creds.Expired(now))

	creds.ExpiresAt = now.Add(-time.Hour)
	assert.True(t, creds.Expired(now))
}
