package client

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitByID(t *testing.T) {
	items := splitByID([]byte(`[{"id":1,"title":"a"},{"id":2,"title":"b"}]`))
	require.Len(t, items, 2)
	assert.Equal(t, "1", items[0].Key)
	assert.JSONEq(t, `{"id":2,"title":"b"}`, string(items[1].Payload))

	assert.Nil(t, splitByID([]byte(`{"id":1}`)), "objects are not fanned out")
	assert.Nil(t, splitByID([]byte(`[{"name":"no id"}]`)))
	assert.Nil(t, splitByID([]byte(`not json`)))
}

func TestErrorDetail(t *testing.T) {
	assert.Equal(t, "no", errorDetail([]byte(`{"detail":"no"}`)))
	assert.Empty(t, errorDetail([]byte(`<html>`)))
	assert.Empty(t, errorDetail(nil))
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "1",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	signed, err := token.SignedString([]byte("test-key"))
	require.NoError(t, err)

	assert.True(t, tokenExpiry(signed).Equal(exp))
	assert.True(t, tokenExpiry("opaque-token").IsZero())
	assert.True(t, tokenExpiry("").IsZero())
}

func TestSourceString(t *testing.T) {
	assert.Equal(t, "network", SourceNetwork.String())
	assert.Equal(t, "cache", SourceCache.String())
	assert.Equal(t, "queued", SourceQueued.String())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "unauthenticated", StateUnauthenticated.String())
	assert.Equal(t, "authenticated", StateAuthenticated.String())
	assert.Equal(t, "offline", StateOffline.String())
}
