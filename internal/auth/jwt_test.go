package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey    = "test-signing-key"
	testIssuer = "otpattend"
)

func TestIssueAndParse(t *testing.T) {
	pair, err := Issue("station-1", "station", testIssuer, testKey, 15*time.Minute, 24*time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), pair.AccessExp, 2*time.Second)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), pair.RefreshExp, 2*time.Second)

	for _, token := range []string{pair.AccessToken, pair.RefreshToken} {
		claims, err := Parse(token, testKey, testIssuer)
		require.NoError(t, err)
		assert.Equal(t, "station-1", claims.Subject)
		assert.Equal(t, "station", claims.Role)
	}
}

func TestParse_WrongKey(t *testing.T) {
	pair, err := Issue("station-1", "station", testIssuer, testKey, 15*time.Minute, 24*time.Hour)
	require.NoError(t, err)

	_, err = Parse(pair.AccessToken, "another-key", testIssuer)
	assert.Error(t, err)
}

func TestParse_IssuerMismatch(t *testing.T) {
	pair, err := Issue("station-1", "station", "someone-else", testKey, 15*time.Minute, 24*time.Hour)
	require.NoError(t, err)

	_, err = Parse(pair.AccessToken, testKey, testIssuer)
	assert.Error(t, err)
}

func TestParse_Expired(t *testing.T) {
	pair, err := Issue("station-1", "station", testIssuer, testKey, -time.Minute, 24*time.Hour)
	require.NoError(t, err)

	_, err = Parse(pair.AccessToken, testKey, testIssuer)
	assert.Error(t, err, "expired access token must be rejected")

	_, err = Parse(pair.RefreshToken, testKey, testIssuer)
	assert.NoError(t, err, "refresh token outlives the access token")
}
