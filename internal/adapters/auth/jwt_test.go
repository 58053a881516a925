package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-tracking-service/internal/domain"
)

const testSecret = "0123456789abcdef-test"

func TestIssueAndAuthenticate(t *testing.T) {
	a, err := NewJWTAuthority(testSecret, time.Hour)
	require.NoError(t, err)

	token, err := a.Issue(domain.Principal{Subject: "drv-7", Role: domain.RoleDriver, VehicleIDs: []string{"V1"}})
	require.NoError(t, err)

	p, err := a.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "drv-7", p.Subject)
	assert.Equal(t, domain.RoleDriver, p.Role)
	assert.True(t, p.CanReportFor("V1"))
	assert.False(t, p.CanReportFor("V2"))
}

func TestAuthenticateRejects(t *testing.T) {
	a, err := NewJWTAuthority(testSecret, time.Hour)
	require.NoError(t, err)
	other, err := NewJWTAuthority("another-secret-0123456789", time.Hour)
	require.NoError(t, err)

	forged, err := other.Issue(domain.Principal{Subject: "x", Role: domain.RoleAdmin})
	require.NoError(t, err)

	expiredAuthority, err := NewJWTAuthority(testSecret, time.Minute)
	require.NoError(t, err)
	expiredAuthority.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, err := expiredAuthority.Issue(domain.Principal{Subject: "x", Role: domain.RoleAdmin})
	require.NoError(t, err)

	for name, token := range map[string]string{
		"empty":   "",
		"garbage": "not-a-jwt",
		"forged":  forged,
		"expired": expired,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := a.Authenticate(context.Background(), token)
			assert.ErrorIs(t, err, domain.ErrUnauthorized)
		})
	}
}

func TestIssueValidatesPrincipal(t *testing.T) {
	a, err := NewJWTAuthority(testSecret, time.Hour)
	require.NoError(t, err)

	_, err = a.Issue(domain.Principal{Role: domain.RoleAdmin})
	assert.Error(t, err)

	_, err = a.Issue(domain.Principal{Subject: "x", Role: "viewer"})
	assert.Error(t, err)
}

func TestNewJWTAuthorityShortSecret(t *testing.T) {
	_, err := NewJWTAuthority("short", time.Hour)
	assert.Error(t, err)
}
