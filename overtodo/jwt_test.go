// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package overtodo

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestJWTAuth_GenerateAndValidate(t *testing.T) {
	jwtAuth := NewJWTAuth("test-secret", quietLogger())

	token, err := jwtAuth.GenerateToken("user-123", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := jwtAuth.ValidateToken(token)
	require.NoError(t, err)
	require.Equal(t, "user-123", claims.Subject)
	require.Equal(t, "go-overtodo", claims.Issuer)
	require.NotNil(t, claims.ExpiresAt)
	require.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Second)
}

func TestJWTAuth_RejectsInvalidTokens(t *testing.T) {
	jwtAuth := NewJWTAuth("test-secret", quietLogger())

	expired, err := jwtAuth.GenerateToken("user-123", -time.Minute)
	require.NoError(t, err)
	_, err = jwtAuth.ValidateToken(expired)
	require.ErrorIs(t, err, jwt.ErrTokenExpired)

	foreign, err := NewJWTAuth("other-secret", quietLogger()).GenerateToken("user-123", time.Hour)
	require.NoError(t, err)
	_, err = jwtAuth.ValidateToken(foreign)
	require.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)

	noSubject, err := jwtAuth.GenerateToken("", time.Hour)
	require.NoError(t, err)
	_, err = jwtAuth.ValidateToken(noSubject)
	require.ErrorContains(t, err, "missing sub")

	// Unsigned tokens are refused
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "user-123"})
	raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = jwtAuth.ValidateToken(raw)
	require.Error(t, err)
}
