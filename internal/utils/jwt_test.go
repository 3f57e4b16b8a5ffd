package utils

import (
    "testing"

    "github.com/golang-jwt/jwt/v5"
    "github.com/stretchr/testify/require"
)

func TestAccessTokenRoundTrip(t *testing.T) {
    tok, err := NewAccessToken("s3cret", 42, "admin@x.io", "ADMIN", 5)
    require.NoError(t, err)

    cl, err := ParseAccessToken("s3cret", tok.Token)
    require.NoError(t, err)
    require.Equal(t, uint64(42), cl.AdminID)
    require.Equal(t, "admin@x.io", cl.Email)
    require.Equal(t, "ADMIN", cl.Role)

    _, err = ParseAccessToken("other", tok.Token)
    require.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseAccessTokenRejectsExpiredAndWrongType(t *testing.T) {
    expired, err := NewAccessToken("k", 1, "a@x.io", "ADMIN", -1)
    require.NoError(t, err)
    _, err = ParseAccessToken("k", expired.Token)
    require.ErrorIs(t, err, ErrInvalidToken)

    raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
        "sub": "1", "typ": "refresh", "exp": 9999999999,
    }).SignedString([]byte("k"))
    require.NoError(t, err)
    _, err = ParseAccessToken("k", raw)
    require.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshTokenHash(t *testing.T) {
    rt, err := NewRefreshToken(7)
    require.NoError(t, err)
    require.Len(t, rt.Raw, 96)
    require.Equal(t, HashRefreshRaw(rt.Raw), HashRefreshRaw(rt.Raw))
    require.NotEqual(t, rt.Raw, HashRefreshRaw(rt.Raw))
}

func TestPasswordHashing(t *testing.T) {
    h, err := HashPassword("hunter2", 4)
    require.NoError(t, err)
    require.True(t, VerifyPassword(h, "hunter2"))
    require.False(t, VerifyPassword(h, "hunter3"))
}
