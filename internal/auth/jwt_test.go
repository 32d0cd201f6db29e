package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateValidate(t *testing.T) {
	svc := NewJWTService("secret", 1)
	id := uuid.New()

	token, err := svc.Generate(id, "a@example.com")
	require.NoError(t, err)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, id, claims.UserID)
	assert.Equal(t, "a@example.com", claims.Email)

	got, err := svc.UserID(token)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestValidateRejects(t *testing.T) {
	svc := NewJWTService("secret", 1)
	other := NewJWTService("other", 1)
	token, err := other.Generate(uuid.New(), "a@example.com")
	require.NoError(t, err)

	_, err = svc.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.Validate("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := NewJWTService("secret", -1)
	token, err = expired.Generate(uuid.New(), "a@example.com")
	require.NoError(t, err)
	_, err = svc.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateSubjectFallback(t *testing.T) {
	svc := NewJWTService("secret", 1)
	id := uuid.New()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   id.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)

	claims, err := svc.Validate(signed)
	require.NoError(t, err)
	assert.Equal(t, id, claims.UserID)
}

func TestValidateRejectsOtherAlgorithms(t *testing.T) {
	svc := NewJWTService("secret", 1)
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		UserID:           uuid.New(),
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = svc.Validate(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
