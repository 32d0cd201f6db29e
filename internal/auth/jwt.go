package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned for any token that fails to parse or verify.
var ErrInvalidToken = errors.New("invalid token")

// clockSkew tolerates small drift against the token issuer.
const clockSkew = 30 * time.Second

// Claims identifies the caller. Tokens are issued by the identity service;
// this service only decodes them.
type Claims struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
	jwt.RegisteredClaims
}

// JWTService handles token generation and validation.
type JWTService struct {
	secret      []byte
	expireHours int
}

// NewJWTService creates a JWT service.
func NewJWTService(secret string, expireHours int) *JWTService {
	return &JWTService{
		secret:      []byte(secret),
		expireHours: expireHours,
	}
}

// Generate creates a token for the user. Used by tests and local tooling.
func (s *JWTService) Generate(userID uuid.UUID, email string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(s.expireHours) * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses an HS256 token and returns its claims. The caller id is
// read from user_id, falling back to the standard subject claim.
func (s *JWTService) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (interface{}, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(clockSkew),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if claims.UserID == uuid.Nil && claims.Subject != "" {
		id, err := uuid.Parse(claims.Subject)
		if err != nil {
			return nil, ErrInvalidToken
		}
		claims.UserID = id
	}
	if claims.UserID == uuid.Nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// UserID validates tokenString and returns only the caller's id.
func (s *JWTService) UserID(tokenString string) (uuid.UUID, error) {
	claims, err := s.Validate(tokenString)
	if err != nil {
		return uuid.Nil, err
	}
	return claims.UserID, nil
}
