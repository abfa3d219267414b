// Package auth provides JWT token issuance/validation and password hashing
// for the training app's session flow.
//
// SESSION FLOW:
// 1. POST /api/auth/register or /api/auth/login → server verifies the credential,
//    issues an HS256 JWT, stores it in an HttpOnly cookie
// 2. On subsequent API calls, middleware reads the cookie, validates the
//    JWT, and sets the caller's identity in the request context
//
// The token is stateless — userID and role live inside the signed payload,
// so no session store is needed. The signature (HMAC-SHA256 over the secret)
// ensures nobody can tamper with the role claim to promote themselves...
// at least not through this code path.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "vulnarena"

// tokenLifetime is deliberately long — this is a training target people
// leave open in a browser tab for an afternoon, not a banking app.
const tokenLifetime = 24 * time.Hour

// TokenService handles JWT creation and validation. It holds the HMAC
// secret used to sign and verify tokens.
type TokenService struct {
	secret []byte
}

// NewTokenService creates a TokenService with the given secret.
// The secret should be at least 32 bytes of random data in production.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret)}, nil
}

// Claims is the validated identity carried by a token. The user id rides in
// the standard "sub" claim; the role is a private claim.
type Claims struct {
	UserID string
	Role   string
}

type tokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Generate creates and signs a new access token for the given user.
func (s *TokenService) Generate(userID, role string) (string, error) {
	return s.GenerateWithDuration(userID, role, tokenLifetime)
}

// GenerateWithDuration creates a token with a custom expiry. Used by tests
// to mint already-expired tokens.
func (s *TokenService) GenerateWithDuration(userID, role string, d time.Duration) (string, error) {
	now := time.Now()

	c := tokenClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Validate parses and verifies a JWT string, returning the identity claims.
//
// The jwt library checks the signature, the expiry, and the issuer. Pinning
// the algorithm list to HS256 closes the classic algorithm-confusion hole —
// ironic as that would be in this particular application, the flag for it
// lives in the seeded content, not in the real session layer.
func (s *TokenService) Validate(tokenStr string) (Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&tokenClaims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, fmt.Errorf("auth: token expired")
		}
		return Claims{}, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*tokenClaims)
	if !ok || !token.Valid {
		return Claims{}, fmt.Errorf("auth: invalid token claims")
	}
	if c.Subject == "" {
		return Claims{}, fmt.Errorf("auth: token has no subject")
	}

	return Claims{UserID: c.Subject, Role: c.Role}, nil
}
