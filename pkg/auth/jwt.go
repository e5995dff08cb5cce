package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the JWT claims expected by the LandGuard API.
type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
}

// JWTValidator checks HS256 bearer tokens.
type JWTValidator struct {
	secret []byte
	issuer string
}

// NewJWTValidator returns a validator for tokens signed with secret. An empty
// issuer disables the issuer check.
func NewJWTValidator(secret []byte, issuer string) (*JWTValidator, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 bytes")
	}
	return &JWTValidator{secret: secret, issuer: issuer}, nil
}

// Validate parses tokenStr and returns the caller it identifies.
func (v *JWTValidator) Validate(tokenStr string) (*Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("token subject is required")
	}
	return &Principal{ID: claims.Subject, Roles: claims.Roles}, nil
}

// Issue signs a token for subject. It is used by the CLI to mint officer
// tokens for local operation and by tests.
func (v *JWTValidator) Issue(subject string, roles []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Roles: roles,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
