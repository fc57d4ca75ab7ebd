package http

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sagarc03/stashbox"
)

// MinJWTSecretLength is the shortest accepted HS256 secret.
const MinJWTSecretLength = 32

// OwnerVerifier resolves a bearer token to the id of the owner it was issued to.
type OwnerVerifier interface {
	VerifyOwner(token string) (string, error)
}

// OwnerAuth issues and verifies HS256 JWTs whose subject is the owner id.
type OwnerAuth struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewOwnerAuth creates an OwnerAuth. When issuer is set, tokens must carry
// it in their iss claim.
func NewOwnerAuth(secret, issuer string) (*OwnerAuth, error) {
	if len(secret) < MinJWTSecretLength {
		return nil, fmt.Errorf("new owner auth: %w: jwt secret must be at least %d bytes", stashbox.ErrInvalidInput, MinJWTSecretLength)
	}
	return &OwnerAuth{secret: []byte(secret), issuer: issuer, now: time.Now}, nil
}

// Issue returns a token for ownerID valid for ttl.
func (a *OwnerAuth) Issue(ownerID string, ttl time.Duration) (string, time.Time, error) {
	if ownerID == "" {
		return "", time.Time{}, fmt.Errorf("issue token: %w: owner id is required", stashbox.ErrInvalidInput)
	}
	if ttl <= 0 {
		return "", time.Time{}, fmt.Errorf("issue token: %w: ttl must be positive", stashbox.ErrInvalidInput)
	}

	now := a.now()
	expiresAt := now.Add(ttl)
	claims := jwt.RegisteredClaims{
		Subject:   ownerID,
		Issuer:    a.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("issue token: %w", err)
	}
	return signed, expiresAt, nil
}

// VerifyOwner checks signature, algorithm, expiry and issuer and returns the
// subject. Every failure wraps stashbox.ErrUnauthorized.
func (a *OwnerAuth) VerifyOwner(token string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %w", stashbox.ErrUnauthorized, err)
	}

	if claims.Subject == "" {
		return "", fmt.Errorf("%w: %w", stashbox.ErrUnauthorized, errors.New("token has no subject"))
	}

	return claims.Subject, nil
}
