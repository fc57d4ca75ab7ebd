package stashbox

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// MinSecretLength is the shortest HMAC secret NewTokenSigner accepts.
const MinSecretLength = 32

// TokenSigner issues and verifies short-lived capability tokens.
//
// A token is the base64url encoding of "<json>.<hex mac>", where json holds
// the payload and an absolute expiry in epoch milliseconds, and mac is
// HMAC-SHA256 of json under the signer's secret. Tokens are never stored;
// everything needed to verify one travels inside it.
//
// TokenSigner is safe for concurrent use.
type TokenSigner struct {
	secret []byte
	now    func() time.Time
}

// TokenOption configures a TokenSigner.
type TokenOption func(*TokenSigner)

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenSigner) {
		s.now = now
	}
}

type tokenBody struct {
	Payload Payload `json:"payload"`
	Expiry  int64   `json:"expiry"`
}

// NewTokenSigner creates a signer keyed by secret.
// Returns ErrInvalidInput if secret is shorter than MinSecretLength bytes.
func NewTokenSigner(secret []byte, opts ...TokenOption) (*TokenSigner, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("new token signer: secret must be at least %d bytes: %w", MinSecretLength, ErrInvalidInput)
	}

	s := &TokenSigner{
		secret: bytes.Clone(secret),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Sign issues a token for payload that expires ttl from now.
// It returns the token together with its absolute expiry.
func (s *TokenSigner) Sign(payload Payload, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		return "", time.Time{}, fmt.Errorf("sign token: ttl must be positive: %w", ErrInvalidInput)
	}

	if payload == nil {
		payload = Payload{}
	}

	expiresAt := s.now().Add(ttl)
	body, err := json.Marshal(tokenBody{
		Payload: payload,
		Expiry:  expiresAt.UnixMilli(),
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}

	raw := make([]byte, 0, len(body)+1+sha256.Size*2)
	raw = append(raw, body...)
	raw = append(raw, '.')
	raw = hex.AppendEncode(raw, s.mac(body))

	return base64.RawURLEncoding.EncodeToString(raw), time.UnixMilli(expiresAt.UnixMilli()), nil
}

// Verify checks token and returns its payload.
//
// Errors:
//   - ErrTokenMalformed: not decodable, no separator, empty halves or a body that is not a token
//   - ErrTokenSignature: the MAC text is not the lowercase hex HMAC of the body
//   - ErrTokenExpired: the signature is good but the expiry has passed
func (s *TokenSigner) Verify(token string) (Payload, error) {
	raw, err := decodeToken(token)
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", ErrTokenMalformed)
	}

	sep := bytes.LastIndexByte(raw, '.')
	if sep <= 0 || sep == len(raw)-1 {
		return nil, fmt.Errorf("verify token: missing signature: %w", ErrTokenMalformed)
	}
	body, sigHex := raw[:sep], raw[sep+1:]

	// Compare the lowercase hex text so there is exactly one valid encoding.
	if !hmac.Equal(sigHex, hex.AppendEncode(nil, s.mac(body))) {
		return nil, fmt.Errorf("verify token: %w", ErrTokenSignature)
	}

	var tb tokenBody
	if err := json.Unmarshal(body, &tb); err != nil {
		return nil, fmt.Errorf("verify token: %w", ErrTokenMalformed)
	}

	if s.now().UnixMilli() > tb.Expiry {
		return nil, fmt.Errorf("verify token: %w", ErrTokenExpired)
	}

	if tb.Payload == nil {
		tb.Payload = Payload{}
	}
	return tb.Payload, nil
}

func (s *TokenSigner) mac(body []byte) []byte {
	h := hmac.New(sha256.New, s.secret)
	h.Write(body)
	return h.Sum(nil)
}

// decodeToken accepts only the unpadded URL alphabet Sign emits.
func decodeToken(token string) ([]byte, error) {
	if token == "" {
		return nil, ErrTokenMalformed
	}
	return base64.RawURLEncoding.DecodeString(token)
}
