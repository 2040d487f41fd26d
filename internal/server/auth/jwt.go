// Package auth issues and verifies the compact HS256 session tokens handed to
// the client app after login. Tokens are self-contained: validity is decided
// by signature and expiry alone, nothing is stored server-side.
package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/zhangleigang/knowledge-api/internal/common"
)

// DefaultTTL is the session lifetime used when the configuration does not
// override it.
const DefaultTTL = 30 * 24 * time.Hour

// Codec signs and verifies tokens with a single process-wide HMAC secret.
type Codec struct {
	secret []byte
	now    func() time.Time
	parser *jwt.Parser
}

// NewCodec returns a Codec using secret and the wall clock.
func NewCodec(secret string) *Codec {
	return NewCodecWithClock(secret, time.Now)
}

// NewCodecWithClock is NewCodec with an injectable clock. Both issuing and
// expiry checks read it.
func NewCodecWithClock(secret string, now func() time.Time) *Codec {
	c := &Codec{secret: []byte(secret), now: now}
	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		// Non-strict base64 ignores trailing bits, which would let two
		// different signature strings verify.
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(func() time.Time { return c.now() }),
	)
	return c
}

// Issue signs claims with iat set to now and exp to iat+ttl, both in epoch
// seconds. Caller keys named iat or exp are overwritten. A negative ttl
// yields an already expired token.
func (c *Codec) Issue(claims map[string]any, ttl time.Duration) (string, error) {
	iat := c.now().Unix()

	payload := make(jwt.MapClaims, len(claims)+2)
	for k, v := range claims {
		payload[k] = v
	}
	payload["iat"] = iat
	payload["exp"] = iat + int64(ttl/time.Second)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, payload).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return token, nil
}

// Verify checks the signature and expiry of token and returns its payload,
// iat and exp included. Numbers come back as float64, as JSON decodes them.
//
// All failures wrap common.ErrInvalidToken; callers must not tell them apart.
func (c *Codec) Verify(token string) (map[string]any, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty", common.ErrInvalidToken)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: want 3 segments, got %d", common.ErrInvalidToken, len(parts))
	}
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("%w: empty segment", common.ErrInvalidToken)
		}
	}

	claims := jwt.MapClaims{}
	_, err := c.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}

	return map[string]any(claims), nil
}

// ExtractFromHeader returns the token from an Authorization header value of
// the exact form "Bearer <token>". Any other shape, a lowercase scheme or
// extra spaces included, yields false.
func ExtractFromHeader(header string) (string, bool) {
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != common.BearerScheme || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
