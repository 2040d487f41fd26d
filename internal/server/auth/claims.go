package auth

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/zhangleigang/knowledge-api/internal/common"
)

// SessionClaims is the typed view of a session token payload.
type SessionClaims struct {
	UserID    string `mapstructure:"userId"`
	OpenID    string `mapstructure:"openid"`
	Phone     string `mapstructure:"phone"`
	IssuedAt  int64  `mapstructure:"iat"`
	ExpiresAt int64  `mapstructure:"exp"`
}

// IssueSession issues a token carrying userId, openid and, when set, phone.
func (c *Codec) IssueSession(s SessionClaims, ttl time.Duration) (string, error) {
	claims := map[string]any{
		"userId": s.UserID,
		"openid": s.OpenID,
	}
	if s.Phone != "" {
		claims["phone"] = s.Phone
	}
	return c.Issue(claims, ttl)
}

// VerifySession verifies token and decodes its payload. A payload without a
// string userId is treated as an invalid token.
func (c *Codec) VerifySession(token string) (*SessionClaims, error) {
	claims, err := c.Verify(token)
	if err != nil {
		return nil, err
	}

	var s SessionClaims
	if err := mapstructure.Decode(claims, &s); err != nil {
		return nil, fmt.Errorf("%w: decode claims: %v", common.ErrInvalidToken, err)
	}
	if s.UserID == "" {
		return nil, fmt.Errorf("%w: missing userId", common.ErrInvalidToken)
	}

	return &s, nil
}
