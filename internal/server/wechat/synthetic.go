package wechat

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/zhangleigang/knowledge-api/internal/common"
)

const (
	SyntheticOpenIDPrefix = "mock_openid_"
	SyntheticSessionKey   = "mock_session_key"
)

// Synthetic stands in for the provider in development. Every exchange
// yields a fresh time-ordered openid, so each login creates a new user.
type Synthetic struct{}

func (Synthetic) Mode() string { return "synthetic" }

func (Synthetic) Exchange(context.Context, string) (*Session, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("synthetic openid: %w", err)
	}
	return &Session{OpenID: SyntheticOpenIDPrefix + id.String(), SessionKey: SyntheticSessionKey}, nil
}

// Phone ignores the payload and returns a masked number.
func (Synthetic) Phone(context.Context, *Session, EncryptedPhone) (string, error) {
	return MaskedPhone()
}

// MaskedPhone returns "138****" followed by four random digits.
func MaskedPhone() (string, error) {
	digits, err := common.RandomDigits(4)
	if err != nil {
		return "", fmt.Errorf("synthetic phone: %w", err)
	}
	return "138****" + digits, nil
}
