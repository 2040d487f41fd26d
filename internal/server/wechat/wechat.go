// Package wechat exchanges a mini-program login code for the caller's
// openid and session key, and recovers the phone number bound to it.
//
// Two Exchanger variants exist: Client talks to the real jscode2session
// endpoint, Synthetic fabricates identities for development when no
// provider credentials are configured.
package wechat

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable wraps failures to reach the provider or to read its
// answer: transport errors, non-200 statuses and undecodable bodies.
var ErrUnavailable = errors.New(fallbackMessage)

// Session is the result of a code exchange.
type Session struct {
	OpenID     string
	SessionKey string
}

// EncryptedPhone is the payload the client obtains from the phone number
// button. It can only be read with the session key of the same login.
type EncryptedPhone struct {
	PhoneCode     string
	EncryptedData string
	IV            string
}

// Exchanger is the identity exchange capability used by the auth service.
type Exchanger interface {
	// Exchange trades a one-time login code for a Session.
	Exchange(ctx context.Context, code string) (*Session, error)
	// Phone returns the phone number carried by p.
	Phone(ctx context.Context, s *Session, p EncryptedPhone) (string, error)
	// Mode names the variant for startup logging.
	Mode() string
}

// ProviderError is an errcode/errmsg pair returned by the provider.
type ProviderError struct {
	Code    int
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("wechat: %s (errcode %d)", e.Message, e.Code)
}
