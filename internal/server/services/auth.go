// Package services contains server-side business logic. This file implements
// AuthService: code-exchange login, phone-bound login, token checks, profile
// updates and request authentication.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zhangleigang/knowledge-api/internal/common"
	"github.com/zhangleigang/knowledge-api/internal/logging"
	"github.com/zhangleigang/knowledge-api/internal/server/auth"
	"github.com/zhangleigang/knowledge-api/internal/server/models"
	"github.com/zhangleigang/knowledge-api/internal/server/repositories/users"
	"github.com/zhangleigang/knowledge-api/internal/server/wechat"
)

// LoginResult is returned by a silent login.
type LoginResult struct {
	UserID    string `json:"userId"`
	Token     string `json:"token"`
	OpenID    string `json:"openid"`
	IsNewUser bool   `json:"isNewUser"`
}

// PhoneLoginResult is returned by a phone-bound login.
type PhoneLoginResult struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
	Phone  string `json:"phone"`
	OpenID string `json:"openid"`
}

type PhoneLoginRequest struct {
	Code          string
	PhoneCode     string
	EncryptedData string
	IV            string
}

// ProfileUpdate carries the editable profile fields. Empty fields are left
// unchanged.
type ProfileUpdate struct {
	NickName  string
	AvatarURL string
}

// AuthService ties the identity exchange, the user store and the token
// codec together.
type AuthService struct {
	users     users.Repository
	exchanger wechat.Exchanger
	codec     *auth.Codec
	ttl       time.Duration
	logger    logging.Logger
	now       func() time.Time
}

// NewAuthService constructs an AuthService. A non-positive ttl means
// auth.DefaultTTL.
func NewAuthService(repo users.Repository, ex wechat.Exchanger, codec *auth.Codec, ttl time.Duration, logger logging.Logger) *AuthService {
	if ttl <= 0 {
		ttl = auth.DefaultTTL
	}
	return &AuthService{
		users:     repo,
		exchanger: ex,
		codec:     codec,
		ttl:       ttl,
		logger:    logger.With("module", "auth_service"),
		now:       time.Now,
	}
}

// Login exchanges code for an identity, creates the user on first sight or
// rotates its session key otherwise, and issues a token.
func (s *AuthService) Login(ctx context.Context, code string) (*LoginResult, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: login code", common.ErrMissingInput)
	}

	sess, err := s.exchanger.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}

	user, isNew, err := s.upsert(ctx, sess, "")
	if err != nil {
		return nil, err
	}

	token, err := s.codec.IssueSession(auth.SessionClaims{UserID: user.ID, OpenID: user.OpenID}, s.ttl)
	if err != nil {
		return nil, fmt.Errorf("%w: issue token: %v", common.ErrInternal, err)
	}

	s.logger.Info(ctx, "user logged in", "user_id", user.ID, "new", isNew, "mode", s.exchanger.Mode())
	return &LoginResult{UserID: user.ID, Token: token, OpenID: user.OpenID, IsNewUser: isNew}, nil
}

// PhoneLogin is Login plus recovery of the phone number from the encrypted
// payload. The phone is stored on the user and carried in the token.
func (s *AuthService) PhoneLogin(ctx context.Context, req PhoneLoginRequest) (*PhoneLoginResult, error) {
	if req.Code == "" {
		return nil, fmt.Errorf("%w: login code", common.ErrMissingInput)
	}

	sess, err := s.exchanger.Exchange(ctx, req.Code)
	if err != nil {
		return nil, err
	}

	phone, err := s.exchanger.Phone(ctx, sess, wechat.EncryptedPhone{
		PhoneCode:     req.PhoneCode,
		EncryptedData: req.EncryptedData,
		IV:            req.IV,
	})
	if err != nil {
		return nil, err
	}

	user, isNew, err := s.upsert(ctx, sess, phone)
	if err != nil {
		return nil, err
	}

	token, err := s.codec.IssueSession(auth.SessionClaims{UserID: user.ID, OpenID: user.OpenID, Phone: phone}, s.ttl)
	if err != nil {
		return nil, fmt.Errorf("%w: issue token: %v", common.ErrInternal, err)
	}

	s.logger.Info(ctx, "user logged in with phone", "user_id", user.ID, "new", isNew, "mode", s.exchanger.Mode())
	return &PhoneLoginResult{UserID: user.ID, Token: token, Phone: phone, OpenID: user.OpenID}, nil
}

// upsert finds the user for sess.OpenID and refreshes its session key, or
// creates it. A create that loses a race to a concurrent login for the same
// openid falls back to the update path.
func (s *AuthService) upsert(ctx context.Context, sess *wechat.Session, phone string) (*models.User, bool, error) {
	user, err := s.users.GetByOpenID(ctx, sess.OpenID)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, false, err
	}

	if user == nil {
		user, err = s.users.Create(ctx, models.NewUser{OpenID: sess.OpenID, SessionKey: sess.SessionKey, Phone: phone})
		if err == nil {
			return user, true, nil
		}
		if !errors.Is(err, common.ErrAlreadyExists) {
			return nil, false, err
		}
		if user, err = s.users.GetByOpenID(ctx, sess.OpenID); err != nil {
			return nil, false, err
		}
	}

	now := s.now()
	patch := models.Patch{SessionKey: &sess.SessionKey, LastLoginTime: &now}
	if phone != "" {
		patch.Phone = &phone
	}

	user, err = s.users.Update(ctx, user.ID, patch)
	if err != nil {
		return nil, false, err
	}
	return user, false, nil
}

// Check validates token and returns the caller's profile. A bad signature,
// an expired token and a token for a deleted user all yield
// common.ErrInvalidToken.
func (s *AuthService) Check(ctx context.Context, token string) (*models.Profile, error) {
	user, err := s.lookup(ctx, token)
	if errors.Is(err, common.ErrUnknownUser) {
		return nil, common.ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	return user.Profile(), nil
}

// UpdateProfile applies the non-empty fields of upd to the caller's record.
func (s *AuthService) UpdateProfile(ctx context.Context, token string, upd ProfileUpdate) (*models.Profile, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: token", common.ErrMissingInput)
	}

	claims, err := s.codec.VerifySession(token)
	if err != nil {
		return nil, common.ErrInvalidToken
	}

	var patch models.Patch
	if upd.NickName != "" {
		patch.NickName = &upd.NickName
	}
	if upd.AvatarURL != "" {
		patch.AvatarURL = &upd.AvatarURL
	}

	user, err := s.users.Update(ctx, claims.UserID, patch)
	if errors.Is(err, common.ErrNotFound) {
		return nil, common.ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "profile updated", "user_id", user.ID)
	return user.Profile(), nil
}

// Authenticate resolves token to the sanitized identity of a live user.
// Unlike Check it tells an unknown user (common.ErrUnknownUser) apart from a
// bad token (common.ErrInvalidToken).
func (s *AuthService) Authenticate(ctx context.Context, token string) (*models.Identity, error) {
	user, err := s.lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	return user.Identity(), nil
}

func (s *AuthService) lookup(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: token", common.ErrMissingInput)
	}

	claims, err := s.codec.VerifySession(token)
	if err != nil {
		return nil, common.ErrInvalidToken
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if errors.Is(err, common.ErrNotFound) {
		return nil, common.ErrUnknownUser
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}
