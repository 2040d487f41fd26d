package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zhangleigang/knowledge-api/internal/common"
	"github.com/zhangleigang/knowledge-api/internal/server/models"
	"github.com/zhangleigang/knowledge-api/internal/server/services"
	"github.com/zhangleigang/knowledge-api/internal/server/wechat"
)

// AuthService is what the auth routes need from services.AuthService.
type AuthService interface {
	Authenticator
	Login(ctx context.Context, code string) (*services.LoginResult, error)
	PhoneLogin(ctx context.Context, req services.PhoneLoginRequest) (*services.PhoneLoginResult, error)
	Check(ctx context.Context, token string) (*models.Profile, error)
	UpdateProfile(ctx context.Context, token string, upd services.ProfileUpdate) (*models.Profile, error)
}

type loginRequest struct {
	Code string `json:"code"`
}

type phoneLoginRequest struct {
	Code          string `json:"code"`
	PhoneCode     string `json:"phoneCode"`
	EncryptedData string `json:"encryptedData"`
	IV            string `json:"iv"`
}

type updateProfileRequest struct {
	NickName  string `json:"nickName"`
	AvatarURL string `json:"avatarUrl"`
}

// bind decodes an optional JSON body. A missing or malformed body leaves
// req zero-valued and the handler reports the missing field.
func (s *Server) bind(c *gin.Context, req any) {
	if c.Request.ContentLength == 0 {
		return
	}
	if err := c.ShouldBindJSON(req); err != nil {
		s.logger.Debug(c.Request.Context(), "request body ignored", "path", c.Request.URL.Path, "error", err)
	}
}

func (s *Server) loginMessage() string {
	if s.devMode {
		return "login successful (development mode)"
	}
	return "login successful"
}

// authError writes the envelope for err. Known failures, provider outages
// included, answer 200 with code -1; anything else is logged and answered
// with a generic 500.
func (s *Server) authError(c *gin.Context, err error, missing string) {
	var pe *wechat.ProviderError
	switch {
	case errors.Is(err, common.ErrMissingInput):
		authFail(c, missing)
	case errors.As(err, &pe):
		authFail(c, pe.Message)
	case errors.Is(err, wechat.ErrUnavailable):
		s.logger.Warn(c.Request.Context(), "identity provider unavailable", "path", c.Request.URL.Path, "error", err)
		authFail(c, wechat.ErrUnavailable.Error())
	case errors.Is(err, common.ErrDecryption):
		authFail(c, "failed to decrypt phone number")
	case errors.Is(err, common.ErrInvalidToken):
		authFail(c, "token invalid or expired")
	default:
		s.logger.Error(c.Request.Context(), "auth request failed", "path", c.Request.URL.Path, "error", err)
		c.JSON(http.StatusInternalServerError, authEnvelope{Code: CodeFail, Msg: "internal server error"})
	}
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	s.bind(c, &req)

	res, err := s.auth.Login(c.Request.Context(), req.Code)
	if err != nil {
		s.authError(c, err, "missing login code")
		return
	}
	authOK(c, s.loginMessage(), res)
}

func (s *Server) phoneLogin(c *gin.Context) {
	var req phoneLoginRequest
	s.bind(c, &req)

	res, err := s.auth.PhoneLogin(c.Request.Context(), services.PhoneLoginRequest{
		Code:          req.Code,
		PhoneCode:     req.PhoneCode,
		EncryptedData: req.EncryptedData,
		IV:            req.IV,
	})
	if err != nil {
		s.authError(c, err, "missing login code")
		return
	}
	authOK(c, s.loginMessage(), res)
}

func (s *Server) check(c *gin.Context) {
	token, _ := bearerToken(c)

	profile, err := s.auth.Check(c.Request.Context(), token)
	if err != nil {
		s.authError(c, err, "no token provided")
		return
	}
	authOK(c, "token valid", profile)
}

func (s *Server) updateProfile(c *gin.Context) {
	token, _ := bearerToken(c)

	var req updateProfileRequest
	s.bind(c, &req)

	profile, err := s.auth.UpdateProfile(c.Request.Context(), token, services.ProfileUpdate{
		NickName:  req.NickName,
		AvatarURL: req.AvatarURL,
	})
	if err != nil {
		s.authError(c, err, "no token provided")
		return
	}
	authOK(c, "profile updated", profile)
}

// me returns the identity RequireAuth attached.
func (s *Server) me(c *gin.Context) {
	id, _ := IdentityFrom(c)
	authOK(c, "success", id)
}
