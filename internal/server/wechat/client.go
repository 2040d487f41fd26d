package wechat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/zhangleigang/knowledge-api/internal/common"
	"github.com/zhangleigang/knowledge-api/internal/cryptox"
	"github.com/zhangleigang/knowledge-api/internal/netx"
)

const sessionPath = "/sns/jscode2session"

// fallbackMessage is used when the provider reports an error without text.
const fallbackMessage = "wechat login failed"

type Config struct {
	AppID    string
	Secret   string
	Endpoint string
	Timeout  time.Duration
}

// Client calls the real jscode2session endpoint.
type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.weixin.qq.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

type sessionResponse struct {
	OpenID     string `json:"openid"`
	SessionKey string `json:"session_key"`
	UnionID    string `json:"unionid"`
	ErrCode    int    `json:"errcode"`
	ErrMsg     string `json:"errmsg"`
}

func (c *Client) Mode() string { return "wechat" }

func (c *Client) Exchange(ctx context.Context, code string) (*Session, error) {
	query := url.Values{}
	query.Set("appid", c.cfg.AppID)
	query.Set("secret", c.cfg.Secret)
	query.Set("js_code", code)
	query.Set("grant_type", "authorization_code")

	endpoint := strings.TrimRight(c.cfg.Endpoint, "/") + sessionPath + "?" + query.Encode()
	body, err := netx.GetBody(ctx, c.http, endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: jscode2session: %w", ErrUnavailable, err)
	}

	var payload sessionResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: jscode2session: decode: %w", ErrUnavailable, err)
	}

	if payload.ErrCode != 0 {
		msg := payload.ErrMsg
		if msg == "" {
			msg = fallbackMessage
		}
		return nil, &ProviderError{Code: payload.ErrCode, Message: msg}
	}
	if payload.OpenID == "" {
		return nil, &ProviderError{Message: fallbackMessage}
	}

	return &Session{OpenID: payload.OpenID, SessionKey: payload.SessionKey}, nil
}

type phonePayload struct {
	PhoneNumber     string `json:"phoneNumber"`
	PurePhoneNumber string `json:"purePhoneNumber"`
	CountryCode     string `json:"countryCode"`
}

// Phone decrypts p with the session key. Errors wrap common.ErrDecryption.
func (c *Client) Phone(_ context.Context, s *Session, p EncryptedPhone) (string, error) {
	var out phonePayload
	if err := cryptox.DecryptJSON(p.EncryptedData, s.SessionKey, p.IV, &out); err != nil {
		return "", err
	}
	if out.PhoneNumber == "" {
		return "", fmt.Errorf("%w: payload has no phoneNumber", common.ErrDecryption)
	}
	return out.PhoneNumber, nil
}
