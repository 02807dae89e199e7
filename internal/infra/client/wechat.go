// Package client holds HTTP clients for third-party APIs.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/boddenberg/rental-api-go/internal/domain"
	"github.com/boddenberg/rental-api-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("client")

// wechatBusy is the errcode WeChat returns when it asks callers to retry.
const wechatBusy = -1

// WechatClient exchanges mini-program login codes for sessions.
type WechatClient struct {
	httpClient *http.Client
	baseURL    string
	appID      string
	appSecret  string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
	logger     *zap.Logger
}

// NewWechatClient creates a new WechatClient.
func NewWechatClient(httpClient *http.Client, baseURL, appID, appSecret string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *WechatClient {
	return &WechatClient{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		appID:      appID,
		appSecret:  appSecret,
		cb:         cb,
		cfg:        cfg,
		logger:     logger,
	}
}

type code2SessionResponse struct {
	OpenID     string `json:"openid"`
	SessionKey string `json:"session_key"`
	UnionID    string `json:"unionid"`
	ErrCode    int    `json:"errcode"`
	ErrMsg     string `json:"errmsg"`
}

// Code2Session calls jscode2session with retry and circuit breaker.
// A rejected code yields *domain.ErrUnauthorized.
func (c *WechatClient) Code2Session(ctx context.Context, code string) (*domain.WechatSession, error) {
	ctx, span := tracer.Start(ctx, "WechatClient.Code2Session")
	defer span.End()

	q := url.Values{
		"appid":      {c.appID},
		"secret":     {c.appSecret},
		"js_code":    {code},
		"grant_type": {"authorization_code"},
	}
	endpoint := c.baseURL + "/sns/jscode2session?" + q.Encode()

	var session domain.WechatSession
	err := resilience.Call(ctx, c.cb, c.cfg, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return resilience.Permanent(err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("jscode2session returned status %d", resp.StatusCode)
		}

		var body code2SessionResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return fmt.Errorf("decode jscode2session: %w", err)
		}
		switch {
		case body.ErrCode == wechatBusy:
			return fmt.Errorf("wechat busy: %s", body.ErrMsg)
		case body.ErrCode != 0:
			return &domain.ErrUnauthorized{Message: fmt.Sprintf("wechat login failed: %s (%d)", body.ErrMsg, body.ErrCode)}
		case body.OpenID == "":
			return &domain.ErrUnauthorized{Message: "wechat login failed: empty openid"}
		}

		session = domain.WechatSession{OpenID: body.OpenID, SessionKey: body.SessionKey, UnionID: body.UnionID}
		return nil
	})
	if err != nil {
		var unauthorized *domain.ErrUnauthorized
		var circuitOpen *domain.ErrCircuitOpen
		var timeout *domain.ErrTimeout
		if errors.As(err, &unauthorized) || errors.As(err, &circuitOpen) || errors.As(err, &timeout) {
			return nil, err
		}
		c.logger.Error("wechat: jscode2session failed", zap.Error(err))
		return nil, &domain.ErrExternalService{Service: "wechat", Err: err}
	}

	return &session, nil
}
