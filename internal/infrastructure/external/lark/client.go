package lark

import (
	"context"
	"strings"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"
)

// Open platform endpoints
const (
	LarkBaseURL   = "https://open.larksuite.com"
	FeishuBaseURL = "https://open.feishu.cn"
)

// Config holds Lark client configuration
type Config struct {
	AppID     string
	AppSecret string
	// Domain selects the open platform: "lark" (default) or "feishu"
	Domain string
}

// messageCreator is the slice of the IM API the messenger uses
type messageCreator interface {
	Create(ctx context.Context, req *larkim.CreateMessageReq, options ...larkcore.RequestOptionFunc) (*larkim.CreateMessageResp, error)
}

// Client wraps the Lark SDK client
type Client struct {
	client *lark.Client
	appID  string
	logger *zap.Logger
}

// NewClient creates a new Lark client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	baseURL := LarkBaseURL
	if strings.EqualFold(cfg.Domain, "feishu") {
		baseURL = FeishuBaseURL
	}

	client := lark.NewClient(cfg.AppID, cfg.AppSecret,
		lark.WithOpenBaseUrl(baseURL),
		lark.WithLogLevel(larkcore.LogLevelInfo),
		lark.WithEnableTokenCache(true),
	)

	logger.Info("Lark client initialized", zap.String("app_id", cfg.AppID), zap.String("base_url", baseURL))

	return &Client{
		client: client,
		appID:  cfg.AppID,
		logger: logger,
	}
}

// GetClient returns the underlying Lark SDK client
func (c *Client) GetClient() *lark.Client {
	return c.client
}

// GetAppID returns the app ID
func (c *Client) GetAppID() string {
	return c.appID
}

func (c *Client) messages() messageCreator {
	return c.client.Im.Message
}
