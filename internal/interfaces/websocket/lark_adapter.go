// Package websocket provides WebSocket adapters for external event sources.
// The Lark adapter turns direct messages to the bot into approval commands.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkdispatcher "github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"
	"go.uber.org/zap"
)

// MessageHandler processes one inbound chat message
type MessageHandler interface {
	Handle(ctx context.Context, openID, text string) error
}

// LarkAdapterConfig holds configuration for the Lark WebSocket adapter
type LarkAdapterConfig struct {
	AppID     string
	AppSecret string
	Domain    string
}

// LarkAdapter wraps the Lark WebSocket SDK client and forwards text messages
// sent to the bot to a MessageHandler
type LarkAdapter struct {
	cfg     LarkAdapterConfig
	handler MessageHandler
	logger  *zap.Logger

	wsClient *larkws.Client
	mu       sync.RWMutex
	started  bool
}

// NewLarkAdapter creates a new Lark WebSocket adapter
func NewLarkAdapter(cfg LarkAdapterConfig, handler MessageHandler, logger *zap.Logger) *LarkAdapter {
	return &LarkAdapter{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
	}
}

// Start connects and blocks until the context is cancelled or the client fails
func (a *LarkAdapter) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return fmt.Errorf("adapter already started")
	}

	// Verification token and encrypt key are not used in WebSocket mode
	sdkDispatcher := larkdispatcher.NewEventDispatcher("", "").
		OnP2MessageReceiveV1(a.handleMessage)

	opts := []larkws.ClientOption{
		larkws.WithEventHandler(sdkDispatcher),
		larkws.WithLogLevel(larkcore.LogLevelWarn),
	}
	if a.cfg.Domain != "" {
		opts = append(opts, larkws.WithDomain(a.cfg.Domain))
	}
	a.wsClient = larkws.NewClient(a.cfg.AppID, a.cfg.AppSecret, opts...)

	a.started = true
	a.mu.Unlock()

	a.logger.Info("Starting Lark WebSocket adapter", zap.String("app_id", a.cfg.AppID))

	if err := a.wsClient.Start(ctx); err != nil {
		a.logger.Error("Lark WebSocket client error", zap.Error(err))
		return fmt.Errorf("websocket client error: %w", err)
	}
	return nil
}

// Stop marks the adapter stopped. The SDK client exits when the Start context is cancelled.
func (a *LarkAdapter) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		return nil
	}

	a.started = false
	a.logger.Info("Lark WebSocket adapter stopped")
	return nil
}

// Name returns the adapter name
func (a *LarkAdapter) Name() string {
	return "LarkAdapter"
}

// IsRunning returns whether the adapter is currently running
func (a *LarkAdapter) IsRunning() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.started
}

// handleMessage is called by the Lark SDK for every im.message.receive_v1 event
func (a *LarkAdapter) handleMessage(ctx context.Context, evt *larkim.P2MessageReceiveV1) error {
	openID, text, ok := extractText(evt)
	if !ok {
		a.logger.Debug("Ignoring non-text Lark message")
		return nil
	}

	if err := a.handler.Handle(ctx, openID, text); err != nil {
		a.logger.Error("Failed to handle Lark message", zap.String("open_id", openID), zap.Error(err))
		return err
	}
	return nil
}

// extractText returns the sender and plain text of a text message event
func extractText(evt *larkim.P2MessageReceiveV1) (openID, text string, ok bool) {
	if evt == nil || evt.Event == nil || evt.Event.Message == nil || evt.Event.Sender == nil {
		return "", "", false
	}
	msg := evt.Event.Message
	if msg.MessageType == nil || *msg.MessageType != larkim.MsgTypeText || msg.Content == nil {
		return "", "", false
	}
	sender := evt.Event.Sender.SenderId
	if sender == nil || sender.OpenId == nil || *sender.OpenId == "" {
		return "", "", false
	}

	var content struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(*msg.Content), &content); err != nil || content.Text == "" {
		return "", "", false
	}
	return *sender.OpenId, content.Text, true
}
