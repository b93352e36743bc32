package lark

import (
	"context"
	"encoding/json"
	"fmt"

	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"

	"github.com/garyjia/uxone/internal/application/port"
)

const receiveIDTypeOpenID = "open_id"

// Messenger implements port.LarkMessageSender interface
type Messenger struct {
	messages messageCreator
	logger   *zap.Logger
}

// NewMessenger creates a new Lark message sender adapter
func NewMessenger(larkClient *Client, logger *zap.Logger) *Messenger {
	return &Messenger{
		messages: larkClient.messages(),
		logger:   logger,
	}
}

// SendMessage sends a text message to a user
// Implements port.LarkMessageSender interface
func (m *Messenger) SendMessage(ctx context.Context, openID string, content string) error {
	if openID == "" {
		return fmt.Errorf("openID cannot be empty")
	}

	if content == "" {
		return fmt.Errorf("content cannot be empty")
	}

	textContent, err := json.Marshal(map[string]string{"text": content})
	if err != nil {
		return fmt.Errorf("failed to marshal text content: %w", err)
	}

	if _, err := m.send(ctx, openID, larkim.MsgTypeText, string(textContent)); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	return nil
}

// SendCardMessage sends a card message to a user
// Implements port.LarkMessageSender interface
func (m *Messenger) SendCardMessage(ctx context.Context, openID string, cardContent interface{}) error {
	if openID == "" {
		return fmt.Errorf("openID cannot be empty")
	}

	if cardContent == nil {
		return fmt.Errorf("cardContent cannot be nil")
	}

	cardJSON, err := json.Marshal(cardContent)
	if err != nil {
		return fmt.Errorf("failed to marshal card content: %w", err)
	}

	if _, err := m.send(ctx, openID, larkim.MsgTypeInteractive, string(cardJSON)); err != nil {
		return fmt.Errorf("failed to send card message: %w", err)
	}

	return nil
}

func (m *Messenger) send(ctx context.Context, openID, msgType, content string) (string, error) {
	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(receiveIDTypeOpenID).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(openID).
			MsgType(msgType).
			Content(content).
			Build()).
		Build()

	resp, err := m.messages.Create(ctx, req)
	if err != nil {
		m.logger.Error("Failed to send message",
			zap.String("receive_id", openID),
			zap.Error(err))
		return "", err
	}

	if !resp.Success() {
		m.logger.Error("API returned failure",
			zap.String("receive_id", openID),
			zap.Int("code", resp.Code),
			zap.String("msg", resp.Msg))
		return "", fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	messageID := ""
	if resp.Data != nil && resp.Data.MessageId != nil {
		messageID = *resp.Data.MessageId
	}

	m.logger.Info("Message sent successfully",
		zap.String("message_id", messageID),
		zap.String("receive_id", openID),
		zap.String("msg_type", msgType))

	return messageID, nil
}

// Verify interface compliance
var _ port.LarkMessageSender = (*Messenger)(nil)
