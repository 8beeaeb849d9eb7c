package lark

import (
	"context"
	"encoding/json"
	"fmt"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-ledger/internal/application/port"
)

const (
	defaultReceiveIDType = "chat_id"
	msgTypeText          = "text"
)

// MessageCreator is the IM message resource of the SDK client
type MessageCreator interface {
	Create(ctx context.Context, req *larkim.CreateMessageReq, options ...larkcore.RequestOptionFunc) (*larkim.CreateMessageResp, error)
}

// Messenger implements port.MessageSender with Lark text messages
type Messenger struct {
	messages      MessageCreator
	receiveIDType string
	logger        *zap.Logger
}

// NewMessenger creates a sender backed by the SDK client
func NewMessenger(client *lark.Client, receiveIDType string, logger *zap.Logger) *Messenger {
	return NewMessengerWithCreator(client.Im.Message, receiveIDType, logger)
}

// NewMessengerWithCreator creates a sender backed by any message resource
func NewMessengerWithCreator(messages MessageCreator, receiveIDType string, logger *zap.Logger) *Messenger {
	if receiveIDType == "" {
		receiveIDType = defaultReceiveIDType
	}
	return &Messenger{
		messages:      messages,
		receiveIDType: receiveIDType,
		logger:        logger,
	}
}

// SendText sends a plain text message
func (m *Messenger) SendText(ctx context.Context, receiveID, text string) error {
	if receiveID == "" {
		return fmt.Errorf("receiveID cannot be empty")
	}
	if text == "" {
		return fmt.Errorf("text cannot be empty")
	}

	body, err := newTextBody(receiveID, text)
	if err != nil {
		return err
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(m.receiveIDType).
		Body(body).
		Build()

	resp, err := m.messages.Create(ctx, req)
	if err != nil {
		m.logger.Error("Failed to send message",
			zap.String("receive_id", receiveID),
			zap.Error(err))
		return fmt.Errorf("failed to send message: %w", err)
	}

	if !resp.Success() {
		m.logger.Error("API returned failure",
			zap.String("receive_id", receiveID),
			zap.Int("code", resp.Code),
			zap.String("msg", resp.Msg))
		return fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	messageID := ""
	if resp.Data != nil && resp.Data.MessageId != nil {
		messageID = *resp.Data.MessageId
	}
	m.logger.Info("Message sent successfully",
		zap.String("message_id", messageID),
		zap.String("receive_id", receiveID))

	return nil
}

// newTextBody builds the request body of a plain text message
func newTextBody(receiveID, text string) (*larkim.CreateMessageReqBody, error) {
	content, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal text content: %w", err)
	}

	return larkim.NewCreateMessageReqBodyBuilder().
		ReceiveId(receiveID).
		MsgType(msgTypeText).
		Content(string(content)).
		Build(), nil
}

// LogSender writes messages to the log instead of Lark. It stands in when Lark is disabled.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a LogSender
func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) SendText(_ context.Context, receiveID, text string) error {
	s.logger.Info("Notification", zap.String("receive_id", receiveID), zap.String("text", text))
	return nil
}

var (
	_ port.MessageSender = (*Messenger)(nil)
	_ port.MessageSender = (*LogSender)(nil)
)
