package messaging

import (
	"context"

	"github.com/birddigital/hotline-ivr/pkg/signalwire"
)

// SMSClient defines the part of the SignalWire client used for texts
type SMSClient interface {
	SendSMS(ctx context.Context, from, to, body string) (*signalwire.Message, error)
}

// MessageService handles SMS messaging operations
type MessageService struct {
	client SMSClient
}

// NewMessageService creates a new message service
func NewMessageService(client SMSClient) *MessageService {
	return &MessageService{client: client}
}

// SendText sends a single text message
func (m *MessageService) SendText(ctx context.Context, from, to, body string) error {
	_, err := m.client.SendSMS(ctx, from, to, body)
	return err
}
