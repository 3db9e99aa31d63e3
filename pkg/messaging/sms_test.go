package messaging_test

import (
	"context"
	"errors"
	"testing"

	"github.com/birddigital/hotline-ivr/pkg/messaging"
	"github.com/birddigital/hotline-ivr/pkg/signalwire"
)

type fakeSMSClient struct {
	fail map[string]bool
}

func (f *fakeSMSClient) SendSMS(_ context.Context, from, to, body string) (*signalwire.Message, error) {
	if f.fail[to] {
		return nil, errors.New("rejected")
	}
	return &signalwire.Message{SID: "SM-" + to, From: from, To: to, Body: body}, nil
}

func TestMessageServiceSendText(t *testing.T) {
	svc := messaging.NewMessageService(&fakeSMSClient{fail: map[string]bool{"+2": true}})
	if err := svc.SendText(context.Background(), "+0", "+1", "hi"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if err := svc.SendText(context.Background(), "+0", "+2", "hi"); err == nil {
		t.Fatal("expected error")
	}
}
