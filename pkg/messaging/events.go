package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind identifies a notification event type
type Kind string

const (
	KindInboundSMS     Kind = "sms"
	KindCallTransfer   Kind = "call"
	KindVoicemailReady Kind = "voicemail"
)

// Event is a notification to deliver
type Event interface {
	Kind() Kind
}

// InboundSMS is a text message received on the hotline number
type InboundSMS struct {
	To        string
	From      string
	Body      string
	Timestamp time.Time
}

// CallTransfer announces a caller about to be connected to Recipient
type CallTransfer struct {
	CallID    string
	Caller    string
	Recipient string
	HelpLabel string
	Language  string
}

// VoicemailReady carries a transcribed voicemail
type VoicemailReady struct {
	CallID       string
	From         string
	Transcript   string
	RecordingURL string
}

func (InboundSMS) Kind() Kind     { return KindInboundSMS }
func (CallTransfer) Kind() Kind   { return KindCallTransfer }
func (VoicemailReady) Kind() Kind { return KindVoicemailReady }

// ============================================
// COMMUNICATION LOG
// ============================================

// LogRecord is one entry of the append-only communication log
type LogRecord struct {
	ID           uuid.UUID `json:"id"`
	Provider     string    `json:"provider"`
	Type         Kind      `json:"type"`
	Direction    string    `json:"direction"`
	From         string    `json:"from"`
	To           string    `json:"to"`
	Content      string    `json:"content"`
	RecordingURL string    `json:"recording_url,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// LogSink receives communication log records
type LogSink interface {
	Append(ctx context.Context, rec LogRecord) error
}

const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"

	ProviderSignalWire = "signalwire"
)

// record builds the log entry describing ev
func record(ev Event, now time.Time) LogRecord {
	rec := LogRecord{
		ID:        uuid.New(),
		Provider:  ProviderSignalWire,
		Type:      ev.Kind(),
		Direction: DirectionInbound,
		Timestamp: now,
	}
	switch e := ev.(type) {
	case InboundSMS:
		rec.From, rec.To, rec.Content = e.From, e.To, e.Body
		if !e.Timestamp.IsZero() {
			rec.Timestamp = e.Timestamp
		}
	case CallTransfer:
		rec.From, rec.To = e.Caller, e.Recipient
		rec.Content = e.HelpLabel + " (" + e.Language + ")"
	case VoicemailReady:
		rec.From, rec.Content, rec.RecordingURL = e.From, e.Transcript, e.RecordingURL
	}
	return rec
}
