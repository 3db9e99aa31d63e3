package messaging

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"time"
)

// Email is an outbound HTML email
type Email struct {
	From    string
	To      []string
	Subject string
	HTML    string
}

// Mailer sends emails through the email provider
type Mailer interface {
	SendEmail(ctx context.Context, email Email) error
}

// Texter sends text messages through the telephony platform
type Texter interface {
	SendText(ctx context.Context, from, to, body string) error
}

// Settings holds the addresses the dispatcher sends from and to
type Settings struct {
	Name           string   // hotline name used in subjects
	FromEmail      string   // sender of every email
	Distribution   []string // recipients of SMS and voicemail emails
	CallerID       string   // sender of every text
	DebugRecipient string   // receives a text when the primary channel fails
}

// Dispatcher renders and delivers notification events
type Dispatcher struct {
	mailer   Mailer
	texter   Texter
	sinks    []LogSink
	settings Settings
	logger   *slog.Logger
	now      func() time.Time
}

// NewDispatcher creates a dispatcher. Sinks are optional
func NewDispatcher(mailer Mailer, texter Texter, settings Settings, logger *slog.Logger, sinks ...LogSink) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if settings.Name == "" {
		settings.Name = "Hotline"
	}
	return &Dispatcher{
		mailer:   mailer,
		texter:   texter,
		sinks:    sinks,
		settings: settings,
		logger:   logger.With("component", "dispatcher"),
		now:      time.Now,
	}
}

// SetClock replaces the wall clock used for log timestamps
func (d *Dispatcher) SetClock(now func() time.Time) {
	d.now = now
}

// message is the rendered form of an event
type message struct {
	subject string
	html    string // email body, empty for text-only events
	textTo  string // direct text recipient, empty for emails
	text    string
}

// render builds the subject and body of ev
func (d *Dispatcher) render(ev Event) (message, error) {
	switch e := ev.(type) {
	case InboundSMS:
		ts := e.Timestamp
		if ts.IsZero() {
			ts = d.now()
		}
		return message{
			subject: fmt.Sprintf("Incoming SMS from %s @ %s", e.From, ts.Format(time.RFC3339)),
			html: fmt.Sprintf("<p>To: %s</p><p>From: %s</p><p>Body: %s</p>",
				html.EscapeString(e.To), html.EscapeString(e.From), html.EscapeString(e.Body)),
		}, nil

	case CallTransfer:
		body := fmt.Sprintf("Caller %s with %s (in %s).", e.Caller, e.HelpLabel, e.Language)
		return message{subject: body, textTo: e.Recipient, text: body}, nil

	case VoicemailReady:
		return message{
			subject: fmt.Sprintf("New %s voicemail from %s", d.settings.Name, e.From),
			html: fmt.Sprintf(`<h1>New voicemail to %s</h1><br><p>Machine transcription: %s</p><br><a href="%s">Listen to recording</a>`,
				html.EscapeString(d.settings.Name), html.EscapeString(e.Transcript), html.EscapeString(e.RecordingURL)),
		}, nil
	}
	return message{}, fmt.Errorf("unsupported notification event %T", ev)
}

// Dispatch delivers ev. It never fails: delivery errors trigger the debug
// text fallback and are logged
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) {
	msg, err := d.render(ev)
	if err != nil {
		d.logger.Error("render notification", "error", err)
		return
	}

	if err := d.deliver(ctx, msg); err != nil {
		d.logger.Error("notification delivery failed",
			"kind", ev.Kind(), "subject", msg.subject, "error", err)
		d.fallback(ctx, msg.subject)
	}

	d.appendLog(ctx, ev)
}

func (d *Dispatcher) deliver(ctx context.Context, msg message) error {
	if msg.textTo != "" {
		if d.texter == nil {
			return fmt.Errorf("no text channel configured")
		}
		if err := d.texter.SendText(ctx, d.settings.CallerID, msg.textTo, msg.text); err != nil {
			return fmt.Errorf("send text to %s: %w", msg.textTo, err)
		}
		return nil
	}

	if d.mailer == nil {
		return fmt.Errorf("no email channel configured")
	}
	err := d.mailer.SendEmail(ctx, Email{
		From:    d.settings.FromEmail,
		To:      d.settings.Distribution,
		Subject: msg.subject,
		HTML:    msg.html,
	})
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

func (d *Dispatcher) fallback(ctx context.Context, subject string) {
	if d.texter == nil || d.settings.DebugRecipient == "" {
		d.logger.Warn("no debug recipient configured, dropping alert", "subject", subject)
		return
	}
	if err := d.texter.SendText(ctx, d.settings.CallerID, d.settings.DebugRecipient, "[DEBUG] "+subject); err != nil {
		d.logger.Error("debug alert failed", "subject", subject, "error", err)
	}
}

func (d *Dispatcher) appendLog(ctx context.Context, ev Event) {
	if len(d.sinks) == 0 {
		return
	}
	rec := record(ev, d.now())
	for _, sink := range d.sinks {
		if err := sink.Append(ctx, rec); err != nil {
			d.logger.Warn("append communication log", "kind", ev.Kind(), "error", err)
		}
	}
}
