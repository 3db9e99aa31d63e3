// Package telephony serves the webhooks the telephony platform calls for
// inbound SMS and voice, plus the admin endpoints
package telephony

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/birddigital/hotline-ivr/pkg/ivr"
	"github.com/birddigital/hotline-ivr/pkg/laml"
	"github.com/birddigital/hotline-ivr/pkg/messaging"
	"github.com/birddigital/hotline-ivr/pkg/signalwire"
)

// ============================================
// HOTLINE WEBHOOK HANDLERS
// HTTP endpoints the telephony platform calls during a call
// ============================================

// Notifier delivers notification events
type Notifier interface {
	Dispatch(ctx context.Context, ev messaging.Event)
}

// CallHistory is the part of the SignalWire API used by the admin view
type CallHistory interface {
	ListCalls(ctx context.Context, limit int) ([]signalwire.Call, error)
	ListRecordings(ctx context.Context, callSID string, limit int) ([]signalwire.Recording, error)
	ListTranscriptions(ctx context.Context, recordingSID string, limit int) ([]signalwire.Transcription, error)
	RecordingURL(recordingSID string) string
}

// LogReader reads the communication log
type LogReader interface {
	Recent(ctx context.Context, limit int) ([]messaging.LogRecord, error)
}

// Options configures optional handler collaborators
type Options struct {
	History   CallHistory  // serves /admin/calls when set
	Log       LogReader    // serves /admin/log when set
	Stream    http.Handler // serves /admin/stream when set
	AdminUser string
	AdminPass string
	Location  *time.Location // time zone of SMS timestamps
	Now       func() time.Time
	Logger    *slog.Logger
}

// CallHandlers manages HTTP endpoints for the hotline
type CallHandlers struct {
	machine  *ivr.Machine
	notifier Notifier
	opts     Options
	logger   *slog.Logger
}

// NewCallHandlers creates a new call handlers instance
func NewCallHandlers(machine *ivr.Machine, notifier Notifier, opts Options) *CallHandlers {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &CallHandlers{
		machine:  machine,
		notifier: notifier,
		opts:     opts,
		logger:   opts.Logger.With("component", "call_handlers"),
	}
}

// ============================================
// SMS
// ============================================

// HandleIncomingSMS forwards an inbound text to the distribution list
func (h *CallHandlers) HandleIncomingSMS(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet, http.MethodPost) {
		return
	}

	msg := messaging.InboundSMS{
		Body:      r.FormValue("Body"),
		From:      r.FormValue("From"),
		To:        r.FormValue("To"),
		Timestamp: h.opts.Now().In(h.opts.Location),
	}
	h.logger.Info("incoming sms", "from", msg.From, "to", msg.To)
	h.notifier.Dispatch(r.Context(), msg)

	writeLaML(w, laml.Empty())
}

// ============================================
// VOICE MENU
// ============================================

// HandleIncomingCall starts the voice menu for a new call
func (h *CallHandlers) HandleIncomingCall(w http.ResponseWriter, r *http.Request) {
	h.handleEvent(w, r, ivr.EventCallStarted)
}

// HandleLanguageDigits receives the language choice
func (h *CallHandlers) HandleLanguageDigits(w http.ResponseWriter, r *http.Request) {
	h.handleEvent(w, r, ivr.EventDigitsReceived)
}

// HandleMenuDigits receives the inquiry type choice
func (h *CallHandlers) HandleMenuDigits(w http.ResponseWriter, r *http.Request) {
	h.handleEvent(w, r, ivr.EventDigitsReceived)
}

// HandleDialComplete runs after a transfer attempt, whatever its outcome
func (h *CallHandlers) HandleDialComplete(w http.ResponseWriter, r *http.Request) {
	h.handleEvent(w, r, ivr.EventDialCompleted)
}

// HandleRecordingStopped thanks the caller and hangs up
func (h *CallHandlers) HandleRecordingStopped(w http.ResponseWriter, r *http.Request) {
	h.handleEvent(w, r, ivr.EventRecordingStopped)
}

func (h *CallHandlers) handleEvent(w http.ResponseWriter, r *http.Request, kind ivr.EventKind) {
	if !allowMethod(w, r, http.MethodGet, http.MethodPost) {
		return
	}

	ev := ivr.Event{
		Kind:       kind,
		CallID:     r.FormValue("CallSid"),
		From:       r.FormValue("From"),
		Digits:     r.FormValue("Digits"),
		DialStatus: r.FormValue("DialCallStatus"),
	}
	if ev.CallID == "" {
		h.logger.Warn("missing CallSid", "path", r.URL.Path)
		http.Error(w, "Missing CallSid", http.StatusBadRequest)
		return
	}

	resp, err := h.machine.Handle(r.Context(), ev)
	if errors.Is(err, ivr.ErrUnexpectedEvent) {
		h.logger.Warn("unexpected call event", "call_id", ev.CallID, "path", r.URL.Path, "error", err)
		resp = ivr.Response{Instructions: []ivr.Instruction{
			ivr.Say{Text: "Sorry, something went wrong. Goodbye.", Language: ivr.English},
			ivr.Hangup{},
		}}
	} else if err != nil {
		h.logger.Error("handle call event", "call_id", ev.CallID, "path", r.URL.Path, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	output, err := laml.Render(resp.Instructions)
	if err != nil {
		h.logger.Error("render laml", "call_id", ev.CallID, "error", err)
		http.Error(w, "Failed to generate LaML", http.StatusInternalServerError)
		return
	}
	writeLaML(w, output)
}

// HandleTranscription receives the asynchronous voicemail transcription
func (h *CallHandlers) HandleTranscription(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	t := ivr.Transcription{
		CallID:       r.FormValue("CallSid"),
		RecordingSID: r.FormValue("RecordingSid"),
		RecordingURL: r.FormValue("RecordingUrl"),
		From:         r.FormValue("From"),
		Text:         r.FormValue("TranscriptionText"),
	}
	if err := h.machine.HandleTranscription(r.Context(), t); err != nil {
		h.logger.Error("handle transcription", "call_id", t.CallID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// ============================================
// ADMIN ENDPOINTS
// ============================================

// CallSummary is one row of the admin call history
type CallSummary struct {
	SID               string `json:"sid"`
	StartTime         string `json:"start_time,omitempty"`
	From              string `json:"from"`
	To                string `json:"to"`
	Status            string `json:"status"`
	Duration          string `json:"duration,omitempty"`
	RecordingURL      string `json:"recording_url,omitempty"`
	TranscriptionText string `json:"transcription_text,omitempty"`
}

// HandleAdminCalls lists recent calls with their voicemail, if any
func (h *CallHandlers) HandleAdminCalls(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 10)
	ctx := r.Context()

	calls, err := h.opts.History.ListCalls(ctx, limit)
	if err != nil {
		h.logger.Error("list calls", "error", err)
		http.Error(w, "call history unavailable: "+err.Error(), http.StatusBadGateway)
		return
	}

	summaries := make([]CallSummary, 0, len(calls))
	for _, c := range calls {
		s := CallSummary{
			SID: c.SID, StartTime: c.StartTime, From: c.From, To: c.To,
			Status: c.Status, Duration: c.Duration,
		}

		recs, err := h.opts.History.ListRecordings(ctx, c.SID, 1)
		if err != nil {
			h.logger.Warn("list recordings", "call_sid", c.SID, "error", err)
		} else if len(recs) > 0 {
			s.RecordingURL = h.opts.History.RecordingURL(recs[0].SID)
			trans, err := h.opts.History.ListTranscriptions(ctx, recs[0].SID, 1)
			if err != nil {
				h.logger.Warn("list transcriptions", "recording_sid", recs[0].SID, "error", err)
			} else if len(trans) > 0 {
				s.TranscriptionText = trans[0].TranscriptionText
			}
		}
		summaries = append(summaries, s)
	}

	writeJSON(w, summaries)
}

// HandleAdminLog returns the most recent communication log records
func (h *CallHandlers) HandleAdminLog(w http.ResponseWriter, r *http.Request) {
	records, err := h.opts.Log.Recent(r.Context(), queryLimit(r, 50))
	if err != nil {
		h.logger.Error("read communication log", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []messaging.LogRecord{}
	}
	writeJSON(w, records)
}

// requireAdmin wraps next with HTTP basic authentication
func (h *CallHandlers) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(h.opts.AdminUser)) != 1 ||
			subtle.ConstantTimeCompare([]byte(pass), []byte(h.opts.AdminPass)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ============================================
// ROUTE REGISTRATION
// ============================================

// RegisterRoutes registers all call handler routes
func (h *CallHandlers) RegisterRoutes(mux *http.ServeMux) {
	callbacks := ivr.DefaultCallbacks()

	mux.HandleFunc("/receive_sms", h.HandleIncomingSMS)
	mux.HandleFunc("/receive_call", h.HandleIncomingCall)
	mux.HandleFunc(callbacks.Language, h.HandleLanguageDigits)
	mux.HandleFunc(callbacks.MenuChoice, h.HandleMenuDigits)
	mux.HandleFunc(callbacks.DialComplete, h.HandleDialComplete)
	mux.HandleFunc(callbacks.RecordingStopped, h.HandleRecordingStopped)
	mux.HandleFunc(callbacks.Transcription, h.HandleTranscription)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	if h.opts.AdminUser != "" && h.opts.AdminPass != "" {
		if h.opts.History != nil {
			mux.Handle("/admin/calls", h.requireAdmin(http.HandlerFunc(h.HandleAdminCalls)))
		}
		if h.opts.Log != nil {
			mux.Handle("/admin/log", h.requireAdmin(http.HandlerFunc(h.HandleAdminLog)))
		}
		if h.opts.Stream != nil {
			mux.Handle("/admin/stream", h.requireAdmin(h.opts.Stream))
		}
	}

	h.logger.Info("registered call handler routes")
}

// ============================================
// HELPERS
// ============================================

func allowMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	return false
}

func writeLaML(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", laml.ContentType)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

func queryLimit(r *http.Request, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	if n > 100 {
		return 100
	}
	return n
}
