package telephony_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/birddigital/hotline-ivr/pkg/ivr"
	"github.com/birddigital/hotline-ivr/pkg/messaging"
	"github.com/birddigital/hotline-ivr/pkg/phone"
	"github.com/birddigital/hotline-ivr/pkg/routing"
	"github.com/birddigital/hotline-ivr/pkg/signalwire"
	"github.com/birddigital/hotline-ivr/pkg/store"
	"github.com/birddigital/hotline-ivr/pkg/telephony"
)

type openGate struct{}

func (openGate) IsOpen(time.Time) bool { return true }

type fixedSelector struct{}

func (fixedSelector) Select(c routing.MenuChoice) (string, bool) {
	if c == routing.ChoiceUnknown {
		return "", false
	}
	return "06 12 34 56 78", true
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []messaging.Event
}

func (r *recordingNotifier) Dispatch(_ context.Context, ev messaging.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingNotifier) all() []messaging.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]messaging.Event(nil), r.events...)
}

type fakeHistory struct {
	err error
}

func (f *fakeHistory) ListCalls(context.Context, int) ([]signalwire.Call, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []signalwire.Call{
		{SID: "CA1", From: "+33611111111", To: "+33100000000", Status: "completed", Duration: "42"},
		{SID: "CA2", From: "+33622222222", To: "+33100000000", Status: "no-answer"},
	}, nil
}

func (f *fakeHistory) ListRecordings(_ context.Context, callSID string, _ int) ([]signalwire.Recording, error) {
	if callSID == "CA1" {
		return []signalwire.Recording{{SID: "RE1", CallSID: "CA1"}}, nil
	}
	return nil, nil
}

func (f *fakeHistory) ListTranscriptions(context.Context, string, int) ([]signalwire.Transcription, error) {
	return []signalwire.Transcription{{SID: "TR1", TranscriptionText: "hello"}}, nil
}

func (f *fakeHistory) RecordingURL(sid string) string {
	return "https://example.signalwire.com/recordings/" + sid + ".mp3"
}

type fixture struct {
	mux      *http.ServeMux
	notifier *recordingNotifier
	store    *store.Memory
}

var fixedNow = time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)

func newFixture(t *testing.T, opts telephony.Options) *fixture {
	t.Helper()
	f := &fixture{
		mux:      http.NewServeMux(),
		notifier: &recordingNotifier{},
		store:    store.NewMemory(),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	machine, err := ivr.NewMachine(ivr.Config{
		Store:      f.store,
		Gate:       openGate{},
		Selector:   fixedSelector{},
		Normalizer: phone.NewNormalizer("+33100000000", "+12020000000"),
		Notifier:   f.notifier,
		Prompts: ivr.Prompts{
			Intro:            "https://cdn.example.org/intro.mp3",
			EnglishMenu:      "https://cdn.example.org/english.mp3",
			FrenchMenu:       "https://cdn.example.org/french.mp3",
			VoicemailEnglish: "https://cdn.example.org/vm-en.mp3",
			VoicemailFrench:  "https://cdn.example.org/vm-fr.mp3",
			Closing:          "https://cdn.example.org/closing.mp3",
		},
		Now:    func() time.Time { return fixedNow },
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}

	opts.Logger = logger
	opts.Now = func() time.Time { return fixedNow }
	telephony.NewCallHandlers(machine, f.notifier, opts).RegisterRoutes(f.mux)
	return f
}

func (f *fixture) post(t *testing.T, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) get(t *testing.T, path string, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if auth {
		req.SetBasicAuth("admin", "secret")
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func callForm(digits string) url.Values {
	v := url.Values{"CallSid": {"CA0001"}, "From": {"+33611111111"}}
	if digits != "" {
		v.Set("Digits", digits)
	}
	return v
}

func TestIncomingCallPlaysIntro(t *testing.T) {
	f := newFixture(t, telephony.Options{})

	rec := f.post(t, "/receive_call", callForm(""))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/xml" {
		t.Errorf("Content-Type = %q", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{"<Gather", `action="/intro"`, "intro.mp3", "<Redirect"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
}

func TestCallFlowReachesDial(t *testing.T) {
	f := newFixture(t, telephony.Options{})

	f.post(t, "/receive_call", callForm(""))
	if rec := f.post(t, "/intro", callForm("2")); !strings.Contains(rec.Body.String(), "french.mp3") {
		t.Fatalf("language response = %s", rec.Body)
	}

	rec := f.post(t, "/route", callForm("1"))
	body := rec.Body.String()
	if !strings.Contains(body, "<Dial") || !strings.Contains(body, "+33612345678") {
		t.Fatalf("route response = %s", body)
	}

	events := f.notifier.all()
	if len(events) != 1 || events[0].Kind() != messaging.KindCallTransfer {
		t.Fatalf("events = %#v", events)
	}

	s, err := f.store.LoadSession(context.Background(), "CA0001")
	if err != nil {
		t.Fatal(err)
	}
	if s.State != ivr.StateTransferring || s.Language != ivr.French {
		t.Errorf("session = %+v", s)
	}
}

func TestGetRequestsAreAccepted(t *testing.T) {
	f := newFixture(t, telephony.Options{})

	rec := f.get(t, "/receive_call?CallSid=CA9&From=%2B33611111111", false)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "<Gather") {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
}

func TestMissingCallSid(t *testing.T) {
	f := newFixture(t, telephony.Options{})

	rec := f.post(t, "/receive_call", url.Values{"From": {"+33611111111"}})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t, telephony.Options{})

	req := httptest.NewRequest(http.MethodPut, "/receive_call", nil)
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}

	if rec := f.get(t, "/send_transcription", false); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("transcription GET status = %d, want 405", rec.Code)
	}
}

func TestUnexpectedEventHangsUp(t *testing.T) {
	f := newFixture(t, telephony.Options{})

	f.post(t, "/receive_call", callForm(""))
	rec := f.post(t, "/receive_call", callForm(""))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "<Hangup></Hangup>") {
		t.Errorf("body = %s", rec.Body)
	}
}

func TestMenuDigitsWithoutSessionRestartIntro(t *testing.T) {
	f := newFixture(t, telephony.Options{})

	rec := f.post(t, "/route", callForm("1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `action="/intro"`) || strings.Contains(body, "<Hangup") {
		t.Fatalf("body = %s", body)
	}
	if len(f.notifier.all()) != 0 {
		t.Fatal("restarted call dispatched a notification")
	}
}

func TestIncomingSMS(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Skipf("time zone data unavailable: %v", err)
	}
	f := newFixture(t, telephony.Options{Location: paris})

	rec := f.post(t, "/receive_sms", url.Values{
		"From": {"+33611111111"},
		"To":   {"+33100000000"},
		"Body": {"bonjour"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "<Response></Response>") {
		t.Errorf("body = %s", rec.Body)
	}

	events := f.notifier.all()
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	sms, ok := events[0].(messaging.InboundSMS)
	if !ok {
		t.Fatalf("event = %T", events[0])
	}
	if sms.Body != "bonjour" || sms.From != "+33611111111" || sms.To != "+33100000000" {
		t.Errorf("sms = %+v", sms)
	}
	if sms.Timestamp.Location() != paris || sms.Timestamp.Hour() != 15 {
		t.Errorf("timestamp = %v", sms.Timestamp)
	}
}

func TestTranscriptionDispatchedOnce(t *testing.T) {
	f := newFixture(t, telephony.Options{})
	form := url.Values{
		"CallSid":           {"CA0001"},
		"RecordingSid":      {"RE1"},
		"RecordingUrl":      {"https://example.org/RE1"},
		"From":              {"+33611111111"},
		"TranscriptionText": {"please call me back"},
	}

	for i := 0; i < 2; i++ {
		rec := f.post(t, "/send_transcription", form)
		if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
			t.Fatalf("attempt %d: status = %d, body = %s", i, rec.Code, rec.Body)
		}
	}

	events := f.notifier.all()
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	vm := events[0].(messaging.VoicemailReady)
	if vm.Transcript != "please call me back" || vm.RecordingURL != "https://example.org/RE1" {
		t.Errorf("voicemail = %+v", vm)
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t, telephony.Options{})

	rec := f.get(t, "/health", false)
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("status = %d, body = %q", rec.Code, rec.Body)
	}
}

func TestAdminRequiresCredentials(t *testing.T) {
	f := newFixture(t, telephony.Options{
		Log:       newLogStore(),
		AdminUser: "admin",
		AdminPass: "secret",
	})

	rec := f.get(t, "/admin/log", false)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Error("missing WWW-Authenticate header")
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/log", nil)
	req.SetBasicAuth("admin", "wrong")
	rec = httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong password status = %d, want 401", rec.Code)
	}
}

func TestAdminRoutesDisabledWithoutPassword(t *testing.T) {
	f := newFixture(t, telephony.Options{Log: newLogStore(), AdminUser: "admin"})

	if rec := f.get(t, "/admin/log", true); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestAdminLog(t *testing.T) {
	logStore := newLogStore()
	logStore.Append(context.Background(), messaging.LogRecord{Type: messaging.KindInboundSMS, From: "+33611111111", Content: "first"})
	logStore.Append(context.Background(), messaging.LogRecord{Type: messaging.KindCallTransfer, From: "+33622222222", Content: "second"})

	f := newFixture(t, telephony.Options{Log: logStore, AdminUser: "admin", AdminPass: "secret"})

	rec := f.get(t, "/admin/log?limit=1", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var records []messaging.LogRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &records); err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].Content != "second" {
		t.Errorf("records = %+v", records)
	}
}

func TestAdminCalls(t *testing.T) {
	f := newFixture(t, telephony.Options{History: &fakeHistory{}, AdminUser: "admin", AdminPass: "secret"})

	rec := f.get(t, "/admin/calls", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var calls []telephony.CallSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &calls); err != nil {
		t.Fatal(err)
	}
	if len(calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(calls))
	}
	if calls[0].RecordingURL != "https://example.signalwire.com/recordings/RE1.mp3" || calls[0].TranscriptionText != "hello" {
		t.Errorf("first call = %+v", calls[0])
	}
	if calls[1].RecordingURL != "" || calls[1].TranscriptionText != "" {
		t.Errorf("second call = %+v", calls[1])
	}
}

func TestAdminCallsUpstreamFailure(t *testing.T) {
	f := newFixture(t, telephony.Options{
		History:   &fakeHistory{err: errors.New("boom")},
		AdminUser: "admin",
		AdminPass: "secret",
	})

	if rec := f.get(t, "/admin/calls", true); rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func newLogStore() *store.Memory { return store.NewMemory() }
