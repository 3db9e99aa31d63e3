package ivr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/birddigital/hotline-ivr/pkg/messaging"
	"github.com/birddigital/hotline-ivr/pkg/phone"
	"github.com/birddigital/hotline-ivr/pkg/routing"
)

const (
	// RingTimeout is how long a recipient's phone rings before voicemail
	RingTimeout = 12
	// MaxRecordingSeconds caps voicemail length
	MaxRecordingSeconds = 60
	// MenuLoops is how many times the main menu prompt repeats
	MenuLoops = 3
)

// ErrUnexpectedEvent is returned for events the current state does not accept
var ErrUnexpectedEvent = errors.New("unexpected event for call state")

// EventKind identifies an inbound platform event
type EventKind int

const (
	EventCallStarted EventKind = iota
	EventDigitsReceived
	EventDialCompleted
	EventRecordingStopped
)

func (k EventKind) String() string {
	switch k {
	case EventCallStarted:
		return "call_started"
	case EventDigitsReceived:
		return "digits_received"
	case EventDialCompleted:
		return "dial_completed"
	case EventRecordingStopped:
		return "recording_stopped"
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is an inbound platform event for one call
type Event struct {
	Kind       EventKind
	CallID     string
	From       string
	Digits     string
	DialStatus string
}

// Transcription is the asynchronous transcription-ready event
type Transcription struct {
	CallID       string
	RecordingSID string
	RecordingURL string
	From         string
	Text         string
}

// Prompts are the audio prompt URLs played to callers
type Prompts struct {
	Intro            string
	EnglishMenu      string
	FrenchMenu       string
	VoicemailEnglish string
	VoicemailFrench  string
	Closing          string
}

// Callbacks are the paths the platform posts follow-up events to
type Callbacks struct {
	Language         string
	MenuChoice       string
	DialComplete     string
	RecordingStopped string
	Transcription    string
}

// DefaultCallbacks returns the webhook paths served by the telephony package
func DefaultCallbacks() Callbacks {
	return Callbacks{
		Language:         "/intro",
		MenuChoice:       "/route",
		DialComplete:     "/end_call",
		RecordingStopped: "/postscript",
		Transcription:    "/send_transcription",
	}
}

// Gate decides whether live transfers are attempted
type Gate interface {
	IsOpen(now time.Time) bool
}

// RecipientSelector picks who answers a menu choice
type RecipientSelector interface {
	Select(choice routing.MenuChoice) (string, bool)
}

// NumberNormalizer turns a recipient into a dialable number
type NumberNormalizer interface {
	Normalize(raw string) phone.Number
}

// Notifier delivers notification events, best effort
type Notifier interface {
	Dispatch(ctx context.Context, ev messaging.Event)
}

// Config wires a Machine to its collaborators
type Config struct {
	Store      SessionStore
	Gate       Gate
	Selector   RecipientSelector
	Normalizer NumberNormalizer
	Notifier   Notifier
	Prompts    Prompts
	Callbacks  Callbacks
	Now        func() time.Time
	Logger     *slog.Logger
}

// Machine is the call session state machine
type Machine struct {
	store      SessionStore
	gate       Gate
	selector   RecipientSelector
	normalizer NumberNormalizer
	notifier   Notifier
	prompts    Prompts
	callbacks  Callbacks
	now        func() time.Time
	logger     *slog.Logger
}

// NewMachine validates cfg and builds a machine
func NewMachine(cfg Config) (*Machine, error) {
	switch {
	case cfg.Store == nil:
		return nil, errors.New("ivr: session store is required")
	case cfg.Gate == nil:
		return nil, errors.New("ivr: business hours gate is required")
	case cfg.Selector == nil:
		return nil, errors.New("ivr: recipient selector is required")
	case cfg.Normalizer == nil:
		return nil, errors.New("ivr: number normalizer is required")
	case cfg.Notifier == nil:
		return nil, errors.New("ivr: notifier is required")
	}
	if cfg.Callbacks == (Callbacks{}) {
		cfg.Callbacks = DefaultCallbacks()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Machine{
		store:      cfg.Store,
		gate:       cfg.Gate,
		selector:   cfg.Selector,
		normalizer: cfg.Normalizer,
		notifier:   cfg.Notifier,
		prompts:    cfg.Prompts,
		callbacks:  cfg.Callbacks,
		now:        cfg.Now,
		logger:     cfg.Logger.With("component", "ivr"),
	}, nil
}

// ============================================
// TRANSITION TABLE
// ============================================

type transition func(m *Machine, ctx context.Context, s *Session, ev Event) (Response, error)

var transitions = map[State]map[EventKind]transition{
	StateAwaitingIntro: {
		EventCallStarted: (*Machine).playIntro,
	},
	StateAwaitingLanguage: {
		EventDigitsReceived: (*Machine).chooseLanguage,
	},
	StateAwaitingMenuChoice: {
		EventDigitsReceived: (*Machine).chooseRecipient,
	},
	StateTransferring: {
		EventDialCompleted: (*Machine).afterDial,
	},
	StateAwaitingRecording: {
		EventRecordingStopped: (*Machine).thankAndHangup,
	},
	StateComplete: {
		EventDigitsReceived:   (*Machine).hangupAgain,
		EventDialCompleted:    (*Machine).hangupAgain,
		EventRecordingStopped: (*Machine).hangupAgain,
	},
}

// resumptions pick a call back up when its session was lost mid-call, for
// example after a restart of the in-memory store
var resumptions = map[EventKind]transition{
	EventDigitsReceived:   (*Machine).playIntro,
	EventDialCompleted:    (*Machine).afterDial,
	EventRecordingStopped: (*Machine).thankAndHangup,
}

// Handle applies ev to its call session and returns the platform instructions
// for the next step. The session is created on first sight of a call ID
func (m *Machine) Handle(ctx context.Context, ev Event) (Response, error) {
	if ev.CallID == "" {
		return Response{}, errors.New("ivr: event without call ID")
	}

	now := m.now()
	s, err := m.store.LoadSession(ctx, ev.CallID)
	lost := false
	if errors.Is(err, ErrSessionNotFound) {
		s = NewSession(ev.CallID, ev.From, now)
		lost = ev.Kind != EventCallStarted
	} else if err != nil {
		return Response{}, fmt.Errorf("load session %s: %w", ev.CallID, err)
	}
	if s.Caller == "" {
		s.Caller = ev.From
	}

	step, ok := transitions[s.State][ev.Kind]
	if lost {
		m.logger.Warn("no session for call in progress, resuming", "call_id", ev.CallID, "event", ev.Kind.String())
		step, ok = resumptions[ev.Kind]
	}
	if !ok {
		return Response{}, fmt.Errorf("%w: %s in %s", ErrUnexpectedEvent, ev.Kind, s.State)
	}

	from := s.State
	resp, err := step(m, ctx, s, ev)
	if err != nil {
		return Response{}, err
	}
	if stateOrder[resp.State] < stateOrder[from] {
		return Response{}, fmt.Errorf("ivr: refusing backward transition %s -> %s", from, resp.State)
	}

	s.State = resp.State
	s.UpdatedAt = now
	if err := m.store.SaveSession(ctx, s); err != nil {
		return Response{}, fmt.Errorf("save session %s: %w", s.CallID, err)
	}

	m.logger.Info("call transition",
		"call_id", s.CallID, "event", ev.Kind.String(), "from", from, "to", resp.State, "language", s.Language)
	if s.State.Terminal() && from != s.State {
		m.logger.Info("call complete", "call_id", s.CallID, "duration", now.Sub(s.CreatedAt))
	}
	return resp, nil
}

// ============================================
// STATES
// ============================================

func (m *Machine) playIntro(_ context.Context, _ *Session, _ Event) (Response, error) {
	return Response{
		Instructions: []Instruction{
			Gather{NumDigits: 1, Action: m.callbacks.Language, Prompt: Play{URL: m.prompts.Intro, Loop: 1}},
			Redirect{URL: m.callbacks.Language},
		},
		State: StateAwaitingLanguage,
	}, nil
}

func (m *Machine) chooseLanguage(_ context.Context, s *Session, ev Event) (Response, error) {
	if ev.Digits == "2" {
		s.Language = French
	} else {
		s.Language = English
	}
	return Response{Instructions: m.menu(s.Language), State: StateAwaitingMenuChoice}, nil
}

func (m *Machine) chooseRecipient(ctx context.Context, s *Session, ev Event) (Response, error) {
	if !m.gate.IsOpen(m.now()) {
		m.logger.Info("outside business hours, sending to voicemail", "call_id", s.CallID)
		return m.voicemail(s), nil
	}

	choice, ok := routing.ParseChoice(ev.Digits)
	if !ok {
		instrs := append([]Instruction{Say{Text: apology(s.Language), Language: s.Language}}, m.menu(s.Language)...)
		return Response{Instructions: instrs, State: StateAwaitingMenuChoice}, nil
	}

	recipient, ok := m.selector.Select(choice)
	if !ok {
		m.logger.Warn("no recipient for menu choice", "call_id", s.CallID, "choice", choice.String())
		return m.voicemail(s), nil
	}
	number := m.normalizer.Normalize(recipient)
	if !number.Valid {
		m.logger.Warn("recipient number invalid, not dialing", "call_id", s.CallID, "choice", choice.String())
		return m.voicemail(s), nil
	}

	m.notifier.Dispatch(ctx, messaging.CallTransfer{
		CallID:    s.CallID,
		Caller:    s.Caller,
		Recipient: number.E164,
		HelpLabel: choice.Label(),
		Language:  string(s.Language),
	})

	return Response{
		Instructions: []Instruction{
			Dial{Number: number.E164, CallerID: number.CallerID, Timeout: RingTimeout, Action: m.callbacks.DialComplete},
		},
		State: StateTransferring,
	}, nil
}

func (m *Machine) afterDial(_ context.Context, s *Session, ev Event) (Response, error) {
	m.logger.Info("transfer ended", "call_id", s.CallID, "dial_status", ev.DialStatus)
	return m.voicemail(s), nil
}

func (m *Machine) thankAndHangup(_ context.Context, s *Session, _ Event) (Response, error) {
	return Response{
		Instructions: []Instruction{
			Say{Text: thanks(s.Language), Language: s.Language},
			Play{URL: m.prompts.Closing, Loop: 1},
			Hangup{},
		},
		State: StateComplete,
	}, nil
}

func (m *Machine) hangupAgain(_ context.Context, _ *Session, _ Event) (Response, error) {
	return Response{Instructions: []Instruction{Hangup{}}, State: StateComplete}, nil
}

func (m *Machine) menu(lang Language) []Instruction {
	prompt := m.prompts.EnglishMenu
	if lang == French {
		prompt = m.prompts.FrenchMenu
	}
	return []Instruction{
		Gather{NumDigits: 1, Action: m.callbacks.MenuChoice, Prompt: Play{URL: prompt, Loop: MenuLoops}},
		Redirect{URL: m.callbacks.MenuChoice},
	}
}

func (m *Machine) voicemail(s *Session) Response {
	prompt := m.prompts.VoicemailEnglish
	if s.Language == French {
		prompt = m.prompts.VoicemailFrench
	}
	return Response{
		Instructions: []Instruction{
			Play{URL: prompt, Loop: 1},
			Record{
				MaxLength:          MaxRecordingSeconds,
				Transcribe:         true,
				Action:             m.callbacks.RecordingStopped,
				TranscribeCallback: m.callbacks.Transcription,
			},
			Redirect{URL: m.callbacks.RecordingStopped},
		},
		State: StateAwaitingRecording,
	}
}

func apology(lang Language) string {
	if lang == French {
		return "Désolé, je n'ai pas bien compris."
	}
	return "I'm sorry, I didn't quite get that."
}

func thanks(lang Language) string {
	if lang == French {
		return "Merci pour votre message."
	}
	return "Thanks for your message."
}

// ============================================
// TRANSCRIPTIONS
// ============================================

// HandleTranscription emails a finished voicemail transcription. Empty text
// means the transcription is not ready and is ignored. Repeated deliveries of
// the same recording notify once. The call state is never changed
func (m *Machine) HandleTranscription(ctx context.Context, t Transcription) error {
	text := strings.TrimSpace(t.Text)
	if text == "" {
		m.logger.Info("transcription not ready or failed", "call_id", t.CallID)
		return nil
	}

	first, err := m.store.ClaimTranscription(ctx, transcriptionKey(t, text))
	if err != nil {
		return fmt.Errorf("claim transcription for %s: %w", t.CallID, err)
	}
	if !first {
		m.logger.Info("duplicate transcription ignored", "call_id", t.CallID, "recording_sid", t.RecordingSID)
		return nil
	}

	from := t.From
	if from == "" && t.CallID != "" {
		if s, err := m.store.LoadSession(ctx, t.CallID); err == nil {
			from = s.Caller
		}
	}

	m.notifier.Dispatch(ctx, messaging.VoicemailReady{
		CallID:       t.CallID,
		From:         from,
		Transcript:   text,
		RecordingURL: t.RecordingURL,
	})
	return nil
}

func transcriptionKey(t Transcription, text string) string {
	switch {
	case t.RecordingSID != "":
		return "recording:" + t.RecordingSID
	case t.RecordingURL != "":
		return "url:" + t.RecordingURL
	case t.CallID != "":
		return "call:" + t.CallID
	}
	return "text:" + t.From + ":" + text
}
