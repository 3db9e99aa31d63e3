// Package ivr is the hotline's voice menu: a per-call state machine that
// turns inbound platform events into the next platform instructions.
//
// A call moves forward through AwaitingIntro, AwaitingLanguage,
// AwaitingMenuChoice, Transferring, AwaitingRecording and Complete. Session
// state is loaded from and saved to a SessionStore keyed by call ID, so any
// process may handle any event of a call. Transcriptions arrive out of band
// and are handled by Machine.HandleTranscription without touching the state
package ivr
