// Package messaging renders hotline events into emails and text messages and
// delivers them on a best-effort basis.
//
// Dispatcher never returns an error to its caller: when the primary channel
// fails it sends a short debug text to the debugging recipient, and when that
// fails too the failure is only logged. Every dispatched event is also
// appended to the configured LogSinks
package messaging
