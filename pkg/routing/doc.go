// Package routing decides where a caller goes: whether the hotline is open
// for live transfers and which recipient answers a given menu choice
package routing
