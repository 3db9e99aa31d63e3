package routing

import (
	"fmt"
	"time"
)

// DefaultTimezone is where business hours are evaluated, regardless of the
// caller or server location
const DefaultTimezone = "Europe/Paris"

// Hours gates live transfers by local time of day
type Hours struct {
	Location  *time.Location
	OpenHour  int // first open minute is OpenHour:00
	CloseHour int // last open minute is CloseHour:00
}

// NewHours loads the named zone and builds a gate open from openHour:00 up to
// and including closeHour:00
func NewHours(timezone string, openHour, closeHour int) (*Hours, error) {
	if openHour < 0 || closeHour > 23 || openHour > closeHour {
		return nil, fmt.Errorf("invalid business hours %d-%d", openHour, closeHour)
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	return &Hours{Location: loc, OpenHour: openHour, CloseHour: closeHour}, nil
}

// IsOpen reports whether now falls inside business hours
func (h *Hours) IsOpen(now time.Time) bool {
	local := now.In(h.Location)
	minute := local.Hour()*60 + local.Minute()
	return minute >= h.OpenHour*60 && minute <= h.CloseHour*60
}
