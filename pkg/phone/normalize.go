package phone

import "strings"

// Number is the result of normalizing a raw destination string
type Number struct {
	E164     string `json:"e164"`
	CallerID string `json:"caller_id"`
	Valid    bool   `json:"valid"`
}

// Normalizer classifies raw destination strings into a canonical number and
// the caller ID to present when dialing it
type Normalizer struct {
	CallerID   string // French caller ID, also the default
	CallerIDUS string
}

// NewNormalizer creates a normalizer presenting the given caller IDs
func NewNormalizer(callerID, callerIDUS string) *Normalizer {
	return &Normalizer{CallerID: callerID, CallerIDUS: callerIDUS}
}

// Normalize maps a raw string to a Number. Lengths below count the leading
// '+' of the canonical form, so a 10 digit national number is 11 chars.
// Inputs that match no pattern come back with Valid unset
func (n *Normalizer) Normalize(raw string) Number {
	s := Canonical(raw)

	switch {
	case len(s) == 11 && s[1] == '0':
		// No country code and no US area code starts with 0: French national number
		return n.french("+33" + s[2:])
	case len(s) == 11 && s[1] >= '2':
		// US number missing the country code
		return n.us("+1" + s[1:])
	case len(s) == 13 && strings.HasPrefix(s, "+330"):
		return n.french("+33" + s[4:])
	case len(s) == 12 && strings.HasPrefix(s, "+33"):
		return n.french(s)
	case len(s) == 12 && strings.HasPrefix(s, "+1"):
		return n.us(s)
	case len(s) >= 12 && len(s) <= 15:
		return n.french(s)
	}

	return Number{CallerID: n.CallerID}
}

func (n *Normalizer) french(e164 string) Number {
	return Number{E164: e164, CallerID: n.CallerID, Valid: true}
}

func (n *Normalizer) us(e164 string) Number {
	return Number{E164: e164, CallerID: n.CallerIDUS, Valid: true}
}

// Canonical strips every non-digit and prefixes '+'. It returns "" when raw
// holds no digits at all
func Canonical(raw string) string {
	var b strings.Builder
	b.Grow(len(raw) + 1)
	b.WriteByte('+')
	for i := 0; i < len(raw); i++ {
		if c := raw[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	if b.Len() == 1 {
		return ""
	}
	return b.String()
}

// IsE164 checks if a phone number is in E.164 format
func IsE164(phone string) bool {
	if len(phone) < 3 || len(phone) > 16 {
		return false
	}
	if phone[0] != '+' {
		return false
	}
	for _, c := range phone[1:] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
