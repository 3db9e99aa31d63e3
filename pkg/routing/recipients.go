package routing

import (
	"errors"
	"math/rand/v2"
	"sync"
)

// MenuChoice is the inquiry type a caller picks from the main menu
type MenuChoice int

const (
	ChoiceUnknown MenuChoice = iota
	VoterInquiry
	GeneralInquiry
	MediaInquiry
)

// ParseChoice maps a pressed digit to a menu choice
func ParseChoice(digit string) (MenuChoice, bool) {
	switch digit {
	case "1":
		return VoterInquiry, true
	case "2":
		return GeneralInquiry, true
	case "3":
		return MediaInquiry, true
	}
	return ChoiceUnknown, false
}

// Label is the help type used in notification text
func (c MenuChoice) Label() string {
	switch c {
	case VoterInquiry:
		return "voter inquiry"
	case GeneralInquiry:
		return "general inquiry"
	case MediaInquiry:
		return "media inquiry"
	}
	return ""
}

func (c MenuChoice) String() string {
	if l := c.Label(); l != "" {
		return l
	}
	return "unknown"
}

// PoolSize is the number of recipients sharing voter and general inquiries
const PoolSize = 4

// Selector picks the recipient for a menu choice
type Selector struct {
	pool  []string
	media string

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSelector creates a selector over the shared pool and the media
// recipient. rng may be seeded for reproducible draws
func NewSelector(pool []string, media string, rng *rand.Rand) (*Selector, error) {
	if len(pool) != PoolSize {
		return nil, errors.New("recipient pool must hold exactly 4 recipients")
	}
	for _, r := range pool {
		if r == "" {
			return nil, errors.New("recipient pool contains an empty recipient")
		}
	}
	if media == "" {
		return nil, errors.New("media recipient is required")
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Selector{
		pool:  append([]string(nil), pool...),
		media: media,
		rng:   rng,
	}, nil
}

// Select returns the recipient for choice. Voter and general inquiries draw
// uniformly from the same pool; the language of the call plays no part
func (s *Selector) Select(choice MenuChoice) (string, bool) {
	switch choice {
	case VoterInquiry, GeneralInquiry:
		s.mu.Lock()
		i := s.rng.IntN(len(s.pool))
		s.mu.Unlock()
		return s.pool[i], true
	case MediaInquiry:
		return s.media, true
	}
	return "", false
}

// Pool returns a copy of the shared recipient pool
func (s *Selector) Pool() []string {
	return append([]string(nil), s.pool...)
}
