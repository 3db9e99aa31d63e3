package ivr

// Instruction is one platform verb returned to the telephony platform
type Instruction interface {
	isInstruction()
}

// Play plays an audio prompt Loop times
type Play struct {
	URL  string
	Loop int
}

// Say speaks Text with a voice for Language
type Say struct {
	Text     string
	Language Language
}

// Gather plays Prompt while collecting NumDigits digits, then posts them to Action
type Gather struct {
	NumDigits int
	Action    string
	Prompt    Play
}

// Dial connects the caller to Number, presenting CallerID. The platform
// posts to Action once the dial ends, whatever the outcome
type Dial struct {
	Number   string
	CallerID string
	Timeout  int // ring timeout in seconds
	Action   string
}

// Record records up to MaxLength seconds. Action is posted when recording
// stops and TranscribeCallback when the transcription is ready
type Record struct {
	MaxLength          int
	Transcribe         bool
	Action             string
	TranscribeCallback string
}

// Redirect sends the call to another callback
type Redirect struct {
	URL string
}

// Hangup ends the call
type Hangup struct{}

func (Play) isInstruction()     {}
func (Say) isInstruction()      {}
func (Gather) isInstruction()   {}
func (Dial) isInstruction()     {}
func (Record) isInstruction()   {}
func (Redirect) isInstruction() {}
func (Hangup) isInstruction()   {}

// Response is the outcome of one event: what the platform does next and the
// state the call is left in
type Response struct {
	Instructions []Instruction
	State        State
}
