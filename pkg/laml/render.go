// Package laml renders voice menu instructions as LaML, the TwiML-compatible
// markup SignalWire executes for webhook responses
package laml

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"

	"golang.org/x/text/language"

	"github.com/birddigital/hotline-ivr/pkg/ivr"
)

// ContentType is the media type of rendered documents
const ContentType = "application/xml"

// Response is the <Response> document root
type Response struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any
}

type playVerb struct {
	XMLName xml.Name `xml:"Play"`
	Loop    string   `xml:"loop,attr,omitempty"`
	URL     string   `xml:",chardata"`
}

type sayVerb struct {
	XMLName  xml.Name `xml:"Say"`
	Language string   `xml:"language,attr,omitempty"`
	Text     string   `xml:",chardata"`
}

type gatherVerb struct {
	XMLName   xml.Name `xml:"Gather"`
	NumDigits int      `xml:"numDigits,attr"`
	Action    string   `xml:"action,attr"`
	Method    string   `xml:"method,attr"`
	Play      playVerb
}

type dialVerb struct {
	XMLName  xml.Name `xml:"Dial"`
	Timeout  int      `xml:"timeout,attr"`
	Action   string   `xml:"action,attr"`
	Method   string   `xml:"method,attr"`
	CallerID string   `xml:"callerId,attr,omitempty"`
	Number   string   `xml:",chardata"`
}

type recordVerb struct {
	XMLName            xml.Name `xml:"Record"`
	MaxLength          int      `xml:"maxLength,attr"`
	Transcribe         bool     `xml:"transcribe,attr"`
	Action             string   `xml:"action,attr"`
	Method             string   `xml:"method,attr"`
	TranscribeCallback string   `xml:"transcribeCallback,attr,omitempty"`
}

type redirectVerb struct {
	XMLName xml.Name `xml:"Redirect"`
	Method  string   `xml:"method,attr"`
	URL     string   `xml:",chardata"`
}

type hangupVerb struct {
	XMLName xml.Name `xml:"Hangup"`
}

// Render marshals instructions into a LaML document
func Render(instructions []ivr.Instruction) ([]byte, error) {
	var r Response
	for _, in := range instructions {
		verb, err := verbFor(in)
		if err != nil {
			return nil, err
		}
		r.Verbs = append(r.Verbs, verb)
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	if err := xml.NewEncoder(&buf).Encode(r); err != nil {
		return nil, fmt.Errorf("encode laml: %w", err)
	}
	return buf.Bytes(), nil
}

// Empty renders a response with no verbs, the reply to inbound messages
func Empty() []byte {
	out, _ := Render(nil)
	return out
}

func verbFor(in ivr.Instruction) (any, error) {
	switch v := in.(type) {
	case ivr.Play:
		return play(v), nil
	case ivr.Say:
		return sayVerb{Language: voiceLanguage(v.Language), Text: v.Text}, nil
	case ivr.Gather:
		return gatherVerb{NumDigits: v.NumDigits, Action: v.Action, Method: "POST", Play: play(v.Prompt)}, nil
	case ivr.Dial:
		return dialVerb{Timeout: v.Timeout, Action: v.Action, Method: "POST", CallerID: v.CallerID, Number: v.Number}, nil
	case ivr.Record:
		return recordVerb{
			MaxLength:          v.MaxLength,
			Transcribe:         v.Transcribe,
			Action:             v.Action,
			Method:             "POST",
			TranscribeCallback: v.TranscribeCallback,
		}, nil
	case ivr.Redirect:
		return redirectVerb{Method: "POST", URL: v.URL}, nil
	case ivr.Hangup:
		return hangupVerb{}, nil
	}
	return nil, fmt.Errorf("laml: unsupported instruction %T", in)
}

func play(p ivr.Play) playVerb {
	v := playVerb{URL: p.URL}
	if p.Loop > 0 {
		v.Loop = strconv.Itoa(p.Loop)
	}
	return v
}

// voiceTags are the text-to-speech voices used for each caller language
var voiceTags = map[ivr.Language]language.Tag{
	ivr.English: language.AmericanEnglish,
	ivr.French:  language.MustParse("fr-FR"),
}

func voiceLanguage(l ivr.Language) string {
	tag, ok := voiceTags[l]
	if !ok {
		return ""
	}
	return tag.String()
}
