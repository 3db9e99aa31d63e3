package signalwire

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrNotConfigured is returned when credentials are missing
var ErrNotConfigured = errors.New("SignalWire credentials not configured")

// Client is a SignalWire LaML REST API client
type Client struct {
	projectID  string
	token      string
	space      string
	baseURL    string
	httpClient *http.Client
}

// Call represents a SignalWire call
type Call struct {
	SID       string `json:"sid"`
	From      string `json:"from"`
	To        string `json:"to"`
	Status    string `json:"status"`
	Direction string `json:"direction"`
	Duration  string `json:"duration"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// Message represents an SMS message
type Message struct {
	SID       string `json:"sid"`
	From      string `json:"from"`
	To        string `json:"to"`
	Body      string `json:"body"`
	Status    string `json:"status"`
	Direction string `json:"direction"`
}

// Recording represents a call recording
type Recording struct {
	SID      string `json:"sid"`
	CallSID  string `json:"call_sid"`
	Duration string `json:"duration"`
}

// Transcription represents the machine transcription of a recording
type Transcription struct {
	SID               string `json:"sid"`
	RecordingSID      string `json:"recording_sid"`
	Status            string `json:"status"`
	TranscriptionText string `json:"transcription_text"`
}

// Option customizes a Client
type Option func(*Client)

// WithBaseURL points the client at another API root, used against test servers
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithTimeout sets the HTTP timeout for every API request
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// NewClient creates a new SignalWire API client
func NewClient(projectID, token, space string, opts ...Option) *Client {
	c := &Client{
		projectID: projectID,
		token:     token,
		space:     space,
		baseURL:   fmt.Sprintf("https://%s/api/laml/2010-04-01", space),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendSMS sends a text message
func (c *Client) SendSMS(ctx context.Context, from, to, body string) (*Message, error) {
	formData := url.Values{}
	formData.Set("From", from)
	formData.Set("To", to)
	formData.Set("Body", body)

	var msg Message
	if err := c.do(ctx, http.MethodPost, c.accountPath("Messages.json"), formData, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListCalls returns the most recent calls, newest first
func (c *Client) ListCalls(ctx context.Context, limit int) ([]Call, error) {
	q := url.Values{}
	q.Set("PageSize", strconv.Itoa(limit))

	var page struct {
		Calls []Call `json:"calls"`
	}
	if err := c.do(ctx, http.MethodGet, c.accountPath("Calls.json")+"?"+q.Encode(), nil, &page); err != nil {
		return nil, err
	}
	if len(page.Calls) > limit {
		page.Calls = page.Calls[:limit]
	}
	return page.Calls, nil
}

// ListRecordings returns recordings made during a call
func (c *Client) ListRecordings(ctx context.Context, callSID string, limit int) ([]Recording, error) {
	q := url.Values{}
	q.Set("CallSid", callSID)
	q.Set("PageSize", strconv.Itoa(limit))

	var page struct {
		Recordings []Recording `json:"recordings"`
	}
	if err := c.do(ctx, http.MethodGet, c.accountPath("Recordings.json")+"?"+q.Encode(), nil, &page); err != nil {
		return nil, err
	}
	return page.Recordings, nil
}

// ListTranscriptions returns transcriptions of a recording
func (c *Client) ListTranscriptions(ctx context.Context, recordingSID string, limit int) ([]Transcription, error) {
	q := url.Values{}
	q.Set("PageSize", strconv.Itoa(limit))

	var page struct {
		Transcriptions []Transcription `json:"transcriptions"`
	}
	path := c.accountPath(fmt.Sprintf("Recordings/%s/Transcriptions.json", recordingSID))
	if err := c.do(ctx, http.MethodGet, path+"?"+q.Encode(), nil, &page); err != nil {
		return nil, err
	}
	return page.Transcriptions, nil
}

// RecordingURL is the public media URL of a recording
func (c *Client) RecordingURL(recordingSID string) string {
	return c.accountPath(fmt.Sprintf("Recordings/%s.mp3", recordingSID))
}

// ValidateConfiguration checks if SignalWire is properly configured
func (c *Client) ValidateConfiguration() error {
	if c.projectID == "" {
		return fmt.Errorf("SIGNALWIRE_PROJECT_ID not configured")
	}
	if c.token == "" {
		return fmt.Errorf("SIGNALWIRE_TOKEN not configured")
	}
	if c.space == "" {
		return fmt.Errorf("SIGNALWIRE_SPACE not configured")
	}
	return nil
}

func (c *Client) accountPath(resource string) string {
	return fmt.Sprintf("%s/Accounts/%s/%s", c.baseURL, c.projectID, resource)
}

// do performs an authenticated request and decodes the JSON response into out
func (c *Client) do(ctx context.Context, method, reqURL string, form url.Values, out any) error {
	if c.projectID == "" || c.token == "" {
		return ErrNotConfigured
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.SetBasicAuth(c.projectID, c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// APIError is a non-success response from the SignalWire API
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("SignalWire API error (%d): %s", e.StatusCode, e.Body)
}
