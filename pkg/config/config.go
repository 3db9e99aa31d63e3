// Package config loads hotline settings from environment variables
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/birddigital/hotline-ivr/pkg/phone"
)

// SignalWire contains LaML REST API credentials
type SignalWire struct {
	ProjectID string `env:"PROJECT_ID"`
	Token     string `env:"TOKEN"`
	Space     string `env:"SPACE"`
}

// Prompts contains the URLs of recorded audio prompts
type Prompts struct {
	Intro            string `env:"INTRO_URL"`
	EnglishMenu      string `env:"ENGLISH_URL"`
	FrenchMenu       string `env:"FRENCH_URL"`
	VoicemailEnglish string `env:"VOICEMAIL_ENGLISH_URL"`
	VoicemailFrench  string `env:"VOICEMAIL_FRENCH_URL"`
	Closing          string `env:"FDR_URL"`
}

// Config is the complete hotline configuration
type Config struct {
	SignalWire SignalWire `envPrefix:"SIGNALWIRE_"`
	Prompts    Prompts

	// Recipients 1-4 share voter and general inquiries
	Recipient1         string `env:"RECIPIENT1"`
	Recipient2         string `env:"RECIPIENT2"`
	Recipient3         string `env:"RECIPIENT3"`
	Recipient4         string `env:"RECIPIENT4"`
	RecipientMedia     string `env:"RECIPIENT_MEDIA"`
	RecipientDebugging string `env:"RECIPIENT_DEBUGGING"`

	CallerID   string `env:"CALLER_ID"`
	CallerIDUS string `env:"CALLER_ID_US"`

	FromEmail    string `env:"FROM_EMAIL"`
	ResponseList string `env:"RESPONSE_LIST"`
	TechList     string `env:"TECH_LIST"`
	ResendAPIKey string `env:"RESEND_API_KEY"`

	HotlineName string `env:"HOTLINE_NAME" envDefault:"Hotline"`
	ListenAddr  string `env:"LISTEN_ADDR" envDefault:":8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	AdminUser   string `env:"ADMIN_USER" envDefault:"admin"`
	AdminPass   string `env:"ADMIN_PASS"`

	Timezone  string `env:"TIMEZONE" envDefault:"Europe/Paris"`
	OpenHour  int    `env:"OPEN_HOUR" envDefault:"10"`
	CloseHour int    `env:"CLOSE_HOUR" envDefault:"21"`

	PurgeSchedule    string        `env:"PURGE_SCHEDULE" envDefault:"*/15 * * * *"`
	SessionRetention time.Duration `env:"SESSION_RETENTION" envDefault:"24h"`
	ClaimRetention   time.Duration `env:"CLAIM_RETENTION" envDefault:"720h"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"auto"`
}

// Load reads the configuration from the process environment
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

// LoadFrom reads the configuration from the given variables instead of the
// process environment
func LoadFrom(vars map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: vars}); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	c.ResponseList = strings.TrimSpace(c.ResponseList)
	c.TechList = strings.TrimSpace(c.TechList)
	c.AdminUser = strings.TrimSpace(c.AdminUser)
}

// Recipients returns the shared inquiry pool
func (c Config) Recipients() []string {
	return []string{c.Recipient1, c.Recipient2, c.Recipient3, c.Recipient4}
}

// Distribution returns the email distribution list
func (c Config) Distribution() []string {
	var out []string
	for _, addr := range []string{c.ResponseList, c.TechList} {
		if addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

// AdminEnabled reports whether the admin endpoints are served
func (c Config) AdminEnabled() bool {
	return c.AdminUser != "" && c.AdminPass != ""
}

// Validate reports every setting the server cannot run without
func (c Config) Validate() error {
	var errs []error
	missing := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
		}
	}

	missing("SIGNALWIRE_PROJECT_ID", c.SignalWire.ProjectID)
	missing("SIGNALWIRE_TOKEN", c.SignalWire.Token)
	missing("SIGNALWIRE_SPACE", c.SignalWire.Space)
	for i, r := range c.Recipients() {
		missing(fmt.Sprintf("RECIPIENT%d", i+1), r)
	}
	missing("RECIPIENT_MEDIA", c.RecipientMedia)
	missing("CALLER_ID", c.CallerID)
	missing("CALLER_ID_US", c.CallerIDUS)
	for name, value := range map[string]string{"CALLER_ID": c.CallerID, "CALLER_ID_US": c.CallerIDUS} {
		if value != "" && !phone.IsE164(value) {
			errs = append(errs, fmt.Errorf("%s %q is not an E.164 number", name, value))
		}
	}
	missing("FROM_EMAIL", c.FromEmail)
	missing("RESEND_API_KEY", c.ResendAPIKey)
	missing("INTRO_URL", c.Prompts.Intro)
	missing("ENGLISH_URL", c.Prompts.EnglishMenu)
	missing("FRENCH_URL", c.Prompts.FrenchMenu)
	missing("VOICEMAIL_ENGLISH_URL", c.Prompts.VoicemailEnglish)
	missing("VOICEMAIL_FRENCH_URL", c.Prompts.VoicemailFrench)
	missing("FDR_URL", c.Prompts.Closing)

	if len(c.Distribution()) == 0 {
		errs = append(errs, errors.New("RESPONSE_LIST or TECH_LIST is required"))
	}
	if c.OpenHour < 0 || c.CloseHour > 23 || c.OpenHour > c.CloseHour {
		errs = append(errs, fmt.Errorf("business hours %d-%d are invalid", c.OpenHour, c.CloseHour))
	}
	if c.SessionRetention <= 0 {
		errs = append(errs, errors.New("SESSION_RETENTION must be positive"))
	}
	if c.ClaimRetention < c.SessionRetention {
		errs = append(errs, errors.New("CLAIM_RETENTION must not be shorter than SESSION_RETENTION"))
	}
	return errors.Join(errs...)
}
