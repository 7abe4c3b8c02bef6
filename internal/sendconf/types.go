// Package sendconf implements the send-configuration store: outbound mail
// transport profiles owned by namespaces, guarded by per-entity
// permissions, and mutated under an optimistic-concurrency hash check.
package sendconf

import (
	"encoding/json"
	"time"

	"github.com/usrflo/mailtrain/internal/interop"
)

// MailerType selects the outbound transport mechanism and the shape of
// its settings.
type MailerType string

const (
	MailerSMTP    MailerType = "smtp"
	MailerZoneMTA MailerType = "zone-mta"
	MailerSES     MailerType = "ses"
)

var supportedMailerTypes = map[MailerType]bool{
	MailerSMTP:    true,
	MailerZoneMTA: true,
	MailerSES:     true,
}

// SendConfiguration is an outbound mail transport profile. MailerSettings
// holds the canonical serialized settings blob; DecodeSettings returns the
// typed form for the current MailerType.
type SendConfiguration struct {
	ID                   int64           `json:"id"`
	Name                 string          `json:"name"`
	Description          string          `json:"description"`
	FromEmail            string          `json:"from_email"`
	FromEmailOverridable bool            `json:"from_email_overridable"`
	FromName             string          `json:"from_name"`
	FromNameOverridable  bool            `json:"from_name_overridable"`
	ReplyTo              string          `json:"reply_to"`
	ReplyToOverridable   bool            `json:"reply_to_overridable"`
	Subject              string          `json:"subject"`
	SubjectOverridable   bool            `json:"subject_overridable"`
	VERPHostname         string          `json:"verp_hostname"`
	MailerType           MailerType      `json:"mailer_type"`
	MailerSettings       json.RawMessage `json:"mailer_settings,omitempty"`
	Namespace            int64           `json:"namespace"`
	Created              time.Time       `json:"created"`

	// Attached at read time, never persisted with the entity body.
	Permissions []string `json:"permissions,omitempty"`

	// OriginalHash carries the consistency-check fingerprint: populated by
	// private reads, echoed back by update callers.
	OriginalHash string `json:"originalHash,omitempty"`
}

// MailerSettings is the typed settings object for one mailer type.
type MailerSettings interface {
	Type() MailerType
}

// SMTPSettings configures a plain SMTP relay.
type SMTPSettings struct {
	Hostname        string `json:"hostname"`
	Port            int    `json:"port"`
	Encryption      string `json:"encryption"`
	UseAuth         bool   `json:"use_auth"`
	User            string `json:"user,omitempty"`
	Password        string `json:"password,omitempty"`
	AllowSelfSigned bool   `json:"allow_self_signed"`
	MaxConnections  int    `json:"max_connections"`
	MaxMessages     int    `json:"max_messages"`
	Throttling      int    `json:"throttling"`
}

// Type implements MailerSettings.
func (SMTPSettings) Type() MailerType { return MailerSMTP }

// ZoneMTASettings configures a ZoneMTA instance reached over SMTP with an
// optional sending-zone hint.
type ZoneMTASettings struct {
	Hostname       string `json:"hostname"`
	Port           int    `json:"port"`
	Encryption     string `json:"encryption"`
	UseAuth        bool   `json:"use_auth"`
	User           string `json:"user,omitempty"`
	Password       string `json:"password,omitempty"`
	SendingZone    string `json:"sending_zone,omitempty"`
	MaxConnections int    `json:"max_connections"`
	Throttling     int    `json:"throttling"`
}

// Type implements MailerSettings.
func (ZoneMTASettings) Type() MailerType { return MailerZoneMTA }

// SESSettings configures delivery through Amazon SES API credentials.
type SESSettings struct {
	Key        string `json:"key"`
	Secret     string `json:"secret"`
	Region     string `json:"region"`
	Throttling int    `json:"throttling"`
}

// Type implements MailerSettings.
func (SESSettings) Type() MailerType { return MailerSES }

// DecodeMailerSettings parses a settings blob for the given mailer type.
// Unknown types and syntactically invalid blobs fail with a validation
// error. An empty blob decodes to the zero settings for the type.
func DecodeMailerSettings(t MailerType, raw json.RawMessage) (MailerSettings, error) {
	if !supportedMailerTypes[t] {
		return nil, interop.Validationf("unknown mailer type %q", t)
	}
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}

	var settings MailerSettings
	var err error
	switch t {
	case MailerSMTP:
		var s SMTPSettings
		err = json.Unmarshal(raw, &s)
		settings = s
	case MailerZoneMTA:
		var s ZoneMTASettings
		err = json.Unmarshal(raw, &s)
		settings = s
	case MailerSES:
		var s SESSettings
		err = json.Unmarshal(raw, &s)
		settings = s
	}
	if err != nil {
		return nil, interop.Validationf("mailer settings for %q: %v", t, err)
	}
	return settings, nil
}

// DecodeSettings returns the typed settings for the configuration's
// mailer type.
func (c *SendConfiguration) DecodeSettings() (MailerSettings, error) {
	return DecodeMailerSettings(c.MailerType, c.MailerSettings)
}
