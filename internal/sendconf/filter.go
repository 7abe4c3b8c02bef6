package sendconf

import (
	"encoding/json"

	"github.com/usrflo/mailtrain/internal/interop"
)

// allowedKeys is the fixed whitelist of attributes that may be hashed or
// written. It deliberately excludes id, created, and permissions.
var allowedKeys = []string{
	"name",
	"description",
	"from_email",
	"from_email_overridable",
	"from_name",
	"from_name_overridable",
	"reply_to",
	"reply_to_overridable",
	"subject",
	"subject_overridable",
	"verp_hostname",
	"mailer_type",
	"mailer_settings",
	"namespace",
}

// filterKeys returns a copy of record containing only the allowed keys
// that are present. Absent keys are omitted, not defaulted, so an
// unapproved or unknown field can never reach storage or the hash.
func filterKeys(record map[string]interface{}, allowed []string) map[string]interface{} {
	out := make(map[string]interface{}, len(allowed))
	for _, key := range allowed {
		if v, ok := record[key]; ok {
			out[key] = v
		}
	}
	return out
}

// whitelistedMap projects the entity onto the allowed attribute set.
// mailer_settings is expanded from its serialized form into a structured
// value so that downstream canonical serialization is independent of the
// original key order.
func (c *SendConfiguration) whitelistedMap() (map[string]interface{}, error) {
	var settings interface{}
	if len(c.MailerSettings) > 0 {
		if err := json.Unmarshal(c.MailerSettings, &settings); err != nil {
			return nil, interop.Validationf("mailer settings for %q: %v", c.MailerType, err)
		}
	} else {
		settings = map[string]interface{}{}
	}

	record := map[string]interface{}{
		"name":                   c.Name,
		"description":            c.Description,
		"from_email":             c.FromEmail,
		"from_email_overridable": c.FromEmailOverridable,
		"from_name":              c.FromName,
		"from_name_overridable":  c.FromNameOverridable,
		"reply_to":               c.ReplyTo,
		"reply_to_overridable":   c.ReplyToOverridable,
		"subject":                c.Subject,
		"subject_overridable":    c.SubjectOverridable,
		"verp_hostname":          c.VERPHostname,
		"mailer_type":            string(c.MailerType),
		"mailer_settings":        settings,
		"namespace":              c.Namespace,
	}
	return filterKeys(record, allowedKeys), nil
}
