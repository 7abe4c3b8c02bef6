package sendconf

import (
	"encoding/json"
	"testing"
)

func baseEntity() *SendConfiguration {
	return &SendConfiguration{
		ID:             3,
		Name:           "Primary SMTP",
		Description:    "main relay",
		FromEmail:      "news@example.com",
		FromName:       "News",
		ReplyTo:        "replies@example.com",
		Subject:        "Weekly digest",
		VERPHostname:   "bounce.example.com",
		MailerType:     MailerSMTP,
		MailerSettings: json.RawMessage(`{"hostname":"mail.example.com","port":465,"encryption":"TLS"}`),
		Namespace:      1,
	}
}

func TestHashIgnoresSettingsKeyOrder(t *testing.T) {
	a := baseEntity()
	b := baseEntity()
	b.MailerSettings = json.RawMessage(`{"port":465,"encryption":"TLS","hostname":"mail.example.com"}`)

	ha, err := Hash(a)
	if err != nil {
		t.Fatalf("Hash(a) error: %v", err)
	}
	hb, err := Hash(b)
	if err != nil {
		t.Fatalf("Hash(b) error: %v", err)
	}
	if ha != hb {
		t.Errorf("hashes differ for permuted settings keys: %s != %s", ha, hb)
	}
}

func TestHashIgnoresIDCreatedPermissions(t *testing.T) {
	a := baseEntity()
	b := baseEntity()
	b.ID = 999
	b.Permissions = []string{"viewPublic", "edit"}
	b.OriginalHash = "stale"

	ha, _ := Hash(a)
	hb, _ := Hash(b)
	if ha != hb {
		t.Error("hash must not cover id, permissions, or originalHash")
	}
}

func TestHashSensitivity(t *testing.T) {
	base, err := Hash(baseEntity())
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*SendConfiguration)
	}{
		{"name", func(c *SendConfiguration) { c.Name = "Secondary SMTP" }},
		{"description", func(c *SendConfiguration) { c.Description = "backup relay" }},
		{"from_email", func(c *SendConfiguration) { c.FromEmail = "other@example.com" }},
		{"from_email_overridable", func(c *SendConfiguration) { c.FromEmailOverridable = true }},
		{"from_name", func(c *SendConfiguration) { c.FromName = "Newsletter" }},
		{"reply_to", func(c *SendConfiguration) { c.ReplyTo = "noreply@example.com" }},
		{"subject", func(c *SendConfiguration) { c.Subject = "Monthly digest" }},
		{"subject_overridable", func(c *SendConfiguration) { c.SubjectOverridable = true }},
		{"verp_hostname", func(c *SendConfiguration) { c.VERPHostname = "verp.example.com" }},
		{"mailer_type", func(c *SendConfiguration) { c.MailerType = MailerZoneMTA }},
		{"namespace", func(c *SendConfiguration) { c.Namespace = 2 }},
		{"mailer_settings value", func(c *SendConfiguration) {
			c.MailerSettings = json.RawMessage(`{"hostname":"mail2.example.com","port":465,"encryption":"TLS"}`)
		}},
		{"mailer_settings extra key", func(c *SendConfiguration) {
			c.MailerSettings = json.RawMessage(`{"hostname":"mail.example.com","port":465,"encryption":"TLS","use_auth":true}`)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := baseEntity()
			tt.mutate(c)
			h, err := Hash(c)
			if err != nil {
				t.Fatalf("Hash error: %v", err)
			}
			if h == base {
				t.Errorf("changing %s did not change the hash", tt.name)
			}
		})
	}
}

func TestHashDeterministic(t *testing.T) {
	h1, _ := Hash(baseEntity())
	h2, _ := Hash(baseEntity())
	if h1 != h2 {
		t.Error("hash is not deterministic")
	}
	if len(h1) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(h1))
	}
}

func TestHashInvalidSettings(t *testing.T) {
	c := baseEntity()
	c.MailerSettings = json.RawMessage(`{not json`)
	if _, err := Hash(c); err == nil {
		t.Error("expected error for malformed mailer_settings")
	}
}
