package logger

import "testing"

func TestRedactEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"bounces@example.com", "bo***@example.com"},
		{"ab@example.com", "***@example.com"},
		{"a@example.com", "***@example.com"},
		{"not-an-email", "***@***"},
		{"two@at@signs", "***@***"},
	}
	for _, tt := range tests {
		if got := RedactEmail(tt.in); got != tt.want {
			t.Errorf("RedactEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRedactValueByKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
		want string
	}{
		{"email key", "from_email", "sender@example.com", "se***@example.com"},
		{"reply key", "reply_to", "replies@example.com", "re***@example.com"},
		{"embedded address", "err", "delivery to ops@example.com failed", "delivery to op***@example.com failed"},
		{"plain value", "id", "42", "42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := redactValue(tt.key, tt.val); got != tt.want {
				t.Errorf("redactValue(%q, %q) = %q, want %q", tt.key, tt.val, got, tt.want)
			}
		})
	}
}
