package sendconf

import "testing"

func TestFilterKeysDropsUnknown(t *testing.T) {
	record := map[string]interface{}{
		"name":            "a",
		"namespace":       int64(1),
		"id":              int64(7),
		"created":         "2026-01-01",
		"permissions":     []string{"edit"},
		"injected_column": "DROP TABLE users",
	}

	out := filterKeys(record, allowedKeys)
	if len(out) != 2 {
		t.Fatalf("expected 2 keys, got %d: %v", len(out), out)
	}
	if _, ok := out["id"]; ok {
		t.Error("id must never pass the whitelist")
	}
	if _, ok := out["injected_column"]; ok {
		t.Error("unknown keys must never pass the whitelist")
	}
}

func TestFilterKeysOmitsAbsent(t *testing.T) {
	out := filterKeys(map[string]interface{}{"name": "a"}, allowedKeys)
	if len(out) != 1 {
		t.Fatalf("absent keys must be omitted, not defaulted: %v", out)
	}
}

func TestWhitelistedMapCoversAllowedKeys(t *testing.T) {
	m, err := baseEntity().whitelistedMap()
	if err != nil {
		t.Fatalf("whitelistedMap error: %v", err)
	}
	if len(m) != len(allowedKeys) {
		t.Fatalf("projection has %d keys, whitelist has %d", len(m), len(allowedKeys))
	}
	for _, key := range allowedKeys {
		if _, ok := m[key]; !ok {
			t.Errorf("projection missing whitelisted key %q", key)
		}
	}
}
