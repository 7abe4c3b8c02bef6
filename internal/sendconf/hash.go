package sendconf

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Hash computes the optimistic-concurrency fingerprint of an entity: a
// sha256 digest over the canonical JSON form of its whitelisted
// projection. encoding/json emits map keys in sorted order at every
// nesting level, so two logically equal projections hash identically
// regardless of input key order, including inside mailer_settings.
func Hash(c *SendConfiguration) (string, error) {
	record, err := c.whitelistedMap()
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(record)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
