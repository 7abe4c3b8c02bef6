package sendconf

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/usrflo/mailtrain/internal/namespace"
)

// validateAndPreprocess checks structural correctness of the in-flight
// entity: the namespace must exist and the mailer type must be supported.
// As a side effect it replaces MailerSettings with the canonical
// serialized form of the typed settings, which is what gets persisted and
// hashed. Call exactly once per write, after permission checks and before
// any mutating statement.
func (s *Store) validateAndPreprocess(ctx context.Context, tx *sql.Tx, entity *SendConfiguration) error {
	if err := namespace.ValidateEntity(ctx, tx, entity.Namespace); err != nil {
		return err
	}

	settings, err := DecodeMailerSettings(entity.MailerType, entity.MailerSettings)
	if err != nil {
		return err
	}
	canonical, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("serialize mailer settings: %w", err)
	}
	entity.MailerSettings = canonical
	return nil
}
