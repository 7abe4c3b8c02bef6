package sendconf

import (
	"context"
	"database/sql"
	"time"

	"github.com/usrflo/mailtrain/internal/auth"
	"github.com/usrflo/mailtrain/internal/interop"
	"github.com/usrflo/mailtrain/internal/namespace"
	"github.com/usrflo/mailtrain/internal/pkg/logger"
	"github.com/usrflo/mailtrain/internal/qb"
	"github.com/usrflo/mailtrain/internal/shares"
)

// Operations checked against a caller's permission set.
const (
	OperationViewPublic              = "viewPublic"
	OperationViewPrivate             = "viewPrivate"
	OperationEdit                    = "edit"
	OperationDelete                  = "delete"
	OperationCreateSendConfiguration = "createSendConfiguration"
)

// Store provides transactional access to send configurations. Every write
// runs inside one database transaction that serializes the permission
// check, the load/validate step, the mutation, and the permission rebuild.
type Store struct {
	db       *sql.DB
	gate     *shares.Gate
	systemID int64
}

// NewStore creates a send-configuration store. systemID is the well-known
// id of the undeletable system default configuration.
func NewStore(db *sql.DB, gate *shares.Gate, systemID int64) *Store {
	return &Store{db: db, gate: gate, systemID: systemID}
}

// SystemSendConfigurationID returns the well-known system default id.
func (s *Store) SystemSendConfigurationID() int64 { return s.systemID }

// ListEntry is one row of a paged listing.
type ListEntry struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	MailerType    string    `json:"mailer_type"`
	Created       time.Time `json:"created"`
	NamespaceName string    `json:"namespace_name"`
}

// Page is a paged listing result.
type Page struct {
	Total   int         `json:"total"`
	Entries []ListEntry `json:"entries"`
}

// ListPaged returns a page of configurations visible to the caller under
// viewPublic, joined with the owning namespace name.
func (s *Store) ListPaged(ctx context.Context, caller auth.Context, params qb.Params) (*Page, error) {
	b := qb.NewBuilder(
		"send_configurations s JOIN namespaces ns ON ns.id = s.namespace",
		[]string{"s.id", "s.name", "s.description", "s.mailer_type", "s.created", "ns.name"},
		map[string]string{
			"id":          "s.id",
			"name":        "s.name",
			"description": "s.description",
			"mailer_type": "s.mailer_type",
			"created":     "s.created",
			"namespace":   "ns.name",
		},
		"s.id",
	)
	if !caller.Admin {
		b.PermissionFilter("s.id", "permissions_send_configuration", caller.UserID, OperationViewPublic)
	}

	countQuery, countArgs := b.CountQuery()
	var total int
	if err := s.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, err
	}

	query, args, err := b.SelectQuery(params)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	page := &Page{Total: total, Entries: []ListEntry{}}
	for rows.Next() {
		var e ListEntry
		if err := rows.Scan(&e.ID, &e.Name, &e.Description, &e.MailerType, &e.Created, &e.NamespaceName); err != nil {
			return nil, err
		}
		page.Entries = append(page.Entries, e)
	}
	return page, rows.Err()
}

// GetByID loads one configuration. A private read (withPrivateData)
// requires viewPrivate and returns the full record including the settings
// blob and the consistency-check hash; a public read requires only
// viewPublic and returns the identity/branding projection. When
// withPermissions is set, the caller's effective permission set is
// attached.
func (s *Store) GetByID(ctx context.Context, caller auth.Context, id int64, withPermissions, withPrivateData bool) (*SendConfiguration, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	operation := OperationViewPublic
	if withPrivateData {
		operation = OperationViewPrivate
	}
	if err := s.gate.EnforceEntityPermission(ctx, tx, caller, shares.EntitySendConfiguration, id, operation); err != nil {
		return nil, err
	}

	var entity *SendConfiguration
	if withPrivateData {
		entity, err = loadFull(ctx, tx, id, false)
		if err != nil {
			return nil, err
		}
		hash, err := Hash(entity)
		if err != nil {
			return nil, err
		}
		entity.OriginalHash = hash
	} else {
		entity, err = loadPublic(ctx, tx, id)
		if err != nil {
			return nil, err
		}
	}

	if withPermissions {
		perms, err := s.gate.ListPermissions(ctx, tx, caller, shares.EntitySendConfiguration, id)
		if err != nil {
			return nil, err
		}
		entity.Permissions = perms
	}

	return entity, tx.Commit()
}

// Create validates and inserts a new configuration and materializes its
// permissions. Requires createSendConfiguration on the target namespace.
// Returns the generated id.
func (s *Store) Create(ctx context.Context, caller auth.Context, entity *SendConfiguration) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if err := s.gate.EnforceEntityPermission(ctx, tx, caller, shares.EntityNamespace, entity.Namespace, OperationCreateSendConfiguration); err != nil {
		return 0, err
	}
	if err := s.validateAndPreprocess(ctx, tx, entity); err != nil {
		return 0, err
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO send_configurations (name, description, from_email, from_email_overridable,
			from_name, from_name_overridable, reply_to, reply_to_overridable,
			subject, subject_overridable, verp_hostname, mailer_type, mailer_settings, namespace)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created`,
		entity.Name, entity.Description, entity.FromEmail, entity.FromEmailOverridable,
		entity.FromName, entity.FromNameOverridable, entity.ReplyTo, entity.ReplyToOverridable,
		entity.Subject, entity.SubjectOverridable, entity.VERPHostname,
		string(entity.MailerType), string(entity.MailerSettings), entity.Namespace,
	).Scan(&entity.ID, &entity.Created)
	if err != nil {
		return 0, err
	}

	if err := s.gate.RebuildPermissions(ctx, tx, shares.EntitySendConfiguration, entity.ID); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}

	logger.Info("send configuration created", "id", entity.ID, "namespace", entity.Namespace, "mailer_type", entity.MailerType)
	return entity.ID, nil
}

// UpdateWithConsistencyCheck overwrites the whitelisted fields of an
// existing configuration, gated by the optimistic-concurrency hash: the
// caller's OriginalHash must match the fingerprint of the stored row or
// the update fails with a conflict before any mutation. Namespace moves
// additionally require createSendConfiguration at the destination and
// delete at the source.
func (s *Store) UpdateWithConsistencyCheck(ctx context.Context, caller auth.Context, entity *SendConfiguration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.gate.EnforceEntityPermission(ctx, tx, caller, shares.EntitySendConfiguration, entity.ID, OperationEdit); err != nil {
		return err
	}

	existing, err := loadFull(ctx, tx, entity.ID, true)
	if err != nil {
		return err
	}

	existingHash, err := Hash(existing)
	if err != nil {
		return err
	}
	if existingHash != entity.OriginalHash {
		return interop.ErrChanged
	}

	if err := s.validateAndPreprocess(ctx, tx, entity); err != nil {
		return err
	}
	if err := namespace.ValidateMove(ctx, tx, s.gate, caller, entity.Namespace, existing.Namespace,
		OperationCreateSendConfiguration, OperationDelete); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE send_configurations SET
			name = $1, description = $2, from_email = $3, from_email_overridable = $4,
			from_name = $5, from_name_overridable = $6, reply_to = $7, reply_to_overridable = $8,
			subject = $9, subject_overridable = $10, verp_hostname = $11,
			mailer_type = $12, mailer_settings = $13, namespace = $14
		WHERE id = $15`,
		entity.Name, entity.Description, entity.FromEmail, entity.FromEmailOverridable,
		entity.FromName, entity.FromNameOverridable, entity.ReplyTo, entity.ReplyToOverridable,
		entity.Subject, entity.SubjectOverridable, entity.VERPHostname,
		string(entity.MailerType), string(entity.MailerSettings), entity.Namespace, entity.ID)
	if err != nil {
		return err
	}

	if err := s.gate.RebuildPermissions(ctx, tx, shares.EntitySendConfiguration, entity.ID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	s.gate.InvalidateCache(ctx, shares.EntitySendConfiguration, entity.ID)
	logger.Info("send configuration updated", "id", entity.ID, "namespace", entity.Namespace)
	return nil
}

// Remove deletes a configuration. The system default id is rejected
// before any transaction is opened. Back-references from lists are nulled
// inside the same transaction, so no list ever points at a missing
// configuration.
func (s *Store) Remove(ctx context.Context, caller auth.Context, id int64) error {
	if id == s.systemID {
		return interop.PermissionDeniedf("cannot delete the system send configuration")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.gate.EnforceEntityPermission(ctx, tx, caller, shares.EntitySendConfiguration, id, OperationDelete); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE lists SET send_configuration = NULL WHERE send_configuration = $1`, id); err != nil {
		return err
	}
	if err := s.gate.DropEntity(ctx, tx, shares.EntitySendConfiguration, id); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM send_configurations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return interop.NotFoundf("send configuration %d", id)
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	s.gate.InvalidateCache(ctx, shares.EntitySendConfiguration, id)
	logger.Info("send configuration removed", "id", id)
	return nil
}

// GetSystemSendConfiguration resolves the well-known system default
// record through the administrative bypass at public privacy level. For
// internal bootstrap lookups only; mailer_settings is never exposed here.
func (s *Store) GetSystemSendConfiguration(ctx context.Context) (*SendConfiguration, error) {
	return s.GetByID(ctx, auth.AdminContext(), s.systemID, false, false)
}

// loadFull reads the complete row. forUpdate takes a row lock for the
// duration of the transaction, making the read-modify-write of an update
// atomic against concurrent writers of the same id.
func loadFull(ctx context.Context, tx *sql.Tx, id int64, forUpdate bool) (*SendConfiguration, error) {
	query := `
		SELECT id, name, description, from_email, from_email_overridable,
			from_name, from_name_overridable, reply_to, reply_to_overridable,
			subject, subject_overridable, verp_hostname, mailer_type, mailer_settings,
			namespace, created
		FROM send_configurations WHERE id = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}

	c := &SendConfiguration{}
	var mailerType, settings string
	err := tx.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.Name, &c.Description, &c.FromEmail, &c.FromEmailOverridable,
		&c.FromName, &c.FromNameOverridable, &c.ReplyTo, &c.ReplyToOverridable,
		&c.Subject, &c.SubjectOverridable, &c.VERPHostname, &mailerType, &settings,
		&c.Namespace, &c.Created)
	if err == sql.ErrNoRows {
		return nil, interop.NotFoundf("send configuration %d", id)
	}
	if err != nil {
		return nil, err
	}
	c.MailerType = MailerType(mailerType)
	c.MailerSettings = []byte(settings)
	return c, nil
}

// loadPublic reads the reduced identity/branding projection.
func loadPublic(ctx context.Context, tx *sql.Tx, id int64) (*SendConfiguration, error) {
	c := &SendConfiguration{}
	err := tx.QueryRowContext(ctx, `
		SELECT id, name, description, from_email, from_email_overridable,
			from_name, from_name_overridable, reply_to, reply_to_overridable,
			subject, subject_overridable
		FROM send_configurations WHERE id = $1`, id).Scan(
		&c.ID, &c.Name, &c.Description, &c.FromEmail, &c.FromEmailOverridable,
		&c.FromName, &c.FromNameOverridable, &c.ReplyTo, &c.ReplyToOverridable,
		&c.Subject, &c.SubjectOverridable)
	if err == sql.ErrNoRows {
		return nil, interop.NotFoundf("send configuration %d", id)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}
