// Package shares implements the access control gate: capability checks,
// permission listing, and the rebuild of derived permission rows after
// structural changes. All checks run inside the caller's transaction so
// that a permission decision and the operation it guards commit together.
package shares

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/usrflo/mailtrain/internal/auth"
	"github.com/usrflo/mailtrain/internal/config"
	"github.com/usrflo/mailtrain/internal/interop"
)

// Entity type ids used throughout the permission protocol.
const (
	EntitySendConfiguration = "sendConfiguration"
	EntityNamespace         = "namespace"
	EntityList              = "list"
)

// entityTables maps an entity type to its backing tables. The permissions
// table holds the derived (user, operation) rows that checks read; the
// shares table holds the role grants rebuilds expand from.
type entityTables struct {
	entity      string
	shares      string
	permissions string
}

var entityTypes = map[string]entityTables{
	EntitySendConfiguration: {"send_configurations", "shares_send_configuration", "permissions_send_configuration"},
	EntityNamespace:         {"namespaces", "shares_namespace", "permissions_namespace"},
	EntityList:              {"lists", "shares_list", "permissions_list"},
}

// Gate performs capability checks and permission maintenance.
type Gate struct {
	cfg   *config.Config
	cache *Cache
}

// NewGate creates a gate. cache may be nil to disable permission caching.
func NewGate(cfg *config.Config, cache *Cache) *Gate {
	return &Gate{cfg: cfg, cache: cache}
}

func tablesFor(typeID string) (entityTables, error) {
	t, ok := entityTypes[typeID]
	if !ok {
		return entityTables{}, fmt.Errorf("unknown entity type %q", typeID)
	}
	return t, nil
}

// CheckEntityPermission reports whether the caller holds the operation on
// the entity. Admin contexts hold everything.
func (g *Gate) CheckEntityPermission(ctx context.Context, tx *sql.Tx, caller auth.Context, typeID string, entityID int64, operation string) (bool, error) {
	if caller.Admin {
		return true, nil
	}
	t, err := tablesFor(typeID)
	if err != nil {
		return false, err
	}

	var exists bool
	query := fmt.Sprintf(
		`SELECT EXISTS (SELECT 1 FROM %s WHERE entity_id = $1 AND user_id = $2 AND operation = $3)`,
		t.permissions)
	if err := tx.QueryRowContext(ctx, query, entityID, caller.UserID, operation).Scan(&exists); err != nil {
		return false, fmt.Errorf("check %s permission: %w", typeID, err)
	}
	return exists, nil
}

// EnforceEntityPermission fails with a permission error unless the caller
// holds the operation on the entity. An absent entity id fails the same
// way, so callers cannot distinguish missing from forbidden here.
func (g *Gate) EnforceEntityPermission(ctx context.Context, tx *sql.Tx, caller auth.Context, typeID string, entityID int64, operation string) error {
	ok, err := g.CheckEntityPermission(ctx, tx, caller, typeID, entityID, operation)
	if err != nil {
		return err
	}
	if !ok {
		return interop.PermissionDeniedf("%s on %s %d", operation, typeID, entityID)
	}
	return nil
}

// ListPermissions returns the set of operations the caller holds on the
// entity. Results are served from the cache when one is configured.
func (g *Gate) ListPermissions(ctx context.Context, tx *sql.Tx, caller auth.Context, typeID string, entityID int64) ([]string, error) {
	if caller.Admin {
		return g.cfg.RoleOperations("master", typeID), nil
	}
	if g.cache != nil {
		if ops, ok := g.cache.Get(ctx, typeID, entityID, caller.UserID); ok {
			return ops, nil
		}
	}

	t, err := tablesFor(typeID)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(
		`SELECT operation FROM %s WHERE entity_id = $1 AND user_id = $2 ORDER BY operation`,
		t.permissions)
	rows, err := tx.QueryContext(ctx, query, entityID, caller.UserID)
	if err != nil {
		return nil, fmt.Errorf("list %s permissions: %w", typeID, err)
	}
	defer rows.Close()

	ops := []string{}
	for rows.Next() {
		var op string
		if err := rows.Scan(&op); err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if g.cache != nil {
		g.cache.Set(ctx, typeID, entityID, caller.UserID, ops)
	}
	return ops, nil
}

// RebuildPermissions recomputes the derived permission rows for one entity
// from its direct shares and from role grants on its namespace chain. It
// is idempotent and must run as the last step of every write transaction
// that can change effective visibility.
func (g *Gate) RebuildPermissions(ctx context.Context, tx *sql.Tx, typeID string, entityID int64) error {
	t, err := tablesFor(typeID)
	if err != nil {
		return err
	}

	grants := map[int64]string{}

	// Role grants inherited through the namespace chain. For namespaces the
	// chain starts at the entity itself; for other types at the owning
	// namespace.
	nsQuery := fmt.Sprintf(`
		WITH RECURSIVE chain AS (
			SELECT id, namespace FROM namespaces WHERE id = (SELECT namespace FROM %s WHERE id = $1)
			UNION ALL
			SELECT n.id, n.namespace FROM namespaces n JOIN chain c ON n.id = c.namespace
		)
		SELECT s.user_id, s.role FROM shares_namespace s JOIN chain ON s.entity_id = chain.id`,
		t.entity)
	if typeID == EntityNamespace {
		nsQuery = `
		WITH RECURSIVE chain AS (
			SELECT id, namespace FROM namespaces WHERE id = $1
			UNION ALL
			SELECT n.id, n.namespace FROM namespaces n JOIN chain c ON n.id = c.namespace
		)
		SELECT s.user_id, s.role FROM shares_namespace s JOIN chain ON s.entity_id = chain.id`
	}
	if err := collectGrants(ctx, tx, nsQuery, entityID, grants); err != nil {
		return fmt.Errorf("rebuild %s permissions (namespace chain): %w", typeID, err)
	}

	// Direct shares on the entity override inherited ones.
	directQuery := fmt.Sprintf(`SELECT user_id, role FROM %s WHERE entity_id = $1`, t.shares)
	if err := collectGrants(ctx, tx, directQuery, entityID, grants); err != nil {
		return fmt.Errorf("rebuild %s permissions (direct shares): %w", typeID, err)
	}

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE entity_id = $1`, t.permissions), entityID); err != nil {
		return fmt.Errorf("rebuild %s permissions (clear): %w", typeID, err)
	}

	insert := fmt.Sprintf(
		`INSERT INTO %s (entity_id, user_id, operation) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
		t.permissions)
	for userID, role := range grants {
		for _, op := range g.cfg.RoleOperations(role, typeID) {
			if _, err := tx.ExecContext(ctx, insert, entityID, userID, op); err != nil {
				return fmt.Errorf("rebuild %s permissions (insert): %w", typeID, err)
			}
		}
	}
	return nil
}

func collectGrants(ctx context.Context, tx *sql.Tx, query string, entityID int64, grants map[int64]string) error {
	rows, err := tx.QueryContext(ctx, query, entityID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var userID int64
		var role string
		if err := rows.Scan(&userID, &role); err != nil {
			return err
		}
		grants[userID] = role
	}
	return rows.Err()
}

// DenyPermission revokes one operation on an entity for every user. Direct
// shares stay in place, so a later rebuild restores the operation; this is
// the emergency lever, not the durable revocation path.
func (g *Gate) DenyPermission(ctx context.Context, tx *sql.Tx, typeID string, entityID int64, operation string) error {
	t, err := tablesFor(typeID)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE entity_id = $1 AND operation = $2`, t.permissions),
		entityID, operation)
	if err != nil {
		return fmt.Errorf("deny %s on %s %d: %w", operation, typeID, entityID, err)
	}
	return nil
}

// DropEntity removes all shares and derived permissions for an entity.
// Called when the entity itself is deleted.
func (g *Gate) DropEntity(ctx context.Context, tx *sql.Tx, typeID string, entityID int64) error {
	t, err := tablesFor(typeID)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE entity_id = $1`, t.shares), entityID); err != nil {
		return fmt.Errorf("drop %s shares: %w", typeID, err)
	}
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE entity_id = $1`, t.permissions), entityID); err != nil {
		return fmt.Errorf("drop %s permissions: %w", typeID, err)
	}
	return nil
}

// InvalidateCache drops cached permission sets for the entity. Call after
// the surrounding transaction commits, not inside it.
func (g *Gate) InvalidateCache(ctx context.Context, typeID string, entityID int64) {
	if g.cache != nil {
		g.cache.Invalidate(ctx, typeID, entityID)
	}
}
