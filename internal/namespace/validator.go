// Package namespace validates namespace references and namespace moves.
// Namespaces form a tree; every entity belongs to exactly one namespace,
// and moving an entity between namespaces is a privileged operation on
// both ends of the move.
package namespace

import (
	"context"
	"database/sql"

	"github.com/usrflo/mailtrain/internal/auth"
	"github.com/usrflo/mailtrain/internal/interop"
	"github.com/usrflo/mailtrain/internal/shares"
)

// ValidateEntity fails with a validation error unless the referenced
// namespace exists. Runs in the caller's transaction so the reference
// cannot dangle at commit time.
func ValidateEntity(ctx context.Context, tx *sql.Tx, namespaceID int64) error {
	var exists bool
	err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM namespaces WHERE id = $1)`, namespaceID).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return interop.Validationf("namespace %d does not exist", namespaceID)
	}
	return nil
}

// ValidateMove checks the legality of a namespace change: the caller must
// hold createOperation on the destination namespace and deleteOperation on
// the source. A no-op move (same namespace) always passes.
func ValidateMove(ctx context.Context, tx *sql.Tx, gate *shares.Gate, caller auth.Context, newNamespace, oldNamespace int64, createOperation, deleteOperation string) error {
	if newNamespace == oldNamespace {
		return nil
	}
	if err := gate.EnforceEntityPermission(ctx, tx, caller, shares.EntityNamespace, newNamespace, createOperation); err != nil {
		return err
	}
	return gate.EnforceEntityPermission(ctx, tx, caller, shares.EntityNamespace, oldNamespace, deleteOperation)
}
