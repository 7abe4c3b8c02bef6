package shares

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/usrflo/mailtrain/internal/auth"
	"github.com/usrflo/mailtrain/internal/config"
	"github.com/usrflo/mailtrain/internal/interop"
)

func testConfig() *config.Config {
	return &config.Config{Roles: map[string]config.RoleConfig{
		"master": {
			SendConfiguration: []string{"delete", "edit", "viewPrivate", "viewPublic"},
			Namespace:         []string{"createSendConfiguration", "delete", "view"},
		},
		"viewer": {
			SendConfiguration: []string{"viewPublic"},
			Namespace:         []string{"view"},
		},
	}}
}

func setupGate(t *testing.T) (*Gate, *sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewGate(testConfig(), nil), db, mock
}

func beginTx(t *testing.T, db *sql.DB, mock sqlmock.Sqlmock) *sql.Tx {
	t.Helper()
	mock.ExpectBegin()
	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	return tx
}

func TestEnforceEntityPermission(t *testing.T) {
	gate, db, mock := setupGate(t)
	caller := auth.Context{UserID: 7, Role: "viewer"}
	tx := beginTx(t, db, mock)

	mock.ExpectQuery(`FROM permissions_send_configuration WHERE entity_id`).
		WithArgs(int64(3), int64(7), "edit").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	if err := gate.EnforceEntityPermission(context.Background(), tx, caller, EntitySendConfiguration, 3, "edit"); err != nil {
		t.Fatalf("enforce error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestEnforceEntityPermissionDenied(t *testing.T) {
	gate, db, mock := setupGate(t)
	caller := auth.Context{UserID: 7, Role: "viewer"}
	tx := beginTx(t, db, mock)

	mock.ExpectQuery(`FROM permissions_send_configuration WHERE entity_id`).
		WithArgs(int64(3), int64(7), "edit").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err := gate.EnforceEntityPermission(context.Background(), tx, caller, EntitySendConfiguration, 3, "edit")
	if !errors.Is(err, interop.ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
}

func TestEnforceAdminBypass(t *testing.T) {
	gate, db, mock := setupGate(t)
	tx := beginTx(t, db, mock)

	// No query expectations: admin must not touch the permissions table.
	if err := gate.EnforceEntityPermission(context.Background(), tx, auth.AdminContext(), EntitySendConfiguration, 3, "delete"); err != nil {
		t.Fatalf("admin enforce error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestEnforceUnknownEntityType(t *testing.T) {
	gate, db, mock := setupGate(t)
	tx := beginTx(t, db, mock)

	err := gate.EnforceEntityPermission(context.Background(), tx, auth.Context{UserID: 7}, "campaign", 3, "edit")
	if err == nil {
		t.Fatal("expected error for unknown entity type")
	}
}

func TestListPermissions(t *testing.T) {
	gate, db, mock := setupGate(t)
	caller := auth.Context{UserID: 7, Role: "viewer"}
	tx := beginTx(t, db, mock)

	mock.ExpectQuery(`SELECT operation FROM permissions_send_configuration`).
		WithArgs(int64(3), int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"operation"}).AddRow("viewPublic").AddRow("viewPrivate"))

	ops, err := gate.ListPermissions(context.Background(), tx, caller, EntitySendConfiguration, 3)
	if err != nil {
		t.Fatalf("list error: %v", err)
	}
	if len(ops) != 2 || ops[0] != "viewPublic" {
		t.Errorf("ops = %v", ops)
	}
}

func TestListPermissionsAdmin(t *testing.T) {
	gate, db, mock := setupGate(t)
	tx := beginTx(t, db, mock)

	ops, err := gate.ListPermissions(context.Background(), tx, auth.AdminContext(), EntitySendConfiguration, 3)
	if err != nil {
		t.Fatalf("list error: %v", err)
	}
	if len(ops) != 4 {
		t.Errorf("admin ops = %v, want full master set", ops)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestRebuildPermissions(t *testing.T) {
	gate, db, mock := setupGate(t)
	tx := beginTx(t, db, mock)

	// User 2 inherits viewer through the namespace chain; user 7 has a
	// direct master share that overrides any inherited role.
	mock.ExpectQuery(`WITH RECURSIVE chain`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "role"}).
			AddRow(int64(2), "viewer").
			AddRow(int64(7), "viewer"))
	mock.ExpectQuery(`FROM shares_send_configuration WHERE entity_id`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "role"}).AddRow(int64(7), "master"))
	mock.ExpectExec(`DELETE FROM permissions_send_configuration WHERE entity_id`).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	// 1 viewer op for user 2 + 4 master ops for user 7, in either user order.
	for i := 0; i < 5; i++ {
		mock.ExpectExec(`INSERT INTO permissions_send_configuration`).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}

	if err := gate.RebuildPermissions(context.Background(), tx, EntitySendConfiguration, 3); err != nil {
		t.Fatalf("rebuild error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestDenyPermission(t *testing.T) {
	gate, db, mock := setupGate(t)
	tx := beginTx(t, db, mock)

	mock.ExpectExec(`DELETE FROM permissions_send_configuration WHERE entity_id .+ AND operation`).
		WithArgs(int64(3), "edit").
		WillReturnResult(sqlmock.NewResult(0, 2))

	if err := gate.DenyPermission(context.Background(), tx, EntitySendConfiguration, 3, "edit"); err != nil {
		t.Fatalf("deny error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestDropEntity(t *testing.T) {
	gate, db, mock := setupGate(t)
	tx := beginTx(t, db, mock)

	mock.ExpectExec(`DELETE FROM shares_send_configuration WHERE entity_id`).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM permissions_send_configuration WHERE entity_id`).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 4))

	if err := gate.DropEntity(context.Background(), tx, EntitySendConfiguration, 3); err != nil {
		t.Fatalf("drop error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestRebuildIsIdempotentPerInvocation(t *testing.T) {
	gate, db, mock := setupGate(t)
	tx := beginTx(t, db, mock)

	for i := 0; i < 2; i++ {
		mock.ExpectQuery(`WITH RECURSIVE chain`).
			WithArgs(int64(3)).
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "role"}).AddRow(int64(2), "viewer"))
		mock.ExpectQuery(`FROM shares_send_configuration WHERE entity_id`).
			WithArgs(int64(3)).
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "role"}))
		mock.ExpectExec(`DELETE FROM permissions_send_configuration WHERE entity_id`).
			WithArgs(int64(3)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO permissions_send_configuration`).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}

	for i := 0; i < 2; i++ {
		if err := gate.RebuildPermissions(context.Background(), tx, EntitySendConfiguration, 3); err != nil {
			t.Fatalf("rebuild %d error: %v", i, err)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
