// Package distlock serializes cross-process critical sections on a
// postgres advisory lock. Session scoped: the lock drops with the
// connection, so a crashed holder never wedges the next one.
package distlock

import (
	"context"
	"database/sql"
	"hash/fnv"
)

// AdvisoryLock is a named postgres advisory lock. The lock id is derived
// deterministically from the name, so every process using the same name
// contends on the same lock.
type AdvisoryLock struct {
	db     *sql.DB
	lockID int64
}

// New creates an advisory lock for the given name.
func New(db *sql.DB, name string) *AdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(name))
	return &AdvisoryLock{db: db, lockID: int64(h.Sum64())}
}

// TryAcquire attempts to take the lock without blocking. Returns false
// when another session holds it.
func (l *AdvisoryLock) TryAcquire(ctx context.Context) (bool, error) {
	var acquired bool
	err := l.db.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, l.lockID).Scan(&acquired)
	return acquired, err
}

// Release gives the lock back. Safe to call when the session no longer
// holds it.
func (l *AdvisoryLock) Release(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, `SELECT pg_advisory_unlock($1)`, l.lockID)
	return err
}
