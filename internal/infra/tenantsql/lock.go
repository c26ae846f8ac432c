package tenantsql

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// LockID deriva un id estable de pg_advisory_lock para (scope, key).
func LockID(scope, key string) int64 {
	h := sha256.Sum256([]byte(scope + ":" + key))
	return int64(binary.BigEndian.Uint64(h[:8]))
}

// AdvisoryXactLock toma un lock transaccional; se libera solo con el
// commit/rollback de tx.
func AdvisoryXactLock(ctx context.Context, tx pgx.Tx, id int64) error {
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", id); err != nil {
		return fmt.Errorf("advisory xact lock %d: %w", id, err)
	}
	return nil
}
