package repos

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// duplicateKey reports whether err is a unique-constraint violation. Covers
// the pgx error code on Postgres and the sqlite message used by tests.
func duplicateKey(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// lockable reports whether the dialect supports SELECT ... FOR UPDATE.
// sqlite has a single writer, so skipping the clause there keeps the same
// serialization guarantee in tests.
func lockable(tx *gorm.DB) bool {
	return tx.Dialector.Name() == "postgres"
}
