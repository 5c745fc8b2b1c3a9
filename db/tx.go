package db

import (
	"database/sql"

	"github.com/tallybill/tally/errors"
)

// Queryer is the subset of database operations shared by *sql.DB and
// *sql.Tx. Store methods take a Queryer so the same code runs standalone
// or inside a caller-controlled transaction.
type Queryer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// WithTx runs fn inside a transaction. The transaction commits if fn
// returns nil and rolls back otherwise; a rollback failure is attached
// to the original error rather than replacing it.
func WithTx(db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.WithDetailf(err, "rollback also failed: %v", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit transaction")
	}
	return nil
}
