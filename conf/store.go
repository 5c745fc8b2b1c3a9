package conf

import (
	"database/sql"

	"github.com/tallybill/tally/db"
	"github.com/tallybill/tally/errors"
)

// Store handles persistence of configuration entries. It runs over any
// db.Queryer, so the same store code serves both standalone reads and
// transaction-scoped mutations.
type Store struct {
	q db.Queryer
}

// NewStore creates a conf store over a database handle or transaction.
func NewStore(q db.Queryer) *Store {
	return &Store{q: q}
}

// GetEntry fetches the unique entry for the exact scope triple.
// Returns errors.ErrNotFound if no entry exists at that scope.
func (s *Store) GetEntry(name string, agentnum int, locale string) (*Entry, error) {
	row := s.q.QueryRow(`
		SELECT confnum, name, agentnum, locale, value
		FROM conf
		WHERE name = ? AND agentnum = ? AND locale = ?
	`, name, agentnum, locale)

	var e Entry
	if err := row.Scan(&e.Confnum, &e.Name, &e.Agentnum, &e.Locale, &e.Value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(errors.ErrNotFound, "conf %q agentnum %d locale %q", name, agentnum, locale)
		}
		return nil, errors.Wrapf(err, "failed to get conf entry %q", name)
	}
	return &e, nil
}

// InsertEntry inserts a new entry and fills in its Confnum.
func (s *Store) InsertEntry(e *Entry) error {
	res, err := s.q.Exec(`
		INSERT INTO conf (name, agentnum, locale, value)
		VALUES (?, ?, ?, ?)
	`, e.Name, e.Agentnum, e.Locale, e.Value)
	if err != nil {
		return errors.Wrapf(err, "failed to insert conf entry %q", e.Name)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "failed to read inserted confnum")
	}
	e.Confnum = id
	return nil
}

// UpdateEntry replaces the value of an existing entry by primary key.
func (s *Store) UpdateEntry(e *Entry) error {
	res, err := s.q.Exec(`
		UPDATE conf SET value = ? WHERE confnum = ?
	`, e.Value, e.Confnum)
	if err != nil {
		return errors.Wrapf(err, "failed to update conf entry %q", e.Name)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read rows affected")
	}
	if n == 0 {
		return errors.Wrapf(errors.ErrNotFound, "conf entry %d vanished during update", e.Confnum)
	}
	return nil
}

// DeleteEntry removes the exact-scope entry. Absence is a silent no-op;
// the returned bool reports whether a row was actually deleted.
func (s *Store) DeleteEntry(name string, agentnum int, locale string) (bool, error) {
	res, err := s.q.Exec(`
		DELETE FROM conf WHERE name = ? AND agentnum = ? AND locale = ?
	`, name, agentnum, locale)
	if err != nil {
		return false, errors.Wrapf(err, "failed to delete conf entry %q", name)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to read rows affected")
	}
	return n > 0, nil
}
