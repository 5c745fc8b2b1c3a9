package conf

import (
	"database/sql"
	"encoding/base64"
	"strings"

	"go.uber.org/zap"

	"github.com/tallybill/tally/db"
	"github.com/tallybill/tally/errors"
	"github.com/tallybill/tally/logger"
)

// Mutator performs configuration writes. Every mutation runs in its own
// transaction and, on success, updates the shared resolver cache so
// subsequent resolves in the same connection see the fresh value without
// a store round trip. Store failures are returned wrapped, never
// swallowed: silently losing a configuration write is worse than
// aborting.
type Mutator struct {
	conn     *sql.DB
	resolver *Resolver
	log      *zap.SugaredLogger
}

// NewMutator creates a mutator sharing the resolver's cache and locale
// context.
func NewMutator(conn *sql.DB, resolver *Resolver, log *zap.SugaredLogger) *Mutator {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Mutator{conn: conn, resolver: resolver, log: log}
}

// Set stores value at the exact (name, agentnum, bound-locale) scope,
// replacing any existing entry. Embedded NUL bytes are stripped; the
// value is otherwise stored verbatim.
func (m *Mutator) Set(name, value string, agentnum int) error {
	value = strings.ReplaceAll(value, "\x00", "")
	locale := m.resolver.Locale()

	var entry *Entry
	err := db.WithTx(m.conn, func(tx *sql.Tx) error {
		store := NewStore(tx)

		existing, err := store.GetEntry(name, agentnum, locale)
		if err != nil && !errors.IsNotFoundError(err) {
			return err
		}

		if existing != nil {
			existing.Value = []byte(value)
			if err := store.UpdateEntry(existing); err != nil {
				return err
			}
			entry = existing
			return nil
		}

		entry = &Entry{Name: name, Agentnum: agentnum, Locale: locale, Value: []byte(value)}
		return store.InsertEntry(entry)
	})
	if err != nil {
		return errors.Wrapf(err, "failed to set conf %q", name)
	}

	m.resolver.Cache().Put(ScopeKey{Name: name, Agentnum: agentnum, Locale: locale}, entry)
	m.log.Debugw("Set conf entry", logger.FieldConfKey, name, logger.FieldAgentnum, agentnum, "locale", locale)
	return nil
}

// SetBinary base64-encodes data and stores it at the given scope. Read
// back with Resolver.BinaryValue.
func (m *Mutator) SetBinary(name string, data []byte, agentnum int) error {
	return m.Set(name, base64.StdEncoding.EncodeToString(data), agentnum)
}

// Delete removes the exact-scope entry inside a transaction. An absent
// entry is a silent no-op. The cache records the absence either way.
func (m *Mutator) Delete(name string, agentnum int) error {
	locale := m.resolver.Locale()

	err := db.WithTx(m.conn, func(tx *sql.Tx) error {
		_, err := NewStore(tx).DeleteEntry(name, agentnum, locale)
		return err
	})
	if err != nil {
		return errors.Wrapf(err, "failed to delete conf %q", name)
	}

	m.resolver.Cache().Put(ScopeKey{Name: name, Agentnum: agentnum, Locale: locale}, nil)
	m.log.Debugw("Deleted conf entry", logger.FieldConfKey, name, logger.FieldAgentnum, agentnum)
	return nil
}

// Touch turns a boolean key on unless an explicit negative override
// already applies: if the agent scope is shadowed by a global literal
// "0", the agent-scope entry is deleted so the global negative takes
// effect; otherwise the key is set to the empty string at the given
// scope.
func (m *Mutator) Touch(name string, agentnum int) error {
	on, err := m.resolver.Bool(name, agentnum)
	if err != nil {
		return err
	}
	if on {
		return nil
	}

	if agentnum != 0 {
		global, err := NewStore(m.conn).GetEntry(name, 0, m.resolver.Locale())
		if err != nil && !errors.IsNotFoundError(err) {
			return err
		}
		if global != nil && string(global.Value) == "0" {
			return m.Delete(name, agentnum)
		}
	}

	return m.Set(name, "", agentnum)
}

// DeleteBool turns a boolean key off at the given scope. When a truthy
// global entry would still shadow the agent, an explicit "0" override is
// written at agent scope instead of deleting, so Bool resolves false for
// this agent while the global default stands.
func (m *Mutator) DeleteBool(name string, agentnum int) error {
	if agentnum != 0 {
		global, err := NewStore(m.conn).GetEntry(name, 0, m.resolver.Locale())
		if err != nil && !errors.IsNotFoundError(err) {
			return err
		}
		if global != nil && string(global.Value) != "0" {
			return m.Set(name, "0", agentnum)
		}
	}

	return m.Delete(name, agentnum)
}
