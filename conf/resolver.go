package conf

import (
	"database/sql"
	"encoding/base64"
	"strings"

	"go.uber.org/zap"

	"github.com/tallybill/tally/errors"
)

// Resolver answers effective-value lookups with ordered fallback across
// scopes: agent-specific before global (outer), locale-specific before
// locale-independent (inner). Results, including absences, are memoized
// in a per-connection cache.
//
// A Resolver is bound to one logical connection and is not safe for
// concurrent use.
type Resolver struct {
	store *Store
	cache *Cache

	// locale is the bound locale context; "" means no locale binding.
	locale string
	// localeOnly disables the fallback from the bound locale to the
	// locale-independent scope.
	localeOnly bool

	// resolving guards against re-entrant resolution: while a lookup is
	// in flight, nested lookups bypass the cache entirely so resolver
	// internals that consult configuration can never recurse through
	// half-populated state.
	resolving bool

	log *zap.SugaredLogger
}

// NewResolver creates a resolver over the given database handle, bound to
// an optional locale context. Pass a nil logger for silent operation.
func NewResolver(conn *sql.DB, locale string, log *zap.SugaredLogger) *Resolver {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Resolver{
		store:  NewStore(conn),
		cache:  NewCache(),
		locale: locale,
		log:    log,
	}
}

// SetLocaleOnly disables locale fallback: only the bound locale scope is
// consulted (or the locale-independent scope if no locale is bound).
func (r *Resolver) SetLocaleOnly(v bool) {
	r.localeOnly = v
}

// Locale returns the bound locale context.
func (r *Resolver) Locale() string {
	return r.locale
}

// Cache exposes the resolver's cache for collaborators that need to
// toggle pass-through mode or write through fresh values.
func (r *Resolver) Cache() *Cache {
	return r.cache
}

// BindConnection marks the start of a new logical connection. The cache
// is dropped so the connection reads a fresh snapshot.
func (r *Resolver) BindConnection() {
	r.cache.Clear()
}

func (r *Resolver) agentCandidates(agentnum int, agentOnly bool) []int {
	if agentnum == 0 {
		return []int{0}
	}
	if agentOnly {
		return []int{agentnum}
	}
	return []int{agentnum, 0}
}

func (r *Resolver) localeCandidates() []string {
	if r.locale == "" {
		return []string{""}
	}
	if r.localeOnly {
		return []string{r.locale}
	}
	return []string{r.locale, ""}
}

// lookup fetches one exact scope, going through the cache only when
// useCache is set. Absence is (nil, nil).
func (r *Resolver) lookup(key ScopeKey, useCache bool) (*Entry, error) {
	if useCache {
		if e, ok := r.cache.Get(key); ok {
			return e, nil
		}
	}

	e, err := r.store.GetEntry(key.Name, key.Agentnum, key.Locale)
	if err != nil {
		if !errors.IsNotFoundError(err) {
			return nil, err
		}
		e = nil
	}

	if useCache {
		r.cache.Put(key, e)
	}
	return e, nil
}

// Resolve returns the first entry found along the fallback chain, or
// (nil, nil) if no candidate scope holds one. Missing keys are a valid,
// silent outcome; only store failures surface as errors.
func (r *Resolver) Resolve(name string, agentnum int, agentOnly bool) (*Entry, error) {
	nested := r.resolving
	r.resolving = true
	defer func() { r.resolving = nested }()

	for _, a := range r.agentCandidates(agentnum, agentOnly) {
		for _, l := range r.localeCandidates() {
			e, err := r.lookup(ScopeKey{Name: name, Agentnum: a, Locale: l}, !nested)
			if err != nil {
				return nil, err
			}
			if e != nil {
				return e, nil
			}
		}
	}
	return nil, nil
}

// Exists reports whether any candidate scope holds an entry for name.
func (r *Resolver) Exists(name string, agentnum int) (bool, error) {
	e, err := r.Resolve(name, agentnum, false)
	return e != nil, err
}

// Value returns the first line of the resolved value, or "" if the key
// is absent.
func (r *Resolver) Value(name string, agentnum int) (string, error) {
	e, err := r.Resolve(name, agentnum, false)
	if err != nil || e == nil {
		return "", err
	}
	s := string(e.Value)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s, nil
}

// Values returns all lines of the resolved value. One trailing newline is
// trimmed before splitting; interior and remaining empty lines survive.
// Absent keys yield nil.
func (r *Resolver) Values(name string, agentnum int) ([]string, error) {
	e, err := r.Resolve(name, agentnum, false)
	if err != nil || e == nil {
		return nil, err
	}
	s := strings.TrimSuffix(string(e.Value), "\n")
	return strings.Split(s, "\n"), nil
}

// Bool resolves name with boolean semantics. A literal "0" stored at an
// explicit agent- or locale-specific scope is an override to false and
// stops the fallback search. Any other entry found is true; no entry
// found is false.
func (r *Resolver) Bool(name string, agentnum int) (bool, error) {
	nested := r.resolving
	r.resolving = true
	defer func() { r.resolving = nested }()

	for _, a := range r.agentCandidates(agentnum, false) {
		for _, l := range r.localeCandidates() {
			e, err := r.lookup(ScopeKey{Name: name, Agentnum: a, Locale: l}, !nested)
			if err != nil {
				return false, err
			}
			if e == nil {
				continue
			}
			if (a != 0 || l != "") && string(e.Value) == "0" {
				return false, nil
			}
			return true, nil
		}
	}
	return false, nil
}

// BinaryValue returns the base64-decoded resolved value. Absent keys and
// empty values yield nil without error.
func (r *Resolver) BinaryValue(name string, agentnum int) ([]byte, error) {
	e, err := r.Resolve(name, agentnum, false)
	if err != nil || e == nil || len(e.Value) == 0 {
		return nil, err
	}

	decoded, err := base64.StdEncoding.DecodeString(string(e.Value))
	if err != nil {
		return nil, errors.Wrapf(err, "conf %q is not valid base64", name)
	}
	return decoded, nil
}

// ConfigOrBase resolves "name_suffix" if any scope defines it, falling
// back to the shared base key otherwise. The suffix check is outer: a
// suffix-specific key at any scope beats the base key at every scope.
func (r *Resolver) ConfigOrBase(name, suffix string, agentnum int) (string, error) {
	full := name + "_" + suffix
	exists, err := r.Exists(full, agentnum)
	if err != nil {
		return "", err
	}
	if exists {
		return r.Value(full, agentnum)
	}
	return r.Value(name, agentnum)
}
