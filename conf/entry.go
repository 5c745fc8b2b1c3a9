// Package conf implements scoped configuration resolution for tally.
//
// A configuration value can be specialized along two dimensions: agent
// (agentnum 0 = global) and locale ("" = locale-independent). At most one
// entry exists per (name, agentnum, locale) triple. The Resolver answers
// "what is the effective value of X" by ordered fallback across scopes,
// memoizing lookups per logical connection; the Mutator writes through to
// the store and keeps the cache coherent.
package conf

import "fmt"

// Entry is one stored configuration row.
type Entry struct {
	Confnum  int64
	Name     string
	Agentnum int
	Locale   string
	Value    []byte
}

// ScopeKey is the composite lookup key for one fully-qualified scope.
// It is an ephemeral value object; equality is structural.
type ScopeKey struct {
	Name     string
	Agentnum int
	Locale   string
}

// Key serializes the scope to a cache key. The unit separator cannot
// occur in configuration key names.
func (k ScopeKey) Key() string {
	return fmt.Sprintf("%s\x1f%d\x1f%s", k.Name, k.Agentnum, k.Locale)
}

// Global reports whether the key addresses the global, locale-independent scope.
func (k ScopeKey) Global() bool {
	return k.Agentnum == 0 && k.Locale == ""
}
