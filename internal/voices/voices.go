package voices

import "strings"

// Table maps user-facing voice aliases to provider voice identifiers.
// Aliases are matched case-insensitively; the table itself is keyed by
// lowercase alias and treated as read-only after construction.
type Table map[string]string

func NewTable(m map[string]string) Table {
	t := make(Table, len(m))
	for alias, id := range m {
		t[strings.ToLower(alias)] = id
	}
	return t
}

// Known reports whether alias names a configured voice.
func (t Table) Known(alias string) bool {
	_, ok := t[strings.ToLower(alias)]
	return ok
}

// Resolve returns the provider voice identifier for alias.
func (t Table) Resolve(alias string) (string, bool) {
	id, ok := t[strings.ToLower(alias)]
	return id, ok
}
