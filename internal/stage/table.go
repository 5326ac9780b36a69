package stage

import (
	"github.com/xia2/xia2-go/internal/errors"
)

// Entry is one row of a candidate table.
type Entry struct {
	ID  ID
	New Constructor
	// Implies are preferences for other stages that choosing this candidate brings along when they are unset.
	Implies Preferences
}

// Table is the priority-ordered candidate list of one stage kind. It is immutable once built and safe to share.
type Table struct {
	kind    Kind
	entries []Entry
}

// NewTable validates entries, which must all be of kind and distinct, and returns the table.
func NewTable(kind Kind, entries ...Entry) (*Table, error) {
	seen := make(map[ID]bool, len(entries))

	for _, entry := range entries {
		if entry.ID.Kind() != kind {
			return nil, errors.Errorf("candidate %s does not implement %s", entry.ID, kind)
		}

		if entry.New == nil {
			return nil, errors.Errorf("candidate %s has no constructor", entry.ID)
		}

		if seen[entry.ID] {
			return nil, errors.Errorf("candidate %s listed twice", entry.ID)
		}

		seen[entry.ID] = true
	}

	return &Table{kind: kind, entries: append([]Entry(nil), entries...)}, nil
}

// Kind returns the stage kind of the table.
func (table *Table) Kind() Kind {
	return table.kind
}

// Entries returns a copy of the entries in priority order.
func (table *Table) Entries() []Entry {
	return append([]Entry(nil), table.entries...)
}

// Lookup returns the entry for id.
func (table *Table) Lookup(id ID) (Entry, bool) {
	for _, entry := range table.entries {
		if entry.ID == id {
			return entry, true
		}
	}

	return Entry{}, false
}

// Catalog holds one table per stage kind.
type Catalog struct {
	tables [numKinds]*Table
}

// NewCatalog returns a catalog of tables, one per kind. Kinds without a table have no candidates.
func NewCatalog(tables ...*Table) (*Catalog, error) {
	catalog := &Catalog{}

	for _, table := range tables {
		if catalog.tables[table.kind] != nil {
			return nil, errors.Errorf("two %s tables", table.kind)
		}

		catalog.tables[table.kind] = table
	}

	for _, kind := range Kinds {
		if catalog.tables[kind] == nil {
			catalog.tables[kind] = &Table{kind: kind}
		}
	}

	return catalog, nil
}

// Table returns the table of kind.
func (catalog *Catalog) Table(kind Kind) *Table {
	return catalog.tables[kind]
}
