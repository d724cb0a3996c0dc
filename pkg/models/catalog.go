package models

import (
	"fmt"
	"regexp"
	"sort"
)

// EntityKind selects the join shape used to locate an entity's payloads.
type EntityKind string

const (
	// KindDirect entities keep the payload on their own <Entity>File table.
	KindDirect EntityKind = "direct"
	// KindVersioned entities keep payloads in the shared file-version table,
	// keyed by file id and version.
	KindVersioned EntityKind = "versioned"
)

func (k EntityKind) Valid() bool {
	return k == KindDirect || k == KindVersioned
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,127}$`)

// ValidIdentifier reports whether s may be spliced into query text as a
// quoted table or column name.
func ValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// Catalog is the allow-list of migratable entities together with the names of
// the shared source tables.
type Catalog struct {
	Schema         string                `yaml:"schema"`
	DocumentsTable string                `yaml:"documentsTable"`
	RevisionsTable string                `yaml:"revisionsTable"`
	Entities       map[string]EntityKind `yaml:"entities"`
}

// DefaultCatalog mirrors the layout of the CRM database this tool was built
// against.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Schema:         "dbo",
		DocumentsTable: "DODocuments",
		RevisionsTable: "PTFileVersion",
		Entities: map[string]EntityKind{
			"Account":  KindDirect,
			"Contact":  KindDirect,
			"Contract": KindVersioned,
		},
	}
}

// Validate checks every name in the catalog against the identifier pattern.
func (c *Catalog) Validate() error {
	for _, name := range []string{c.Schema, c.DocumentsTable, c.RevisionsTable} {
		if !ValidIdentifier(name) {
			return fmt.Errorf("invalid table identifier %q", name)
		}
	}
	if len(c.Entities) == 0 {
		return fmt.Errorf("no entities configured")
	}
	for name, kind := range c.Entities {
		// The entity name is used to derive <Entity>File and <Entity>Id.
		if !ValidIdentifier(name + "File") {
			return fmt.Errorf("invalid entity name %q", name)
		}
		if !kind.Valid() {
			return fmt.Errorf("entity %q: unknown kind %q", name, kind)
		}
	}
	return nil
}

// Lookup returns the kind registered for entity.
func (c *Catalog) Lookup(entity string) (EntityKind, bool) {
	kind, ok := c.Entities[entity]
	return kind, ok
}

// Names returns the registered entity names in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.Entities))
	for name := range c.Entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
