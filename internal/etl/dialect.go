package etl

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Dialect captures the syntax differences between the databases the pager can
// read from. Only SQL Server is used in production; SQLite backs the tests.
type Dialect struct {
	// Driver is the database/sql driver name.
	Driver string

	bind      int
	topLimit  bool
	schemas   bool
	tableHint string
	lengthFn  string
	quote     func(string) string
	idText    func(string) string
}

var SQLServer = Dialect{
	Driver:    "sqlserver",
	bind:      sqlx.AT,
	topLimit:  true,
	schemas:   true,
	tableHint: " WITH (NOLOCK)",
	lengthFn:  "DATALENGTH",
	quote:     func(s string) string { return "[" + strings.ReplaceAll(s, "]", "]]") + "]" },
	idText:    func(expr string) string { return "CONVERT(NVARCHAR(36), " + expr + ")" },
}

var SQLite = Dialect{
	Driver:   "sqlite",
	bind:     sqlx.QUESTION,
	lengthFn: "length",
	quote:    func(s string) string { return `"` + strings.ReplaceAll(s, `"`, `""`) + `"` },
	idText:   func(expr string) string { return "CAST(" + expr + " AS TEXT)" },
}

// DialectFor resolves a dialect by driver name.
func DialectFor(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "", "sqlserver", "mssql":
		return SQLServer, nil
	case "sqlite":
		return SQLite, nil
	default:
		return Dialect{}, configError("dialect", "unsupported SQL dialect %q", name)
	}
}

func (d Dialect) table(schema, name string) string {
	if d.schemas && schema != "" {
		return d.quote(schema) + "." + d.quote(name)
	}
	return d.quote(name)
}

func (d Dialect) rebind(query string) string {
	return sqlx.Rebind(d.bind, query)
}

func (d Dialect) String() string {
	return fmt.Sprintf("dialect(%s)", d.Driver)
}
