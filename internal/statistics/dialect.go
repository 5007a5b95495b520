package statistics

import "fmt"

// Dialect supplies the few SQL fragments that differ between stores
type Dialect interface {
	Name() string
	// Greatest returns the larger of two numeric expressions
	Greatest(a, b string) string
	// Float casts an integer expression so division does not truncate
	Float(expr string) string
}

type postgresDialect struct{}

func (postgresDialect) Name() string { return "postgres" }

func (postgresDialect) Greatest(a, b string) string {
	return fmt.Sprintf("GREATEST(%s, %s)", a, b)
}

func (postgresDialect) Float(expr string) string {
	return fmt.Sprintf("CAST(%s AS DOUBLE PRECISION)", expr)
}

// sqliteDialect uses the two-argument scalar MAX
type sqliteDialect struct{}

func (sqliteDialect) Name() string { return "sqlite" }

func (sqliteDialect) Greatest(a, b string) string {
	return fmt.Sprintf("MAX(%s, %s)", a, b)
}

func (sqliteDialect) Float(expr string) string {
	return fmt.Sprintf("CAST(%s AS REAL)", expr)
}

var (
	Postgres Dialect = postgresDialect{}
	SQLite   Dialect = sqliteDialect{}
)

// DialectFor picks a dialect by gorm dialector name, defaulting to Postgres
func DialectFor(name string) Dialect {
	if name == SQLite.Name() {
		return SQLite
	}
	return Postgres
}
