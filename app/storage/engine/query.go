package engine

import "fmt"

// Query holds dialect-specific variants of a single SQL statement. Stores declare
// their statements as Query values and pick the right variant by engine type.
type Query struct {
	Sqlite   string
	Postgres string
}

// Same returns a Query with identical text for all dialects.
func Same(q string) Query { return Query{Sqlite: q, Postgres: q} }

// For returns the statement for the given engine type.
func (q Query) For(dbType Type) (string, error) {
	switch dbType {
	case Sqlite:
		return q.Sqlite, nil
	case Postgres:
		return q.Postgres, nil
	default:
		return "", fmt.Errorf("unsupported database type %q", dbType)
	}
}
