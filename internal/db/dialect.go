package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectPostgres Dialect = "postgres"
)

func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "postgresql", "pg":
		return DialectPostgres, nil
	}
	return "", fmt.Errorf("unsupported database driver %q", driver)
}

// Open connects to dsn. SQLite connections take write locks when a
// transaction begins so concurrent updates to one user queue instead of failing.
func Open(d Dialect, dsn string) (*sql.DB, error) {
	switch d {
	case DialectSQLite:
		if strings.TrimSpace(dsn) == "" {
			return nil, fmt.Errorf("sqlite dsn required")
		}
		conn, err := sql.Open(string(d), sqliteDSN(dsn))
		if err != nil {
			return nil, err
		}
		if strings.Contains(dsn, ":memory:") {
			conn.SetMaxOpenConns(1)
		}
		return conn, nil
	case DialectPostgres:
		conn, err := sql.Open(string(d), dsn)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", d)
}

func sqliteDSN(dsn string) string {
	params := []string{}
	if !strings.Contains(dsn, "_txlock=") {
		params = append(params, "_txlock=immediate")
	}
	if !strings.Contains(dsn, "_busy_timeout=") {
		params = append(params, "_busy_timeout=5000")
	}
	if !strings.Contains(dsn, "_foreign_keys=") {
		params = append(params, "_foreign_keys=on")
	}
	if len(params) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

// rebind rewrites ? placeholders into the dialect's bind syntax.
func (d Dialect) rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// lockUser returns the clause that locks the selected row for the transaction.
func (d Dialect) lockUser() string {
	if d == DialectPostgres {
		return " FOR UPDATE"
	}
	return ""
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		return pe.Code == "23505"
	}
	return false
}
