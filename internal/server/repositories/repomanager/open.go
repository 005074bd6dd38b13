package repomanager

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophchat/internal/filex"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// DetectDialect maps a DSN to the dialect that serves it.
func DetectDialect(dsn string) string {
	lower := strings.ToLower(dsn)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return DialectPostgres
	}
	return DialectSQLite
}

// Open connects to dsn, runs the migrations for its dialect and returns the
// handle together with the matching RepositoryManager.
func Open(ctx context.Context, dsn string) (*sql.DB, RepositoryManager, error) {
	var (
		driver string
		m      RepositoryManager
	)

	switch DetectDialect(dsn) {
	case DialectPostgres:
		driver, m = "pgx", NewPostgresRepositoryManager()
	default:
		driver, m = "sqlite", NewSQLiteRepositoryManager()
	}

	if isSQLitePath(dsn) && m.Dialect() == DialectSQLite {
		if _, err := filex.EnsureParentDir(dsn); err != nil {
			return nil, nil, fmt.Errorf("prepare sqlite path: %w", err)
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s database: %w", m.Dialect(), err)
	}

	if m.Dialect() == DialectSQLite {
		// one connection serialises writers and keeps :memory: databases alive
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping %s database: %w", m.Dialect(), err)
	}

	if err := m.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migrate %s database: %w", m.Dialect(), err)
	}

	return db, m, nil
}

// isSQLitePath reports whether dsn names a database file directly rather
// than an in-memory database or a file: URI.
func isSQLitePath(dsn string) bool {
	return dsn != ":memory:" && !strings.HasPrefix(dsn, "file:")
}
