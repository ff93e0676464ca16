package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/domain"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var tables = map[domain.ItemKind]string{
	domain.KindProduct:    "products",
	domain.KindCollection: "collections",
}

// SQLCatalog is the relational catalog backend, on Postgres or SQLite.
type SQLCatalog struct {
	db     *sql.DB
	driver string
}

func NewSQLCatalog(driver, dsn string) (*SQLCatalog, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported catalog sql driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == DriverSQLite {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(5)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLCatalog{db: db, driver: driver}, nil
}

func (s *SQLCatalog) RunMigrations(migrationsPath string) error {
	var (
		driver database.Driver
		err    error
	)
	switch s.driver {
	case DriverPostgres:
		driver, err = postgres.WithInstance(s.db, &postgres.Config{
			MigrationsTable: "catalog_schema_migrations",
		})
	default:
		driver, err = sqlite.WithInstance(s.db, &sqlite.Config{})
	}
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsPath),
		s.driver,
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

func (s *SQLCatalog) ExistsBatch(ctx context.Context, kind domain.ItemKind, ids []string) (map[string]struct{}, error) {
	table, ok := tables[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidItemRef, kind)
	}
	found := make(map[string]struct{}, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	var (
		query string
		args  []any
	)
	if s.driver == DriverPostgres {
		query = fmt.Sprintf(`SELECT id FROM %s WHERE id = ANY($1)`, table)
		args = []any{pq.Array(ids)}
	} else {
		placeholders := make([]string, len(ids))
		args = make([]any, len(ids))
		for i, id := range ids {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
			args[i] = id
		}
		query = fmt.Sprintf(`SELECT id FROM %s WHERE id IN (%s)`, table, strings.Join(placeholders, ", "))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan %s id: %w", table, err)
		}
		found[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return found, nil
}

// Insert adds a catalog entry. Used by seeding tools and tests.
func (s *SQLCatalog) Insert(ctx context.Context, ref domain.ItemRef, name string) error {
	table, ok := tables[ref.Kind]
	if !ok {
		return fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidItemRef, ref.Kind)
	}
	query := fmt.Sprintf(`INSERT INTO %s (id, name) VALUES ($1, $2)`, table)
	if _, err := s.db.ExecContext(ctx, query, ref.ID, name); err != nil {
		return fmt.Errorf("failed to insert %s: %w", ref, err)
	}
	return nil
}

// Delete removes a catalog entry; stored lines referencing it are left alone
// and pruned on their next read.
func (s *SQLCatalog) Delete(ctx context.Context, ref domain.ItemRef) error {
	table, ok := tables[ref.Kind]
	if !ok {
		return fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidItemRef, ref.Kind)
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, table)
	if _, err := s.db.ExecContext(ctx, query, ref.ID); err != nil {
		return fmt.Errorf("failed to delete %s: %w", ref, err)
	}
	return nil
}

func (s *SQLCatalog) Close() error {
	return s.db.Close()
}
