// Package pgstore implements registry.Store on Postgres, for
// deployments that want the tool registry durable in a relational
// database they already operate rather than the embedded LevelDB
// default.
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/newmar1997ma-coder/mcp-sentinel/pkg/registry"
)

var _ registry.Store = (*Store)(nil)

// Store is a Postgres-backed registry.Store. Schemas and digests are
// kept as two tables mirroring the registry's two persisted
// namespaces, written in a single transaction per Put/Delete so
// the two namespaces never diverge — a stronger guarantee than the
// embedded store's reconcile-at-open pass, available here because a
// relational database gives us real cross-statement transactions.
type Store struct {
	db     *sql.DB
	logger *log.Logger
}

// Option configures a Store at construction.
type Option func(*Store)

// WithLogger overrides the store's logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// Open connects to a Postgres database at dsn, verifies connectivity,
// and ensures the registry tables exist.
func Open(dsn string, opts ...Option) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pgstore: dsn cannot be empty")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: opening connection: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, logger: log.New(log.Writer(), "[pgstore] ", log.LstdFlags)}
	for _, opt := range opts {
		opt(s)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pgstore: pinging database: %w", err)
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.Printf("connected, registry tables ready")
	return s, nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS sentinel_schemas (
	name        TEXT PRIMARY KEY,
	schema_json JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS sentinel_digests (
	name   TEXT PRIMARY KEY REFERENCES sentinel_schemas(name) ON DELETE CASCADE,
	digest BYTEA NOT NULL
);
`

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("pgstore: migrating schema: %w", err)
	}
	return nil
}

// Put writes both namespace rows inside one transaction.
func (s *Store) Put(name string, rec registry.Record) error {
	schemaBytes, err := json.Marshal(rec.Schema)
	if err != nil {
		return fmt.Errorf("pgstore: serializing schema %q: %w", name, err)
	}

	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pgstore: beginning transaction for %q: %w", name, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sentinel_schemas (name, schema_json) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET schema_json = EXCLUDED.schema_json
	`, name, schemaBytes); err != nil {
		return fmt.Errorf("pgstore: writing schema %q: %w", name, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sentinel_digests (name, digest) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET digest = EXCLUDED.digest
	`, name, rec.Digest[:]); err != nil {
		return fmt.Errorf("pgstore: writing digest %q: %w", name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("pgstore: committing %q: %w", name, err)
	}
	return nil
}

// Get reads a single record by name.
func (s *Store) Get(name string) (registry.Record, bool, error) {
	ctx := context.Background()
	var schemaBytes []byte
	var digestBytes []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT s.schema_json, d.digest
		FROM sentinel_schemas s
		JOIN sentinel_digests d ON d.name = s.name
		WHERE s.name = $1
	`, name).Scan(&schemaBytes, &digestBytes)
	if err == sql.ErrNoRows {
		return registry.Record{}, false, nil
	}
	if err != nil {
		return registry.Record{}, false, fmt.Errorf("pgstore: querying %q: %w", name, err)
	}

	var schema registry.SchemaRecord
	if err := json.Unmarshal(schemaBytes, &schema); err != nil {
		return registry.Record{}, false, fmt.Errorf("pgstore: corrupt schema record for %q: %w", name, err)
	}
	if len(digestBytes) != 32 {
		return registry.Record{}, false, fmt.Errorf("pgstore: corrupt digest for %q: want 32 bytes, got %d", name, len(digestBytes))
	}
	var digest [32]byte
	copy(digest[:], digestBytes)
	return registry.Record{Schema: schema, Digest: digest}, true, nil
}

// Delete removes both namespace rows for name: it deletes the schemas
// row, and the ON DELETE CASCADE foreign key removes the matching
// digests row with it.
func (s *Store) Delete(name string) error {
	ctx := context.Background()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sentinel_schemas WHERE name = $1`, name); err != nil {
		return fmt.Errorf("pgstore: deleting %q: %w", name, err)
	}
	return nil
}

// All returns every registered record.
func (s *Store) All() (map[string]registry.Record, error) {
	ctx := context.Background()
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.name, s.schema_json, d.digest
		FROM sentinel_schemas s
		JOIN sentinel_digests d ON d.name = s.name
	`)
	if err != nil {
		return nil, fmt.Errorf("pgstore: listing: %w", err)
	}
	defer rows.Close()

	out := make(map[string]registry.Record)
	for rows.Next() {
		var name string
		var schemaBytes, digestBytes []byte
		if err := rows.Scan(&name, &schemaBytes, &digestBytes); err != nil {
			return nil, fmt.Errorf("pgstore: scanning row: %w", err)
		}
		var schema registry.SchemaRecord
		if err := json.Unmarshal(schemaBytes, &schema); err != nil {
			return nil, fmt.Errorf("pgstore: corrupt schema record for %q: %w", name, err)
		}
		if len(digestBytes) != 32 {
			return nil, fmt.Errorf("pgstore: corrupt digest for %q", name)
		}
		var digest [32]byte
		copy(digest[:], digestBytes)
		out[name] = registry.Record{Schema: schema, Digest: digest}
	}
	return out, rows.Err()
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
