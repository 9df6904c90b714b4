package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes. Older journals must be
// deleted; batch history is not migrated.
const schemaVersion = 1

// ErrSchemaMismatch indicates the journal was written by a different schema.
var ErrSchemaMismatch = errors.New("schema version mismatch")

func (s *Store) initSchema(ctx context.Context) error {
	version, err := s.storedVersion(ctx)
	switch {
	case err != nil:
		return err
	case version == 0:
		return s.createSchema(ctx)
	case version != schemaVersion:
		return fmt.Errorf("%w: %s is at version %d, this build writes %d; remove it to start a fresh history",
			ErrSchemaMismatch, s.path, version, schemaVersion)
	}
	return nil
}

// storedVersion returns 0 for a journal that has never been initialised.
func (s *Store) storedVersion(ctx context.Context) (int, error) {
	var tables int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_version'`,
	).Scan(&tables); err != nil {
		return 0, fmt.Errorf("inspect journal: %w", err)
	}
	if tables == 0 {
		return 0, nil
	}
	var version sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&version); err != nil {
		return 0, fmt.Errorf("read journal version: %w", err)
	}
	return int(version.Int64), nil
}

func (s *Store) createSchema(ctx context.Context) error {
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()
		if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create journal tables: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, schemaVersion); err != nil {
			return fmt.Errorf("stamp journal version: %w", err)
		}
		return tx.Commit()
	})
}
