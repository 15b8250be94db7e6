// Package sqlite is a durable tokenstore.Store backed by modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/aussiebroadwan/passport/pkg/tokenstore"
	_ "modernc.org/sqlite"
)

type Store struct {
	db  *sql.DB
	dsn string
	now func() time.Time
}

var _ tokenstore.Store = (*Store)(nil)

// Open opens the database at dsn and applies pending migrations.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// One writer at a time; sqlite serialises anyway and this avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, dsn: dsn, now: time.Now}
	if err := s.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Get(ctx context.Context, key tokenstore.Key) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, string(key)).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *Store) Put(ctx context.Context, values map[tokenstore.Key]string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.now().UTC()
		for k, v := range values {
			if v == "" {
				if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, string(k)); err != nil {
					return err
				}
				continue
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
				ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
				string(k), v, now,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) Delete(ctx context.Context, keys ...tokenstore.Key) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, k := range keys {
			if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, string(k)); err != nil {
				return err
			}
		}
		return nil
	})
}

// withTx executes fn within a transaction, automatically handling commit/rollback.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		_ = tx.Rollback() // safe to call even after commit
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
