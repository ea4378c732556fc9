package remote

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/driftnotes/driftsync/internal/client/credentials"
	"github.com/driftnotes/driftsync/internal/client/models"
	"github.com/driftnotes/driftsync/internal/common"
	"github.com/driftnotes/driftsync/internal/dbx"
)

// syncRole is the database role sync credentials authenticate as.
const syncRole = "sync"

// PostgresStore implements Store over the managed sync database. The
// minted credential is the connection password; the server scopes what the
// role can see.
type PostgresStore struct {
	db *sql.DB
}

// Open connects with a sync credential. The credential's token never
// appears anywhere but the DSN.
func Open(ctx context.Context, cred credentials.Credential) (*PostgresStore, error) {
	dsn, err := buildDSN(cred)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, mapError(err)
	}
	return &PostgresStore{db: db}, nil
}

// buildDSN places the credential token as the connection password on the
// advertised database URL.
func buildDSN(cred credentials.Credential) (string, error) {
	u, err := url.Parse(cred.DatabaseURL)
	if err != nil {
		return "", fmt.Errorf("malformed database url: %w", err)
	}

	user := syncRole
	if u.User != nil && u.User.Username() != "" {
		user = u.User.Username()
	}
	u.User = url.UserPassword(user, cred.AuthToken)
	return u.String(), nil
}

func (s *PostgresStore) PullSince(ctx context.Context, since int64) ([]models.Record, error) {
	query := `SELECT id, content, updated_at, deleted FROM records
			WHERE updated_at > $1 ORDER BY updated_at ASC`
	rows, err := s.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []models.Record
	for rows.Next() {
		var rec models.Record
		if err := rows.Scan(&rec.ID, &rec.Content, &rec.UpdatedAt, &rec.Deleted); err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return result, nil
}

func (s *PostgresStore) Push(ctx context.Context, records []models.Record) error {
	if len(records) == 0 {
		return nil
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		query := `INSERT INTO records (id, content, updated_at, deleted)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (id) DO UPDATE SET content = excluded.content,
					updated_at = excluded.updated_at,
					deleted = excluded.deleted
				WHERE excluded.updated_at > records.updated_at
					OR (excluded.updated_at = records.updated_at AND excluded.content > records.content)
					OR (excluded.updated_at = records.updated_at AND excluded.content = records.content
						AND excluded.deleted AND NOT records.deleted)
		`
		for _, rec := range records {
			if _, err := tx.ExecContext(ctx, query, rec.ID, rec.Content, rec.UpdatedAt, rec.Deleted); err != nil {
				return mapError(err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// mapError surfaces credential rejections as ErrStaleCredential so the
// engine refreshes and retries instead of failing the cycle outright.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "28P01", "28000":
			return fmt.Errorf("%w: %s", common.ErrStaleCredential, pgErr.Code)
		}
	}
	return err
}
