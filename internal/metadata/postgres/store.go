// Package postgres implements metadata.Store on PostgreSQL using pgx.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/imghost-io/imghost/internal/metadata"
)

//go:embed migrations
var migrationsFS embed.FS

const imageColumns = `id, filename, object_url, size_bytes, mime_type,
	uploaded_at, expires_at, is_processed, deleted_at, ip_address, delete_token_hash`

// Store is a PostgreSQL-backed metadata.Store.
type Store struct {
	pool *pgxpool.Pool
}

// Connect creates a validated connection pool and returns a Store over it.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewStore wraps an existing pool. The caller retains ownership of the pool
// only until Close is called.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate runs all pending up migrations embedded in the binary.
func Migrate(databaseURL string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, img *metadata.Image) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO images (id, filename, object_url, size_bytes, mime_type,
		 uploaded_at, expires_at, is_processed, deleted_at, ip_address, delete_token_hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		img.ID, img.Filename, img.ObjectURL, img.SizeBytes, img.MIMEType,
		img.UploadedAt, img.ExpiresAt, img.IsProcessed, img.DeletedAt,
		img.IPAddress, img.DeleteTokenHash,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return metadata.ErrDuplicateFilename
		}
		return fmt.Errorf("insert image: %w", err)
	}
	return nil
}

func (s *Store) GetByFilename(ctx context.Context, filename string) (*metadata.Image, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+imageColumns+` FROM images WHERE filename = $1`, filename)
	return scanImage(row, "get image by filename")
}

func (s *Store) GetByID(ctx context.Context, id string) (*metadata.Image, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+imageColumns+` FROM images WHERE id = $1`, id)
	return scanImage(row, "get image by id")
}

func (s *Store) ListExpired(ctx context.Context, now time.Time, limit int) ([]*metadata.Image, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+imageColumns+`
		 FROM images
		 WHERE deleted_at IS NULL AND expires_at < $1
		 ORDER BY expires_at, id
		 LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list expired images: %w", err)
	}
	defer rows.Close()

	var out []*metadata.Image
	for rows.Next() {
		img, err := scanImage(rows, "scan expired image")
		if err != nil {
			return nil, err
		}
		out = append(out, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list expired images: %w", err)
	}
	return out, nil
}

func (s *Store) MarkDeleted(ctx context.Context, ids []string, deletedAt time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE images
		 SET deleted_at = $1, object_url = $2
		 WHERE id = ANY($3) AND deleted_at IS NULL`,
		deletedAt, metadata.DeletedObjectURL, ids,
	)
	if err != nil {
		return 0, fmt.Errorf("mark images deleted: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) MarkProcessed(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE images SET is_processed = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark image processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return metadata.ErrNotFound
	}
	return nil
}

func (s *Store) UpdateProcessed(ctx context.Context, id string, sizeBytes int64, mimeType string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE images
		 SET size_bytes = $1, mime_type = $2, is_processed = TRUE
		 WHERE id = $3`,
		sizeBytes, mimeType, id,
	)
	if err != nil {
		return fmt.Errorf("update processed image: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return metadata.ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM images WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return metadata.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteSoftDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM images WHERE deleted_at IS NOT NULL AND deleted_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete soft-deleted images: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) CountByIPSince(ctx context.Context, ip string, since time.Time) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM images WHERE ip_address = $1 AND uploaded_at > $2`,
		ip, since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count images by ip: %w", err)
	}
	return n, nil
}

func (s *Store) ListDeleteTokens(ctx context.Context) ([]metadata.TokenRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, filename, delete_token_hash
		 FROM images
		 WHERE delete_token_hash <> '' AND deleted_at IS NULL
		 ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list delete tokens: %w", err)
	}
	defer rows.Close()

	var out []metadata.TokenRecord
	for rows.Next() {
		var rec metadata.TokenRecord
		if err := rows.Scan(&rec.ID, &rec.Filename, &rec.DeleteTokenHash); err != nil {
			return nil, fmt.Errorf("scan delete token: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list delete tokens: %w", err)
	}
	return out, nil
}

func (s *Store) Stats(ctx context.Context, now time.Time) (metadata.Stats, error) {
	var stats metadata.Stats
	err := s.pool.QueryRow(ctx,
		`SELECT
		   COUNT(*) FILTER (WHERE deleted_at IS NULL AND expires_at > $1),
		   COUNT(*) FILTER (WHERE deleted_at IS NOT NULL),
		   COUNT(*) FILTER (WHERE deleted_at IS NULL AND expires_at > $1 AND expires_at < $2)
		 FROM images`,
		now, now.Add(time.Hour),
	).Scan(&stats.Active, &stats.SoftDeleted, &stats.ExpiringWithinHour)
	if err != nil {
		return metadata.Stats{}, fmt.Errorf("image stats: %w", err)
	}
	return stats, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() {
	s.pool.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanImage(row rowScanner, op string) (*metadata.Image, error) {
	img := &metadata.Image{}
	err := row.Scan(
		&img.ID, &img.Filename, &img.ObjectURL, &img.SizeBytes, &img.MIMEType,
		&img.UploadedAt, &img.ExpiresAt, &img.IsProcessed, &img.DeletedAt,
		&img.IPAddress, &img.DeleteTokenHash,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, metadata.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return img, nil
}

// isUniqueViolation checks for a PostgreSQL unique_violation (code 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ metadata.Store = (*Store)(nil)
