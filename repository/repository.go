// Package repository is the Postgres-backed metadata catalog for audit
// records, with injection-safe paginated search over eml_records.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/oonrumail/emailguard/model"
)

// ErrNotFound is returned when a record ID has no matching row.
var ErrNotFound = errors.New("record not found")

// Catalog persists AuditRecord metadata.
type Catalog struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// New creates a Catalog backed by db.
func New(db *pgxpool.Pool, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{db: db, logger: logger.Named("repository")}
}

// Migrate creates the eml_records table and its indexes if they don't
// already exist.
func (c *Catalog) Migrate(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS eml_records (
	id               TEXT PRIMARY KEY,
	hash_sha256      TEXT NOT NULL,
	from_domain      TEXT NOT NULL DEFAULT '',
	subject_preview  TEXT NOT NULL DEFAULT '',
	stored_at        TIMESTAMPTZ NOT NULL,
	expires_at       TIMESTAMPTZ NOT NULL,
	metadata         JSONB NOT NULL DEFAULT '{}'::jsonb
);
CREATE INDEX IF NOT EXISTS idx_eml_records_from_domain ON eml_records (from_domain);
CREATE INDEX IF NOT EXISTS idx_eml_records_stored_at ON eml_records (stored_at DESC);
CREATE INDEX IF NOT EXISTS idx_eml_records_expires_at ON eml_records (expires_at);
`
	_, err := c.db.Exec(ctx, ddl)
	if err != nil {
		return fmt.Errorf("migrate eml_records: %w", err)
	}
	return nil
}

// Store inserts or replaces the metadata row for rec.
func (c *Catalog) Store(ctx context.Context, rec *model.AuditRecord) error {
	const query = `
INSERT INTO eml_records (id, hash_sha256, from_domain, subject_preview, stored_at, expires_at, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
	hash_sha256 = EXCLUDED.hash_sha256,
	from_domain = EXCLUDED.from_domain,
	subject_preview = EXCLUDED.subject_preview,
	stored_at = EXCLUDED.stored_at,
	expires_at = EXCLUDED.expires_at,
	metadata = EXCLUDED.metadata
`
	_, err := c.db.Exec(ctx, query, rec.ID, rec.HashSHA256, rec.FromDomain, rec.SubjectPreview,
		rec.StoredAt, rec.ExpiresAt, metadataJSON(rec.Metadata))
	if err != nil {
		return fmt.Errorf("store record %s: %w", rec.ID, err)
	}
	return nil
}

// Get returns the record for id, or ErrNotFound.
func (c *Catalog) Get(ctx context.Context, id string) (*model.AuditRecord, error) {
	const query = `
SELECT id, hash_sha256, from_domain, subject_preview, stored_at, expires_at, metadata
FROM eml_records WHERE id = $1
`
	row := c.db.QueryRow(ctx, query, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get record %s: %w", id, err)
	}
	return rec, nil
}

// Delete removes the record for id. Deleting a missing id is a no-op.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	_, err := c.db.Exec(ctx, `DELETE FROM eml_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete record %s: %w", id, err)
	}
	return nil
}

// DeleteExpired removes every record whose expires_at has passed and
// returns their ids, so the caller can also purge the backing objects.
func (c *Catalog) DeleteExpired(ctx context.Context) ([]string, error) {
	rows, err := c.db.Query(ctx, `DELETE FROM eml_records WHERE expires_at < now() RETURNING id`)
	if err != nil {
		return nil, fmt.Errorf("delete expired records: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan expired id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// List returns a page of records matching filter, plus the total count
// of matching rows (ignoring Limit/Offset) for pagination.
func (c *Catalog) List(ctx context.Context, filter model.ListFilter) ([]*model.AuditRecord, int, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = model.DefaultLimit
	}
	if limit > model.MaxLimit {
		limit = model.MaxLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	sortBy := "stored_at"
	if filter.SortBy != "" && model.AllowedSortColumns[filter.SortBy] {
		sortBy = filter.SortBy
	}
	direction := "ASC"
	if filter.Descending {
		direction = "DESC"
	}
	if filter.SortBy != "" && !model.AllowedSortColumns[filter.SortBy] {
		direction = "DESC"
	}

	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Search != "" {
		p := arg(likePattern(filter.Search))
		where = append(where, fmt.Sprintf(
			"(from_domain ILIKE %[1]s ESCAPE '\\' OR subject_preview ILIKE %[1]s ESCAPE '\\' OR id ILIKE %[1]s ESCAPE '\\' OR hash_sha256 ILIKE %[1]s ESCAPE '\\')", p))
	}
	if filter.Domain != "" {
		where = append(where, fmt.Sprintf("from_domain = %s", arg(filter.Domain)))
	}
	if filter.HashPrefix != "" {
		where = append(where, fmt.Sprintf("hash_sha256 LIKE %s ESCAPE '\\'", arg(likePrefix(filter.HashPrefix))))
	}
	if filter.From != nil {
		where = append(where, fmt.Sprintf("stored_at >= %s", arg(*filter.From)))
	}
	if filter.To != nil {
		where = append(where, fmt.Sprintf("stored_at <= %s", arg(*filter.To)))
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	countQuery := "SELECT count(*) FROM eml_records " + whereClause
	if err := c.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count records: %w", err)
	}

	pageQuery := fmt.Sprintf(
		"SELECT id, hash_sha256, from_domain, subject_preview, stored_at, expires_at, metadata FROM eml_records %s ORDER BY %s %s LIMIT %s OFFSET %s",
		whereClause, sortBy, direction, arg(limit), arg(offset),
	)
	rows, err := c.db.Query(ctx, pageQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []*model.AuditRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, rec)
	}
	return records, total, rows.Err()
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*model.AuditRecord, error) {
	var rec model.AuditRecord
	var metadata map[string]string
	if err := row.Scan(&rec.ID, &rec.HashSHA256, &rec.FromDomain, &rec.SubjectPreview,
		&rec.StoredAt, &rec.ExpiresAt, &metadata); err != nil {
		return nil, err
	}
	rec.Metadata = metadata
	return &rec, nil
}

func metadataJSON(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

// likePattern escapes %, _, and \ in s before wrapping it for a
// substring ILIKE match, so user input can't inject wildcard semantics.
func likePattern(s string) string {
	return "%" + escapeLike(s) + "%"
}

func likePrefix(s string) string {
	return escapeLike(s) + "%"
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}
