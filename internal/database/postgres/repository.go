package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mberdnikov/shortly/internal/database"
	"github.com/mberdnikov/shortly/internal/models"
)

type linkRecord struct {
	ID          int64     `db:"id"`
	ShortCode   string    `db:"short_code"`
	OriginalURL string    `db:"original_url"`
	Visits      int64     `db:"visits"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r *linkRecord) ToLink() *models.Link {
	return &models.Link{
		ID:          r.ID,
		ShortCode:   r.ShortCode,
		OriginalURL: r.OriginalURL,
		Visits:      r.Visits,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// LinkRepository persists link records in the links table.
type LinkRepository struct {
	db *sqlx.DB
}

func NewLinkRepository(db *sqlx.DB) *LinkRepository {
	return &LinkRepository{
		db: db,
	}
}

func (r *LinkRepository) Create(ctx context.Context, shortCode, originalURL string) (*models.Link, error) {
	const op = "database.postgres.LinkRepository.Create"

	rec := new(linkRecord)
	query := `INSERT INTO links(short_code, original_url)
		VALUES ($1, $2)
		RETURNING *`

	err := r.db.GetContext(ctx, rec, query, shortCode, originalURL)
	if err != nil {
		if isUniqueViolationError(err) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrShortCodeExists)
		}

		return nil, fmt.Errorf("%s: failed to create link record: %w", op, err)
	}

	return rec.ToLink(), nil
}

func (r *LinkRepository) GetByOriginalURL(ctx context.Context, originalURL string) (*models.Link, error) {
	const op = "database.postgres.LinkRepository.GetByOriginalURL"

	rec := new(linkRecord)
	query := `SELECT * FROM links
		WHERE original_url = $1
		ORDER BY id
		LIMIT 1`

	err := r.db.GetContext(ctx, rec, query, originalURL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrLinkNotFound)
		}

		return nil, fmt.Errorf("%s: failed to get link record: %w", op, err)
	}

	return rec.ToLink(), nil
}

// ResolveShortCode returns the link for the short code and bumps its visit
// counter in the same statement, so concurrent redirects never lose counts.
func (r *LinkRepository) ResolveShortCode(ctx context.Context, shortCode string) (*models.Link, error) {
	const op = "database.postgres.LinkRepository.ResolveShortCode"

	rec := new(linkRecord)
	query := `UPDATE links
		SET visits = visits + 1, updated_at = now()
		WHERE short_code = $1
		RETURNING *`

	err := r.db.GetContext(ctx, rec, query, shortCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrLinkNotFound)
		}

		return nil, fmt.Errorf("%s: failed to resolve link record: %w", op, err)
	}

	return rec.ToLink(), nil
}

// List returns a page of links ordered newest first. The identifier is a
// secondary sort key so records sharing a timestamp page deterministically.
func (r *LinkRepository) List(ctx context.Context, limit, offset int) ([]models.Link, error) {
	const op = "database.postgres.LinkRepository.List"

	var recs []linkRecord
	query := `SELECT * FROM links
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`

	err := r.db.SelectContext(ctx, &recs, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to list link records: %w", op, err)
	}

	links := make([]models.Link, 0, len(recs))
	for _, rec := range recs {
		links = append(links, *rec.ToLink())
	}

	return links, nil
}

func (r *LinkRepository) Count(ctx context.Context) (int64, error) {
	const op = "database.postgres.LinkRepository.Count"

	var count int64
	query := `SELECT COUNT(*) FROM links`

	err := r.db.GetContext(ctx, &count, query)
	if err != nil {
		return 0, fmt.Errorf("%s: failed to count link records: %w", op, err)
	}

	return count, nil
}

// Stats aggregates the whole collection. COALESCE maps the sum over an
// empty table to 0 instead of NULL.
func (r *LinkRepository) Stats(ctx context.Context) (*models.LinkStats, error) {
	const op = "database.postgres.LinkRepository.Stats"

	stats := new(models.LinkStats)
	query := `SELECT COUNT(*) AS total_links, COALESCE(SUM(visits), 0) AS total_visits
		FROM links`

	row := r.db.QueryRowxContext(ctx, query)
	if err := row.Scan(&stats.TotalLinks, &stats.TotalVisits); err != nil {
		return nil, fmt.Errorf("%s: failed to aggregate link stats: %w", op, err)
	}

	return stats, nil
}

// Delete removes at most one link by id. Deleting a nonexistent id is not
// an error; the returned count is 0 in that case.
func (r *LinkRepository) Delete(ctx context.Context, id int64) (int64, error) {
	const op = "database.postgres.LinkRepository.Delete"

	query := `DELETE FROM links WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return 0, fmt.Errorf("%s: failed to delete link record: %w", op, err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: failed to get affected rows: %w", op, err)
	}

	return deleted, nil
}

// DeleteMany removes all links whose ids appear in the list in one statement.
// Ids that don't exist are skipped, so the returned count may be smaller
// than len(ids).
func (r *LinkRepository) DeleteMany(ctx context.Context, ids []int64) (int64, error) {
	const op = "database.postgres.LinkRepository.DeleteMany"

	query, args, err := sqlx.In(`DELETE FROM links WHERE id IN (?)`, ids)
	if err != nil {
		return 0, fmt.Errorf("%s: failed to build delete query: %w", op, err)
	}

	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("%s: failed to delete link records: %w", op, err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: failed to get affected rows: %w", op, err)
	}

	return deleted, nil
}

// Ping reports whether the database connection is alive.
func (r *LinkRepository) Ping(ctx context.Context) error {
	const op = "database.postgres.LinkRepository.Ping"

	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%s: failed to ping database: %w", op, err)
	}

	return nil
}
