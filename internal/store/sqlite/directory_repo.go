package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/polwex/hpn-indexer/internal/metrics"
	"github.com/polwex/hpn-indexer/internal/store"
)

const providerColumns = `id, hash, name, provider_name, site, description, category, created`

// DirectoryRepo is the SQLite relational mirror of the registry.
type DirectoryRepo struct {
	db     *DB
	logger *slog.Logger
	nowFn  func() time.Time
}

var _ store.Directory = (*DirectoryRepo)(nil)

func NewDirectoryRepo(db *DB, logger *slog.Logger) *DirectoryRepo {
	return &DirectoryRepo{
		db:     db,
		logger: logger.With("component", "directory_store"),
		nowFn:  time.Now,
	}
}

func (r *DirectoryRepo) InsertCategory(ctx context.Context, hash, name string) error {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO categories (name, hash) VALUES (?, ?)`, name, hash)
	if err != nil {
		metrics.StoreWriteErrorsTotal.WithLabelValues("insert_category").Inc()
		return fmt.Errorf("insert category %s: %w", name, err)
	}
	return nil
}

func (r *DirectoryRepo) InsertProvider(ctx context.Context, hash, name, category string) error {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO providers (hash, name, category, created) VALUES (?, ?, ?, ?)`,
		hash, name, category, r.nowFn().Unix())
	if err != nil {
		metrics.StoreWriteErrorsTotal.WithLabelValues("insert_provider").Inc()
		return fmt.Errorf("insert provider %s: %w", name, err)
	}
	return nil
}

// UpdateFact overwrites one fact column. column must be in store.FactColumns;
// it is interpolated into the statement only after that check.
func (r *DirectoryRepo) UpdateFact(ctx context.Context, providerHash, column, value string) error {
	if !store.IsFactColumn(column) {
		metrics.StoreWriteErrorsTotal.WithLabelValues("update_fact").Inc()
		return fmt.Errorf("update fact %q: %w", column, store.ErrUnknownFactColumn)
	}

	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	query := fmt.Sprintf(`UPDATE providers SET %q = ? WHERE hash = ?`, column)
	if _, err := r.db.ExecContext(ctx, query, value, providerHash); err != nil {
		metrics.StoreWriteErrorsTotal.WithLabelValues("update_fact").Inc()
		return fmt.Errorf("update fact %s for %s: %w", column, providerHash, err)
	}
	return nil
}

func (r *DirectoryRepo) AllProviders(ctx context.Context) ([]store.ProviderRow, error) {
	return r.queryProviders(ctx, `SELECT `+providerColumns+` FROM providers ORDER BY id`)
}

func (r *DirectoryRepo) ProvidersByCategory(ctx context.Context, category string) ([]store.ProviderRow, error) {
	return r.queryProviders(ctx,
		`SELECT `+providerColumns+` FROM providers WHERE category = ? ORDER BY id`, category)
}

func (r *DirectoryRepo) ProviderByHash(ctx context.Context, hash string) (*store.ProviderRow, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `SELECT `+providerColumns+` FROM providers WHERE hash = ?`, hash)
	p, err := scanProvider(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", hash, err)
	}
	return p, nil
}

// SearchProviders matches query as a case-insensitive substring of the
// category, name and fact columns.
func (r *DirectoryRepo) SearchProviders(ctx context.Context, query string) ([]store.ProviderRow, error) {
	pattern := "%" + escapeLike(query) + "%"
	return r.queryProviders(ctx, `SELECT `+providerColumns+` FROM providers
		WHERE category LIKE ?1 ESCAPE '\' COLLATE NOCASE
		OR name LIKE ?1 ESCAPE '\' COLLATE NOCASE
		OR provider_name LIKE ?1 ESCAPE '\' COLLATE NOCASE
		OR site LIKE ?1 ESCAPE '\' COLLATE NOCASE
		OR description LIKE ?1 ESCAPE '\' COLLATE NOCASE
		ORDER BY id`, pattern)
}

func (r *DirectoryRepo) Categories(ctx context.Context) ([]store.CategoryRow, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT name, hash FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	var out []store.CategoryRow
	for rows.Next() {
		var c store.CategoryRow
		if err := rows.Scan(&c.Name, &c.Hash); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *DirectoryRepo) queryProviders(ctx context.Context, query string, args ...any) ([]store.ProviderRow, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query providers: %w", err)
	}
	defer rows.Close()

	var out []store.ProviderRow
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("scan provider: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProvider(s rowScanner) (*store.ProviderRow, error) {
	var (
		p                               store.ProviderRow
		providerName, site, description sql.NullString
		created                         sql.NullInt64
	)
	if err := s.Scan(&p.ID, &p.Hash, &p.Name, &providerName, &site, &description, &p.Category, &created); err != nil {
		return nil, err
	}
	p.ProviderName = providerName.String
	p.Site = site.String
	p.Description = description.String
	p.Created = created.Int64
	return &p, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
