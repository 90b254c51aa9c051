package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fyrsmithlabs/refundmatch/internal/history/migrations"
)

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to Postgres and verifies the connection.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// RunMigrations applies all embedded SQL migrations.
func RunMigrations(connString string) error {
	sourceDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, connString)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}

	return nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const vendorColumns = `vendor_name, vendor_keywords, description_keywords, description_keyword_counts,
	sample_count, success_rate, typical_basis, basis_counts, updated_at`

const patternColumns = `id, keywords, success_rate, typical_basis, sample_count, basis_counts, updated_at`

func scanVendor(row pgx.Row) (VendorRecord, error) {
	var v VendorRecord
	err := row.Scan(&v.VendorName, &v.VendorKeywords, &v.DescriptionKeywords, &v.DescriptionKeywordCounts,
		&v.SampleCount, &v.SuccessRate, &v.TypicalBasis, &v.BasisCounts, &v.UpdatedAt)
	return v, err
}

func scanPattern(row pgx.Row) (PatternRecord, error) {
	var p PatternRecord
	err := row.Scan(&p.ID, &p.Keywords, &p.SuccessRate, &p.TypicalBasis, &p.SampleCount,
		&p.BasisCounts, &p.UpdatedAt)
	return p, err
}

// VendorByName implements VendorReader.
func (s *PostgresStore) VendorByName(ctx context.Context, name string) (*VendorRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+vendorColumns+` FROM vendors WHERE vendor_name = $1`, name)
	v, err := scanVendor(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVendorNotFound
		}
		return nil, fmt.Errorf("loading vendor %q: %w", name, err)
	}
	return &v, nil
}

// VendorsWithKeywords implements VendorReader.
func (s *PostgresStore) VendorsWithKeywords(ctx context.Context) ([]VendorRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+vendorColumns+` FROM vendors
		WHERE cardinality(vendor_keywords) > 0 ORDER BY vendor_name`)
	if err != nil {
		return nil, fmt.Errorf("querying vendors: %w", err)
	}
	defer rows.Close()

	var out []VendorRecord
	for rows.Next() {
		v, err := scanVendor(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning vendor: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// PatternsWithKeywords implements PatternReader.
func (s *PostgresStore) PatternsWithKeywords(ctx context.Context) ([]PatternRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+patternColumns+` FROM keyword_patterns
		WHERE cardinality(keywords) > 0 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying patterns: %w", err)
	}
	defer rows.Close()

	var out []PatternRecord
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning pattern: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// VendorDescriptionKeywords implements PatternReader.
func (s *PostgresStore) VendorDescriptionKeywords(ctx context.Context, vendorName string) ([]string, error) {
	var kws []string
	err := s.pool.QueryRow(ctx,
		`SELECT description_keywords FROM vendors WHERE vendor_name = $1`, vendorName).Scan(&kws)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVendorNotFound
		}
		return nil, fmt.Errorf("loading description keywords for %q: %w", vendorName, err)
	}
	return kws, nil
}

// UpsertVendor implements Writer.
func (s *PostgresStore) UpsertVendor(ctx context.Context, v VendorRecord) error {
	if err := v.Validate(); err != nil {
		return fmt.Errorf("validating vendor: %w", err)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO vendors (`+vendorColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (vendor_name) DO UPDATE SET
			vendor_keywords = EXCLUDED.vendor_keywords,
			description_keywords = EXCLUDED.description_keywords,
			description_keyword_counts = EXCLUDED.description_keyword_counts,
			sample_count = EXCLUDED.sample_count,
			success_rate = EXCLUDED.success_rate,
			typical_basis = EXCLUDED.typical_basis,
			basis_counts = EXCLUDED.basis_counts,
			updated_at = EXCLUDED.updated_at
	`, v.VendorName, nonNil(v.VendorKeywords), nonNil(v.DescriptionKeywords),
		nonNilCounts(v.DescriptionKeywordCounts), v.SampleCount, v.SuccessRate, v.TypicalBasis,
		nonNilCounts(v.BasisCounts), v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting vendor %q: %w", v.VendorName, err)
	}
	return nil
}

// UpsertPattern implements Writer.
func (s *PostgresStore) UpsertPattern(ctx context.Context, p PatternRecord) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("validating pattern: %w", err)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO keyword_patterns (`+patternColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			keywords = EXCLUDED.keywords,
			success_rate = EXCLUDED.success_rate,
			typical_basis = EXCLUDED.typical_basis,
			sample_count = EXCLUDED.sample_count,
			basis_counts = EXCLUDED.basis_counts,
			updated_at = EXCLUDED.updated_at
	`, p.ID, p.Keywords, p.SuccessRate, p.TypicalBasis, p.SampleCount,
		nonNilCounts(p.BasisCounts), p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting pattern %q: %w", p.ID, err)
	}
	return nil
}

// nonNil keeps NOT NULL array columns satisfied.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilCounts(m map[string]int) map[string]int {
	if m == nil {
		return map[string]int{}
	}
	return m
}

var _ Store = (*PostgresStore)(nil)
