package product

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"foodtrace/pkg/platform/sentinel"
)

// PostgresStore persists products in PostgreSQL. Stage records travel as a
// JSONB column because they are only ever read and written as a whole with
// their product. The authorship index gets its own table so appends stay
// cheap.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the product tables when they do not exist yet.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS trace_products (
			id              BIGSERIAL PRIMARY KEY,
			name            TEXT NOT NULL,
			batch_number    TEXT NOT NULL UNIQUE,
			farmer_identity TEXT NOT NULL,
			created_at      TIMESTAMPTZ NOT NULL,
			stage           INT NOT NULL,
			active          BOOLEAN NOT NULL DEFAULT TRUE,
			content_hash    TEXT NOT NULL,
			estimated_price DOUBLE PRECISION NOT NULL,
			location        TEXT NOT NULL DEFAULT '',
			records         JSONB NOT NULL DEFAULT '[]'
		);
		CREATE INDEX IF NOT EXISTS trace_products_stage_idx
			ON trace_products (stage) WHERE active;
		CREATE TABLE IF NOT EXISTS trace_product_authorship (
			seq        BIGSERIAL PRIMARY KEY,
			identity   TEXT NOT NULL,
			product_id BIGINT NOT NULL REFERENCES trace_products (id)
		);
		CREATE INDEX IF NOT EXISTS trace_product_authorship_identity_idx
			ON trace_product_authorship (identity, seq);
	`)
	if err != nil {
		return fmt.Errorf("migrate products: %w", err)
	}
	return nil
}

const productColumns = `id, name, batch_number, farmer_identity, created_at, stage, active, content_hash, estimated_price, location, records`

func (s *PostgresStore) Create(ctx context.Context, p *Product) error {
	records, err := json.Marshal(p.Records)
	if err != nil {
		return fmt.Errorf("encode stage records: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO trace_products
			(name, batch_number, farmer_identity, created_at, stage, active, content_hash, estimated_price, location, records)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		p.Name, p.BatchNumber, p.FarmerIdentity, p.CreatedAt, int(p.Stage),
		p.Active, p.ContentHash, p.EstimatedPrice, p.Location, records,
	)
	if err := row.Scan(&p.ID); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id uint64) (Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM trace_products
		WHERE id = $1`,
		id,
	)
	return scanProduct(row.Scan)
}

func (s *PostgresStore) FindByBatch(ctx context.Context, batch string) (Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM trace_products
		WHERE batch_number = $1`,
		batch,
	)
	return scanProduct(row.Scan)
}

func (s *PostgresStore) Execute(ctx context.Context, id uint64, validate func(*Product) error, mutate func(*Product)) (Product, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Product{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM trace_products
		WHERE id = $1
		FOR UPDATE`,
		id,
	)
	p, err := scanProduct(row.Scan)
	if err != nil {
		return Product{}, err
	}

	if err := validate(&p); err != nil {
		return Product{}, err
	}
	mutate(&p)

	records, err := json.Marshal(p.Records)
	if err != nil {
		return Product{}, fmt.Errorf("encode stage records: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE trace_products
		SET stage = $2, active = $3, estimated_price = $4, location = $5, records = $6
		WHERE id = $1`,
		p.ID, int(p.Stage), p.Active, p.EstimatedPrice, p.Location, records,
	)
	if err != nil {
		return Product{}, fmt.Errorf("update product: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Product{}, fmt.Errorf("commit product update: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) AddAuthorship(ctx context.Context, identity string, id uint64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trace_product_authorship (identity, product_id)
		VALUES ($1, $2)`,
		identity, id,
	)
	if err != nil {
		return fmt.Errorf("insert authorship: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByStakeholder(ctx context.Context, identity string) ([]uint64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id
		FROM trace_product_authorship
		WHERE identity = $1
		ORDER BY seq`,
		identity,
	)
	if err != nil {
		return nil, fmt.Errorf("list authorship: %w", err)
	}
	defer rows.Close()
	var out []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan authorship: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListByStage(ctx context.Context, stage Stage) ([]Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM trace_products
		WHERE stage = $1 AND active
		ORDER BY id`,
		int(stage),
	)
	if err != nil {
		return nil, fmt.Errorf("list by stage: %w", err)
	}
	defer rows.Close()
	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) StageCounts(ctx context.Context) (map[Stage]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT stage, COUNT(*)
		FROM trace_products
		WHERE active
		GROUP BY stage`,
	)
	if err != nil {
		return nil, fmt.Errorf("count by stage: %w", err)
	}
	defer rows.Close()
	counts := make(map[Stage]int)
	for rows.Next() {
		var (
			stage int
			n     int
		)
		if err := rows.Scan(&stage, &n); err != nil {
			return nil, fmt.Errorf("scan stage count: %w", err)
		}
		counts[Stage(stage)] = n
	}
	return counts, rows.Err()
}

func (s *PostgresStore) ActiveCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trace_products WHERE active`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active: %w", err)
	}
	return n, nil
}

func scanProduct(scan func(...any) error) (Product, error) {
	var (
		p       Product
		stage   int
		records []byte
	)
	err := scan(&p.ID, &p.Name, &p.BatchNumber, &p.FarmerIdentity, &p.CreatedAt,
		&stage, &p.Active, &p.ContentHash, &p.EstimatedPrice, &p.Location, &records)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Product{}, sentinel.ErrNotFound
		}
		return Product{}, fmt.Errorf("scan product: %w", err)
	}
	p.Stage = Stage(stage)
	if err := json.Unmarshal(records, &p.Records); err != nil {
		return Product{}, fmt.Errorf("decode stage records: %w", err)
	}
	return p, nil
}
