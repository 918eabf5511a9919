package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"foodtrace/pkg/platform/sentinel"
)

// PostgresStore persists registrations in PostgreSQL. Uniqueness of the live
// identity and of licenses is enforced by indexes so the database remains
// the backstop for the service-level checks.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the registrations table when it does not exist yet.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS trace_stakeholders (
			seq              BIGSERIAL PRIMARY KEY,
			identity         TEXT NOT NULL,
			role             TEXT NOT NULL,
			business_name    TEXT NOT NULL,
			business_license TEXT NOT NULL,
			location         TEXT NOT NULL DEFAULT '',
			certifications   TEXT[] NOT NULL DEFAULT '{}',
			active           BOOLEAN NOT NULL DEFAULT TRUE,
			registered_at    TIMESTAMPTZ NOT NULL,
			last_activity    TIMESTAMPTZ NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS trace_stakeholders_live_idx
			ON trace_stakeholders (identity) WHERE active;
		CREATE UNIQUE INDEX IF NOT EXISTS trace_stakeholders_license_idx
			ON trace_stakeholders (business_license);
	`)
	if err != nil {
		return fmt.Errorf("migrate stakeholders: %w", err)
	}
	return nil
}

const stakeholderColumns = `identity, role, business_name, business_license, location, certifications, active, registered_at, last_activity`

func (s *PostgresStore) Save(ctx context.Context, reg Stakeholder) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trace_stakeholders (`+stakeholderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		reg.Identity, string(reg.Role), reg.BusinessName, reg.BusinessLicense,
		reg.Location, pq.Array(reg.Certifications), reg.Active,
		reg.RegisteredAt, reg.LastActivity,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindLive(ctx context.Context, identity string) (Stakeholder, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+stakeholderColumns+`
		FROM trace_stakeholders
		WHERE identity = $1 AND active`,
		identity,
	)
	return scanStakeholder(row)
}

func (s *PostgresStore) Execute(ctx context.Context, identity string, validate func(*Stakeholder) error, mutate func(*Stakeholder)) (Stakeholder, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Stakeholder{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT seq, `+stakeholderColumns+`
		FROM trace_stakeholders
		WHERE identity = $1 AND active
		FOR UPDATE`,
		identity,
	)
	var (
		seq  int64
		reg  Stakeholder
		role string
	)
	err = row.Scan(&seq, &reg.Identity, &role, &reg.BusinessName, &reg.BusinessLicense,
		&reg.Location, pq.Array(&reg.Certifications), &reg.Active,
		&reg.RegisteredAt, &reg.LastActivity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Stakeholder{}, sentinel.ErrNotFound
		}
		return Stakeholder{}, fmt.Errorf("select registration for update: %w", err)
	}
	reg.Role = Role(role)

	if err := validate(&reg); err != nil {
		return Stakeholder{}, err
	}
	mutate(&reg)

	_, err = tx.ExecContext(ctx, `
		UPDATE trace_stakeholders
		SET business_name = $2, location = $3, certifications = $4,
		    active = $5, last_activity = $6
		WHERE seq = $1`,
		seq, reg.BusinessName, reg.Location, pq.Array(reg.Certifications),
		reg.Active, reg.LastActivity,
	)
	if err != nil {
		return Stakeholder{}, fmt.Errorf("update registration: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Stakeholder{}, fmt.Errorf("commit registration update: %w", err)
	}
	return reg, nil
}

func (s *PostgresStore) ListByRole(ctx context.Context, role Role) ([]Stakeholder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+stakeholderColumns+`
		FROM trace_stakeholders
		WHERE role = $1 AND active
		ORDER BY seq`,
		string(role),
	)
	if err != nil {
		return nil, fmt.Errorf("list by role: %w", err)
	}
	defer rows.Close()
	return scanStakeholders(rows)
}

func (s *PostgresStore) FindByLicense(ctx context.Context, license string) (Stakeholder, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+stakeholderColumns+`
		FROM trace_stakeholders
		WHERE business_license = $1`,
		license,
	)
	return scanStakeholder(row)
}

func (s *PostgresStore) SearchByName(ctx context.Context, substring string) ([]Stakeholder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+stakeholderColumns+`
		FROM trace_stakeholders
		WHERE active AND strpos(business_name, $1) > 0
		ORDER BY seq`,
		substring,
	)
	if err != nil {
		return nil, fmt.Errorf("search by name: %w", err)
	}
	defer rows.Close()
	return scanStakeholders(rows)
}

func scanStakeholder(row *sql.Row) (Stakeholder, error) {
	var (
		reg  Stakeholder
		role string
	)
	err := row.Scan(&reg.Identity, &role, &reg.BusinessName, &reg.BusinessLicense,
		&reg.Location, pq.Array(&reg.Certifications), &reg.Active,
		&reg.RegisteredAt, &reg.LastActivity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Stakeholder{}, sentinel.ErrNotFound
		}
		return Stakeholder{}, fmt.Errorf("scan registration: %w", err)
	}
	reg.Role = Role(role)
	return reg, nil
}

func scanStakeholders(rows *sql.Rows) ([]Stakeholder, error) {
	var out []Stakeholder
	for rows.Next() {
		var (
			reg  Stakeholder
			role string
		)
		err := rows.Scan(&reg.Identity, &role, &reg.BusinessName, &reg.BusinessLicense,
			&reg.Location, pq.Array(&reg.Certifications), &reg.Active,
			&reg.RegisteredAt, &reg.LastActivity)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		reg.Role = Role(role)
		out = append(out, reg)
	}
	return out, rows.Err()
}
