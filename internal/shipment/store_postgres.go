package shipment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"foodtrace/pkg/platform/sentinel"
)

// PostgresStore persists shipments in PostgreSQL. The history travels as a
// JSONB column; it is append-only and always read with its shipment.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the shipments table when it does not exist yet.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS trace_shipments (
			id              BIGSERIAL PRIMARY KEY,
			product_id      BIGINT NOT NULL,
			sender_identity TEXT NOT NULL,
			receiver        TEXT NOT NULL,
			tracking_number TEXT NOT NULL UNIQUE,
			transport_mode  TEXT NOT NULL DEFAULT '',
			status          TEXT NOT NULL,
			created_at      TIMESTAMPTZ NOT NULL,
			last_updated    TIMESTAMPTZ NOT NULL,
			active          BOOLEAN NOT NULL DEFAULT TRUE,
			history         JSONB NOT NULL DEFAULT '[]'
		);
		CREATE INDEX IF NOT EXISTS trace_shipments_product_idx
			ON trace_shipments (product_id, id);
		CREATE INDEX IF NOT EXISTS trace_shipments_sender_idx
			ON trace_shipments (sender_identity, id);
		CREATE INDEX IF NOT EXISTS trace_shipments_receiver_idx
			ON trace_shipments (receiver, id);
		CREATE INDEX IF NOT EXISTS trace_shipments_status_idx
			ON trace_shipments (status);
	`)
	if err != nil {
		return fmt.Errorf("migrate shipments: %w", err)
	}
	return nil
}

const shipmentColumns = `id, product_id, sender_identity, receiver, tracking_number, transport_mode, status, created_at, last_updated, active, history`

func (s *PostgresStore) Create(ctx context.Context, sh *Shipment) error {
	history, err := json.Marshal(sh.History)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO trace_shipments
			(product_id, sender_identity, receiver, tracking_number, transport_mode, status, created_at, last_updated, active, history)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		sh.ProductID, sh.SenderIdentity, sh.Receiver, sh.TrackingNumber,
		sh.TransportMode, string(sh.Status), sh.CreatedAt, sh.LastUpdated,
		sh.Active, history,
	)
	if err := row.Scan(&sh.ID); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert shipment: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id uint64) (Shipment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+shipmentColumns+`
		FROM trace_shipments
		WHERE id = $1`,
		id,
	)
	return scanShipment(row.Scan)
}

func (s *PostgresStore) FindByTracking(ctx context.Context, tracking string) (Shipment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+shipmentColumns+`
		FROM trace_shipments
		WHERE tracking_number = $1`,
		tracking,
	)
	return scanShipment(row.Scan)
}

func (s *PostgresStore) Execute(ctx context.Context, id uint64, validate func(*Shipment) error, mutate func(*Shipment)) (Shipment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Shipment{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT `+shipmentColumns+`
		FROM trace_shipments
		WHERE id = $1
		FOR UPDATE`,
		id,
	)
	sh, err := scanShipment(row.Scan)
	if err != nil {
		return Shipment{}, err
	}

	if err := validate(&sh); err != nil {
		return Shipment{}, err
	}
	mutate(&sh)

	history, err := json.Marshal(sh.History)
	if err != nil {
		return Shipment{}, fmt.Errorf("encode history: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE trace_shipments
		SET status = $2, last_updated = $3, active = $4, history = $5
		WHERE id = $1`,
		sh.ID, string(sh.Status), sh.LastUpdated, sh.Active, history,
	)
	if err != nil {
		return Shipment{}, fmt.Errorf("update shipment: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Shipment{}, fmt.Errorf("commit shipment update: %w", err)
	}
	return sh, nil
}

func (s *PostgresStore) ListByProduct(ctx context.Context, productID uint64) ([]Shipment, error) {
	return s.list(ctx, `
		SELECT `+shipmentColumns+`
		FROM trace_shipments
		WHERE product_id = $1
		ORDER BY id`,
		productID,
	)
}

func (s *PostgresStore) ListByParticipant(ctx context.Context, identity string) ([]Shipment, error) {
	return s.list(ctx, `
		SELECT `+shipmentColumns+`
		FROM trace_shipments
		WHERE sender_identity = $1 OR receiver = $1
		ORDER BY id`,
		identity,
	)
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status Status) ([]Shipment, error) {
	return s.list(ctx, `
		SELECT `+shipmentColumns+`
		FROM trace_shipments
		WHERE status = $1
		ORDER BY id`,
		string(status),
	)
}

func (s *PostgresStore) StatusCounts(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM trace_shipments
		GROUP BY status`,
	)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()
	counts := make(map[Status]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[Status(status)] = n
	}
	return counts, rows.Err()
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]Shipment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list shipments: %w", err)
	}
	defer rows.Close()
	var out []Shipment
	for rows.Next() {
		sh, err := scanShipment(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, sh)
	}
	return out, rows.Err()
}

func scanShipment(scan func(...any) error) (Shipment, error) {
	var (
		sh      Shipment
		status  string
		history []byte
	)
	err := scan(&sh.ID, &sh.ProductID, &sh.SenderIdentity, &sh.Receiver,
		&sh.TrackingNumber, &sh.TransportMode, &status, &sh.CreatedAt,
		&sh.LastUpdated, &sh.Active, &history)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Shipment{}, sentinel.ErrNotFound
		}
		return Shipment{}, fmt.Errorf("scan shipment: %w", err)
	}
	sh.Status = Status(status)
	if err := json.Unmarshal(history, &sh.History); err != nil {
		return Shipment{}, fmt.Errorf("decode history: %w", err)
	}
	return sh, nil
}
