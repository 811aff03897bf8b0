package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/endlessblink/Gear-Pool/internal/domain"
)

// PostgresReservationRepository implements domain.ReservationRepository using PostgreSQL
type PostgresReservationRepository struct {
	q      querier
	logger *slog.Logger
}

const reservationColumns = `id, tenant_id, user_id, purpose, start_at, end_at, status, version, approved_by, decision_note, created_at, updated_at`

// Create inserts a reservation and its items
func (r *PostgresReservationRepository) Create(ctx context.Context, res *domain.Reservation) error {
	if res.Version == 0 {
		res.Version = 1
	}
	query := `
		INSERT INTO reservations (id, tenant_id, user_id, purpose, start_at, end_at, status, version, approved_by, decision_note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`
	err := r.q.QueryRowContext(ctx, query,
		res.ID, res.TenantID, res.UserID, res.Purpose,
		res.Interval.Start, res.Interval.End, string(res.Status), res.Version,
		res.ApprovedBy, res.DecisionNote,
	).Scan(&res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		r.logger.Error("failed to create reservation",
			slog.String("reservation_id", res.ID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create reservation: %w", err)
	}

	for i := range res.Items {
		it := &res.Items[i]
		it.ReservationID = res.ID
		_, err := r.q.ExecContext(ctx, `
			INSERT INTO reservation_items (reservation_id, equipment_id, quantity, derived_from)
			VALUES ($1, $2, $3, $4)
		`, res.ID, it.EquipmentID, it.Quantity, it.DerivedFrom)
		if err != nil {
			return fmt.Errorf("failed to create reservation item %s: %w", it.EquipmentID, err)
		}
	}
	return nil
}

// GetByID retrieves a reservation with its items
func (r *PostgresReservationRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1 AND tenant_id = $2`
	res, err := scanReservation(r.q.QueryRowContext(ctx, query, id, tenantID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewNotFoundError("reservation", id)
		}
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	if err := r.attachItems(ctx, []*domain.Reservation{res}); err != nil {
		return nil, err
	}
	return res, nil
}

// List returns reservations matching the filter ordered by start
func (r *PostgresReservationRepository) List(ctx context.Context, tenantID string, filter domain.ReservationFilter) ([]*domain.Reservation, error) {
	where := []string{"tenant_id = $1"}
	args := []any{tenantID}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Status != "" {
		where = append(where, "status = "+arg(string(filter.Status)))
	}
	if filter.UserID != "" {
		where = append(where, "user_id = "+arg(filter.UserID))
	}
	if filter.EquipmentID != "" {
		where = append(where, "id IN (SELECT reservation_id FROM reservation_items WHERE equipment_id = "+arg(filter.EquipmentID)+")")
	}
	if filter.Overlapping != nil {
		where = append(where, "start_at < "+arg(filter.Overlapping.End))
		where = append(where, "end_at > "+arg(filter.Overlapping.Start))
	}

	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY start_at, id`
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}
	return r.query(ctx, query, args...)
}

// FindOverlapping sums the committed quantity per reservation for one item.
// The interval predicate is the half-open overlap used everywhere else.
func (r *PostgresReservationRepository) FindOverlapping(ctx context.Context, tenantID, equipmentID string, iv domain.Interval, excludeID string) ([]domain.Allocation, error) {
	statuses := make([]string, len(domain.CommittedStatuses))
	for i, s := range domain.CommittedStatuses {
		statuses[i] = string(s)
	}
	rows, err := r.q.QueryContext(ctx, `
		SELECT r.id, SUM(i.quantity), r.start_at, r.end_at, r.status
		FROM reservations r
		JOIN reservation_items i ON i.reservation_id = r.id
		WHERE r.tenant_id = $1
		  AND i.equipment_id = $2
		  AND r.status = ANY($3)
		  AND r.start_at < $4
		  AND r.end_at > $5
		  AND r.id <> $6
		GROUP BY r.id, r.start_at, r.end_at, r.status
		ORDER BY r.id
	`, tenantID, equipmentID, pq.Array(statuses), iv.End, iv.Start, excludeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query overlapping reservations: %w", err)
	}
	defer rows.Close()

	var out []domain.Allocation
	for rows.Next() {
		var a domain.Allocation
		var status string
		if err := rows.Scan(&a.ReservationID, &a.Quantity, &a.Interval.Start, &a.Interval.End, &status); err != nil {
			return nil, fmt.Errorf("failed to scan allocation: %w", err)
		}
		a.Status = domain.Status(status)
		out = append(out, a)
	}
	return out, rows.Err()
}

// Save performs a compare-and-set on version and writes item snapshots
func (r *PostgresReservationRepository) Save(ctx context.Context, res *domain.Reservation, expectedVersion int64) error {
	err := r.q.QueryRowContext(ctx, `
		UPDATE reservations
		SET status = $1, approved_by = $2, decision_note = $3, version = version + 1, updated_at = NOW()
		WHERE id = $4 AND tenant_id = $5 AND version = $6
		RETURNING version, updated_at
	`, string(res.Status), res.ApprovedBy, res.DecisionNote, res.ID, res.TenantID, expectedVersion,
	).Scan(&res.Version, &res.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		var current int64
		lookup := r.q.QueryRowContext(ctx,
			`SELECT version FROM reservations WHERE id = $1 AND tenant_id = $2`, res.ID, res.TenantID).Scan(&current)
		if errors.Is(lookup, sql.ErrNoRows) {
			return domain.NewNotFoundError("reservation", res.ID)
		}
		if lookup != nil {
			return fmt.Errorf("failed to read reservation version: %w", lookup)
		}
		return domain.NewStaleError(res.ID, expectedVersion, current)
	}
	if err != nil {
		return fmt.Errorf("failed to save reservation: %w", err)
	}

	for _, it := range res.Items {
		_, err := r.q.ExecContext(ctx, `
			UPDATE reservation_items
			SET checkout_condition = $1, checkin_condition = $2, damage_delta = $3
			WHERE reservation_id = $4 AND equipment_id = $5
		`, string(it.CheckoutCondition), string(it.CheckinCondition), it.DamageDelta, res.ID, it.EquipmentID)
		if err != nil {
			return fmt.Errorf("failed to save reservation item %s: %w", it.EquipmentID, err)
		}
	}
	return nil
}

// ListPastDue returns active reservations of all tenants ending at or before now
func (r *PostgresReservationRepository) ListPastDue(ctx context.Context, now time.Time) ([]*domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations
		WHERE status = $1 AND end_at <= $2
		ORDER BY end_at, id`
	return r.query(ctx, query, string(domain.StatusActive), now)
}

func (r *PostgresReservationRepository) query(ctx context.Context, query string, args ...any) ([]*domain.Reservation, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("failed to list reservations", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	defer rows.Close()

	var out []*domain.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	if err := r.attachItems(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresReservationRepository) attachItems(ctx context.Context, list []*domain.Reservation) error {
	if len(list) == 0 {
		return nil
	}
	byID := make(map[string]*domain.Reservation, len(list))
	ids := make([]string, 0, len(list))
	for _, res := range list {
		byID[res.ID] = res
		ids = append(ids, res.ID)
	}

	rows, err := r.q.QueryContext(ctx, `
		SELECT reservation_id, equipment_id, quantity, derived_from, checkout_condition, checkin_condition, damage_delta
		FROM reservation_items
		WHERE reservation_id = ANY($1)
		ORDER BY reservation_id, equipment_id
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to load reservation items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it domain.ReservationItem
		var checkout, checkin string
		if err := rows.Scan(&it.ReservationID, &it.EquipmentID, &it.Quantity, &it.DerivedFrom, &checkout, &checkin, &it.DamageDelta); err != nil {
			return fmt.Errorf("failed to scan reservation item: %w", err)
		}
		it.CheckoutCondition = domain.Condition(checkout)
		it.CheckinCondition = domain.Condition(checkin)
		if res, ok := byID[it.ReservationID]; ok {
			res.Items = append(res.Items, it)
		}
	}
	return rows.Err()
}

func scanReservation(s scanner) (*domain.Reservation, error) {
	res := &domain.Reservation{}
	var status string
	err := s.Scan(&res.ID, &res.TenantID, &res.UserID, &res.Purpose,
		&res.Interval.Start, &res.Interval.End, &status, &res.Version,
		&res.ApprovedBy, &res.DecisionNote, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		return nil, err
	}
	res.Status = domain.Status(status)
	return res, nil
}
