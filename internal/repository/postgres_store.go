package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/lib/pq"

	"github.com/endlessblink/Gear-Pool/internal/domain"
	"github.com/endlessblink/Gear-Pool/internal/reliability/retry"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// PostgresStore implements domain.Store on PostgreSQL
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
	retry  *retry.Config
	repos  *postgresRepos
}

// NewPostgresStore wraps an open connection pool.
func NewPostgresStore(db *sql.DB, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = 5
	cfg.InitialBackoff = 20 * time.Millisecond
	cfg.MaxBackoff = time.Second
	cfg.Retryable = IsSerializationFailure

	return &PostgresStore{
		db:     db,
		logger: logger,
		retry:  cfg,
		repos:  newPostgresRepos(db, logger),
	}
}

func (s *PostgresStore) Tenants() domain.TenantRepository           { return s.repos.tenants }
func (s *PostgresStore) Users() domain.UserRepository               { return s.repos.users }
func (s *PostgresStore) Equipment() domain.EquipmentRepository      { return s.repos.equipment }
func (s *PostgresStore) Reservations() domain.ReservationRepository { return s.repos.reservations }
func (s *PostgresStore) Audit() domain.AuditRepository              { return s.repos.audit }

// Atomic runs fn inside a READ COMMITTED transaction after locking the
// equipment rows in id order. Catalog lock keys become transaction-scoped
// advisory locks taken before any row lock. Serialization failures and deadlocks are
// retried with backoff; fn must therefore be safe to re-run.
func (s *PostgresStore) Atomic(ctx context.Context, equipmentIDs []string, fn func(ctx context.Context, repos domain.Repositories) error) error {
	ids := uniqueSorted(equipmentIDs)
	_, err := retry.Do(ctx, s.retry, s.logger, "atomic", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.atomicOnce(ctx, ids, fn)
	})
	return err
}

func (s *PostgresStore) atomicOnce(ctx context.Context, ids []string, fn func(ctx context.Context, repos domain.Repositories) error) (err error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.logger.Error("rollback failed", slog.String("error", rbErr.Error()))
			}
		}
	}()

	var rowIDs []string
	for _, id := range ids {
		if !domain.IsCatalogLockKey(id) {
			rowIDs = append(rowIDs, id)
			continue
		}
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, id); err != nil {
			return fmt.Errorf("failed to lock catalog: %w", err)
		}
	}

	if len(rowIDs) > 0 {
		rows, err := tx.QueryContext(ctx,
			`SELECT id FROM equipment WHERE id = ANY($1) ORDER BY id FOR UPDATE`, pq.Array(rowIDs))
		if err != nil {
			return fmt.Errorf("failed to lock equipment: %w", err)
		}
		// row locks are taken as rows are read
		for rows.Next() {
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("failed to lock equipment: %w", err)
		}
	}

	if err := fn(ctx, newPostgresRepos(tx, s.logger)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// IsSerializationFailure reports SQLSTATE 40001 and 40P01.
func IsSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

type postgresRepos struct {
	tenants      *PostgresTenantRepository
	users        *PostgresUserRepository
	equipment    *PostgresEquipmentRepository
	reservations *PostgresReservationRepository
	audit        *PostgresAuditRepository
}

func newPostgresRepos(q querier, logger *slog.Logger) *postgresRepos {
	return &postgresRepos{
		tenants:      &PostgresTenantRepository{q: q, logger: logger},
		users:        &PostgresUserRepository{q: q, logger: logger},
		equipment:    &PostgresEquipmentRepository{q: q, logger: logger},
		reservations: &PostgresReservationRepository{q: q, logger: logger},
		audit:        &PostgresAuditRepository{q: q, logger: logger},
	}
}

func (r *postgresRepos) Tenants() domain.TenantRepository           { return r.tenants }
func (r *postgresRepos) Users() domain.UserRepository               { return r.users }
func (r *postgresRepos) Equipment() domain.EquipmentRepository      { return r.equipment }
func (r *postgresRepos) Reservations() domain.ReservationRepository { return r.reservations }
func (r *postgresRepos) Audit() domain.AuditRepository              { return r.audit }

func uniqueSorted(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
