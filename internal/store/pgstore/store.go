// Package pgstore is the Postgres booking.Store. Every read made inside a
// transaction takes a row lock (FOR UPDATE) so check-then-write sequences in
// the engine stay serialised per row.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/appointment-booking-engine/internal/booking"
)

const uniqueViolation = "23505"

type Store struct {
	pool *pgxpool.Pool
}

var _ booking.Store = (*Store)(nil)

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx booking.Tx) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if err = fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Slots() booking.SlotRepository               { return slotRepo{t.tx} }
func (t *pgTx) Appointments() booking.AppointmentRepository { return apptRepo{t.tx} }
func (t *pgTx) Waitlist() booking.WaitlistRepository        { return waitlistRepo{t.tx} }

// LockPatient takes a transaction scoped advisory lock keyed by the patient.
func (t *pgTx) LockPatient(ctx context.Context, patientID uuid.UUID) error {
	return t.advisoryLock(ctx, "patient:"+patientID.String())
}

// LockProvider takes a transaction scoped advisory lock keyed by the
// provider. Slot inserts hold it across the overlap check.
func (t *pgTx) LockProvider(ctx context.Context, providerID uuid.UUID) error {
	return t.advisoryLock(ctx, "provider:"+providerID.String())
}

func (t *pgTx) advisoryLock(ctx context.Context, key string) error {
	_, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (*T, error)) ([]T, error) {
	defer rows.Close()

	var result []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *v)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
