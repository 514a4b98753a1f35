package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medicall/booking/internal/platform/db"
)

type ledgerPG struct {
	pool *pgxpool.Pool
}

// NewLedger returns the PostgreSQL ledger. Reserve and Move serialise per
// doctor with a transaction-scoped advisory lock. The
// appointments_no_overlap exclusion constraint is a backstop that only
// catches true span overlaps.
func NewLedger(pool *pgxpool.Pool) Ledger {
	return &ledgerPG{pool: pool}
}

func (l *ledgerPG) conn(ctx context.Context) db.Querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return l.pool
}

const apptCols = `id, patient_id, doctor_id, scheduled_at, ends_at, status, notes, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.ScheduledAt, &a.EndsAt,
		&a.Status, &a.Notes, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan appointment: %w", err)
	}
	return &a, nil
}

func collect(rows pgx.Rows) ([]*Appointment, error) {
	defer rows.Close()
	var out []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (l *ledgerPG) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(l.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointments WHERE id = $1`, id))
}

func (l *ledgerPG) Find(ctx context.Context, doctorID uuid.UUID, status Status, from, to time.Time) ([]*Appointment, error) {
	rows, err := l.conn(ctx).Query(ctx, `
		SELECT `+apptCols+` FROM appointments
		WHERE doctor_id = $1 AND status = $2 AND scheduled_at >= $3 AND scheduled_at < $4
		ORDER BY scheduled_at`, doctorID, status, from, to)
	if err != nil {
		return nil, fmt.Errorf("find appointments: %w", err)
	}
	return collect(rows)
}

func where(q Query) (string, []interface{}) {
	var (
		clauses []string
		args    []interface{}
	)
	add := func(clause string, v interface{}) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if q.PatientID != uuid.Nil {
		add("patient_id = $%d", q.PatientID)
	}
	if q.DoctorID != uuid.Nil {
		add("doctor_id = $%d", q.DoctorID)
	}
	if q.Status != "" {
		add("status = $%d", q.Status)
	}
	if !q.From.IsZero() {
		add("scheduled_at >= $%d", q.From)
	}
	if !q.To.IsZero() {
		add("scheduled_at < $%d", q.To)
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (l *ledgerPG) List(ctx context.Context, q Query) ([]*Appointment, error) {
	cond, args := where(q)
	sql := `SELECT ` + apptCols + ` FROM appointments` + cond + ` ORDER BY scheduled_at DESC, id`
	if q.Limit > 0 {
		args = append(args, q.Limit, q.Offset)
		sql += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}
	rows, err := l.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return collect(rows)
}

func (l *ledgerPG) Count(ctx context.Context, q Query) (int, error) {
	cond, args := where(q)
	var n int
	if err := l.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointments`+cond, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count appointments: %w", err)
	}
	return n, nil
}

func (l *ledgerPG) Insert(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	err := l.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, scheduled_at, ends_at, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.DoctorID, a.ScheduledAt, a.EndsAt, a.Status, a.Notes,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if db.IsExclusionViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

// lockDoctor takes the per-doctor advisory lock for the current transaction.
func lockDoctor(ctx context.Context, q db.Querier, doctorID uuid.UUID) error {
	if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`, doctorID); err != nil {
		return fmt.Errorf("lock doctor: %w", err)
	}
	return nil
}

// hasConflict reports whether another scheduled appointment of the doctor
// starts inside ConflictWindow(start, end).
func hasConflict(ctx context.Context, q db.Querier, doctorID uuid.UUID, start, end time.Time, excludeID uuid.UUID) (bool, error) {
	from, to := ConflictWindow(start, end)
	var exists bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM appointments
			WHERE doctor_id = $1
			  AND status = 'scheduled'
			  AND scheduled_at >= $2
			  AND scheduled_at < $3
			  AND id <> $4)`,
		doctorID, from, to, excludeID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check conflict: %w", err)
	}
	return exists, nil
}

func (l *ledgerPG) Reserve(ctx context.Context, a *Appointment) error {
	return db.WithTx(ctx, l.pool, func(ctx context.Context) error {
		q := l.conn(ctx)
		if err := lockDoctor(ctx, q, a.DoctorID); err != nil {
			return err
		}
		busy, err := hasConflict(ctx, q, a.DoctorID, a.ScheduledAt, a.EndsAt, uuid.Nil)
		if err != nil {
			return err
		}
		if busy {
			return ErrConflict
		}
		a.Status = StatusScheduled
		return l.Insert(ctx, a)
	})
}

func (l *ledgerPG) Move(ctx context.Context, id uuid.UUID, start, end time.Time) (*Appointment, error) {
	var moved *Appointment
	err := db.WithTx(ctx, l.pool, func(ctx context.Context) error {
		q := l.conn(ctx)
		var doctorID uuid.UUID
		err := q.QueryRow(ctx, `SELECT doctor_id FROM appointments WHERE id = $1`, id).Scan(&doctorID)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAppointmentNotFound
		}
		if err != nil {
			return fmt.Errorf("load appointment: %w", err)
		}
		if err := lockDoctor(ctx, q, doctorID); err != nil {
			return err
		}

		cur, err := scanAppointment(q.QueryRow(ctx, `SELECT `+apptCols+` FROM appointments WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		if cur.Status != StatusScheduled {
			return ErrNotScheduled.WithDetail("appointment is %s", cur.Status)
		}
		busy, err := hasConflict(ctx, q, doctorID, start, end, id)
		if err != nil {
			return err
		}
		if busy {
			return ErrConflict
		}

		moved, err = scanAppointment(q.QueryRow(ctx, `
			UPDATE appointments SET scheduled_at = $2, ends_at = $3, updated_at = NOW()
			WHERE id = $1
			RETURNING `+apptCols, id, start, end))
		if db.IsExclusionViolation(err) {
			return ErrConflict
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return moved, nil
}

func (l *ledgerPG) Update(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	a, err := scanAppointment(l.conn(ctx).QueryRow(ctx, `
		UPDATE appointments SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING `+apptCols, id, from, to))
	if errors.Is(err, ErrAppointmentNotFound) {
		cur, getErr := l.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, ErrNotScheduled.WithDetail("appointment is already %s", cur.Status)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (l *ledgerPG) CompleteEndedBefore(ctx context.Context, t time.Time) (int64, error) {
	tag, err := l.conn(ctx).Exec(ctx, `
		UPDATE appointments SET status = 'completed', updated_at = NOW()
		WHERE status = 'scheduled' AND ends_at < $1`, t)
	if err != nil {
		return 0, fmt.Errorf("complete appointments: %w", err)
	}
	return tag.RowsAffected(), nil
}
