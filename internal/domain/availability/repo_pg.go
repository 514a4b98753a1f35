package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medicall/booking/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *repoPG) Get(ctx context.Context, doctorID uuid.UUID) (Template, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT weekday, is_available, open_minute, close_minute
		FROM doctor_availability
		WHERE doctor_id = $1`, doctorID)
	if err != nil {
		return nil, fmt.Errorf("query availability: %w", err)
	}
	defer rows.Close()

	t := make(Template, 7)
	for rows.Next() {
		var (
			weekday     int16
			available   bool
			open, close *int16
		)
		if err := rows.Scan(&weekday, &available, &open, &close); err != nil {
			return nil, fmt.Errorf("scan availability: %w", err)
		}
		e := Entry{Weekday: time.Weekday(weekday), IsAvailable: available}
		if open != nil {
			v := TimeOfDay(*open)
			e.OpenTime = &v
		}
		if close != nil {
			v := TimeOfDay(*close)
			e.CloseTime = &v
		}
		t[e.Weekday] = e
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate availability: %w", err)
	}
	if len(t) == 0 {
		return nil, ErrDoctorNotFound
	}
	return t, nil
}

func (r *repoPG) Replace(ctx context.Context, doctorID uuid.UUID, t Template) error {
	var (
		days      []int16
		available []bool
		opens     []*int16
		closes    []*int16
	)
	for d := time.Sunday; d <= time.Saturday; d++ {
		e := t[d]
		days = append(days, int16(d))
		available = append(available, e.IsAvailable)
		opens = append(opens, minutes(e.OpenTime))
		closes = append(closes, minutes(e.CloseTime))
	}

	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE doctor_availability AS a
		SET is_available = v.is_available, open_minute = v.open_minute, close_minute = v.close_minute
		FROM unnest($2::smallint[], $3::boolean[], $4::smallint[], $5::smallint[])
			AS v(weekday, is_available, open_minute, close_minute)
		WHERE a.doctor_id = $1 AND a.weekday = v.weekday`,
		doctorID, days, available, opens, closes,
	)
	if err != nil {
		return fmt.Errorf("update availability: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDoctorNotFound
	}
	return nil
}

func (r *repoPG) Seed(ctx context.Context, doctorID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO doctor_availability (doctor_id, weekday, is_available)
		SELECT $1, d, FALSE FROM generate_series(0, 6) AS d
		ON CONFLICT (doctor_id, weekday) DO NOTHING`, doctorID)
	if err != nil {
		return fmt.Errorf("seed availability: %w", err)
	}
	return nil
}

func minutes(t *TimeOfDay) *int16 {
	if t == nil {
		return nil
	}
	v := int16(*t)
	return &v
}
