package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/astromitra/astromitra/libs/db"
	"github.com/astromitra/astromitra/services/booking-service/internal/model"
)

type ScheduleRepository struct {
	pool *db.Pool
}

func NewScheduleRepository(pool *db.Pool) *ScheduleRepository {
	return &ScheduleRepository{pool: pool}
}

func (r *ScheduleRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

const scheduleColumns = `id, astrologer_id, package_id, package_type, date, start_time, end_time, is_available, created_at, updated_at`

func scanSchedule(row pgx.Row) (model.Schedule, error) {
	var s model.Schedule
	err := row.Scan(
		&s.ID,
		&s.AstrologerID,
		&s.PackageID,
		&s.PackageType,
		&s.Date,
		&s.StartTime,
		&s.EndTime,
		&s.IsAvailable,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	return s, err
}

func (r *ScheduleRepository) Create(ctx context.Context, tx pgx.Tx, s *model.Schedule) (string, error) {
	var id string
	err := tx.QueryRow(ctx, `
		INSERT INTO schedules (astrologer_id, package_id, package_type, date, start_time, end_time, is_available)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, s.AstrologerID, s.PackageID, s.PackageType, s.Date, s.StartTime, s.EndTime, s.IsAvailable).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *ScheduleRepository) GetByID(ctx context.Context, id string) (model.Schedule, error) {
	return scanSchedule(r.pool.QueryRow(ctx, `
		SELECT `+scheduleColumns+`
		FROM schedules
		WHERE id = $1
	`, id))
}

// ExistsTuple reports whether another schedule already holds the exact
// (astrologer, package, date, start, end) tuple. excludeID skips the record
// being updated; pass "" on create.
func (r *ScheduleRepository) ExistsTuple(ctx context.Context, astrologerID, packageID, packageType string, date time.Time, startTime, endTime, excludeID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM schedules
			WHERE astrologer_id = $1
				AND package_id = $2
				AND package_type = $3
				AND date = $4
				AND start_time = $5
				AND end_time = $6
				AND ($7 = '' OR id::text <> $7)
		)
	`, astrologerID, packageID, packageType, date, startTime, endTime, excludeID).Scan(&exists)
	return exists, err
}

// Update writes the full effective record. The handler merges supplied fields
// over the stored ones and validates before calling, so this is a plain write.
func (r *ScheduleRepository) Update(ctx context.Context, tx pgx.Tx, s model.Schedule) error {
	tag, err := tx.Exec(ctx, `
		UPDATE schedules
		SET astrologer_id = $2,
			package_id = $3,
			package_type = $4,
			date = $5,
			start_time = $6,
			end_time = $7,
			is_available = $8,
			updated_at = now()
		WHERE id = $1
	`, s.ID, s.AstrologerID, s.PackageID, s.PackageType, s.Date, s.StartTime, s.EndTime, s.IsAvailable)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ScheduleRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ScheduleFilter narrows List. Zero values mean "any".
type ScheduleFilter struct {
	AstrologerID string
	PackageID    string
	Date         *time.Time
	OnlyOpen     bool
}

// List returns a page of schedules plus exact totals. The count runs with the
// same WHERE clause as the page query so filtered totals are never inflated.
func (r *ScheduleRepository) List(ctx context.Context, f ScheduleFilter, page Page) ([]model.Schedule, PageMeta, error) {
	where := `
		WHERE ($1 = '' OR astrologer_id = $1)
			AND ($2 = '' OR package_id = $2)
			AND ($3::date IS NULL OR date = $3)
			AND (NOT $4 OR is_available)
	`
	args := []any{f.AstrologerID, f.PackageID, f.Date, f.OnlyOpen}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM schedules`+where, args...).Scan(&total); err != nil {
		return nil, PageMeta{}, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+scheduleColumns+`
		FROM schedules`+where+`
		ORDER BY date, start_time
		LIMIT $5 OFFSET $6
	`, append(args, page.Limit, page.Offset())...)
	if err != nil {
		return nil, PageMeta{}, err
	}
	defer rows.Close()

	var schedules []model.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, PageMeta{}, err
		}
		schedules = append(schedules, s)
	}
	if rows.Err() != nil {
		return nil, PageMeta{}, rows.Err()
	}
	return schedules, NewPageMeta(page, total), nil
}
