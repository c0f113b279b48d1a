package storage

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/astromitra/astromitra/libs/db"
	"github.com/astromitra/astromitra/services/booking-service/internal/model"
)

type RequestRepository struct {
	pool *db.Pool
}

func NewRequestRepository(pool *db.Pool) *RequestRepository {
	return &RequestRepository{pool: pool}
}

func (r *RequestRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

const requestColumns = `id, user_id, astrologer_id, schedule_id, package_id, transaction_id, communication_type, start_time, end_time, status, created_at, updated_at`

func scanRequest(row pgx.Row) (model.BookingRequest, error) {
	var req model.BookingRequest
	err := row.Scan(
		&req.ID,
		&req.UserID,
		&req.AstrologerID,
		&req.ScheduleID,
		&req.PackageID,
		&req.TransactionID,
		&req.CommunicationType,
		&req.StartTime,
		&req.EndTime,
		&req.Status,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	return req, err
}

func (r *RequestRepository) Create(ctx context.Context, tx pgx.Tx, req *model.BookingRequest) (string, error) {
	var id string
	err := tx.QueryRow(ctx, `
		INSERT INTO booking_requests
			(user_id, astrologer_id, schedule_id, package_id, transaction_id, communication_type, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending')
		RETURNING id
	`, req.UserID, req.AstrologerID, req.ScheduleID, req.PackageID, req.TransactionID, req.CommunicationType).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetForAstrologer loads a request only when it belongs to the given
// astrologer scope; anything else answers as not found.
func (r *RequestRepository) GetForAstrologer(ctx context.Context, id, astrologerID string) (model.BookingRequest, error) {
	return scanRequest(r.pool.QueryRow(ctx, `
		SELECT `+requestColumns+`
		FROM booking_requests
		WHERE id = $1 AND astrologer_id = $2
	`, id, astrologerID))
}

// BookedSlot is an exact slot pair currently held by a booked request.
type BookedSlot struct {
	StartTime string
	EndTime   string
}

// ListBookedSlots returns the booked pairs for a schedule. excludeRequestID
// leaves out one request's own booking, which reset-with-reschedule uses so a
// request does not collide with the slot it is about to give up.
func (r *RequestRepository) ListBookedSlots(ctx context.Context, scheduleID, excludeRequestID string) ([]BookedSlot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT start_time, end_time
		FROM booking_requests
		WHERE schedule_id = $1
			AND status = 'booked'
			AND start_time <> ''
			AND ($2 = '' OR id::text <> $2)
		ORDER BY start_time
	`, scheduleID, excludeRequestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []BookedSlot
	for rows.Next() {
		var s BookedSlot
		if err := rows.Scan(&s.StartTime, &s.EndTime); err != nil {
			return nil, err
		}
		slots = append(slots, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return slots, nil
}

// MarkBooked sets the slot pair and flips status to booked. The partial
// unique index on (schedule_id, start_time, end_time) WHERE status='booked'
// makes the loser of a select race fail with a conflict here.
func (r *RequestRepository) MarkBooked(ctx context.Context, tx pgx.Tx, id, startTime, endTime string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE booking_requests
		SET start_time = $2,
			end_time = $3,
			status = 'booked',
			updated_at = now()
		WHERE id = $1
	`, id, startTime, endTime)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// MarkPending clears the slot pair and returns the request to pending.
func (r *RequestRepository) MarkPending(ctx context.Context, tx pgx.Tx, id string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE booking_requests
		SET start_time = '',
			end_time = '',
			status = 'pending',
			updated_at = now()
		WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// RequestFilter narrows List. Zero values mean "any".
type RequestFilter struct {
	AstrologerID string
	UserID       string
	ScheduleID   string
	Status       string
}

func (r *RequestRepository) List(ctx context.Context, f RequestFilter, page Page) ([]model.BookingRequest, PageMeta, error) {
	where := `
		WHERE ($1 = '' OR astrologer_id = $1)
			AND ($2 = '' OR user_id = $2)
			AND ($3 = '' OR schedule_id::text = $3)
			AND ($4 = '' OR status = $4)
	`
	args := []any{f.AstrologerID, f.UserID, f.ScheduleID, f.Status}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM booking_requests`+where, args...).Scan(&total); err != nil {
		return nil, PageMeta{}, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+requestColumns+`
		FROM booking_requests`+where+`
		ORDER BY created_at DESC
		LIMIT $5 OFFSET $6
	`, append(args, page.Limit, page.Offset())...)
	if err != nil {
		return nil, PageMeta{}, err
	}
	defer rows.Close()

	var requests []model.BookingRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, PageMeta{}, err
		}
		requests = append(requests, req)
	}
	if rows.Err() != nil {
		return nil, PageMeta{}, rows.Err()
	}
	return requests, NewPageMeta(page, total), nil
}
