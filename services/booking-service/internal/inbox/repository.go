package inbox

import (
	"context"

	"github.com/astromitra/astromitra/libs/db"
	"github.com/astromitra/astromitra/services/booking-service/internal/storage"
)

// Repository deduplicates consumed events. Record returns false for an event
// id already seen, so redeliveries are dropped before the handler runs.
type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Record(ctx context.Context, eventID, eventType string) (bool, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
	`, eventID, eventType)
	if err == nil {
		return true, nil
	}
	if storage.IsConflict(err) {
		return false, nil
	}
	return false, err
}
