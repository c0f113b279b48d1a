package storage

import (
	"context"

	"github.com/astromitra/astromitra/libs/db"
	"github.com/astromitra/astromitra/services/booking-service/internal/model"
)

// PackageRepository holds the catalog package read-model. Rows arrive via
// catalog events; this service never mutates them on its own.
type PackageRepository struct {
	pool *db.Pool
}

func NewPackageRepository(pool *db.Pool) *PackageRepository {
	return &PackageRepository{pool: pool}
}

func (r *PackageRepository) GetByID(ctx context.Context, id string) (model.Package, error) {
	var p model.Package
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, type, duration_minutes, is_active, updated_at
		FROM packages
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Type, &p.DurationMinutes, &p.IsActive, &p.UpdatedAt)
	if err != nil {
		return model.Package{}, err
	}
	return p, nil
}

func (r *PackageRepository) Upsert(ctx context.Context, p model.Package) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO packages (id, name, type, duration_minutes, is_active, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
			type = EXCLUDED.type,
			duration_minutes = EXCLUDED.duration_minutes,
			is_active = EXCLUDED.is_active,
			updated_at = now()
	`, p.ID, p.Name, p.Type, p.DurationMinutes, p.IsActive)
	return err
}
