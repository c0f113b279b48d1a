package model

import "time"

// Package is the local read-model of a catalog package. The catalog service
// owns these; this service keeps a copy current from catalog events and only
// ever reads duration and active status.
type Package struct {
	ID              string
	Name            string
	Type            string
	DurationMinutes int
	IsActive        bool
	UpdatedAt       time.Time
}
