package model

import "time"

// PackageType distinguishes the two catalog package families a schedule can
// be published for. A schedule carries exactly one package reference.
const (
	PackageTypeService  = "service"
	PackageTypeMarriage = "marriage"
)

// Schedule is one astrologer availability window: a calendar date plus a
// wall-clock start/end pair, scoped to a package. Start/End are stored in the
// canonical "HH:MM" form.
type Schedule struct {
	ID           string
	AstrologerID string
	PackageID    string
	PackageType  string
	Date         time.Time
	StartTime    string
	EndTime      string
	IsAvailable  bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
