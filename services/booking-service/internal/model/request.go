package model

import "time"

const (
	RequestStatusPending  = "pending"
	RequestStatusBooked   = "booked"
	RequestStatusRejected = "rejected"
)

const (
	CommunicationChat  = "chat"
	CommunicationCall  = "call"
	CommunicationVideo = "video"
)

// BookingRequest is a user's consultation request against an astrologer's
// schedule. StartTime/EndTime are empty until a slot is selected; once booked
// they hold the exact slot boundaries in "HH:MM" form.
type BookingRequest struct {
	ID                string
	UserID            string
	AstrologerID      string
	ScheduleID        string
	PackageID         string
	TransactionID     string
	CommunicationType string
	StartTime         string
	EndTime           string
	Status            string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
