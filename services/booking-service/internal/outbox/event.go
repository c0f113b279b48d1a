package outbox

// Event is the domain event envelope written to the outbox table. The Kafka
// topic name equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Event types emitted by this service.
const (
	EventRequestCreated = "booking.request.created.v1"
	EventSlotSelected   = "booking.slot.selected.v1"
	EventSlotReset      = "booking.slot.reset.v1"
	EventScheduleOpened = "booking.schedule.created.v1"
)
