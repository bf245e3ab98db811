package interfaces

// Event notifies subscribers that a teacher's session row changed.
// It deliberately carries no row data: the payload of a push channel is
// never trusted as complete, so consumers must re-read the full row.
type Event struct {
	TeacherID string
	Seq       uint64
}

// Subscription is a cancellable stream of change events for one teacher.
type Subscription interface {
	// Events yields change notifications. The channel is closed when the
	// subscription is cancelled or the feed shuts down.
	Events() <-chan Event

	// Cancel releases the subscription. Safe to call more than once.
	Cancel()
}

// ChangeFeed fans out per-teacher change notifications to subscribers.
type ChangeFeed interface {
	// Subscribe registers for change events on one teacher's row.
	Subscribe(teacherID string) Subscription

	// Publish notifies all subscribers for a teacher. Never blocks:
	// subscribers that cannot keep up miss events and recover through
	// their periodic re-sync.
	Publish(teacherID string)
}
