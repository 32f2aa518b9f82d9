package topic

import "fmt"

// ValidationError reports a malformed or missing field. It is returned
// synchronously, before any state is mutated.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid topic: %s %s", e.Field, e.Reason)
}

// NotFoundError reports an operation on a topic id absent from the
// local cache.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("topic %s not found", e.ID)
}

// InvalidStageError reports an attempt to complete a review on a topic
// whose reviews are all done. Callers should treat it as a defensive
// no-op: the topic is left unchanged.
type InvalidStageError struct {
	ID    string
	Stage int
}

func (e *InvalidStageError) Error() string {
	return fmt.Sprintf("topic %s already fully reviewed (stage %d)", e.ID, e.Stage)
}
