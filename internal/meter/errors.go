package meter

import "fmt"

// Failure stages for storage errors, so callers know whether the detail
// record or the aggregate fold failed and can replay accordingly.
const (
	StageRecord    = "record"
	StageAggregate = "aggregate"
)

// InvalidUsageError reports caller-supplied usage that fails validation.
// Nothing is written when this is returned.
type InvalidUsageError struct {
	RequestID string
	UserID    string
	Field     string
	Reason    string
}

func (e *InvalidUsageError) Error() string {
	return fmt.Sprintf("invalid usage (request %q, user %q): %s %s",
		e.RequestID, e.UserID, e.Field, e.Reason)
}

// StorageError reports a durable-store failure after the retry budget is
// exhausted. Stage identifies whether the record write or the aggregate
// fold failed.
type StorageError struct {
	Stage     string
	RequestID string
	UserID    string
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure at %s stage (request %q, user %q): %v",
		e.Stage, e.RequestID, e.UserID, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
