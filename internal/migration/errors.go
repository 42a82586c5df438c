package migration

import "github.com/tphakala/eventlog-migrator/internal/errors"

// Per-item outcomes are reported through Outcome; these sentinels are what
// the outcome's error wraps so callers can match them with errors.Is.
var (
	// ErrNoMapping means no identifier field is configured or resolvable.
	ErrNoMapping = errors.NewStd("no identifier mapping available")
	// ErrAmbiguousMapping means auto-resolution found zero or several candidates.
	ErrAmbiguousMapping = errors.NewStd("identifier mapping is ambiguous")
	// ErrMalformedPayload means the serialized event could not be interpreted.
	ErrMalformedPayload = errors.NewStd("malformed payload")
	// ErrDuplicate means the event already exists in the target store.
	ErrDuplicate = errors.NewStd("event already migrated")
	// ErrDrainTimeout means queued work was abandoned during shutdown.
	ErrDrainTimeout = errors.NewStd("dispatcher drain timed out")
	// ErrPipelineStopped is returned when work is submitted after shutdown.
	ErrPipelineStopped = errors.NewStd("pipeline stopped")
)

const componentMigration = "migration"
