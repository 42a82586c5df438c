package entities

import "time"

// RunStatus is the lifecycle state of a migration run.
type RunStatus string

const (
	RunStatusIdle        RunStatus = "idle"
	RunStatusRunning     RunStatus = "running"
	RunStatusCompleted   RunStatus = "completed"   // finished with zero failures
	RunStatusFailed      RunStatus = "failed"      // finished with failures or aborted by an error
	RunStatusInterrupted RunStatus = "interrupted" // cancelled, or a stale running row was recovered
)

// NoCheckpoint means no legacy record has been processed yet.
const NoCheckpoint int64 = -1

// MigrationState holds the checkpoint and the summary of the latest run.
// This is a singleton table (only one row with ID=1).
type MigrationState struct {
	ID               uint      `gorm:"primaryKey;check:id = 1"`
	Status           RunStatus `gorm:"type:varchar(20);not null;default:'idle'"`
	RunID            string    `gorm:"type:varchar(36)"`
	LastProcessedID  int64     `gorm:"not null;default:-1"`
	StartedAt        *time.Time
	CompletedAt      *time.Time
	Converted        int64
	SkippedNoMapping int64
	Failed           int64
	Duplicates       int64
	ErrorMessage     string    `gorm:"type:text"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for GORM.
func (MigrationState) TableName() string {
	return "migration_state"
}

// IsActive reports whether a run holds the state row.
func (m *MigrationState) IsActive() bool {
	return m.Status == RunStatusRunning
}

// Elapsed returns the duration of the latest run, measured to now while it is active.
func (m *MigrationState) Elapsed() time.Duration {
	if m.StartedAt == nil {
		return 0
	}
	if m.CompletedAt == nil {
		return time.Since(*m.StartedAt)
	}
	return m.CompletedAt.Sub(*m.StartedAt)
}

// MigrationFailure records a legacy event that could not be migrated, so an
// operator can inspect it after the run.
type MigrationFailure struct {
	ID                  uint   `gorm:"primaryKey"`
	RunID               string `gorm:"type:varchar(36);index;not null"`
	RecordID            int64  `gorm:"index;not null"`
	Type                string `gorm:"size:255"`
	AggregateIdentifier string `gorm:"size:255"`
	SequenceNumber      int64
	Outcome             string    `gorm:"type:varchar(20);not null"`
	Reason              string    `gorm:"type:text"`
	CreatedAt           time.Time `gorm:"autoCreateTime"`
}

// TableName returns the table name for GORM.
func (MigrationFailure) TableName() string {
	return "migration_failures"
}
