package datastore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tphakala/eventlog-migrator/internal/datastore/entities"
	"github.com/tphakala/eventlog-migrator/internal/errors"
)

const failureInsertBatch = 100

// RunSummary is what FinishRun persists for a run.
type RunSummary struct {
	RunID            string
	Status           entities.RunStatus
	Converted        int64
	SkippedNoMapping int64
	Failed           int64
	Duplicates       int64
	Err              error
}

// StateManager persists the checkpoint and the run lifecycle in the
// migration_state singleton row. Updates are guarded WHERE clauses so two
// processes sharing a target database cannot both run.
type StateManager struct {
	db *gorm.DB
	mu sync.Mutex
}

// NewStateManager creates a state manager on the target database.
func NewStateManager(db *gorm.DB) *StateManager {
	return &StateManager{db: db}
}

// Initialize creates the bookkeeping tables and the singleton row.
func (m *StateManager) Initialize(ctx context.Context) error {
	db := m.db.WithContext(ctx)
	if err := db.AutoMigrate(&entities.MigrationState{}, &entities.MigrationFailure{}); err != nil {
		return dbError(err, "migrate_state_tables").Build()
	}

	initial := entities.MigrationState{
		ID:              1,
		Status:          entities.RunStatusIdle,
		LastProcessedID: entities.NoCheckpoint,
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&initial).Error; err != nil {
		return dbError(err, "create_state_row").Build()
	}
	return nil
}

// GetState returns the singleton row.
func (m *StateManager) GetState(ctx context.Context) (*entities.MigrationState, error) {
	var state entities.MigrationState
	if err := m.db.WithContext(ctx).First(&state, 1).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New(fmt.Errorf("migration state not initialized: %w", err)).
				Component("datastore").
				Category(errors.CategoryNotFound).
				Build()
		}
		return nil, dbError(err, "get_state").Build()
	}
	return &state, nil
}

// LoadCheckpoint returns the highest legacy record id persisted as processed,
// or entities.NoCheckpoint.
func (m *StateManager) LoadCheckpoint(ctx context.Context) (int64, error) {
	state, err := m.GetState(ctx)
	if err != nil {
		return entities.NoCheckpoint, err
	}
	return state.LastProcessedID, nil
}

// StoreCheckpoint raises the checkpoint to id. A lower or equal id is
// ignored, which keeps the checkpoint monotonic across concurrent callers
// and across runs.
func (m *StateManager) StoreCheckpoint(ctx context.Context, id int64) error {
	result := m.db.WithContext(ctx).Model(&entities.MigrationState{}).
		Where("id = 1 AND last_processed_id < ?", id).
		Update("last_processed_id", id)
	if result.Error != nil {
		return dbError(result.Error, "store_checkpoint").Context("checkpoint", id).Build()
	}
	return nil
}

// BeginRun marks runID as the active run and resets the run counters.
// It fails with a state error while another run is active.
func (m *StateManager) BeginRun(ctx context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	result := m.db.WithContext(ctx).Model(&entities.MigrationState{}).
		Where("id = 1 AND status <> ?", entities.RunStatusRunning).
		Updates(map[string]any{
			"status":             entities.RunStatusRunning,
			"run_id":             runID,
			"started_at":         &now,
			"completed_at":       nil,
			"converted":          0,
			"skipped_no_mapping": 0,
			"failed":             0,
			"duplicates":         0,
			"error_message":      "",
		})
	if result.Error != nil {
		return dbError(result.Error, "begin_run").Build()
	}

	if result.RowsAffected == 0 {
		current, err := m.GetState(ctx)
		if err != nil {
			return err
		}
		return errors.Newf("cannot start run: run %s is still %s", current.RunID, current.Status).
			Component("datastore").
			Category(errors.CategoryState).
			Context("active_run_id", current.RunID).
			Build()
	}
	return nil
}

// RecoverStaleRun marks a run left in the running state by a crashed
// process as interrupted. It reports whether a row was changed.
func (m *StateManager) RecoverStaleRun(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	result := m.db.WithContext(ctx).Model(&entities.MigrationState{}).
		Where("id = 1 AND status = ?", entities.RunStatusRunning).
		Updates(map[string]any{
			"status":        entities.RunStatusInterrupted,
			"completed_at":  &now,
			"error_message": "recovered stale run",
		})
	if result.Error != nil {
		return false, dbError(result.Error, "recover_stale_run").Build()
	}
	return result.RowsAffected > 0, nil
}

// FinishRun records the outcome of the active run. The update only applies
// while summary.RunID still owns the state row.
func (m *StateManager) FinishRun(ctx context.Context, summary *RunSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	message := ""
	if summary.Err != nil {
		message = summary.Err.Error()
	}

	now := time.Now()
	result := m.db.WithContext(ctx).Model(&entities.MigrationState{}).
		Where("id = 1 AND run_id = ? AND status = ?", summary.RunID, entities.RunStatusRunning).
		Updates(map[string]any{
			"status":             summary.Status,
			"completed_at":       &now,
			"converted":          summary.Converted,
			"skipped_no_mapping": summary.SkippedNoMapping,
			"failed":             summary.Failed,
			"duplicates":         summary.Duplicates,
			"error_message":      message,
		})
	if result.Error != nil {
		return dbError(result.Error, "finish_run").Context("run_id", summary.RunID).Build()
	}
	if result.RowsAffected == 0 {
		return errors.Newf("cannot finish run %s: it is not the active run", summary.RunID).
			Component("datastore").
			Category(errors.CategoryState).
			Build()
	}
	return nil
}

// RecordFailures stores failed records for later inspection.
func (m *StateManager) RecordFailures(ctx context.Context, failures []entities.MigrationFailure) error {
	if len(failures) == 0 {
		return nil
	}
	if err := m.db.WithContext(ctx).CreateInBatches(failures, failureInsertBatch).Error; err != nil {
		return dbError(err, "record_failures").Context("count", len(failures)).Build()
	}
	return nil
}

// Failures lists the failures recorded for runID, oldest record first.
func (m *StateManager) Failures(ctx context.Context, runID string, limit int) ([]entities.MigrationFailure, error) {
	query := m.db.WithContext(ctx).Where("run_id = ?", runID).Order("record_id")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var failures []entities.MigrationFailure
	err := query.Find(&failures).Error
	if err != nil {
		return nil, dbError(err, "list_failures").Context("run_id", runID).Build()
	}
	return failures, nil
}
