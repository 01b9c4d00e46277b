package imports

import (
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/sheetloader/internal/bulkloader"
	"github.com/mrlokans/sheetloader/internal/entities"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Start records a new pending run.
func (r *Repository) Start(run *entities.ImportRun) error {
	if run.Status == "" {
		run.Status = entities.ImportStatusPending
	}
	return r.db.Create(run).Error
}

// MarkRunning flags a run as picked up.
func (r *Repository) MarkRunning(id uint) error {
	now := time.Now()
	return r.db.Model(&entities.ImportRun{}).Where("id = ?", id).Updates(map[string]any{
		"status":     entities.ImportStatusRunning,
		"started_at": &now,
	}).Error
}

// Complete stores the counts of a finished load.
func (r *Repository) Complete(id uint, result *bulkloader.Result) error {
	now := time.Now()
	return r.db.Model(&entities.ImportRun{}).Where("id = ?", id).Updates(map[string]any{
		"status":       entities.ImportStatusCompleted,
		"preview":      result.Preview(),
		"created":      result.CreatedCount(),
		"updated":      result.UpdatedCount(),
		"deleted":      result.DeletedCount(),
		"message":      result.Message(),
		"completed_at": &now,
	}).Error
}

// Fail stores the error of a failed load.
func (r *Repository) Fail(id uint, loadErr error) error {
	now := time.Now()
	return r.db.Model(&entities.ImportRun{}).Where("id = ?", id).Updates(map[string]any{
		"status":       entities.ImportStatusFailed,
		"error":        loadErr.Error(),
		"completed_at": &now,
	}).Error
}

// SetTaskID links a run to its queued task.
func (r *Repository) SetTaskID(id uint, taskID string) error {
	return r.db.Model(&entities.ImportRun{}).Where("id = ?", id).Update("task_id", taskID).Error
}

func (r *Repository) GetByID(id uint) (*entities.ImportRun, error) {
	var run entities.ImportRun
	if err := r.db.First(&run, id).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *Repository) GetByTaskID(taskID string) (*entities.ImportRun, error) {
	var run entities.ImportRun
	if err := r.db.Where("task_id = ?", taskID).First(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// Recent returns runs newest first, optionally for one class.
func (r *Repository) Recent(class string, limit, offset int) ([]entities.ImportRun, int64, error) {
	var runs []entities.ImportRun
	var total int64

	query := r.db.Model(&entities.ImportRun{})
	if class != "" {
		query = query.Where("class = ?", class)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	err := query.Order("created_at DESC").Order("id DESC").Limit(limit).Offset(offset).Find(&runs).Error
	return runs, total, err
}

// StoredPathsBefore lists upload paths of finished runs older than cutoff.
func (r *Repository) StoredPathsBefore(cutoff time.Time) ([]string, error) {
	var paths []string
	err := r.db.Model(&entities.ImportRun{}).
		Where("created_at < ? AND stored_path <> '' AND status IN ?", cutoff,
			[]entities.ImportStatus{entities.ImportStatusCompleted, entities.ImportStatusFailed}).
		Pluck("stored_path", &paths).Error
	return paths, err
}

// ClearStoredPath forgets an upload once it has been removed.
func (r *Repository) ClearStoredPath(path string) error {
	return r.db.Model(&entities.ImportRun{}).Where("stored_path = ?", path).Update("stored_path", "").Error
}
