package audit

import (
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/sheetloader/internal/entities"
)

const defaultPageSize = 50

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Insert saves an event, stamping CreatedAt when the caller did not.
func (r *Repository) Insert(event *entities.AuditEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	return r.db.Create(event).Error
}

// List returns one page of events matching filter, newest first, and the
// total number of matches.
func (r *Repository) List(filter entities.AuditFilter, limit, offset int) ([]entities.AuditEvent, int64, error) {
	query := r.filtered(filter)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit <= 0 {
		limit = defaultPageSize
	}
	if offset < 0 {
		offset = 0
	}

	var events []entities.AuditEvent
	err := query.Order("created_at DESC").Order("id DESC").Limit(limit).Offset(offset).Find(&events).Error
	return events, total, err
}

func (r *Repository) filtered(f entities.AuditFilter) *gorm.DB {
	query := r.db.Model(&entities.AuditEvent{})
	if f.Type != "" {
		query = query.Where("event_type = ?", f.Type)
	}
	if f.Origin != "" {
		query = query.Where("origin = ?", f.Origin)
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.Class != "" {
		query = query.Where("entity_type = ?", f.Class)
	}
	if f.RunID != 0 {
		query = query.Where("import_run_id = ?", f.RunID)
	}
	return query
}

// DeleteBefore removes events created before cutoff and returns how many
// were deleted.
func (r *Repository) DeleteBefore(cutoff time.Time) (int64, error) {
	result := r.db.Where("created_at < ?", cutoff).Delete(&entities.AuditEvent{})
	return result.RowsAffected, result.Error
}
