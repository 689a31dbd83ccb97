package repository

import (
	"context"

	"fxdesk/internal/model"

	"gorm.io/gorm"
)

// AuditFilter narrows audit listings; zero fields are ignored.
type AuditFilter struct {
	EntityID string
	Action   string
}

func (f AuditFilter) scope(db *gorm.DB) *gorm.DB {
	if f.EntityID != "" {
		db = db.Where("entity_id = ?", f.EntityID)
	}
	if f.Action != "" {
		db = db.Where("action = ?", f.Action)
	}
	return db
}

// AuditRepository stores the trail of margin timeline changes
type AuditRepository interface {
	// Log writes entry in the transaction carried by ctx, if any.
	Log(ctx context.Context, entry *model.AuditLog) error
	// List returns matching entries newest first with their users pre-loaded.
	List(ctx context.Context, filter AuditFilter, page, limit int) ([]model.AuditLog, int64, error)
}

type auditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Log(ctx context.Context, entry *model.AuditLog) error {
	return GetDB(ctx, r.db).Create(entry).Error
}

func (r *auditRepository) List(ctx context.Context, filter AuditFilter, page, limit int) ([]model.AuditLog, int64, error) {
	var total int64
	if err := GetDB(ctx, r.db).Model(&model.AuditLog{}).Scopes(filter.scope).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var logs []model.AuditLog
	err := GetDB(ctx, r.db).Scopes(filter.scope).
		Preload("User").
		Order("created_at desc").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}
