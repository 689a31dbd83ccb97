package repository

import (
	"context"
	"time"

	"fxdesk/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MarginRepository is the interval store of the margin timeline
type MarginRepository interface {
	Create(ctx context.Context, margin *model.Margin) error
	Update(ctx context.Context, margin *model.Margin) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Margin, error)
	// List returns margins newest first; a non-nil activeOn keeps only those effective that day.
	List(ctx context.Context, activeOn *time.Time) ([]model.Margin, error)
	// ListTimeline returns every margin ordered by start date ascending.
	ListTimeline(ctx context.Context) ([]model.Margin, error)
	// LockTimeline serialises timeline writers until the surrounding transaction ends.
	LockTimeline(ctx context.Context) error
}

type marginRepository struct {
	db      *gorm.DB
	lockKey int64
}

func NewMarginRepository(db *gorm.DB, lockKey int64) MarginRepository {
	return &marginRepository{db: db, lockKey: lockKey}
}

func (r *marginRepository) Create(ctx context.Context, margin *model.Margin) error {
	return GetDB(ctx, r.db).Omit(clause.Associations).Create(margin).Error
}

func (r *marginRepository) Update(ctx context.Context, margin *model.Margin) error {
	return GetDB(ctx, r.db).Omit(clause.Associations).Save(margin).Error
}

func (r *marginRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.Margin{}).Error
}

func (r *marginRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Margin, error) {
	var margin model.Margin
	if err := GetDB(ctx, r.db).Preload("Owner").First(&margin, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &margin, nil
}

func (r *marginRepository) List(ctx context.Context, activeOn *time.Time) ([]model.Margin, error) {
	var margins []model.Margin
	query := GetDB(ctx, r.db).Preload("Owner")
	if activeOn != nil {
		// same predicate as Window.Contains; memMarginRepo.List in service tests mirrors it
		query = query.Where("start_date <= ? AND (end_date IS NULL OR end_date >= ?)", *activeOn, *activeOn)
	}
	if err := query.Order("start_date desc").Find(&margins).Error; err != nil {
		return nil, err
	}
	return margins, nil
}

func (r *marginRepository) ListTimeline(ctx context.Context) ([]model.Margin, error) {
	var margins []model.Margin
	if err := GetDB(ctx, r.db).Preload("Owner").Order("start_date asc").Find(&margins).Error; err != nil {
		return nil, err
	}
	return margins, nil
}

// LockTimeline takes a transaction scoped advisory lock; postgres releases it on commit or rollback.
func (r *marginRepository) LockTimeline(ctx context.Context) error {
	if !InTx(ctx) {
		return ErrNoTransaction
	}
	return GetDB(ctx, r.db).Exec("SELECT pg_advisory_xact_lock(?)", r.lockKey).Error
}
