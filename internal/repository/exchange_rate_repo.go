package repository

import (
	"context"
	"time"

	"fxdesk/internal/model"
	"fxdesk/internal/timeline"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const linkBatchSize = 1000

// RateFilter narrows exchange rate listings; zero fields are ignored.
type RateFilter struct {
	Currency string
	From     *time.Time
	To       *time.Time
}

// ExchangeRateRepository reads daily rate observations and maintains their margin links
type ExchangeRateRepository interface {
	// UnlinkAfter clears links to marginID on observations dated after cutoff.
	UnlinkAfter(ctx context.Context, marginID uuid.UUID, cutoff time.Time) (int64, error)
	// UnlinkBefore clears links to marginID on observations dated before start.
	UnlinkBefore(ctx context.Context, marginID uuid.UUID, start time.Time) (int64, error)
	// UnlinkAll clears every link to marginID.
	UnlinkAll(ctx context.Context, marginID uuid.UUID) (int64, error)
	// LinkWindow points every observation inside w at marginID.
	LinkWindow(ctx context.Context, marginID uuid.UUID, w timeline.Window) (int64, error)
	ListObservations(ctx context.Context) ([]timeline.Observation, error)
	ApplyLinks(ctx context.Context, changes []timeline.LinkChange) error

	List(ctx context.Context, filter RateFilter, page, limit int) ([]model.ExchangeRate, int64, error)
	// LatestDate returns the most recent day not after onOrBefore that has a row for every currency.
	LatestDate(ctx context.Context, onOrBefore time.Time, currencies ...string) (time.Time, error)
	FindByDate(ctx context.Context, day time.Time, currencies ...string) ([]model.ExchangeRate, error)
}

type exchangeRateRepository struct {
	db *gorm.DB
}

func NewExchangeRateRepository(db *gorm.DB) ExchangeRateRepository {
	return &exchangeRateRepository{db: db}
}

// The unlink and link predicates are mirrored by memRateRepo (unlinkWhere, LinkWindow)
// in the service tests; change both together.
func (r *exchangeRateRepository) UnlinkAfter(ctx context.Context, marginID uuid.UUID, cutoff time.Time) (int64, error) {
	res := GetDB(ctx, r.db).Model(&model.ExchangeRate{}).
		Where("margin_id = ? AND date > ?", marginID, cutoff).
		Update("margin_id", nil)
	return res.RowsAffected, res.Error
}

func (r *exchangeRateRepository) UnlinkBefore(ctx context.Context, marginID uuid.UUID, start time.Time) (int64, error) {
	res := GetDB(ctx, r.db).Model(&model.ExchangeRate{}).
		Where("margin_id = ? AND date < ?", marginID, start).
		Update("margin_id", nil)
	return res.RowsAffected, res.Error
}

func (r *exchangeRateRepository) UnlinkAll(ctx context.Context, marginID uuid.UUID) (int64, error) {
	res := GetDB(ctx, r.db).Model(&model.ExchangeRate{}).
		Where("margin_id = ?", marginID).
		Update("margin_id", nil)
	return res.RowsAffected, res.Error
}

func (r *exchangeRateRepository) LinkWindow(ctx context.Context, marginID uuid.UUID, w timeline.Window) (int64, error) {
	query := GetDB(ctx, r.db).Model(&model.ExchangeRate{}).Where("date >= ?", w.Start())
	if end, ok := w.End(); ok {
		query = query.Where("date <= ?", end)
	}
	res := query.Update("margin_id", marginID)
	return res.RowsAffected, res.Error
}

func (r *exchangeRateRepository) ListObservations(ctx context.Context) ([]timeline.Observation, error) {
	var rows []model.ExchangeRate
	if err := GetDB(ctx, r.db).Select("id", "date", "margin_id").Order("date asc").Find(&rows).Error; err != nil {
		return nil, err
	}

	obs := make([]timeline.Observation, 0, len(rows))
	for _, row := range rows {
		obs = append(obs, timeline.Observation{ID: row.ID, Date: row.Date, MarginID: row.MarginID})
	}
	return obs, nil
}

// ApplyLinks issues one UPDATE per target margin and batch of ids.
func (r *exchangeRateRepository) ApplyLinks(ctx context.Context, changes []timeline.LinkChange) error {
	var cleared []uuid.UUID
	byMargin := make(map[uuid.UUID][]uuid.UUID)
	for _, c := range changes {
		if c.MarginID == nil {
			cleared = append(cleared, c.ObservationID)
			continue
		}
		byMargin[*c.MarginID] = append(byMargin[*c.MarginID], c.ObservationID)
	}

	db := GetDB(ctx, r.db)
	if err := updateInBatches(db, cleared, nil); err != nil {
		return err
	}
	for marginID, ids := range byMargin {
		if err := updateInBatches(db, ids, marginID); err != nil {
			return err
		}
	}
	return nil
}

func updateInBatches(db *gorm.DB, ids []uuid.UUID, value interface{}) error {
	for start := 0; start < len(ids); start += linkBatchSize {
		end := min(start+linkBatchSize, len(ids))
		if err := db.Model(&model.ExchangeRate{}).Where("id IN ?", ids[start:end]).Update("margin_id", value).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *exchangeRateRepository) List(ctx context.Context, filter RateFilter, page, limit int) ([]model.ExchangeRate, int64, error) {
	var rates []model.ExchangeRate
	var total int64

	db := GetDB(ctx, r.db)
	if err := db.Model(&model.ExchangeRate{}).Scopes(filter.scope).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.Scopes(filter.scope).Preload("Margin").Order("date desc, currency asc").Offset(offset).Limit(limit).Find(&rates).Error; err != nil {
		return nil, 0, err
	}

	return rates, total, nil
}

func (f RateFilter) scope(db *gorm.DB) *gorm.DB {
	if f.Currency != "" {
		db = db.Where("currency = ?", f.Currency)
	}
	if f.From != nil {
		db = db.Where("date >= ?", *f.From)
	}
	if f.To != nil {
		db = db.Where("date <= ?", *f.To)
	}
	return db
}

func (r *exchangeRateRepository) LatestDate(ctx context.Context, onOrBefore time.Time, currencies ...string) (time.Time, error) {
	var row struct{ Date time.Time }
	err := GetDB(ctx, r.db).Model(&model.ExchangeRate{}).
		Select("date").
		Where("currency IN ? AND date <= ?", currencies, onOrBefore).
		Group("date").
		Having("COUNT(DISTINCT currency) = ?", len(currencies)).
		Order("date desc").
		Limit(1).
		Take(&row).Error
	if err != nil {
		return time.Time{}, err
	}
	return timeline.Day(row.Date), nil
}

func (r *exchangeRateRepository) FindByDate(ctx context.Context, day time.Time, currencies ...string) ([]model.ExchangeRate, error) {
	var rates []model.ExchangeRate
	if err := GetDB(ctx, r.db).Preload("Margin").
		Where("date = ? AND currency IN ?", day, currencies).
		Find(&rates).Error; err != nil {
		return nil, err
	}
	return rates, nil
}
