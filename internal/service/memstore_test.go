package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"fxdesk/internal/model"
	"fxdesk/internal/repository"
	"fxdesk/internal/timeline"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var errInjected = errors.New("injected storage failure")

// memStore backs every repository interface with maps. RunInTx snapshots the
// maps and restores them when the callback fails, mirroring a rollback.
type memStore struct {
	margins map[uuid.UUID]model.Margin
	rates   map[uuid.UUID]model.ExchangeRate
	audits  []model.AuditLog
	locks   int
	txs     int
	failOn  string
}

func newMemStore() *memStore {
	return &memStore{
		margins: make(map[uuid.UUID]model.Margin),
		rates:   make(map[uuid.UUID]model.ExchangeRate),
	}
}

func (s *memStore) fail(op string) error {
	if s.failOn == op {
		return fmt.Errorf("%s: %w", op, errInjected)
	}
	return nil
}

func (s *memStore) snapshot() func() {
	margins := make(map[uuid.UUID]model.Margin, len(s.margins))
	for k, v := range s.margins {
		margins[k] = v
	}
	rates := make(map[uuid.UUID]model.ExchangeRate, len(s.rates))
	for k, v := range s.rates {
		rates[k] = v
	}
	audits := len(s.audits)
	return func() {
		s.margins = margins
		s.rates = rates
		s.audits = s.audits[:audits]
	}
}

// --- TransactionManager ---

type memTx struct{ s *memStore }

func (t memTx) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	t.s.txs++
	restore := t.s.snapshot()
	if err := fn(ctx); err != nil {
		restore()
		return err
	}
	return nil
}

// --- MarginRepository ---

type memMarginRepo struct{ s *memStore }

func (r memMarginRepo) Create(_ context.Context, m *model.Margin) error {
	if err := r.s.fail("MarginCreate"); err != nil {
		return err
	}
	for _, other := range r.s.margins {
		if other.StartDate.Equal(m.StartDate) {
			return errors.New("duplicate key value violates unique constraint")
		}
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.CreatedAt = time.Now()
	m.UpdatedAt = m.CreatedAt
	stored := *m
	stored.Owner = nil
	r.s.margins[m.ID] = stored
	return nil
}

func (r memMarginRepo) Update(_ context.Context, m *model.Margin) error {
	if err := r.s.fail("MarginUpdate"); err != nil {
		return err
	}
	if _, ok := r.s.margins[m.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	m.UpdatedAt = time.Now()
	stored := *m
	stored.Owner = nil
	r.s.margins[m.ID] = stored
	return nil
}

func (r memMarginRepo) Delete(_ context.Context, id uuid.UUID) error {
	if err := r.s.fail("MarginDelete"); err != nil {
		return err
	}
	delete(r.s.margins, id)
	return nil
}

func (r memMarginRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Margin, error) {
	m, ok := r.s.margins[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &m, nil
}

func (r memMarginRepo) List(_ context.Context, activeOn *time.Time) ([]model.Margin, error) {
	var out []model.Margin
	for _, m := range r.s.margins {
		if activeOn != nil && !m.Window().Contains(*activeOn) {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.After(out[j].StartDate) })
	return out, nil
}

func (r memMarginRepo) ListTimeline(_ context.Context) ([]model.Margin, error) {
	var out []model.Margin
	for _, m := range r.s.margins {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (r memMarginRepo) LockTimeline(_ context.Context) error {
	r.s.locks++
	return r.s.fail("LockTimeline")
}

// --- ExchangeRateRepository ---

type memRateRepo struct{ s *memStore }

// unlinkWhere mirrors the margin_id/date predicates of exchangeRateRepository.
func (r memRateRepo) unlinkWhere(marginID uuid.UUID, match func(time.Time) bool) int64 {
	var n int64
	for id, row := range r.s.rates {
		if row.MarginID != nil && *row.MarginID == marginID && match(row.Date) {
			row.MarginID = nil
			r.s.rates[id] = row
			n++
		}
	}
	return n
}

func (r memRateRepo) UnlinkAfter(_ context.Context, marginID uuid.UUID, cutoff time.Time) (int64, error) {
	if err := r.s.fail("UnlinkAfter"); err != nil {
		return 0, err
	}
	return r.unlinkWhere(marginID, func(d time.Time) bool { return d.After(cutoff) }), nil
}

func (r memRateRepo) UnlinkBefore(_ context.Context, marginID uuid.UUID, start time.Time) (int64, error) {
	if err := r.s.fail("UnlinkBefore"); err != nil {
		return 0, err
	}
	return r.unlinkWhere(marginID, func(d time.Time) bool { return d.Before(start) }), nil
}

func (r memRateRepo) UnlinkAll(_ context.Context, marginID uuid.UUID) (int64, error) {
	if err := r.s.fail("UnlinkAll"); err != nil {
		return 0, err
	}
	return r.unlinkWhere(marginID, func(time.Time) bool { return true }), nil
}

func (r memRateRepo) LinkWindow(_ context.Context, marginID uuid.UUID, w timeline.Window) (int64, error) {
	if err := r.s.fail("LinkWindow"); err != nil {
		return 0, err
	}
	var n int64
	for id, row := range r.s.rates {
		if w.Contains(row.Date) {
			ref := marginID
			row.MarginID = &ref
			r.s.rates[id] = row
			n++
		}
	}
	return n, nil
}

func (r memRateRepo) ListObservations(_ context.Context) ([]timeline.Observation, error) {
	var out []timeline.Observation
	for _, row := range r.s.rates {
		out = append(out, timeline.Observation{ID: row.ID, Date: row.Date, MarginID: row.MarginID})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (r memRateRepo) ApplyLinks(_ context.Context, changes []timeline.LinkChange) error {
	if err := r.s.fail("ApplyLinks"); err != nil {
		return err
	}
	for _, c := range changes {
		row := r.s.rates[c.ObservationID]
		row.MarginID = c.MarginID
		r.s.rates[c.ObservationID] = row
	}
	return nil
}

func (r memRateRepo) withMargin(row model.ExchangeRate) model.ExchangeRate {
	if row.MarginID != nil {
		if m, ok := r.s.margins[*row.MarginID]; ok {
			row.Margin = &m
		}
	}
	return row
}

func (r memRateRepo) List(_ context.Context, filter repository.RateFilter, page, limit int) ([]model.ExchangeRate, int64, error) {
	var all []model.ExchangeRate
	for _, row := range r.s.rates {
		if filter.Currency != "" && row.Currency != filter.Currency {
			continue
		}
		if filter.From != nil && row.Date.Before(*filter.From) {
			continue
		}
		if filter.To != nil && row.Date.After(*filter.To) {
			continue
		}
		all = append(all, r.withMargin(row))
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].Date.Equal(all[j].Date) {
			return all[i].Date.After(all[j].Date)
		}
		return all[i].Currency < all[j].Currency
	})

	offset := (page - 1) * limit
	if offset >= len(all) {
		return nil, int64(len(all)), nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], int64(len(all)), nil
}

func (r memRateRepo) LatestDate(_ context.Context, onOrBefore time.Time, currencies ...string) (time.Time, error) {
	seen := make(map[time.Time]map[string]bool)
	for _, row := range r.s.rates {
		if row.Date.After(onOrBefore) {
			continue
		}
		if seen[row.Date] == nil {
			seen[row.Date] = make(map[string]bool)
		}
		seen[row.Date][row.Currency] = true
	}

	var best time.Time
	for day, got := range seen {
		complete := true
		for _, c := range currencies {
			complete = complete && got[c]
		}
		if complete && day.After(best) {
			best = day
		}
	}
	if best.IsZero() {
		return time.Time{}, gorm.ErrRecordNotFound
	}
	return best, nil
}

func (r memRateRepo) FindByDate(_ context.Context, day time.Time, currencies ...string) ([]model.ExchangeRate, error) {
	want := make(map[string]bool, len(currencies))
	for _, c := range currencies {
		want[c] = true
	}
	var out []model.ExchangeRate
	for _, row := range r.s.rates {
		if row.Date.Equal(day) && want[row.Currency] {
			out = append(out, r.withMargin(row))
		}
	}
	return out, nil
}

// --- AuditRepository ---

type memAuditRepo struct{ s *memStore }

func (r memAuditRepo) Log(_ context.Context, entry *model.AuditLog) error {
	if err := r.s.fail("AuditLog"); err != nil {
		return err
	}
	entry.ID = uuid.New()
	entry.CreatedAt = time.Now()
	r.s.audits = append(r.s.audits, *entry)
	return nil
}

func (r memAuditRepo) List(_ context.Context, filter repository.AuditFilter, page, limit int) ([]model.AuditLog, int64, error) {
	var out []model.AuditLog
	for i := len(r.s.audits) - 1; i >= 0; i-- {
		entry := r.s.audits[i]
		if filter.EntityID != "" && entry.EntityID != filter.EntityID {
			continue
		}
		if filter.Action != "" && entry.Action != filter.Action {
			continue
		}
		out = append(out, entry)
	}
	n := len(out)
	offset := (page - 1) * limit
	if offset >= n {
		return nil, int64(n), nil
	}
	return out[offset:min(offset+limit, n)], int64(n), nil
}

// --- seeding helpers ---

func (s *memStore) seedMargin(value, start, end string) model.Margin {
	m := model.Margin{
		ID:        uuid.New(),
		Value:     decimalFrom(value),
		StartDate: mustDate(start),
	}
	if end != "" {
		e := mustDate(end)
		m.EndDate = &e
	}
	s.margins[m.ID] = m
	return m
}

// seedRates adds one row per currency per day and links them to the current timeline.
func (s *memStore) seedRates(from string, days int, currencies ...string) {
	start := mustDate(from)
	for i := 0; i < days; i++ {
		for _, c := range currencies {
			row := model.ExchangeRate{
				ID:       uuid.New(),
				Date:     start.AddDate(0, 0, i),
				Currency: c,
				Rate:     decimalFrom("1.100000"),
			}
			s.rates[row.ID] = row
		}
	}
	s.relinkAll()
}

func (s *memStore) relinkAll() {
	var intervals []timeline.Interval
	for _, m := range s.margins {
		intervals = append(intervals, m.Interval())
	}
	for id, row := range s.rates {
		row.MarginID = nil
		if iv, ok := timeline.Effective(intervals, row.Date); ok {
			ref := iv.ID
			row.MarginID = &ref
		}
		s.rates[id] = row
	}
}

func (s *memStore) intervals() []timeline.Interval {
	var out []timeline.Interval
	for _, m := range s.margins {
		out = append(out, m.Interval())
	}
	return timeline.Sorted(out)
}

type recordingPublisher struct {
	events []string
}

func (p *recordingPublisher) Publish(event string, _ interface{}) {
	p.events = append(p.events, event)
}
