package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"fxdesk/internal/model"
	"fxdesk/internal/repository"
	"fxdesk/internal/timeline"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// --- DTOs ---

type CreateMarginRequest struct {
	Value       *decimal.Decimal `json:"value" binding:"required"`     // percentage units, e.g. 2 = 2%
	StartDate   string           `json:"startDate" binding:"required"` // YYYY-MM-DD
	EndDate     string           `json:"endDate"`                      // YYYY-MM-DD, empty = open ended
	ForceCreate bool             `json:"forceCreate"`                  // apply neighbour changes without asking
}

type UpdateMarginRequest struct {
	Value     *decimal.Decimal `json:"value" binding:"required"`
	StartDate string           `json:"startDate" binding:"required"`
	EndDate   string           `json:"endDate"`
}

type MarginResponse struct {
	ID               string  `json:"id"`
	Value            string  `json:"value"`      // fraction
	Percentage       string  `json:"percentage"` // value * 100
	StartDate        string  `json:"startDate"`
	EndDate          *string `json:"endDate"`
	OwnerID          *string `json:"ownerId"`
	OwnerDisplayName string  `json:"ownerDisplayName"`
	UpdatedAt        string  `json:"updatedAt"`
}

// ConflictEntry describes what a write does, or would do, to a neighbouring margin.
type ConflictEntry struct {
	ID           string  `json:"id"`
	Value        string  `json:"value"`
	StartDate    string  `json:"startDate"`
	EndDate      *string `json:"endDate"`
	Action       string  `json:"action"` // close, shift, delete
	NewStartDate *string `json:"newStartDate,omitempty"`
	NewEndDate   *string `json:"newEndDate,omitempty"`
}

type MarginMutationResponse struct {
	Margin        MarginResponse  `json:"margin"`
	Adjusted      []ConflictEntry `json:"adjusted"`
	RelinkedRates int64           `json:"relinkedRates"`
}

type RelinkResponse struct {
	Examined int `json:"examined"`
	Changed  int `json:"changed"`
}

// EventPublisher receives committed timeline changes.
type EventPublisher interface {
	Publish(event string, payload interface{})
}

const (
	EventMarginCreated  = "margin.created"
	EventMarginUpdated  = "margin.updated"
	EventMarginRelinked = "margin.relinked"
)

var hundred = decimal.NewFromInt(100)

// percentPlaces keeps the stored fraction within the decimal(10,6) column.
const percentPlaces = 4

// --- Interface ---

type MarginService interface {
	GetMargins(ctx context.Context, activeOnly bool) ([]MarginResponse, error)
	GetMarginHistory(ctx context.Context) ([]MarginResponse, error)
	GetMargin(ctx context.Context, id string) (MarginResponse, error)
	CreateMargin(ctx context.Context, req CreateMarginRequest, userID string) (MarginMutationResponse, error)
	UpdateMargin(ctx context.Context, id string, req UpdateMarginRequest, userID string) (MarginMutationResponse, error)
	RelinkRates(ctx context.Context, userID string) (RelinkResponse, error)
}

type marginService struct {
	marginRepo repository.MarginRepository
	rateRepo   repository.ExchangeRateRepository
	auditRepo  repository.AuditRepository
	txManager  repository.TransactionManager
	publisher  EventPublisher
	now        func() time.Time
}

func NewMarginService(
	marginRepo repository.MarginRepository,
	rateRepo repository.ExchangeRateRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	publisher EventPublisher,
) MarginService {
	return &marginService{
		marginRepo: marginRepo,
		rateRepo:   rateRepo,
		auditRepo:  auditRepo,
		txManager:  txManager,
		publisher:  publisher,
		now:        time.Now,
	}
}

// --- Implementation ---

func (s *marginService) GetMargins(ctx context.Context, activeOnly bool) ([]MarginResponse, error) {
	var activeOn *time.Time
	if activeOnly {
		today := s.today()
		activeOn = &today
	}

	margins, err := s.marginRepo.List(ctx, activeOn)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch margins: %w", err)
	}
	return toMarginResponses(margins), nil
}

func (s *marginService) GetMarginHistory(ctx context.Context) ([]MarginResponse, error) {
	margins, err := s.marginRepo.ListTimeline(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch margin history: %w", err)
	}
	return toMarginResponses(margins), nil
}

func (s *marginService) GetMargin(ctx context.Context, id string) (MarginResponse, error) {
	marginID, err := parseMarginID(id)
	if err != nil {
		return MarginResponse{}, err
	}

	margin, err := s.marginRepo.FindByID(ctx, marginID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return MarginResponse{}, notFound(CodeMarginNotFound, "margin not found")
		}
		return MarginResponse{}, fmt.Errorf("failed to fetch margin: %w", err)
	}
	return toMarginResponse(*margin), nil
}

// CreateMargin inserts a margin. When neighbours would have to be closed, shifted or
// deleted and the caller has not set ForceCreate, nothing is written and a 409
// ServiceError listing the neighbours is returned.
func (s *marginService) CreateMargin(ctx context.Context, req CreateMarginRequest, userID string) (MarginMutationResponse, error) {
	value, window, err := s.parseMarginFields(req.Value, req.StartDate, req.EndDate)
	if err != nil {
		observeMutation(opCreate, err)
		return MarginMutationResponse{}, err
	}

	margin := model.Margin{Value: value, OwnerID: parseUserID(userID)}
	margin.SetWindow(window)

	var res MarginMutationResponse
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.marginRepo.LockTimeline(txCtx); err != nil {
			return fmt.Errorf("failed to lock margin timeline: %w", err)
		}

		current, byID, err := s.loadTimeline(txCtx)
		if err != nil {
			return err
		}

		plan, err := planChanges(current, window, uuid.Nil)
		if err != nil {
			return err
		}
		if plan.HasConflicts() && !req.ForceCreate {
			return &ServiceError{
				Status:    http.StatusConflict,
				Code:      CodeMarginConflict,
				Message:   "margin overlaps existing margins; resubmit with forceCreate to apply the listed changes",
				Conflicts: describePlan(plan),
			}
		}
		if err := checkResult(current, plan, timeline.Interval{Value: value}); err != nil {
			return err
		}

		if err := s.applyNeighbourChanges(txCtx, plan, byID, userID); err != nil {
			return err
		}

		if err := s.marginRepo.Create(txCtx, &margin); err != nil {
			return fmt.Errorf("failed to create margin: %w", err)
		}

		relinked, err := s.rateRepo.LinkWindow(txCtx, margin.ID, window)
		if err != nil {
			return fmt.Errorf("failed to link rates to margin: %w", err)
		}

		if err := s.writeAudit(txCtx, userID, model.ActionCreateMargin, margin.ID, window, req); err != nil {
			return err
		}

		created, err := s.marginRepo.FindByID(txCtx, margin.ID)
		if err != nil {
			return fmt.Errorf("failed to reload margin: %w", err)
		}

		res = MarginMutationResponse{
			Margin:        toMarginResponse(*created),
			Adjusted:      describePlan(plan),
			RelinkedRates: relinked,
		}
		return nil
	})

	observeMutation(opCreate, err)
	if err != nil {
		return MarginMutationResponse{}, err
	}

	log.Printf("margin %s created for %s (%d neighbours adjusted, %d rates linked)", margin.ID, window, len(res.Adjusted), res.RelinkedRates)
	s.publish(EventMarginCreated, res)
	return res, nil
}

// UpdateMargin rewrites a margin and unconditionally applies the neighbour changes
// its new window requires. The record itself never counts as a neighbour.
func (s *marginService) UpdateMargin(ctx context.Context, id string, req UpdateMarginRequest, userID string) (MarginMutationResponse, error) {
	marginID, err := parseMarginID(id)
	if err != nil {
		observeMutation(opUpdate, err)
		return MarginMutationResponse{}, err
	}

	value, window, err := s.parseMarginFields(req.Value, req.StartDate, req.EndDate)
	if err != nil {
		observeMutation(opUpdate, err)
		return MarginMutationResponse{}, err
	}

	var res MarginMutationResponse
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.marginRepo.LockTimeline(txCtx); err != nil {
			return fmt.Errorf("failed to lock margin timeline: %w", err)
		}

		margin, err := s.marginRepo.FindByID(txCtx, marginID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound(CodeMarginNotFound, "margin not found")
			}
			return fmt.Errorf("failed to fetch margin: %w", err)
		}

		current, byID, err := s.loadTimeline(txCtx)
		if err != nil {
			return err
		}

		plan, err := planChanges(current, window, marginID)
		if err != nil {
			return err
		}
		if err := checkResult(current, plan, timeline.Interval{ID: marginID, Value: value}); err != nil {
			return err
		}

		if err := s.applyNeighbourChanges(txCtx, plan, byID, userID); err != nil {
			return err
		}

		if _, err := s.rateRepo.UnlinkAll(txCtx, margin.ID); err != nil {
			return fmt.Errorf("failed to unlink rates from margin: %w", err)
		}

		margin.Value = value
		margin.SetWindow(window)
		if owner := parseUserID(userID); owner != nil {
			margin.OwnerID = owner
		}
		if err := s.marginRepo.Update(txCtx, margin); err != nil {
			return fmt.Errorf("failed to update margin: %w", err)
		}

		relinked, err := s.rateRepo.LinkWindow(txCtx, margin.ID, window)
		if err != nil {
			return fmt.Errorf("failed to link rates to margin: %w", err)
		}

		if err := s.writeAudit(txCtx, userID, model.ActionUpdateMargin, margin.ID, window, req); err != nil {
			return err
		}

		updated, err := s.marginRepo.FindByID(txCtx, margin.ID)
		if err != nil {
			return fmt.Errorf("failed to reload margin: %w", err)
		}

		res = MarginMutationResponse{
			Margin:        toMarginResponse(*updated),
			Adjusted:      describePlan(plan),
			RelinkedRates: relinked,
		}
		return nil
	})

	observeMutation(opUpdate, err)
	if err != nil {
		return MarginMutationResponse{}, err
	}

	log.Printf("margin %s updated to %s (%d neighbours adjusted, %d rates linked)", marginID, window, len(res.Adjusted), res.RelinkedRates)
	s.publish(EventMarginUpdated, res)
	return res, nil
}

// RelinkRates recomputes the margin reference of every rate observation and
// writes only the rows that disagree with the current timeline.
func (s *marginService) RelinkRates(ctx context.Context, userID string) (RelinkResponse, error) {
	var res RelinkResponse
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.marginRepo.LockTimeline(txCtx); err != nil {
			return fmt.Errorf("failed to lock margin timeline: %w", err)
		}

		current, _, err := s.loadTimeline(txCtx)
		if err != nil {
			return err
		}

		observations, err := s.rateRepo.ListObservations(txCtx)
		if err != nil {
			return fmt.Errorf("failed to fetch rate observations: %w", err)
		}

		changes := timeline.LinkChanges(current, observations)
		if err := s.rateRepo.ApplyLinks(txCtx, changes); err != nil {
			return fmt.Errorf("failed to relink rates: %w", err)
		}

		res = RelinkResponse{Examined: len(observations), Changed: len(changes)}
		return s.writeAudit(txCtx, userID, model.ActionRelinkRates, uuid.Nil, timeline.Window{}, res)
	})

	observeMutation(opRelink, err)
	if err != nil {
		return RelinkResponse{}, err
	}

	log.Printf("rate links recomputed: %d examined, %d changed", res.Examined, res.Changed)
	if res.Changed > 0 {
		s.publish(EventMarginRelinked, res)
	}
	return res, nil
}

// --- Cascade ---

// applyNeighbourChanges closes, shifts and deletes neighbours in plan order and
// clears the rate links that fall outside their new windows.
func (s *marginService) applyNeighbourChanges(ctx context.Context, plan timeline.Plan, byID map[uuid.UUID]model.Margin, userID string) error {
	for _, c := range plan.Changes {
		neighbour, ok := byID[c.Interval.ID]
		if !ok {
			return fmt.Errorf("margin %s vanished from the timeline", c.Interval.ID)
		}

		var action string
		switch c.Action {
		case timeline.ActionClose:
			action = model.ActionCloseMargin
			cutoff, _ := c.Window.End()
			neighbour.SetWindow(c.Window)
			if err := s.marginRepo.Update(ctx, &neighbour); err != nil {
				return fmt.Errorf("failed to close margin %s: %w", neighbour.ID, err)
			}
			if _, err := s.rateRepo.UnlinkAfter(ctx, neighbour.ID, cutoff); err != nil {
				return fmt.Errorf("failed to unlink rates from margin %s: %w", neighbour.ID, err)
			}

		case timeline.ActionShift:
			action = model.ActionShiftMargin
			neighbour.SetWindow(c.Window)
			if err := s.marginRepo.Update(ctx, &neighbour); err != nil {
				return fmt.Errorf("failed to shift margin %s: %w", neighbour.ID, err)
			}
			if _, err := s.rateRepo.UnlinkBefore(ctx, neighbour.ID, c.Window.Start()); err != nil {
				return fmt.Errorf("failed to unlink rates from margin %s: %w", neighbour.ID, err)
			}

		case timeline.ActionDelete:
			action = model.ActionDeleteMargin
			if _, err := s.rateRepo.UnlinkAll(ctx, neighbour.ID); err != nil {
				return fmt.Errorf("failed to unlink rates from margin %s: %w", neighbour.ID, err)
			}
			if err := s.marginRepo.Delete(ctx, neighbour.ID); err != nil {
				return fmt.Errorf("failed to delete margin %s: %w", neighbour.ID, err)
			}

		default:
			return fmt.Errorf("unknown timeline action %q", c.Action)
		}

		if err := s.writeAudit(ctx, userID, action, neighbour.ID, c.Interval.Window, describeChange(c)); err != nil {
			return err
		}
	}
	return nil
}

func (s *marginService) loadTimeline(ctx context.Context) ([]timeline.Interval, map[uuid.UUID]model.Margin, error) {
	margins, err := s.marginRepo.ListTimeline(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch margin timeline: %w", err)
	}

	intervals := make([]timeline.Interval, 0, len(margins))
	byID := make(map[uuid.UUID]model.Margin, len(margins))
	for _, m := range margins {
		intervals = append(intervals, m.Interval())
		byID[m.ID] = m
	}
	return intervals, byID, nil
}

func planChanges(current []timeline.Interval, window timeline.Window, exclude uuid.UUID) (timeline.Plan, error) {
	plan, err := timeline.PlanFor(current, window, exclude)
	switch {
	case errors.Is(err, timeline.ErrDuplicateStart):
		return timeline.Plan{}, badRequest(CodeDuplicateStart, "another margin already starts on "+window.Start().Format(timeline.DateLayout), nil)
	case errors.Is(err, timeline.ErrInvalidWindow):
		return timeline.Plan{}, badRequest(CodeInvalidWindow, "endDate must not be before startDate", nil)
	case err != nil:
		return timeline.Plan{}, fmt.Errorf("failed to plan margin changes: %w", err)
	}
	return plan, nil
}

// checkResult refuses to write a plan whose outcome would still overlap, which
// only happens when the stored timeline is already inconsistent.
func checkResult(current []timeline.Interval, plan timeline.Plan, target timeline.Interval) error {
	if target.ID == uuid.Nil {
		target.ID = uuid.New()
	}
	if err := timeline.CheckNonOverlap(timeline.Apply(current, plan, target)); err != nil {
		return fmt.Errorf("margin timeline is inconsistent: %w", err)
	}
	return nil
}

// --- Helpers ---

func (s *marginService) today() time.Time {
	return timeline.Day(s.now())
}

func (s *marginService) parseMarginFields(percent *decimal.Decimal, startStr, endStr string) (decimal.Decimal, timeline.Window, error) {
	if percent == nil {
		return decimal.Zero, timeline.Window{}, badRequest(CodeInvalidValue, "value is required", nil)
	}
	if percent.IsNegative() || percent.GreaterThan(hundred) {
		return decimal.Zero, timeline.Window{}, badRequest(CodeInvalidValue, "value must be between 0 and 100 percent", nil)
	}
	if !percent.Equal(percent.Round(percentPlaces)) {
		return decimal.Zero, timeline.Window{}, badRequest(CodeInvalidValue, "value must have at most 4 decimal places", nil)
	}

	if startStr == "" {
		return decimal.Zero, timeline.Window{}, badRequest(CodeInvalidDate, "startDate is required", nil)
	}
	start, err := timeline.ParseDate(startStr)
	if err != nil {
		return decimal.Zero, timeline.Window{}, badRequest(CodeInvalidDate, "invalid startDate format (expected YYYY-MM-DD)", err)
	}
	if start.After(s.today()) {
		return decimal.Zero, timeline.Window{}, badRequest(CodeFutureStart, "startDate must not be in the future", nil)
	}

	window := timeline.Unbounded(start)
	if endStr != "" {
		end, err := timeline.ParseDate(endStr)
		if err != nil {
			return decimal.Zero, timeline.Window{}, badRequest(CodeInvalidDate, "invalid endDate format (expected YYYY-MM-DD)", err)
		}
		window = timeline.Bounded(start, end)
		if !window.Valid() {
			return decimal.Zero, timeline.Window{}, badRequest(CodeInvalidWindow, "endDate must not be before startDate", nil)
		}
	}

	return percent.Div(hundred), window, nil
}

func parseMarginID(id string) (uuid.UUID, error) {
	marginID, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, badRequest(CodeInvalidID, "invalid margin id", err)
	}
	return marginID, nil
}

func parseUserID(userID string) *uuid.UUID {
	parsed, err := uuid.Parse(userID)
	if err != nil {
		return nil
	}
	return &parsed
}

func (s *marginService) writeAudit(ctx context.Context, userID, action string, entityID uuid.UUID, window timeline.Window, details interface{}) error {
	detailsJSON, _ := json.Marshal(details)

	entry := &model.AuditLog{
		UserID:  parseUserID(userID),
		Action:  action,
		Details: string(detailsJSON),
	}
	if entityID != uuid.Nil {
		entry.EntityID = entityID.String()
		entry.EntityName = window.String()
	}

	if err := s.auditRepo.Log(ctx, entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

func (s *marginService) publish(event string, payload interface{}) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(event, payload)
}

func describePlan(plan timeline.Plan) []ConflictEntry {
	entries := make([]ConflictEntry, 0, len(plan.Changes))
	for _, c := range plan.Changes {
		entries = append(entries, describeChange(c))
	}
	return entries
}

func describeChange(c timeline.Change) ConflictEntry {
	entry := ConflictEntry{
		ID:        c.Interval.ID.String(),
		Value:     c.Interval.Value.String(),
		StartDate: c.Interval.Window.Start().Format(timeline.DateLayout),
		EndDate:   formatDate(c.Interval.Window.EndPtr()),
		Action:    string(c.Action),
	}
	switch c.Action {
	case timeline.ActionClose:
		entry.NewEndDate = formatDate(c.Window.EndPtr())
	case timeline.ActionShift:
		start := c.Window.Start().Format(timeline.DateLayout)
		entry.NewStartDate = &start
	}
	return entry
}

func toMarginResponses(margins []model.Margin) []MarginResponse {
	res := make([]MarginResponse, 0, len(margins))
	for _, m := range margins {
		res = append(res, toMarginResponse(m))
	}
	return res
}

func toMarginResponse(m model.Margin) MarginResponse {
	resp := MarginResponse{
		ID:               m.ID.String(),
		Value:            m.Value.String(),
		Percentage:       m.Value.Mul(hundred).String(),
		StartDate:        m.StartDate.Format(timeline.DateLayout),
		EndDate:          formatDate(m.EndDate),
		OwnerDisplayName: m.OwnerDisplayName(),
		UpdatedAt:        m.UpdatedAt.Format(time.RFC3339),
	}
	if m.OwnerID != nil {
		owner := m.OwnerID.String()
		resp.OwnerID = &owner
	}
	return resp
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(timeline.DateLayout)
	return &s
}
