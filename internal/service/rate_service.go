package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"fxdesk/internal/model"
	"fxdesk/internal/repository"
	"fxdesk/internal/timeline"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// --- DTOs ---

type RateQuery struct {
	Currency string
	From     string // YYYY-MM-DD
	To       string // YYYY-MM-DD
}

type RateResponse struct {
	ID           string  `json:"id"`
	Date         string  `json:"date"`
	Currency     string  `json:"currency"`
	Rate         string  `json:"rate"` // units per 1 EUR
	MarginID     *string `json:"marginId"`
	Margin       string  `json:"margin"`       // fraction, "0" when no margin is effective
	AdjustedRate string  `json:"adjustedRate"` // rate * (1 - margin)
}

type ConvertRequest struct {
	From   string
	To     string
	Amount string
	Date   string // YYYY-MM-DD, empty = today
}

type ConversionResponse struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Amount    string `json:"amount"`
	Date      string `json:"date"`    // observation day actually used
	MidRate   string `json:"midRate"` // units of To per unit of From, before margin
	Margin    string `json:"margin"`
	Rate      string `json:"rate"`
	Converted string `json:"converted"`
}

// --- Interface ---

type RateService interface {
	GetRates(ctx context.Context, query RateQuery, page, limit int) ([]RateResponse, int64, error)
	Convert(ctx context.Context, req ConvertRequest) (ConversionResponse, error)
}

type rateService struct {
	rateRepo repository.ExchangeRateRepository
	now      func() time.Time
}

func NewRateService(rateRepo repository.ExchangeRateRepository) RateService {
	return &rateService{rateRepo: rateRepo, now: time.Now}
}

// --- Implementation ---

func (s *rateService) GetRates(ctx context.Context, query RateQuery, page, limit int) ([]RateResponse, int64, error) {
	filter := repository.RateFilter{}
	if query.Currency != "" {
		currency, err := parseCurrency(query.Currency)
		if err != nil {
			return nil, 0, err
		}
		filter.Currency = currency
	}

	var err error
	if filter.From, err = parseOptionalDate(query.From, "from"); err != nil {
		return nil, 0, err
	}
	if filter.To, err = parseOptionalDate(query.To, "to"); err != nil {
		return nil, 0, err
	}

	rates, total, err := s.rateRepo.List(ctx, filter, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch exchange rates: %w", err)
	}

	res := make([]RateResponse, 0, len(rates))
	for _, r := range rates {
		res = append(res, toRateResponse(r))
	}
	return res, total, nil
}

// Convert prices Amount of From in To through the EUR anchor, using the latest
// day not after Date on which both currencies were observed, and deducts the
// margin linked to that day's observations.
func (s *rateService) Convert(ctx context.Context, req ConvertRequest) (ConversionResponse, error) {
	from, err := parseCurrency(req.From)
	if err != nil {
		return ConversionResponse{}, err
	}
	to, err := parseCurrency(req.To)
	if err != nil {
		return ConversionResponse{}, err
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return ConversionResponse{}, badRequest(CodeInvalidAmount, "invalid amount", err)
	}
	if !amount.IsPositive() {
		return ConversionResponse{}, badRequest(CodeInvalidAmount, "amount must be greater than 0", nil)
	}

	day := timeline.Day(s.now())
	if req.Date != "" {
		if day, err = timeline.ParseDate(req.Date); err != nil {
			return ConversionResponse{}, badRequest(CodeInvalidRateDate, "invalid date format (expected YYYY-MM-DD)", err)
		}
	}

	if from == to {
		return conversion(from, to, amount, day, decimal.NewFromInt(1), decimal.Zero), nil
	}

	var needed []string
	for _, c := range []string{from, to} {
		if c != model.BaseCurrency {
			needed = append(needed, c)
		}
	}

	observed, err := s.rateRepo.LatestDate(ctx, day, needed...)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ConversionResponse{}, notFound(CodeRateNotFound, "no exchange rate observed for "+strings.Join(needed, ", ")+" on or before "+day.Format(timeline.DateLayout))
		}
		return ConversionResponse{}, fmt.Errorf("failed to find rate date: %w", err)
	}

	rows, err := s.rateRepo.FindByDate(ctx, observed, needed...)
	if err != nil {
		return ConversionResponse{}, fmt.Errorf("failed to fetch exchange rates: %w", err)
	}

	perEUR := map[string]decimal.Decimal{model.BaseCurrency: decimal.NewFromInt(1)}
	margin := decimal.Zero
	linked := false
	for _, r := range rows {
		perEUR[r.Currency] = r.Rate
		if r.Margin != nil && !linked {
			margin = r.Margin.Value
			linked = true
		}
	}

	rateFrom, okFrom := perEUR[from]
	rateTo, okTo := perEUR[to]
	if !okFrom || !okTo || rateFrom.IsZero() {
		return ConversionResponse{}, fmt.Errorf("incomplete exchange rates for %s on %s", observed.Format(timeline.DateLayout), strings.Join(needed, ", "))
	}

	return conversion(from, to, amount, observed, rateTo.Div(rateFrom), margin), nil
}

// --- Helpers ---

func conversion(from, to string, amount decimal.Decimal, day time.Time, mid, margin decimal.Decimal) ConversionResponse {
	rate := applyMargin(mid, margin)
	return ConversionResponse{
		From:      from,
		To:        to,
		Amount:    amount.String(),
		Date:      day.Format(timeline.DateLayout),
		MidRate:   mid.StringFixed(6),
		Margin:    margin.String(),
		Rate:      rate.StringFixed(6),
		Converted: amount.Mul(rate).StringFixed(2),
	}
}

func applyMargin(rate, margin decimal.Decimal) decimal.Decimal {
	return rate.Mul(decimal.NewFromInt(1).Sub(margin))
}

func toRateResponse(r model.ExchangeRate) RateResponse {
	margin := decimal.Zero
	if r.Margin != nil {
		margin = r.Margin.Value
	}

	resp := RateResponse{
		ID:           r.ID.String(),
		Date:         r.Date.Format(timeline.DateLayout),
		Currency:     r.Currency,
		Rate:         r.Rate.StringFixed(6),
		Margin:       margin.String(),
		AdjustedRate: applyMargin(r.Rate, margin).StringFixed(6),
	}
	if r.MarginID != nil {
		id := r.MarginID.String()
		resp.MarginID = &id
	}
	return resp
}

func parseCurrency(code string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if !currencyPattern.MatchString(c) {
		return "", badRequest(CodeInvalidCurrency, "currency must be a 3-letter ISO code", nil)
	}
	return c, nil
}

func parseOptionalDate(s, field string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	d, err := timeline.ParseDate(s)
	if err != nil {
		return nil, badRequest(CodeInvalidRateDate, "invalid "+field+" date format (expected YYYY-MM-DD)", err)
	}
	return &d, nil
}
