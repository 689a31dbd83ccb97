package service

import (
	"context"
	"net/http"
	"testing"
	"time"

	"fxdesk/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (s *memStore) addRate(day, currency, rate string) model.ExchangeRate {
	row := model.ExchangeRate{
		ID:       uuid.New(),
		Date:     mustDate(day),
		Currency: currency,
		Rate:     decimalFrom(rate),
	}
	s.rates[row.ID] = row
	return row
}

func newTestRateService(store *memStore, today string) *rateService {
	svc := NewRateService(memRateRepo{store}).(*rateService)
	now := mustDate(today).Add(9 * time.Hour)
	svc.now = func() time.Time { return now }
	return svc
}

func TestConvert_FromBaseCurrencyDeductsMargin(t *testing.T) {
	// GIVEN: a 2% margin effective on the observation day
	store := newMemStore()
	store.seedMargin("0.02", "2024-01-01", "")
	store.addRate("2024-03-01", "USD", "1.100000")
	store.relinkAll()
	svc := newTestRateService(store, "2024-03-01")

	// WHEN
	res, err := svc.Convert(context.Background(), ConvertRequest{From: "eur", To: "USD", Amount: "250"})

	// THEN
	require.NoError(t, err)
	assert.Equal(t, "EUR", res.From)
	assert.Equal(t, "2024-03-01", res.Date)
	assert.Equal(t, "1.100000", res.MidRate)
	assert.Equal(t, "0.02", res.Margin)
	assert.Equal(t, "1.078000", res.Rate)
	assert.Equal(t, "269.50", res.Converted)
}

func TestConvert_CrossRateUsesLatestCompleteDay(t *testing.T) {
	store := newMemStore()
	store.seedMargin("0.02", "2024-01-01", "")
	store.addRate("2024-03-01", "USD", "1.100000")
	store.addRate("2024-03-01", "GBP", "0.850000")
	// GBP missing on the 2nd, so the 1st is the latest day quoting both
	store.addRate("2024-03-02", "USD", "1.200000")
	store.addRate("2024-03-04", "USD", "1.300000")
	store.addRate("2024-03-04", "GBP", "0.900000")
	store.relinkAll()
	svc := newTestRateService(store, "2024-03-10")

	res, err := svc.Convert(context.Background(), ConvertRequest{From: "GBP", To: "USD", Amount: "100", Date: "2024-03-03"})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", res.Date)
	assert.Equal(t, "1.294118", res.MidRate)
	assert.Equal(t, "1.268235", res.Rate)
	assert.Equal(t, "126.82", res.Converted)
}

func TestConvert_NoMarginWhenNoneEffective(t *testing.T) {
	store := newMemStore()
	store.addRate("2024-03-01", "USD", "1.100000")
	svc := newTestRateService(store, "2024-03-01")

	res, err := svc.Convert(context.Background(), ConvertRequest{From: "EUR", To: "USD", Amount: "10"})
	require.NoError(t, err)
	assert.Equal(t, "0", res.Margin)
	assert.Equal(t, "11.00", res.Converted)
}

func TestConvert_SameCurrency(t *testing.T) {
	svc := newTestRateService(newMemStore(), "2024-03-01")

	res, err := svc.Convert(context.Background(), ConvertRequest{From: "USD", To: "USD", Amount: "42.5"})
	require.NoError(t, err)
	assert.Equal(t, "1.000000", res.MidRate)
	assert.Equal(t, "42.50", res.Converted)
}

func TestConvert_Errors(t *testing.T) {
	store := newMemStore()
	store.addRate("2024-03-05", "USD", "1.100000")
	svc := newTestRateService(store, "2024-03-10")

	tests := []struct {
		name   string
		req    ConvertRequest
		status int
		code   string
	}{
		{"bad from", ConvertRequest{From: "EURO", To: "USD", Amount: "1"}, http.StatusBadRequest, CodeInvalidCurrency},
		{"bad to", ConvertRequest{From: "EUR", To: "U1", Amount: "1"}, http.StatusBadRequest, CodeInvalidCurrency},
		{"bad amount", ConvertRequest{From: "EUR", To: "USD", Amount: "ten"}, http.StatusBadRequest, CodeInvalidAmount},
		{"zero amount", ConvertRequest{From: "EUR", To: "USD", Amount: "0"}, http.StatusBadRequest, CodeInvalidAmount},
		{"bad date", ConvertRequest{From: "EUR", To: "USD", Amount: "1", Date: "March"}, http.StatusBadRequest, CodeInvalidRateDate},
		{"before first observation", ConvertRequest{From: "EUR", To: "USD", Amount: "1", Date: "2024-03-04"}, http.StatusNotFound, CodeRateNotFound},
		{"currency never observed", ConvertRequest{From: "EUR", To: "JPY", Amount: "1"}, http.StatusNotFound, CodeRateNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Convert(context.Background(), tt.req)
			requireServiceError(t, err, tt.status, tt.code)
		})
	}
}

func TestGetRates(t *testing.T) {
	store := newMemStore()
	m := store.seedMargin("0.01", "2024-03-02", "")
	store.addRate("2024-03-01", "USD", "1.100000")
	store.addRate("2024-03-02", "USD", "1.200000")
	store.addRate("2024-03-02", "GBP", "0.850000")
	store.relinkAll()
	svc := newTestRateService(store, "2024-03-10")

	rates, total, err := svc.GetRates(context.Background(), RateQuery{}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, rates, 3)
	assert.Equal(t, "GBP", rates[0].Currency)
	require.NotNil(t, rates[0].MarginID)
	assert.Equal(t, m.ID.String(), *rates[0].MarginID)
	assert.Equal(t, "0.841500", rates[0].AdjustedRate)
	assert.Nil(t, rates[2].MarginID)
	assert.Equal(t, "0", rates[2].Margin)

	usd, total, err := svc.GetRates(context.Background(), RateQuery{Currency: "usd", From: "2024-03-02"}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, usd, 1)
	assert.Equal(t, "1.200000", usd[0].Rate)

	_, _, err = svc.GetRates(context.Background(), RateQuery{To: "yesterday"}, 1, 10)
	requireServiceError(t, err, http.StatusBadRequest, CodeInvalidRateDate)
}
