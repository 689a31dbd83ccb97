package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"fxdesk/internal/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newMarginRouter(margins *mockMarginService, audits *mockAuditService) http.Handler {
	h := NewMarginHandler(margins, audits)
	return newRouter(h.RegisterRoutes)
}

func strPtr(s string) *string { return &s }

func TestGetMargins_ActiveFlag(t *testing.T) {
	margins := new(mockMarginService)
	r := newMarginRouter(margins, new(mockAuditService))

	margins.On("GetMargins", mock.Anything, true).Return([]service.MarginResponse{{ID: "m1", StartDate: "2024-01-01"}}, nil).Once()
	margins.On("GetMargins", mock.Anything, false).Return([]service.MarginResponse{}, nil).Once()

	w := do(r, http.MethodGet, "/margins?active=true", bearer(t, "viewer"), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"m1"`)

	w = do(r, http.MethodGet, "/margins", bearer(t, "viewer"), "")
	require.Equal(t, http.StatusOK, w.Code)

	margins.AssertExpectations(t)
}

func TestGetMarginHistory(t *testing.T) {
	margins := new(mockMarginService)
	r := newMarginRouter(margins, new(mockAuditService))
	margins.On("GetMarginHistory", mock.Anything).Return([]service.MarginResponse{{ID: "a"}, {ID: "b"}}, nil)

	w := do(r, http.MethodGet, "/margins/history", bearer(t, "admin"), "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data []service.MarginResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	assert.Equal(t, "a", body.Data[0].ID)
}

func TestGetMargin_NotFound(t *testing.T) {
	margins := new(mockMarginService)
	r := newMarginRouter(margins, new(mockAuditService))
	margins.On("GetMargin", mock.Anything, "missing").Return(service.MarginResponse{},
		&service.ServiceError{Status: http.StatusNotFound, Code: service.CodeMarginNotFound, Message: "margin not found"})

	w := do(r, http.MethodGet, "/margins/missing", bearer(t, "viewer"), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"status":"error","status_code":404,"error":"margin not found","code":"MARGIN_NOT_FOUND"}`, w.Body.String())
}

func TestCreateMargin(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		margins := new(mockMarginService)
		r := newMarginRouter(margins, new(mockAuditService))

		three := decimal.NewFromInt(3)
		want := service.CreateMarginRequest{Value: &three, StartDate: "2024-06-01", EndDate: "2024-06-30", ForceCreate: true}
		margins.On("CreateMargin", mock.Anything, mock.MatchedBy(func(req service.CreateMarginRequest) bool {
			return req.Value.Equal(*want.Value) && req.StartDate == want.StartDate && req.EndDate == want.EndDate && req.ForceCreate
		}), testUserID).Return(service.MarginMutationResponse{Margin: service.MarginResponse{ID: "new"}}, nil)

		w := do(r, http.MethodPost, "/margins/create", bearer(t, "admin"),
			`{"value":3,"startDate":"2024-06-01","endDate":"2024-06-30","forceCreate":true}`)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		assert.Contains(t, w.Body.String(), `"id":"new"`)
		margins.AssertExpectations(t)
	})

	t.Run("conflict body lists overlapping margins", func(t *testing.T) {
		margins := new(mockMarginService)
		r := newMarginRouter(margins, new(mockAuditService))

		margins.On("CreateMargin", mock.Anything, mock.Anything, testUserID).Return(service.MarginMutationResponse{}, &service.ServiceError{
			Status:  http.StatusConflict,
			Code:    service.CodeMarginConflict,
			Message: "margin overlaps existing margins",
			Conflicts: []service.ConflictEntry{{
				ID: "a", Value: "0.02", StartDate: "2024-01-01", Action: "close", NewEndDate: strPtr("2024-05-31"),
			}},
		})

		w := do(r, http.MethodPost, "/margins/create", bearer(t, "admin"), `{"value":3,"startDate":"2024-06-01","endDate":"2024-06-30"}`)
		require.Equal(t, http.StatusConflict, w.Code)
		assert.JSONEq(t, `{
			"status":"error","status_code":409,"error":"margin overlaps existing margins","code":"MARGIN_CONFLICT",
			"conflicts":{"overlapping":[{"id":"a","value":"0.02","startDate":"2024-01-01","endDate":null,"action":"close","newEndDate":"2024-05-31"}]}
		}`, w.Body.String())
	})

	t.Run("validation error", func(t *testing.T) {
		margins := new(mockMarginService)
		r := newMarginRouter(margins, new(mockAuditService))
		margins.On("CreateMargin", mock.Anything, mock.Anything, testUserID).Return(service.MarginMutationResponse{},
			&service.ServiceError{Status: http.StatusBadRequest, Code: service.CodeFutureStart, Message: "startDate must not be in the future"})

		w := do(r, http.MethodPost, "/margins/create", bearer(t, "admin"), `{"value":1,"startDate":"2999-01-01"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), service.CodeFutureStart)
	})

	t.Run("malformed payload never reaches the service", func(t *testing.T) {
		margins := new(mockMarginService)
		r := newMarginRouter(margins, new(mockAuditService))

		w := do(r, http.MethodPost, "/margins/create", bearer(t, "admin"), `{"startDate":"2024-01-01"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		margins.AssertNotCalled(t, "CreateMargin", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("viewer is forbidden", func(t *testing.T) {
		margins := new(mockMarginService)
		r := newMarginRouter(margins, new(mockAuditService))

		w := do(r, http.MethodPost, "/margins/create", bearer(t, "viewer"), `{"value":1,"startDate":"2024-01-01"}`)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("storage fault is hidden", func(t *testing.T) {
		margins := new(mockMarginService)
		r := newMarginRouter(margins, new(mockAuditService))
		margins.On("CreateMargin", mock.Anything, mock.Anything, testUserID).Return(service.MarginMutationResponse{}, errors.New("pq: connection reset"))

		w := do(r, http.MethodPost, "/margins/create", bearer(t, "admin"), `{"value":1,"startDate":"2024-01-01"}`)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "connection reset")
	})
}

func TestUpdateMargin(t *testing.T) {
	margins := new(mockMarginService)
	r := newMarginRouter(margins, new(mockAuditService))

	margins.On("UpdateMargin", mock.Anything, "m1", mock.Anything, testUserID).Return(service.MarginMutationResponse{
		Margin:   service.MarginResponse{ID: "m1"},
		Adjusted: []service.ConflictEntry{{ID: "m2", Action: "shift", NewStartDate: strPtr("2024-07-16")}},
	}, nil)
	margins.On("UpdateMargin", mock.Anything, "gone", mock.Anything, testUserID).Return(service.MarginMutationResponse{},
		&service.ServiceError{Status: http.StatusNotFound, Code: service.CodeMarginNotFound, Message: "margin not found"})

	w := do(r, http.MethodPut, "/margins/update/m1", bearer(t, "admin"), `{"value":"2.5","startDate":"2024-02-15","endDate":"2024-07-15"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"newStartDate":"2024-07-16"`)

	w = do(r, http.MethodPut, "/margins/update/gone", bearer(t, "admin"), `{"value":1,"startDate":"2024-01-01"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRelinkRates(t *testing.T) {
	margins := new(mockMarginService)
	r := newMarginRouter(margins, new(mockAuditService))
	margins.On("RelinkRates", mock.Anything, testUserID).Return(service.RelinkResponse{Examined: 10, Changed: 2}, nil)

	w := do(r, http.MethodPost, "/margins/relink", bearer(t, "admin"), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"changed":2`)
}

func TestGetAuditLogs(t *testing.T) {
	audits := new(mockAuditService)
	r := newMarginRouter(new(mockMarginService), audits)
	audits.On("GetAuditLogs", mock.Anything, service.AuditQuery{MarginID: "m1", Action: "SHIFT_MARGIN"}, 2, 10).Return([]service.AuditLogResponse{{ID: "l1"}}, int64(11), nil)

	w := do(r, http.MethodGet, "/margins/audit?page=2&limit=10&marginId=m1&action=SHIFT_MARGIN", bearer(t, "admin"), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"totalPages":2`)

	w = do(r, http.MethodGet, "/margins/audit", bearer(t, "viewer"), "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestMarginRoutes_RequireToken(t *testing.T) {
	r := newMarginRouter(new(mockMarginService), new(mockAuditService))

	w := do(r, http.MethodGet, "/margins", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
