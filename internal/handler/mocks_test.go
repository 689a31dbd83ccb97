package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fxdesk/internal/middleware"
	"fxdesk/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testUserID = "6f1c2a64-3f1e-4d59-9a55-0c8f3b8d2e11"

var testSecret = []byte("handler-test-secret")

type mockMarginService struct{ mock.Mock }

func (m *mockMarginService) GetMargins(ctx context.Context, activeOnly bool) ([]service.MarginResponse, error) {
	args := m.Called(ctx, activeOnly)
	res, _ := args.Get(0).([]service.MarginResponse)
	return res, args.Error(1)
}

func (m *mockMarginService) GetMarginHistory(ctx context.Context) ([]service.MarginResponse, error) {
	args := m.Called(ctx)
	res, _ := args.Get(0).([]service.MarginResponse)
	return res, args.Error(1)
}

func (m *mockMarginService) GetMargin(ctx context.Context, id string) (service.MarginResponse, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(service.MarginResponse), args.Error(1)
}

func (m *mockMarginService) CreateMargin(ctx context.Context, req service.CreateMarginRequest, userID string) (service.MarginMutationResponse, error) {
	args := m.Called(ctx, req, userID)
	return args.Get(0).(service.MarginMutationResponse), args.Error(1)
}

func (m *mockMarginService) UpdateMargin(ctx context.Context, id string, req service.UpdateMarginRequest, userID string) (service.MarginMutationResponse, error) {
	args := m.Called(ctx, id, req, userID)
	return args.Get(0).(service.MarginMutationResponse), args.Error(1)
}

func (m *mockMarginService) RelinkRates(ctx context.Context, userID string) (service.RelinkResponse, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(service.RelinkResponse), args.Error(1)
}

type mockAuditService struct{ mock.Mock }

func (m *mockAuditService) GetAuditLogs(ctx context.Context, query service.AuditQuery, page, limit int) ([]service.AuditLogResponse, int64, error) {
	args := m.Called(ctx, query, page, limit)
	res, _ := args.Get(0).([]service.AuditLogResponse)
	return res, args.Get(1).(int64), args.Error(2)
}

type mockRateService struct{ mock.Mock }

func (m *mockRateService) GetRates(ctx context.Context, query service.RateQuery, page, limit int) ([]service.RateResponse, int64, error) {
	args := m.Called(ctx, query, page, limit)
	res, _ := args.Get(0).([]service.RateResponse)
	return res, args.Get(1).(int64), args.Error(2)
}

func (m *mockRateService) Convert(ctx context.Context, req service.ConvertRequest) (service.ConversionResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(service.ConversionResponse), args.Error(1)
}

func bearer(t *testing.T, role string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  testUserID,
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString(testSecret)
	require.NoError(t, err)
	return "Bearer " + signed
}

func newRouter(register func(*gin.RouterGroup)) *gin.Engine {
	gin.SetMode(gin.TestMode)
	middleware.SetJWTSecret(testSecret)
	r := gin.New()
	register(r.Group(""))
	return r
}

func do(r http.Handler, method, path, auth, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}
