package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	balancedomain "github.com/openutility/wattshare/internal/balance/domain"
	purchasedomain "github.com/openutility/wattshare/internal/purchase/domain"
	readingdomain "github.com/openutility/wattshare/internal/reading/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBalanceService struct {
	balance *balancedomain.Balance
	err     error
}

func (f *fakeBalanceService) ComputeBalance(ctx context.Context, userID string) (*balancedomain.Balance, error) {
	_ = ctx
	if f.err != nil {
		return nil, f.err
	}
	return f.balance, nil
}

type fakeReadingService struct {
	validation *readingdomain.ValidationResult
}

func (f *fakeReadingService) Validate(ctx context.Context, req readingdomain.ValidateRequest) (*readingdomain.ValidationResult, error) {
	_ = ctx
	_ = req
	return f.validation, nil
}

func (f *fakeReadingService) Record(ctx context.Context, req readingdomain.ValidateRequest) (*readingdomain.RecordResult, error) {
	_ = ctx
	_ = req
	return &readingdomain.RecordResult{Validation: f.validation}, nil
}

func (f *fakeReadingService) List(ctx context.Context, req readingdomain.ListRequest) ([]readingdomain.Response, error) {
	_ = ctx
	_ = req
	return nil, nil
}

type fakePurchaseService struct {
	err error
}

func (f *fakePurchaseService) Create(ctx context.Context, req purchasedomain.CreateRequest) (*purchasedomain.Response, error) {
	return nil, f.err
}

func (f *fakePurchaseService) GetByID(ctx context.Context, id string) (*purchasedomain.Response, error) {
	return nil, f.err
}

func (f *fakePurchaseService) List(ctx context.Context, req purchasedomain.ListRequest) ([]purchasedomain.Response, error) {
	return nil, f.err
}

func (f *fakePurchaseService) Delete(ctx context.Context, id string) error {
	return f.err
}

func (f *fakePurchaseService) RecordContribution(ctx context.Context, req purchasedomain.ContributionRequest) (*purchasedomain.ContributionResponse, error) {
	return nil, f.err
}

func (f *fakePurchaseService) UpdateContribution(ctx context.Context, req purchasedomain.ContributionRequest) (*purchasedomain.ContributionResponse, error) {
	return nil, f.err
}

func newTestServer(t *testing.T, s *Server) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(ErrorHandlingMiddleware())
	s.engine = r
	s.registerAPIRoutes()
	return r
}

func TestGetBalance_ReturnsEnvelope(t *testing.T) {
	s := &Server{balanceSvc: &fakeBalanceService{
		balance: &balancedomain.Balance{UserID: "42", RunningBalance: -2},
	}}
	r := newTestServer(t, s)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/balances/42", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data balancedomain.Balance `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "42", body.Data.UserID)
	assert.InDelta(t, -2, body.Data.RunningBalance, 0.001)
}

func TestGetBalance_InvalidUserMapsTo400(t *testing.T) {
	s := &Server{balanceSvc: &fakeBalanceService{err: balancedomain.ErrInvalidUser}}
	r := newTestServer(t, s)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/balances/garbage", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	var body errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "validation_error", body.Error.Type)
}

func TestRecordReading_RejectedValidationIs422(t *testing.T) {
	s := &Server{readingSvc: &fakeReadingService{
		validation: &readingdomain.ValidationResult{
			Valid:  false,
			Errors: []string{"reading 115.00 exceeds the later reading 110.00 recorded on 2024-01-10"},
		},
	}}
	r := newTestServer(t, s)

	payload := []byte(`{"user_id":"42","reading":115,"reading_date":"2024-01-05"}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/readings", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "exceeds the later reading")
}

func TestRecordReading_MissingDateIs400(t *testing.T) {
	s := &Server{readingSvc: &fakeReadingService{}}
	r := newTestServer(t, s)

	payload := []byte(`{"user_id":"42","reading":115}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/readings", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetPurchase_NotFoundMapsTo404(t *testing.T) {
	s := &Server{purchaseSvc: &fakePurchaseService{err: purchasedomain.ErrNotFound}}
	r := newTestServer(t, s)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/purchases/1", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
	var body errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "not_found", body.Error.Type)
}

func TestRecordContribution_ConflictMapsTo409(t *testing.T) {
	s := &Server{purchaseSvc: &fakePurchaseService{err: purchasedomain.ErrContributionExists}}
	r := newTestServer(t, s)

	payload := []byte(`{"user_id":"42","contribution_amount":10,"tokens_consumed":40}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/purchases/1/contribution", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}
