package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/cusip-system/internal/middleware"
	"github.com/mmeshcher/cusip-system/internal/model"
	"github.com/mmeshcher/cusip-system/internal/service"
	"github.com/mmeshcher/cusip-system/internal/validation"
)

type stubService struct {
	batchErr error

	historyResp []model.Verification
	historyErr  error

	clearDeleted int64
	clearErr     error
}

func (s *stubService) VerifyCode(clientID, code string) validation.Result {
	return validation.ValidateCUSIP(code)
}

func (s *stubService) VerifyBatch(ctx context.Context, clientID string, codes []string) ([]validation.Result, error) {
	if s.batchErr != nil {
		return nil, s.batchErr
	}
	results := make([]validation.Result, len(codes))
	for i, code := range codes {
		results[i] = validation.ValidateCUSIP(code)
	}
	return results, nil
}

func (s *stubService) ListHistory(ctx context.Context, clientID string, limit int) ([]model.Verification, error) {
	return s.historyResp, s.historyErr
}

func (s *stubService) ClearHistory(ctx context.Context, clientID string) (int64, error) {
	return s.clearDeleted, s.clearErr
}

func newTestHandler(t *testing.T, svc Service) *Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	session := middleware.NewSessionMiddleware("test-secret")

	return NewHandler(svc, logger, session)
}

func TestVerifyCode_InvalidCodeIsStillOK(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/codes/verify", strings.NewReader("68389X106"))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	res := rec.Result()
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if ct := res.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type = %q, want application/json", ct)
	}

	var resp verifyResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if resp.Valid {
		t.Fatalf("code must be invalid: %+v", resp)
	}
	if resp.Error != string(validation.ErrorKindCheckDigitMismatch) {
		t.Fatalf("error = %q, want %q", resp.Error, validation.ErrorKindCheckDigitMismatch)
	}
	if resp.Checksum == nil || *resp.Checksum != 45 {
		t.Fatalf("checksum missing in diagnostic payload: %+v", resp)
	}
	if resp.CalculatedCheckDigit == nil || *resp.CalculatedCheckDigit != 5 {
		t.Fatalf("calculated digit missing: %+v", resp)
	}
	if resp.ProvidedCheckDigit == nil || *resp.ProvidedCheckDigit != 6 {
		t.Fatalf("provided digit missing: %+v", resp)
	}
}

func TestVerifyCode_ValidCodeZeroDigitIsEmitted(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/codes/verify", strings.NewReader("037833100"))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	var resp verifyResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if !resp.Valid {
		t.Fatalf("code must be valid: %+v", resp)
	}
	if resp.CalculatedCheckDigit == nil || *resp.CalculatedCheckDigit != 0 {
		t.Fatalf("legitimate zero digit must be present: %+v", resp)
	}
	if resp.Error != "" {
		t.Fatalf("error must be empty for valid code, got %q", resp.Error)
	}
}

func TestVerifyBatch_ResultsInInputOrder(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	body, _ := json.Marshal(batchRequest{
		Codes: []string{"037833100", "5949181", "68389X106"},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/codes/verify/batch", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	res := rec.Result()
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp []verifyResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if len(resp) != 3 {
		t.Fatalf("got %d results, want 3", len(resp))
	}
	if resp[0].Code != "037833100" || !resp[0].Valid {
		t.Fatalf("unexpected first result: %+v", resp[0])
	}
	if resp[1].Error != string(validation.ErrorKindWrongLength) {
		t.Fatalf("unexpected second result: %+v", resp[1])
	}
	if resp[2].Error != string(validation.ErrorKindCheckDigitMismatch) {
		t.Fatalf("unexpected third result: %+v", resp[2])
	}
}

func TestVerifyBatch_TooLarge(t *testing.T) {
	h := newTestHandler(t, &stubService{batchErr: service.ErrBatchTooLarge})
	router := h.SetupRouter()

	body, _ := json.Marshal(batchRequest{Codes: []string{"037833100"}})

	req := httptest.NewRequest(http.MethodPost, "/api/codes/verify/batch", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnprocessableEntity)
	}
}

func TestVerifyBatch_BadRequest(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "broken json", body: `{"codes": [`},
		{name: "empty list", body: `{"codes": []}`},
		{name: "no codes field", body: `{}`},
	}

	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/codes/verify/batch", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestGetHistory_NoContent(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/codes/history", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
}

func TestGetHistory_JSONResponse(t *testing.T) {
	provided := 6
	calculated := 5
	checksum := 45
	now := time.Now().UTC()

	svc := &stubService{
		historyResp: []model.Verification{
			{
				Code:            "68389X106",
				Valid:           false,
				ErrorKind:       string(validation.ErrorKindCheckDigitMismatch),
				ProvidedDigit:   &provided,
				CalculatedDigit: &calculated,
				Checksum:        &checksum,
				CheckedAt:       now,
			},
		},
	}

	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/codes/history?limit=10", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	res := rec.Result()
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp []historyResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if len(resp) != 1 {
		t.Fatalf("got %d entries, want 1", len(resp))
	}
	if resp[0].Code != "68389X106" || resp[0].CheckedAt != now.Format(time.RFC3339) {
		t.Fatalf("unexpected entry: %+v", resp[0])
	}
}

func TestGetHistory_BadLimit(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/codes/history?limit=abc", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHistory_UnavailableWithoutDatabase(t *testing.T) {
	svc := &stubService{
		historyErr: service.ErrHistoryUnavailable,
		clearErr:   service.ErrHistoryUnavailable,
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		req := httptest.NewRequest(method, "/api/codes/history", nil)
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s status = %d, want %d", method, rec.Code, http.StatusServiceUnavailable)
		}
	}
}

func TestClearHistory_ReportsDeleted(t *testing.T) {
	h := newTestHandler(t, &stubService{clearDeleted: 7})
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodDelete, "/api/codes/history", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp clearHistoryResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Deleted != 7 {
		t.Fatalf("deleted = %d, want 7", resp.Deleted)
	}
}
