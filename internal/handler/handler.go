// Package handler содержит HTTP-обработчики API сервиса проверки кодов.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/cusip-system/internal/middleware"
	"github.com/mmeshcher/cusip-system/internal/model"
	"github.com/mmeshcher/cusip-system/internal/service"
	"github.com/mmeshcher/cusip-system/internal/validation"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	VerifyCode(clientID, code string) validation.Result
	VerifyBatch(ctx context.Context, clientID string, codes []string) ([]validation.Result, error)
	ListHistory(ctx context.Context, clientID string, limit int) ([]model.Verification, error)
	ClearHistory(ctx context.Context, clientID string) (int64, error)
}

// Handler реализует HTTP-обработчики API сервиса проверки кодов.
type Handler struct {
	service Service
	logger  *zap.Logger
	session *middleware.SessionMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, session *middleware.SessionMiddleware) *Handler {
	return &Handler{
		service: s,
		logger:  logger,
		session: session,
	}
}

type verifyResponse struct {
	Code                 string `json:"code"`
	Valid                bool   `json:"valid"`
	Error                string `json:"error,omitempty"`
	ErrorPosition        int    `json:"error_position,omitempty"`
	ProvidedCheckDigit   *int   `json:"provided_check_digit,omitempty"`
	CalculatedCheckDigit *int   `json:"calculated_check_digit,omitempty"`
	Checksum             *int   `json:"checksum,omitempty"`
}

func toVerifyResponse(code string, res validation.Result) verifyResponse {
	resp := verifyResponse{
		Code:          code,
		Valid:         res.Valid,
		Error:         string(res.ErrorKind),
		ErrorPosition: res.Position,
	}

	if res.HasChecksum() {
		sum := res.Sum
		calc := res.CalculatedDigit
		resp.Checksum = &sum
		resp.CalculatedCheckDigit = &calc
	}

	if res.HasProvidedDigit() {
		provided := res.ProvidedDigit
		resp.ProvidedCheckDigit = &provided
	}

	return resp
}

// VerifyCode проверяет один код из тела запроса. Некорректный код — это
// обычный результат проверки, а не ошибка HTTP: статус всегда 200.
func (h *Handler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	clientID, ok := middleware.GetClientIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	defer r.Body.Close()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	code := string(body)
	res := h.service.VerifyCode(clientID, code)

	h.writeJSON(w, toVerifyResponse(code, res))
}

type batchRequest struct {
	Codes []string `json:"codes"`
}

// VerifyBatch проверяет пачку кодов из JSON-запроса.
func (h *Handler) VerifyBatch(w http.ResponseWriter, r *http.Request) {
	clientID, ok := middleware.GetClientIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if len(req.Codes) == 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	results, err := h.service.VerifyBatch(r.Context(), clientID, req.Codes)
	if err != nil {
		if errors.Is(err, service.ErrBatchTooLarge) {
			http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
			return
		}
		h.logger.Error("verify batch error", zap.Error(err), zap.Int("codes", len(req.Codes)))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := make([]verifyResponse, 0, len(results))
	for i, res := range results {
		resp = append(resp, toVerifyResponse(req.Codes[i], res))
	}

	h.writeJSON(w, resp)
}

type historyResponse struct {
	Code                 string `json:"code"`
	Valid                bool   `json:"valid"`
	Error                string `json:"error,omitempty"`
	ErrorPosition        int    `json:"error_position,omitempty"`
	ProvidedCheckDigit   *int   `json:"provided_check_digit,omitempty"`
	CalculatedCheckDigit *int   `json:"calculated_check_digit,omitempty"`
	Checksum             *int   `json:"checksum,omitempty"`
	CheckedAt            string `json:"checked_at"`
}

// GetHistory возвращает последние проверки текущего клиента.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	clientID, ok := middleware.GetClientIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		limit = parsed
		if limit > maxHistoryLimit {
			limit = maxHistoryLimit
		}
	}

	records, err := h.service.ListHistory(r.Context(), clientID, limit)
	if err != nil {
		if errors.Is(err, service.ErrHistoryUnavailable) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
			return
		}
		h.logger.Error("get history error", zap.Error(err), zap.String("clientID", clientID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(records) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]historyResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, historyResponse{
			Code:                 rec.Code,
			Valid:                rec.Valid,
			Error:                rec.ErrorKind,
			ErrorPosition:        rec.Position,
			ProvidedCheckDigit:   rec.ProvidedDigit,
			CalculatedCheckDigit: rec.CalculatedDigit,
			Checksum:             rec.Checksum,
			CheckedAt:            rec.CheckedAt.Format(time.RFC3339),
		})
	}

	h.writeJSON(w, resp)
}

type clearHistoryResponse struct {
	Deleted int64 `json:"deleted"`
}

// ClearHistory удаляет журнал проверок текущего клиента.
func (h *Handler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	clientID, ok := middleware.GetClientIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	deleted, err := h.service.ClearHistory(r.Context(), clientID)
	if err != nil {
		if errors.Is(err, service.ErrHistoryUnavailable) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
			return
		}
		h.logger.Error("clear history error", zap.Error(err), zap.String("clientID", clientID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, clearHistoryResponse{Deleted: deleted})
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
