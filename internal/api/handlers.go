package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"payouts.hh/internal/pixkey"
	"payouts.hh/internal/service"
	"payouts.hh/internal/withdrawal"
)

type createWithdrawalRequest struct {
	PixKeyID        string `json:"pixkeyid" validate:"max=128"`
	RequestedAmount int64  `json:"requestedamount"`
	Description     string `json:"description" validate:"max=500"`
	IsPix           bool   `json:"isPix"`
}

type updateWithdrawalRequest struct {
	Status          string `json:"status" validate:"required,oneof=approved cancel done_manual done"`
	ReasonForDenial string `json:"reason_for_denial" validate:"max=500"`
}

type withdrawalResponse struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	RequestedAmount int64           `json:"requestedamount"`
	FeeAmount       int64           `json:"fee_amount"`
	Amount          int64           `json:"amount"`
	Status          string          `json:"status"`
	IsPix           bool            `json:"isPix"`
	PixKeyID        *string         `json:"pixkeyid"`
	Description     *string         `json:"description"`
	ReasonForDenial *string         `json:"reason_for_denial"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	IdempotencyKey  *string         `json:"idempotency_key,omitempty"`
	PixKey          *pixkey.Summary `json:"pixkey,omitempty"`
}

var errInvalidRequest = errors.New("invalid request")

func (s *Server) handleCreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req createWithdrawalRequest
	if err := s.decode(r, &req); err != nil {
		s.logFailure(r, "withdrawal_create_failed", http.StatusBadRequest, "invalid_request", err)
		writeError(w, http.StatusBadRequest, "invalid_request", "Requisição inválida")
		return
	}

	key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	if len(key) > maxIdempotencyKeyLen {
		s.logFailure(r, "withdrawal_create_failed", http.StatusBadRequest, "invalid_request", errInvalidRequest)
		writeError(w, http.StatusBadRequest, "invalid_request", "Requisição inválida")
		return
	}

	userID := userFromContext(r.Context())
	created, err := s.svc.CreateWithdrawal(r.Context(), service.CreateInput{
		UserID:          userID,
		RequestedAmount: req.RequestedAmount,
		IsPix:           req.IsPix,
		PixKeyID:        req.PixKeyID,
		Description:     req.Description,
		IdempotencyKey:  key,
	})
	if err != nil {
		status, code, message := classify(err)
		s.logFailure(r, "withdrawal_create_failed", status, code, err,
			zap.String("user_id", userID),
			zap.Int64("requested_amount", req.RequestedAmount),
		)
		writeError(w, status, code, message)
		return
	}

	writeJSON(w, http.StatusCreated, toWithdrawalResponse(created, nil))
}

func (s *Server) handleUpdateWithdrawal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateWithdrawalRequest
	if err := s.decode(r, &req); err != nil {
		s.logFailure(r, "withdrawal_update_failed", http.StatusBadRequest, "invalid_request", err, zap.String("withdrawal_id", id))
		writeError(w, http.StatusBadRequest, "invalid_request", "Requisição inválida")
		return
	}

	var (
		updated withdrawal.Withdrawal
		err     error
	)
	switch withdrawal.Status(req.Status) {
	case withdrawal.StatusApproved:
		updated, err = s.svc.ApproveWithdrawal(r.Context(), id)
	case withdrawal.StatusCancel:
		updated, err = s.svc.CancelWithdrawal(r.Context(), id, req.ReasonForDenial)
	case withdrawal.StatusDoneManual:
		updated, err = s.svc.MarkPaidManually(r.Context(), id)
	case withdrawal.StatusDone:
		updated, err = s.svc.ConfirmPayout(r.Context(), id)
	}
	if err != nil {
		status, code, message := classify(err)
		s.logFailure(r, "withdrawal_update_failed", status, code, err,
			zap.String("withdrawal_id", id),
			zap.String("target_status", req.Status),
		)
		writeError(w, status, code, message)
		return
	}

	writeJSON(w, http.StatusOK, toWithdrawalResponse(updated, nil))
}

func (s *Server) handleGetWithdrawal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	detail, err := s.svc.GetWithdrawal(r.Context(), id)
	if err != nil {
		status, code, message := classify(err)
		s.logFailure(r, "withdrawal_get_failed", status, code, err, zap.String("withdrawal_id", id))
		writeError(w, status, code, message)
		return
	}

	writeJSON(w, http.StatusOK, toWithdrawalResponse(detail.Withdrawal, detail.PixKey))
}

func (s *Server) handleListWithdrawals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, lerr := queryInt(q.Get("limit"))
	offset, oerr := queryInt(q.Get("offset"))
	if lerr != nil || oerr != nil {
		status, code, message := classify(withdrawal.ErrInvalidPagination)
		writeError(w, status, code, message)
		return
	}

	items, err := s.svc.ListWithdrawals(r.Context(), withdrawal.ListFilter{
		Status: q.Get("status"),
		UserID: q.Get("user_id"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		status, code, message := classify(err)
		s.logFailure(r, "withdrawal_list_failed", status, code, err)
		writeError(w, status, code, message)
		return
	}

	out := make([]withdrawalResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toWithdrawalResponse(item, nil))
	}
	writeJSON(w, http.StatusOK, out)
}

// decode reads exactly one JSON document from the body and validates it.
func (s *Server) decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return errors.Join(errInvalidRequest, err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errInvalidRequest
	}
	if err := s.validate.Struct(v); err != nil {
		return errors.Join(errInvalidRequest, err)
	}
	return nil
}

func queryInt(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func toWithdrawalResponse(w withdrawal.Withdrawal, pk *pixkey.Summary) withdrawalResponse {
	return withdrawalResponse{
		ID:              w.ID,
		UserID:          w.UserID,
		RequestedAmount: w.RequestedAmount,
		FeeAmount:       w.FeeAmount,
		Amount:          w.Amount,
		Status:          string(w.Status),
		IsPix:           w.IsPix,
		PixKeyID:        w.PixKeyID,
		Description:     w.Description,
		ReasonForDenial: w.ReasonForDenial,
		CreatedAt:       w.CreatedAt,
		UpdatedAt:       w.UpdatedAt,
		IdempotencyKey:  w.IdempotencyKey,
		PixKey:          pk,
	}
}
