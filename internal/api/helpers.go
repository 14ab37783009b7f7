package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"payouts.hh/internal/withdrawal"
)

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Message: message, Error: code})
}

type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

var errorTable = []errorMapping{
	{withdrawal.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount", "Valor solicitado inválido"},
	{withdrawal.ErrMissingPixKey, http.StatusBadRequest, "missing_pix_key", "Chave Pix obrigatória para saque via Pix"},
	{withdrawal.ErrMissingReason, http.StatusBadRequest, "missing_reason", "Motivo da recusa é obrigatório"},
	{withdrawal.ErrInvalidPagination, http.StatusBadRequest, "invalid_pagination", "Paginação inválida"},
	{withdrawal.ErrIdempotencyConflict, http.StatusUnprocessableEntity, "idempotency_conflict", "Chave de idempotência já usada com outro pedido"},
	{withdrawal.ErrMissingUser, http.StatusUnauthorized, "missing_user", "Usuário não identificado"},
	{withdrawal.ErrNotFound, http.StatusNotFound, "not_found", "Saque não encontrado"},
	{withdrawal.ErrInvalidTransition, http.StatusConflict, "invalid_transition", "Transição de status inválida para este saque"},
	{withdrawal.ErrPersistence, http.StatusServiceUnavailable, "persistence_error", "Serviço temporariamente indisponível"},
}

// classify maps a service error to its HTTP status, stable code and message.
func classify(err error) (int, string, string) {
	for _, m := range errorTable {
		if errors.Is(err, m.target) {
			return m.status, m.code, m.message
		}
	}
	return http.StatusInternalServerError, "internal_error", "Erro interno"
}
