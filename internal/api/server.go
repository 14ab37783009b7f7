package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"payouts.hh/internal/service"
)

// UserHeader carries the caller identity resolved by the upstream
// identity provider.
const UserHeader = "X-User-ID"

// IdempotencyHeader optionally scopes a create request to a client key.
const IdempotencyHeader = "Idempotency-Key"

const maxIdempotencyKeyLen = 128

type ctxKey int

const userKey ctxKey = iota

type Server struct {
	svc       *service.Service
	authToken string
	logger    *zap.Logger
	validate  *validator.Validate
	metrics   http.Handler
}

// NewServer builds the HTTP surface. metrics may be nil.
func NewServer(svc *service.Service, authToken string, logger *zap.Logger, metrics http.Handler) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		svc:       svc,
		authToken: authToken,
		logger:    logger,
		validate:  validator.New(),
		metrics:   metrics,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/withdrawals", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Use(identityMiddleware)

		r.Post("/", s.handleCreateWithdrawal)
		r.Get("/", s.handleListWithdrawals)
		r.Get("/{id}", s.handleGetWithdrawal)
		r.Patch("/{id}", s.handleUpdateWithdrawal)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "Recurso não encontrado")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Método não permitido")
	})
	return r
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r.Header.Get("Authorization"))
		if !secureCompare(token, s.authToken) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Não autorizado")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(UserHeader))
		ctx := context.WithValue(r.Context(), userKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(userKey).(string)
	return userID
}

func extractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
