package app

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/ledgerline/ledgerline/internal/approvals"
	"github.com/ledgerline/ledgerline/internal/documents"
	"github.com/ledgerline/ledgerline/internal/forwarding"
	"github.com/ledgerline/ledgerline/internal/ledger"
	"github.com/ledgerline/ledgerline/internal/payments"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	LedgerHandler     *ledger.Handler
	DocumentHandler   *documents.Handler
	ApprovalHandler   *approvals.Handler
	PaymentHandler    *payments.Handler
	ForwardingHandler *forwarding.Handler
}

// actorMiddleware propagates the authenticated user id set by the fronting
// gateway. Authorization decisions happen there; the core re-defends its own
// invariants.
func actorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if raw := r.Header.Get("X-Actor-ID"); raw != "" {
			if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
				r = r.WithContext(shared.ContextWithActor(r.Context(), id))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// NewRouter constructs the chi.Router with all module routes mounted.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(params.Config) {
		r.Use(mw)
	}
	r.Use(actorMiddleware)
	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(api chi.Router) {
		api.Route("/ledger", params.LedgerHandler.MountRoutes)
		api.Route("/documents", params.DocumentHandler.MountRoutes)
		api.Route("/approvals", params.ApprovalHandler.MountRoutes)
		api.Route("/payments", params.PaymentHandler.MountRoutes)
		api.Route("/forwarding", params.ForwardingHandler.MountRoutes)
	})

	return r
}
