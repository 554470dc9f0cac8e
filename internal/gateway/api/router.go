package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/chainkvm/teleop/internal/gateway/revocation"
	"github.com/chainkvm/teleop/internal/gateway/session"
	"github.com/chainkvm/teleop/internal/gateway/token"
)

// Handler wires the session manager, revocation coordinator, and key
// set to the gateway's HTTP surface.
type Handler struct {
	sessions    *session.Manager
	revocations *revocation.Coordinator
	keys        *token.KeySet
	verifier    *token.Verifier
	adminKey    string
	logger      *zap.Logger
}

// NewHandler creates a Handler.
func NewHandler(sessions *session.Manager, revocations *revocation.Coordinator, keys *token.KeySet, adminKey string, logger *zap.Logger) *Handler {
	return &Handler{sessions: sessions, revocations: revocations, keys: keys, verifier: token.NewVerifier(keys), adminKey: adminKey, logger: logger}
}

// Router builds the chi mux for the gateway's HTTP surface.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(10 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Admin-API-Key"},
		MaxAge:           300,
	}))

	r.Get("/healthz", h.handleHealthz)
	r.Get("/.well-known/jwks.json", h.handleJWKS)

	r.Route("/v1/sessions", func(r chi.Router) {
		r.Post("/", h.handleCreateSession)
		r.Get("/{id}", h.handleGetSession)
		r.Delete("/{id}", h.handleTerminateSession)
		r.Post("/{id}/refresh", h.handleRefreshSession)
	})

	r.Route("/v1/revocations", func(r chi.Router) {
		r.Use(h.requireAdmin)
		r.Post("/", h.handleRevoke)
	})

	return r
}
