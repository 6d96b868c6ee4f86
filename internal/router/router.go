package router

import (
	"accountmart-api/internal/handler"
	"accountmart-api/internal/middleware"
	"accountmart-api/internal/model"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Config holds the configuration for creating a router.
type Config struct {
	Handler         *handler.Handler
	AuthHandler     *handler.AuthHandler
	CatalogHandler  *handler.CatalogHandler
	PurchaseHandler *handler.PurchaseHandler
	PaymentHandler  *handler.PaymentHandler
	AdminHandler    *handler.AdminHandler
	Verifier        middleware.SessionVerifier
	CORSOrigins     []string
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(middleware.Recovery)

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	authenticate := middleware.Authenticate(cfg.Verifier)

	r.Route("/api", func(r chi.Router) {
		// PUBLIC routes
		r.Get("/status", cfg.Handler.Status)
		r.Get("/health", cfg.Handler.Health)
		r.Get("/ready", cfg.Handler.Ready)

		r.Post("/auth/register", cfg.AuthHandler.Register)
		r.Post("/auth/login", cfg.AuthHandler.Login)
		r.Post("/admin/login", cfg.AuthHandler.OperatorLogin)

		r.Get("/categories", cfg.CatalogHandler.ListCategories)
		r.Get("/categories/{id}", cfg.CatalogHandler.GetCategory)
		r.Get("/payments/payout-address", cfg.PaymentHandler.PayoutAddress)

		// BUYER routes (any signed-in user)
		r.Group(func(r chi.Router) {
			r.Use(authenticate)

			r.Get("/user/profile", cfg.AuthHandler.Profile)

			r.Route("/purchases", func(r chi.Router) {
				r.Post("/", cfg.PurchaseHandler.Purchase)
				r.Get("/", cfg.PurchaseHandler.List)
				r.Get("/{id}/export", cfg.PurchaseHandler.Export)
				r.Delete("/{id}", cfg.PurchaseHandler.Delete)
			})

			r.Post("/payments", cfg.PaymentHandler.Submit)
			r.Get("/payments", cfg.PaymentHandler.ListMine)
		})

		// OPERATOR routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(authenticate)
			r.Use(middleware.RequireRole(model.RoleOperator))

			r.Get("/stats", cfg.AdminHandler.GetStats)
			r.Get("/sales", cfg.AdminHandler.Sales)
			r.Get("/activity", cfg.AdminHandler.Activity)

			r.Get("/users", cfg.AdminHandler.ListUsers)
			r.Put("/users/{id}/balance", cfg.AdminHandler.SetBalance)
			r.Put("/users/{id}/password", cfg.AdminHandler.ResetPassword)
			r.Delete("/users/{id}", cfg.AdminHandler.PurgeUser)

			r.Get("/payments", cfg.PaymentHandler.List)
			r.Put("/payments/{id}/approve", cfg.PaymentHandler.Approve)
			r.Put("/payments/{id}/reject", cfg.PaymentHandler.Reject)

			r.Get("/categories", cfg.CatalogHandler.ListCategories)
			r.Post("/categories", cfg.CatalogHandler.CreateCategory)
			r.Put("/categories/{id}", cfg.CatalogHandler.UpdateCategory)
			r.Delete("/categories/{id}", cfg.CatalogHandler.DeleteCategory)

			r.Get("/items", cfg.CatalogHandler.ListItems)
			r.Post("/items", cfg.CatalogHandler.CreateItem)
			r.Delete("/items/{id}", cfg.CatalogHandler.DeleteItem)

			r.Put("/settings/payout-address", cfg.PaymentHandler.SetPayoutAddress)
			r.Get("/settings/telegram", cfg.AdminHandler.GetTelegram)
			r.Put("/settings/telegram", cfg.AdminHandler.PutTelegram)
		})
	})

	return r
}
