package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/millbrook/orderdesk/internal/application"
	"github.com/millbrook/orderdesk/internal/ports"
)

// Handler is the HTTP adapter entrypoint for cache and order use-cases.
// Keeping only application dependencies here preserves clean adapter boundaries.
type Handler struct {
	service  *application.Service
	verifier ports.TokenVerifier
}

// NewHandler constructs an HTTP handler bound to the application service.
func NewHandler(service *application.Service, verifier ports.TokenVerifier) *Handler {
	return &Handler{service: service, verifier: verifier}
}

// NewRouter registers routes and the middleware stack. Centralizing routes
// here ensures consistent auth and error behavior across endpoints.
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)

	r.Get("/healthz", handler.healthz)
	r.Get("/readyz", handler.readyz)

	r.Route("/cache/v1", func(r chi.Router) {
		r.Get("/health", handler.cacheHealth)

		r.Group(func(r chi.Router) {
			r.Use(handler.authMiddleware)
			r.Use(handler.requireRole("admin"))

			r.Get("/stats", handler.stats)
			r.Get("/metrics", handler.metrics)
			r.Post("/metrics/reset", handler.resetMetrics)
			r.Post("/clear", handler.clearCache)
			r.Post("/invalidate/pattern", handler.invalidatePattern)
			r.Post("/invalidate/tag/{tag}", handler.invalidateTag)
			r.Post("/invalidate/entity", handler.invalidateEntity)
			r.Post("/warmup", handler.runWarmup)
			r.Post("/warmup/{name}", handler.runWarmupJob)
			r.Post("/loadtest", handler.runLoadTest)
		})
	})

	r.Route("/orders/v1", func(r chi.Router) {
		r.Use(handler.authMiddleware)

		r.Post("/orders", handler.createOrder)
		r.Get("/orders/{order_id}", handler.getOrder)
		r.Put("/orders/{order_id}", handler.updateOrder)
		r.Delete("/orders/{order_id}", handler.deleteOrder)

		r.Post("/customers", handler.createCustomer)
		r.Get("/customers/{customer_id}", handler.getCustomer)
		r.Put("/customers/{customer_id}", handler.updateCustomer)
		r.Delete("/customers/{customer_id}", handler.deleteCustomer)

		r.Post("/products", handler.createProduct)
		r.Get("/products/{product_id}", handler.getProduct)
		r.Put("/products/{product_id}", handler.updateProduct)
		r.Delete("/products/{product_id}", handler.deleteProduct)
	})

	return r
}
