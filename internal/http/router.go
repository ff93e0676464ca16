package http

import (
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type RouterConfig struct {
	RequestTimeout time.Duration
	MaxBodySize    int64
	AllowedOrigins []string
	Session        SessionTransport
}

type Dependencies struct {
	Carts     CartStore
	Wishlists WishlistStore
	Resolver  OwnerResolver
	Merges    MergeDispatcher
	Logger    *zap.Logger
}

// NewRouter builds the HTTP API. The returned handler is instrumented with
// OpenTelemetry.
func NewRouter(cfg RouterConfig, deps Dependencies) http.Handler {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(middleware.Compress(5))
	// Without configured origins the API is same-origin only.
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", cfg.Session.HeaderName},
			ExposedHeaders:   []string{cfg.Session.HeaderName},
			AllowCredentials: !slices.Contains(cfg.AllowedOrigins, "*"),
			MaxAge:           300,
		}))
	}
	r.Use(MaxBodySize(cfg.MaxBodySize))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	carts := NewCartHandler(deps.Carts, timeout, log)
	wishlists := NewWishlistHandler(deps.Wishlists, timeout, log)
	sessions := NewSessionHandler(deps.Resolver, deps.Merges, cfg.Session, log)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/session/merge", sessions.Merge)

		r.Group(func(r chi.Router) {
			r.Use(IdentityMiddleware(deps.Resolver, cfg.Session, log))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", carts.GetCart)
				r.Delete("/", carts.ClearCart)
				r.Post("/items", carts.AddItem)
				r.Put("/items/{kind}/{id}", carts.UpdateQuantity)
				r.Delete("/items/{kind}/{id}", carts.RemoveItem)
			})

			r.Route("/wishlist", func(r chi.Router) {
				r.Get("/", wishlists.GetWishlist)
				r.Delete("/", wishlists.ClearWishlist)
				r.Post("/items", wishlists.AddItem)
				r.Delete("/items/{kind}/{id}", wishlists.RemoveItem)
			})
		})
	})

	return otelhttp.NewHandler(r, "shopstate-http")
}
