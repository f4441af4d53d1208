package http

import (
	"context"
	"crypto/subtle"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/mberdnikov/shortly/internal/config"
	"github.com/mberdnikov/shortly/internal/models"
	"github.com/mberdnikov/shortly/internal/service"
)

// adminKeyHeader carries the shared admin secret on admin requests.
const adminKeyHeader = "x-admin-key"

// LinkService defines the interface for the core link shortening business logic.
type LinkService interface {
	// Shorten validates the URL and creates a link for it, or returns the
	// existing one. The bool reports whether a record was created.
	Shorten(ctx context.Context, rawURL, preferredCode string) (*models.Link, bool, error)

	// Resolve retrieves the link for a short code, counting the visit.
	Resolve(ctx context.Context, shortCode string) (*models.Link, error)

	// ListLinks returns one page of the admin listing.
	ListLinks(ctx context.Context, page, limit int) (*service.LinkPage, error)

	// Summary returns collection-wide aggregates.
	Summary(ctx context.Context) (*models.LinkStats, error)

	// DeleteLink removes one link by id; unknown ids succeed.
	DeleteLink(ctx context.Context, id int64) error

	// DeleteLinks removes all links with the given ids.
	DeleteLinks(ctx context.Context, ids []int64) (int64, error)

	// CountLinks returns the total number of links.
	CountLinks(ctx context.Context) (int64, error)

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error

	// ShortURL builds the fully qualified short URL for a code.
	ShortURL(shortCode string) string
}

// getValidate initializes a new validator instance for validating incoming request payloads.
// It customizes tag name extraction from struct fields to match JSON tags.
func getValidate() *validator.Validate {
	validate := validator.New()

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return validate
}

// NewRouter initializes and returns a new HTTP router with all routes and middleware configured.
func NewRouter(logger *httplog.Logger, svc LinkService, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins(),
		AllowedMethods:   []string{"POST", "GET", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Accept", adminKeyHeader},
		AllowCredentials: false,
		MaxAge:           86400,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.Recoverer)

	validate := getValidate()

	r.Get("/", handleRoot)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", handleHealth)
		r.Post("/shorten", handleShorten(svc, validate))

		r.Route("/debug", func(r chi.Router) {
			r.Get("/db", handleDebugDB(svc, cfg.Postgres.DB))
			r.Get("/count", handleDebugCount(svc))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAdminKey(cfg.AdminKey))

			r.Get("/summary", handleSummary(svc))

			r.Route("/links", func(r chi.Router) {
				r.Get("/", handleListLinks(svc))
				r.Delete("/", handleDeleteLinks(svc, validate))
				r.Delete("/{id}", handleDeleteLink(svc))
			})
		})
	})

	r.Get("/{shortCode}", handleRedirect(svc))

	return r
}

// requireAdminKey rejects requests whose admin key header doesn't match the
// configured secret, before any store access. An empty configured secret
// locks the admin surface entirely. Comparison is constant time.
func requireAdminKey(adminKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(adminKeyHeader)

			if adminKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(adminKey)) != 1 {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, errorResponse{Error: msgUnauthorized})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
