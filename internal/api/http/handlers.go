package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/mberdnikov/shortly/internal/database"
	"github.com/mberdnikov/shortly/internal/models"
	"github.com/mberdnikov/shortly/internal/service"
)

const (
	msgInvalidURL   = "Invalid URL. Must start with http:// or https://"
	msgInvalidID    = "Invalid id"
	msgIDsRequired  = "ids array required"
	msgUnauthorized = "Unauthorized"
	msgServerError  = "Server error"
)

// errorResponse is the JSON error body shared by every JSON endpoint.
type errorResponse struct {
	Error string `json:"error"`
}

// handleRoot serves a plain-text liveness banner at the root path.
func handleRoot(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "shortly API is live. Try: /api/health, /api/debug/db, /api/debug/count, /api/admin/links")
}

// handleHealth handles health check requests to ensure the server is running.
func handleHealth(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]bool{"ok": true})
}

// shortenRequest represents the request payload for shortening a URL.
type shortenRequest struct {
	URL           string `json:"url" validate:"required,http_url"`
	PreferredCode string `json:"preferredCode"`
}

// shortenResponse represents the response payload for a shortened link.
type shortenResponse struct {
	ShortCode   string `json:"short_code"`
	ShortURL    string `json:"short_url"`
	OriginalURL string `json:"original_url"`
}

// handleShorten handles POST requests to shorten a URL.
//
// The request must contain an absolute http/https URL and may carry a code
// preference. The handler answers 201 when a record was created and 200 when
// the URL was already known.
func handleShorten(svc LinkService, validate *validator.Validate) http.HandlerFunc {
	const op = "api.http.handleShorten"

	return func(w http.ResponseWriter, r *http.Request) {
		var req shortenRequest

		if err := render.DecodeJSON(r.Body, &req); err != nil && !errors.Is(err, io.EOF) {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, errorResponse{Error: msgInvalidURL})
			return
		}

		if err := validate.Struct(req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, errorResponse{Error: msgInvalidURL})
			return
		}

		link, created, err := svc.Shorten(r.Context(), req.URL, req.PreferredCode)
		if err != nil {
			if errors.Is(err, service.ErrInvalidURL) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, errorResponse{Error: msgInvalidURL})
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, errorResponse{Error: msgServerError})
			return
		}

		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}

		render.Status(r, status)
		render.JSON(w, r, shortenResponse{
			ShortCode:   link.ShortCode,
			ShortURL:    svc.ShortURL(link.ShortCode),
			OriginalURL: link.OriginalURL,
		})
	}
}

// handleRedirect handles GET requests on short codes.
//
// Known codes answer with a 302 to the original URL and count the visit;
// unknown codes answer 404 with a plain-text body.
func handleRedirect(svc LinkService) http.HandlerFunc {
	const op = "api.http.handleRedirect"

	return func(w http.ResponseWriter, r *http.Request) {
		shortCode := chi.URLParam(r, "shortCode")

		link, err := svc.Resolve(r.Context(), shortCode)
		if err != nil {
			if errors.Is(err, database.ErrLinkNotFound) {
				http.Error(w, "Not found", http.StatusNotFound)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			http.Error(w, msgServerError, http.StatusInternalServerError)
			return
		}

		http.Redirect(w, r, link.OriginalURL, http.StatusFound)
	}
}

// linkRow is one row of the admin listing.
type linkRow struct {
	ID          int64     `json:"id"`
	ShortCode   string    `json:"short_code"`
	ShortURL    string    `json:"short_url"`
	OriginalURL string    `json:"original_url"`
	Visits      int64     `json:"visits"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toLinkRow(svc LinkService, link *models.Link) linkRow {
	return linkRow{
		ID:          link.ID,
		ShortCode:   link.ShortCode,
		ShortURL:    svc.ShortURL(link.ShortCode),
		OriginalURL: link.OriginalURL,
		Visits:      link.Visits,
		CreatedAt:   link.CreatedAt,
	}
}

// linkListResponse represents one page of the admin listing.
type linkListResponse struct {
	Page  int       `json:"page"`
	Limit int       `json:"limit"`
	Total int64     `json:"total"`
	Rows  []linkRow `json:"rows"`
}

// handleListLinks handles GET requests for the paginated admin listing.
//
// Unparsable page/limit query values fall back to the defaults; clamping
// happens in the service.
func handleListLinks(svc LinkService) http.HandlerFunc {
	const op = "api.http.handleListLinks"

	return func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		linkPage, err := svc.ListLinks(r.Context(), page, limit)
		if err != nil {
			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, errorResponse{Error: msgServerError})
			return
		}

		rows := make([]linkRow, 0, len(linkPage.Links))
		for i := range linkPage.Links {
			rows = append(rows, toLinkRow(svc, &linkPage.Links[i]))
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, linkListResponse{
			Page:  linkPage.Page,
			Limit: linkPage.Limit,
			Total: linkPage.Total,
			Rows:  rows,
		})
	}
}

// summaryResponse represents the admin aggregate summary.
type summaryResponse struct {
	TotalLinks  int64 `json:"total_links"`
	TotalVisits int64 `json:"total_visits"`
}

// handleSummary handles GET requests for the admin aggregate summary.
func handleSummary(svc LinkService) http.HandlerFunc {
	const op = "api.http.handleSummary"

	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := svc.Summary(r.Context())
		if err != nil {
			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, errorResponse{Error: msgServerError})
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, summaryResponse{
			TotalLinks:  stats.TotalLinks,
			TotalVisits: stats.TotalVisits,
		})
	}
}

// deleteLinkResponse represents the response payload of a single deletion.
type deleteLinkResponse struct {
	OK      bool  `json:"ok"`
	Deleted int64 `json:"deleted"`
}

// handleDeleteLink handles DELETE requests for a single link.
//
// Deletion is idempotent: an id with no matching record still answers 200.
func handleDeleteLink(svc LinkService) http.HandlerFunc {
	const op = "api.http.handleDeleteLink"

	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, errorResponse{Error: msgInvalidID})
			return
		}

		if err := svc.DeleteLink(r.Context(), id); err != nil {
			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, errorResponse{Error: msgServerError})
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, deleteLinkResponse{OK: true, Deleted: id})
	}
}

// deleteLinksRequest represents the request payload of a bulk deletion.
type deleteLinksRequest struct {
	IDs []int64 `json:"ids" validate:"required,min=1"`
}

// deleteLinksResponse represents the response payload of a bulk deletion.
type deleteLinksResponse struct {
	OK           bool  `json:"ok"`
	DeletedCount int64 `json:"deletedCount"`
}

// handleDeleteLinks handles DELETE requests for a batch of links.
//
// The ids array must be non-empty; ids without a matching record simply
// don't contribute to the returned count.
func handleDeleteLinks(svc LinkService, validate *validator.Validate) http.HandlerFunc {
	const op = "api.http.handleDeleteLinks"

	return func(w http.ResponseWriter, r *http.Request) {
		var req deleteLinksRequest

		if err := render.DecodeJSON(r.Body, &req); err != nil && !errors.Is(err, io.EOF) {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, errorResponse{Error: msgIDsRequired})
			return
		}

		if err := validate.Struct(req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, errorResponse{Error: msgIDsRequired})
			return
		}

		deleted, err := svc.DeleteLinks(r.Context(), req.IDs)
		if err != nil {
			if errors.Is(err, service.ErrEmptyIDs) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, errorResponse{Error: msgIDsRequired})
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, errorResponse{Error: msgServerError})
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, deleteLinksResponse{OK: true, DeletedCount: deleted})
	}
}

// debugDBResponse reports the store connection state.
type debugDBResponse struct {
	Connected bool   `json:"connected"`
	Database  string `json:"database"`
}

// handleDebugDB handles GET requests probing the store connection.
func handleDebugDB(svc LinkService, dbName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connected := svc.Ping(r.Context()) == nil

		render.Status(r, http.StatusOK)
		render.JSON(w, r, debugDBResponse{
			Connected: connected,
			Database:  dbName,
		})
	}
}

// debugCountResponse reports the raw size of the link collection.
type debugCountResponse struct {
	LinksCount int64 `json:"links_count"`
}

// handleDebugCount handles GET requests counting link records.
func handleDebugCount(svc LinkService) http.HandlerFunc {
	const op = "api.http.handleDebugCount"

	return func(w http.ResponseWriter, r *http.Request) {
		count, err := svc.CountLinks(r.Context())
		if err != nil {
			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, errorResponse{Error: "Failed to count documents"})
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, debugCountResponse{LinksCount: count})
	}
}
