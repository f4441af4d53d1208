package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/mberdnikov/shortly/internal/database"
	"github.com/mberdnikov/shortly/internal/models"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// shortCodeAlphabet is the 62-character alphabet generated codes are drawn from.
const shortCodeAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

var (
	// ErrInvalidURL is returned when the submitted URL is not an absolute
	// http or https URL.
	ErrInvalidURL = errors.New("invalid url")
	// ErrEmptyIDs is returned when a bulk delete is requested without ids.
	ErrEmptyIDs = errors.New("ids must not be empty")
	// ErrMaxRetriesExceeded is returned when the maximum number of retries for generating a short code is exceeded.
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded for generating short code")
)

// preferredCodeRegexp constrains caller-supplied codes. Anything outside
// it is silently discarded in favor of a generated code.
var preferredCodeRegexp = regexp.MustCompile(`^[A-Za-z0-9_-]{3,30}$`)

// LinkRepository defines the interface for working with links at the business logic layer.
type LinkRepository interface {
	// Create inserts a new link into the repository.
	Create(ctx context.Context, shortCode, originalURL string) (*models.Link, error)

	// GetByOriginalURL retrieves a link whose original URL exactly matches the argument.
	GetByOriginalURL(ctx context.Context, originalURL string) (*models.Link, error)

	// ResolveShortCode retrieves a link by its short code and atomically
	// increments its visit counter.
	ResolveShortCode(ctx context.Context, shortCode string) (*models.Link, error)

	// List retrieves a page of links ordered newest first.
	List(ctx context.Context, limit, offset int) ([]models.Link, error)

	// Count returns the total number of links.
	Count(ctx context.Context) (int64, error)

	// Stats returns collection-wide aggregates.
	Stats(ctx context.Context) (*models.LinkStats, error)

	// Delete removes at most one link by id, returning the number of
	// records removed.
	Delete(ctx context.Context, id int64) (int64, error)

	// DeleteMany removes all links with the given ids, returning the
	// number of records removed.
	DeleteMany(ctx context.Context, ids []int64) (int64, error)

	// Ping reports whether the underlying store is reachable.
	Ping(ctx context.Context) error
}

// LinkPage is one page of the admin listing. Total is an independent
// full-collection count, not the number of rows on the page.
type LinkPage struct {
	Page  int
	Limit int
	Total int64
	Links []models.Link
}

// LinkService provides the shortening, redirect and admin operations.
// The service uses a LinkRepository interface to interact with the underlying database.
type LinkService struct {
	repo            LinkRepository
	baseURL         string
	shortCodeLength int
}

// NewLinkService creates a new instance of LinkService. baseURL is the public
// base used to build fully qualified short URLs and must not end with a slash.
func NewLinkService(repo LinkRepository, baseURL string, shortCodeLength int) *LinkService {
	return &LinkService{
		repo:            repo,
		baseURL:         strings.TrimRight(baseURL, "/"),
		shortCodeLength: shortCodeLength,
	}
}

// ShortURL builds the fully qualified short URL for a code.
func (s *LinkService) ShortURL(shortCode string) string {
	return s.baseURL + "/" + shortCode
}

// Shorten validates the URL and either returns the existing link for it or
// creates a new one. The second return value reports whether a record was
// created. Deduplication is by exact string match after trimming; two
// submissions differing only in case or trailing slash produce distinct links.
//
// A sanitized preferred code is used for the first create attempt only.
// Collisions fall back to generated codes, bounded by a retry limit backed
// by the unique index on short_code.
func (s *LinkService) Shorten(ctx context.Context, rawURL, preferredCode string) (*models.Link, bool, error) {
	const op = "service.LinkService.Shorten"
	const maxRetries = 5

	originalURL := strings.TrimSpace(rawURL)
	if !isWebURL(originalURL) {
		return nil, false, fmt.Errorf("%s: %w", op, ErrInvalidURL)
	}

	link, err := s.repo.GetByOriginalURL(ctx, originalURL)
	if err == nil {
		return link, false, nil
	}
	if !errors.Is(err, database.ErrLinkNotFound) {
		return nil, false, fmt.Errorf("%s: failed to check for existing link: %w", op, err)
	}

	candidate := SanitizeCode(preferredCode)

	for i := 0; i < maxRetries; i++ {
		shortCode := candidate
		candidate = ""

		if shortCode == "" {
			shortCode, err = gonanoid.Generate(shortCodeAlphabet, s.shortCodeLength)
			if err != nil {
				return nil, false, fmt.Errorf("%s: failed to generate short code: %w", op, err)
			}
		}

		link, err := s.repo.Create(ctx, shortCode, originalURL)
		if err != nil {
			if errors.Is(err, database.ErrShortCodeExists) {
				continue
			}

			return nil, false, fmt.Errorf("%s: failed to shorten url: %w", op, err)
		}

		return link, true, nil
	}

	return nil, false, fmt.Errorf("%s: %w", op, ErrMaxRetriesExceeded)
}

// Resolve retrieves the link associated with the provided short code and
// counts the visit. The two happen as one atomic store operation.
func (s *LinkService) Resolve(ctx context.Context, shortCode string) (*models.Link, error) {
	const op = "service.LinkService.Resolve"

	link, err := s.repo.ResolveShortCode(ctx, shortCode)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to resolve short code: %w", op, err)
	}

	return link, nil
}

const (
	defaultPageLimit = 20
	maxPageLimit     = 200
)

// ListLinks returns one page of the admin listing. The page number is
// floored at 1 and the limit clamped to [1,200], defaulting to 20.
func (s *LinkService) ListLinks(ctx context.Context, page, limit int) (*LinkPage, error) {
	const op = "service.LinkService.ListLinks"

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	links, err := s.repo.List(ctx, limit, (page-1)*limit)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to list links: %w", op, err)
	}

	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to count links: %w", op, err)
	}

	return &LinkPage{
		Page:  page,
		Limit: limit,
		Total: total,
		Links: links,
	}, nil
}

// Summary retrieves the collection-wide aggregates for the admin panel.
func (s *LinkService) Summary(ctx context.Context) (*models.LinkStats, error) {
	const op = "service.LinkService.Summary"

	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get link stats: %w", op, err)
	}

	return stats, nil
}

// DeleteLink removes the link with the given id. Deleting an id that
// doesn't exist succeeds; deletion is idempotent.
func (s *LinkService) DeleteLink(ctx context.Context, id int64) error {
	const op = "service.LinkService.DeleteLink"

	if _, err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("%s: failed to delete link: %w", op, err)
	}

	return nil
}

// DeleteLinks removes all links with the given ids in one operation and
// returns how many existed. An empty id list is rejected.
func (s *LinkService) DeleteLinks(ctx context.Context, ids []int64) (int64, error) {
	const op = "service.LinkService.DeleteLinks"

	if len(ids) == 0 {
		return 0, fmt.Errorf("%s: %w", op, ErrEmptyIDs)
	}

	deleted, err := s.repo.DeleteMany(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("%s: failed to delete links: %w", op, err)
	}

	return deleted, nil
}

// Ping reports whether the backing store is reachable.
func (s *LinkService) Ping(ctx context.Context) error {
	const op = "service.LinkService.Ping"

	if err := s.repo.Ping(ctx); err != nil {
		return fmt.Errorf("%s: store is unreachable: %w", op, err)
	}

	return nil
}

// CountLinks returns the total number of links.
func (s *LinkService) CountLinks(ctx context.Context) (int64, error) {
	const op = "service.LinkService.CountLinks"

	count, err := s.repo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: failed to count links: %w", op, err)
	}

	return count, nil
}

// SanitizeCode trims a caller-supplied code preference and returns it when
// it is 3-30 characters of [A-Za-z0-9_-]. Anything else yields "".
func SanitizeCode(code string) string {
	code = strings.TrimSpace(code)
	if !preferredCodeRegexp.MatchString(code) {
		return ""
	}

	return code
}

// isWebURL reports whether the string is an absolute URL with an http or
// https scheme.
func isWebURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
