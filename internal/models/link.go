package models

import "time"

// Link represents a shortened link and its associated metadata.
type Link struct {
	// ID is the unique identifier for the link record.
	ID int64
	// ShortCode is the short code associated with the original URL.
	ShortCode string
	// OriginalURL is the original, full-length URL that the short code points to.
	OriginalURL string
	// Visits tracks the number of times the shortened link has been followed.
	Visits int64
	// CreatedAt is the timestamp indicating when the link was created.
	CreatedAt time.Time
	// UpdatedAt is the timestamp indicating when the link was last updated.
	UpdatedAt time.Time
}

// LinkStats holds collection-wide aggregates for the admin summary.
type LinkStats struct {
	// TotalLinks is the number of link records in the collection.
	TotalLinks int64
	// TotalVisits is the sum of visit counters across all links.
	TotalVisits int64
}
