package model

import "time"

// Review is a single user review attached to an entry.
// Reviews are read-only snapshots; the service does not expose stable
// identifiers, so successive fetches are not deduplicated against each other.
type Review struct {
	// DocumentVersion is the entry version the review was written against.
	DocumentVersion string `json:"document_version,omitempty"`

	// TimestampMsec is the review creation time in Unix milliseconds.
	TimestampMsec int64 `json:"timestamp_msec"`

	// StarRating is the rating in the range [1, 5].
	StarRating int `json:"star_rating"`

	// Title is the optional review headline.
	Title string `json:"title,omitempty"`

	// Comment is the free-text body of the review.
	Comment string `json:"comment,omitempty"`

	// AuthorID is the opaque identifier of the review author.
	AuthorID string `json:"author_id,omitempty"`

	// AuthorName is the display name of the review author.
	AuthorName string `json:"author_name,omitempty"`

	// AuthorImageURL is the author's avatar URL, when present.
	AuthorImageURL string `json:"author_image_url,omitempty"`
}

// Time returns the review creation time as a time.Time.
func (r *Review) Time() time.Time {
	return time.UnixMilli(r.TimestampMsec)
}
