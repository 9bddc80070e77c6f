package model

// Entry is one catalog item as returned by the details operation.
// It is an immutable snapshot: re-fetching the same doc id may return a
// different snapshot if the store listing changed in between.
//
// Design decision: We use a single flat struct rather than mirroring the
// nested wire message because downstream code (crawler, database, report)
// only cares about a handful of fields. The protocol codec flattens the
// nesting exactly once at the decode boundary.
type Entry struct {
	// DocID is the opaque identifier of the entry (e.g. "com.example.app").
	DocID string `json:"doc_id"`

	// BackendDocID is the backend-side identifier, usually equal to DocID.
	BackendDocID string `json:"backend_doc_id,omitempty"`

	// Title is the display title of the entry.
	Title string `json:"title"`

	// Creator is the publisher display name.
	Creator string `json:"creator,omitempty"`

	// DescriptionHTML is the full HTML description.
	DescriptionHTML string `json:"description_html,omitempty"`

	// DescriptionShort is the short promotional description.
	DescriptionShort string `json:"description_short,omitempty"`

	// VersionCode is the current binary version. Required for the
	// delivery and purchase operations; zero means unknown.
	VersionCode int `json:"version_code"`

	// VersionString is the human-readable version (e.g. "2.4.1").
	VersionString string `json:"version_string,omitempty"`

	// UploadDate is the date text reported by the service.
	UploadDate string `json:"upload_date,omitempty"`

	// RecentChangesHTML is the changelog for the current version.
	RecentChangesHTML string `json:"recent_changes_html,omitempty"`

	// NumDownloads is the download count text (e.g. "1,000,000+").
	NumDownloads string `json:"num_downloads,omitempty"`

	// InstallationSize is the binary size in bytes.
	InstallationSize int64 `json:"installation_size,omitempty"`

	// PriceMicros is the price in micro-units of CurrencyCode.
	// Zero means the entry is free.
	PriceMicros int64 `json:"price_micros"`

	// CurrencyCode is the ISO currency code for PriceMicros.
	CurrencyCode string `json:"currency_code,omitempty"`

	// DeveloperName, DeveloperEmail, and DeveloperWebsite identify the
	// publisher as listed on the details page.
	DeveloperName    string `json:"developer_name,omitempty"`
	DeveloperEmail   string `json:"developer_email,omitempty"`
	DeveloperWebsite string `json:"developer_website,omitempty"`

	// Permissions lists the permission identifiers the binary requests.
	Permissions []string `json:"permissions,omitempty"`

	// ContainsAds reports whether the listing is flagged as ad-supported.
	ContainsAds bool `json:"contains_ads,omitempty"`

	// ContentRating is the age-rating label (e.g. "Everyone").
	ContentRating string `json:"content_rating,omitempty"`

	// PrivacyPolicyURL links to the publisher's privacy policy.
	PrivacyPolicyURL string `json:"privacy_policy_url,omitempty"`

	// Images holds image URLs attached to the listing (icon, screenshots).
	Images []string `json:"images,omitempty"`

	// Rating aggregates the star-rating histogram.
	Rating AggregateRating `json:"rating"`

	// RelatedToken is the opaque navigation token that resolves to this
	// entry's related-entries list. Empty when the listing has none.
	RelatedToken string `json:"related_token,omitempty"`
}

// IsFree reports whether the entry can be obtained without payment.
func (e *Entry) IsFree() bool {
	return e.PriceMicros == 0
}

// HasRelated reports whether the entry carries a related-entries token.
func (e *Entry) HasRelated() bool {
	return e.RelatedToken != ""
}

// AggregateRating is the star-rating histogram of an entry.
type AggregateRating struct {
	// StarRating is the mean rating in the range [0, 5].
	StarRating float64 `json:"star_rating"`

	// RatingsCount is the total number of ratings.
	RatingsCount int64 `json:"ratings_count"`

	// OneStar through FiveStar are the per-bucket counts.
	OneStar   int64 `json:"one_star"`
	TwoStar   int64 `json:"two_star"`
	ThreeStar int64 `json:"three_star"`
	FourStar  int64 `json:"four_star"`
	FiveStar  int64 `json:"five_star"`
}

// EntryStub is the minimal form of an entry as it appears in a
// related-entries list. Only DocID is guaranteed to be present.
type EntryStub struct {
	// DocID is the opaque identifier of the stub.
	DocID string `json:"doc_id"`

	// Title is the display title, when the service included it.
	Title string `json:"title,omitempty"`

	// Creator is the publisher display name, when included.
	Creator string `json:"creator,omitempty"`

	// PriceMicros is the price in micro-units, when included.
	PriceMicros int64 `json:"price_micros,omitempty"`
}

// Enrichment holds supplementary fields scraped from the public store
// web page, outside the binary protocol.
type Enrichment struct {
	// Categories are the genre labels of the listing.
	Categories []string `json:"categories,omitempty"`

	// RequiredOS is the minimum OS version text (e.g. "5.0 and up").
	RequiredOS string `json:"required_os,omitempty"`
}

// Visit bundles everything collected for one successfully visited entry.
// It is the unit handed to the persistence layer.
type Visit struct {
	// Entry is the details snapshot.
	Entry *Entry `json:"entry"`

	// Reviews are the user reviews fetched for the entry.
	Reviews []Review `json:"reviews,omitempty"`

	// Related are the stubs resolved from the entry's navigation token.
	Related []EntryStub `json:"related,omitempty"`

	// Enrichment holds web-scraped supplementary fields; nil when
	// enrichment was disabled or failed.
	Enrichment *Enrichment `json:"enrichment,omitempty"`
}
