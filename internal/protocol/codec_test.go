package protocol

import (
	"errors"
	"math"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"
)

// Test-side wire builders. These construct response envelopes field by
// field so the decoder is exercised against real wire bytes rather than
// fixtures captured from the live service.

func appendField(b []byte, num protowire.Number, value []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, value)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	return appendField(b, num, []byte(s))
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendDoubleField(b []byte, num protowire.Number, v float64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

// wrapPayload wraps payload bytes in the top-level wrapper message.
func wrapPayload(payload []byte) []byte {
	return appendField(nil, fieldWrapperPayload, payload)
}

// errorEnvelope builds a wrapper carrying only a display error message.
func errorEnvelope(msg string) []byte {
	commands := appendString(nil, fieldCommandsErrorMessage, msg)
	return appendField(nil, fieldWrapperCommands, commands)
}

// detailsEnvelope builds a details response for one document.
func detailsEnvelope(doc []byte) []byte {
	details := appendField(nil, fieldDetailsDoc, doc)
	return wrapPayload(appendField(nil, fieldPayloadDetails, details))
}

// fullTestDoc builds a document message populated across all sub-messages.
func fullTestDoc(t *testing.T) []byte {
	t.Helper()

	offer := appendVarintField(nil, fieldOfferMicros, 1990000)
	offer = appendString(offer, fieldOfferCurrency, "USD")

	icon := appendString(nil, fieldImageURL, "https://img.example.com/icon.png")
	shot := appendString(nil, fieldImageURL, "https://img.example.com/shot1.png")

	app := appendString(nil, fieldAppDeveloperName, "Example Ltd")
	app = appendVarintField(app, fieldAppVersionCode, 2041)
	app = appendString(app, fieldAppVersionString, "2.4.1")
	app = appendVarintField(app, fieldAppInstallationSize, 15728640)
	app = appendString(app, fieldAppPermission, "android.permission.INTERNET")
	app = appendString(app, fieldAppPermission, "android.permission.CAMERA")
	app = appendString(app, fieldAppDeveloperEmail, "dev@example.com")
	app = appendString(app, fieldAppDeveloperWebsite, "https://example.com")
	app = appendString(app, fieldAppNumDownloads, "1,000,000+")
	app = appendString(app, fieldAppRecentChanges, "Bug fixes")
	app = appendString(app, fieldAppUploadDate, "August 12, 2026")
	app = appendVarintField(app, fieldAppContainsAds, 1)
	appDetails := appendField(nil, fieldDocDetailsApp, app)

	rating := appendDoubleField(nil, fieldRatingStar, 4.25)
	rating = appendVarintField(rating, fieldRatingCount, 1500)
	rating = appendVarintField(rating, fieldRatingOneStar, 50)
	rating = appendVarintField(rating, fieldRatingTwoStar, 100)
	rating = appendVarintField(rating, fieldRatingThreeStar, 150)
	rating = appendVarintField(rating, fieldRatingFourStar, 400)
	rating = appendVarintField(rating, fieldRatingFiveStar, 800)

	rated := appendString(nil, fieldRatedLabel, "Everyone")
	alsoLike := appendString(nil, fieldAlsoLikeToken, "rec?c=3&doc=com.example.app")
	related := appendField(nil, fieldRelatedRated, rated)
	related = appendString(related, fieldRelatedPrivacyURL, "https://example.com/privacy")
	related = appendField(related, fieldRelatedAlsoLike, alsoLike)

	doc := appendString(nil, fieldDocID, "com.example.app")
	doc = appendString(doc, fieldDocBackendID, "com.example.app")
	doc = appendString(doc, fieldDocTitle, "Example App")
	doc = appendString(doc, fieldDocCreator, "Example Ltd")
	doc = appendString(doc, fieldDocDescriptionHTML, "<p>Long description</p>")
	doc = appendField(doc, fieldDocOffer, offer)
	doc = appendField(doc, fieldDocImage, icon)
	doc = appendField(doc, fieldDocImage, shot)
	doc = appendField(doc, fieldDocDetails, appDetails)
	doc = appendField(doc, fieldDocRating, rating)
	doc = appendField(doc, fieldDocRelatedLinks, related)
	doc = appendString(doc, fieldDocDescriptionShort, "Short description")
	return doc
}

// stubDoc builds a minimal child document for list responses.
func stubDoc(docID, title string, priceMicros uint64) []byte {
	doc := appendString(nil, fieldDocID, docID)
	doc = appendString(doc, fieldDocTitle, title)
	if priceMicros > 0 {
		offer := appendVarintField(nil, fieldOfferMicros, priceMicros)
		doc = appendField(doc, fieldDocOffer, offer)
	}
	return doc
}

// listEnvelope builds a list response: one container document whose
// children are the given stubs.
func listEnvelope(stubs ...[]byte) []byte {
	var container []byte
	container = appendString(container, fieldDocID, "container")
	for _, s := range stubs {
		container = appendField(container, fieldDocChild, s)
	}
	list := appendField(nil, fieldListDoc, container)
	return wrapPayload(appendField(nil, fieldPayloadList, list))
}

// relatedEnvelope wraps a list envelope into the first prefetch slot.
func relatedEnvelope(inner []byte) []byte {
	prefetch := appendString(nil, 1, "rec?c=3&doc=com.example.app")
	prefetch = appendField(prefetch, fieldPrefetchResponse, inner)
	return appendField(nil, fieldWrapperPrefetch, prefetch)
}

// reviewsEnvelope builds a reviews response carrying the given reviews.
func reviewsEnvelope(reviews ...[]byte) []byte {
	var getResp []byte
	for _, r := range reviews {
		getResp = appendField(getResp, fieldGetResponseReview, r)
	}
	rev := appendField(nil, fieldReviewsGetResponse, getResp)
	return wrapPayload(appendField(nil, fieldPayloadReviews, rev))
}

func testReview(comment string, stars uint64) []byte {
	image := appendString(nil, fieldImageURL, "https://img.example.com/avatar.png")
	author := appendString(nil, fieldAuthorID, "author-1")
	author = appendString(author, fieldAuthorName, "Reviewer")
	author = appendField(author, fieldAuthorImage, image)

	r := appendString(nil, fieldReviewDocVersion, "2041")
	r = appendVarintField(r, fieldReviewTimestamp, 1755000000000)
	r = appendVarintField(r, fieldReviewStarRating, stars)
	r = appendString(r, fieldReviewTitle, "Great")
	r = appendString(r, fieldReviewComment, comment)
	r = appendField(r, fieldReviewAuthor, author)
	return r
}

// buyEnvelope builds a purchase-authorization response.
func buyEnvelope(token string) []byte {
	buy := appendString(nil, fieldBuyDownloadToken, token)
	return wrapPayload(appendField(nil, fieldPayloadBuy, buy))
}

// deliveryEnvelope builds a delivery-resolution response.
func deliveryEnvelope(downloadURL string, size uint64) []byte {
	data := appendVarintField(nil, fieldDeliveryDataSize, size)
	if downloadURL != "" {
		data = appendString(data, fieldDeliveryDataURL, downloadURL)
	}
	delivery := appendField(nil, fieldDeliveryData, data)
	return wrapPayload(appendField(nil, fieldPayloadDelivery, delivery))
}

func TestDecodeEnvelope_details(t *testing.T) {
	t.Parallel()

	env, err := DecodeEnvelope(detailsEnvelope(fullTestDoc(t)))
	if err != nil {
		t.Fatalf("DecodeEnvelope() error = %v, want nil", err)
	}
	if env.ErrorMessage != "" {
		t.Errorf("ErrorMessage = %q, want empty", env.ErrorMessage)
	}
	if env.Details == nil {
		t.Fatal("Details = nil, want entry")
	}

	e := env.Details
	if e.DocID != "com.example.app" {
		t.Errorf("DocID = %q, want %q", e.DocID, "com.example.app")
	}
	if e.Title != "Example App" {
		t.Errorf("Title = %q, want %q", e.Title, "Example App")
	}
	if e.PriceMicros != 1990000 {
		t.Errorf("PriceMicros = %d, want 1990000", e.PriceMicros)
	}
	if e.CurrencyCode != "USD" {
		t.Errorf("CurrencyCode = %q, want USD", e.CurrencyCode)
	}
	if e.IsFree() {
		t.Error("IsFree() = true, want false for a priced entry")
	}
	if e.VersionCode != 2041 {
		t.Errorf("VersionCode = %d, want 2041", e.VersionCode)
	}
	if e.VersionString != "2.4.1" {
		t.Errorf("VersionString = %q, want 2.4.1", e.VersionString)
	}
	if e.InstallationSize != 15728640 {
		t.Errorf("InstallationSize = %d, want 15728640", e.InstallationSize)
	}
	if len(e.Permissions) != 2 {
		t.Fatalf("len(Permissions) = %d, want 2", len(e.Permissions))
	}
	if e.Permissions[1] != "android.permission.CAMERA" {
		t.Errorf("Permissions[1] = %q, want CAMERA permission", e.Permissions[1])
	}
	if !e.ContainsAds {
		t.Error("ContainsAds = false, want true")
	}
	if e.ContentRating != "Everyone" {
		t.Errorf("ContentRating = %q, want Everyone", e.ContentRating)
	}
	if e.PrivacyPolicyURL != "https://example.com/privacy" {
		t.Errorf("PrivacyPolicyURL = %q, want privacy URL", e.PrivacyPolicyURL)
	}
	if len(e.Images) != 2 {
		t.Errorf("len(Images) = %d, want 2", len(e.Images))
	}
	if e.Rating.StarRating != 4.25 {
		t.Errorf("Rating.StarRating = %v, want 4.25", e.Rating.StarRating)
	}
	if e.Rating.FiveStar != 800 {
		t.Errorf("Rating.FiveStar = %d, want 800", e.Rating.FiveStar)
	}
	if !e.HasRelated() {
		t.Error("HasRelated() = false, want true")
	}
	if e.RelatedToken != "rec?c=3&doc=com.example.app" {
		t.Errorf("RelatedToken = %q, want navigation token", e.RelatedToken)
	}
}

func TestDecodeEnvelope_errorMessage(t *testing.T) {
	t.Parallel()

	env, err := DecodeEnvelope(errorEnvelope("Item not found."))
	if err != nil {
		t.Fatalf("DecodeEnvelope() error = %v, want nil", err)
	}
	if env.ErrorMessage != "Item not found." {
		t.Errorf("ErrorMessage = %q, want %q", env.ErrorMessage, "Item not found.")
	}
	if env.Details != nil {
		t.Error("Details != nil, want nil on error envelope")
	}
}

func TestEnvelope_Err(t *testing.T) {
	t.Parallel()

	env, err := DecodeEnvelope(errorEnvelope("Server busy."))
	if err != nil {
		t.Fatalf("DecodeEnvelope() error = %v, want nil", err)
	}

	var svcErr *ServiceError
	if !errors.As(env.Err("details", "com.example.app"), &svcErr) {
		t.Fatal("Err() did not return a *ServiceError for an error envelope")
	}
	if svcErr.Op != "details" || svcErr.DocID != "com.example.app" {
		t.Errorf("ServiceError = %+v, want Op details and DocID com.example.app", svcErr)
	}
	if svcErr.Message != "Server busy." {
		t.Errorf("Message = %q, want %q", svcErr.Message, "Server busy.")
	}

	clean, err := DecodeEnvelope(detailsEnvelope(fullTestDoc(t)))
	if err != nil {
		t.Fatalf("DecodeEnvelope() error = %v, want nil", err)
	}
	if got := clean.Err("details", "com.example.app"); got != nil {
		t.Errorf("Err() = %v, want nil for a clean envelope", got)
	}
}

func TestDecodeEnvelope_reviews(t *testing.T) {
	t.Parallel()

	env, err := DecodeEnvelope(reviewsEnvelope(
		testReview("Works well", 5),
		testReview("Crashes on start", 1),
	))
	if err != nil {
		t.Fatalf("DecodeEnvelope() error = %v, want nil", err)
	}
	if len(env.Reviews) != 2 {
		t.Fatalf("len(Reviews) = %d, want 2", len(env.Reviews))
	}

	first := env.Reviews[0]
	if first.Comment != "Works well" {
		t.Errorf("Comment = %q, want %q", first.Comment, "Works well")
	}
	if first.StarRating != 5 {
		t.Errorf("StarRating = %d, want 5", first.StarRating)
	}
	if first.TimestampMsec != 1755000000000 {
		t.Errorf("TimestampMsec = %d, want 1755000000000", first.TimestampMsec)
	}
	if first.AuthorName != "Reviewer" {
		t.Errorf("AuthorName = %q, want Reviewer", first.AuthorName)
	}
	if first.AuthorImageURL != "https://img.example.com/avatar.png" {
		t.Errorf("AuthorImageURL = %q, want avatar URL", first.AuthorImageURL)
	}
	if env.Reviews[1].StarRating != 1 {
		t.Errorf("Reviews[1].StarRating = %d, want 1", env.Reviews[1].StarRating)
	}
}

func TestDecodeEnvelope_list(t *testing.T) {
	t.Parallel()

	env, err := DecodeEnvelope(listEnvelope(
		stubDoc("com.example.one", "One", 0),
		stubDoc("com.example.two", "Two", 990000),
	))
	if err != nil {
		t.Fatalf("DecodeEnvelope() error = %v, want nil", err)
	}
	if len(env.List) != 2 {
		t.Fatalf("len(List) = %d, want 2", len(env.List))
	}
	if env.List[0].DocID != "com.example.one" {
		t.Errorf("List[0].DocID = %q, want com.example.one", env.List[0].DocID)
	}
	if env.List[0].PriceMicros != 0 {
		t.Errorf("List[0].PriceMicros = %d, want 0", env.List[0].PriceMicros)
	}
	if env.List[1].PriceMicros != 990000 {
		t.Errorf("List[1].PriceMicros = %d, want 990000", env.List[1].PriceMicros)
	}
}

func TestDecodeEnvelope_prefetchedList(t *testing.T) {
	t.Parallel()

	env, err := DecodeEnvelope(relatedEnvelope(listEnvelope(
		stubDoc("com.example.related", "Related", 0),
	)))
	if err != nil {
		t.Fatalf("DecodeEnvelope() error = %v, want nil", err)
	}
	if len(env.Prefetch) != 1 {
		t.Fatalf("len(Prefetch) = %d, want 1", len(env.Prefetch))
	}
	list := env.Prefetch[0].List
	if len(list) != 1 || list[0].DocID != "com.example.related" {
		t.Errorf("Prefetch[0].List = %+v, want one stub com.example.related", list)
	}
}

func TestDecodeEnvelope_purchase(t *testing.T) {
	t.Parallel()

	env, err := DecodeEnvelope(buyEnvelope("dltoken-123"))
	if err != nil {
		t.Fatalf("DecodeEnvelope() error = %v, want nil", err)
	}
	if env.DownloadToken != "dltoken-123" {
		t.Errorf("DownloadToken = %q, want dltoken-123", env.DownloadToken)
	}
}

func TestDecodeEnvelope_delivery(t *testing.T) {
	t.Parallel()

	t.Run("with url", func(t *testing.T) {
		t.Parallel()

		env, err := DecodeEnvelope(deliveryEnvelope("https://dl.example.com/app.apk", 15728640))
		if err != nil {
			t.Fatalf("DecodeEnvelope() error = %v, want nil", err)
		}
		if env.Delivery == nil {
			t.Fatal("Delivery = nil, want payload")
		}
		if env.Delivery.DownloadURL != "https://dl.example.com/app.apk" {
			t.Errorf("DownloadURL = %q, want download URL", env.Delivery.DownloadURL)
		}
		if env.Delivery.DownloadSize != 15728640 {
			t.Errorf("DownloadSize = %d, want 15728640", env.Delivery.DownloadSize)
		}
	})

	t.Run("without url", func(t *testing.T) {
		t.Parallel()

		env, err := DecodeEnvelope(deliveryEnvelope("", 0))
		if err != nil {
			t.Fatalf("DecodeEnvelope() error = %v, want nil", err)
		}
		if env.Delivery == nil {
			t.Fatal("Delivery = nil, want payload")
		}
		if env.Delivery.DownloadURL != "" {
			t.Errorf("DownloadURL = %q, want empty", env.Delivery.DownloadURL)
		}
	})
}

func TestDecodeEnvelope_malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
	}{
		{
			name: "truncated tag",
			data: []byte{0xFF},
		},
		{
			name: "length overruns buffer",
			data: []byte{0x0A, 0x7F, 0x01},
		},
		{
			name: "group wire type",
			data: []byte{0x0B},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := DecodeEnvelope(tt.data)
			if err == nil {
				t.Fatal("DecodeEnvelope() error = nil, want DecodeError")
			}
			var decodeErr *DecodeError
			if !errors.As(err, &decodeErr) {
				t.Errorf("error type = %T, want *DecodeError", err)
			}
		})
	}
}

func TestDecodeEnvelope_empty(t *testing.T) {
	t.Parallel()

	env, err := DecodeEnvelope(nil)
	if err != nil {
		t.Fatalf("DecodeEnvelope() error = %v, want nil", err)
	}
	if env.ErrorMessage != "" || env.Details != nil || len(env.Prefetch) != 0 {
		t.Errorf("empty input decoded to non-zero envelope: %+v", env)
	}
}
