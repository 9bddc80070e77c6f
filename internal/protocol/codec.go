package protocol

import (
	"github.com/playcrawl/playcrawl/internal/model"
	"google.golang.org/protobuf/encoding/protowire"
)

// Wire schema: the subset of the catalog service's response envelope this
// client consumes. Every response shares one top-level wrapper; the payload
// variant in use depends on the operation. Fields absent from a message
// decode to zero values.
//
//	wrapper:        1 payload, 2 commands, 3 prefetch (repeated)
//	commands:       2 displayErrorMessage
//	prefetch:       1 url, 2 response (nested wrapper)
//	payload:        1 listResponse, 2 detailsResponse, 3 reviewResponse,
//	                4 buyResponse, 21 deliveryResponse
//	detailsResponse: 4 doc
//	listResponse:   2 doc (repeated)
//	reviewResponse: 1 getResponse;  getResponse: 1 review (repeated)
//	buyResponse:    55 downloadToken
//	deliveryResponse: 2 deliveryData;  deliveryData: 1 size, 3 downloadUrl
const (
	fieldWrapperPayload  = 1
	fieldWrapperCommands = 2
	fieldWrapperPrefetch = 3

	fieldCommandsErrorMessage = 2

	fieldPrefetchResponse = 2

	fieldPayloadList     = 1
	fieldPayloadDetails  = 2
	fieldPayloadReviews  = 3
	fieldPayloadBuy      = 4
	fieldPayloadDelivery = 21

	fieldDetailsDoc = 4
	fieldListDoc    = 2

	fieldReviewsGetResponse = 1
	fieldGetResponseReview  = 1

	fieldBuyDownloadToken = 55

	fieldDeliveryData     = 2
	fieldDeliveryDataSize = 1
	fieldDeliveryDataURL  = 3
)

// Document message fields (one entry in details and list responses).
const (
	fieldDocID               = 1
	fieldDocBackendID        = 2
	fieldDocTitle            = 5
	fieldDocCreator          = 6
	fieldDocDescriptionHTML  = 7
	fieldDocOffer            = 8
	fieldDocImage            = 10
	fieldDocChild            = 11
	fieldDocDetails          = 13
	fieldDocRating           = 14
	fieldDocRelatedLinks     = 15
	fieldDocDescriptionShort = 27

	fieldOfferMicros   = 1
	fieldOfferCurrency = 2

	fieldImageURL = 5

	fieldDocDetailsApp = 1

	fieldAppDeveloperName    = 1
	fieldAppVersionCode      = 3
	fieldAppVersionString    = 4
	fieldAppInstallationSize = 9
	fieldAppPermission       = 10
	fieldAppDeveloperEmail   = 11
	fieldAppDeveloperWebsite = 12
	fieldAppNumDownloads     = 13
	fieldAppRecentChanges    = 15
	fieldAppUploadDate       = 16
	fieldAppContainsAds      = 30

	fieldRatingStar      = 2
	fieldRatingCount     = 3
	fieldRatingOneStar   = 4
	fieldRatingTwoStar   = 5
	fieldRatingThreeStar = 6
	fieldRatingFourStar  = 7
	fieldRatingFiveStar  = 8

	fieldRelatedRated      = 2
	fieldRelatedPrivacyURL = 4
	fieldRelatedAlsoLike   = 10

	fieldRatedLabel    = 1
	fieldAlsoLikeToken = 2
)

// Review message fields.
const (
	fieldReviewDocVersion = 5
	fieldReviewTimestamp  = 6
	fieldReviewStarRating = 7
	fieldReviewTitle      = 8
	fieldReviewComment    = 9
	fieldReviewAuthor     = 29

	fieldAuthorID    = 1
	fieldAuthorName  = 3
	fieldAuthorImage = 4
)

// Envelope is the decoded top-level response message. Exactly one payload
// variant is populated per operation; ErrorMessage must be checked before
// trusting any of them (the service reports failures in-band with HTTP 200).
type Envelope struct {
	// ErrorMessage is the service's display error message; empty on success.
	ErrorMessage string

	// Details holds the entry snapshot from a details response.
	Details *model.Entry

	// Reviews holds review records from a reviews response.
	Reviews []model.Review

	// DownloadToken holds the token from a purchase-authorization response.
	DownloadToken string

	// Delivery holds delivery metadata from a delivery response.
	Delivery *Delivery

	// List holds the entry stubs from a list response (the children of its
	// first document).
	List []model.EntryStub

	// Prefetch holds nested envelopes the service bundled with the
	// response. Related-entries lists arrive in the first prefetch slot.
	Prefetch []*Envelope
}

// Err reports the envelope's in-band service error as a ServiceError for
// the given operation, or nil when the envelope carries none. The service
// signals failures with HTTP 200 and a display error message, so every
// operation runs this check before reading a payload variant.
func (e *Envelope) Err(op, docID string) error {
	if e.ErrorMessage == "" {
		return nil
	}
	return &ServiceError{Op: op, DocID: docID, Message: e.ErrorMessage}
}

// Delivery is the payload of a delivery-resolution response.
type Delivery struct {
	// DownloadURL is the binary download URL; empty when the service
	// declined to provide one (not owned, needs purchase).
	DownloadURL string

	// DownloadSize is the binary size in bytes, when reported.
	DownloadSize int64
}

// DecodeEnvelope strictly parses raw response bytes into an Envelope.
// Malformed bytes yield a DecodeError; a well-formed envelope carrying a
// service error message decodes successfully and reports it via ErrorMessage.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	env, err := decodeWrapper(data)
	if err != nil {
		return nil, &DecodeError{Op: "envelope", Err: err}
	}
	return env, nil
}

// decodeWrapper parses one wrapper message, recursing into prefetch slots.
func decodeWrapper(data []byte) (*Envelope, error) {
	env := &Envelope{}
	err := walkMessage(data, func(num protowire.Number, _ protowire.Type, value []byte) error {
		switch num {
		case fieldWrapperPayload:
			return env.decodePayload(value)
		case fieldWrapperCommands:
			return walkMessage(value, func(n protowire.Number, _ protowire.Type, v []byte) error {
				if n == fieldCommandsErrorMessage {
					env.ErrorMessage = string(v)
				}
				return nil
			})
		case fieldWrapperPrefetch:
			return walkMessage(value, func(n protowire.Number, _ protowire.Type, v []byte) error {
				if n != fieldPrefetchResponse {
					return nil
				}
				nested, err := decodeWrapper(v)
				if err != nil {
					return err
				}
				env.Prefetch = append(env.Prefetch, nested)
				return nil
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return env, nil
}

// decodePayload parses the payload variant fields.
func (env *Envelope) decodePayload(data []byte) error {
	return walkMessage(data, func(num protowire.Number, _ protowire.Type, value []byte) error {
		switch num {
		case fieldPayloadDetails:
			return walkMessage(value, func(n protowire.Number, _ protowire.Type, v []byte) error {
				if n != fieldDetailsDoc {
					return nil
				}
				entry, err := decodeEntry(v)
				if err != nil {
					return err
				}
				env.Details = entry
				return nil
			})
		case fieldPayloadList:
			return env.decodeList(value)
		case fieldPayloadReviews:
			return walkMessage(value, func(n protowire.Number, _ protowire.Type, v []byte) error {
				if n != fieldReviewsGetResponse {
					return nil
				}
				return walkMessage(v, func(n2 protowire.Number, _ protowire.Type, v2 []byte) error {
					if n2 != fieldGetResponseReview {
						return nil
					}
					review, err := decodeReview(v2)
					if err != nil {
						return err
					}
					env.Reviews = append(env.Reviews, review)
					return nil
				})
			})
		case fieldPayloadBuy:
			return walkMessage(value, func(n protowire.Number, _ protowire.Type, v []byte) error {
				if n == fieldBuyDownloadToken {
					env.DownloadToken = string(v)
				}
				return nil
			})
		case fieldPayloadDelivery:
			return env.decodeDelivery(value)
		}
		return nil
	})
}

// decodeList parses a list response: the stubs are the children of the
// first (container) document.
func (env *Envelope) decodeList(data []byte) error {
	first := true
	return walkMessage(data, func(num protowire.Number, _ protowire.Type, value []byte) error {
		if num != fieldListDoc || !first {
			return nil
		}
		first = false
		return walkMessage(value, func(n protowire.Number, _ protowire.Type, v []byte) error {
			if n != fieldDocChild {
				return nil
			}
			stub, err := decodeStub(v)
			if err != nil {
				return err
			}
			env.List = append(env.List, stub)
			return nil
		})
	})
}

// decodeDelivery parses a delivery response.
func (env *Envelope) decodeDelivery(data []byte) error {
	return walkMessage(data, func(num protowire.Number, _ protowire.Type, value []byte) error {
		if num != fieldDeliveryData {
			return nil
		}
		d := &Delivery{}
		err := walkMessage(value, func(n protowire.Number, _ protowire.Type, v []byte) error {
			switch n {
			case fieldDeliveryDataURL:
				d.DownloadURL = string(v)
			case fieldDeliveryDataSize:
				d.DownloadSize = int64(asVarint(v))
			}
			return nil
		})
		if err != nil {
			return err
		}
		env.Delivery = d
		return nil
	})
}

// decodeEntry parses a full document message into an Entry.
func decodeEntry(data []byte) (*model.Entry, error) {
	entry := &model.Entry{}
	err := walkMessage(data, func(num protowire.Number, _ protowire.Type, value []byte) error {
		switch num {
		case fieldDocID:
			entry.DocID = string(value)
		case fieldDocBackendID:
			entry.BackendDocID = string(value)
		case fieldDocTitle:
			entry.Title = string(value)
		case fieldDocCreator:
			entry.Creator = string(value)
		case fieldDocDescriptionHTML:
			entry.DescriptionHTML = string(value)
		case fieldDocDescriptionShort:
			entry.DescriptionShort = string(value)
		case fieldDocOffer:
			// Only the first offer carries the list price.
			if entry.CurrencyCode == "" && entry.PriceMicros == 0 {
				return walkMessage(value, func(n protowire.Number, _ protowire.Type, v []byte) error {
					switch n {
					case fieldOfferMicros:
						entry.PriceMicros = int64(asVarint(v))
					case fieldOfferCurrency:
						entry.CurrencyCode = string(v)
					}
					return nil
				})
			}
		case fieldDocImage:
			return walkMessage(value, func(n protowire.Number, _ protowire.Type, v []byte) error {
				if n == fieldImageURL {
					entry.Images = append(entry.Images, string(v))
				}
				return nil
			})
		case fieldDocDetails:
			return walkMessage(value, func(n protowire.Number, _ protowire.Type, v []byte) error {
				if n != fieldDocDetailsApp {
					return nil
				}
				return decodeAppDetails(v, entry)
			})
		case fieldDocRating:
			return decodeRating(value, &entry.Rating)
		case fieldDocRelatedLinks:
			return decodeRelatedLinks(value, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// decodeAppDetails parses the application sub-message of a document.
func decodeAppDetails(data []byte, entry *model.Entry) error {
	return walkMessage(data, func(num protowire.Number, _ protowire.Type, value []byte) error {
		switch num {
		case fieldAppDeveloperName:
			entry.DeveloperName = string(value)
		case fieldAppVersionCode:
			entry.VersionCode = int(asVarint(value))
		case fieldAppVersionString:
			entry.VersionString = string(value)
		case fieldAppInstallationSize:
			entry.InstallationSize = int64(asVarint(value))
		case fieldAppPermission:
			entry.Permissions = append(entry.Permissions, string(value))
		case fieldAppDeveloperEmail:
			entry.DeveloperEmail = string(value)
		case fieldAppDeveloperWebsite:
			entry.DeveloperWebsite = string(value)
		case fieldAppNumDownloads:
			entry.NumDownloads = string(value)
		case fieldAppRecentChanges:
			entry.RecentChangesHTML = string(value)
		case fieldAppUploadDate:
			entry.UploadDate = string(value)
		case fieldAppContainsAds:
			entry.ContainsAds = asVarint(value) != 0
		}
		return nil
	})
}

// decodeRating parses the aggregate-rating sub-message.
func decodeRating(data []byte, rating *model.AggregateRating) error {
	return walkMessage(data, func(num protowire.Number, _ protowire.Type, value []byte) error {
		switch num {
		case fieldRatingStar:
			rating.StarRating = asDouble(value)
		case fieldRatingCount:
			rating.RatingsCount = int64(asVarint(value))
		case fieldRatingOneStar:
			rating.OneStar = int64(asVarint(value))
		case fieldRatingTwoStar:
			rating.TwoStar = int64(asVarint(value))
		case fieldRatingThreeStar:
			rating.ThreeStar = int64(asVarint(value))
		case fieldRatingFourStar:
			rating.FourStar = int64(asVarint(value))
		case fieldRatingFiveStar:
			rating.FiveStar = int64(asVarint(value))
		}
		return nil
	})
}

// decodeRelatedLinks parses the related-links sub-message: the content
// rating label, privacy policy URL, and the navigation token that resolves
// to the related-entries list.
func decodeRelatedLinks(data []byte, entry *model.Entry) error {
	return walkMessage(data, func(num protowire.Number, _ protowire.Type, value []byte) error {
		switch num {
		case fieldRelatedRated:
			return walkMessage(value, func(n protowire.Number, _ protowire.Type, v []byte) error {
				if n == fieldRatedLabel {
					entry.ContentRating = string(v)
				}
				return nil
			})
		case fieldRelatedPrivacyURL:
			entry.PrivacyPolicyURL = string(value)
		case fieldRelatedAlsoLike:
			return walkMessage(value, func(n protowire.Number, _ protowire.Type, v []byte) error {
				if n == fieldAlsoLikeToken {
					entry.RelatedToken = string(v)
				}
				return nil
			})
		}
		return nil
	})
}

// decodeReview parses one review message.
func decodeReview(data []byte) (model.Review, error) {
	var review model.Review
	err := walkMessage(data, func(num protowire.Number, _ protowire.Type, value []byte) error {
		switch num {
		case fieldReviewDocVersion:
			review.DocumentVersion = string(value)
		case fieldReviewTimestamp:
			review.TimestampMsec = int64(asVarint(value))
		case fieldReviewStarRating:
			review.StarRating = int(asVarint(value))
		case fieldReviewTitle:
			review.Title = string(value)
		case fieldReviewComment:
			review.Comment = string(value)
		case fieldReviewAuthor:
			return walkMessage(value, func(n protowire.Number, _ protowire.Type, v []byte) error {
				switch n {
				case fieldAuthorID:
					review.AuthorID = string(v)
				case fieldAuthorName:
					review.AuthorName = string(v)
				case fieldAuthorImage:
					return walkMessage(v, func(n2 protowire.Number, _ protowire.Type, v2 []byte) error {
						if n2 == fieldImageURL {
							review.AuthorImageURL = string(v2)
						}
						return nil
					})
				}
				return nil
			})
		}
		return nil
	})
	return review, err
}

// decodeStub parses a child document into the minimal stub form.
func decodeStub(data []byte) (model.EntryStub, error) {
	var stub model.EntryStub
	err := walkMessage(data, func(num protowire.Number, _ protowire.Type, value []byte) error {
		switch num {
		case fieldDocID:
			stub.DocID = string(value)
		case fieldDocTitle:
			stub.Title = string(value)
		case fieldDocCreator:
			stub.Creator = string(value)
		case fieldDocOffer:
			if stub.PriceMicros == 0 {
				return walkMessage(value, func(n protowire.Number, _ protowire.Type, v []byte) error {
					if n == fieldOfferMicros {
						stub.PriceMicros = int64(asVarint(v))
					}
					return nil
				})
			}
		}
		return nil
	})
	return stub, err
}
