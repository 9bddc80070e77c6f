package scrape

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/playcrawl/playcrawl/internal/model"
)

// maxPageSize bounds how much of a store page is read.
const maxPageSize = 8 * 1024 * 1024

// Enricher fetches an entry's public store page and extracts the handful
// of fields the protocol omits (genre labels, minimum OS version).
type Enricher struct {
	client    *http.Client
	logger    *slog.Logger
	pageURL   string
	userAgent string
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Enricher) { e.client = client }
}

// WithLogger sets the logger used by the enricher.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Enricher) { e.logger = logger }
}

// WithUserAgent sets the User-Agent header for page fetches.
func WithUserAgent(ua string) Option {
	return func(e *Enricher) { e.userAgent = ua }
}

// New creates an Enricher against the given store page URL.
func New(pageURL string, opts ...Option) *Enricher {
	e := &Enricher{
		client:  &http.Client{},
		logger:  slog.Default(),
		pageURL: pageURL,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enrich fetches the store page for docID once and extracts supplementary
// fields. A page that yields nothing still returns an empty Enrichment;
// only transport and parse failures return an error.
func (e *Enricher) Enrich(ctx context.Context, docID string) (*model.Enrichment, error) {
	params := url.Values{
		"id": {docID},
		"hl": {"en"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.pageURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build store page request: %w", err)
	}
	if e.userAgent != "" {
		req.Header.Set("User-Agent", e.userAgent)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("store page request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("store page returned status %d for %s", resp.StatusCode, docID)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return nil, fmt.Errorf("failed to parse store page: %w", err)
	}

	enrichment := &model.Enrichment{}
	extract(doc, enrichment)
	e.logger.Debug("store page enrichment",
		"doc_id", docID,
		"categories", len(enrichment.Categories),
		"required_os", enrichment.RequiredOS)
	return enrichment, nil
}

// extract walks the parsed page and collects the fields of interest:
// genre anchors (itemprop="genre") and the minimum OS version
// (itemprop="operatingSystems", with the legacy softwareVersion div as a
// fallback for older page layouts).
func extract(n *html.Node, enrichment *model.Enrichment) {
	if n.Type == html.ElementNode {
		switch attrValue(n, "itemprop") {
		case "genre":
			if text := nodeText(n); text != "" && !contains(enrichment.Categories, text) {
				enrichment.Categories = append(enrichment.Categories, text)
			}
		case "operatingSystems", "softwareVersion":
			if enrichment.RequiredOS == "" {
				enrichment.RequiredOS = nodeText(n)
			}
		}
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		extract(child, enrichment)
	}
}

// attrValue returns the value of the named attribute, or "".
func attrValue(n *html.Node, name string) string {
	for _, attr := range n.Attr {
		if attr.Key == name {
			return attr.Val
		}
	}
	return ""
}

// nodeText returns the trimmed concatenation of all text beneath n.
func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
