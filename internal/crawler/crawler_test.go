package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/playcrawl/playcrawl/internal/model"
	"github.com/playcrawl/playcrawl/internal/protocol"
)

// fakeClient serves a scripted related-entries graph from memory.
type fakeClient struct {
	// graph maps doc id to its related doc ids, in list order.
	graph map[string][]string

	// priceMicros makes selected entries paid.
	priceMicros map[string]int64

	// detailsErrs and reviewsErrs script consecutive failures per doc id;
	// each call consumes one error until the slice is exhausted.
	detailsErrs map[string][]error
	reviewsErrs map[string][]error

	// owned controls whether delivery resolution returns a URL before a
	// purchase was authorized for the doc id.
	owned map[string]bool

	detailsCalls  map[string]int
	purchaseCalls []string
	downloadCalls []string
}

func newFakeClient(graph map[string][]string) *fakeClient {
	return &fakeClient{
		graph:        graph,
		priceMicros:  make(map[string]int64),
		detailsErrs:  make(map[string][]error),
		reviewsErrs:  make(map[string][]error),
		owned:        make(map[string]bool),
		detailsCalls: make(map[string]int),
	}
}

func (f *fakeClient) Details(_ context.Context, docID string) (*model.Entry, error) {
	f.detailsCalls[docID]++
	if errs := f.detailsErrs[docID]; len(errs) > 0 {
		err := errs[0]
		f.detailsErrs[docID] = errs[1:]
		return nil, err
	}
	if _, ok := f.graph[docID]; !ok {
		return nil, &protocol.NotFoundError{DocID: docID}
	}

	entry := &model.Entry{
		DocID:       docID,
		Title:       "Title of " + docID,
		VersionCode: 100,
		PriceMicros: f.priceMicros[docID],
	}
	if len(f.graph[docID]) > 0 {
		entry.RelatedToken = "rec?doc=" + docID
	}
	return entry, nil
}

func (f *fakeClient) Reviews(_ context.Context, docID string, count int) ([]model.Review, error) {
	if errs := f.reviewsErrs[docID]; len(errs) > 0 {
		err := errs[0]
		f.reviewsErrs[docID] = errs[1:]
		return nil, err
	}
	if count <= 0 {
		return nil, nil
	}
	return []model.Review{{Comment: "review of " + docID, StarRating: 4}}, nil
}

func (f *fakeClient) ResolveDownloadURL(_ context.Context, docID string, _ int) (string, error) {
	if !f.owned[docID] {
		return "", nil
	}
	return "https://dl.example.com/" + docID, nil
}

func (f *fakeClient) AuthorizePurchase(_ context.Context, docID string, versionCode int) (string, error) {
	if versionCode == 0 {
		return "", protocol.ErrMissingVersionCode
	}
	f.purchaseCalls = append(f.purchaseCalls, docID)
	f.owned[docID] = true
	return "token-" + docID, nil
}

func (f *fakeClient) DownloadBinary(_ context.Context, url, _ string) (bool, error) {
	f.downloadCalls = append(f.downloadCalls, url)
	return true, nil
}

func (f *fakeClient) Related(_ context.Context, navToken string) ([]model.EntryStub, error) {
	for docID, children := range f.graph {
		if navToken != "rec?doc="+docID {
			continue
		}
		stubs := make([]model.EntryStub, 0, len(children))
		for _, child := range children {
			stubs = append(stubs, model.EntryStub{DocID: child, PriceMicros: f.priceMicros[child]})
		}
		return stubs, nil
	}
	return nil, fmt.Errorf("unknown navigation token %q", navToken)
}

// memStore records visits in memory.
type memStore struct {
	mu     sync.Mutex
	visits []*model.Visit

	// errs scripts how many consecutive SaveVisit failures each doc id
	// produces; saves counts attempts per doc id.
	errs  map[string]int
	saves map[string]int
}

func (m *memStore) SaveVisit(_ context.Context, visit *model.Visit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saves == nil {
		m.saves = make(map[string]int)
	}
	docID := visit.Entry.DocID
	m.saves[docID]++
	if m.errs[docID] > 0 {
		m.errs[docID]--
		return errors.New("transient write failure")
	}
	m.visits = append(m.visits, visit)
	return nil
}

func (m *memStore) docIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.visits))
	for _, v := range m.visits {
		ids = append(ids, v.Entry.DocID)
	}
	return ids
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestCrawler_budgetReservation(t *testing.T) {
	t.Parallel()

	// A's children claim the remaining budget before the traversal
	// descends into B, so B's unvisited child D is never reached.
	client := newFakeClient(map[string][]string{
		"A": {"B", "C"},
		"B": {"A", "D"},
		"C": {},
		"D": {},
	})
	store := &memStore{}
	c := New(client, store, WithMaxVisits(3), WithRunID("run-1"))

	report, err := c.Crawl(context.Background(), "A", nil)
	if err != nil {
		t.Fatalf("Crawl() error = %v, want nil", err)
	}

	want := []string{"A", "B", "C"}
	if !equalStrings(report.Visited, want) {
		t.Errorf("Visited = %v, want %v", report.Visited, want)
	}
	if !equalStrings(store.docIDs(), want) {
		t.Errorf("stored visits = %v, want %v", store.docIDs(), want)
	}
	if client.detailsCalls["D"] != 0 {
		t.Errorf("Details(D) called %d times, want 0", client.detailsCalls["D"])
	}
	if report.RunID != "run-1" {
		t.Errorf("RunID = %q, want run-1", report.RunID)
	}
}

func TestCrawler_terminatesOnCycles(t *testing.T) {
	t.Parallel()

	client := newFakeClient(map[string][]string{
		"A": {"B"},
		"B": {"A"},
	})
	store := &memStore{}
	c := New(client, store, WithMaxVisits(10))

	report, err := c.Crawl(context.Background(), "A", nil)
	if err != nil {
		t.Fatalf("Crawl() error = %v, want nil", err)
	}
	if !equalStrings(report.Visited, []string{"A", "B"}) {
		t.Errorf("Visited = %v, want [A B]", report.Visited)
	}
	if client.detailsCalls["A"] != 1 {
		t.Errorf("Details(A) called %d times, want 1", client.detailsCalls["A"])
	}
}

func TestCrawler_retryThenSkip(t *testing.T) {
	t.Parallel()

	t.Run("transient failure abandons branch after one retry", func(t *testing.T) {
		t.Parallel()

		client := newFakeClient(map[string][]string{
			"A": {"B", "C"},
			"B": {},
			"C": {},
		})
		client.detailsErrs["B"] = []error{
			errors.New("connection reset"),
			errors.New("connection reset"),
		}
		store := &memStore{}
		c := New(client, store, WithMaxVisits(5))

		report, err := c.Crawl(context.Background(), "A", nil)
		if err != nil {
			t.Fatalf("Crawl() error = %v, want nil", err)
		}
		if client.detailsCalls["B"] != 2 {
			t.Errorf("Details(B) called %d times, want 2", client.detailsCalls["B"])
		}
		if report.Abandoned != 1 {
			t.Errorf("Abandoned = %d, want 1", report.Abandoned)
		}
		// C is still visited: abandoning B drops only B's branch.
		if !equalStrings(report.Visited, []string{"A", "C"}) {
			t.Errorf("Visited = %v, want [A C]", report.Visited)
		}
	})

	t.Run("transient failure then success", func(t *testing.T) {
		t.Parallel()

		client := newFakeClient(map[string][]string{
			"A": {"B"},
			"B": {},
		})
		client.detailsErrs["B"] = []error{errors.New("connection reset")}
		store := &memStore{}
		c := New(client, store, WithMaxVisits(5))

		report, err := c.Crawl(context.Background(), "A", nil)
		if err != nil {
			t.Fatalf("Crawl() error = %v, want nil", err)
		}
		if !equalStrings(report.Visited, []string{"A", "B"}) {
			t.Errorf("Visited = %v, want [A B]", report.Visited)
		}
		if report.Abandoned != 0 {
			t.Errorf("Abandoned = %d, want 0", report.Abandoned)
		}
	})

	t.Run("service refusal gets the retry too", func(t *testing.T) {
		t.Parallel()

		client := newFakeClient(map[string][]string{
			"A": {"B"},
			"B": {},
		})
		client.detailsErrs["B"] = []error{
			&protocol.ServiceError{Op: "details", DocID: "B", Message: "Server busy."},
		}
		store := &memStore{}
		c := New(client, store, WithMaxVisits(5))

		report, err := c.Crawl(context.Background(), "A", nil)
		if err != nil {
			t.Fatalf("Crawl() error = %v, want nil", err)
		}
		if client.detailsCalls["B"] != 2 {
			t.Errorf("Details(B) called %d times, want 2 (one retry)", client.detailsCalls["B"])
		}
		if !equalStrings(report.Visited, []string{"A", "B"}) {
			t.Errorf("Visited = %v, want [A B]", report.Visited)
		}
		if report.Abandoned != 0 {
			t.Errorf("Abandoned = %d, want 0", report.Abandoned)
		}
	})

	t.Run("reviews failure retries the whole visit", func(t *testing.T) {
		t.Parallel()

		client := newFakeClient(map[string][]string{
			"A": {"B", "C"},
			"B": {},
			"C": {},
		})
		client.reviewsErrs["B"] = []error{
			errors.New("connection reset"),
			errors.New("connection reset"),
		}
		store := &memStore{}
		c := New(client, store, WithMaxVisits(5))

		report, err := c.Crawl(context.Background(), "A", nil)
		if err != nil {
			t.Fatalf("Crawl() error = %v, want nil", err)
		}
		// The retry repeats the whole pipeline, details included.
		if client.detailsCalls["B"] != 2 {
			t.Errorf("Details(B) called %d times, want 2", client.detailsCalls["B"])
		}
		if report.Abandoned != 1 {
			t.Errorf("Abandoned = %d, want 1", report.Abandoned)
		}
		if !equalStrings(report.Visited, []string{"A", "C"}) {
			t.Errorf("Visited = %v, want [A C]", report.Visited)
		}
	})
}

func TestCrawler_authLossAbortsCrawl(t *testing.T) {
	t.Parallel()

	client := newFakeClient(map[string][]string{
		"A": {"B"},
		"B": {},
	})
	client.detailsErrs["B"] = []error{
		&protocol.AuthError{Message: "bearer token rejected after re-authentication"},
	}
	store := &memStore{}
	c := New(client, store, WithMaxVisits(5))

	_, err := c.Crawl(context.Background(), "A", nil)
	var authErr *protocol.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("Crawl() error = %v, want *protocol.AuthError", err)
	}
}

func TestCrawler_downloadGating(t *testing.T) {
	t.Parallel()

	t.Run("disabled", func(t *testing.T) {
		t.Parallel()

		client := newFakeClient(map[string][]string{"A": {}})
		store := &memStore{}
		c := New(client, store, WithMaxVisits(1))

		report, err := c.Crawl(context.Background(), "A", nil)
		if err != nil {
			t.Fatalf("Crawl() error = %v, want nil", err)
		}
		if len(client.downloadCalls) != 0 {
			t.Errorf("download calls = %v, want none when downloads are disabled", client.downloadCalls)
		}
		if report.Downloaded != 0 {
			t.Errorf("Downloaded = %d, want 0", report.Downloaded)
		}
	})

	t.Run("paid entry is skipped", func(t *testing.T) {
		t.Parallel()

		client := newFakeClient(map[string][]string{"A": {}})
		client.priceMicros["A"] = 1990000
		store := &memStore{}
		c := New(client, store, WithMaxVisits(1), WithDownloads(t.TempDir()))

		report, err := c.Crawl(context.Background(), "A", nil)
		if err != nil {
			t.Fatalf("Crawl() error = %v, want nil", err)
		}
		if report.SkippedPaid != 1 {
			t.Errorf("SkippedPaid = %d, want 1", report.SkippedPaid)
		}
		if len(client.downloadCalls) != 0 {
			t.Errorf("download calls = %v, want none for a paid entry", client.downloadCalls)
		}
	})

	t.Run("free entry is purchased then downloaded", func(t *testing.T) {
		t.Parallel()

		client := newFakeClient(map[string][]string{"A": {}})
		store := &memStore{}
		c := New(client, store, WithMaxVisits(1), WithDownloads(t.TempDir()))

		report, err := c.Crawl(context.Background(), "A", nil)
		if err != nil {
			t.Fatalf("Crawl() error = %v, want nil", err)
		}
		if !equalStrings(client.purchaseCalls, []string{"A"}) {
			t.Errorf("purchase calls = %v, want [A]", client.purchaseCalls)
		}
		if len(client.downloadCalls) != 1 {
			t.Fatalf("download calls = %v, want exactly one", client.downloadCalls)
		}
		if report.Downloaded != 1 {
			t.Errorf("Downloaded = %d, want 1", report.Downloaded)
		}
	})

	t.Run("purchase precedes delivery even for an owned entry", func(t *testing.T) {
		t.Parallel()

		client := newFakeClient(map[string][]string{"A": {}})
		client.owned["A"] = true
		store := &memStore{}
		c := New(client, store, WithMaxVisits(1), WithDownloads(t.TempDir()))

		report, err := c.Crawl(context.Background(), "A", nil)
		if err != nil {
			t.Fatalf("Crawl() error = %v, want nil", err)
		}
		if !equalStrings(client.purchaseCalls, []string{"A"}) {
			t.Errorf("purchase calls = %v, want [A]", client.purchaseCalls)
		}
		if report.Downloaded != 1 {
			t.Errorf("Downloaded = %d, want 1", report.Downloaded)
		}
	})
}

func TestCrawler_alreadyVisitedSeed(t *testing.T) {
	t.Parallel()

	client := newFakeClient(map[string][]string{"A": {}})
	store := &memStore{}
	c := New(client, store, WithMaxVisits(5))

	report, err := c.Crawl(context.Background(), "A", []string{"A"})
	if err != nil {
		t.Fatalf("Crawl() error = %v, want nil", err)
	}
	if report.VisitedCount() != 0 {
		t.Errorf("VisitedCount() = %d, want 0 for a previously visited seed", report.VisitedCount())
	}
	if client.detailsCalls["A"] != 0 {
		t.Errorf("Details(A) called %d times, want 0", client.detailsCalls["A"])
	}
}

func TestCrawler_previouslyVisitedChildrenAreSkipped(t *testing.T) {
	t.Parallel()

	client := newFakeClient(map[string][]string{
		"A": {"B", "C"},
		"B": {},
		"C": {},
	})
	store := &memStore{}
	c := New(client, store, WithMaxVisits(5))

	report, err := c.Crawl(context.Background(), "A", []string{"B"})
	if err != nil {
		t.Fatalf("Crawl() error = %v, want nil", err)
	}
	if !equalStrings(report.Visited, []string{"A", "C"}) {
		t.Errorf("Visited = %v, want [A C]", report.Visited)
	}
}

func TestCrawler_cancellation(t *testing.T) {
	t.Parallel()

	client := newFakeClient(map[string][]string{"A": {}})
	store := &memStore{}
	c := New(client, store, WithMaxVisits(5))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := c.Crawl(ctx, "A", nil)
	if err != nil {
		t.Fatalf("Crawl() error = %v, want nil on cancellation", err)
	}
	if !report.Stopped {
		t.Error("Stopped = false, want true for a cancelled crawl")
	}
	if report.VisitedCount() != 0 {
		t.Errorf("VisitedCount() = %d, want 0", report.VisitedCount())
	}
}

func TestCrawler_storeFailureAbandonsBranch(t *testing.T) {
	t.Parallel()

	client := newFakeClient(map[string][]string{
		"A": {"B"},
		"B": {},
	})
	store := &memStore{errs: map[string]int{"A": 2}}
	c := New(client, store, WithMaxVisits(5))

	report, err := c.Crawl(context.Background(), "A", nil)
	if err != nil {
		t.Fatalf("Crawl() error = %v, want nil for a persistence failure", err)
	}
	if store.saves["A"] != 2 {
		t.Errorf("SaveVisit(A) attempted %d times, want 2 (one retry)", store.saves["A"])
	}
	if report.Abandoned != 1 {
		t.Errorf("Abandoned = %d, want 1", report.Abandoned)
	}
	// A's related list was never committed, so B is unreachable.
	if report.VisitedCount() != 0 {
		t.Errorf("VisitedCount() = %d, want 0", report.VisitedCount())
	}
}

func TestCrawler_delayAppliesToFirstVisit(t *testing.T) {
	t.Parallel()

	client := newFakeClient(map[string][]string{"A": {}})
	store := &memStore{}
	c := New(client, store, WithMaxVisits(1), WithVisitDelay(10*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()

	report, err := c.Crawl(ctx, "A", nil)
	if err != nil {
		t.Fatalf("Crawl() error = %v, want nil", err)
	}
	if !report.Stopped {
		t.Error("Stopped = false, want true when cancelled during the seed delay")
	}
	if client.detailsCalls["A"] != 0 {
		t.Errorf("Details(A) called %d times, want 0 before the delay elapsed", client.detailsCalls["A"])
	}
}
