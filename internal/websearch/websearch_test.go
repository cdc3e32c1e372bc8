package websearch

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// #region fakes

type fakeProvider struct {
	hits []Hit
	err  error
}

func (f *fakeProvider) search(_ context.Context, _ string, _ int) ([]Hit, error) {
	return f.hits, f.err
}

// #endregion fakes

// #region gateway_tests

func TestSearch_PrimarySucceeds(t *testing.T) {
	g := NewGatewayWithProviders(
		&fakeProvider{hits: []Hit{{Title: "primary"}}},
		&fakeProvider{hits: []Hit{{Title: "secondary"}}},
		Config{MaxResults: 3},
	)
	hits, degraded, err := g.Search(context.Background(), "q", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if degraded {
		t.Error("should not be degraded")
	}
	if len(hits) != 1 || hits[0].Title != "primary" {
		t.Errorf("hits = %+v", hits)
	}
}

func TestSearch_FallsBackToSecondary(t *testing.T) {
	g := NewGatewayWithProviders(
		&fakeProvider{err: errors.New("429 rate limit")},
		&fakeProvider{hits: []Hit{{Title: "secondary"}}},
		Config{MaxResults: 3},
	)
	hits, degraded, err := g.Search(context.Background(), "q", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if degraded {
		t.Error("secondary success should not be degraded")
	}
	if len(hits) != 1 || hits[0].Title != "secondary" {
		t.Errorf("hits = %+v", hits)
	}
}

func TestSearch_DegradesToMock(t *testing.T) {
	g := NewGatewayWithProviders(
		&fakeProvider{err: errors.New("down")},
		&fakeProvider{err: errors.New("also down")},
		Config{MaxResults: 3},
	)
	hits, degraded, err := g.Search(context.Background(), "plastic bag ban", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !degraded {
		t.Error("expected degraded=true")
	}
	if len(hits) != 3 {
		t.Fatalf("expected 3 mock hits, got %d", len(hits))
	}
	if !strings.Contains(hits[0].Title, "plastic bag ban") {
		t.Errorf("mock hits should derive from the query: %q", hits[0].Title)
	}
}

func TestSearch_NoProvidersIsDegraded(t *testing.T) {
	g := NewGatewayWithProviders(nil, nil, Config{MaxResults: 2})
	hits, degraded, err := g.Search(context.Background(), "q", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !degraded {
		t.Error("expected degraded=true with no providers")
	}
	if len(hits) != 2 {
		t.Errorf("expected MaxResults hits, got %d", len(hits))
	}
}

func TestMockHits_Deterministic(t *testing.T) {
	a := MockHits("some query", 3)
	b := MockHits("some query", 3)
	if len(a) != len(b) {
		t.Fatal("mock hits differ in length")
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("hit %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

// #endregion gateway_tests

// #region format_tests

func TestFormatAsEvidence_MultipleResults(t *testing.T) {
	hits := []Hit{
		{Title: "Title A", Snippet: "Snippet A", URL: "https://a.com"},
		{Title: "Title B", Snippet: "Snippet B", URL: "https://b.com"},
	}
	out := FormatAsEvidence(hits)
	if out == "" {
		t.Fatal("expected non-empty output")
	}
	if !strings.Contains(out, "[Web Search Results]") {
		t.Error("missing header")
	}
	if !strings.Contains(out, "1. Title A") {
		t.Error("missing result 1")
	}
	if !strings.Contains(out, "Source: https://b.com") {
		t.Error("missing source URL")
	}
}

func TestFormatAsEvidence_Empty(t *testing.T) {
	if out := FormatAsEvidence(nil); out != "" {
		t.Errorf("expected empty string for nil hits, got %q", out)
	}
}

// #endregion format_tests
