package websearch

// #region imports
import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// #endregion

// #region types

// Hit holds a single search result.
type Hit struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
	Source  string `json:"source"`
}

// Config holds web search parameters.
type Config struct {
	Endpoint   string
	APIKey     string
	MaxResults int
	Timeout    time.Duration
	Enabled    bool
}

// #endregion

// #region config

// DefaultConfig returns default web search configuration.
// Reads from env vars: WEB_SEARCH_ENABLED, WEB_SEARCH_MAX_RESULTS,
// WEB_SEARCH_TIMEOUT, SERP_API_KEY.
func DefaultConfig() Config {
	cfg := Config{
		MaxResults: 3,
		Timeout:    10 * time.Second,
		Enabled:    true,
	}
	if v := os.Getenv("WEB_SEARCH_ENABLED"); v != "" {
		cfg.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("WEB_SEARCH_MAX_RESULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxResults = n
		}
	}
	if v := os.Getenv("WEB_SEARCH_TIMEOUT"); v != "" {
		if sec, err := strconv.Atoi(v); err == nil && sec > 0 {
			cfg.Timeout = time.Duration(sec) * time.Second
		}
	}
	if v := os.Getenv("SERP_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	return cfg
}

// #endregion

// #region gateway

// Gateway runs searches through a primary provider, falls back to a
// secondary on rate-limit or transport failure, and finally serves
// deterministic mock hits so runs stay alive offline.
type Gateway struct {
	primary   provider
	secondary provider
	cfg       Config
}

// NewGateway wires the provider chain from config. Without an API key
// the primary is skipped entirely.
func NewGateway(cfg Config) *Gateway {
	g := &Gateway{cfg: cfg}
	if cfg.APIKey != "" {
		g.primary = newSerpProvider(cfg.Endpoint, cfg.APIKey, cfg.Timeout)
	}
	g.secondary = newDuckProvider(cfg.Timeout)
	return g
}

// NewGatewayWithProviders creates a Gateway with injected providers.
// Used for testing without network access.
func NewGatewayWithProviders(primary, secondary provider, cfg Config) *Gateway {
	return &Gateway{primary: primary, secondary: secondary, cfg: cfg}
}

// Search returns up to maxResults hits. degraded is true when every
// provider failed and the hits are mock data; callers must propagate
// degraded into the trace.
func (g *Gateway) Search(ctx context.Context, query string, maxResults int) (hits []Hit, degraded bool, err error) {
	if maxResults <= 0 {
		maxResults = g.cfg.MaxResults
	}

	if g.primary != nil {
		hits, err = g.primary.search(ctx, query, maxResults)
		if err == nil {
			return hits, false, nil
		}
		log.Printf("[SEARCH] primary provider failed, trying secondary: %v", err)
	}

	if g.secondary != nil {
		hits, err = g.secondary.search(ctx, query, maxResults)
		if err == nil {
			return hits, false, nil
		}
		log.Printf("[SEARCH] secondary provider failed, serving mock results: %v", err)
	}

	return MockHits(query, maxResults), true, nil
}

// #endregion

// #region mock

// MockHits derives a deterministic hit list from the query, matching
// the simulated results used when no provider is reachable.
func MockHits(query string, maxResults int) []Hit {
	hits := []Hit{
		{
			Title:   fmt.Sprintf("Example result for %s - Implementation Guide", query),
			Snippet: fmt.Sprintf("This guide provides a comprehensive overview of %s implementation strategies for local governments.", query),
			URL:     "https://example.com/result1",
			Source:  "mock",
		},
		{
			Title:   fmt.Sprintf("Case Study: %s in Similar Jurisdictions", query),
			Snippet: fmt.Sprintf("Analysis of several municipalities that have successfully implemented %s policies.", query),
			URL:     "https://example.com/result2",
			Source:  "mock",
		},
		{
			Title:   fmt.Sprintf("Economic Impact Assessment of %s", query),
			Snippet: fmt.Sprintf("Research on the economic effects of %s on businesses and consumers.", query),
			URL:     "https://example.com/result3",
			Source:  "mock",
		},
	}
	if maxResults < len(hits) {
		hits = hits[:maxResults]
	}
	return hits
}

// #endregion

// #region format

// FormatAsEvidence converts search hits to a string suitable for
// injection into a prompt.
func FormatAsEvidence(hits []Hit) string {
	if len(hits) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("[Web Search Results]\n")
	for i, h := range hits {
		fmt.Fprintf(&b, "%d. %s\n", i+1, h.Title)
		if h.Snippet != "" {
			fmt.Fprintf(&b, "   %s\n", h.Snippet)
		}
		if h.URL != "" {
			fmt.Fprintf(&b, "   Source: %s\n", h.URL)
		}
	}
	return b.String()
}

// #endregion
