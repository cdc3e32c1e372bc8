package websearch

// #region imports
import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// #endregion

// #region provider-interface

// provider is one upstream search backend.
type provider interface {
	search(ctx context.Context, query string, maxResults int) ([]Hit, error)
}

// #endregion

// #region serp

const defaultSerpEndpoint = "https://serpapi.com/search"

// serpProvider hits a SERP-style JSON API with the google engine.
type serpProvider struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func newSerpProvider(endpoint, apiKey string, timeout time.Duration) *serpProvider {
	if endpoint == "" {
		endpoint = defaultSerpEndpoint
	}
	return &serpProvider{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

type serpResponse struct {
	OrganicResults []struct {
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
		Link    string `json:"link"`
	} `json:"organic_results"`
}

func (p *serpProvider) search(ctx context.Context, query string, maxResults int) ([]Hit, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("api_key", p.apiKey)
	params.Set("engine", "google")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build serp request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("serp request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("serp status %d", resp.StatusCode)
	}

	var body serpResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode serp response: %w", err)
	}

	hits := make([]Hit, 0, maxResults)
	for _, r := range body.OrganicResults {
		if len(hits) >= maxResults {
			break
		}
		hits = append(hits, Hit{Title: r.Title, Snippet: r.Snippet, URL: r.Link, Source: "serp"})
	}
	return hits, nil
}

// #endregion

// #region duck

const duckEndpoint = "https://api.duckduckgo.com/"

// duckProvider queries the DuckDuckGo instant-answer API. Results are
// shallow but keyless, which makes it a workable fallback.
type duckProvider struct {
	client *http.Client
}

func newDuckProvider(timeout time.Duration) *duckProvider {
	return &duckProvider{client: &http.Client{Timeout: timeout}}
}

type duckResponse struct {
	AbstractText  string `json:"AbstractText"`
	AbstractURL   string `json:"AbstractURL"`
	Heading       string `json:"Heading"`
	RelatedTopics []struct {
		Text     string `json:"Text"`
		FirstURL string `json:"FirstURL"`
	} `json:"RelatedTopics"`
}

func (p *duckProvider) search(ctx context.Context, query string, maxResults int) ([]Hit, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("no_html", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, duckEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build duck request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("duck request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duck status %d", resp.StatusCode)
	}

	var body duckResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode duck response: %w", err)
	}

	var hits []Hit
	if body.AbstractText != "" {
		hits = append(hits, Hit{Title: body.Heading, Snippet: body.AbstractText, URL: body.AbstractURL, Source: "duckduckgo"})
	}
	for _, t := range body.RelatedTopics {
		if len(hits) >= maxResults {
			break
		}
		if t.Text == "" {
			continue
		}
		hits = append(hits, Hit{Title: t.Text, Snippet: t.Text, URL: t.FirstURL, Source: "duckduckgo"})
	}
	if len(hits) == 0 {
		return nil, fmt.Errorf("duck returned no results for %q", query)
	}
	return hits, nil
}

// #endregion
