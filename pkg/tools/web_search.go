package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tuxpilot/pkg/proto"
)

// ToolWebSearch is the name of the web search tool.
const ToolWebSearch = "web_search"

// SearchResult represents a single search result from any provider.
type SearchResult struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
}

// SearchProvider defines the interface for web search backends.
type SearchProvider interface {
	// Name returns a human-readable name for the provider.
	Name() string
	// Search performs a web search and returns results.
	Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error)
}

// WebSearchTool searches the web for documentation and troubleshooting
// threads relevant to the question.
type WebSearchTool struct {
	provider   SearchProvider
	maxResults int
}

// NewWebSearchTool creates a web search tool backed by DuckDuckGo.
func NewWebSearchTool(maxResults int) *WebSearchTool {
	return NewWebSearchToolWithProvider(NewDuckDuckGoProvider(), maxResults)
}

// NewWebSearchToolWithProvider creates a web search tool with a specific
// provider. Used in tests.
func NewWebSearchToolWithProvider(provider SearchProvider, maxResults int) *WebSearchTool {
	if maxResults < 1 {
		maxResults = 5
	}
	return &WebSearchTool{provider: provider, maxResults: maxResults}
}

// Name returns the tool name.
func (t *WebSearchTool) Name() string {
	return ToolWebSearch
}

// Exec performs the search and converts results into citations.
func (t *WebSearchTool) Exec(ctx context.Context, query string) (*Result, error) {
	results, err := t.provider.Search(ctx, query, t.maxResults)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	out := &Result{}
	var lines []string
	now := time.Now().UTC()
	for i := range results {
		r := &results[i]
		lines = append(lines, fmt.Sprintf("- %s: %s (%s)", r.Title, r.Description, r.URL))
		if r.URL == "" {
			continue
		}
		out.Citations = append(out.Citations, proto.Citation{
			URL:       r.URL,
			Title:     r.Title,
			Excerpt:   r.Description,
			CrawledAt: now,
		})
	}
	if len(lines) == 0 {
		out.Content = fmt.Sprintf("no web results for %q", query)
	} else {
		out.Content = strings.Join(lines, "\n")
	}
	return out, nil
}

// DuckDuckGoProvider implements SearchProvider using DuckDuckGo's Instant
// Answer API. It only returns encyclopedic or instant answers, which is
// enough for documentation lookups and keeps the tool keyless.
type DuckDuckGoProvider struct {
	httpClient *http.Client
	baseURL    string
}

// NewDuckDuckGoProvider creates a new DuckDuckGo provider.
func NewDuckDuckGoProvider() *DuckDuckGoProvider {
	return &DuckDuckGoProvider{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    "https://api.duckduckgo.com",
	}
}

// Name returns the provider name.
func (p *DuckDuckGoProvider) Name() string {
	return "duckduckgo"
}

type duckDuckGoResponse struct {
	AbstractText  string `json:"AbstractText"`
	AbstractURL   string `json:"AbstractURL"`
	Heading       string `json:"Heading"`
	Answer        string `json:"Answer"`
	RelatedTopics []struct {
		Text     string `json:"Text"`
		FirstURL string `json:"FirstURL"`
	} `json:"RelatedTopics"`
	Results []struct {
		Text     string `json:"Text"`
		FirstURL string `json:"FirstURL"`
	} `json:"Results"`
}

// Search performs a search using DuckDuckGo's Instant Answer API.
func (p *DuckDuckGoProvider) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	searchURL := fmt.Sprintf("%s/?q=%s&format=json&no_html=1&skip_disambig=1",
		p.baseURL, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "TuxPilot/1.0 (Linux Assistant)")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var ddgResp duckDuckGoResponse
	if err := json.Unmarshal(body, &ddgResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	var results []SearchResult
	if ddgResp.AbstractText != "" {
		results = append(results, SearchResult{
			Title:       ddgResp.Heading,
			Description: ddgResp.AbstractText,
			URL:         ddgResp.AbstractURL,
		})
	}
	if ddgResp.Answer != "" {
		results = append(results, SearchResult{
			Title:       "Instant Answer",
			Description: ddgResp.Answer,
		})
	}
	for i := range ddgResp.RelatedTopics {
		topic := &ddgResp.RelatedTopics[i]
		if topic.Text != "" && len(results) < maxResults {
			results = append(results, SearchResult{
				Description: topic.Text,
				URL:         topic.FirstURL,
			})
		}
	}
	for i := range ddgResp.Results {
		r := &ddgResp.Results[i]
		if r.Text != "" && len(results) < maxResults {
			results = append(results, SearchResult{
				Description: r.Text,
				URL:         r.FirstURL,
			})
		}
	}
	return results, nil
}
