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

// ToolWiki is the name of the wiki search tool.
const ToolWiki = "wiki_search"

// WikiTool searches the Arch Wiki, the densest Linux troubleshooting
// reference there is. Article content generalizes to most distributions.
type WikiTool struct {
	httpClient *http.Client
	baseURL    string
	maxResults int
}

// NewWikiTool creates a wiki search tool.
func NewWikiTool(maxResults int) *WikiTool {
	if maxResults < 1 {
		maxResults = 5
	}
	return &WikiTool{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    "https://wiki.archlinux.org",
		maxResults: maxResults,
	}
}

// Name returns the tool name.
func (t *WikiTool) Name() string {
	return ToolWiki
}

// Exec searches article titles via the MediaWiki opensearch API.
func (t *WikiTool) Exec(ctx context.Context, query string) (*Result, error) {
	searchURL := fmt.Sprintf("%s/api.php?action=opensearch&format=json&limit=%d&search=%s",
		t.baseURL, t.maxResults, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "TuxPilot/1.0 (Linux Assistant)")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	// Opensearch responses are a 4-element array:
	// [query, [titles...], [descriptions...], [urls...]]
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(raw) < 4 {
		return nil, fmt.Errorf("unexpected opensearch response shape")
	}

	var titles, descriptions, urls []string
	if err := json.Unmarshal(raw[1], &titles); err != nil {
		return nil, fmt.Errorf("failed to parse titles: %w", err)
	}
	_ = json.Unmarshal(raw[2], &descriptions)
	if err := json.Unmarshal(raw[3], &urls); err != nil {
		return nil, fmt.Errorf("failed to parse urls: %w", err)
	}

	out := &Result{}
	var lines []string
	now := time.Now().UTC()
	for i := range titles {
		if i >= len(urls) {
			break
		}
		description := ""
		if i < len(descriptions) {
			description = descriptions[i]
		}
		lines = append(lines, fmt.Sprintf("- %s (%s)", titles[i], urls[i]))
		out.Citations = append(out.Citations, proto.Citation{
			URL:       urls[i],
			Title:     titles[i],
			Excerpt:   description,
			CrawledAt: now,
		})
	}
	if len(lines) == 0 {
		out.Content = fmt.Sprintf("no wiki articles for %q", query)
	} else {
		out.Content = "Arch Wiki articles:\n" + strings.Join(lines, "\n")
	}
	return out, nil
}
