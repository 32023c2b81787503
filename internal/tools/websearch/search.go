package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/haasonsaas/mcpbot/internal/agent"
)

const (
	// DefaultSearchURL is DuckDuckGo's JavaScript-free results page.
	DefaultSearchURL = "https://html.duckduckgo.com/html/"

	maxResultCount = 20
	maxCacheSize   = 1000
)

// SearchConfig configures the duckduckgo_search tool.
type SearchConfig struct {
	// Endpoint overrides DefaultSearchURL.
	Endpoint string

	DefaultResultCount int
	CacheTTL           time.Duration
	HTTPClient         *http.Client
}

// SearchResult is one search hit.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// SearchResponse is returned to the model as JSON.
type SearchResponse struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
}

type cacheEntry struct {
	response  *SearchResponse
	expiresAt time.Time
}

// SearchTool queries DuckDuckGo and caches responses per query.
type SearchTool struct {
	config     SearchConfig
	httpClient *http.Client

	cacheMu sync.RWMutex
	cache   map[string]*cacheEntry
	now     func() time.Time
}

// NewSearchTool creates a duckduckgo_search tool.
func NewSearchTool(config *SearchConfig) *SearchTool {
	cfg := SearchConfig{}
	if config != nil {
		cfg = *config
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultSearchURL
	}
	if cfg.DefaultResultCount <= 0 {
		cfg.DefaultResultCount = 5
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &SearchTool{
		config:     cfg,
		httpClient: client,
		cache:      make(map[string]*cacheEntry),
		now:        time.Now,
	}
}

func (t *SearchTool) Name() string {
	return "duckduckgo_search"
}

func (t *SearchTool) Description() string {
	return "Search the web with DuckDuckGo. Returns titles, URLs and snippets; use web_fetch to read a result."
}

func (t *SearchTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "query": {"type": "string", "description": "The search query"},
    "result_count": {"type": "integer", "minimum": 1, "maximum": 20, "description": "Number of results to return (default: 5)"}
  },
  "required": ["query"]
}`)
}

type searchParams struct {
	Query       string `json:"query"`
	ResultCount int    `json:"result_count"`
}

func (t *SearchTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var p searchParams
	if err := json.Unmarshal(params, &p); err != nil {
		return errorResult("Invalid parameters: %v", err), nil
	}
	p.Query = strings.TrimSpace(p.Query)
	if p.Query == "" {
		return errorResult("Query parameter is required"), nil
	}
	switch {
	case p.ResultCount <= 0:
		p.ResultCount = t.config.DefaultResultCount
	case p.ResultCount > maxResultCount:
		p.ResultCount = maxResultCount
	}

	key := fmt.Sprintf("%s:%d", strings.ToLower(p.Query), p.ResultCount)
	if cached := t.getFromCache(key); cached != nil {
		return jsonResult(cached)
	}

	response, err := t.search(ctx, p.Query, p.ResultCount)
	if err != nil {
		return errorResult("Search failed: %v", err), nil
	}
	t.putInCache(key, response)
	return jsonResult(response)
}

func (t *SearchTool) search(ctx context.Context, query string, count int) (*SearchResponse, error) {
	form := url.Values{"q": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.config.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse results: %w", err)
	}
	results := parseResults(doc)
	if len(results) > count {
		results = results[:count]
	}
	return &SearchResponse{Query: query, Results: results}, nil
}

// parseResults reads result__a links and the result__snippet that
// follows each of them.
func parseResults(doc *html.Node) []SearchResult {
	var results []SearchResult
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			switch {
			case hasClass(n, "result__a"):
				results = append(results, SearchResult{
					Title: cleanText(nodeText(n)),
					URL:   resolveResultURL(attr(n, "href")),
				})
				return
			case hasClass(n, "result__snippet") && len(results) > 0:
				results[len(results)-1].Snippet = cleanText(nodeText(n))
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	out := results[:0]
	for _, r := range results {
		if r.URL != "" && r.Title != "" {
			out = append(out, r)
		}
	}
	return out
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// resolveResultURL unwraps DuckDuckGo's redirect links
// (//duckduckgo.com/l/?uddg=<target>).
func resolveResultURL(href string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := parsed.Query().Get("uddg"); target != "" {
		return target
	}
	return parsed.String()
}

func (t *SearchTool) getFromCache(key string) *SearchResponse {
	t.cacheMu.RLock()
	defer t.cacheMu.RUnlock()
	entry, ok := t.cache[key]
	if !ok || t.now().After(entry.expiresAt) {
		return nil
	}
	return entry.response
}

func (t *SearchTool) putInCache(key string, response *SearchResponse) {
	t.cacheMu.Lock()
	defer t.cacheMu.Unlock()

	now := t.now()
	if len(t.cache) >= maxCacheSize {
		for k, entry := range t.cache {
			if now.After(entry.expiresAt) {
				delete(t.cache, k)
			}
		}
	}
	if len(t.cache) >= maxCacheSize {
		// Still full: drop an arbitrary entry.
		for k := range t.cache {
			delete(t.cache, k)
			break
		}
	}
	t.cache[key] = &cacheEntry{response: response, expiresAt: now.Add(t.config.CacheTTL)}
}
