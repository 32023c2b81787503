package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/mcpbot/internal/agent"
)

// FetchConfig controls web_fetch defaults.
type FetchConfig struct {
	MaxChars int
}

// WebFetchTool downloads a page and returns its readable text.
type WebFetchTool struct {
	config    FetchConfig
	extractor *ContentExtractor
}

// WebFetchOption customizes WebFetchTool construction.
type WebFetchOption func(*WebFetchTool)

// WithExtractor overrides the content extractor.
func WithExtractor(extractor *ContentExtractor) WebFetchOption {
	return func(tool *WebFetchTool) {
		if extractor != nil {
			tool.extractor = extractor
		}
	}
}

// NewWebFetchTool creates a web_fetch tool.
func NewWebFetchTool(config *FetchConfig, opts ...WebFetchOption) *WebFetchTool {
	cfg := FetchConfig{MaxChars: defaultMaxChars}
	if config != nil && config.MaxChars > 0 {
		cfg.MaxChars = config.MaxChars
	}
	tool := &WebFetchTool{config: cfg, extractor: NewContentExtractor()}
	for _, opt := range opts {
		opt(tool)
	}
	return tool
}

func (t *WebFetchTool) Name() string {
	return "web_fetch"
}

func (t *WebFetchTool) Description() string {
	return "Fetch a web page and return its readable text content. Use it to read a URL the user mentions or a search result."
}

func (t *WebFetchTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "url": {"type": "string", "description": "URL to fetch (http/https only)"},
    "max_chars": {"type": "integer", "minimum": 0, "description": "Maximum characters to return (default: 10000)"}
  },
  "required": ["url"]
}`)
}

type fetchParams struct {
	URL      string `json:"url"`
	MaxChars int    `json:"max_chars"`
}

type fetchResult struct {
	URL       string `json:"url"`
	Content   string `json:"content"`
	Truncated bool   `json:"truncated,omitempty"`
}

// Execute fetches the URL. Failures are reported to the model as error
// results rather than Go errors.
func (t *WebFetchTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var p fetchParams
	if err := json.Unmarshal(params, &p); err != nil {
		return errorResult("Invalid parameters: %v", err), nil
	}
	p.URL = strings.TrimSpace(p.URL)
	if p.URL == "" {
		return errorResult("Missing required parameter: url"), nil
	}

	limit := t.config.MaxChars
	if p.MaxChars > 0 && p.MaxChars < limit {
		limit = p.MaxChars
	}

	content, err := t.extractor.Extract(ctx, p.URL)
	if err != nil {
		return errorResult("Fetch failed: %v", err), nil
	}

	result := fetchResult{URL: p.URL}
	result.Content, result.Truncated = truncateRunes(content, limit)
	return jsonResult(result)
}

func errorResult(format string, args ...any) *agent.ToolResult {
	return &agent.ToolResult{Content: fmt.Sprintf(format, args...), IsError: true}
}

func jsonResult(v any) (*agent.ToolResult, error) {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult("Failed to format response: %v", err), nil
	}
	return &agent.ToolResult{Content: string(payload)}, nil
}
