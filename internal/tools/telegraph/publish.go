// Package telegraph publishes long-form answers as Telegraph pages.
//
// The tool creates an anonymous Telegraph account on first use and reuses
// its access token for every page after that.
package telegraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/mcpbot/internal/agent"
)

const (
	// DefaultBaseURL is the public Telegraph API endpoint.
	DefaultBaseURL = "https://api.telegra.ph"

	defaultShortName = "mcpbot"
	maxTitleRunes    = 256
	maxContentBytes  = 64 * 1024
	maxResponseBytes = 1 << 20
)

var errInvalidToken = errors.New("ACCESS_TOKEN_INVALID")

// Config controls the telegraph_publish tool.
type Config struct {
	// BaseURL overrides DefaultBaseURL.
	BaseURL string

	// AuthorName is shown on published pages.
	AuthorName string

	HTTPClient *http.Client
}

// PublishTool publishes text as a Telegraph page and returns its URL.
type PublishTool struct {
	baseURL    string
	author     string
	httpClient *http.Client

	mu          sync.Mutex
	accessToken string
}

// NewPublishTool creates a telegraph_publish tool.
func NewPublishTool(config *Config) *PublishTool {
	tool := &PublishTool{
		baseURL:    DefaultBaseURL,
		author:     defaultShortName,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
	if config != nil {
		if base := strings.TrimRight(strings.TrimSpace(config.BaseURL), "/"); base != "" {
			tool.baseURL = base
		}
		if name := strings.TrimSpace(config.AuthorName); name != "" {
			tool.author = name
		}
		if config.HTTPClient != nil {
			tool.httpClient = config.HTTPClient
		}
	}
	return tool
}

func (t *PublishTool) Name() string {
	return "telegraph_publish"
}

func (t *PublishTool) Description() string {
	return "Publish long text, such as a full summary or report, as a Telegraph page and return its URL. Use it when an answer is too long to read comfortably in a chat message."
}

func (t *PublishTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "title": {"type": "string", "description": "Page title (up to 256 characters)"},
    "content": {"type": "string", "description": "Page body. Blank lines separate paragraphs, lines starting with '# ' or '## ' are headings, lines starting with '- ' are list items"}
  },
  "required": ["title", "content"]
}`)
}

type publishParams struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type publishResult struct {
	URL   string `json:"url"`
	Path  string `json:"path"`
	Title string `json:"title"`
}

type account struct {
	ShortName   string `json:"short_name"`
	AuthorName  string `json:"author_name"`
	AccessToken string `json:"access_token"`
}

type page struct {
	Path  string `json:"path"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Execute publishes the page. Failures are reported to the model as error
// results rather than Go errors.
func (t *PublishTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var p publishParams
	if err := json.Unmarshal(params, &p); err != nil {
		return errorResult("Invalid parameters: %v", err), nil
	}
	p.Title = strings.TrimSpace(p.Title)
	p.Content = strings.TrimSpace(p.Content)
	if p.Title == "" {
		return errorResult("Missing required parameter: title"), nil
	}
	if p.Content == "" {
		return errorResult("Missing required parameter: content"), nil
	}
	if runes := []rune(p.Title); len(runes) > maxTitleRunes {
		p.Title = string(runes[:maxTitleRunes])
	}

	content, err := json.Marshal(TextToNodes(p.Content))
	if err != nil {
		return errorResult("Failed to encode content: %v", err), nil
	}
	if len(content) > maxContentBytes {
		return errorResult("Content too large: %d bytes (limit %d)", len(content), maxContentBytes), nil
	}

	created, err := t.createPage(ctx, p.Title, string(content))
	if errors.Is(err, errInvalidToken) {
		t.forgetToken()
		created, err = t.createPage(ctx, p.Title, string(content))
	}
	if err != nil {
		return errorResult("Publish failed: %v", err), nil
	}
	return jsonResult(publishResult{URL: created.URL, Path: created.Path, Title: created.Title})
}

func (t *PublishTool) createPage(ctx context.Context, title, content string) (*page, error) {
	token, err := t.token(ctx)
	if err != nil {
		return nil, err
	}
	var created page
	err = t.call(ctx, "createPage", url.Values{
		"access_token":   {token},
		"title":          {title},
		"author_name":    {t.author},
		"content":        {content},
		"return_content": {"false"},
	}, &created)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// token returns the cached access token, creating an account first when
// there is none.
func (t *PublishTool) token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.accessToken != "" {
		return t.accessToken, nil
	}

	var acct account
	err := t.call(ctx, "createAccount", url.Values{
		"short_name":  {defaultShortName},
		"author_name": {t.author},
	}, &acct)
	if err != nil {
		return "", fmt.Errorf("create account: %w", err)
	}
	if acct.AccessToken == "" {
		return "", errors.New("create account: empty access token")
	}
	t.accessToken = acct.AccessToken
	return t.accessToken, nil
}

func (t *PublishTool) forgetToken() {
	t.mu.Lock()
	t.accessToken = ""
	t.mu.Unlock()
}

// call posts a form to one API method and decodes the result field of the
// {"ok":..., "result":..., "error":...} envelope into out.
func (t *PublishTool) call(ctx context.Context, method string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/"+method, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%s: read response: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: HTTP %d", method, resp.StatusCode)
	}

	var envelope struct {
		OK     bool            `json:"ok"`
		Error  string          `json:"error"`
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("%s: decode response: %w", method, err)
	}
	if !envelope.OK {
		if envelope.Error == errInvalidToken.Error() {
			return fmt.Errorf("%s: %w", method, errInvalidToken)
		}
		return fmt.Errorf("%s: %s", method, envelope.Error)
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("%s: decode result: %w", method, err)
	}
	return nil
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
