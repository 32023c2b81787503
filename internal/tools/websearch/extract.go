// Package websearch provides the built-in web tools: page fetching with
// readable-text extraction and DuckDuckGo search.
package websearch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	userAgent       = "Mozilla/5.0 (compatible; mcpbot/1.0)"
	maxBodyBytes    = 10 * 1024 * 1024
	maxRedirects    = 10
	defaultMaxChars = 10000
)

var errPrivateAddress = errors.New("URL resolves to private/reserved IP address")

// ContentExtractor fetches pages and reduces them to readable text.
type ContentExtractor struct {
	httpClient *http.Client
	// blocked reports addresses that must not be fetched from. Nil allows
	// every address; tests serve from loopback.
	blocked func(net.IP) bool
}

// NewContentExtractor returns an extractor with SSRF protection enabled.
// The URL, every redirect hop and every dialed address are checked.
func NewContentExtractor() *ContentExtractor {
	return newContentExtractor(isPrivateOrReservedIP)
}

func newContentExtractor(blocked func(net.IP) bool) *ContentExtractor {
	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	if blocked != nil {
		dialer.Control = dialGuard(blocked)
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	// A proxy would be the dialed address, hiding the real target.
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext

	return &ContentExtractor{
		httpClient: &http.Client{
			Timeout:       15 * time.Second,
			Transport:     transport,
			CheckRedirect: redirectGuard(blocked),
		},
		blocked: blocked,
	}
}

// redirectGuard validates each redirect target before it is followed.
func redirectGuard(blocked func(net.IP) bool) func(*http.Request, []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		if err := validateURL(req.URL.String(), blocked); err != nil {
			return fmt.Errorf("redirect to %s blocked: %w", req.URL.Redacted(), err)
		}
		return nil
	}
}

// dialGuard rejects connections to blocked addresses after DNS
// resolution, which also covers names that rebind between validation
// and dialing.
func dialGuard(blocked func(net.IP) bool) func(network, address string, _ syscall.RawConn) error {
	return func(network, address string, _ syscall.RawConn) error {
		host, _, err := net.SplitHostPort(address)
		if err != nil {
			return err
		}
		ip := net.ParseIP(host)
		if ip == nil {
			return fmt.Errorf("dial %s: not an IP address", address)
		}
		if blocked(ip) {
			return errPrivateAddress
		}
		return nil
	}
}

func isPrivateOrReservedIP(ip net.IP) bool {
	if ip == nil {
		return false
	}
	return ip.IsLoopback() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsPrivate() ||
		ip.IsUnspecified() ||
		ip.IsMulticast()
}

func validateURL(rawURL string, blocked func(net.IP) bool) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got: %q", parsed.Scheme)
	}
	hostname := parsed.Hostname()
	if hostname == "" {
		return errors.New("URL must have a hostname")
	}
	if blocked == nil {
		return nil
	}

	lowerHost := strings.ToLower(hostname)
	if lowerHost == "localhost" || strings.HasSuffix(lowerHost, ".localhost") {
		if blocked(net.IPv4(127, 0, 0, 1)) {
			return errors.New("localhost URLs are not allowed")
		}
		return nil
	}
	if ip := net.ParseIP(hostname); ip != nil {
		if blocked(ip) {
			return errPrivateAddress
		}
		return nil
	}
	// Resolution failures surface from the request itself.
	ips, err := net.LookupIP(hostname)
	if err != nil {
		return nil
	}
	for _, ip := range ips {
		if blocked(ip) {
			return errPrivateAddress
		}
	}
	return nil
}

// Extract fetches targetURL and returns its readable content.
func (e *ContentExtractor) Extract(ctx context.Context, targetURL string) (string, error) {
	if err := validateURL(targetURL, e.blocked); err != nil {
		return "", fmt.Errorf("URL validation failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body := io.LimitReader(resp.Body, maxBodyBytes)
	contentType := resp.Header.Get("Content-Type")
	switch {
	case strings.Contains(contentType, "text/html"), contentType == "":
		return extractReadable(body)
	case strings.HasPrefix(contentType, "text/"), strings.Contains(contentType, "json"):
		raw, err := io.ReadAll(body)
		if err != nil {
			return "", fmt.Errorf("failed to read body: %w", err)
		}
		return strings.TrimSpace(string(raw)), nil
	default:
		return "", fmt.Errorf("unsupported content type: %s", contentType)
	}
}

// skipped holds elements whose text never belongs to the readable body.
var skipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Iframe:   true,
	atom.Nav:      true,
	atom.Header:   true,
	atom.Footer:   true,
	atom.Aside:    true,
	atom.Svg:      true,
	atom.Form:     true,
}

// Source line breaks inside text are not paragraph breaks.
var inlineSpace = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "\t", " ")

var blocks = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Tr: true, atom.Section: true, atom.Article: true, atom.Blockquote: true, atom.Pre: true,
}

// extractReadable parses an HTML document and renders title, description
// and the text of <main> or <article>, falling back to <body>.
func extractReadable(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	title := strings.TrimSpace(nodeText(findFirst(doc, atom.Title)))
	description := metaContent(doc, "description")
	if title == "" {
		title = metaContent(doc, "og:title")
	}

	root := findFirst(doc, atom.Main)
	if root == nil {
		root = findFirst(doc, atom.Article)
	}
	if root == nil {
		root = findFirst(doc, atom.Body)
	}
	if root == nil {
		root = doc
	}

	var out strings.Builder
	if title != "" {
		out.WriteString("Title: " + title + "\n\n")
	}
	if description != "" {
		out.WriteString("Description: " + description + "\n\n")
	}
	out.WriteString(cleanText(renderText(root)))
	return strings.TrimSpace(out.String()), nil
}

func findFirst(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, a); found != nil {
			return found
		}
	}
	return nil
}

func metaContent(doc *html.Node, name string) string {
	var found string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != "" {
			return
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Meta {
			key := attr(n, "name")
			if key == "" {
				key = attr(n, "property")
			}
			if strings.EqualFold(key, name) {
				found = strings.TrimSpace(attr(n, "content"))
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return found
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(inlineSpace.Replace(n.Data))
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func renderText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(inlineSpace.Replace(n.Data))
			return
		case html.ElementNode:
			if skipped[n.DataAtom] {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blocks[n.DataAtom] {
			b.WriteByte('\n')
		}
	}
	walk(n)
	return b.String()
}

// cleanText collapses runs of whitespace within lines and drops blank lines.
func cleanText(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

// truncateRunes cuts s to at most limit runes, marking the cut.
func truncateRunes(s string, limit int) (string, bool) {
	if limit <= 0 {
		return s, false
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s, false
	}
	return string(runes[:limit]) + "...", true
}
