// Package fetch retrieves a vendor's public web page and reduces it to the
// title, description and visible text used to brief the copywriter.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 15 * time.Second

// DefaultUserAgent is the user agent string for HTTP requests.
const DefaultUserAgent = "Mozilla/5.0 (compatible; OutreachAgent/1.0)"

// maxBodyBytes caps how much of a page is read.
const maxBodyBytes = 2 << 20

// maxTextRunes caps the visible text kept for a page.
const maxTextRunes = 4000

// Page is the useful content of a vendor page.
type Page struct {
	URL         string
	Title       string
	Description string
	Text        string
	Rendered    bool
}

// Error represents an error during URL fetching.
type Error struct {
	URL     string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch error for %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("fetch error for %s: %s", e.URL, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Renderer returns the HTML of a page after scripts have run.
type Renderer func(ctx context.Context, url string) (string, error)

// Fetcher loads vendor pages.
type Fetcher struct {
	client    *http.Client
	userAgent string
	render    Renderer
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithRenderer enables a browser fallback for pages with little static text.
func WithRenderer(r Renderer) Option {
	return func(f *Fetcher) { f.render = r }
}

// New returns a Fetcher with the default timeout and user agent.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:    &http.Client{Timeout: DefaultTimeout},
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Page fetches rawURL and extracts its content. Script-heavy pages are rendered
// in a browser when a renderer is configured.
func (f *Fetcher) Page(ctx context.Context, rawURL string) (*Page, error) {
	html, err := f.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	page, err := ExtractPage(html)
	if err != nil {
		return nil, &Error{URL: rawURL, Message: "failed to parse page", Cause: err}
	}
	page.URL = rawURL

	if f.render != nil && ShouldUseBrowser(page.Text) {
		rendered, err := f.render(ctx, rawURL)
		if err == nil {
			if rp, perr := ExtractPage(rendered); perr == nil && len(rp.Text) > len(page.Text) {
				rp.URL, rp.Rendered = rawURL, true
				return rp, nil
			}
		}
	}
	return page, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return "", &Error{URL: rawURL, Message: "invalid URL", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", &Error{URL: rawURL, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", &Error{URL: rawURL, Message: "HTTP request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", &Error{URL: rawURL, Message: fmt.Sprintf("HTTP status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", &Error{URL: rawURL, Message: "failed to read response body", Cause: err}
	}
	return string(body), nil
}

// ExtractPage parses HTML and returns its title, meta description and main text.
func ExtractPage(html string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	page := &Page{
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
	}
	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		page.Description = strings.TrimSpace(desc)
	} else if desc, ok := doc.Find(`meta[property="og:description"]`).Attr("content"); ok {
		page.Description = strings.TrimSpace(desc)
	}
	if page.Title == "" {
		if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
			page.Title = strings.TrimSpace(og)
		}
	}

	doc.Find("nav, footer, script, style, noscript, iframe, .cookie-banner, .popup").Remove()

	content := doc.Find("body")
	for _, selector := range []string{"main", "article", "#content", ".content"} {
		if sel := doc.Find(selector); sel.Length() > 0 {
			content = sel.First()
			break
		}
	}
	page.Text = truncate(cleanWhitespace(content.Text()), maxTextRunes)
	return page, nil
}

// cleanWhitespace trims lines and drops empty ones.
func cleanWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	cleaned := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
