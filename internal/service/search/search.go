package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
)

const defaultEndpoint = "https://html.duckduckgo.com/html/"

// Result is one web search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Searcher runs a web search for the model's search tool.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

// DuckDuckGo scrapes the DuckDuckGo HTML endpoint.
type DuckDuckGo struct {
	Endpoint   string
	HTTPClient *http.Client
	MaxResults int
	UserAgent  string
}

// NewDuckDuckGo returns a searcher with sane defaults.
func NewDuckDuckGo() *DuckDuckGo {
	return &DuckDuckGo{
		Endpoint:   defaultEndpoint,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		MaxResults: 5,
		UserAgent:  "Mozilla/5.0 (compatible; spirit-search/1.0)",
	}
}

// Search fetches the result page for query and extracts titles, links and snippets.
func (d *DuckDuckGo) Search(ctx context.Context, query string) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("search query is empty")
	}

	endpoint := d.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	client := d.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	form := url.Values{"q": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if d.UserAgent != "" {
		req.Header.Set("User-Agent", d.UserAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse search page: %w", err)
	}

	results := parseResults(doc, d.MaxResults)
	log.Debug().Str("query", query).Int("results", len(results)).Msg("web search completed")
	return results, nil
}

func parseResults(doc *goquery.Document, limit int) []Result {
	if limit <= 0 {
		limit = 5
	}

	var results []Result
	doc.Find(".result").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		link := sel.Find("a.result__a").First()
		title := strings.TrimSpace(link.Text())
		if title == "" {
			return true
		}
		href, _ := link.Attr("href")
		results = append(results, Result{
			Title:   title,
			URL:     resolveRedirect(href),
			Snippet: strings.TrimSpace(sel.Find(".result__snippet").First().Text()),
		})
		return len(results) < limit
	})
	return results
}

// resolveRedirect unwraps DuckDuckGo's /l/?uddg= redirect links.
func resolveRedirect(href string) string {
	parsed, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := parsed.Query().Get("uddg"); target != "" {
		return target
	}
	if parsed.Scheme == "" && strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	return href
}

// FormatResults renders results as plain text for a tool response message.
func FormatResults(query string, results []Result) string {
	if len(results) == 0 {
		return fmt.Sprintf("No web results found for %q.", query)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Web results for %q:\n", query)
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n   %s\n", i+1, r.Title, r.URL)
		if r.Snippet != "" {
			fmt.Fprintf(&b, "   %s\n", r.Snippet)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
