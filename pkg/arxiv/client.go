package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Client defines the arXiv API operations used by the fetch phase.
type Client interface {
	Search(ctx context.Context, query string, maxResults int) ([]Paper, error)
}

// Paper is one raw result from the arXiv Atom feed. The identifier is the
// raw entry ID, which may be path-shaped ("http://arxiv.org/abs/2301.07041v1");
// deriving the short arXiv ID is the caller's job.
type Paper struct {
	ID              string
	Title           string
	Summary         string
	Authors         []string
	Categories      []string
	PrimaryCategory string
	AbsURL          string
	PDFURL          string
	Published       *time.Time
	Updated         *time.Time
}

type httpClient struct {
	baseURL   string
	userAgent string
	client    *http.Client
	limiter   *rate.Limiter
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the arXiv query endpoint.
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = u }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *httpClient) { c.userAgent = ua }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.client = hc }
}

// WithRateLimit caps outgoing requests per second. arXiv asks for at most 3.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// NewClient creates an arXiv API client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL:   "https://export.arxiv.org/api/query",
		userAgent: "paper-cli/1.0",
		client:    &http.Client{Timeout: 30 * time.Second},
		limiter:   rate.NewLimiter(3, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search queries the arXiv API, newest submissions first.
func (c *httpClient) Search(ctx context.Context, query string, maxResults int) ([]Paper, error) {
	if query == "" {
		return nil, eris.New("arxiv: empty query")
	}
	if maxResults <= 0 {
		maxResults = 20
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "arxiv: rate limiter wait")
	}

	params := url.Values{}
	params.Set("search_query", query)
	params.Set("start", "0")
	params.Set("max_results", fmt.Sprintf("%d", maxResults))
	params.Set("sortBy", "submittedDate")
	params.Set("sortOrder", "descending")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "arxiv: create request")
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "arxiv: query")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("arxiv: unexpected status %d", resp.StatusCode)
	}

	var feed atomFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, eris.Wrap(err, "arxiv: decode feed")
	}

	papers := make([]Paper, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		papers = append(papers, entry.toPaper())
	}

	zap.L().Debug("arxiv search complete",
		zap.String("query", query),
		zap.Int("results", len(papers)),
	)
	return papers, nil
}

// Atom feed XML structures.
type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID         string `xml:"id"`
	Title      string `xml:"title"`
	Summary    string `xml:"summary"`
	Published  string `xml:"published"`
	Updated    string `xml:"updated"`
	Authors    []struct {
		Name string `xml:"name"`
	} `xml:"author"`
	Categories []struct {
		Term string `xml:"term,attr"`
	} `xml:"category"`
	Primary struct {
		Term string `xml:"term,attr"`
	} `xml:"primary_category"`
	Links []struct {
		Href  string `xml:"href,attr"`
		Rel   string `xml:"rel,attr"`
		Title string `xml:"title,attr"`
	} `xml:"link"`
}

func (e atomEntry) toPaper() Paper {
	p := Paper{
		ID:              e.ID,
		Title:           e.Title,
		Summary:         e.Summary,
		PrimaryCategory: e.Primary.Term,
	}
	for _, a := range e.Authors {
		p.Authors = append(p.Authors, a.Name)
	}
	for _, c := range e.Categories {
		p.Categories = append(p.Categories, c.Term)
	}
	for _, l := range e.Links {
		switch {
		case l.Title == "pdf":
			p.PDFURL = l.Href
		case l.Rel == "alternate":
			p.AbsURL = l.Href
		}
	}
	if t, err := time.Parse(time.RFC3339, e.Published); err == nil {
		p.Published = &t
	}
	if t, err := time.Parse(time.RFC3339, e.Updated); err == nil {
		p.Updated = &t
	}
	return p
}
