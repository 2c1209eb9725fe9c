package arxiv

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/2301.07041v1</id>
    <title>A Survey of Transformers</title>
    <summary>Transformers have become the dominant architecture.</summary>
    <published>2023-01-17T12:00:00Z</published>
    <updated>2023-01-18T08:30:00Z</updated>
    <author><name>Ada Lovelace</name></author>
    <author><name>Alan Turing</name></author>
    <link href="http://arxiv.org/abs/2301.07041v1" rel="alternate" type="text/html"/>
    <link title="pdf" href="http://arxiv.org/pdf/2301.07041v1" rel="related" type="application/pdf"/>
    <category term="cs.LG"/>
    <category term="cs.AI"/>
    <primary_category xmlns="http://arxiv.org/schemas/atom" term="cs.LG"/>
  </entry>
</feed>`

func TestSearch(t *testing.T) {
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		assert.Equal(t, "test-agent/1.0", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/atom+xml")
		w.Write([]byte(sampleFeed))
	}))
	defer srv.Close()

	c := NewClient(
		WithBaseURL(srv.URL),
		WithUserAgent("test-agent/1.0"),
		WithRateLimit(1000),
	)

	papers, err := c.Search(context.Background(), "machine learning", 10)
	require.NoError(t, err)

	assert.Equal(t, []string{"machine learning"}, gotQuery["search_query"])
	assert.Equal(t, []string{"10"}, gotQuery["max_results"])
	assert.Equal(t, []string{"submittedDate"}, gotQuery["sortBy"])
	assert.Equal(t, []string{"descending"}, gotQuery["sortOrder"])

	require.Len(t, papers, 1)
	p := papers[0]
	assert.Equal(t, "http://arxiv.org/abs/2301.07041v1", p.ID)
	assert.Equal(t, "A Survey of Transformers", p.Title)
	assert.Equal(t, []string{"Ada Lovelace", "Alan Turing"}, p.Authors)
	assert.Equal(t, []string{"cs.LG", "cs.AI"}, p.Categories)
	assert.Equal(t, "http://arxiv.org/abs/2301.07041v1", p.AbsURL)
	assert.Equal(t, "http://arxiv.org/pdf/2301.07041v1", p.PDFURL)
	require.NotNil(t, p.Published)
	assert.Equal(t, 2023, p.Published.Year())
	require.NotNil(t, p.Updated)
	assert.Equal(t, 18, p.Updated.Day())
}

func TestSearch_EmptyQuery(t *testing.T) {
	c := NewClient()
	_, err := c.Search(context.Background(), "", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty query")
}

func TestSearch_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithRateLimit(1000))
	_, err := c.Search(context.Background(), "anything", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 503")
}

func TestSearch_BadXML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not xml at all"))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithRateLimit(1000))
	_, err := c.Search(context.Background(), "anything", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode feed")
}
