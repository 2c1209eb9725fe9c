package fetch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brainscroll/paper-cli/internal/model"
	"github.com/brainscroll/paper-cli/pkg/arxiv"
)

type mockArxiv struct {
	results map[string][]arxiv.Paper
	errs    map[string]error
	queries []string
}

func (m *mockArxiv) Search(_ context.Context, query string, _ int) ([]arxiv.Paper, error) {
	m.queries = append(m.queries, query)
	if err, ok := m.errs[query]; ok {
		return nil, err
	}
	return m.results[query], nil
}

func TestSearchQuery(t *testing.T) {
	assert.Equal(t, "artificial intelligence", SearchQuery("cs.AI"))
	assert.Equal(t, "machine learning deep learning", SearchQuery("cs.LG"))
	// Unknown categories fall back to the stripped name.
	assert.Equal(t, "CR", SearchQuery("cs.CR"))
	assert.Equal(t, "math.CO", SearchQuery("math.CO"))
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "2301.07041v1", ShortID("http://arxiv.org/abs/2301.07041v1"))
	assert.Equal(t, "2301.07041", ShortID("2301.07041"))
	assert.Equal(t, "cond-mat_0703470", ShortID("abs/cond-mat_0703470"))
}

func TestTransform(t *testing.T) {
	published := time.Date(2023, 1, 17, 12, 0, 0, 0, time.UTC)
	raw := arxiv.Paper{
		ID:         "http://arxiv.org/abs/2301.07041v1",
		Title:      "  A Study of Things  ",
		Summary:    "Line one\nline two\nline three",
		Authors:    []string{"Ada Lovelace", "Alan Turing"},
		Categories: []string{"cs.LG", "stat.ML"},
		AbsURL:     "http://arxiv.org/abs/2301.07041v1",
		PDFURL:     "http://arxiv.org/pdf/2301.07041v1",
		Published:  &published,
	}

	got := Transform(raw, "cs.AI")

	assert.Equal(t, "2301.07041v1", got.ArxivID)
	assert.Equal(t, "A Study of Things", got.Title)
	assert.Equal(t, "Line one line two line three", got.Abstract)
	assert.Equal(t, "cs.AI", got.Category)
	assert.Equal(t, "cs.AI", got.PrimaryCategory)
	// Requested category is injected at the front when absent.
	assert.Equal(t, model.StringList{"cs.AI", "cs.LG", "stat.ML"}, got.Categories)
	require.NotNil(t, got.Updated)
	assert.Equal(t, published, *got.Updated)
	require.NotNil(t, got.FetchedAt)
	assert.False(t, got.Processed)
	assert.Zero(t, got.LikesCount)
	assert.Zero(t, got.ViewsCount)
}

func TestTransform_CategoryAlreadyPresent(t *testing.T) {
	raw := arxiv.Paper{
		ID:         "2301.00002",
		Title:      "T",
		Categories: []string{"cs.LG", "cs.AI"},
	}

	got := Transform(raw, "cs.AI")

	assert.Equal(t, model.StringList{"cs.LG", "cs.AI"}, got.Categories)
}

func TestFetchAll_CategoryFailureIsIsolated(t *testing.T) {
	client := &mockArxiv{
		results: map[string][]arxiv.Paper{
			"artificial intelligence": {
				{ID: "2301.00001", Title: "A"},
				{ID: "2301.00002", Title: "B"},
			},
		},
		errs: map[string]error{
			"robotics autonomous systems": errors.New("503 service unavailable"),
		},
	}
	f := New(client)

	papers, stats := f.FetchAll(context.Background(), []string{"cs.AI", "cs.RO"}, 10, 1)

	assert.Len(t, papers, 2)
	assert.Equal(t, 2, stats.TotalPapers)
	assert.Equal(t, 2, stats.PapersByCategory["cs.AI"])
	assert.Equal(t, 0, stats.PapersByCategory["cs.RO"])
	require.Len(t, stats.Errors, 1)
	assert.Contains(t, stats.Errors[0], "cs.RO")
}

func TestFetchCategory_AppliesCategoryToAll(t *testing.T) {
	client := &mockArxiv{
		results: map[string][]arxiv.Paper{
			"information retrieval search engines": {
				{ID: "2301.00001", Title: "A"},
				{ID: "2301.00002", Title: "B"},
			},
		},
	}
	f := New(client)

	papers, err := f.FetchCategory(context.Background(), "cs.IR", 5)

	require.NoError(t, err)
	require.Len(t, papers, 2)
	for _, p := range papers {
		assert.Equal(t, "cs.IR", p.Category)
		assert.True(t, p.Categories.Contains("cs.IR"))
	}
}
