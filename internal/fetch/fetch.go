package fetch

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/brainscroll/paper-cli/internal/model"
	"github.com/brainscroll/paper-cli/pkg/arxiv"
)

// categoryQueries maps arXiv CS categories to keyword search queries.
// Unknown categories fall back to the category name with the "cs." prefix
// stripped.
var categoryQueries = map[string]string{
	"cs.AI": "artificial intelligence",
	"cs.CL": "natural language processing computational linguistics",
	"cs.LG": "machine learning deep learning",
	"cs.CV": "computer vision image processing",
	"cs.NE": "neural networks evolutionary computing",
	"cs.RO": "robotics autonomous systems",
	"cs.IR": "information retrieval search engines",
}

// SearchQuery returns the keyword query used for a category.
func SearchQuery(category string) string {
	if q, ok := categoryQueries[category]; ok {
		return q
	}
	return strings.TrimPrefix(category, "cs.")
}

// Fetcher pulls recent papers from arXiv and shapes them into model.Paper
// records, one batch per category.
type Fetcher struct {
	client arxiv.Client
}

// New creates a Fetcher over the given arXiv client.
func New(client arxiv.Client) *Fetcher {
	return &Fetcher{client: client}
}

// FetchCategory fetches up to maxResults papers for one category.
func (f *Fetcher) FetchCategory(ctx context.Context, category string, maxResults int) ([]model.Paper, error) {
	raw, err := f.client.Search(ctx, SearchQuery(category), maxResults)
	if err != nil {
		return nil, err
	}

	papers := make([]model.Paper, 0, len(raw))
	for _, r := range raw {
		papers = append(papers, Transform(r, category))
	}

	zap.L().Info("fetched category",
		zap.String("category", category),
		zap.Int("papers", len(papers)),
	)
	return papers, nil
}

// FetchAll fetches every requested category. A failure in one category is
// recorded in the stats and logged; the remaining categories still run.
func (f *Fetcher) FetchAll(ctx context.Context, categories []string, maxPerCategory, daysBack int) ([]model.Paper, *model.FetchStats) {
	stats := &model.FetchStats{
		Categories:       categories,
		MaxPerCategory:   maxPerCategory,
		DaysBack:         daysBack,
		PapersByCategory: make(map[string]int),
		StartedAt:        time.Now().UTC(),
	}

	var all []model.Paper
	for _, category := range categories {
		papers, err := f.FetchCategory(ctx, category, maxPerCategory)
		if err != nil {
			zap.L().Error("fetch category failed",
				zap.String("category", category),
				zap.Error(err),
			)
			stats.PapersByCategory[category] = 0
			stats.Errors = append(stats.Errors, category+": "+err.Error())
			continue
		}
		stats.PapersByCategory[category] = len(papers)
		all = append(all, papers...)
	}

	stats.TotalPapers = len(all)
	stats.DurationSeconds = time.Since(stats.StartedAt).Seconds()
	return all, stats
}

// Transform shapes one raw arXiv result into a model.Paper for the given
// category. The requested category becomes both the record's category and,
// when absent from the feed's category set, its first entry.
func Transform(raw arxiv.Paper, category string) model.Paper {
	now := time.Now().UTC()

	categories := append(model.StringList(nil), raw.Categories...)
	if !categories.Contains(category) {
		categories = append(model.StringList{category}, categories...)
	}

	return model.Paper{
		ArxivID:         ShortID(raw.ID),
		Title:           strings.TrimSpace(raw.Title),
		Authors:         model.StringList(raw.Authors),
		Abstract:        strings.ReplaceAll(strings.TrimSpace(raw.Summary), "\n", " "),
		Category:        category,
		PrimaryCategory: category,
		Categories:      categories,
		ArxivURL:        raw.AbsURL,
		PDFURL:          raw.PDFURL,
		Published:       raw.Published,
		Updated:         updatedOrPublished(raw),
		FetchedAt:       &now,
		CreatedAt:       now,
	}
}

// ShortID derives the short arXiv identifier from a possibly path-shaped raw
// ID such as "http://arxiv.org/abs/2301.07041v1".
func ShortID(raw string) string {
	if idx := strings.LastIndex(raw, "/"); idx >= 0 {
		return raw[idx+1:]
	}
	return raw
}

func updatedOrPublished(raw arxiv.Paper) *time.Time {
	if raw.Updated != nil {
		return raw.Updated
	}
	return raw.Published
}
