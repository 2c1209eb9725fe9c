package dedup

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/brainscroll/paper-cli/internal/model"
	"github.com/brainscroll/paper-cli/internal/store"
)

// Deduplicator filters already-stored papers out of incoming batches and
// inserts the remainder. Lookups fail open: when the store cannot answer,
// papers are treated as new so a flaky database never silently drops data.
// The uniqueness constraint catches any duplicate that slips through.
type Deduplicator struct {
	store store.Store
}

// New creates a Deduplicator over the given store.
func New(st store.Store) *Deduplicator {
	return &Deduplicator{store: st}
}

// Exists reports whether a paper is already stored. Lookup errors are logged
// and reported as "not stored".
func (d *Deduplicator) Exists(ctx context.Context, arxivID string) bool {
	exists, err := d.store.ExistsPaper(ctx, arxivID)
	if err != nil {
		zap.L().Warn("dedup: exists lookup failed, treating as new",
			zap.String("arxiv_id", arxivID),
			zap.Error(err),
		)
		return false
	}
	return exists
}

// FilterNew returns the papers not yet stored, in input order, along with the
// number filtered out as duplicates. Repeats within the batch itself count as
// duplicates too; the first occurrence wins. The store is consulted with a
// single batched lookup.
func (d *Deduplicator) FilterNew(ctx context.Context, papers []model.Paper) ([]model.Paper, int) {
	if len(papers) == 0 {
		return nil, 0
	}

	ids := make([]string, 0, len(papers))
	for _, p := range papers {
		ids = append(ids, p.ArxivID)
	}

	existing, err := d.store.ExistingIDs(ctx, ids)
	if err != nil {
		zap.L().Warn("dedup: batch lookup failed, treating all as new",
			zap.Int("papers", len(papers)),
			zap.Error(err),
		)
		existing = map[string]struct{}{}
	}

	seen := make(map[string]struct{}, len(papers))
	fresh := make([]model.Paper, 0, len(papers))
	duplicates := 0
	for _, p := range papers {
		if _, dup := existing[p.ArxivID]; dup {
			duplicates++
			continue
		}
		if _, dup := seen[p.ArxivID]; dup {
			duplicates++
			continue
		}
		seen[p.ArxivID] = struct{}{}
		fresh = append(fresh, p)
	}

	zap.L().Info("dedup: filtered batch",
		zap.Int("input", len(papers)),
		zap.Int("new", len(fresh)),
		zap.Int("duplicates", duplicates),
	)
	return fresh, duplicates
}

// InsertMany stores a batch of papers, skipping duplicates. It pre-filters
// against the store, bulk-inserts the remainder, and on a bulk failure falls
// back to row-by-row inserts over the whole batch. The returned result
// always accounts for every input paper.
func (d *Deduplicator) InsertMany(ctx context.Context, papers []model.Paper) model.InsertResult {
	fresh, prefiltered := d.FilterNew(ctx, papers)
	result := model.InsertResult{Duplicates: prefiltered}
	if len(fresh) == 0 {
		return result
	}

	inserted, duplicates, err := d.store.BulkInsertPapers(ctx, fresh)
	if err != nil {
		// A failed bulk insert may have been rolled back wholesale, so the
		// partial counts cannot be trusted. Retry every row individually;
		// rows the bulk path did persist come back as duplicates.
		zap.L().Warn("dedup: bulk insert failed, falling back to row inserts",
			zap.Int("papers", len(fresh)),
			zap.Error(err),
		)
		for _, p := range fresh {
			switch insErr := d.store.InsertPaper(ctx, p); {
			case insErr == nil:
				result.Inserted++
			case errors.Is(insErr, store.ErrDuplicatePaper):
				result.Duplicates++
			default:
				zap.L().Error("dedup: insert failed",
					zap.String("arxiv_id", p.ArxivID),
					zap.Error(insErr),
				)
				result.Errors++
			}
		}
	} else {
		result.Inserted += inserted
		result.Duplicates += duplicates
	}

	zap.L().Info("dedup: insert complete",
		zap.Int("inserted", result.Inserted),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("errors", result.Errors),
	)
	return result
}
