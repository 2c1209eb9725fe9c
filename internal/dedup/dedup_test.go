package dedup

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brainscroll/paper-cli/internal/model"
	"github.com/brainscroll/paper-cli/internal/store"
)

// mockStore implements the subset of store.Store the deduplicator touches.
// Unused methods panic so an unexpected call fails loudly.
type mockStore struct {
	store.Store

	existing     map[string]struct{}
	existsErr    error
	batchErr     error
	bulkErr      error
	bulkHandled  int  // rows the failing bulk insert counted before erroring
	bulkPersists bool // whether those rows survive the failure (per-row commit)

	inserted  []string
	insertErr map[string]error
}

func (m *mockStore) ExistsPaper(_ context.Context, arxivID string) (bool, error) {
	if m.existsErr != nil {
		return false, m.existsErr
	}
	_, ok := m.existing[arxivID]
	return ok, nil
}

func (m *mockStore) ExistingIDs(_ context.Context, ids []string) (map[string]struct{}, error) {
	if m.batchErr != nil {
		return nil, m.batchErr
	}
	out := make(map[string]struct{})
	for _, id := range ids {
		if _, ok := m.existing[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

func (m *mockStore) BulkInsertPapers(_ context.Context, papers []model.Paper) (int, int, error) {
	rows := papers
	if m.bulkErr != nil {
		handled := m.bulkHandled
		if handled > len(papers) {
			handled = len(papers)
		}
		rows = papers[:handled]
	}

	inserted := 0
	duplicates := 0
	for _, p := range rows {
		if _, dup := m.existing[p.ArxivID]; dup {
			duplicates++
			continue
		}
		inserted++
		if m.bulkErr == nil || m.bulkPersists {
			m.persist(p.ArxivID)
		}
	}
	return inserted, duplicates, m.bulkErr
}

func (m *mockStore) persist(arxivID string) {
	m.inserted = append(m.inserted, arxivID)
	if m.existing == nil {
		m.existing = map[string]struct{}{}
	}
	m.existing[arxivID] = struct{}{}
}

func (m *mockStore) InsertPaper(_ context.Context, paper model.Paper) error {
	if err, ok := m.insertErr[paper.ArxivID]; ok {
		return err
	}
	if _, dup := m.existing[paper.ArxivID]; dup {
		return store.ErrDuplicatePaper
	}
	m.persist(paper.ArxivID)
	return nil
}

func papersWithIDs(ids ...string) []model.Paper {
	out := make([]model.Paper, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.Paper{ArxivID: id, Title: "t", Abstract: "a"})
	}
	return out
}

func TestExists_FailsOpen(t *testing.T) {
	d := New(&mockStore{existsErr: errors.New("connection refused")})
	assert.False(t, d.Exists(context.Background(), "2301.00001"))
}

func TestExists(t *testing.T) {
	d := New(&mockStore{existing: map[string]struct{}{"2301.00001": {}}})
	assert.True(t, d.Exists(context.Background(), "2301.00001"))
	assert.False(t, d.Exists(context.Background(), "2301.99999"))
}

func TestFilterNew_PreservesOrder(t *testing.T) {
	d := New(&mockStore{existing: map[string]struct{}{"b": {}}})

	fresh, duplicates := d.FilterNew(context.Background(), papersWithIDs("a", "b", "c"))

	require.Len(t, fresh, 2)
	assert.Equal(t, "a", fresh[0].ArxivID)
	assert.Equal(t, "c", fresh[1].ArxivID)
	assert.Equal(t, 1, duplicates)
}

func TestFilterNew_InBatchRepeatFirstWins(t *testing.T) {
	d := New(&mockStore{})

	fresh, duplicates := d.FilterNew(context.Background(), papersWithIDs("a", "a", "b"))

	require.Len(t, fresh, 2)
	assert.Equal(t, "a", fresh[0].ArxivID)
	assert.Equal(t, "b", fresh[1].ArxivID)
	assert.Equal(t, 1, duplicates)
}

func TestFilterNew_LookupErrorTreatsAllAsNew(t *testing.T) {
	d := New(&mockStore{batchErr: errors.New("timeout")})

	fresh, duplicates := d.FilterNew(context.Background(), papersWithIDs("a", "b"))

	assert.Len(t, fresh, 2)
	assert.Equal(t, 0, duplicates)
}

func TestFilterNew_Empty(t *testing.T) {
	d := New(&mockStore{})
	fresh, duplicates := d.FilterNew(context.Background(), nil)
	assert.Empty(t, fresh)
	assert.Equal(t, 0, duplicates)
}

func TestInsertMany_AllNew(t *testing.T) {
	st := &mockStore{}
	d := New(st)

	result := d.InsertMany(context.Background(), papersWithIDs("a", "b", "c"))

	assert.Equal(t, model.InsertResult{Inserted: 3}, result)
	assert.Equal(t, 3, result.Total())
	assert.Equal(t, []string{"a", "b", "c"}, st.inserted)
}

func TestInsertMany_PrefiltersStoredPapers(t *testing.T) {
	st := &mockStore{existing: map[string]struct{}{"a": {}, "c": {}}}
	d := New(st)

	result := d.InsertMany(context.Background(), papersWithIDs("a", "b", "c"))

	assert.Equal(t, model.InsertResult{Inserted: 1, Duplicates: 2}, result)
	assert.Equal(t, 3, result.Total())
}

func TestInsertMany_SameBatchDuplicate(t *testing.T) {
	d := New(&mockStore{})

	result := d.InsertMany(context.Background(), papersWithIDs("a", "a"))

	assert.Equal(t, model.InsertResult{Inserted: 1, Duplicates: 1}, result)
	assert.Equal(t, 2, result.Total())
}

func TestInsertMany_BulkFailureRetriesWholeBatch(t *testing.T) {
	// The bulk path counts "a" as inserted before erroring, but the batch is
	// rolled back and "a" never lands. The fallback must retry every row,
	// not just the ones the counts left uncovered.
	st := &mockStore{
		bulkErr:     errors.New("batch exploded"),
		bulkHandled: 1,
		insertErr:   map[string]error{"c": errors.New("disk full")},
	}
	d := New(st)

	result := d.InsertMany(context.Background(), papersWithIDs("a", "b", "c"))

	assert.Equal(t, model.InsertResult{Inserted: 2, Duplicates: 0, Errors: 1}, result)
	assert.Equal(t, 3, result.Total())
	assert.Equal(t, []string{"a", "b"}, st.inserted)
}

func TestInsertMany_BulkFailurePersistedRowsBecomeDuplicates(t *testing.T) {
	// With a driver that commits row by row, "a" survives the bulk failure
	// and the full retry reports it as a duplicate instead of losing or
	// double-counting it.
	st := &mockStore{
		bulkErr:      errors.New("disk full"),
		bulkHandled:  1,
		bulkPersists: true,
	}
	d := New(st)

	result := d.InsertMany(context.Background(), papersWithIDs("a", "b", "c"))

	assert.Equal(t, model.InsertResult{Inserted: 2, Duplicates: 1, Errors: 0}, result)
	assert.Equal(t, 3, result.Total())
	assert.Equal(t, []string{"a", "b", "c"}, st.inserted)
}

func TestInsertMany_Empty(t *testing.T) {
	d := New(&mockStore{})
	result := d.InsertMany(context.Background(), nil)
	assert.Equal(t, model.InsertResult{}, result)
}
