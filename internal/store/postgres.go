package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/brainscroll/paper-cli/internal/model"
	"github.com/brainscroll/paper-cli/internal/resilience"
)

// Pool abstracts the pgxpool operations the store needs, so tests can
// substitute pgxmock.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

// NewPostgres creates a PostgresStore with a connection pool. The connection
// step is the one place retried with backoff; individual queries are not.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute
	pgxCfg.ConnConfig.ConnectTimeout = 10 * time.Second

	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.OnRetry = resilience.RetryLogger("postgres", "connect")

	pool, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*pgxpool.Pool, error) {
		p, poolErr := pgxpool.NewWithConfig(ctx, pgxCfg)
		if poolErr != nil {
			return nil, poolErr
		}
		if pingErr := p.Ping(ctx); pingErr != nil {
			p.Close()
			return nil, pingErr
		}
		return p, nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}

	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS papers (
	arxiv_id          TEXT PRIMARY KEY,
	title             TEXT NOT NULL,
	authors           JSONB NOT NULL DEFAULT '[]',
	abstract          TEXT NOT NULL DEFAULT '',
	category          TEXT NOT NULL DEFAULT '',
	primary_category  TEXT NOT NULL DEFAULT '',
	categories        JSONB NOT NULL DEFAULT '[]',
	arxiv_url         TEXT NOT NULL DEFAULT '',
	pdf_url           TEXT NOT NULL DEFAULT '',
	published         TIMESTAMPTZ,
	updated           TIMESTAMPTZ,
	summary           TEXT NOT NULL DEFAULT '',
	why_it_matters    TEXT NOT NULL DEFAULT '',
	applications      JSONB NOT NULL DEFAULT '[]',
	processed         BOOLEAN NOT NULL DEFAULT FALSE,
	processed_at      TIMESTAMPTZ,
	processing_errors JSONB NOT NULL DEFAULT '[]',
	likes_count       INTEGER NOT NULL DEFAULT 0,
	views_count       INTEGER NOT NULL DEFAULT 0,
	fetched_at        TIMESTAMPTZ,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_papers_created_at ON papers(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_papers_category ON papers(category);
CREATE INDEX IF NOT EXISTS idx_papers_processed_at ON papers(processed_at);
CREATE INDEX IF NOT EXISTS idx_papers_likes_count ON papers(likes_count DESC);
CREATE INDEX IF NOT EXISTS idx_papers_views_count ON papers(views_count DESC);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL DEFAULT 'running',
	stats      JSONB,
	started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	ended_at   TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_pipeline_runs_started_at ON pipeline_runs(started_at DESC);
`

const paperColumns = `arxiv_id, title, authors, abstract, category, primary_category, categories,
	arxiv_url, pdf_url, published, updated, summary, why_it_matters, applications,
	processed, processed_at, processing_errors, likes_count, views_count, fetched_at, created_at`

const insertPaperSQL = `INSERT INTO papers (` + paperColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) ExistsPaper(ctx context.Context, arxivID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM papers WHERE arxiv_id = $1)`, arxivID,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: exists %s", arxivID)
	}
	return exists, nil
}

func (s *PostgresStore) ExistingIDs(ctx context.Context, arxivIDs []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	if len(arxivIDs) == 0 {
		return existing, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT arxiv_id FROM papers WHERE arxiv_id = ANY($1)`, arxivIDs,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: existing ids")
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan existing id")
		}
		existing[id] = struct{}{}
	}
	return existing, eris.Wrap(rows.Err(), "postgres: existing ids rows")
}

func (s *PostgresStore) InsertPaper(ctx context.Context, paper model.Paper) error {
	args, err := paperInsertArgs(paper)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, insertPaperSQL, args...); err != nil {
		if isPgUniqueViolation(err) {
			return ErrDuplicatePaper
		}
		return eris.Wrapf(err, "postgres: insert paper %s", paper.ArxivID)
	}
	return nil
}

func (s *PostgresStore) BulkInsertPapers(ctx context.Context, papers []model.Paper) (int, int, error) {
	if len(papers) == 0 {
		return 0, 0, nil
	}

	batch := &pgx.Batch{}
	for _, paper := range papers {
		args, err := paperInsertArgs(paper)
		if err != nil {
			return 0, 0, err
		}
		batch.Queue(insertPaperSQL+` ON CONFLICT (arxiv_id) DO NOTHING`, args...)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	inserted, duplicates := 0, 0
	for range papers {
		tag, err := br.Exec()
		if err != nil {
			// The batch runs in one implicit transaction, so a failure rolls
			// back every row, including those already counted as inserted.
			return 0, 0, eris.Wrap(err, "postgres: bulk insert")
		}
		if tag.RowsAffected() > 0 {
			inserted++
		} else {
			duplicates++
		}
	}
	return inserted, duplicates, nil
}

func (s *PostgresStore) UpdatePaper(ctx context.Context, arxivID string, fields map[string]any) error {
	set, args, err := buildPaperUpdate(fields, func(i int) string { return fmt.Sprintf("$%d", i) })
	if err != nil {
		return err
	}
	args = append(args, arxivID)

	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE papers SET %s WHERE arxiv_id = $%d`, set, len(args)),
		args...,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update paper %s", arxivID)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetPaper(ctx context.Context, arxivID string) (*model.Paper, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+paperColumns+` FROM papers WHERE arxiv_id = $1`, arxivID,
	)
	paper, err := scanPaper(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get paper %s", arxivID)
	}
	return paper, nil
}

func (s *PostgresStore) ListPapers(ctx context.Context, filter PaperFilter) ([]model.Paper, error) {
	query := `SELECT ` + paperColumns + ` FROM papers WHERE 1=1`
	var args []any

	if filter.Category != "" {
		args = append(args, filter.Category)
		query += fmt.Sprintf(` AND category = $%d`, len(args))
	}
	if filter.Processed != nil {
		args = append(args, *filter.Processed)
		query += fmt.Sprintf(` AND processed = $%d`, len(args))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(` LIMIT $%d`, len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list papers")
	}
	defer rows.Close()

	var papers []model.Paper
	for rows.Next() {
		paper, scanErr := scanPaper(rows)
		if scanErr != nil {
			return nil, eris.Wrap(scanErr, "postgres: scan paper")
		}
		papers = append(papers, *paper)
	}
	return papers, eris.Wrap(rows.Err(), "postgres: list papers rows")
}

func (s *PostgresStore) IncrementLikes(ctx context.Context, arxivID string) (int, error) {
	return s.incrementCounter(ctx, "likes_count", arxivID)
}

func (s *PostgresStore) IncrementViews(ctx context.Context, arxivID string) (int, error) {
	return s.incrementCounter(ctx, "views_count", arxivID)
}

func (s *PostgresStore) incrementCounter(ctx context.Context, column, arxivID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`UPDATE papers SET %s = %s + 1 WHERE arxiv_id = $1 RETURNING %s`, column, column, column),
		arxivID,
	).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: increment %s for %s", column, arxivID)
	}
	return count, nil
}

func (s *PostgresStore) CreateRun(ctx context.Context) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO pipeline_runs (id, status, started_at) VALUES ($1, $2, $3)`,
		id, string(model.RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{ID: id, Status: model.RunStatusRunning, StartedAt: now}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, stats *model.PipelineStats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stats")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE pipeline_runs SET status = $1, stats = $2, ended_at = $3 WHERE id = $4`,
		string(status), statsJSON, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- helpers ---

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func paperInsertArgs(p model.Paper) ([]any, error) {
	authors, err := marshalList([]string(p.Authors))
	if err != nil {
		return nil, err
	}
	categories, err := marshalList([]string(p.Categories))
	if err != nil {
		return nil, err
	}
	applications, err := marshalList(p.Applications)
	if err != nil {
		return nil, err
	}
	procErrors, err := marshalList(p.ProcessingErrors)
	if err != nil {
		return nil, err
	}

	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	return []any{
		p.ArxivID, p.Title, authors, p.Abstract, p.Category, p.PrimaryCategory, categories,
		p.ArxivURL, p.PDFURL, p.Published, p.Updated, p.Summary, p.WhyItMatters, applications,
		p.Processed, p.ProcessedAt, procErrors, p.LikesCount, p.ViewsCount, p.FetchedAt, createdAt,
	}, nil
}

func marshalList(list []string) ([]byte, error) {
	if list == nil {
		list = []string{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal list")
	}
	return data, nil
}

// buildPaperUpdate turns an UpdatePaper fields map into a SET clause using
// only whitelisted columns, in deterministic order. placeholder renders the
// i-th positional argument for the driver at hand.
func buildPaperUpdate(fields map[string]any, placeholder func(int) string) (string, []any, error) {
	if len(fields) == 0 {
		return "", nil, eris.New("store: update with no fields")
	}

	columns := make([]string, 0, len(fields))
	for col := range fields {
		if !paperUpdateColumns[col] {
			return "", nil, eris.Errorf("store: update of disallowed column %q", col)
		}
		columns = append(columns, col)
	}
	sort.Strings(columns)

	var set []string
	var args []any
	for _, col := range columns {
		val := fields[col]
		if list, ok := val.([]string); ok {
			data, err := marshalList(list)
			if err != nil {
				return "", nil, err
			}
			val = data
		}
		args = append(args, val)
		set = append(set, fmt.Sprintf("%s = %s", col, placeholder(len(args))))
	}
	return strings.Join(set, ", "), args, nil
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPaper(row rowScanner) (*model.Paper, error) {
	var p model.Paper
	var authors, categories, applications, procErrors []byte

	err := row.Scan(
		&p.ArxivID, &p.Title, &authors, &p.Abstract, &p.Category, &p.PrimaryCategory, &categories,
		&p.ArxivURL, &p.PDFURL, &p.Published, &p.Updated, &p.Summary, &p.WhyItMatters, &applications,
		&p.Processed, &p.ProcessedAt, &procErrors, &p.LikesCount, &p.ViewsCount, &p.FetchedAt, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalInto(authors, (*[]string)(&p.Authors)); err != nil {
		return nil, err
	}
	if err := unmarshalInto(categories, (*[]string)(&p.Categories)); err != nil {
		return nil, err
	}
	if err := unmarshalInto(applications, &p.Applications); err != nil {
		return nil, err
	}
	if err := unmarshalInto(procErrors, &p.ProcessingErrors); err != nil {
		return nil, err
	}
	return &p, nil
}

func unmarshalInto(data []byte, dest *[]string) error {
	if len(data) == 0 {
		*dest = nil
		return nil
	}
	return json.Unmarshal(data, dest)
}
