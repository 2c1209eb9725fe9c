package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/brainscroll/paper-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It is the default
// backing store for local runs where no Postgres URL is configured.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS papers (
	arxiv_id          TEXT PRIMARY KEY,
	title             TEXT NOT NULL,
	authors           TEXT NOT NULL DEFAULT '[]',
	abstract          TEXT NOT NULL DEFAULT '',
	category          TEXT NOT NULL DEFAULT '',
	primary_category  TEXT NOT NULL DEFAULT '',
	categories        TEXT NOT NULL DEFAULT '[]',
	arxiv_url         TEXT NOT NULL DEFAULT '',
	pdf_url           TEXT NOT NULL DEFAULT '',
	published         DATETIME,
	updated           DATETIME,
	summary           TEXT NOT NULL DEFAULT '',
	why_it_matters    TEXT NOT NULL DEFAULT '',
	applications      TEXT NOT NULL DEFAULT '[]',
	processed         INTEGER NOT NULL DEFAULT 0,
	processed_at      DATETIME,
	processing_errors TEXT NOT NULL DEFAULT '[]',
	likes_count       INTEGER NOT NULL DEFAULT 0,
	views_count       INTEGER NOT NULL DEFAULT 0,
	fetched_at        DATETIME,
	created_at        DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_papers_created_at ON papers(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_papers_category ON papers(category);
CREATE INDEX IF NOT EXISTS idx_papers_processed_at ON papers(processed_at);
CREATE INDEX IF NOT EXISTS idx_papers_likes_count ON papers(likes_count DESC);
CREATE INDEX IF NOT EXISTS idx_papers_views_count ON papers(views_count DESC);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL DEFAULT 'running',
	stats      TEXT,
	started_at DATETIME NOT NULL DEFAULT (datetime('now')),
	ended_at   DATETIME
);

CREATE INDEX IF NOT EXISTS idx_pipeline_runs_started_at ON pipeline_runs(started_at DESC);
`

const sqliteInsertPaper = `INSERT INTO papers (` + paperColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ExistsPaper(ctx context.Context, arxivID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM papers WHERE arxiv_id = ?`, arxivID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: exists %s", arxivID)
	}
	return true, nil
}

func (s *SQLiteStore) ExistingIDs(ctx context.Context, arxivIDs []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	if len(arxivIDs) == 0 {
		return existing, nil
	}

	placeholders := make([]string, len(arxivIDs))
	args := make([]any, len(arxivIDs))
	for i, id := range arxivIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT arxiv_id FROM papers WHERE arxiv_id IN (%s)`, strings.Join(placeholders, ", ")),
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: existing ids")
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan existing id")
		}
		existing[id] = struct{}{}
	}
	return existing, eris.Wrap(rows.Err(), "sqlite: existing ids rows")
}

func (s *SQLiteStore) InsertPaper(ctx context.Context, paper model.Paper) error {
	args, err := paperInsertArgs(paper)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, sqliteInsertPaper, args...); err != nil {
		if isSQLiteUniqueViolation(err) {
			return ErrDuplicatePaper
		}
		return eris.Wrapf(err, "sqlite: insert paper %s", paper.ArxivID)
	}
	return nil
}

func (s *SQLiteStore) BulkInsertPapers(ctx context.Context, papers []model.Paper) (int, int, error) {
	if len(papers) == 0 {
		return 0, 0, nil
	}

	// Rows run individually rather than in one transaction so that a
	// failure part-way leaves the earlier rows inserted; a retry of the
	// batch then reports them as duplicates.
	inserted, duplicates := 0, 0
	for _, paper := range papers {
		args, argErr := paperInsertArgs(paper)
		if argErr != nil {
			return inserted, duplicates, argErr
		}
		res, execErr := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO papers (`+paperColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			args...,
		)
		if execErr != nil {
			return inserted, duplicates, eris.Wrap(execErr, "sqlite: bulk insert")
		}
		n, raErr := res.RowsAffected()
		if raErr != nil {
			return inserted, duplicates, eris.Wrap(raErr, "sqlite: bulk insert rows affected")
		}
		if n > 0 {
			inserted++
		} else {
			duplicates++
		}
	}
	return inserted, duplicates, nil
}

func (s *SQLiteStore) UpdatePaper(ctx context.Context, arxivID string, fields map[string]any) error {
	set, args, err := buildPaperUpdate(fields, func(int) string { return "?" })
	if err != nil {
		return err
	}
	args = append(args, arxivID)

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE papers SET %s WHERE arxiv_id = ?`, set),
		args...,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update paper %s", arxivID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) GetPaper(ctx context.Context, arxivID string) (*model.Paper, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+paperColumns+` FROM papers WHERE arxiv_id = ?`, arxivID,
	)
	paper, err := scanSQLitePaper(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get paper %s", arxivID)
	}
	return paper, nil
}

func (s *SQLiteStore) ListPapers(ctx context.Context, filter PaperFilter) ([]model.Paper, error) {
	query := `SELECT ` + paperColumns + ` FROM papers WHERE 1=1`
	var args []any

	if filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, filter.Category)
	}
	if filter.Processed != nil {
		query += ` AND processed = ?`
		args = append(args, *filter.Processed)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list papers")
	}
	defer rows.Close()

	var papers []model.Paper
	for rows.Next() {
		paper, scanErr := scanSQLitePaper(rows)
		if scanErr != nil {
			return nil, eris.Wrap(scanErr, "sqlite: scan paper")
		}
		papers = append(papers, *paper)
	}
	return papers, eris.Wrap(rows.Err(), "sqlite: list papers iterate")
}

func (s *SQLiteStore) IncrementLikes(ctx context.Context, arxivID string) (int, error) {
	return s.incrementCounter(ctx, "likes_count", arxivID)
}

func (s *SQLiteStore) IncrementViews(ctx context.Context, arxivID string) (int, error) {
	return s.incrementCounter(ctx, "views_count", arxivID)
}

func (s *SQLiteStore) incrementCounter(ctx context.Context, column, arxivID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`UPDATE papers SET %s = %s + 1 WHERE arxiv_id = ? RETURNING %s`, column, column, column),
		arxivID,
	).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: increment %s for %s", column, arxivID)
	}
	return count, nil
}

func (s *SQLiteStore) CreateRun(ctx context.Context) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pipeline_runs (id, status, started_at) VALUES (?, ?, ?)`,
		id, string(model.RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{ID: id, Status: model.RunStatusRunning, StartedAt: now}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, stats *model.PipelineStats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stats")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE pipeline_runs SET status = ?, stats = ?, ended_at = ? WHERE id = ?`,
		string(status), string(statsJSON), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isSQLiteUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func scanSQLitePaper(row rowScanner) (*model.Paper, error) {
	var p model.Paper
	var authors, categories, applications, procErrors string
	var published, updated, processedAt, fetchedAt sql.NullTime

	err := row.Scan(
		&p.ArxivID, &p.Title, &authors, &p.Abstract, &p.Category, &p.PrimaryCategory, &categories,
		&p.ArxivURL, &p.PDFURL, &published, &updated, &p.Summary, &p.WhyItMatters, &applications,
		&p.Processed, &processedAt, &procErrors, &p.LikesCount, &p.ViewsCount, &fetchedAt, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if published.Valid {
		t := published.Time
		p.Published = &t
	}
	if updated.Valid {
		t := updated.Time
		p.Updated = &t
	}
	if processedAt.Valid {
		t := processedAt.Time
		p.ProcessedAt = &t
	}
	if fetchedAt.Valid {
		t := fetchedAt.Time
		p.FetchedAt = &t
	}

	if err := unmarshalInto([]byte(authors), (*[]string)(&p.Authors)); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal authors")
	}
	if err := unmarshalInto([]byte(categories), (*[]string)(&p.Categories)); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal categories")
	}
	if err := unmarshalInto([]byte(applications), &p.Applications); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal applications")
	}
	if err := unmarshalInto([]byte(procErrors), &p.ProcessingErrors); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal processing errors")
	}
	return &p, nil
}
