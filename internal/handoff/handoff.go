package handoff

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/brainscroll/paper-cli/internal/model"
)

// Document is the JSON handoff format between pipeline phases: a metadata
// block describing the run that produced the file, plus the papers
// themselves.
type Document struct {
	Metadata map[string]any `json:"metadata"`
	Papers   []model.Paper  `json:"papers"`
}

const timestampLayout = "20060102_150405"

// FetchedFilename returns the auto-generated name for a fetch handoff file.
func FetchedFilename(t time.Time) string {
	return "fetched_papers_" + t.Format(timestampLayout) + ".json"
}

// ProcessedFilename returns the auto-generated name for a process handoff file.
func ProcessedFilename(t time.Time) string {
	return "processed_papers_" + t.Format(timestampLayout) + ".json"
}

// Write serializes a document to path, creating parent directories as needed.
func Write(path string, doc Document) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "handoff: create dir %s", dir)
		}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return eris.Wrap(err, "handoff: marshal document")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "handoff: write %s", path)
	}

	zap.L().Info("handoff file written",
		zap.String("path", path),
		zap.Int("papers", len(doc.Papers)),
	)
	return nil
}

// WriteFetched writes papers plus fetch stats to an auto-named file in dir
// and returns the path.
func WriteFetched(dir string, papers []model.Paper, stats *model.FetchStats) (string, error) {
	path := filepath.Join(dir, FetchedFilename(time.Now()))
	doc := Document{Metadata: Metadata(stats), Papers: papers}
	if err := Write(path, doc); err != nil {
		return "", err
	}
	return path, nil
}

// WriteProcessed writes papers plus process stats to an auto-named file in
// dir and returns the path.
func WriteProcessed(dir string, papers []model.Paper, stats *model.ProcessStats) (string, error) {
	path := filepath.Join(dir, ProcessedFilename(time.Now()))
	doc := Document{Metadata: Metadata(stats), Papers: papers}
	if err := Write(path, doc); err != nil {
		return "", err
	}
	return path, nil
}

// Read loads a handoff document. String-valued author and category fields
// are normalized to lists during decoding.
func Read(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "handoff: read %s", path)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrapf(err, "handoff: parse %s", path)
	}
	return &doc, nil
}

// Metadata flattens any stats struct into the metadata map through its
// JSON form.
func Metadata(v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{}
	}
	return out
}
