package model

import (
	"encoding/json"
	"strings"
	"time"
)

// Paper is the canonical internal representation of one arXiv paper,
// spanning bibliographic metadata and LLM-generated enrichment fields.
type Paper struct {
	ArxivID         string     `json:"arxiv_id"`
	Title           string     `json:"title"`
	Authors         StringList `json:"authors"`
	Abstract        string     `json:"abstract"`
	Category        string     `json:"category"`
	PrimaryCategory string     `json:"primary_category"`
	Categories      StringList `json:"categories"`
	ArxivURL        string     `json:"arxiv_url"`
	PDFURL          string     `json:"pdf_url"`
	Published       *time.Time `json:"published,omitempty"`
	Updated         *time.Time `json:"updated,omitempty"`

	// Enrichment fields, empty until the workflow runs.
	Summary          string     `json:"summary,omitempty"`
	WhyItMatters     string     `json:"why_it_matters,omitempty"`
	Applications     []string   `json:"applications,omitempty"`
	Processed        bool       `json:"processed"`
	ProcessedAt      *time.Time `json:"processed_at,omitempty"`
	ProcessingErrors []string   `json:"processing_errors,omitempty"`

	// Engagement counters, mutated by the feed API, never by the pipeline.
	LikesCount int `json:"likes_count"`
	ViewsCount int `json:"views_count"`

	FetchedAt *time.Time `json:"fetched_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// StringList is a []string that also accepts a single delimited string when
// decoding JSON. Upstream sources serialize author and category fields as
// either a list or a ";"-separated string; the union is normalized here so
// nothing downstream has to care.
type StringList []string

// UnmarshalJSON decodes either a JSON array of strings or a single string
// split on ";" (falling back to ",") with whitespace trimmed and empty
// entries dropped.
func (s *StringList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*s = trimNonEmpty(list)
		return nil
	}

	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = SplitDelimited(raw)
	return nil
}

// SplitDelimited splits a delimited field value into a normalized StringList.
// ";" is the primary delimiter; "," is used when no semicolon is present.
func SplitDelimited(raw string) StringList {
	sep := ";"
	if !strings.Contains(raw, ";") {
		sep = ","
	}
	return trimNonEmpty(strings.Split(raw, sep))
}

func trimNonEmpty(in []string) StringList {
	out := make(StringList, 0, len(in))
	for _, v := range in {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Contains reports whether the list holds v.
func (s StringList) Contains(v string) bool {
	for _, e := range s {
		if e == v {
			return true
		}
	}
	return false
}
