package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringList_UnmarshalArray(t *testing.T) {
	var s StringList
	require.NoError(t, json.Unmarshal([]byte(`["a", " b ", "", "c"]`), &s))
	assert.Equal(t, StringList{"a", "b", "c"}, s)
}

func TestStringList_UnmarshalSemicolonString(t *testing.T) {
	var s StringList
	require.NoError(t, json.Unmarshal([]byte(`"Ada Lovelace; Alan Turing;  "`), &s))
	assert.Equal(t, StringList{"Ada Lovelace", "Alan Turing"}, s)
}

func TestStringList_UnmarshalCommaString(t *testing.T) {
	var s StringList
	require.NoError(t, json.Unmarshal([]byte(`"cs.AI, cs.LG"`), &s))
	assert.Equal(t, StringList{"cs.AI", "cs.LG"}, s)
}

func TestStringList_SemicolonTakesPrecedence(t *testing.T) {
	// A value with both delimiters splits on semicolons only, so names
	// written "Last, First" stay intact.
	var s StringList
	require.NoError(t, json.Unmarshal([]byte(`"Lovelace, Ada; Turing, Alan"`), &s))
	assert.Equal(t, StringList{"Lovelace, Ada", "Turing, Alan"}, s)
}

func TestStringList_UnmarshalInvalid(t *testing.T) {
	var s StringList
	assert.Error(t, json.Unmarshal([]byte(`42`), &s))
}

func TestSplitDelimited_Empty(t *testing.T) {
	assert.Empty(t, SplitDelimited(""))
	assert.Empty(t, SplitDelimited(" ; ; "))
}

func TestStringList_Contains(t *testing.T) {
	s := StringList{"cs.AI", "cs.LG"}
	assert.True(t, s.Contains("cs.AI"))
	assert.False(t, s.Contains("cs.CV"))
}

func TestPaper_JSONRoundtrip(t *testing.T) {
	p := Paper{
		ArxivID:      "2301.07041v1",
		Title:        "A Survey",
		Authors:      StringList{"Ada Lovelace"},
		Categories:   StringList{"cs.AI"},
		Applications: []string{"search"},
		Processed:    true,
	}

	data, err := json.Marshal(p)
	require.NoError(t, err)

	var got Paper
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, p.ArxivID, got.ArxivID)
	assert.Equal(t, p.Authors, got.Authors)
	assert.Equal(t, p.Applications, got.Applications)
	assert.True(t, got.Processed)
}

func TestInsertResult_Total(t *testing.T) {
	r := InsertResult{Inserted: 3, Duplicates: 2, Errors: 1}
	assert.Equal(t, 6, r.Total())
}
