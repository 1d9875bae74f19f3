package toolfactory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func handlesFor(names ...string) []*ToolHandle {
	handles := make([]*ToolHandle, len(names))
	for i, n := range names {
		handles[i] = &ToolHandle{Name: n, Description: "a tool named " + n}
	}
	return handles
}

func TestCatalog_Search_RanksMoreRelevantHigher(t *testing.T) {
	handles := []*ToolHandle{
		{Name: "figma_get_file", Description: "Fetch a Figma file's full document tree."},
		{Name: "notion_search_pages", Description: "Search Notion pages by title."},
		{Name: "fs_read_file", Description: "Read a file from local disk."},
	}
	catalog := &Catalog{handles: handles, index: newSearchIndex(handles)}

	results := catalog.Search("figma file", 5, "bm25")
	require.NotEmpty(t, results)
	assert.Equal(t, "figma_get_file", results[0].Name)
}

func TestCatalog_Search_KeywordMode(t *testing.T) {
	handles := handlesFor("alpha", "beta")
	catalog := &Catalog{handles: handles, index: newSearchIndex(handles)}

	results := catalog.Search("alpha", 5, "keyword")
	require.Len(t, results, 1)
	assert.Equal(t, "alpha", results[0].Name)
}

func TestCatalog_Search_EmptyCatalog(t *testing.T) {
	catalog := &Catalog{index: newSearchIndex(nil)}
	assert.Empty(t, catalog.Search("anything", 5, "bm25"))
}

func TestCatalog_Search_FallsBackToKeywordWhenBM25ScoresAllZero(t *testing.T) {
	handles := handlesFor("alpha", "beta")
	catalog := &Catalog{handles: handles, index: newSearchIndex(handles)}

	results := catalog.Search("alpha", 5, "bm25")
	require.NotEmpty(t, results)
	assert.Equal(t, "alpha", results[0].Name)
}

func TestCatalog_SearchToolHandle_InvokeReturnsJSON(t *testing.T) {
	handles := handlesFor("alpha", "beta")
	catalog := &Catalog{handles: handles, index: newSearchIndex(handles), byName: map[string]*ToolHandle{}}

	handle := catalog.SearchToolHandle()
	assert.Equal(t, SearchToolName, handle.Name)

	out, err := handle.Invoke(context.Background(), map[string]interface{}{"query": "alpha"})
	require.NoError(t, err)
	assert.Contains(t, out, "alpha")
}
