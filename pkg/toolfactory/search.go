package toolfactory

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
)

// tokenizeRE mirrors the original's re.split(r'\W+', text.lower()).
var tokenizeRE = regexp.MustCompile(`\W+`)

func tokenize(text string) []string {
	tokens := tokenizeRE.Split(strings.ToLower(text), -1)
	out := tokens[:0]
	for _, t := range tokens {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// bm25Params mirrors rank_bm25's BM25Okapi defaults.
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// searchIndex is a small pure-Go BM25Okapi-equivalent scorer over tool
// name+description, standing in for rank_bm25's BM25Okapi — there is no
// widely-used ecosystem BM25 library in the retrieval pack, so this one
// corner is hand-rolled (see DESIGN.md).
type searchIndex struct {
	names    []string
	corpus   [][]string
	docLen   []int
	avgLen   float64
	df       map[string]int
	idf      map[string]float64
	totalDoc int
}

func newSearchIndex(handles []*ToolHandle) *searchIndex {
	idx := &searchIndex{
		df: make(map[string]int),
	}
	totalLen := 0
	for _, h := range handles {
		tokens := tokenize(h.Name + " " + h.Description)
		idx.names = append(idx.names, h.Name)
		idx.corpus = append(idx.corpus, tokens)
		idx.docLen = append(idx.docLen, len(tokens))
		totalLen += len(tokens)

		seen := map[string]bool{}
		for _, tok := range tokens {
			if !seen[tok] {
				idx.df[tok]++
				seen[tok] = true
			}
		}
	}
	idx.totalDoc = len(handles)
	if idx.totalDoc > 0 {
		idx.avgLen = float64(totalLen) / float64(idx.totalDoc)
	}

	idx.idf = make(map[string]float64, len(idx.df))
	idfSum := 0.0
	var negative []string
	for term, freq := range idx.df {
		// BM25Okapi's idf formula, floored at a small epsilon like rank_bm25
		// does to avoid negative idf for very common terms.
		idf := math.Log(float64(idx.totalDoc)-float64(freq)+0.5) - math.Log(float64(freq)+0.5)
		idx.idf[term] = idf
		idfSum += idf
		if idf < 0 {
			negative = append(negative, term)
		}
	}
	if len(idx.idf) > 0 {
		// rank_bm25's epsilon: a quarter of the average idf.
		eps := 0.25 * idfSum / float64(len(idx.idf))
		for _, term := range negative {
			idx.idf[term] = eps
		}
	}
	return idx
}

func (idx *searchIndex) scores(query string) []float64 {
	queryTokens := tokenize(query)
	scores := make([]float64, idx.totalDoc)
	if idx.totalDoc == 0 {
		return scores
	}

	for docIdx, doc := range idx.corpus {
		termFreq := map[string]int{}
		for _, tok := range doc {
			termFreq[tok]++
		}

		var score float64
		dl := float64(idx.docLen[docIdx])
		for _, qt := range queryTokens {
			tf := float64(termFreq[qt])
			if tf == 0 {
				continue
			}
			idf := idx.idf[qt]
			numerator := tf * (bm25K1 + 1)
			denominator := tf + bm25K1*(1-bm25B+bm25B*dl/idx.avgLen)
			score += idf * numerator / denominator
		}
		scores[docIdx] = score
	}
	return scores
}

// SearchResult is one hit, the shape the search_tools tool returns to the
// model as JSON.
type SearchResult struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Search runs a BM25 ranking over name+description and returns the top
// `limit` hits with a positive score; mode "keyword" falls back to a
// substring match, same two modes as the original.
func (c *Catalog) Search(query string, limit int, mode string) []SearchResult {
	if len(c.handles) == 0 {
		return nil
	}
	if mode == "" {
		mode = "bm25"
	}

	if mode == "keyword" {
		return c.searchKeyword(query, limit)
	}

	scores := c.index.scores(query)
	type scored struct {
		idx   int
		score float64
	}
	ranked := make([]scored, len(scores))
	for i, s := range scores {
		ranked[i] = scored{idx: i, score: s}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	results := make([]SearchResult, 0, limit)
	for _, r := range ranked {
		if r.score <= 0 {
			break
		}
		if len(results) >= limit {
			break
		}
		h := c.handles[r.idx]
		results = append(results, SearchResult{Name: h.Name, Description: h.Description})
	}
	if len(results) == 0 {
		return c.searchKeyword(query, limit)
	}
	return results
}

// searchToolDefaultLimit matches the original search()'s limit default.
const searchToolDefaultLimit = 5

// SearchToolHandle builds the first-class search_tools tool bound to this
// catalog: the agent node binds it alongside a user's other tools so the
// model can discover tools outside its initial tool set mid-conversation.
func (c *Catalog) SearchToolHandle() *ToolHandle {
	return &ToolHandle{
		Name:        SearchToolName,
		RawName:     SearchToolName,
		Description: "Search the full set of available tools by name or description. Returns a JSON list of {name, description}.",
		Input: InputModel{
			Fields: []Param{{Name: "query", Kind: ParamString, Required: true, Description: "The search query."}},
			Schema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{"query": map[string]interface{}{"type": "string"}},
				"required":   []interface{}{"query"},
			},
		},
		Invoke: func(ctx context.Context, args map[string]interface{}) (string, error) {
			query, _ := args["query"].(string)
			results := c.Search(query, searchToolDefaultLimit, "bm25")
			data, err := json.Marshal(results)
			if err != nil {
				return "", fmt.Errorf("marshal search_tools result: %w", err)
			}
			return string(data), nil
		},
	}
}

func (c *Catalog) searchKeyword(query string, limit int) []SearchResult {
	q := strings.ToLower(query)
	results := make([]SearchResult, 0, limit)
	for _, h := range c.handles {
		if strings.Contains(strings.ToLower(h.Name), q) || strings.Contains(strings.ToLower(h.Description), q) {
			results = append(results, SearchResult{Name: h.Name, Description: h.Description})
		}
		if len(results) >= limit {
			break
		}
	}
	return results
}
