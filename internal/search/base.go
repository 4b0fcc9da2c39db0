package search

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/lazypower/palace/internal/config"
)

// Match is one candidate from the base search collaborator.
type Match struct {
	Path      string  `json:"path"`
	LineStart int     `json:"line_start"`
	LineEnd   int     `json:"line_end"`
	Score     float64 `json:"score"`
	Snippet   string  `json:"snippet,omitempty"`
}

// BaseSearcher is the external hybrid search collaborator. The pipeline
// only re-ranks and organizes what it returns.
type BaseSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]Match, error)
}

// KeywordSearcher is a standalone fallback BaseSearcher that scans the
// corpus directly: term-frequency scoring over the tracked glob. It
// exists so the binary works without an external search service wired
// in; it is not the hybrid search the pipeline is designed around.
type KeywordSearcher struct {
	corpus config.CorpusConfig
}

// NewKeywordSearcher creates the fallback corpus scanner.
func NewKeywordSearcher(corpus config.CorpusConfig) *KeywordSearcher {
	return &KeywordSearcher{corpus: corpus}
}

// Search scores every corpus file by query-term frequency and returns
// the best-matching files as whole-file candidates.
func (k *KeywordSearcher) Search(ctx context.Context, query string, limit int) ([]Match, error) {
	if k.corpus.Root == "" {
		return nil, nil
	}
	terms := queryTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}

	files, err := doublestar.Glob(os.DirFS(k.corpus.Root), k.corpus.Pattern, doublestar.WithFailOnIOErrors())
	if err != nil {
		return nil, err
	}

	var matches []Match
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(k.corpus.Root, rel))
		if err != nil {
			continue
		}
		content := strings.ToLower(string(data))

		hits := 0
		snippet := ""
		for _, t := range terms {
			n := strings.Count(content, t)
			if n == 0 {
				continue
			}
			hits += n
			if snippet == "" {
				snippet = snippetAround(string(data), t)
			}
		}
		if hits == 0 {
			continue
		}
		matches = append(matches, Match{
			Path:    rel,
			Score:   float64(hits) / float64(len(terms)),
			Snippet: snippet,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func queryTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if len(w) >= 2 {
			terms = append(terms, w)
		}
	}
	return terms
}

// snippetAround returns the first line containing the term.
func snippetAround(content, term string) string {
	for _, line := range strings.Split(content, "\n") {
		if strings.Contains(strings.ToLower(line), term) {
			return strings.TrimSpace(line)
		}
	}
	return ""
}
