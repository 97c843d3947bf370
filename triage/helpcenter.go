package triage

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/dshills/support-triage/graph/tool"
)

// HelpCenter is a tool.Tool searching help-center articles by keyword.
//
// Input:
//   - query: the user's question (required)
//   - limit: maximum number of articles (optional, default 3)
//
// Output:
//   - articles: []Article, best match first
//   - matched: whether any article matched a keyword
//
// When nothing matches, every article is returned (up to limit) so the
// model can still decide whether the help center answers the question.
type HelpCenter struct {
	articles []Article
}

// NewHelpCenter creates a HelpCenter over articles.
func NewHelpCenter(articles []Article) *HelpCenter {
	return &HelpCenter{articles: append([]Article(nil), articles...)}
}

// Name implements tool.Tool.
func (h *HelpCenter) Name() string { return "help_center_search" }

// Call implements tool.Tool.
func (h *HelpCenter) Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query, err := tool.StringParam(input, "query")
	if err != nil {
		return nil, err
	}
	limit := 3
	if l, ok := input["limit"].(int); ok && l > 0 {
		limit = l
	}
	articles, matched := h.Search(query, limit)
	return map[string]interface{}{"articles": articles, "matched": matched}, nil
}

// Search ranks articles by how many of their keywords appear in query.
func (h *HelpCenter) Search(query string, limit int) ([]Article, bool) {
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		words[w] = true
	}

	type scored struct {
		article Article
		score   int
		index   int
	}
	var hits []scored
	for i, a := range h.articles {
		score := 0
		for _, k := range a.Keywords {
			if words[strings.ToLower(k)] {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, scored{article: a, score: score, index: i})
		}
	}

	if len(hits) == 0 {
		return truncate(h.articles, limit), false
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].index < hits[j].index
	})
	out := make([]Article, len(hits))
	for i, s := range hits {
		out[i] = s.article
	}
	return truncate(out, limit), true
}

func truncate(articles []Article, limit int) []Article {
	if limit > 0 && len(articles) > limit {
		articles = articles[:limit]
	}
	return append([]Article(nil), articles...)
}
