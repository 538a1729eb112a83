// Package knowledge supplies background snippets that ground the system
// prompt: chain facts, service conventions, tool usage hints.
package knowledge

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Snippet is one piece of background knowledge.
type Snippet struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags,omitempty"`
}

// Provider returns snippets relevant to a query.
type Provider interface {
	Search(query string, max int) []Snippet
}

// Static serves snippets from a JSON file loaded at startup. Relevance is
// keyword overlap between the query and a snippet's title and tags.
type Static struct {
	snippets []Snippet
}

// LoadStatic reads a JSON snippet file.
func LoadStatic(path string) (*Static, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read knowledge file: %w", err)
	}
	var snippets []Snippet
	if err := json.Unmarshal(content, &snippets); err != nil {
		return nil, fmt.Errorf("parse knowledge file: %w", err)
	}
	return NewStatic(snippets), nil
}

// NewStatic wraps an in-memory snippet list.
func NewStatic(snippets []Snippet) *Static {
	return &Static{snippets: snippets}
}

func (s *Static) Search(query string, max int) []Snippet {
	if max <= 0 {
		max = 3
	}
	words := tokenize(query)
	type scored struct {
		snippet Snippet
		score   int
		order   int
	}
	var matches []scored
	for i, snippet := range s.snippets {
		score := 0
		haystack := tokenize(snippet.Title)
		for _, tag := range snippet.Tags {
			haystack[strings.ToLower(tag)] = true
		}
		for word := range words {
			if haystack[word] {
				score++
			}
		}
		if score > 0 {
			matches = append(matches, scored{snippet: snippet, score: score, order: i})
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].order < matches[j].order
	})
	if len(matches) > max {
		matches = matches[:max]
	}
	out := make([]Snippet, len(matches))
	for i, m := range matches {
		out[i] = m.snippet
	}
	return out
}

func tokenize(text string) map[string]bool {
	out := make(map[string]bool)
	for _, word := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		if len(word) > 2 {
			out[word] = true
		}
	}
	return out
}
