// Package docs maintains the searchable help-center corpus: product
// documentation plus the known-issue register. Documents are markdown
// files on disk, indexed into Bleve for full-text search and watched
// for edits so the index stays current without restarts.
package docs

import "time"

// Kind distinguishes ordinary documentation from known-issue entries.
type Kind string

const (
	KindArticle    Kind = "article"
	KindKnownIssue Kind = "known_issue"
)

// knownIssueDir is the subdirectory of the docs source whose files are
// indexed as known issues rather than articles.
const knownIssueDir = "known-issues"

// Document is one indexed help-center entry.
type Document struct {
	ID         string    `json:"id"`
	Path       string    `json:"path"`
	Title      string    `json:"title"`
	Kind       Kind      `json:"kind"`
	Content    string    `json:"content"`
	Tags       []string  `json:"tags,omitempty"`
	ModifiedAt time.Time `json:"modified_at"`
}

// SearchResult is a single hit with a highlighted snippet.
type SearchResult struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Kind    Kind    `json:"kind"`
	Path    string  `json:"path"`
	Snippet string  `json:"snippet,omitempty"`
	Score   float64 `json:"score"`
}
