package docs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
)

const (
	defaultSearchLimit = 5
	maxSearchLimit     = 25
)

var (
	// ErrIndexClosed indicates an operation was attempted on a closed index.
	ErrIndexClosed = errors.New("docs: index is closed")

	// ErrEmptyQuery indicates a search with no query text.
	ErrEmptyQuery = errors.New("docs: query cannot be empty")
)

// IndexConfig holds index configuration.
type IndexConfig struct {
	// Path is where the Bleve index lives on disk. Empty means an
	// in-memory index (tests).
	Path string

	// SourceDir is the root of the markdown corpus.
	SourceDir string
}

// Index manages the Bleve index lifecycle and provides thread-safe
// search over the help-center corpus.
type Index struct {
	config IndexConfig

	mu     sync.RWMutex
	index  bleve.Index
	closed bool
}

// NewIndex creates an Index for the given configuration. The index is
// not opened until Open is called.
func NewIndex(config IndexConfig) *Index {
	return &Index{config: config}
}

// Open opens or creates the Bleve index at the configured path.
func (ix *Index) Open() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.index != nil {
		return errors.New("docs: index is already open")
	}

	if ix.config.Path == "" {
		index, err := bleve.NewMemOnly(buildIndexMapping())
		if err != nil {
			return fmt.Errorf("create in-memory index: %w", err)
		}
		ix.index = index
		ix.closed = false
		return nil
	}

	index, err := bleve.Open(ix.config.Path)
	if err == nil {
		ix.index = index
		ix.closed = false
		return nil
	}

	index, err = bleve.New(ix.config.Path, buildIndexMapping())
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	ix.index = index
	ix.closed = false
	return nil
}

func buildIndexMapping() mapping.IndexMapping {
	titleField := bleve.NewTextFieldMapping()
	titleField.Analyzer = standard.Name
	titleField.Store = true

	contentField := bleve.NewTextFieldMapping()
	contentField.Analyzer = standard.Name
	contentField.Store = true

	kindField := bleve.NewTextFieldMapping()
	kindField.Analyzer = keyword.Name
	kindField.Store = true

	tagsField := bleve.NewTextFieldMapping()
	tagsField.Analyzer = keyword.Name
	tagsField.Store = true

	pathField := bleve.NewTextFieldMapping()
	pathField.Analyzer = keyword.Name
	pathField.Store = true
	pathField.IncludeInAll = false

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("title", titleField)
	docMapping.AddFieldMappingsAt("content", contentField)
	docMapping.AddFieldMappingsAt("kind", kindField)
	docMapping.AddFieldMappingsAt("tags", tagsField)
	docMapping.AddFieldMappingsAt("path", pathField)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = standard.Name
	return indexMapping
}

// IndexDir walks the source directory and (re)indexes every markdown
// file found. Files under the known-issues subdirectory are indexed as
// known issues.
func (ix *Index) IndexDir(ctx context.Context) (int, error) {
	root := ix.config.SourceDir
	if root == "" {
		return 0, errors.New("docs: source dir not configured")
	}

	count := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !strings.HasSuffix(path, ".md") {
			return nil
		}
		if err := ix.IndexFile(path); err != nil {
			return fmt.Errorf("index %s: %w", path, err)
		}
		count++
		return nil
	})
	if err != nil {
		return count, err
	}
	return count, nil
}

// IndexFile parses and indexes a single markdown file.
func (ix *Index) IndexFile(path string) error {
	doc, err := ix.loadDocument(path)
	if err != nil {
		return err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed || ix.index == nil {
		return ErrIndexClosed
	}
	return ix.index.Index(doc.ID, doc)
}

// RemoveFile drops a document from the index by source path.
func (ix *Index) RemoveFile(path string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed || ix.index == nil {
		return ErrIndexClosed
	}
	return ix.index.Delete(docID(ix.config.SourceDir, path))
}

func (ix *Index) loadDocument(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}

	kind := KindArticle
	rel, relErr := filepath.Rel(ix.config.SourceDir, path)
	if relErr == nil && strings.HasPrefix(rel, knownIssueDir+string(filepath.Separator)) {
		kind = KindKnownIssue
	}

	title, tags, body := parseMarkdown(string(raw))
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), ".md")
	}

	return &Document{
		ID:         docID(ix.config.SourceDir, path),
		Path:       path,
		Title:      title,
		Kind:       kind,
		Content:    body,
		Tags:       tags,
		ModifiedAt: info.ModTime().UTC(),
	}, nil
}

func docID(root, path string) string {
	if rel, err := filepath.Rel(root, path); err == nil {
		return filepath.ToSlash(rel)
	}
	return filepath.ToSlash(path)
}

// parseMarkdown extracts the first heading as the title and a leading
// "Tags:" line as tags. The remainder is the searchable body.
func parseMarkdown(raw string) (title string, tags []string, body string) {
	lines := strings.Split(raw, "\n")
	bodyLines := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case title == "" && strings.HasPrefix(trimmed, "# "):
			title = strings.TrimSpace(strings.TrimPrefix(trimmed, "# "))
		case tags == nil && strings.HasPrefix(strings.ToLower(trimmed), "tags:"):
			for _, tag := range strings.Split(trimmed[len("tags:"):], ",") {
				if t := strings.TrimSpace(strings.ToLower(tag)); t != "" {
					tags = append(tags, t)
				}
			}
		default:
			bodyLines = append(bodyLines, line)
		}
	}
	return title, tags, strings.TrimSpace(strings.Join(bodyLines, "\n"))
}

// Search runs a full-text query over the corpus, optionally filtered to
// a single document kind.
func (ix *Index) Search(ctx context.Context, text string, kind Kind, limit int) ([]SearchResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.closed || ix.index == nil {
		return nil, ErrIndexClosed
	}

	req := bleve.NewSearchRequestOptions(buildSearchQuery(text, kind), limit, 0, false)
	req.Fields = []string{"title", "kind", "path"}
	req.Highlight = bleve.NewHighlight()
	req.Highlight.AddField("content")

	res, err := ix.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	results := make([]SearchResult, 0, len(res.Hits))
	for _, hit := range res.Hits {
		r := SearchResult{ID: hit.ID, Score: hit.Score}
		if title, ok := hit.Fields["title"].(string); ok {
			r.Title = title
		}
		if k, ok := hit.Fields["kind"].(string); ok {
			r.Kind = Kind(k)
		}
		if p, ok := hit.Fields["path"].(string); ok {
			r.Path = p
		}
		if fragments, ok := hit.Fragments["content"]; ok && len(fragments) > 0 {
			r.Snippet = fragments[0]
		}
		results = append(results, r)
	}
	return results, nil
}

func buildSearchQuery(text string, kind Kind) query.Query {
	match := bleve.NewMatchQuery(text)
	if kind == "" {
		return match
	}

	kindQuery := bleve.NewTermQuery(string(kind))
	kindQuery.SetField("kind")

	boolQuery := bleve.NewBooleanQuery()
	boolQuery.AddMust(match)
	boolQuery.AddMust(kindQuery)
	return boolQuery
}

// KnownIssues returns known-issue entries matching the topic.
func (ix *Index) KnownIssues(ctx context.Context, topic string, limit int) ([]SearchResult, error) {
	return ix.Search(ctx, topic, KindKnownIssue, limit)
}

// DocCount reports the number of indexed documents.
func (ix *Index) DocCount() (uint64, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.closed || ix.index == nil {
		return 0, ErrIndexClosed
	}
	return ix.index.DocCount()
}

// Close flushes and closes the Bleve index. Close on an already closed
// index is a no-op.
func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.closed || ix.index == nil {
		return nil
	}
	ix.closed = true
	err := ix.index.Close()
	ix.index = nil
	return err
}
