package workspace

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/rs/zerolog"
)

const (
	maxIndexedFileBytes = 512 * 1024
	maxIndexedFiles     = 20000
)

// Hit is one search result.
type Hit struct {
	Path      string   `json:"path"`
	Score     float64  `json:"score"`
	Fragments []string `json:"fragments,omitempty"`
}

type fileDoc struct {
	Path    string `json:"path"`
	Ext     string `json:"ext"`
	Content string `json:"content"`
}

// SearchIndex is an in-memory full-text index over the workspace text files.
type SearchIndex struct {
	root   string
	ignore *Ignore
	logger zerolog.Logger

	mu    sync.Mutex
	index bleve.Index
	built bool
}

// NewSearchIndex creates an empty index. Build runs on first Search.
func NewSearchIndex(root string, ignore *Ignore, logger zerolog.Logger) (*SearchIndex, error) {
	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create search index: %w", err)
	}
	return &SearchIndex{root: root, ignore: ignore, logger: logger, index: idx}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	doc := bleve.NewDocumentMapping()

	pathField := bleve.NewTextFieldMapping()
	pathField.Analyzer = keyword.Name
	pathField.Store = true
	doc.AddFieldMappingsAt("path", pathField)

	extField := bleve.NewTextFieldMapping()
	extField.Analyzer = keyword.Name
	doc.AddFieldMappingsAt("ext", extField)

	contentField := bleve.NewTextFieldMapping()
	contentField.Analyzer = standard.Name
	contentField.Store = true
	contentField.IncludeTermVectors = true
	doc.AddFieldMappingsAt("content", contentField)

	im.DefaultMapping = doc
	return im
}

// Build (re)indexes every non-ignored text file under the root.
func (s *SearchIndex) Build() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buildLocked()
}

func (s *SearchIndex) buildLocked() (int, error) {
	batch := s.index.NewBatch()
	count := 0
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(s.root, path)
		if relErr != nil || rel == "." {
			return nil
		}
		if s.ignore.Ignored(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if count >= maxIndexedFiles {
			return filepath.SkipAll
		}

		doc, ok := readDoc(path, filepath.ToSlash(rel))
		if !ok {
			return nil
		}
		if err := batch.Index(doc.Path, doc); err != nil {
			return err
		}
		count++
		if batch.Size() >= 500 {
			if err := s.index.Batch(batch); err != nil {
				return err
			}
			batch.Reset()
		}
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("failed to index workspace: %w", err)
	}
	if err := s.index.Batch(batch); err != nil {
		return count, fmt.Errorf("failed to index workspace: %w", err)
	}
	s.built = true
	s.logger.Debug().Int("files", count).Msg("search index built")
	return count, nil
}

func readDoc(abs, rel string) (fileDoc, bool) {
	info, err := os.Stat(abs)
	if err != nil || info.Size() > maxIndexedFileBytes {
		return fileDoc{}, false
	}
	data, err := os.ReadFile(abs)
	if err != nil || !isText(data) {
		return fileDoc{}, false
	}
	return fileDoc{Path: rel, Ext: filepath.Ext(rel), Content: string(data)}, true
}

func isText(data []byte) bool {
	head := data
	if len(head) > 8000 {
		head = head[:8000]
	}
	return !bytes.Contains(head, []byte{0}) && utf8.Valid(data)
}

// Update reindexes one root-relative file, removing it when it no longer
// exists or is not text. Tools that write files call this.
func (s *SearchIndex) Update(rel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.built {
		return nil
	}
	rel = filepath.ToSlash(rel)
	doc, ok := readDoc(filepath.Join(s.root, filepath.FromSlash(rel)), rel)
	if !ok || s.ignore.Ignored(rel, false) {
		return s.index.Delete(rel)
	}
	return s.index.Index(rel, doc)
}

// Search runs a match query over file contents, optionally restricted to
// files with extension ext, returning at most limit hits.
func (s *SearchIndex) Search(query, ext string, limit int) ([]Hit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.built {
		if _, err := s.buildLocked(); err != nil {
			return nil, err
		}
	}
	if limit <= 0 {
		limit = 10
	}

	mq := bleve.NewMatchQuery(query)
	mq.SetField("content")
	q := bleve.NewConjunctionQuery(mq)
	if ext != "" {
		if ext[0] != '.' {
			ext = "." + ext
		}
		eq := bleve.NewTermQuery(ext)
		eq.SetField("ext")
		q.AddQuery(eq)
	}

	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.Fields = []string{"path"}
	req.Highlight = bleve.NewHighlight()
	req.Highlight.AddField("content")

	res, err := s.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, Hit{Path: h.ID, Score: h.Score, Fragments: h.Fragments["content"]})
	}
	return hits, nil
}

// Close releases the index.
func (s *SearchIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}
