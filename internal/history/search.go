package history

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
)

// searchIndex is the full-text side of the store.
type searchIndex struct {
	index bleve.Index
	path  string
}

// openSearchIndex opens the index at path, creating it when missing and
// recreating it when it cannot be opened.
func openSearchIndex(path string) (*searchIndex, error) {
	index, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		index, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create search index: %w", err)
		}
	} else if err != nil {
		// bleve releases what it opened before returning the error.
		log.Printf("WARNING: history search index unusable (%v), recreating", err)
		if err := os.RemoveAll(path); err != nil {
			return nil, fmt.Errorf("failed to remove broken search index: %w", err)
		}
		index, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to recreate search index: %w", err)
		}
	}

	return &searchIndex{index: index, path: path}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	runMapping := bleve.NewDocumentMapping()

	for _, field := range []string{"language", "outcome"} {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = keyword.Name
		fm.Store = false
		fm.Index = true
		runMapping.AddFieldMappingsAt(field, fm)
	}

	for _, field := range []string{"code", "report"} {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = standard.Name
		fm.Store = false
		fm.Index = true
		runMapping.AddFieldMappingsAt(field, fm)
	}

	indexMapping.DefaultMapping = runMapping
	indexMapping.DefaultAnalyzer = standard.Name
	return indexMapping
}

func (si *searchIndex) add(run Run) error {
	doc := map[string]interface{}{
		"language": run.Language,
		"outcome":  run.Outcome,
		"code":     run.Code,
		"report":   run.Report,
	}
	return si.index.Index(run.ID, doc)
}

// search returns matching run ids ordered by score.
func (si *searchIndex) search(query string, k int) ([]string, error) {
	req := bleve.NewSearchRequest(bleve.NewQueryStringQuery(query))
	req.Size = k

	res, err := si.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("history search failed: %w", err)
	}

	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

func (si *searchIndex) close() error {
	return si.index.Close()
}
