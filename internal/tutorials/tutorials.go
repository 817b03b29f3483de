// Package tutorials loads the repair tutorial catalog and seeds it into
// the retrieval backends.
//
// The catalog is a YAML file maintained outside this repo; ingestion of
// PDFs, manuals and videos into that file is an external concern.
package tutorials

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/emberfix/repaird/internal/keywordindex"
	"github.com/emberfix/repaird/internal/vectorstore"
)

// Tutorial is one catalog entry.
type Tutorial struct {
	ID       string   `yaml:"id"`
	Title    string   `yaml:"title"`
	Summary  string   `yaml:"summary"`
	Category string   `yaml:"category"`
	Brand    string   `yaml:"brand,omitempty"`
	Keywords []string `yaml:"keywords"`
}

type catalogFile struct {
	Tutorials []Tutorial `yaml:"tutorials"`
}

// Load parses a tutorial catalog file.
func Load(path string) ([]Tutorial, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tutorial catalog %s: %w", path, err)
	}

	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse tutorial catalog %s: %w", path, err)
	}

	seen := make(map[string]struct{}, len(f.Tutorials))
	for _, t := range f.Tutorials {
		if t.ID == "" {
			return nil, fmt.Errorf("tutorial catalog %s: entry missing ID", path)
		}
		if t.Category == "" {
			return nil, fmt.Errorf("tutorial catalog %s: tutorial %q missing category", path, t.ID)
		}
		if _, dup := seen[t.ID]; dup {
			return nil, fmt.Errorf("tutorial catalog %s: duplicate tutorial ID %q", path, t.ID)
		}
		seen[t.ID] = struct{}{}
	}
	return f.Tutorials, nil
}

// content builds the text that gets embedded for dense retrieval.
func (t *Tutorial) content() string {
	parts := make([]string, 0, 3)
	if t.Title != "" {
		parts = append(parts, t.Title)
	}
	if t.Summary != "" {
		parts = append(parts, t.Summary)
	}
	if len(t.Keywords) > 0 {
		parts = append(parts, strings.Join(t.Keywords, " "))
	}
	return strings.Join(parts, "\n")
}

// metadata builds the filterable attribute map shared by both stages.
func (t *Tutorial) metadata() map[string]string {
	md := map[string]string{"category": t.Category}
	if t.Brand != "" {
		md["brand"] = t.Brand
	}
	return md
}

// Seed indexes the catalog into the dense store and the keyword index.
// Both stages must see the same tutorial set or hybrid scores skew.
func Seed(ctx context.Context, ts []Tutorial, dense vectorstore.Store, sparse *keywordindex.Index) error {
	if len(ts) == 0 {
		return nil
	}

	docs := make([]vectorstore.Document, len(ts))
	entries := make([]keywordindex.Entry, len(ts))
	for i, t := range ts {
		docs[i] = vectorstore.Document{
			ID:       t.ID,
			Content:  t.content(),
			Metadata: t.metadata(),
		}
		entries[i] = keywordindex.Entry{
			ID:       t.ID,
			Keywords: t.Keywords,
			Metadata: t.metadata(),
		}
	}

	if _, err := dense.AddDocuments(ctx, docs); err != nil {
		return fmt.Errorf("indexing tutorials: %w", err)
	}
	sparse.Add(entries...)
	return nil
}
