package knowledge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"MinoriAI/pkg/pdf"
)

// PDFDirectoryLoader reads every *.pdf directly inside a directory, one
// Document per page.
type PDFDirectoryLoader struct{}

func (PDFDirectoryLoader) Load(ctx context.Context, dir string) ([]Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read corpus dir %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var docs []Document
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pages, err := pdf.ExtractText(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		for _, p := range pages {
			docs = append(docs, Document{Source: name, Page: p.Number, Text: p.Text})
		}
	}

	return docs, nil
}
