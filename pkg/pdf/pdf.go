package pdf

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

type Page struct {
	Number int
	Text   string
}

// ExtractText returns the plain text of every non-empty page in the file.
func ExtractText(path string) ([]Page, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer f.Close()

	pages := make([]Page, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		p := reader.Page(i)
		if p.V.IsNull() {
			continue
		}

		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("read page %d of %s: %w", i, path, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}

		pages = append(pages, Page{Number: i, Text: text})
	}

	return pages, nil
}
