package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dslipak/pdf"
)

// Page is one loadable unit of a source file: a whole text file, or a
// single page of a PDF. Metadata always carries source_file and file_type;
// PDF pages additionally carry page.
type Page struct {
	Content  string
	Metadata map[string]string
}

// LoadFile extracts the text content of a file, split into pages where the
// format has them. Supported formats: .pdf, .txt, .md.
func LoadFile(path string) ([]Page, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return loadPDF(path)
	case ".txt", ".md":
		return loadText(path)
	default:
		return nil, fmt.Errorf("unsupported file type: %s", filepath.Ext(path))
	}
}

func loadText(path string) ([]Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return []Page{{
		Content: string(data),
		Metadata: map[string]string{
			"source_file": filepath.Base(path),
			"file_type":   strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
		},
	}}, nil
}

func loadPDF(path string) ([]Page, error) {
	reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF %s: %w", filepath.Base(path), err)
	}

	var pages []Page
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single unreadable page should not sink the whole document.
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, Page{
			Content: text,
			Metadata: map[string]string{
				"source_file": filepath.Base(path),
				"file_type":   "pdf",
				"page":        strconv.Itoa(i),
			},
		})
	}
	return pages, nil
}
