// Package export renders tabular datasets into downloadable documents.
package export

import "fmt"

// Dataset defines tabular export content.
type Dataset struct {
	Title   string
	Headers []string
	Rows    []map[string]string
}

// Renderer turns a dataset into file bytes of one format.
type Renderer interface {
	Render(data Dataset) ([]byte, error)
	ContentType() string
	Extension() string
}

// Renderers maps format names to renderers.
type Renderers map[string]Renderer

// DefaultRenderers returns the csv, pdf and xlsx renderers.
func DefaultRenderers() Renderers {
	return Renderers{
		"csv":  NewCSVExporter(),
		"pdf":  NewPDFExporter(),
		"xlsx": NewXLSXExporter(),
	}
}

// For returns the renderer registered for format.
func (r Renderers) For(format string) (Renderer, error) {
	renderer, ok := r[format]
	if !ok {
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
	return renderer, nil
}

func record(data Dataset, row map[string]string) []string {
	out := make([]string, len(data.Headers))
	for i, header := range data.Headers {
		out[i] = row[header]
	}
	return out
}
