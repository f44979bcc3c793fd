package lawyer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
)

var (
	ErrNotPDF      = errors.New("lawyer: file is not a valid PDF")
	ErrNoFileName  = errors.New("lawyer: file name is required")
	ErrEmptyUpload = errors.New("lawyer: uploaded file is empty")
)

const (
	MetadataSource     = "source"
	MetadataPage       = "page"
	MetadataStartIndex = "start_index"
)

// UploadPDF saves the content of r into dir under the base name of name, creating dir if
// required. The file is written to a temporary name and only renamed into place once it has
// been checked to be a PDF with at least one page.
func UploadPDF(dir, name string, r io.Reader) (path string, pages int, err error) {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" || name == "" {
		return "", 0, ErrNoFileName
	}
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		return "", 0, ErrNotPDF
	}
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("lawyer: failed to create upload directory: %w", err)
	}
	f, err := os.CreateTemp(dir, ".upload-*.pdf")
	if err != nil {
		return "", 0, fmt.Errorf("lawyer: failed to create temporary file: %w", err)
	}
	defer func() {
		f.Close()
		if err != nil {
			os.Remove(f.Name())
		}
	}()
	n, err := io.Copy(f, r)
	if err != nil {
		return "", 0, fmt.Errorf("lawyer: failed to write upload: %w", err)
	}
	if n == 0 {
		return "", 0, ErrEmptyUpload
	}
	if _, err = f.Seek(0, io.SeekStart); err != nil {
		return "", 0, fmt.Errorf("lawyer: failed to rewind upload: %w", err)
	}
	pages, err = api.PageCount(f, nil)
	if err != nil || pages == 0 {
		return "", 0, errors.Join(ErrNotPDF, err)
	}
	if err = f.Close(); err != nil {
		return "", 0, fmt.Errorf("lawyer: failed to close upload: %w", err)
	}
	path = filepath.Join(dir, name)
	if err = os.Rename(f.Name(), path); err != nil {
		return "", 0, fmt.Errorf("lawyer: failed to move upload into place: %w", err)
	}
	return path, pages, nil
}

// LoadPDF returns one document per page. Each carries the page number and the source path.
func LoadPDF(ctx context.Context, path string) (docs []schema.Document, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("lawyer: failed to open PDF: %w", err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("lawyer: failed to stat PDF: %w", err)
	}
	docs, err = documentloaders.NewPDF(f, fi.Size()).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("lawyer: failed to load PDF: %w", err)
	}
	for i := range docs {
		if docs[i].Metadata == nil {
			docs[i].Metadata = map[string]any{}
		}
		docs[i].Metadata[MetadataSource] = path
	}
	return docs, nil
}
