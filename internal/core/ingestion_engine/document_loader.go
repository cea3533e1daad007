package ingestion_engine

import (
	"context"
	"fmt"
	"io"
	"os"

	"code.sajari.com/docconv"
	"github.com/markdave123-py/docrag/internal/core"
	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"
)

var _ core.DocumentLoader = (*FileLoader)(nil)

// FileLoader reads text and PDF files into segments using the langchaingo
// loaders. PDFs the page parser cannot read are retried with docconv, which
// yields a single segment for the whole document.
type FileLoader struct {
	logger *zap.Logger
}

func NewFileLoader(logger *zap.Logger) *FileLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileLoader{logger: logger}
}

// Load extracts segments from path. Unsupported types are rejected before the
// file is opened.
func (l *FileLoader) Load(ctx context.Context, path string, fileType core.FileType) ([]core.Segment, error) {
	ft, err := core.ToFileType(string(fileType))
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	switch ft {
	case core.FileTypeTXT:
		docs, err := documentloaders.NewText(f).Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("load text: %w", err)
		}
		return toSegments(docs), nil

	default:
		return l.loadPDF(ctx, f)
	}
}

func (l *FileLoader) loadPDF(ctx context.Context, f *os.File) ([]core.Segment, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat pdf: %w", err)
	}

	docs, err := documentloaders.NewPDF(f, info.Size()).Load(ctx)
	if err == nil {
		return toSegments(docs), nil
	}

	l.logger.Warn("pdf page parser failed, falling back to docconv",
		zap.String("path", f.Name()), zap.Error(err))

	if _, serr := f.Seek(0, io.SeekStart); serr != nil {
		return nil, fmt.Errorf("load pdf: %w", err)
	}
	res, cerr := docconv.Convert(f, core.FileTypePDF.ContentType(), false)
	if cerr != nil {
		return nil, fmt.Errorf("load pdf: %w (docconv: %v)", err, cerr)
	}
	return []core.Segment{{
		Index:    0,
		Text:     res.Body,
		Metadata: map[string]any{"extractor": "docconv"},
	}}, nil
}

func toSegments(docs []schema.Document) []core.Segment {
	segs := make([]core.Segment, 0, len(docs))
	for i, d := range docs {
		md := d.Metadata
		if md == nil {
			md = map[string]any{}
		}
		segs = append(segs, core.Segment{Index: i, Text: d.PageContent, Metadata: md})
	}
	return segs
}
