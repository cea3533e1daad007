package core

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// FileType is the lower-cased extension of an uploaded document.
type FileType string

const (
	FileTypePDF FileType = "pdf"
	FileTypeTXT FileType = "txt"
)

// ContentType returns the MIME type used when storing the raw upload.
func (t FileType) ContentType() string {
	switch t {
	case FileTypePDF:
		return "application/pdf"
	default:
		return "text/plain; charset=utf-8"
	}
}

// ParseFileType derives the file type from a filename's extension.
func ParseFileType(filename string) (FileType, error) {
	base := filepath.Base(strings.TrimSpace(filename))
	ext := strings.TrimPrefix(filepath.Ext(base), ".")
	if ext == "" || base == "."+ext {
		return "", fmt.Errorf("%w: %w: %q has no extension", ErrUnsupportedFileType, ErrInvalidFilename, filename)
	}
	return ToFileType(ext)
}

// ToFileType validates an already extracted extension.
func ToFileType(ext string) (FileType, error) {
	switch ft := FileType(strings.ToLower(ext)); ft {
	case FileTypePDF, FileTypeTXT:
		return ft, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFileType, ft)
	}
}

// Segment is one ordered unit of extracted text: a PDF page or a whole text file.
type Segment struct {
	Index    int
	Text     string
	Metadata map[string]any
}

// Chunk is a bounded window of a Segment. Offset is counted in characters from
// the start of the segment.
type Chunk struct {
	Index        int
	SegmentIndex int
	Offset       int
	Text         string
	Metadata     map[string]any
}

// DocumentLoader extracts ordered text segments from a file on disk.
type DocumentLoader interface {
	Load(ctx context.Context, path string, fileType FileType) ([]Segment, error)
}
