package core

import "errors"

var (
	// ErrUnsupportedFileType is returned for any extension other than pdf or txt.
	ErrUnsupportedFileType = errors.New("unsupported file type")

	// ErrInvalidFilename is returned when a filename carries no usable extension.
	ErrInvalidFilename = errors.New("invalid filename")

	ErrEmbedding   = errors.New("embedding failed")
	ErrVectorStore = errors.New("vector store failed")
	ErrObjectStore = errors.New("object store failed")
)

// IsInputError reports whether err was caused by the caller's input rather than
// a backend failure.
func IsInputError(err error) bool {
	return errors.Is(err, ErrUnsupportedFileType) || errors.Is(err, ErrInvalidFilename)
}
