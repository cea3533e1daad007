package handlers

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/markdave123-py/docrag/internal/services"
)

// MaxUploadBytes bounds a multipart upload request.
const MaxUploadBytes = 50 << 20

type DocumentHandler struct {
	docs   *services.DocumentService
	logger *zap.Logger
}

func NewDocumentHandler(docs *services.DocumentService, logger *zap.Logger) *DocumentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentHandler{docs: docs, logger: logger}
}

// UploadDocument ingests the "file" part synchronously and responds with the
// stored Document record.
func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeDetail(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeDetail(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "could not read file")
		return
	}

	in := services.UploadInput{
		Filename: filepath.Base(header.Filename),
		Content:  content,
		Title:    r.FormValue("title"),
	}
	if vals, ok := r.MultipartForm.Value["description"]; ok && len(vals) > 0 && vals[0] != "" {
		in.Description = &vals[0]
	}

	doc, err := h.docs.Upload(r.Context(), actor, in)
	if err != nil {
		writeError(w, h.logger, "error processing document", err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (h *DocumentHandler) GetDocuments(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}

	skip, err := intParam(r, "skip", 0)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "skip must be an integer")
		return
	}
	limit, err := intParam(r, "limit", services.DefaultListLimit)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "limit must be an integer")
		return
	}

	docs, err := h.docs.List(r.Context(), actor, skip, limit)
	if err != nil {
		writeError(w, h.logger, "listing documents failed", err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func intParam(r *http.Request, name string, fallback int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}
