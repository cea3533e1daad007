package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/markdave123-py/docrag/internal/services"
)

type QueryHandler struct {
	docs   *services.DocumentService
	logger *zap.Logger
}

func NewQueryHandler(docs *services.DocumentService, logger *zap.Logger) *QueryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryHandler{docs: docs, logger: logger}
}

type queryRequest struct {
	Query       string   `json:"query"`
	TopK        *int     `json:"top_k"`
	DocumentIDs []string `json:"document_ids"`
}

func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req queryRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.docs.Query(r.Context(), actor, services.QueryInput{
		Query:       req.Query,
		TopK:        req.TopK,
		DocumentIDs: req.DocumentIDs,
	})
	if err != nil {
		writeError(w, h.logger, "error querying documents", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
