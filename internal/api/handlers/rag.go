package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/hirescreen/hirescreen/internal/domain"
	"github.com/hirescreen/hirescreen/internal/service"
)

// RAGHandler serves the retrieval knowledge base: ingest, search and stats.
type RAGHandler struct {
	retrieval *service.RetrievalService
}

func NewRAGHandler(retrieval *service.RetrievalService) *RAGHandler {
	return &RAGHandler{retrieval: retrieval}
}

type addDocumentRequest struct {
	Type     string         `json:"type"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (h *RAGHandler) AddDocument(w http.ResponseWriter, r *http.Request) {
	var req addDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if !domain.ValidDocumentType(req.Type) || domain.DocumentType(req.Type) == domain.DocumentTypeAll {
		writeError(w, http.StatusBadRequest, "type must be one of: job, cv, hr_knowledge")
		return
	}

	doc, err := h.retrieval.AddDocument(r.Context(), domain.DocumentType(req.Type), req.Text, req.Metadata)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

type searchRequest struct {
	Query string `json:"query"`
	Type  string `json:"type,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

func (h *RAGHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	docType := domain.DocumentTypeAll
	if req.Type != "" {
		if !domain.ValidDocumentType(req.Type) {
			writeError(w, http.StatusBadRequest, "invalid document type")
			return
		}
		docType = domain.DocumentType(req.Type)
	}

	results, err := h.retrieval.Retrieve(r.Context(), req.Query, docType, req.Limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if results == nil {
		results = []domain.DocumentWithScore{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (h *RAGHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.retrieval.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
