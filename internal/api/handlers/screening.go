package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/hirescreen/hirescreen/internal/agent"
	"github.com/hirescreen/hirescreen/internal/domain"
	"github.com/hirescreen/hirescreen/internal/store"
)

// ScreeningHandler serves vacancy/candidate/response CRUD and the two
// orchestrator entry points that kick off agent work.
type ScreeningHandler struct {
	orch       *agent.Orchestrator
	vacancies  domain.VacancyStore
	candidates domain.CandidateStore
	responses  domain.ResponseStore
}

func NewScreeningHandler(orch *agent.Orchestrator, vacancies domain.VacancyStore, candidates domain.CandidateStore, responses domain.ResponseStore) *ScreeningHandler {
	return &ScreeningHandler{
		orch:       orch,
		vacancies:  vacancies,
		candidates: candidates,
		responses:  responses,
	}
}

type createVacancyRequest struct {
	EmployerID   string         `json:"employer_id"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Requirements string         `json:"requirements,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

func (h *ScreeningHandler) CreateVacancy(w http.ResponseWriter, r *http.Request) {
	var req createVacancyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.EmployerID == "" {
		writeError(w, http.StatusBadRequest, "employer_id is required")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	v := &domain.Vacancy{
		EmployerID:   req.EmployerID,
		Title:        req.Title,
		Description:  req.Description,
		Requirements: req.Requirements,
		Metadata:     req.Metadata,
	}
	if err := h.vacancies.Create(r.Context(), v); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (h *ScreeningHandler) ListVacancies(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	vacancies, err := h.vacancies.List(r.Context(), r.URL.Query().Get("employer_id"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if vacancies == nil {
		vacancies = []domain.Vacancy{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"vacancies": vacancies})
}

type createCandidateRequest struct {
	ExternalID string         `json:"external_id,omitempty"`
	Name       string         `json:"name"`
	ResumeText string         `json:"resume_text,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func (h *ScreeningHandler) CreateCandidate(w http.ResponseWriter, r *http.Request) {
	var req createCandidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	c := &domain.Candidate{
		ExternalID: req.ExternalID,
		Name:       req.Name,
		ResumeText: req.ResumeText,
		Metadata:   req.Metadata,
	}
	if err := h.candidates.Create(r.Context(), c); err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, "candidate with this external_id already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *ScreeningHandler) GetResponse(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	resp, err := h.responses.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "response not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type processApplicationRequest struct {
	VacancyID   string `json:"vacancy_id"`
	CandidateID string `json:"candidate_id"`
	Language    string `json:"language,omitempty"`
}

// ProcessApplication records the application as a response row and hands it
// to the agent system. The analysis itself completes asynchronously.
func (h *ScreeningHandler) ProcessApplication(w http.ResponseWriter, r *http.Request) {
	var req processApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	vacancyID, err := parseUUIDField(req.VacancyID, "vacancy_id", w)
	if err != nil {
		return
	}
	candidateID, err := parseUUIDField(req.CandidateID, "candidate_id", w)
	if err != nil {
		return
	}

	if _, err := h.vacancies.GetByID(r.Context(), vacancyID); err != nil {
		writeError(w, http.StatusNotFound, "vacancy not found")
		return
	}
	if _, err := h.candidates.GetByID(r.Context(), candidateID); err != nil {
		writeError(w, http.StatusNotFound, "candidate not found")
		return
	}

	resp := &domain.Response{
		VacancyID:   vacancyID,
		CandidateID: candidateID,
		Language:    req.Language,
	}
	if err := h.responses.Create(r.Context(), resp); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	event := h.orch.ProcessCandidateApplication(resp.ID, vacancyID, candidateID, resp.Language)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"response_id":    resp.ID,
		"event_id":       event.ID,
		"correlation_id": event.CorrelationID,
		"status":         "processing",
	})
}

// GetAnalysis returns the analysis for one response, preferring the agent's
// working memory and falling back to the persisted row.
func (h *ScreeningHandler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	responseID, ok := uuidParam(w, r, "responseID")
	if !ok {
		return
	}

	if analysis, err := h.orch.GetCandidateAnalysis(responseID); err == nil {
		writeJSON(w, http.StatusOK, map[string]any{"response_id": responseID, "analysis": analysis, "source": "agent"})
		return
	}

	resp, err := h.responses.GetByID(r.Context(), responseID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "response not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if resp.Status != domain.ResponseStatusAnalyzed {
		writeJSON(w, http.StatusOK, map[string]any{"response_id": responseID, "status": resp.Status})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"response_id": responseID, "analysis": resp.Analysis, "source": "store"})
}

type employerRequestBody struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

func (h *ScreeningHandler) EmployerRequest(w http.ResponseWriter, r *http.Request) {
	var req employerRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	event, err := h.orch.ProcessEmployerRequest(agent.EmployerRequestType(req.Type), req.Payload)
	if err != nil {
		if errors.Is(err, agent.ErrUnknownRequestType) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"event_id":       event.ID,
		"correlation_id": event.CorrelationID,
		"status":         "processing",
	})
}

func (h *ScreeningHandler) GetInsights(w http.ResponseWriter, r *http.Request) {
	vacancyID, ok := uuidParam(w, r, "vacancyID")
	if !ok {
		return
	}

	insights, err := h.orch.GetEmployerInsights(vacancyID)
	if err != nil {
		if errors.Is(err, agent.ErrAnalysisNotFound) {
			writeError(w, http.StatusNotFound, "insights not ready for this vacancy")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"vacancy_id": vacancyID, "insights": insights})
}
