package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/hirescreen/hirescreen/internal/bus"
	"github.com/hirescreen/hirescreen/internal/domain"
	"go.uber.org/zap"
)

const retrievalLimit = 5

// CandidateAgent owns the candidate side of screening: it reacts to new
// applications and interview responses, runs the gap analysis against the
// vacancy and publishes feedback for the employer side to pick up.
type CandidateAgent struct {
	*BaseAgent

	llm        domain.LLMClient
	retrieval  domain.RetrievalClient
	vacancies  domain.VacancyStore
	candidates domain.CandidateStore
	responses  domain.ResponseStore
}

func NewCandidateAgent(eventBus *bus.Bus, logger *zap.Logger, llm domain.LLMClient, retrieval domain.RetrievalClient, vacancies domain.VacancyStore, candidates domain.CandidateStore, responses domain.ResponseStore) *CandidateAgent {
	a := &CandidateAgent{
		llm:        llm,
		retrieval:  retrieval,
		vacancies:  vacancies,
		candidates: candidates,
		responses:  responses,
	}
	a.BaseAgent = NewBaseAgent(domain.AgentTypeCandidate, "candidate_agent", []domain.EventType{
		domain.EventCandidateApplied,
		domain.EventCandidateResponded,
		domain.EventCandidateAnalysisNeeded,
	}, eventBus, logger)
	a.handle = a.handleEvent

	return a
}

func (a *CandidateAgent) handleEvent(ctx context.Context, event *domain.Event) (any, error) {
	switch event.Type {
	case domain.EventCandidateApplied, domain.EventCandidateAnalysisNeeded:
		return a.analyzeResponse(ctx, event)
	case domain.EventCandidateResponded:
		return a.recordResponse(ctx, event)
	case domain.EventSystemStartup, domain.EventSystemShutdown:
		// Broadcast lifecycle notices need acknowledging, nothing more.
		return map[string]any{"acknowledged": true}, nil
	default:
		return nil, fmt.Errorf("unexpected event type %s", event.Type)
	}
}

// analyzeResponse runs the full screening pass for one candidate response:
// load the response and vacancy, retrieve supporting material, ask the model
// for a structured mismatch analysis, persist it and announce the feedback.
func (a *CandidateAgent) analyzeResponse(ctx context.Context, event *domain.Event) (any, error) {
	responseID, err := payloadUUID(event.Payload, "response_id")
	if err != nil {
		return nil, err
	}

	resp, err := a.responses.GetByID(ctx, responseID)
	if err != nil {
		return nil, fmt.Errorf("load response %s: %w", responseID, err)
	}
	vacancy, err := a.vacancies.GetByID(ctx, resp.VacancyID)
	if err != nil {
		return nil, fmt.Errorf("load vacancy %s: %w", resp.VacancyID, err)
	}
	candidate, err := a.candidates.GetByID(ctx, resp.CandidateID)
	if err != nil {
		return nil, fmt.Errorf("load candidate %s: %w", resp.CandidateID, err)
	}

	grounding := a.retrieveGrounding(ctx, vacancy.Title+" "+vacancy.Requirements)

	analysis, score, err := a.runMismatchAnalysis(ctx, vacancy, candidate, grounding)
	if err != nil {
		if storeErr := a.responses.UpdateAnalysis(ctx, responseID, domain.ResponseStatusFailed, nil, nil); storeErr != nil {
			a.logger.Error("marking response failed", zap.Error(storeErr))
		}
		return nil, err
	}

	if err := a.responses.UpdateAnalysis(ctx, responseID, domain.ResponseStatusAnalyzed, analysis, &score); err != nil {
		return nil, fmt.Errorf("persist analysis for response %s: %w", responseID, err)
	}

	a.state.SetAnalysisResult("analysis_"+responseID.String(), analysis)
	a.state.IncrementMetric("analyses_completed", 1)

	a.eventBus.PublishSimple(domain.EventCandidateFeedbackReady, domain.Payload{
		"response_id":  responseID.String(),
		"vacancy_id":   resp.VacancyID.String(),
		"candidate_id": resp.CandidateID.String(),
		"score":        score,
	}, a.id, uuid.Nil, 3, event.CorrelationID)

	return analysis, nil
}

// recordResponse folds a mid-screening candidate message into the agent's
// conversation memory without re-running the analysis.
func (a *CandidateAgent) recordResponse(_ context.Context, event *domain.Event) (any, error) {
	text, ok := event.Payload.GetString("message")
	if !ok {
		return nil, fmt.Errorf("candidate response event missing message")
	}
	a.state.AddToConversation("user", text, map[string]any{"event_id": event.ID.String()})
	a.state.IncrementMetric("responses_recorded", 1)
	return map[string]any{"recorded": true}, nil
}

func (a *CandidateAgent) retrieveGrounding(ctx context.Context, query string) string {
	docs, err := a.retrieval.Retrieve(ctx, query, domain.DocumentTypeHRKnowledge, retrievalLimit)
	if err != nil {
		// Grounding material is best-effort; the analysis still runs on the
		// resume and vacancy alone.
		a.logger.Warn("retrieval failed, analyzing without grounding", zap.Error(err))
		return ""
	}
	var sb strings.Builder
	for _, d := range docs {
		sb.WriteString(d.Text)
		sb.WriteString("\n\n")
	}
	return sb.String()
}

func (a *CandidateAgent) runMismatchAnalysis(ctx context.Context, vacancy *domain.Vacancy, candidate *domain.Candidate, grounding string) (map[string]any, float32, error) {
	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Vacancy: %s\n%s\n\nRequirements:\n%s\n\n", vacancy.Title, vacancy.Description, vacancy.Requirements)
	fmt.Fprintf(&prompt, "Candidate: %s\nResume:\n%s\n", candidate.Name, candidate.ResumeText)
	if grounding != "" {
		fmt.Fprintf(&prompt, "\nScreening guidance:\n%s", grounding)
	}
	prompt.WriteString("\nProduce the mismatch analysis for this candidate against this vacancy.")

	raw, err := a.llm.GenerateStructured(ctx, candidateSystemPrompt, prompt.String(), mismatchSchema)
	if err != nil {
		return nil, 0, fmt.Errorf("mismatch analysis: %w", err)
	}

	var analysis map[string]any
	if err := json.Unmarshal(raw, &analysis); err != nil {
		return nil, 0, fmt.Errorf("mismatch analysis returned invalid JSON: %w", err)
	}
	score := float32(0)
	if s, ok := analysis["score"].(float64); ok {
		score = float32(s)
	}
	return analysis, score, nil
}

// payloadUUID pulls a UUID-valued field out of an event payload.
func payloadUUID(p domain.Payload, key string) (uuid.UUID, error) {
	raw, ok := p.GetString(key)
	if !ok {
		return uuid.Nil, fmt.Errorf("payload missing %s", key)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("payload %s: %w", key, err)
	}
	return id, nil
}
