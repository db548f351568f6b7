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

// EmployerAgent serves the employer side: vacancy-level insight over the
// analyzed responses, and a chat surface grounded in the screening material.
type EmployerAgent struct {
	*BaseAgent

	llm       domain.LLMClient
	retrieval domain.RetrievalClient
	vacancies domain.VacancyStore
	responses domain.ResponseStore
}

func NewEmployerAgent(eventBus *bus.Bus, logger *zap.Logger, llm domain.LLMClient, retrieval domain.RetrievalClient, vacancies domain.VacancyStore, responses domain.ResponseStore) *EmployerAgent {
	a := &EmployerAgent{
		llm:       llm,
		retrieval: retrieval,
		vacancies: vacancies,
		responses: responses,
	}
	a.BaseAgent = NewBaseAgent(domain.AgentTypeEmployer, "employer_agent", []domain.EventType{
		domain.EventEmployerViewedCandidate,
		domain.EventEmployerRequestedAnalysis,
		domain.EventEmployerChatRequested,
	}, eventBus, logger)
	a.handle = a.handleEvent

	return a
}

func (a *EmployerAgent) handleEvent(ctx context.Context, event *domain.Event) (any, error) {
	switch event.Type {
	case domain.EventEmployerViewedCandidate:
		return a.summarizeCandidate(ctx, event)
	case domain.EventEmployerRequestedAnalysis:
		return a.buildVacancyInsights(ctx, event)
	case domain.EventEmployerChatRequested:
		return a.answerChat(ctx, event)
	case domain.EventSystemStartup, domain.EventSystemShutdown:
		return map[string]any{"acknowledged": true}, nil
	default:
		return nil, fmt.Errorf("unexpected event type %s", event.Type)
	}
}

// summarizeCandidate produces a short employer-facing summary of one
// analyzed response when the employer opens it.
func (a *EmployerAgent) summarizeCandidate(ctx context.Context, event *domain.Event) (any, error) {
	responseID, err := payloadUUID(event.Payload, "response_id")
	if err != nil {
		return nil, err
	}
	resp, err := a.responses.GetByID(ctx, responseID)
	if err != nil {
		return nil, fmt.Errorf("load response %s: %w", responseID, err)
	}

	analysisJSON, _ := json.Marshal(resp.Analysis)
	summary, err := a.llm.Generate(ctx, employerSystemPrompt,
		fmt.Sprintf("Summarize this candidate analysis for the employer in three sentences:\n%s", analysisJSON))
	if err != nil {
		return nil, fmt.Errorf("candidate summary: %w", err)
	}

	a.state.IncrementMetric("candidates_summarized", 1)
	return map[string]any{"response_id": responseID.String(), "summary": summary}, nil
}

// buildVacancyInsights aggregates every analyzed response for a vacancy into
// structured insights, caches them under the vacancy and announces readiness.
func (a *EmployerAgent) buildVacancyInsights(ctx context.Context, event *domain.Event) (any, error) {
	vacancyID, err := payloadUUID(event.Payload, "vacancy_id")
	if err != nil {
		return nil, err
	}
	vacancy, err := a.vacancies.GetByID(ctx, vacancyID)
	if err != nil {
		return nil, fmt.Errorf("load vacancy %s: %w", vacancyID, err)
	}
	analyzed, err := a.responses.ListByVacancy(ctx, vacancyID, 50)
	if err != nil {
		return nil, fmt.Errorf("list responses for vacancy %s: %w", vacancyID, err)
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Vacancy: %s\nRequirements:\n%s\n\nAnalyzed candidates:\n", vacancy.Title, vacancy.Requirements)
	count := 0
	for _, r := range analyzed {
		if r.Status != domain.ResponseStatusAnalyzed {
			continue
		}
		count++
		b, _ := json.Marshal(r.Analysis)
		fmt.Fprintf(&prompt, "- candidate %s: %s\n", r.CandidateID, b)
	}
	if count == 0 {
		return nil, fmt.Errorf("vacancy %s has no analyzed responses yet", vacancyID)
	}
	prompt.WriteString("\nProduce hiring insights for this vacancy.")

	raw, err := a.llm.GenerateStructured(ctx, employerSystemPrompt, prompt.String(), insightSchema)
	if err != nil {
		return nil, fmt.Errorf("vacancy insights: %w", err)
	}
	var insights map[string]any
	if err := json.Unmarshal(raw, &insights); err != nil {
		return nil, fmt.Errorf("vacancy insights returned invalid JSON: %w", err)
	}
	insights["analyzed_count"] = count

	a.state.SetAnalysisResult("insights_"+vacancyID.String(), insights)
	a.state.IncrementMetric("insights_generated", 1)

	a.eventBus.PublishSimple(domain.EventEmployerAnalysisReady, domain.Payload{
		"vacancy_id":     vacancyID.String(),
		"analyzed_count": count,
	}, a.id, uuid.Nil, 3, event.CorrelationID)

	return insights, nil
}

// answerChat answers an employer question grounded in retrieved screening
// material and keeps the exchange in conversation memory.
func (a *EmployerAgent) answerChat(ctx context.Context, event *domain.Event) (any, error) {
	question, ok := event.Payload.GetString("message")
	if !ok {
		return nil, fmt.Errorf("chat event missing message")
	}
	a.state.AddToConversation("user", question, map[string]any{"event_id": event.ID.String()})

	var grounding strings.Builder
	docs, err := a.retrieval.Retrieve(ctx, question, domain.DocumentTypeAll, retrievalLimit)
	if err != nil {
		a.logger.Warn("retrieval failed, answering without grounding", zap.Error(err))
	}
	for _, d := range docs {
		grounding.WriteString(d.Text)
		grounding.WriteString("\n\n")
	}

	prompt := question
	if grounding.Len() > 0 {
		prompt = fmt.Sprintf("Context:\n%s\nQuestion: %s", grounding.String(), question)
	}
	answer, err := a.llm.Generate(ctx, employerSystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("chat answer: %w", err)
	}

	a.state.AddToConversation("assistant", answer, nil)
	a.state.IncrementMetric("chat_turns", 1)
	return map[string]any{"answer": answer}, nil
}
