package llm

import (
	"context"
	"encoding/json"
)

// MockClient is a configurable LLM client for testing.
// Set the response fields to control what each method returns.
type MockClient struct {
	GenerateResponse           string
	GenerateError              error
	GenerateStructuredResponse json.RawMessage
	GenerateStructuredError    error

	// Call tracking for assertions
	GenerateCalls           []struct{ System, User string }
	GenerateStructuredCalls []struct {
		System, User string
		Schema       json.RawMessage
	}
}

func NewMockClient() *MockClient {
	return &MockClient{
		GenerateResponse:           "Mock response",
		GenerateStructuredResponse: json.RawMessage(`{"score": 0.5, "summary": "Mock analysis", "strengths": [], "gaps": [], "recommendation": "review"}`),
	}
}

func (m *MockClient) Generate(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	m.GenerateCalls = append(m.GenerateCalls, struct{ System, User string }{systemPrompt, userPrompt})
	if m.GenerateError != nil {
		return "", m.GenerateError
	}
	return m.GenerateResponse, nil
}

func (m *MockClient) GenerateStructured(_ context.Context, systemPrompt, userPrompt string, schema json.RawMessage) (json.RawMessage, error) {
	m.GenerateStructuredCalls = append(m.GenerateStructuredCalls, struct {
		System, User string
		Schema       json.RawMessage
	}{systemPrompt, userPrompt, schema})
	if m.GenerateStructuredError != nil {
		return nil, m.GenerateStructuredError
	}
	return m.GenerateStructuredResponse, nil
}
