package llm

import (
	"context"
	"sync"
)

// MockClient is a scripted LLM client for tests and the mock provider.
// Responses are returned in order; the last one repeats when the script
// runs out. Requests are recorded for assertions.
type MockClient struct {
	mu        sync.Mutex
	responses []string
	err       error
	Requests  []MockRequest
}

// MockRequest captures one call to the client.
type MockRequest struct {
	SystemPrompt string
	UserPrompt   string
}

// NewMockClient creates a mock with a single canned response.
func NewMockClient() *MockClient {
	return &MockClient{responses: []string{"Dat klinkt niet makkelijk. Ik ben er voor je."}}
}

// WithResponses replaces the response script.
func (m *MockClient) WithResponses(responses ...string) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = responses
	return m
}

// WithError makes every call fail.
func (m *MockClient) WithError(err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// Complete implements core.LLMClient.
func (m *MockClient) Complete(ctx context.Context, prompt string) (string, error) {
	return m.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem implements core.LLMClient.
func (m *MockClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, MockRequest{SystemPrompt: systemPrompt, UserPrompt: userPrompt})
	if m.err != nil {
		return "", m.err
	}
	if len(m.responses) == 0 {
		return "", nil
	}

	idx := len(m.Requests) - 1
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	return m.responses[idx], nil
}
