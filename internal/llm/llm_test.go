package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evai/internal/config"
)

func TestNewClientFactory(t *testing.T) {
	client, err := NewClient(config.LLMConfig{Provider: "mock"})
	require.NoError(t, err)
	assert.NotNil(t, client)

	client, err = NewClient(config.LLMConfig{Provider: "gemini", APIKey: "key", Timeout: "5s"})
	require.NoError(t, err)
	assert.NotNil(t, client)

	_, err = NewClient(config.LLMConfig{Provider: "telex"})
	assert.Error(t, err)
}

func TestMockClientScript(t *testing.T) {
	m := NewMockClient().WithResponses("eerste", "tweede")
	ctx := context.Background()

	first, err := m.Complete(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "eerste", first)

	second, err := m.CompleteWithSystem(ctx, "sys", "b")
	require.NoError(t, err)
	assert.Equal(t, "tweede", second)

	third, err := m.Complete(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, "tweede", third, "last response repeats")

	require.Len(t, m.Requests, 3)
	assert.Equal(t, "sys", m.Requests[1].SystemPrompt)
}

func TestMockClientError(t *testing.T) {
	m := NewMockClient().WithError(errors.New("down"))

	_, err := m.Complete(context.Background(), "a")
	assert.Error(t, err)
}

func TestGeminiCompleteAgainstServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "generateContent")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Hallo daar."}]}}]}`))
	}))
	defer server.Close()

	client := NewGeminiClientWithConfig(GeminiConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "gemini-test",
		Timeout: 5 * time.Second,
	})

	response, err := client.CompleteWithSystem(context.Background(), "wees vriendelijk", "hoi")
	require.NoError(t, err)
	assert.Equal(t, "Hallo daar.", response)
}

func TestGeminiMissingAPIKey(t *testing.T) {
	client := NewGeminiClientWithConfig(GeminiConfig{Timeout: time.Second})

	_, err := client.Complete(context.Background(), "hoi")
	assert.Error(t, err)
}

func TestGeminiAPIErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"code":400,"message":"bad request"}}`))
	}))
	defer server.Close()

	client := NewGeminiClientWithConfig(GeminiConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Timeout: 5 * time.Second,
	})

	_, err := client.Complete(context.Background(), "hoi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad request")
}

func TestGeminiEmptyCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	}))
	defer server.Close()

	client := NewGeminiClientWithConfig(GeminiConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Timeout: 5 * time.Second,
	})

	_, err := client.Complete(context.Background(), "hoi")
	assert.Error(t, err)
}
