package adapter_test

import (
	"context"
	"os"
	"testing"

	"github.com/m-mizutani/chatterbox/pkg/adapter"
	"github.com/m-mizutani/chatterbox/pkg/model"
	"github.com/m-mizutani/gt"
)

func TestGeminiComplete(t *testing.T) {
	projectID := os.Getenv("TEST_GEMINI_PROJECT")
	if projectID == "" {
		t.Skip("TEST_GEMINI_PROJECT is not set")
	}

	ctx := context.Background()
	client, err := adapter.NewGemini(ctx, projectID, "us-central1")
	gt.NoError(t, err)

	reply, err := client.Complete(ctx, &model.ChatRequest{
		Messages: []model.ChatMessage{
			{Role: "system", Content: "Answer in one word."},
			{Role: "user", Content: "What is the capital of France?"},
		},
	})
	gt.NoError(t, err)
	gt.S(t, reply).Contains("Paris")
}

func TestClaudeComplete(t *testing.T) {
	apiKey := os.Getenv("TEST_ANTHROPIC_API_KEY")
	if apiKey == "" {
		t.Skip("TEST_ANTHROPIC_API_KEY is not set")
	}

	client := adapter.NewClaude(apiKey, "", adapter.WithClaudeMaxTokens(64))
	reply, err := client.Complete(context.Background(), &model.ChatRequest{
		Messages: []model.ChatMessage{
			{Role: "system", Content: "Answer in one word."},
			{Role: "user", Content: "What is the capital of France?"},
		},
	})
	gt.NoError(t, err)
	gt.S(t, reply).Contains("Paris")
}
