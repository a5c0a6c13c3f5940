package adapter_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/m-mizutani/chatterbox/pkg/adapter"
	"github.com/m-mizutani/chatterbox/pkg/model"
	"github.com/m-mizutani/gt"
)

func TestOpenAICompleteAgainstCompatibleServer(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gt.Equal(t, r.URL.Path, "/chat/completions")
		gt.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "cmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "unity",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "pong"}}]
		}`))
	}))
	defer srv.Close()

	client := adapter.NewOpenAI("test-key", srv.URL, "")
	reply, err := client.Complete(context.Background(), &model.ChatRequest{
		Model: "unity",
		Messages: []model.ChatMessage{
			{Role: "system", Content: "be brief"},
			{Role: "user", Content: "ping"},
			{Role: "assistant", Content: "pong?"},
			{Role: "user", Content: "ping"},
		},
	})
	gt.NoError(t, err)
	gt.Equal(t, reply, "pong")
	gt.Equal(t, got.Model, "unity")
	gt.A(t, got.Messages).Length(4)
	gt.Equal(t, got.Messages[0].Role, "system")
	gt.Equal(t, got.Messages[2].Role, "assistant")
}
