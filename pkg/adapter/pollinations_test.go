package adapter_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/m-mizutani/chatterbox/pkg/adapter"
	"github.com/m-mizutani/chatterbox/pkg/model"
	"github.com/m-mizutani/gt"
)

func TestExtractReply(t *testing.T) {
	testCases := []struct {
		name string
		body string
		want string
	}{
		{"chat completion", `{"choices":[{"message":{"content":"hi there"}}]}`, "hi there"},
		{"text completion", `{"choices":[{"text":"plain"}]}`, "plain"},
		{"response field", `{"response":"from response"}`, "from response"},
		{"message wins over text", `{"choices":[{"message":{"content":"a"},"text":"b"}],"response":"c"}`, "a"},
		{"bare json string", `"just a string"`, "just a string"},
		{"plain text body", "hello from plain text", "hello from plain text"},
		{"unknown object", `{"foo":"bar"}`, adapter.FallbackReply},
		{"empty content", `{"choices":[{"message":{"content":""}}]}`, adapter.FallbackReply},
		{"empty body", ``, adapter.FallbackReply},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gt.Equal(t, adapter.ExtractReply([]byte(tc.body)), tc.want)
		})
	}
}

func TestPollinationsComplete(t *testing.T) {
	var got model.ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gt.Equal(t, r.Method, http.MethodPost)
		gt.Equal(t, r.Header.Get("Content-Type"), "application/json")
		gt.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"pong"}}]}`))
	}))
	defer srv.Close()

	client := adapter.NewPollinations(adapter.WithTextEndpoint(srv.URL))
	reply, err := client.Complete(context.Background(), &model.ChatRequest{
		Messages: []model.ChatMessage{{Role: "user", Content: "ping"}},
		Model:    "unity",
		Nonce:    "n1",
	})
	gt.NoError(t, err)
	gt.Equal(t, reply, "pong")
	gt.Equal(t, got.Model, "unity")
	gt.Equal(t, got.Nonce, "n1")
	gt.False(t, got.Stream)
	gt.A(t, got.Messages).Length(1)
}

func TestPollinationsCompleteNonSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := adapter.NewPollinations(adapter.WithTextEndpoint(srv.URL))
	_, err := client.Complete(context.Background(), &model.ChatRequest{Model: "unity"})
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrRemoteStatus))
}

func TestPollinationsListModels(t *testing.T) {
	t.Run("safety models are dropped", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`[
				{"name":"unity","description":"Unity","censored":false},
				{"name":"guard","type":"safety"},
				{"name":"openai","description":"OpenAI","reasoning":true}
			]`))
		}))
		defer srv.Close()

		client := adapter.NewPollinations(adapter.WithModelsEndpoint(srv.URL))
		models, err := client.ListModels(context.Background())
		gt.NoError(t, err)
		gt.A(t, models).Length(2)
		gt.Equal(t, models[0].Name, "unity")
		gt.Equal(t, models[1].Name, "openai")
		gt.S(t, models[0].Tooltip()).Contains("(Uncensored)")
	})

	t.Run("fallback when nothing is selectable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`[{"name":"guard","type":"safety"}]`))
		}))
		defer srv.Close()

		client := adapter.NewPollinations(adapter.WithModelsEndpoint(srv.URL))
		models, err := client.ListModels(context.Background())
		gt.NoError(t, err)
		gt.A(t, models).Length(1)
		gt.Equal(t, models[0].Name, model.DefaultModel)
	})

	t.Run("malformed listing", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"oops":true}`))
		}))
		defer srv.Close()

		client := adapter.NewPollinations(adapter.WithModelsEndpoint(srv.URL))
		_, err := client.ListModels(context.Background())
		gt.Error(t, err)
	})
}
