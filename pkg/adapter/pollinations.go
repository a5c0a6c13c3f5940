package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/chatterbox/pkg/model"
	"github.com/tidwall/gjson"
)

const (
	DefaultTextEndpoint   = "https://text.pollinations.ai/openai?safe=false"
	DefaultModelsEndpoint = "https://text.pollinations.ai/models"

	// FallbackReply is used when a reply has no recognizable shape
	FallbackReply = "Sorry, I couldn't process that response."

	modelListTimeout = 5 * time.Second
)

// Pollinations talks to the remote text generation service
type Pollinations struct {
	client         *http.Client
	textEndpoint   string
	modelsEndpoint string
}

type PollinationsOption func(*Pollinations)

func WithHTTPClient(client *http.Client) PollinationsOption {
	return func(p *Pollinations) {
		p.client = client
	}
}

func WithTextEndpoint(url string) PollinationsOption {
	return func(p *Pollinations) {
		p.textEndpoint = url
	}
}

func WithModelsEndpoint(url string) PollinationsOption {
	return func(p *Pollinations) {
		p.modelsEndpoint = url
	}
}

func NewPollinations(opts ...PollinationsOption) *Pollinations {
	p := &Pollinations{
		client:         &http.Client{Timeout: 2 * time.Minute},
		textEndpoint:   DefaultTextEndpoint,
		modelsEndpoint: DefaultModelsEndpoint,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Complete posts the request and extracts the reply text
func (p *Pollinations) Complete(ctx context.Context, req *model.ChatRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", goerr.Wrap(err, "failed to marshal chat request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.textEndpoint, bytes.NewReader(body))
	if err != nil {
		return "", goerr.Wrap(err, "failed to create chat request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Cache-Control", "no-store")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", goerr.Wrap(err, "failed to send chat request", goerr.V("endpoint", p.textEndpoint))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", goerr.Wrap(err, "failed to read chat response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", goerr.Wrap(model.ErrRemoteStatus, "chat request failed",
			goerr.V("status", resp.StatusCode), goerr.V("body", truncate(string(data), 200)))
	}

	return ExtractReply(data), nil
}

// ExtractReply returns the reply text of a completion response. The first present shape
// wins: choices[0].message.content, choices[0].text, response, then a bare string.
func ExtractReply(data []byte) string {
	if !gjson.ValidBytes(data) {
		if text := strings.TrimSpace(string(data)); text != "" {
			return text
		}
		return FallbackReply
	}

	root := gjson.ParseBytes(data)
	if root.Type == gjson.String {
		if s := root.String(); s != "" {
			return s
		}
		return FallbackReply
	}
	for _, path := range []string{"choices.0.message.content", "choices.0.text", "response"} {
		if r := root.Get(path); r.Type == gjson.String && r.String() != "" {
			return r.String()
		}
	}
	return FallbackReply
}

// ListModels fetches the selectable models. Safety models are excluded and a fallback
// entry is returned when nothing usable remains.
func (p *Pollinations) ListModels(ctx context.Context) ([]*model.ModelInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, modelListTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.modelsEndpoint, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create models request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to fetch models", goerr.V("endpoint", p.modelsEndpoint))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, goerr.Wrap(model.ErrRemoteStatus, "models request failed", goerr.V("status", resp.StatusCode))
	}

	var all []*model.ModelInfo
	if err := json.NewDecoder(resp.Body).Decode(&all); err != nil {
		return nil, goerr.Wrap(err, "invalid models response")
	}
	if len(all) == 0 {
		return nil, goerr.New("invalid models response: empty list")
	}

	return SelectableModels(all), nil
}

// SelectableModels drops unnamed and safety models
func SelectableModels(all []*model.ModelInfo) []*model.ModelInfo {
	var out []*model.ModelInfo
	for _, m := range all {
		if m == nil || m.Name == "" || m.Type == "safety" {
			continue
		}
		out = append(out, m)
	}
	if len(out) == 0 {
		out = append(out, &model.ModelInfo{
			Name:        model.DefaultModel,
			Description: "Unity (Fallback - No Valid Models)",
		})
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
