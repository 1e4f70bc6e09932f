package endpoint

import (
	"context"
	"net/url"

	ollama "github.com/ollama/ollama/api"
	"github.com/pkg/errors"

	"github.com/prajaktaborse1234/synthmerge/internal/config"
)

// ollamaBackend talks to an ollama server through its native chat and
// generate API. The json overlay selects the model; other keys become options.
type ollamaBackend struct {
	c      *Client
	api    *ollama.Client
	noChat bool
}

func newOllama(c *Client, p *config.Ollama) (*ollamaBackend, error) {
	base, err := url.Parse(c.cfg.URL)
	if err != nil {
		return nil, errors.Wrapf(err, "endpoint %s has an invalid url", c.cfg.Name)
	}
	for _, v := range c.cfg.Variants() {
		if model, _ := splitOllamaOverlay(c.cfg.Overlay(v)); model == "" {
			return nil, errors.Errorf("endpoint %s: ollama needs a \"model\" key in json", c.cfg.Label(v))
		}
	}
	return &ollamaBackend{c: c, api: ollama.NewClient(base, c.http), noChat: p.NoChat}, nil
}

// splitOllamaOverlay takes the model name out of the overlay and returns the
// remaining keys as model options. keep_alive is left to the server.
func splitOllamaOverlay(overlay map[string]any) (string, map[string]any) {
	model, _ := overlay["model"].(string)
	options := make(map[string]any, len(overlay))
	for k, v := range overlay {
		if k == "model" || k == "keep_alive" {
			continue
		}
		options[k] = v
	}
	return model, options
}

func (b *ollamaBackend) query(ctx context.Context, v config.Variant, req *Request) ([]ResponseEntry, error) {
	turns := buildTurns(req, b.c.cfg.EffectiveContext(v))
	model, options := splitOllamaOverlay(b.c.cfg.Overlay(v))
	stream := false

	var response string
	var metrics ollama.Metrics
	if b.noChat {
		respFunc := func(resp ollama.GenerateResponse) error {
			response += resp.Response
			metrics = resp.Metrics
			return nil
		}
		err := b.api.Generate(ctx, &ollama.GenerateRequest{
			Model:   model,
			Prompt:  flatten(turns),
			Stream:  &stream,
			Options: options,
		}, respFunc)
		if err != nil {
			return nil, ollamaError(err)
		}
	} else {
		messages := make([]ollama.Message, len(turns))
		for i, t := range turns {
			messages[i] = ollama.Message{Role: t.Role, Content: t.Content}
		}
		respFunc := func(resp ollama.ChatResponse) error {
			response += resp.Message.Content
			metrics = resp.Metrics
			return nil
		}
		err := b.api.Chat(ctx, &ollama.ChatRequest{
			Model:    model,
			Messages: messages,
			Stream:   &stream,
			Options:  options,
		}, respFunc)
		if err != nil {
			return nil, ollamaError(err)
		}
	}

	entry := ResponseEntry{Text: response}
	if tokens := metrics.PromptEvalCount + metrics.EvalCount; tokens > 0 {
		total := uint64(tokens)
		entry.TotalTokens = &total
	}
	return []ResponseEntry{entry}, nil
}

// ollamaError maps ollama client errors onto the endpoint error kinds
func ollamaError(err error) error {
	var status ollama.StatusError
	if errors.As(err, &status) {
		return &TransportError{StatusCode: status.StatusCode, Err: err}
	}
	return classify(err)
}
