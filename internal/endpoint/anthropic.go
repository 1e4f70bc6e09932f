package endpoint

import (
	"context"

	"github.com/prajaktaborse1234/synthmerge/internal/config"
)

const anthropicVersion = "2023-06-01"

type anthropic struct {
	c *Client
}

type anthropicBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string  `json:"type"`
		Text *string `json:"text"`
	} `json:"content"`
	Usage *struct {
		InputTokens  *uint64 `json:"input_tokens"`
		OutputTokens *uint64 `json:"output_tokens"`
	} `json:"usage"`
}

func (b *anthropic) query(ctx context.Context, v config.Variant, req *Request) ([]ResponseEntry, error) {
	system, turns := splitSystem(buildTurns(req, b.c.cfg.EffectiveContext(v)))
	payload := b.c.cfg.Overlay(v)
	if system != "" {
		payload["system"] = system
	}
	messages := make([]anthropicMessage, len(turns))
	for i, t := range turns {
		messages[i] = anthropicMessage{Role: t.Role, Content: []anthropicBlock{{Type: "text", Text: t.Content}}}
	}
	payload["messages"] = messages

	headers := map[string]string{"anthropic-version": anthropicVersion}
	if b.c.apiKey != "" {
		headers["x-api-key"] = b.c.apiKey
	}

	var resp anthropicResponse
	if err := b.c.postJSON(ctx, b.c.cfg.URL, headers, payload, &resp); err != nil {
		return nil, err
	}

	var entry ResponseEntry
	found := false
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			entry.Text = *block.Text
			found = true
			break
		}
	}
	if !found {
		return nil, &ProtocolError{Reason: "response has no text content block"}
	}
	if u := resp.Usage; u != nil && u.InputTokens != nil && u.OutputTokens != nil {
		total := *u.InputTokens + *u.OutputTokens
		entry.TotalTokens = &total
	}
	return []ResponseEntry{entry}, nil
}
