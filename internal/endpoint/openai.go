package endpoint

import (
	"context"

	"github.com/prajaktaborse1234/synthmerge/internal/config"
)

type openAI struct {
	c      *Client
	noChat bool
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message *struct {
			Content *string `json:"content"`
		} `json:"message"`
		Text     *string `json:"text"`
		Logprobs *struct {
			Content []TokenLogprob `json:"content"`
		} `json:"logprobs"`
	} `json:"choices"`
	Usage *struct {
		TotalTokens *uint64 `json:"total_tokens"`
	} `json:"usage"`
}

func (b *openAI) query(ctx context.Context, v config.Variant, req *Request) ([]ResponseEntry, error) {
	turns := buildTurns(req, b.c.cfg.EffectiveContext(v))
	payload := b.c.cfg.Overlay(v)
	if b.noChat {
		payload["prompt"] = flatten(turns)
	} else {
		messages := make([]openAIMessage, len(turns))
		for i, t := range turns {
			messages[i] = openAIMessage{Role: t.Role, Content: t.Content}
		}
		payload["messages"] = messages
	}

	headers := map[string]string{}
	if b.c.apiKey != "" {
		headers["Authorization"] = "Bearer " + b.c.apiKey
	}

	var resp openAIResponse
	if err := b.c.postJSON(ctx, b.c.cfg.URL, headers, payload, &resp); err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, &ProtocolError{Reason: "response has no choices"}
	}
	choice := resp.Choices[0]

	var entry ResponseEntry
	switch {
	case choice.Message != nil && choice.Message.Content != nil:
		entry.Text = *choice.Message.Content
	case choice.Text != nil:
		entry.Text = *choice.Text
	default:
		return nil, &ProtocolError{Reason: "choices[0] has neither message.content nor text"}
	}
	if resp.Usage != nil {
		entry.TotalTokens = resp.Usage.TotalTokens
	}
	if choice.Logprobs != nil {
		entry.Logprob = MinLogprob(choice.Logprobs.Content)
	}
	return []ResponseEntry{entry}, nil
}
