package endpoint

import (
	"context"
	"fmt"

	"github.com/prajaktaborse1234/synthmerge/internal/config"
)

const jsonRPCVersion = "2.0"

type patchpal struct {
	c *Client
}

type patchpalParams struct {
	Patch string `json:"patch"`
	Code  string `json:"code"`
}

type patchpalRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	Method  string         `json:"method"`
	Params  patchpalParams `json:"params"`
}

type patchpalResponse struct {
	JSONRPC *string `json:"jsonrpc"`
	Result  [][]any `json:"result"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// query ignores the variant: patchpal takes no overlay and returns one
// (text, confidence) pair per beam
func (b *patchpal) query(ctx context.Context, _ config.Variant, req *Request) ([]ResponseEntry, error) {
	payload := patchpalRequest{
		JSONRPC: jsonRPCVersion,
		Method:  "inference",
		Params:  patchpalParams{Patch: req.Patch, Code: req.Code},
	}
	var resp patchpalResponse
	if err := b.c.postJSON(ctx, b.c.cfg.URL, nil, payload, &resp); err != nil {
		return nil, err
	}
	if resp.JSONRPC == nil || *resp.JSONRPC != jsonRPCVersion {
		return nil, &ProtocolError{Reason: "invalid jsonrpc version"}
	}
	if resp.Error != nil {
		return nil, &ProtocolError{Reason: fmt.Sprintf("error %d: %s", resp.Error.Code, resp.Error.Message)}
	}
	if len(resp.Result) == 0 {
		return nil, &ProtocolError{Reason: "empty result"}
	}

	entries := make([]ResponseEntry, 0, len(resp.Result))
	for i, beam := range resp.Result {
		if len(beam) == 0 {
			return nil, &ProtocolError{Reason: fmt.Sprintf("result[%d] is empty", i)}
		}
		text, ok := beam[0].(string)
		if !ok {
			return nil, &ProtocolError{Reason: fmt.Sprintf("result[%d][0] is not a string", i)}
		}
		entry := ResponseEntry{Text: WrapPatchedCode(text)}
		if len(beam) > 1 {
			if confidence, ok := beam[1].(float64); ok {
				entry.Logprob = ConfidenceToLogprob(confidence)
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
