package endpoint

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prajaktaborse1234/synthmerge/internal/config"
)

func boolp(v bool) *bool { return &v }

var testRequest = &Request{
	Instructions: "INSTRUCTIONS",
	Message:      "MESSAGE",
	DiffBlock:    "DIFF",
	Patch:        "PATCH",
	Code:         "CODE",
}

func newTestClient(t *testing.T, e config.Endpoint) (*Client, *[]time.Duration) {
	t.Helper()
	if e.Name == "" {
		e.Name = "test"
	}
	if e.Retries == 0 {
		e.Retries = 1
	}
	if e.Timeout == 0 {
		e.Timeout = 5
	}
	c, err := NewClient(&e)
	require.NoError(t, err)
	var sleeps []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return c, &sleeps
}

// jsonServer records the decoded request body and headers and answers with reply
func jsonServer(t *testing.T, reply string, got *map[string]any, headers *http.Header) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		if got != nil {
			require.NoError(t, sonic.ConfigStd.Unmarshal(body, got))
		}
		if headers != nil {
			*headers = r.Header.Clone()
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIChat(t *testing.T) {
	var got map[string]any
	var headers http.Header
	srv := jsonServer(t, `{
		"choices": [{
			"message": {"content": "answer"},
			"logprobs": {"content": [
				{"token": "a", "logprob": -0.1},
				{"token": "b", "logprob": -0.7},
				{"token": "", "logprob": -9}
			]}
		}],
		"usage": {"total_tokens": 42}
	}`, &got, &headers)

	t.Setenv("SYNTHMERGE_TEST_OPENAI_KEY", "sk-openai")
	c, _ := newTestClient(t, config.Endpoint{
		Name:      "gpt",
		URL:       srv.URL,
		APIKeyEnv: "SYNTHMERGE_TEST_OPENAI_KEY",
		Context:   &config.Context{WithSystemMessage: boolp(true)},
		JSON:      map[string]any{"model": "m"},
		Protocol:  &config.OpenAI{Variants: []config.Variant{{Name: "t0", JSON: map[string]any{"temperature": 0}}}},
	})

	results := c.Query(context.Background(), testRequest)
	require.Len(t, results, 1)
	require.Len(t, results[0], 1)
	r := results[0][0]
	require.NoError(t, r.Err)
	assert.Equal(t, "gpt (t0)", r.Label)
	assert.Equal(t, "answer", r.Response.Text)
	assert.Equal(t, uint64(42), *r.Response.TotalTokens)
	assert.Equal(t, -0.7, *r.Response.Logprob)
	assert.Positive(t, r.Response.Duration)

	assert.Equal(t, "Bearer sk-openai", headers.Get("Authorization"))
	assert.Equal(t, "m", got["model"])
	assert.Equal(t, float64(0), got["temperature"])
	assert.Equal(t, []any{
		map[string]any{"role": "system", "content": "INSTRUCTIONS"},
		map[string]any{"role": "user", "content": "DIFF\n\nMESSAGE"},
	}, got["messages"])
}

func TestOpenAICompletion(t *testing.T) {
	var got map[string]any
	srv := jsonServer(t, `{"choices": [{"text": "plain"}]}`, &got, nil)

	c, _ := newTestClient(t, config.Endpoint{
		URL:      srv.URL,
		Context:  &config.Context{NoDiff: boolp(true)},
		Protocol: &config.OpenAI{NoChat: true},
	})

	results := c.Query(context.Background(), testRequest)
	r := results[0][0]
	require.NoError(t, r.Err)
	assert.Equal(t, "plain", r.Response.Text)
	assert.Nil(t, r.Response.TotalTokens)
	assert.Nil(t, r.Response.Logprob)
	assert.Equal(t, "INSTRUCTIONS\n\nMESSAGE", got["prompt"])
	assert.NotContains(t, got, "messages")
}

func TestAnthropic(t *testing.T) {
	var got map[string]any
	var headers http.Header
	srv := jsonServer(t, `{
		"content": [{"type": "thinking"}, {"type": "text", "text": "claude says"}],
		"usage": {"input_tokens": 10, "output_tokens": 5}
	}`, &got, &headers)

	c, _ := newTestClient(t, config.Endpoint{
		URL:      srv.URL,
		Context:  &config.Context{WithSystemMessage: boolp(true)},
		JSON:     map[string]any{"max_tokens": 100},
		Protocol: &config.Anthropic{},
	})
	c.apiKey = "sk-ant"

	r := c.Query(context.Background(), testRequest)[0][0]
	require.NoError(t, r.Err)
	assert.Equal(t, "claude says", r.Response.Text)
	assert.Equal(t, uint64(15), *r.Response.TotalTokens)

	assert.Equal(t, "sk-ant", headers.Get("x-api-key"))
	assert.Equal(t, anthropicVersion, headers.Get("anthropic-version"))
	assert.Equal(t, "INSTRUCTIONS", got["system"])
	assert.Equal(t, []any{
		map[string]any{"role": "user", "content": []any{
			map[string]any{"type": "text", "text": "DIFF\n\nMESSAGE"},
		}},
	}, got["messages"])
}

func TestAnthropicWithoutTextBlock(t *testing.T) {
	srv := jsonServer(t, `{"content": [{"type": "thinking"}]}`, nil, nil)
	c, _ := newTestClient(t, config.Endpoint{
		URL:      srv.URL,
		Retries:  1,
		Protocol: &config.Anthropic{},
	})

	r := c.Query(context.Background(), testRequest)[0][0]
	var protoErr *ProtocolError
	require.ErrorAs(t, r.Err, &protoErr)
	assert.Contains(t, protoErr.Reason, "text")
}

func TestPatchpal(t *testing.T) {
	var got map[string]any
	srv := jsonServer(t, `{"jsonrpc": "2.0", "result": [["first\n", 0.9], ["second\n", 0.1]]}`, &got, nil)

	c, _ := newTestClient(t, config.Endpoint{Name: "Patchpal", URL: srv.URL, Protocol: &config.Patchpal{}})

	results := c.Query(context.Background(), testRequest)
	require.Len(t, results, 1)
	require.Len(t, results[0], 2)
	assert.Equal(t, "Patchpal", results[0][0].Label)
	assert.Equal(t, "Patchpal #2", results[0][1].Label)
	assert.Equal(t, "<|patched_code_start|>\nfirst\n<|patched_code_end|>", results[0][0].Response.Text)
	assert.InDelta(t, 90, LogprobToProb(*results[0][0].Response.Logprob), 1e-9)
	assert.InDelta(t, 10, LogprobToProb(*results[0][1].Response.Logprob), 1e-9)

	assert.Equal(t, map[string]any{
		"jsonrpc": "2.0",
		"method":  "inference",
		"params":  map[string]any{"patch": "PATCH", "code": "CODE"},
	}, got)
}

func TestPatchpalRejectsWrongVersion(t *testing.T) {
	srv := jsonServer(t, `{"jsonrpc": "1.0", "result": [["x", 1]]}`, nil, nil)
	c, sleeps := newTestClient(t, config.Endpoint{URL: srv.URL, Retries: 2, Delay: 1, MaxDelay: 1, Protocol: &config.Patchpal{}})

	r := c.Query(context.Background(), testRequest)[0][0]
	var protoErr *ProtocolError
	require.ErrorAs(t, r.Err, &protoErr)
	assert.Contains(t, protoErr.Reason, "jsonrpc")
	assert.Equal(t, []time.Duration{time.Millisecond}, *sleeps)
}

func TestOllamaChat(t *testing.T) {
	var got map[string]any
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, sonic.ConfigStd.Unmarshal(body, &got))
		_, _ = io.WriteString(w, `{"model":"coder","message":{"role":"assistant","content":"from ollama"},"done":true,"prompt_eval_count":30,"eval_count":12}`+"\n")
	}))
	t.Cleanup(srv.Close)

	c, _ := newTestClient(t, config.Endpoint{
		URL:      srv.URL,
		JSON:     map[string]any{"model": "coder", "keep_alive": "5m", "temperature": 0.2},
		Protocol: &config.Ollama{},
	})

	r := c.Query(context.Background(), testRequest)[0][0]
	require.NoError(t, r.Err)
	assert.Equal(t, "/api/chat", path)
	assert.Equal(t, "from ollama", r.Response.Text)
	assert.Equal(t, uint64(42), *r.Response.TotalTokens)
	assert.Equal(t, "coder", got["model"])
	assert.Equal(t, false, got["stream"])
	assert.Equal(t, map[string]any{"temperature": 0.2}, got["options"])
}

func TestOllamaNeedsModel(t *testing.T) {
	_, err := NewClient(&config.Endpoint{Name: "o", URL: "http://localhost:11434", Protocol: &config.Ollama{}})
	assert.Error(t, err)
}

func TestTimeoutIsNotRetried(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	c, sleeps := newTestClient(t, config.Endpoint{URL: srv.URL, Retries: 5, Delay: 10, MaxDelay: 30, Protocol: &config.OpenAI{}})
	c.http.Timeout = 50 * time.Millisecond

	r := c.Query(context.Background(), testRequest)[0][0]
	require.Error(t, r.Err)
	assert.True(t, IsTimeout(r.Err))
	assert.Equal(t, int32(1), attempts.Load())
	assert.Empty(t, *sleeps)
}

func TestTransportErrorBacksOff(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	c, sleeps := newTestClient(t, config.Endpoint{URL: srv.URL, Retries: 3, Delay: 10, MaxDelay: 30, Protocol: &config.OpenAI{}})

	r := c.Query(context.Background(), testRequest)[0][0]
	var transportErr *TransportError
	require.ErrorAs(t, r.Err, &transportErr)
	assert.Equal(t, http.StatusServiceUnavailable, transportErr.StatusCode)
	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, *sleeps)
}

func TestConnectionRefusedBacksOff(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, sleeps := newTestClient(t, config.Endpoint{URL: url, Retries: 3, Delay: 10, MaxDelay: 30, Protocol: &config.Anthropic{}})

	r := c.Query(context.Background(), testRequest)[0][0]
	var transportErr *TransportError
	require.ErrorAs(t, r.Err, &transportErr)
	assert.Zero(t, transportErr.StatusCode)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, *sleeps)
}

func TestRetryRecoversAndWaits(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			_, _ = io.WriteString(w, `{"choices": [`)
			return
		}
		_, _ = io.WriteString(w, `{"choices": [{"message": {"content": "ok"}}]}`)
	}))
	t.Cleanup(srv.Close)

	c, sleeps := newTestClient(t, config.Endpoint{
		URL: srv.URL, Retries: 3, Delay: 10, MaxDelay: 30, Wait: 7,
		Protocol: &config.OpenAI{Variants: []config.Variant{{Name: "a"}, {Name: "b"}}},
	})

	results := c.Query(context.Background(), testRequest)
	require.Len(t, results, 2)
	assert.Equal(t, "test (a)", results[0][0].Label)
	assert.Equal(t, "test (b)", results[1][0].Label)
	for _, variant := range results {
		require.NoError(t, variant[0].Err)
		assert.Equal(t, "ok", variant[0].Response.Text)
	}
	// one retry after the truncated body, then the wait after each success
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 7 * time.Millisecond, 7 * time.Millisecond}, *sleeps)
	assert.Equal(t, []string{"test (a)", "test (b)"}, c.Labels())
}

func TestLabels(t *testing.T) {
	assert.Equal(t, "X", BeamLabel("X", 0))
	assert.Equal(t, "X (v) #2", BeamLabel("X (v)", 1))
	assert.Equal(t, "X #2 $3", MultiLabel(BeamLabel("X", 1), 2))
	assert.Equal(t, "X", MultiLabel("X", 0))
}
