package providers

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const MockClientName = "mock"

// Canned reports returned by the keyword responder.
const (
	MockSARSCoV2Response     = `{"summary": "SARS-CoV-2 detected with moderate confidence", "known_pathogens": [{"taxon": "SARS-CoV-2", "confidence": 0.65}], "ood_rate": 0.04, "caveats": ["Single sample", "Confirmation needed"]}`
	MockInconclusiveResponse = `{"summary": "Inconclusive - insufficient evidence", "known_pathogens": [], "ood_rate": 0.2, "caveats": ["Low confidence scores", "High OOD rate"]}`
	MockGenericResponse      = `{"summary": "Mock analysis result", "known_pathogens": [{"taxon": "Test pathogen", "confidence": 0.4}], "ood_rate": 0.08, "caveats": ["Mock response", "Replace with real analysis"]}`
)

// MockClient is an LLMClient that never leaves the process. It backs offline
// runs and tests.
//
// Response selection, first match wins: Respond, the scripted Responses
// queue, ResponseText, then the keyword responder.
type MockClient struct {
	Latency    time.Duration
	ShouldFail bool
	FailAfter  int // Fail after N requests (0 = never)

	// Respond, when set, computes the reply for each request.
	Respond func(req *ChatRequest) (string, error)

	// Responses are returned in order; the last one repeats once exhausted.
	Responses []string

	ResponseText string

	requestCount atomic.Int64

	mu       sync.Mutex
	requests []ChatRequest
}

// NewMockClient creates a mock client that answers with canned reports.
func NewMockClient() *MockClient {
	return &MockClient{
		Latency: 10 * time.Millisecond,
	}
}

// Name returns the client identifier.
func (c *MockClient) Name() string {
	return MockClientName
}

// Chat returns a mock response after the configured latency.
func (c *MockClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()
	count := c.requestCount.Add(1)

	c.mu.Lock()
	c.requests = append(c.requests, cloneRequest(req))
	c.mu.Unlock()

	result := &ChatResult{
		RequestID: fmt.Sprintf("mock-%d", count),
		Provider:  MockClientName,
		ModelUsed: req.Model,
		Mock:      true,
		Attempts:  1,
	}

	if c.ShouldFail {
		return failed(result, start, "mock_failure", fmt.Errorf("mock client configured to fail"))
	}
	if c.FailAfter > 0 && int(count) > c.FailAfter {
		return failed(result, start, "mock_failure", fmt.Errorf("mock client failed after %d requests", c.FailAfter))
	}

	ctx, cancel := withRequestTimeout(ctx, req)
	defer cancel()

	select {
	case <-time.After(c.Latency):
	case <-ctx.Done():
		return failed(result, start, "context_cancelled", ctx.Err())
	}

	content, err := c.reply(req, int(count))
	if err != nil {
		return failed(result, start, "mock_failure", err)
	}

	result.Success = true
	result.Content = content
	result.ExecutionTime = time.Since(start)
	result.TotalTime = result.ExecutionTime

	promptTokens := 0
	for _, m := range req.Messages {
		promptTokens += len(m.Content) / 4 // Rough estimate
	}
	result.PromptTokens = promptTokens
	result.CompletionTokens = len(content) / 4
	result.TotalTokens = result.PromptTokens + result.CompletionTokens

	return result, nil
}

func (c *MockClient) reply(req *ChatRequest, count int) (string, error) {
	switch {
	case c.Respond != nil:
		return c.Respond(req)
	case len(c.Responses) > 0:
		idx := min(count-1, len(c.Responses)-1)
		return c.Responses[idx], nil
	case c.ResponseText != "":
		return c.ResponseText, nil
	default:
		return KeywordResponse(req.Messages), nil
	}
}

// KeywordResponse picks a canned report from the message text: SARS-CoV-2
// evidence gets a detection, anything mentioning "inconclusive" or "low"
// gets an inconclusive report, everything else a generic one.
func KeywordResponse(messages []Message) string {
	parts := make([]string, len(messages))
	for i, m := range messages {
		parts[i] = m.Content
	}
	content := strings.ToLower(strings.Join(parts, " "))

	switch {
	case strings.Contains(content, "sars-cov-2"):
		return MockSARSCoV2Response
	case strings.Contains(content, "inconclusive"), strings.Contains(content, "low"):
		return MockInconclusiveResponse
	default:
		return MockGenericResponse
	}
}

// RequestCount returns the number of requests made.
func (c *MockClient) RequestCount() int64 {
	return c.requestCount.Load()
}

// Requests returns a copy of every request received, in arrival order.
func (c *MockClient) Requests() []ChatRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ChatRequest, len(c.requests))
	copy(out, c.requests)
	return out
}

func cloneRequest(req *ChatRequest) ChatRequest {
	out := *req
	out.Messages = append([]Message(nil), req.Messages...)
	return out
}

// Verify interface
var _ LLMClient = (*MockClient)(nil)
