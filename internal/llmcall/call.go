// Package llmcall records every generation call a technique makes so results
// can be traced back to the prompt version, provider and latency behind them.
package llmcall

import (
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/pathoprompt/internal/providers"
)

// Call is one recorded generation call.
type Call struct {
	ID string `json:"id"`

	// Timing
	Timestamp time.Time `json:"timestamp"`
	LatencyMs int       `json:"latency_ms"`

	// Which technique stage issued the call
	Technique string `json:"technique"`
	Stage     string `json:"stage,omitempty"`

	// Prompt traceability
	PromptKey  string `json:"prompt_key,omitempty"`
	PromptHash string `json:"prompt_hash,omitempty"`

	// Model info
	Provider    string   `json:"provider"`
	Model       string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`

	// Token usage
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`

	Response string `json:"response,omitempty"`
	Mock     bool   `json:"mock"`

	// Status
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// RecordOptions provides context for recording a call.
type RecordOptions struct {
	Technique string
	Stage     string

	PromptKey  string
	PromptHash string

	// Provider is used when no result came back at all.
	Provider string

	// Pointer to distinguish "not set" from "set to 0"
	Temperature *float64
}

// FromChatResult builds a Call from a chat result and the error Chat returned.
// A nil result still yields a failed record so transport errors are traced.
func FromChatResult(result *providers.ChatResult, callErr error, opts RecordOptions) *Call {
	call := &Call{
		ID:          uuid.New().String(),
		Timestamp:   time.Now(),
		Technique:   opts.Technique,
		Stage:       opts.Stage,
		PromptKey:   opts.PromptKey,
		PromptHash:  opts.PromptHash,
		Provider:    opts.Provider,
		Temperature: opts.Temperature,
	}

	if result != nil {
		call.LatencyMs = int(result.ExecutionTime.Milliseconds())
		if result.Provider != "" {
			call.Provider = result.Provider
		}
		call.Model = result.ModelUsed
		call.InputTokens = result.PromptTokens
		call.OutputTokens = result.CompletionTokens
		call.Response = result.Content
		call.Mock = result.Mock
		call.Success = result.Success && callErr == nil
		if !result.Success {
			call.Error = result.ErrorMessage
		}
	}

	if callErr != nil {
		call.Success = false
		if call.Error == "" {
			call.Error = callErr.Error()
		}
	}

	return call
}
