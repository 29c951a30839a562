package llmcall

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jackzampolin/pathoprompt/internal/providers"
)

func TestFromChatResult(t *testing.T) {
	temp := 0.3

	t.Run("success", func(t *testing.T) {
		result := &providers.ChatResult{
			Content:          `{"summary": "x"}`,
			PromptTokens:     12,
			CompletionTokens: 5,
			ExecutionTime:    1500 * time.Millisecond,
			Provider:         "mock",
			ModelUsed:        "m",
			Mock:             true,
			Success:          true,
		}
		call := FromChatResult(result, nil, RecordOptions{
			Technique:   "rag_lite",
			PromptKey:   "techniques.rag_lite",
			PromptHash:  "abc",
			Temperature: &temp,
		})

		if call.ID == "" {
			t.Error("expected call ID")
		}
		if call.LatencyMs != 1500 {
			t.Errorf("LatencyMs = %d, want 1500", call.LatencyMs)
		}
		if !call.Success || call.Error != "" {
			t.Errorf("Success = %v, Error = %q", call.Success, call.Error)
		}
		if !call.Mock {
			t.Error("expected Mock")
		}
		if call.Temperature == nil || *call.Temperature != 0.3 {
			t.Errorf("Temperature = %v", call.Temperature)
		}
		if call.InputTokens != 12 || call.OutputTokens != 5 {
			t.Errorf("tokens = %d/%d", call.InputTokens, call.OutputTokens)
		}
	})

	t.Run("failed result", func(t *testing.T) {
		result := &providers.ChatResult{Provider: "openrouter", ErrorMessage: "status 500"}
		call := FromChatResult(result, errors.New("status 500"), RecordOptions{})
		if call.Success {
			t.Error("expected failure")
		}
		if call.Error != "status 500" {
			t.Errorf("Error = %q", call.Error)
		}
	})

	t.Run("nil result", func(t *testing.T) {
		call := FromChatResult(nil, errors.New("dial tcp: refused"), RecordOptions{Provider: "openai", Stage: "draft"})
		if call.Success {
			t.Error("expected failure")
		}
		if call.Provider != "openai" || call.Stage != "draft" {
			t.Errorf("Provider = %q, Stage = %q", call.Provider, call.Stage)
		}
		if call.Error != "dial tcp: refused" {
			t.Errorf("Error = %q", call.Error)
		}
	})
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	if got := r.Calls(); got != nil {
		t.Errorf("Calls() = %v, want nil", got)
	}

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Record(&providers.ChatResult{Success: true, Provider: "mock"}, nil, RecordOptions{})
		}()
	}
	wg.Wait()

	calls := r.Calls()
	if len(calls) != 10 {
		t.Fatalf("len(Calls()) = %d, want 10", len(calls))
	}
	calls[0].Provider = "changed"
	if r.Calls()[0].Provider != "mock" {
		t.Error("Calls() should return a copy")
	}

	var nilRec *Recorder
	nilRec.RecordCall(Call{})
	if nilRec.Calls() != nil {
		t.Error("nil recorder should hold no calls")
	}
}

func TestSummarize(t *testing.T) {
	calls := []Call{
		{PromptKey: "a", Success: true, Mock: true, InputTokens: 10, OutputTokens: 2, LatencyMs: 100},
		{PromptKey: "a", Success: false, InputTokens: 5, LatencyMs: 50},
		{PromptKey: "b", Success: true, OutputTokens: 7, LatencyMs: 25},
	}

	want := Stats{Calls: 3, Failed: 1, Mock: 1, InputTokens: 15, OutputTokens: 9, LatencyMs: 175}
	if diff := cmp.Diff(want, Summarize(calls)); diff != "" {
		t.Errorf("Summarize() mismatch (-want +got):\n%s", diff)
	}

	wantCounts := map[string]int{"a": 2, "b": 1}
	if diff := cmp.Diff(wantCounts, CountByPromptKey(calls)); diff != "" {
		t.Errorf("CountByPromptKey() mismatch (-want +got):\n%s", diff)
	}
}
