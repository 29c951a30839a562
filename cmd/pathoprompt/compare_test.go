package main

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jackzampolin/pathoprompt/internal/harness"
	"github.com/jackzampolin/pathoprompt/internal/llmcall"
	"github.com/jackzampolin/pathoprompt/internal/prompts"
	"github.com/jackzampolin/pathoprompt/internal/report"
	"github.com/jackzampolin/pathoprompt/internal/technique"
)

func TestNewCompareView(t *testing.T) {
	draft := llmcall.Call{PromptKey: prompts.CritiqueDraftKey, Success: true, Mock: true, InputTokens: 10, OutputTokens: 5, LatencyMs: 20}
	revise := llmcall.Call{PromptKey: prompts.CritiqueReviseKey, Success: true, Mock: true, InputTokens: 30, OutputTokens: 7, LatencyMs: 40}
	failed := llmcall.Call{PromptKey: prompts.RAGLiteKey, Error: "timeout", LatencyMs: 100}

	run := &harness.Run{
		RunID:        "run-1",
		ArtifactPath: "/tmp/runs/comparison_1.json",
		Runs: []harness.Record{
			{Name: technique.KeyCritiqueAndRevise, Result: &technique.Result{
				Valid:    true,
				Outcome:  technique.OutcomeOK,
				Report:   &report.Report{Summary: "SARS-CoV-2 detected"},
				LatencyS: 0.06,
				Calls:    []llmcall.Call{draft, revise},
			}},
			{Name: technique.KeyRAGLite, Result: &technique.Result{
				Outcome: technique.OutcomeFailed,
				Errors:  []string{"timeout"},
				Calls:   []llmcall.Call{failed},
			}},
			{Name: "broken", Error: "boom"},
		},
		Summary: harness.Summary{ValidTechniques: 1, TotalTechniques: 3, SuccessRate: 1.0 / 3.0},
	}

	got := newCompareView(run)

	if got.Results != "1/3 techniques succeeded" {
		t.Errorf("Results = %q", got.Results)
	}
	if got.Artifact != run.ArtifactPath {
		t.Errorf("Artifact = %q", got.Artifact)
	}

	wantTotals := llmcall.Stats{Calls: 3, Failed: 1, Mock: 2, InputTokens: 40, OutputTokens: 12, LatencyMs: 160}
	if diff := cmp.Diff(wantTotals, got.Calls); diff != "" {
		t.Errorf("Calls mismatch (-want +got):\n%s", diff)
	}
	wantPrompts := map[string]int{
		prompts.CritiqueDraftKey:  1,
		prompts.CritiqueReviseKey: 1,
		prompts.RAGLiteKey:        1,
	}
	if diff := cmp.Diff(wantPrompts, got.PromptCalls); diff != "" {
		t.Errorf("PromptCalls mismatch (-want +got):\n%s", diff)
	}

	if len(got.Techniques) != 3 {
		t.Fatalf("len(Techniques) = %d, want 3", len(got.Techniques))
	}
	critique := got.Techniques[0]
	if critique.Calls == nil || critique.Calls.Calls != 2 || critique.Summary != "SARS-CoV-2 detected" {
		t.Errorf("critique entry = %+v", critique)
	}
	if rag := got.Techniques[1]; rag.Calls == nil || rag.Calls.Failed != 1 {
		t.Errorf("rag entry = %+v", rag)
	}
	broken := got.Techniques[2]
	if broken.Calls != nil || broken.Valid {
		t.Errorf("broken entry = %+v", broken)
	}
	if diff := cmp.Diff([]string{"boom"}, broken.Errors); diff != "" {
		t.Errorf("broken Errors mismatch (-want +got):\n%s", diff)
	}
}

func TestTechniqueEntries(t *testing.T) {
	entries := techniqueEntries(technique.NewRegistry(nil, technique.Options{ConsensusSamples: 5}))

	if len(entries) != 7 {
		t.Fatalf("len(entries) = %d, want 7", len(entries))
	}
	var sc techniqueEntry
	for _, e := range entries {
		if e.Key == technique.KeySelfConsistency {
			sc = e
			continue
		}
		if e.Samples != 0 || e.Base != "" {
			t.Errorf("%s has sampling fields: %+v", e.Key, e)
		}
	}
	want := techniqueEntry{
		Key:                technique.KeySelfConsistency,
		Name:               technique.NameSelfConsistency,
		DefaultTemperature: technique.SamplingTemperature,
		Base:               technique.KeyRoleTaskConstraints,
		Samples:            5,
	}
	if diff := cmp.Diff(want, sc); diff != "" {
		t.Errorf("self-consistency entry mismatch (-want +got):\n%s", diff)
	}
}
