package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/pathoprompt/internal/harness"
	"github.com/jackzampolin/pathoprompt/internal/llmcall"
	"github.com/jackzampolin/pathoprompt/internal/output"
)

var (
	compareEvidence evidenceFlags
	compareOut      string
	compareFull     bool
)

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Run every technique against the same evidence",
	Long: `Run all seven prompting techniques against one evidence value, score how
many produced a valid report, and write the full comparison to
<out>/comparison_<unix>.json.

Examples:
  pathoprompt compare --evidence sample.json
  pathoprompt compare --taxon SARS-CoV-2=0.65 --taxon Human=0.30 --ood-rate 0.04
  pathoprompt compare --evidence sample.yaml --provider anthropic --out ./runs`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ev, err := compareEvidence.load(cmd)
		if err != nil {
			return err
		}
		s, techniques, err := buildTechniques(cmd)
		if err != nil {
			return err
		}

		defaults := s.Config.Get().Defaults
		outDir := compareOut
		if outDir == "" {
			outDir = defaults.OutputDir
		}
		if outDir == "" {
			if err := s.Home.EnsureExists(); err != nil {
				return err
			}
			outDir = s.Home.RunsPath()
		}

		h := harness.New(techniques, outDir, s.Logger)
		h.Concurrency = defaults.MaxParallel

		run, err := h.RunAll(cmd.Context(), ev)
		if compareFull {
			if perr := output.Print(run); perr != nil {
				return perr
			}
		} else {
			if perr := output.Print(newCompareView(run)); perr != nil {
				return perr
			}
		}
		return err
	},
}

func init() {
	compareEvidence.register(compareCmd)
	addProviderFlag(compareCmd)
	compareCmd.Flags().StringVar(&compareOut, "out", "", "output directory (default: defaults.output_dir or ~/.pathoprompt/runs)")
	compareCmd.Flags().BoolVar(&compareFull, "full", false, "print the full run instead of the summary")
	rootCmd.AddCommand(compareCmd)
}

// compareView is the condensed compare output.
type compareView struct {
	RunID      string            `json:"run_id"`
	Artifact   string            `json:"artifact,omitempty"`
	Results    string            `json:"results"`
	Summary    harness.Summary   `json:"summary"`
	Techniques []techniqueResult `json:"techniques"`

	// Calls totals every generation call in the run.
	Calls       llmcall.Stats  `json:"calls"`
	PromptCalls map[string]int `json:"prompt_calls,omitempty"`
}

type techniqueResult struct {
	Name     string   `json:"name"`
	Valid    bool     `json:"valid"`
	Outcome  string   `json:"outcome,omitempty"`
	Summary  string   `json:"summary,omitempty"`
	LatencyS float64  `json:"latency_s"`
	Errors   []string `json:"errors,omitempty"`

	Calls *llmcall.Stats `json:"calls,omitempty"`
}

func newCompareView(run *harness.Run) compareView {
	v := compareView{
		RunID:    run.RunID,
		Artifact: run.ArtifactPath,
		Summary:  run.Summary,
		Results:  resultsLine(run.Summary),
	}
	var all []llmcall.Call
	for _, r := range run.Runs {
		tr := techniqueResult{Name: r.Name}
		if r.Result == nil {
			tr.Errors = []string{r.Error}
		} else {
			tr.Valid = r.Result.Valid
			tr.Outcome = string(r.Result.Outcome)
			tr.LatencyS = r.Result.LatencyS
			tr.Errors = r.Result.Errors
			if r.Result.Report != nil {
				tr.Summary = r.Result.Report.Summary
			}
			if len(r.Result.Calls) > 0 {
				stats := llmcall.Summarize(r.Result.Calls)
				tr.Calls = &stats
				all = append(all, r.Result.Calls...)
			}
		}
		v.Techniques = append(v.Techniques, tr)
	}
	v.Calls = llmcall.Summarize(all)
	if len(all) > 0 {
		v.PromptCalls = llmcall.CountByPromptKey(all)
	}
	return v
}

func resultsLine(s harness.Summary) string {
	return fmt.Sprintf("%d/%d techniques succeeded", s.ValidTechniques, s.TotalTechniques)
}
