package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/pathoprompt/internal/harness"
	"github.com/jackzampolin/pathoprompt/internal/home"
	"github.com/jackzampolin/pathoprompt/internal/output"
)

var runsCmd = &cobra.Command{
	Use:   "runs [artifact]",
	Short: "List saved comparison runs, or show one",
	Long: `Without arguments, list the comparison artifacts in ~/.pathoprompt/runs with
their scores. With an artifact name or path, print that run.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := home.New(homeDir)
		if err != nil {
			return err
		}

		if len(args) == 1 {
			path := args[0]
			if filepath.Base(path) == path {
				if _, err := os.Stat(path); err != nil {
					path = filepath.Join(h.RunsPath(), path)
				}
			}
			run, err := readArtifact(path)
			if err != nil {
				return err
			}
			return output.Print(run)
		}

		paths, err := h.Artifacts()
		if err != nil {
			return err
		}
		entries := make([]runEntry, 0, len(paths))
		for _, p := range paths {
			run, err := readArtifact(p)
			if err != nil {
				entries = append(entries, runEntry{Artifact: filepath.Base(p), Error: err.Error()})
				continue
			}
			entries = append(entries, runEntry{
				Artifact:  filepath.Base(p),
				RunID:     run.RunID,
				StartedAt: run.StartedAt.Format("2006-01-02 15:04:05"),
				Results:   resultsLine(run.Summary),
			})
		}
		return output.Print(map[string]any{"runs": entries})
	},
}

type runEntry struct {
	Artifact  string `json:"artifact"`
	RunID     string `json:"run_id,omitempty"`
	StartedAt string `json:"started_at,omitempty"`
	Results   string `json:"results,omitempty"`
	Error     string `json:"error,omitempty"`
}

func readArtifact(path string) (*harness.Run, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	var run harness.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("parse artifact %s: %w", filepath.Base(path), err)
	}
	return &run, nil
}

func init() {
	rootCmd.AddCommand(runsCmd)
}
