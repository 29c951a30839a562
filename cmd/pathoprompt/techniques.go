package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/pathoprompt/internal/output"
	"github.com/jackzampolin/pathoprompt/internal/prompts"
	"github.com/jackzampolin/pathoprompt/internal/technique"
)

var techniquesShowPrompts bool

var techniquesCmd = &cobra.Command{
	Use:   "techniques",
	Short: "List the available techniques",
	Long: `List every technique in comparison order with its default temperature.
Self-Consistency also shows the technique it samples and the sample count,
which follow defaults.consensus_samples.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadServices(cmd)
		if err != nil {
			return err
		}
		opts := techniqueOptions(s.Config.Get().Defaults, s)
		entries := techniqueEntries(technique.NewRegistry(nil, opts))
		if !techniquesShowPrompts {
			return output.Print(entries)
		}
		return output.Print(map[string]any{
			"techniques": entries,
			"prompts":    prompts.Default().All(),
		})
	},
}

type techniqueEntry struct {
	Key                string  `json:"key"`
	Name               string  `json:"name"`
	DefaultTemperature float64 `json:"default_temperature"`
	Base               string  `json:"base,omitempty"`
	Samples            int     `json:"samples,omitempty"`
}

func techniqueEntries(techniques []technique.Technique) []techniqueEntry {
	entries := make([]techniqueEntry, 0, len(techniques))
	for _, t := range techniques {
		e := techniqueEntry{
			Key:                t.Key(),
			Name:               t.Name(),
			DefaultTemperature: t.DefaultTemperature(),
		}
		if sc, ok := t.(*technique.SelfConsistency); ok {
			e.Base = sc.Base().Key()
			e.Samples = sc.Samples()
		}
		entries = append(entries, e)
	}
	return entries
}

func init() {
	techniquesCmd.Flags().BoolVar(&techniquesShowPrompts, "prompts", false, "include prompt templates and their hashes")
	rootCmd.AddCommand(techniquesCmd)
}
