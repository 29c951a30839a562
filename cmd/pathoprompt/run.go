package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/pathoprompt/internal/output"
	"github.com/jackzampolin/pathoprompt/internal/technique"
)

var (
	runEvidence    evidenceFlags
	runTemperature float64
)

var runCmd = &cobra.Command{
	Use:   "run <technique>",
	Short: "Run a single technique",
	Long: `Run one technique against the evidence and print its result, including the
raw generated text, the validated report and the call trace.

Examples:
  pathoprompt run role_task_constraints --evidence sample.json
  pathoprompt run self_consistency --taxon SARS-CoV-2=0.65 --temperature 0.9`,
	Args: cobra.ExactArgs(1),
	ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return technique.Keys(technique.NewRegistry(nil, technique.Options{})), cobra.ShellCompDirectiveNoFileComp
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ev, err := runEvidence.load(cmd)
		if err != nil {
			return err
		}
		_, techniques, err := buildTechniques(cmd)
		if err != nil {
			return err
		}
		t, err := technique.Lookup(techniques, args[0])
		if err != nil {
			return err
		}

		temperature := t.DefaultTemperature()
		if cmd.Flags().Changed("temperature") {
			temperature = runTemperature
		}

		res := t.Run(cmd.Context(), ev, temperature)
		return output.Print(res)
	},
}

func init() {
	runEvidence.register(runCmd)
	addProviderFlag(runCmd)
	runCmd.Flags().Float64Var(&runTemperature, "temperature", 0, "sampling temperature (default: the technique's own)")
	rootCmd.AddCommand(runCmd)
}
