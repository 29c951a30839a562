package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/pathoprompt/internal/output"
	"github.com/jackzampolin/pathoprompt/internal/report"
	"github.com/jackzampolin/pathoprompt/internal/validate"
)

var validateSchema bool

var validateCmd = &cobra.Command{
	Use:   "validate [file|-]",
	Short: "Extract and validate a report from raw model output",
	Long: `Run raw generated text through the response validator: find the first JSON
object, check it against the report schema and print the outcome. Text without
any JSON object yields the inconclusive fallback report.

Reads stdin when no file is given or the file is "-".

Examples:
  pathoprompt validate response.txt
  echo '{"summary": "x"}' | pathoprompt validate
  pathoprompt validate --schema`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if validateSchema {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), report.Schema())
			return err
		}

		var data []byte
		var err error
		if len(args) == 0 || args[0] == "-" {
			data, err = io.ReadAll(cmd.InOrStdin())
		} else {
			data, err = os.ReadFile(args[0])
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}

		v := validate.ExtractAndValidate(string(data))
		return output.Print(validationView{
			Valid:    v.Valid,
			Degraded: v.Degraded,
			Errors:   v.Errors,
			Report:   v.Report,
			Document: v.Document,
		})
	},
}

type validationView struct {
	Valid    bool            `json:"valid"`
	Degraded bool            `json:"degraded"`
	Errors   []string        `json:"errors,omitempty"`
	Report   *report.Report  `json:"report"`
	Document json.RawMessage `json:"document,omitempty"`
}

func init() {
	validateCmd.Flags().BoolVar(&validateSchema, "schema", false, "print the report JSON schema and exit")
	rootCmd.AddCommand(validateCmd)
}
