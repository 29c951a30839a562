package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jackzampolin/pathoprompt/internal/report"
)

// evidenceFlags are shared by compare and run.
type evidenceFlags struct {
	file    string
	taxa    []string
	oodRate float64
	sample  string
}

func (f *evidenceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.file, "evidence", "", "evidence file (.json, .yaml or - for JSON on stdin)")
	cmd.Flags().StringArrayVar(&f.taxa, "taxon", nil, "taxon with confidence as NAME=CONF (repeatable)")
	cmd.Flags().Float64Var(&f.oodRate, "ood-rate", 0, "out-of-distribution rate in [0,1]")
	cmd.Flags().StringVar(&f.sample, "sample", "", "sample description")
}

// load builds Evidence from the file or the flags, and validates it.
// Flags given alongside a file override the file's values.
func (f *evidenceFlags) load(cmd *cobra.Command) (report.Evidence, error) {
	var ev report.Evidence
	if f.file != "" {
		loaded, err := readEvidenceFile(f.file, cmd.InOrStdin())
		if err != nil {
			return ev, err
		}
		ev = loaded
	}

	if len(f.taxa) > 0 {
		ev.KnownTaxa = nil
		for _, raw := range f.taxa {
			t, err := parseTaxon(raw)
			if err != nil {
				return ev, err
			}
			ev.KnownTaxa = append(ev.KnownTaxa, t)
		}
	}
	if cmd.Flags().Changed("ood-rate") {
		ev.OODRate = f.oodRate
	}
	if cmd.Flags().Changed("sample") {
		ev.SampleMeta = f.sample
	}

	if f.file == "" && len(ev.KnownTaxa) == 0 && !cmd.Flags().Changed("ood-rate") {
		return ev, fmt.Errorf("no evidence given: use --evidence or --taxon/--ood-rate")
	}
	if err := ev.Validate(); err != nil {
		return ev, err
	}
	return ev, nil
}

// readEvidenceFile decodes JSON or YAML by extension. "-" reads JSON from stdin.
func readEvidenceFile(path string, stdin io.Reader) (report.Evidence, error) {
	var ev report.Evidence

	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return ev, fmt.Errorf("read evidence: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &ev); err != nil {
			return ev, fmt.Errorf("parse evidence yaml: %w", err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&ev); err != nil {
			return ev, fmt.Errorf("parse evidence json: %w", err)
		}
	}
	return ev, nil
}

// parseTaxon parses NAME=CONF. The last '=' separates, so names may contain '='.
func parseTaxon(s string) (report.TaxonScore, error) {
	i := strings.LastIndex(s, "=")
	if i <= 0 {
		return report.TaxonScore{}, fmt.Errorf("invalid --taxon %q: want NAME=CONF", s)
	}
	name := strings.TrimSpace(s[:i])
	conf, err := strconv.ParseFloat(strings.TrimSpace(s[i+1:]), 64)
	if err != nil {
		return report.TaxonScore{}, fmt.Errorf("invalid --taxon %q: %w", s, err)
	}
	return report.TaxonScore{Taxon: name, Confidence: conf}, nil
}
