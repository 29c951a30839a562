package validate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/jackzampolin/pathoprompt/internal/report"
)

var compileSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(report.SchemaURL, strings.NewReader(report.Schema())); err != nil {
		return nil, fmt.Errorf("failed to load report schema: %w", err)
	}
	schema, err := compiler.Compile(report.SchemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile report schema: %w", err)
	}
	return schema, nil
})

// ValidateReportSchema checks doc against the report schema and returns one
// error string per violated constraint, formatted "<field>: <message>".
func ValidateReportSchema(doc json.RawMessage) (bool, []string) {
	schema, err := compileSchema()
	if err != nil {
		return false, []string{err.Error()}
	}

	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return false, []string{fmt.Sprintf("report: invalid JSON: %v", err)}
	}

	err = schema.Validate(v)
	if err == nil {
		return true, nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return false, []string{err.Error()}
	}
	return false, flatten(ve)
}

// flatten collects the leaf causes of a validation error in a stable order.
func flatten(ve *jsonschema.ValidationError) []string {
	var leaves []*jsonschema.ValidationError
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			leaves = append(leaves, e)
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)

	sort.SliceStable(leaves, func(i, j int) bool {
		return leaves[i].InstanceLocation < leaves[j].InstanceLocation
	})

	out := make([]string, 0, len(leaves))
	seen := make(map[string]struct{}, len(leaves))
	for _, l := range leaves {
		msg := fmt.Sprintf("%s: %s", fieldPath(l.InstanceLocation), l.Message)
		if _, ok := seen[msg]; ok {
			continue
		}
		seen[msg] = struct{}{}
		out = append(out, msg)
	}
	return out
}

// fieldPath renders a JSON pointer such as /known_pathogens/0/confidence as
// known_pathogens[0].confidence. The root is rendered as "report".
func fieldPath(pointer string) string {
	if pointer == "" || pointer == "/" {
		return "report"
	}
	var b strings.Builder
	for _, tok := range strings.Split(strings.TrimPrefix(pointer, "/"), "/") {
		tok = strings.ReplaceAll(strings.ReplaceAll(tok, "~1", "/"), "~0", "~")
		if _, err := strconv.Atoi(tok); err == nil {
			fmt.Fprintf(&b, "[%s]", tok)
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(tok)
	}
	return b.String()
}
