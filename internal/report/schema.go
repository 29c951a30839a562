package report

import (
	"bytes"
	_ "embed"
	"encoding/json"
)

// SchemaURL is the resource name the schema is compiled under.
const SchemaURL = "report.schema.json"

//go:embed schema.json
var schemaJSON []byte

// Schema returns the canonical report JSON schema, pretty-printed.
func Schema() string {
	return string(schemaJSON)
}

// CompactSchema returns the report schema on a single line.
func CompactSchema() string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, schemaJSON); err != nil {
		return string(schemaJSON)
	}
	return buf.String()
}
