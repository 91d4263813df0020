// Package recognize validates recognition service responses against the
// fixed record schema. Client implementations live in the gemini and memory
// subpackages.
package recognize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/pagelift/pagelift/internal/extract"
)

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func recordSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		raw, err := json.Marshal(extract.RecordSchema())
		if err != nil {
			schemaErr = fmt.Errorf("marshal record schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("records.json", bytes.NewReader(raw)); err != nil {
			schemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile("records.json")
	})
	return schema, schemaErr
}

// DecodeRecords validates raw response bytes against the record schema and
// decodes them. A failure here means the service answered but violated the
// output contract, which callers classify separately from service-side
// refusals.
func DecodeRecords(raw []byte) ([]extract.Record, error) {
	sch, err := recordSchema()
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("response is not valid JSON: %w", err)
	}
	if err := sch.Validate(v); err != nil {
		return nil, fmt.Errorf("response violates record schema: %w", err)
	}
	var records []extract.Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return records, nil
}
