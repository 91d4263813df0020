package extract

// DefaultInstruction is the fixed instruction template submitted with every
// chunk. The schema from RecordSchema constrains the response shape; the
// instruction tells the service what to pull out of the pages.
const DefaultInstruction = "Extract every person entry printed on the attached document pages. " +
	"For each entry return name, relation_name, address, age, gender and identifier " +
	"exactly as printed, with age as an integer. " +
	"Return a JSON array of entries and nothing else. Return an empty array if the pages contain no entries."

// RecordSchema returns the JSON schema the recognition service is asked to
// satisfy: an array of records, each with the six required fields. The same
// schema is used to validate the response before it is accepted.
func RecordSchema() map[string]any {
	return map[string]any{
		"type": "array",
		"items": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name":          map[string]any{"type": "string"},
				"relation_name": map[string]any{"type": "string"},
				"address":       map[string]any{"type": "string"},
				"age":           map[string]any{"type": "integer"},
				"gender":        map[string]any{"type": "string"},
				"identifier":    map[string]any{"type": "string"},
			},
			"required": []string{
				"name",
				"relation_name",
				"address",
				"age",
				"gender",
				"identifier",
			},
			"additionalProperties": false,
		},
	}
}
