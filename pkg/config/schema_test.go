package config

import (
	"encoding/json"
	"testing"
)

func TestJSONSchema(t *testing.T) {
	data, err := JSONSchema()
	if err != nil {
		t.Fatalf("JSONSchema failed: %v", err)
	}

	var schema struct {
		Title      string                     `json:"title"`
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(data, &schema); err != nil {
		t.Fatalf("Schema is not valid JSON: %v", err)
	}

	if schema.Title != "pgstate configuration" {
		t.Errorf("Unexpected title %q", schema.Title)
	}
	for _, key := range []string{"logging", "telemetry", "server", "database", "metrics", "api"} {
		if _, ok := schema.Properties[key]; !ok {
			t.Errorf("Schema missing top-level property %q", key)
		}
	}
}
