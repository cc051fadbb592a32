// Package seed loads workflow definitions from a YAML file.
package seed

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/gosimple/slug"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/techwithparamesh/agent-app-sub006/pkg/domain"
)

//go:embed schema.json
var seedSchemaJSON string

var seedSchema = jsonschema.MustCompileString("seed.schema.json", seedSchemaJSON)

type seedFile struct {
	Workflows []domain.Workflow `json:"workflows"`
}

// LoadWorkflows reads a YAML document with a top level "workflows" list. Keys
// follow the JSON names of domain.Workflow and domain.Node.
func LoadWorkflows(path string) ([]domain.Workflow, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	return ParseWorkflows(raw)
}

// ParseWorkflows validates the document against the seed schema before decoding.
// Workflows without an id get one derived from their name.
func ParseWorkflows(raw []byte) ([]domain.Workflow, error) {
	var document map[string]any

	if err := yaml.Unmarshal(raw, &document); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	documentJSON, err := json.Marshal(document)
	if err != nil {
		return nil, fmt.Errorf("failed to convert seed file: %w", err)
	}

	var generic any
	if err := json.Unmarshal(documentJSON, &generic); err != nil {
		return nil, fmt.Errorf("failed to convert seed file: %w", err)
	}

	if err := seedSchema.Validate(generic); err != nil {
		return nil, fmt.Errorf("seed file does not match schema: %w", err)
	}

	var file seedFile
	if err := json.Unmarshal(documentJSON, &file); err != nil {
		return nil, fmt.Errorf("invalid workflow in seed file: %w", err)
	}

	seen := map[string]int{}

	for i := range file.Workflows {
		workflow := &file.Workflows[i]

		if workflow.ID == "" {
			workflow.ID = slug.Make(workflow.Name)
		}

		if workflow.ID == "" {
			return nil, fmt.Errorf("workflow #%d in seed file has no id", i)
		}

		if previous, ok := seen[workflow.ID]; ok {
			return nil, fmt.Errorf("workflow #%d in seed file reuses id %s of workflow #%d", i, workflow.ID, previous)
		}

		seen[workflow.ID] = i
	}

	return file.Workflows, nil
}
