// Package config loads workflow documents from disk.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/iotlinker/automation/pkg/models"
	"gopkg.in/yaml.v3"
)

// ErrPathRequired is returned when no workflow file was given.
var ErrPathRequired = errors.New("workflow file argument is required")

// LoadWorkflow reads a workflow document. Files ending in .yaml or .yml are parsed as
// YAML with the same field names as the JSON form; anything else is parsed as JSON.
// Nodes without a category get the one encoded in their type prefix.
func LoadWorkflow(path string) (*models.Workflow, error) {
	if path == "" {
		return nil, ErrPathRequired
	}

	data, err := os.ReadFile(path) // #nosec G304 -- path is the operator's own argument
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file %s: %w", path, err)
	}

	workflow, err := ParseWorkflow(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("failed to parse workflow file %s: %w", path, err)
	}

	return workflow, nil
}

// ParseWorkflow decodes data according to the file extension ext (".json", ".yaml", ".yml").
func ParseWorkflow(data []byte, ext string) (*models.Workflow, error) {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		var document map[string]any
		if err := yaml.Unmarshal(data, &document); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}

		converted, err := json.Marshal(document)
		if err != nil {
			return nil, err
		}

		data = converted
	}

	var workflow models.Workflow
	if err := json.Unmarshal(data, &workflow); err != nil {
		return nil, fmt.Errorf("failed to decode workflow: %w", err)
	}

	for _, node := range workflow.Nodes {
		if node == nil {
			continue
		}

		if node.Category == "" {
			node.Category = node.TypeCategory()
		}
	}

	return &workflow, nil
}
