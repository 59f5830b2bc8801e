package validation

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/arionlabs/arion/pkg/models"
)

// nodeConfigSchemas holds the JSON schema for each node kind's config
// document. Kinds without an entry accept any config.
var nodeConfigSchemas = map[models.NodeKind]map[string]any{
	models.KindForm: {
		"type": "object",
		"properties": map[string]any{
			"fields": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":     "object",
					"required": []any{"name"},
					"properties": map[string]any{
						"name":     map[string]any{"type": "string"},
						"type":     map[string]any{"type": "string"},
						"required": map[string]any{"type": "boolean"},
					},
				},
			},
		},
	},
	models.KindCondition: {
		"type":     "object",
		"required": []any{"expression"},
		"properties": map[string]any{
			"expression": map[string]any{"type": "string", "minLength": 1},
		},
	},
	models.KindLoop: {
		"type":     "object",
		"required": []any{"collection"},
		"properties": map[string]any{
			"collection":     map[string]any{"type": "string", "minLength": 1},
			"max_iterations": map[string]any{"type": "integer", "minimum": 1},
		},
	},
	models.KindParallel: {
		"type":     "object",
		"required": []any{"join"},
		"properties": map[string]any{
			"join": map[string]any{"type": "string", "minLength": 1},
		},
	},
	models.KindDelay: {
		"type":     "object",
		"required": []any{"duration", "unit"},
		"properties": map[string]any{
			"duration": map[string]any{"type": "number", "exclusiveMinimum": 0},
			"unit": map[string]any{
				"type": "string",
				"enum": []any{"seconds", "minutes", "hours", "days"},
			},
		},
	},
	models.KindApproval: {
		"type":     "object",
		"required": []any{"assignee"},
		"properties": map[string]any{
			"assignee": map[string]any{
				"type":     "object",
				"required": []any{"type"},
			},
			"timeout": map[string]any{
				"type":     "object",
				"required": []any{"duration", "unit"},
				"properties": map[string]any{
					"duration": map[string]any{"type": "number", "exclusiveMinimum": 0},
					"unit": map[string]any{
						"type": "string",
						"enum": []any{"seconds", "minutes", "hours", "days"},
					},
				},
			},
			"chain_fallback": map[string]any{
				"type":     "object",
				"required": []any{"type"},
			},
		},
	},
	models.KindNotification: {
		"type":     "object",
		"required": []any{"recipients", "message"},
		"properties": map[string]any{
			"recipients":    map[string]any{"type": "array", "minItems": 1},
			"subject":       map[string]any{"type": "string"},
			"message":       map[string]any{"type": "string", "minLength": 1},
			"channel":       map[string]any{"type": "string"},
			"fail_on_error": map[string]any{"type": "boolean"},
		},
	},
	models.KindAITask: {
		"type":     "object",
		"required": []any{"prompt"},
		"properties": map[string]any{
			"prompt":        map[string]any{"type": "string", "minLength": 1},
			"instructions":  map[string]any{"type": "string"},
			"confidence":    map[string]any{"type": "string"},
			"strict_output": map[string]any{"type": "boolean"},
			"output_fields": map[string]any{"type": "array"},
		},
	},
	models.KindTool: {
		"type":     "object",
		"required": []any{"tool"},
		"properties": map[string]any{
			"tool":   map[string]any{"type": "string", "minLength": 1},
			"params": map[string]any{"type": "object"},
		},
	},
	models.KindCallProcess: {
		"type":     "object",
		"required": []any{"definition_id"},
		"properties": map[string]any{
			"definition_id":       map[string]any{"type": "string", "minLength": 1},
			"input":               map[string]any{"type": "object"},
			"continue_on_failure": map[string]any{"type": "boolean"},
		},
	},
}

// ValidateNodeConfig checks a node's config document against the JSON schema
// for its kind.
func ValidateNodeConfig(kind models.NodeKind, config map[string]any) error {
	schema, ok := nodeConfigSchemas[kind]
	if !ok {
		return nil
	}

	if config == nil {
		config = map[string]any{}
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(config)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("schema validation for %s node: %w", kind, err)
	}

	if !result.Valid() {
		descs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			descs = append(descs, desc.String())
		}

		return fmt.Errorf("invalid %s node config: %s", kind, strings.Join(descs, "; "))
	}

	return nil
}

// ValidateNodeConfigs runs ValidateNodeConfig over every node of a
// definition. Called at publish time together with ValidateDefinition.
func ValidateNodeConfigs(def *models.ProcessDefinition) error {
	for _, n := range def.Nodes {
		if err := ValidateNodeConfig(n.Kind, n.Config); err != nil {
			return &DefinitionError{DefinitionID: def.ID, NodeID: n.ID, Msg: err.Error()}
		}
	}

	return nil
}
