package tools

import (
	openai "github.com/sashabaranov/go-openai"
)

// Definitions returns the OpenAI function-tool definitions for the closed
// operation set, in the shape the engine client passes on each invocation.
func Definitions() []openai.Tool {
	defs := []struct {
		name        string
		description string
		params      map[string]any
	}{
		{
			name:        OpListSprintItems,
			description: "Retrieve all sprint items and sprint analysis data.",
			params:      objectSchema(nil, nil),
		},
		{
			name:        OpGetSprintItem,
			description: "Get one sprint item by its id (e.g. 's1_item_1').",
			params: objectSchema(map[string]any{
				"item_id": map[string]any{"type": "string", "description": "Sprint item id"},
			}, []string{"item_id"}),
		},
		{
			name:        OpUpdateSprintItem,
			description: "Update a sprint item's status and optionally its notes.",
			params: objectSchema(map[string]any{
				"item_id": map[string]any{"type": "string", "description": "Sprint item id"},
				"status": map[string]any{
					"type": "string",
					"enum": []string{"pending", "in_progress", "completed", "design_completed", "execute_completed", "report_completed", "learn_completed"},
				},
				"notes": map[string]any{"type": "string", "description": "Optional notes about the status change"},
			}, []string{"item_id", "status"}),
		},
		{
			name:        OpListItemsForUser,
			description: "List sprint items assigned to a specific user.",
			params: objectSchema(map[string]any{
				"user_id": map[string]any{"type": "string", "description": "Assignee user id"},
			}, []string{"user_id"}),
		},
		{
			name:        OpGetCanvas,
			description: "Retrieve the business model canvas ('bmc') or value proposition canvas ('vpc').",
			params: objectSchema(map[string]any{
				"kind": map[string]any{"type": "string", "enum": []string{CanvasBMC, CanvasVPC}},
			}, []string{"kind"}),
		},
		{
			name:        OpUpdateCanvasSection,
			description: "Merge an update into one section of a canvas document.",
			params: objectSchema(map[string]any{
				"kind":    map[string]any{"type": "string", "enum": []string{CanvasBMC, CanvasVPC}},
				"section": map[string]any{"type": "string", "description": "Section name, e.g. 'Key Partners'"},
				"patch":   map[string]any{"type": "object", "description": "JSON value merged into the section"},
			}, []string{"kind", "section", "patch"}),
		},
		{
			name:        OpGetSegments,
			description: "Retrieve all customer segments.",
			params:      objectSchema(nil, nil),
		},
		{
			name:        OpUpdateSegment,
			description: "Merge an update into the customer segment with the given id.",
			params: objectSchema(map[string]any{
				"segment_id": map[string]any{"type": "string", "description": "Customer segment id"},
				"patch":      map[string]any{"type": "object", "description": "JSON value merged into the segment"},
			}, []string{"segment_id", "patch"}),
		},
	}

	out := make([]openai.Tool, 0, len(defs))
	for _, def := range defs {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.name,
				Description: def.description,
				Parameters:  def.params,
			},
		})
	}
	return out
}

func objectSchema(props map[string]any, required []string) map[string]any {
	if props == nil {
		props = map[string]any{}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
