// Package tools defines the workflow-editing tool catalogue shared
// by every provider adapter. API adapters translate the specs into
// their native function-calling schema; CLI adapters embed them as
// prompt text. The tool names must stay identical across all of them
// because the client executes the calls against the live graph.
package tools

import (
	"github.com/quinteroac/ComfyUI-ComfyAssistant-sub000/internal/llm"
)

const (
	AddNodeToolName          = "addNode"
	RemoveNodeToolName       = "removeNode"
	ConnectNodesToolName     = "connectNodes"
	SetNodeWidgetToolName    = "setNodeWidget"
	GetWorkflowStateToolName = "getWorkflowState"
	SearchNodesToolName      = "searchNodes"
)

// Catalog returns the full tool list in a stable order.
func Catalog() []llm.ToolSpec {
	return []llm.ToolSpec{
		{
			Name:        AddNodeToolName,
			Description: "Add a node to the workflow graph. Returns the new node's id and default widget values.",
			Schema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"nodeType": map[string]interface{}{
						"type":        "string",
						"description": "Node class type, e.g. 'KSampler' or 'CheckpointLoaderSimple'",
					},
					"title": map[string]interface{}{
						"type":        "string",
						"description": "Optional display title for the node",
					},
				},
				"required": []string{"nodeType"},
			},
		},
		{
			Name:        RemoveNodeToolName,
			Description: "Remove a node from the workflow graph along with all of its links.",
			Schema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"nodeId": map[string]interface{}{
						"type":        "integer",
						"description": "Id of the node to remove",
					},
				},
				"required": []string{"nodeId"},
			},
		},
		{
			Name:        ConnectNodesToolName,
			Description: "Connect an output slot of one node to an input slot of another. Replaces any existing link on the input slot.",
			Schema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"fromNodeId": map[string]interface{}{
						"type":        "integer",
						"description": "Id of the source node",
					},
					"fromOutput": map[string]interface{}{
						"type":        "string",
						"description": "Name of the output slot on the source node, e.g. 'LATENT'",
					},
					"toNodeId": map[string]interface{}{
						"type":        "integer",
						"description": "Id of the destination node",
					},
					"toInput": map[string]interface{}{
						"type":        "string",
						"description": "Name of the input slot on the destination node, e.g. 'latent_image'",
					},
				},
				"required": []string{"fromNodeId", "fromOutput", "toNodeId", "toInput"},
			},
		},
		{
			Name:        SetNodeWidgetToolName,
			Description: "Set a widget value on an existing node, e.g. the seed or steps of a KSampler.",
			Schema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"nodeId": map[string]interface{}{
						"type":        "integer",
						"description": "Id of the node to modify",
					},
					"widget": map[string]interface{}{
						"type":        "string",
						"description": "Widget name, e.g. 'steps', 'cfg' or 'sampler_name'",
					},
					"value": map[string]interface{}{
						"description": "New value. Type depends on the widget (string, number or boolean).",
					},
				},
				"required": []string{"nodeId", "widget", "value"},
			},
		},
		{
			Name:        GetWorkflowStateToolName,
			Description: "Return the current workflow graph: nodes with their types, widget values and links. Call this before editing when the graph state is unknown.",
			Schema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			Name:        SearchNodesToolName,
			Description: "Search the installed node catalogue by name or category. Use this to discover the exact nodeType before adding a node.",
			Schema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"query": map[string]interface{}{
						"type":        "string",
						"description": "Search term matched against node names and categories",
					},
					"limit": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum number of results (default 10)",
					},
				},
				"required": []string{"query"},
			},
		},
	}
}

// Names returns the catalogue's tool names, used by CLI adapters to
// filter hallucinated calls.
func Names() map[string]bool {
	specs := Catalog()
	names := make(map[string]bool, len(specs))
	for _, spec := range specs {
		names[spec.Name] = true
	}
	return names
}
