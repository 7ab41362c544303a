package export

// ToolCatalog is the canonical schema for every tool the voice agents can
// invoke. Compiled examples attach only the subset actually used by the
// conversation, in catalog order.
var ToolCatalog = []ToolDefinition{
	{
		Type: "function",
		Function: ToolFunction{
			Name:        "create_order",
			Description: "Create a pickup order for the customer",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"customerName":  map[string]any{"type": "string", "description": "Customer's name"},
					"customerPhone": map[string]any{"type": "string", "description": "Customer's phone number"},
					"items": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"itemName":            map[string]any{"type": "string"},
								"quantity":            map[string]any{"type": "integer"},
								"modifiers":           map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
								"specialInstructions": map[string]any{"type": "string"},
							},
							"required": []any{"itemName", "quantity"},
						},
					},
					"specialInstructions": map[string]any{"type": "string", "description": "Special instructions for the whole order"},
				},
				"required": []any{"customerName", "customerPhone", "items"},
			},
		},
	},
	{
		Type: "function",
		Function: ToolFunction{
			Name:        "cancel_order",
			Description: "Cancel an existing order",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"orderId": map[string]any{"type": "string", "description": "The order ID to cancel"},
					"reason":  map[string]any{"type": "string", "description": "Reason for cancellation"},
				},
				"required": []any{"orderId"},
			},
		},
	},
	{
		Type: "function",
		Function: ToolFunction{
			Name:        "remove_item",
			Description: "Remove an item from an existing order",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"orderId":  map[string]any{"type": "string", "description": "The order ID"},
					"itemName": map[string]any{"type": "string", "description": "Name of the item to remove"},
				},
				"required": []any{"orderId", "itemName"},
			},
		},
	},
	{
		Type: "function",
		Function: ToolFunction{
			Name:        "modify_item",
			Description: "Modify an item in an existing order",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"orderId":       map[string]any{"type": "string", "description": "The order ID"},
					"itemName":      map[string]any{"type": "string", "description": "Name of the item to modify"},
					"modifications": map[string]any{"type": "string", "description": "Description of modifications"},
				},
				"required": []any{"orderId", "itemName", "modifications"},
			},
		},
	},
	{
		Type: "function",
		Function: ToolFunction{
			Name:        "check_availability",
			Description: "Check table availability for a reservation",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"date":      map[string]any{"type": "string", "description": "Date in YYYY-MM-DD format"},
					"time":      map[string]any{"type": "string", "description": "Time in HH:MM format"},
					"partySize": map[string]any{"type": "integer", "description": "Number of guests"},
				},
				"required": []any{"date", "time", "partySize"},
			},
		},
	},
	{
		Type: "function",
		Function: ToolFunction{
			Name:        "create_reservation",
			Description: "Create a table reservation",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"customerName":    map[string]any{"type": "string", "description": "Customer's name"},
					"customerPhone":   map[string]any{"type": "string", "description": "Customer's phone number"},
					"partySize":       map[string]any{"type": "integer", "description": "Number of guests"},
					"date":            map[string]any{"type": "string", "description": "Date in YYYY-MM-DD format"},
					"time":            map[string]any{"type": "string", "description": "Time in HH:MM format"},
					"specialRequests": map[string]any{"type": "string", "description": "Any special requests"},
				},
				"required": []any{"customerName", "customerPhone", "partySize", "date", "time"},
			},
		},
	},
	{
		Type: "function",
		Function: ToolFunction{
			Name:        "get_specials",
			Description: "Get today's specials and promotions",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
	},
	{
		Type: "function",
		Function: ToolFunction{
			Name:        "get_past_orders",
			Description: "Look up a customer's past orders",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"customerPhone": map[string]any{"type": "string", "description": "Customer's phone number"},
				},
				"required": []any{"customerPhone"},
			},
		},
	},
	{
		Type: "function",
		Function: ToolFunction{
			Name:        "end_call",
			Description: "End the current phone call",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
	},
	{
		Type: "function",
		Function: ToolFunction{
			Name:        "send_menu_link",
			Description: "Send a link to the online menu via SMS",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"customerPhone": map[string]any{"type": "string", "description": "Customer's phone number"},
				},
				"required": []any{"customerPhone"},
			},
		},
	},
}
