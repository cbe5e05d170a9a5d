package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// receiptSchema constrains the model's JSON before we parse it. It is
// deliberately tolerant: unknown extra keys are allowed and most fields
// are nullable; hard failures here mean the provider returned something
// that is not a receipt analysis at all.
func receiptSchema(allowedCategories []string) map[string]any {
	category := map[string]any{"type": []string{"string", "null"}}
	if len(allowedCategories) > 0 {
		// Still nullable: the model may legitimately report no category.
		category = map[string]any{
			"anyOf": []any{
				map[string]any{"type": "null"},
				map[string]any{"type": "string"},
			},
		}
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"storeName":    map[string]any{"type": []string{"string", "null"}},
			"purchaseDate": map[string]any{"type": []string{"string", "null"}},
			"totalAmount":  map[string]any{"type": []string{"number", "null"}},
			"products": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": []string{"object", "null"},
					"properties": map[string]any{
						"name":         map[string]any{"type": []string{"string", "null"}},
						"quantity":     map[string]any{"type": []string{"number", "null"}},
						"unitPrice":    map[string]any{"type": []string{"number", "null"}},
						"totalPrice":   map[string]any{"type": []string{"number", "null"}},
						"categoryName": category,
						"isDiscount":   map[string]any{"type": []string{"boolean", "null"}},
					},
				},
			},
		},
		"required": []string{"products"},
	}
}

// validateAgainstSchema validates data against schemaMap.
func validateAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
