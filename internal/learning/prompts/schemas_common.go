package prompts

import "sort"

// ObjectSchema builds a strict object schema. Every property is required;
// optional values are expressed as empty strings or arrays.
func ObjectSchema(properties map[string]any) map[string]any {
	req := make([]string, 0, len(properties))
	for k := range properties {
		req = append(req, k)
	}
	sort.Strings(req)
	return map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             req,
		"additionalProperties": false,
	}
}

func ArraySchema(items map[string]any) map[string]any {
	return map[string]any{"type": "array", "items": items}
}

func StringSchema() map[string]any {
	return map[string]any{"type": "string"}
}

func StringArraySchema() map[string]any {
	return ArraySchema(StringSchema())
}

func NumberSchema() map[string]any {
	return map[string]any{"type": "number"}
}

func IntSchema() map[string]any {
	return map[string]any{"type": "integer"}
}

func BoolSchema() map[string]any {
	return map[string]any{"type": "boolean"}
}

func EnumSchema(values ...string) map[string]any {
	arr := make([]any, 0, len(values))
	for _, v := range values {
		arr = append(arr, v)
	}
	return map[string]any{"type": "string", "enum": arr}
}
