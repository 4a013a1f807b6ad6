package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/xeipuuv/gojsonschema"
)

// SchemaFor reflects a JSON schema from an argument struct type.
func SchemaFor[T any]() map[string]any {
	reflector := jsonschema.Reflector{
		Anonymous:      true,
		DoNotReference: true,
	}
	var probe T
	schema := reflector.Reflect(&probe)
	raw, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("tools: reflect schema: %v", err))
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(fmt.Sprintf("tools: reflect schema: %v", err))
	}
	// The $schema draft marker adds nothing for argument validation.
	delete(out, "$schema")
	return out
}

// Validate checks object-form arguments against the tool's schema. Tools
// without a schema and scalar payloads pass through unvalidated.
func Validate(tool Tool, args json.RawMessage) error {
	schema := tool.Schema()
	if schema == nil || len(args) == 0 {
		return nil
	}
	trimmed := strings.TrimSpace(string(args))
	if !strings.HasPrefix(trimmed, "{") {
		return nil
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewBytesLoader(args),
	)
	if err != nil {
		return fmt.Errorf("tools: validate %s: %w", tool.Name(), err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	return fmt.Errorf("tools: invalid arguments for %s: %s", tool.Name(), strings.Join(msgs, "; "))
}
