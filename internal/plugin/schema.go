package plugin

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	invopop "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

var (
	schemaCache sync.Map // reflect.Type -> *jsonschema.Schema

	reflector = &invopop.Reflector{
		Anonymous:                  true,
		DoNotReference:             true,
		ExpandedStruct:             true,
		AllowAdditionalProperties:  true,
		RequiredFromJSONSchemaTags: true,
	}
)

func validateOutput[Out any](raw []byte) error {
	schema, err := outputSchema(reflect.TypeFor[Out]())
	if err != nil {
		return err
	}

	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("output is not valid JSON: %w", err)
	}
	return schema.Validate(dropNulls(instance))
}

func outputSchema(typ reflect.Type) (*jsonschema.Schema, error) {
	if cached, ok := schemaCache.Load(typ); ok {
		return cached.(*jsonschema.Schema), nil
	}

	raw, err := json.Marshal(reflector.ReflectFromType(typ))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema for %s: %w", typ, err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to read schema for %s: %w", typ, err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("output.json", doc); err != nil {
		return nil, fmt.Errorf("failed to add schema for %s: %w", typ, err)
	}
	schema, err := c.Compile("output.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema for %s: %w", typ, err)
	}

	schemaCache.Store(typ, schema)
	return schema, nil
}

// dropNulls removes null object members so that they validate as absent fields.
func dropNulls(v any) any {
	switch value := v.(type) {
	case map[string]any:
		for k, member := range value {
			if member == nil {
				delete(value, k)
				continue
			}
			value[k] = dropNulls(member)
		}
	case []any:
		for i, item := range value {
			value[i] = dropNulls(item)
		}
	}
	return v
}
