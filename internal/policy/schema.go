package policy

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// validateBundleSchema checks bundle bytes against the embedded JSON Schema.
// The YAML document is normalized and re-encoded as JSON first, since
// gojsonschema only understands JSON.
func validateBundleSchema(bundleBytes []byte) error {
	var raw interface{}
	if err := yaml.Unmarshal(bundleBytes, &raw); err != nil {
		return fmt.Errorf("parsing policy bundle: %w", err)
	}
	doc, err := json.Marshal(normalizeYAML(raw))
	if err != nil {
		return fmt.Errorf("converting policy bundle to JSON: %w", err)
	}

	schemaLoader := gojsonschema.NewStringLoader(bundleSchema)
	docLoader := gojsonschema.NewBytesLoader(doc)
	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	return fmt.Errorf("%w: %s", ErrSchema, strings.Join(msgs, "; "))
}

// normalizeYAML converts YAML-decoded values into JSON-compatible ones.
// yaml.v3 already produces map[string]interface{}, but nested documents from
// older encoders can surface map[interface{}]interface{} keys.
func normalizeYAML(v interface{}) interface{} {
	switch val := v.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[fmt.Sprintf("%v", k)] = normalizeYAML(item)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = normalizeYAML(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = normalizeYAML(item)
		}
		return out
	default:
		return v
	}
}
