package classify

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// predictionSchema is the contract for the remote classifier's response body.
const predictionSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["hsCode", "confidence"],
  "properties": {
    "hsCode": {"type": "string", "minLength": 1},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1}
  }
}`

func compilePredictionSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("prediction.json", strings.NewReader(predictionSchema)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("prediction.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// decodePrediction validates body against schema before decoding it.
func decodePrediction(schema *jsonschema.Schema, body []byte) (Prediction, error) {
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return Prediction{}, fmt.Errorf("unmarshal response: %w", err)
	}
	if err := schema.Validate(raw); err != nil {
		return Prediction{}, fmt.Errorf("response does not match schema: %w", err)
	}

	var p Prediction
	if err := json.Unmarshal(body, &p); err != nil {
		return Prediction{}, fmt.Errorf("decode response: %w", err)
	}
	return p, nil
}
