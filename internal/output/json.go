package output

import (
	"encoding/json"
	"fmt"

	"github.com/jbweber/anvil/internal/store"
)

// JSONFormatter formats instances as JSON.
type JSONFormatter struct{}

// FormatInstance formats a single instance as a JSON object.
func (f *JSONFormatter) FormatInstance(inst *store.Instance) (string, error) {
	data, err := json.MarshalIndent(inst, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal instance to JSON: %w", err)
	}

	return string(data) + "\n", nil
}

// FormatInstanceList formats instances as a JSON array.
func (f *JSONFormatter) FormatInstanceList(instances []store.Instance) (string, error) {
	if len(instances) == 0 {
		return "[]\n", nil
	}

	data, err := json.MarshalIndent(instances, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal instances to JSON: %w", err)
	}

	return string(data) + "\n", nil
}
