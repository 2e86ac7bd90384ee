package output

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/jbweber/anvil/internal/store"
)

// YAMLFormatter formats instances as YAML.
type YAMLFormatter struct{}

// FormatInstance formats a single instance as YAML.
func (f *YAMLFormatter) FormatInstance(inst *store.Instance) (string, error) {
	data, err := yaml.Marshal(inst)
	if err != nil {
		return "", fmt.Errorf("failed to marshal instance to YAML: %w", err)
	}

	return string(data), nil
}

// FormatInstanceList formats instances as a YAML stream (multiple documents
// separated by ---).
func (f *YAMLFormatter) FormatInstanceList(instances []store.Instance) (string, error) {
	if len(instances) == 0 {
		return "", nil
	}

	var buf bytes.Buffer

	for i := range instances {
		data, err := yaml.Marshal(&instances[i])
		if err != nil {
			return "", fmt.Errorf("failed to marshal instance %s to YAML: %w", instances[i].Name, err)
		}

		if i > 0 {
			buf.WriteString("---\n")
		}

		buf.Write(data)
	}

	return buf.String(), nil
}
