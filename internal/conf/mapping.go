package conf

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tphakala/eventlog-migrator/internal/errors"
)

// These files are read with yaml.v3 directly: viper lower-cases map keys and
// payload type names are case-sensitive.

// LoadIdentifierMapping reads a YAML map of payload type name to identifier
// field name, e.g.
//
//	OrderPlaced: orderId
//	CustomerRegistered: customerId
//
// An empty path or a missing file yields an empty mapping.
func LoadIdentifierMapping(path string) (map[string]string, error) {
	mapping := map[string]string{}
	if err := readYAMLFile(path, &mapping); err != nil {
		return nil, err
	}
	for payloadType, field := range mapping {
		if field == "" {
			return nil, mappingError(path, fmt.Errorf("payload type %q maps to an empty field name", payloadType))
		}
	}
	return mapping, nil
}

// LoadSchemaRegistry reads a YAML map of payload type name to its declared
// field names, in declaration order:
//
//	OrderPlaced: [orderId, amount, currency]
func LoadSchemaRegistry(path string) (map[string][]string, error) {
	registry := map[string][]string{}
	if err := readYAMLFile(path, &registry); err != nil {
		return nil, err
	}
	return registry, nil
}

func readYAMLFile(path string, out any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator config
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return mappingError(path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return mappingError(path, err)
	}
	return nil
}

func mappingError(path string, err error) error {
	return errors.New(fmt.Errorf("failed to load %s: %w", path, err)).
		Component("conf").
		Category(errors.CategoryFileParsing).
		Context("file", path).
		Build()
}
