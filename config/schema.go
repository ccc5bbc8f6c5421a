// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/soothill/esp32ctl/pkg/util"
)

//go:embed schema.json
var schemaJSON []byte

// ValidateWithSchema checks a YAML config file against the embedded
// JSON schema before any value is interpreted. The schema rejects
// unknown keys per section, so a typo like `device.tpc_port` fails here
// with the offending field named instead of being silently ignored.
//
// Used by the `-validate-config` mode and by the SIGHUP reload path;
// Load's semantic checks (port clashes, window bounds) run after this.
func ValidateWithSchema(configPath string) error {
	configData, err := util.ReadFileSafely(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	configJSON, err := yamlToJSON(configData)
	if err != nil {
		return err
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewBytesLoader(configJSON),
	)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		return formatValidationErrors(result.Errors())
	}
	return nil
}

// yamlToJSON re-encodes YAML as JSON, which is what gojsonschema
// consumes.
func yamlToJSON(data []byte) ([]byte, error) {
	var obj interface{}
	if err := yaml.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	out, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to convert config to JSON: %w", err)
	}
	return out, nil
}

// formatValidationErrors folds every schema violation into one error so
// the operator sees the full list in a single run.
func formatValidationErrors(errors []gojsonschema.ResultError) error {
	if len(errors) == 0 {
		return nil
	}

	var msg strings.Builder
	msg.WriteString("configuration validation errors:\n")
	for i, err := range errors {
		fmt.Fprintf(&msg, "  %d. %s: %s\n", i+1, err.Field(), err.Description())
	}
	return fmt.Errorf("%s", msg.String())
}

// GetSchemaJSON returns the embedded JSON schema as a string, for
// documentation or editor tooling.
func GetSchemaJSON() string {
	return string(schemaJSON)
}
