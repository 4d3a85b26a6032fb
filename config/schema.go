package config

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/kaipokrandt/iotsecuritydash/errors"
)

//go:embed schema.json
var configSchema []byte

// validateSchema checks the raw YAML document against the embedded JSON
// schema before it is decoded into the typed Config, so shape errors are
// reported with field paths instead of decode failures.
func validateSchema(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return errors.WrapFatal(
			fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err),
			"config", "validateSchema", "parse yaml",
		)
	}

	jsonDoc, err := json.Marshal(doc)
	if err != nil {
		return errors.WrapFatal(
			fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err),
			"config", "validateSchema", "convert to json",
		)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(configSchema),
		gojsonschema.NewBytesLoader(jsonDoc),
	)
	if err != nil {
		return errors.WrapFatal(err, "config", "validateSchema", "run schema validation")
	}

	if !result.Valid() {
		msg := "config schema validation failed:"
		for _, desc := range result.Errors() {
			msg += fmt.Sprintf("\n  - %s: %s", desc.Field(), desc.Description())
		}
		return errors.WrapFatal(
			fmt.Errorf("%w: %s", errors.ErrInvalidConfig, msg),
			"config", "validateSchema", "check document",
		)
	}
	return nil
}
