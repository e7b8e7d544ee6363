// SPDX-License-Identifier: Apache-2.0

// Package rpcschema validates JSON-RPC command params against a JSON Schema
// document per command, the way the teacher's internal/jsonschema package
// validates a migration file against schema.json before pgroll acts on it.
package rpcschema

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// methodSchemas holds one JSON Schema document per RPC method that takes
// params, keyed by method name (§4.J / §6). Commands with no params
// (unapplyMigration, listMigrations, reset) have none and always validate.
var methodSchemas = map[string]string{
	"inferMigrationSteps": `{
		"type": "object",
		"properties": {
			"baseDatamodel": {"type": ["object", "null"]},
			"targetDatamodel": {"type": ["object", "null"]}
		}
	}`,
	"calculateDatamodel": `{
		"type": "object",
		"required": ["datamodelSteps"],
		"properties": {
			"baseDatamodel": {"type": ["object", "null"]},
			"datamodelSteps": {"type": "array"}
		}
	}`,
	"calculateDatabaseSteps": `{
		"type": "object",
		"properties": {
			"assumedDatamodelSteps": {"type": "array"},
			"datamodelSteps": {"type": "array"}
		}
	}`,
	"applyMigration": `{
		"type": "object",
		"required": ["migrationId"],
		"properties": {
			"migrationId": {"type": "string", "minLength": 1},
			"steps": {"type": "array"},
			"force": {"type": "boolean"}
		}
	}`,
	"migrationProgress": `{
		"type": "object",
		"required": ["migrationId"],
		"properties": {
			"migrationId": {"type": "string", "minLength": 1}
		}
	}`,
}

// Validator holds one compiled schema per method.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// New compiles every entry in methodSchemas once, so each Validate call is
// just an in-memory tree walk.
func New() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	v := &Validator{schemas: make(map[string]*jsonschema.Schema, len(methodSchemas))}

	for method, raw := range methodSchemas {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("rpcschema: decoding schema for %s: %w", method, err)
		}
		url := "mem://" + method
		if err := compiler.AddResource(url, doc); err != nil {
			return nil, fmt.Errorf("rpcschema: registering schema for %s: %w", method, err)
		}
		sch, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("rpcschema: compiling schema for %s: %w", method, err)
		}
		v.schemas[method] = sch
	}
	return v, nil
}

// Validate checks a decoded JSON value (map[string]any, produced by
// json.Unmarshal into an any) against the schema registered for method.
// Methods with no registered schema always validate — they take no params.
func (v *Validator) Validate(method string, params any) error {
	sch, ok := v.schemas[method]
	if !ok {
		return nil
	}
	return sch.Validate(params)
}
