// SPDX-License-Identifier: Apache-2.0

package rpcschema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	v, err := New()
	require.NoError(t, err)

	cases := []struct {
		name    string
		method  string
		params  string
		wantErr bool
	}{
		{"applyMigration ok", "applyMigration", `{"migrationId": "m1", "steps": []}`, false},
		{"applyMigration missing id", "applyMigration", `{"steps": []}`, true},
		{"applyMigration empty id", "applyMigration", `{"migrationId": ""}`, true},
		{"calculateDatamodel ok", "calculateDatamodel", `{"datamodelSteps": []}`, false},
		{"calculateDatamodel missing steps", "calculateDatamodel", `{}`, true},
		{"inferMigrationSteps both null", "inferMigrationSteps", `{"baseDatamodel": null, "targetDatamodel": null}`, false},
		{"migrationProgress ok", "migrationProgress", `{"migrationId": "m1"}`, false},
		{"migrationProgress missing id", "migrationProgress", `{}`, true},
		{"method without params schema accepts any params", "reset", `{"anything": true}`, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var decoded any
			require.NoError(t, json.Unmarshal([]byte(tc.params), &decoded))

			err := v.Validate(tc.method, decoded)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
