// SPDX-License-Identifier: Apache-2.0

package datamodel_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusdm/dmengine/pkg/datamodel"
)

func TestMigrationStepsRoundTrip(t *testing.T) {
	t.Parallel()

	steps := datamodel.MigrationSteps{
		&datamodel.CreateModel{Model: "Test"},
		&datamodel.CreateField{
			Model: "Test",
			Field: &datamodel.Field{Name: "id", Arity: datamodel.ArityRequired, Type: datamodel.FieldType{Scalar: datamodel.ScalarInt}, IsID: true},
		},
		&datamodel.DeleteField{Model: "Test", Field: "id"},
	}

	data, err := json.Marshal(steps)
	require.NoError(t, err)

	var out datamodel.MigrationSteps
	require.NoError(t, json.Unmarshal(data, &out))
	require.Len(t, out, 3)

	assert.IsType(t, &datamodel.CreateModel{}, out[0])
	assert.IsType(t, &datamodel.CreateField{}, out[1])
	assert.IsType(t, &datamodel.DeleteField{}, out[2])
	assert.Equal(t, "Test", out[0].(*datamodel.CreateModel).Model)
}

func TestMigrationStepsUnmarshalRejectsMultipleKeys(t *testing.T) {
	t.Parallel()

	var out datamodel.MigrationSteps
	err := json.Unmarshal([]byte(`[{"createModel":{"model":"A"},"deleteModel":{"model":"B"}}]`), &out)
	require.Error(t, err)
}

func TestMigrationStepsUnmarshalRejectsUnknownStep(t *testing.T) {
	t.Parallel()

	var out datamodel.MigrationSteps
	err := json.Unmarshal([]byte(`[{"notAStep":{}}]`), &out)
	require.Error(t, err)
}
