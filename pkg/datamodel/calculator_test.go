// SPDX-License-Identifier: Apache-2.0

package datamodel_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusdm/dmengine/pkg/datamodel"
)

func strp(s string) *string { return &s }

func TestCalculatorInferCreateModel(t *testing.T) {
	t.Parallel()

	calc := datamodel.NewCalculator()
	base := datamodel.New()

	next, err := calc.Infer(base, datamodel.MigrationSteps{
		&datamodel.CreateModel{Model: "Test"},
		&datamodel.CreateField{
			Model: "Test",
			Field: &datamodel.Field{
				Name:  "id",
				Arity: datamodel.ArityRequired,
				Type:  datamodel.FieldType{Scalar: datamodel.ScalarString},
				IsID:  true,
			},
		},
	})
	require.NoError(t, err)

	m := next.ModelByName("Test")
	require.NotNil(t, m)
	assert.Equal(t, []string{"id"}, m.PrimaryKeyFields())
	assert.Empty(t, base.Models, "base datamodel must not be mutated")
}

func TestCalculatorInferDuplicateModelFails(t *testing.T) {
	t.Parallel()

	calc := datamodel.NewCalculator()
	base := datamodel.New()

	_, err := calc.Infer(base, datamodel.MigrationSteps{
		&datamodel.CreateModel{Model: "Test"},
		&datamodel.CreateModel{Model: "Test"},
	})
	require.Error(t, err)
	assert.IsType(t, datamodel.InvariantViolation{}, err)
}

func TestCalculatorInferDeleteMissingModelFails(t *testing.T) {
	t.Parallel()

	calc := datamodel.NewCalculator()
	base := datamodel.New()

	_, err := calc.Infer(base, datamodel.MigrationSteps{
		&datamodel.DeleteModel{Model: "Ghost"},
	})
	require.Error(t, err)
}

func TestCalculatorInferAddRequiredFieldWithDefault(t *testing.T) {
	t.Parallel()

	calc := datamodel.NewCalculator()
	base := &datamodel.Datamodel{
		Models: []*datamodel.Model{
			{
				Name: "Test",
				Fields: []*datamodel.Field{
					{Name: "id", Arity: datamodel.ArityRequired, Type: datamodel.FieldType{Scalar: datamodel.ScalarString}, IsID: true},
				},
			},
		},
	}

	next, err := calc.Infer(base, datamodel.MigrationSteps{
		&datamodel.CreateField{
			Model: "Test",
			Field: &datamodel.Field{
				Name:    "myint",
				Arity:   datamodel.ArityRequired,
				Type:    datamodel.FieldType{Scalar: datamodel.ScalarInt},
				Default: &datamodel.Default{Literal: strp("1")},
			},
		},
	})
	require.NoError(t, err)

	f := next.ModelByName("Test").FieldByName("myint")
	require.NotNil(t, f)
	assert.Equal(t, "1", *f.Default.Literal)
}

func TestCalculatorInferUpdateFieldRename(t *testing.T) {
	t.Parallel()

	calc := datamodel.NewCalculator()
	base := &datamodel.Datamodel{
		Models: []*datamodel.Model{
			{
				Name: "Test",
				Fields: []*datamodel.Field{
					{Name: "oldName", Arity: datamodel.ArityRequired, Type: datamodel.FieldType{Scalar: datamodel.ScalarString}},
				},
			},
		},
	}

	next, err := calc.Infer(base, datamodel.MigrationSteps{
		&datamodel.UpdateField{Model: "Test", Field: "oldName", NewName: strp("newName")},
	})
	require.NoError(t, err)

	assert.Nil(t, next.ModelByName("Test").FieldByName("oldName"))
	assert.NotNil(t, next.ModelByName("Test").FieldByName("newName"))
}
