// SPDX-License-Identifier: Apache-2.0

package sqlcalc_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusdm/dmengine/pkg/datamodel"
	"github.com/nexusdm/dmengine/pkg/sqlcalc"
)

func intField(name string, id bool) *datamodel.Field {
	return &datamodel.Field{Name: name, Arity: datamodel.ArityRequired, Type: datamodel.FieldType{Scalar: datamodel.ScalarInt}, IsID: id}
}

func TestCalculateManyToManyRelationTable(t *testing.T) {
	t.Parallel()

	dm := &datamodel.Datamodel{
		Models: []*datamodel.Model{
			{
				Name: "A",
				Fields: []*datamodel.Field{
					intField("id", true),
					{
						Name:  "bs",
						Arity: datamodel.ArityList,
						Type:  datamodel.FieldType{Relation: &datamodel.Relation{ReferencedModel: "B"}},
					},
				},
			},
			{
				Name: "B",
				Fields: []*datamodel.Field{
					intField("id", true),
					{
						Name:  "as",
						Arity: datamodel.ArityList,
						Type:  datamodel.FieldType{Relation: &datamodel.Relation{ReferencedModel: "A"}},
					},
				},
			},
		},
	}

	schema, err := sqlcalc.Calculate(dm)
	require.NoError(t, err)

	rel := schema.GetTable("_AToB")
	require.NotNil(t, rel, "expected join table _AToB")
	assert.NotNil(t, rel.GetColumn("A"))
	assert.NotNil(t, rel.GetColumn("B"))
	assert.Len(t, rel.ForeignKeys, 2)

	ix := rel.GetIndex("_AToB_AB_unique")
	require.NotNil(t, ix)
	assert.True(t, ix.Unique)
	assert.Equal(t, []string{"A", "B"}, ix.Columns)
}

func TestCalculateUniqueFieldGetsIndex(t *testing.T) {
	t.Parallel()

	dm := &datamodel.Datamodel{
		Models: []*datamodel.Model{
			{
				Name: "User",
				Fields: []*datamodel.Field{
					intField("id", true),
					{Name: "email", Arity: datamodel.ArityRequired, Type: datamodel.FieldType{Scalar: datamodel.ScalarString}, IsUnique: true},
				},
			},
		},
	}

	schema, err := sqlcalc.Calculate(dm)
	require.NoError(t, err)

	table := schema.GetTable("User")
	require.NotNil(t, table)
	ix := table.GetIndex("User.email")
	require.NotNil(t, ix)
	assert.True(t, ix.Unique)
}

func TestCalculateScalarListGetsSideTable(t *testing.T) {
	t.Parallel()

	dm := &datamodel.Datamodel{
		Models: []*datamodel.Model{
			{
				Name: "Post",
				Fields: []*datamodel.Field{
					intField("id", true),
					{Name: "tags", Arity: datamodel.ArityList, Type: datamodel.FieldType{Scalar: datamodel.ScalarString}},
				},
			},
		},
	}

	schema, err := sqlcalc.Calculate(dm)
	require.NoError(t, err)

	main := schema.GetTable("Post")
	require.NotNil(t, main)
	assert.Nil(t, main.GetColumn("tags"), "scalar-list field must not become a column on the owning table")

	side := schema.GetTable("Post_tags")
	require.NotNil(t, side, "expected scalar-list side table Post_tags")
	assert.Equal(t, []string{"nodeId", "position"}, side.PrimaryKey)
	require.NotNil(t, side.GetColumn("nodeId"))
	require.NotNil(t, side.GetColumn("position"))
	require.NotNil(t, side.GetColumn("value"))
	assert.Equal(t, "text", side.GetColumn("value").Type)

	require.Len(t, side.ForeignKeys, 1)
	for _, fk := range side.ForeignKeys {
		assert.Equal(t, "Post", fk.ReferencedTable)
		assert.Equal(t, []string{"id"}, fk.ReferencedColumns)
	}
}

func TestCalculateCompositeUniqueIndex(t *testing.T) {
	t.Parallel()

	dm := &datamodel.Datamodel{
		Models: []*datamodel.Model{
			{
				Name: "Test",
				Fields: []*datamodel.Field{
					intField("id", true),
					{Name: "field", Arity: datamodel.ArityRequired, Type: datamodel.FieldType{Scalar: datamodel.ScalarString}},
					{Name: "secondField", Arity: datamodel.ArityRequired, Type: datamodel.FieldType{Scalar: datamodel.ScalarString}},
				},
				Indexes: []*datamodel.ModelIndex{
					{Name: "customName", Kind: datamodel.IndexKindUnique, Fields: []string{"field", "secondField"}},
				},
			},
		},
	}

	schema, err := sqlcalc.Calculate(dm)
	require.NoError(t, err)

	ix := schema.GetTable("Test").GetIndex("customName")
	require.NotNil(t, ix)
	assert.Equal(t, []string{"field", "secondField"}, ix.Columns)
}
