// SPDX-License-Identifier: Apache-2.0

package sqlrender_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusdm/dmengine/pkg/dialect"
	"github.com/nexusdm/dmengine/pkg/sqldiff"
	"github.com/nexusdm/dmengine/pkg/sqlrender"
	"github.com/nexusdm/dmengine/pkg/sqlschema"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestRenderAlterColumnMysqlModifyRestatesFullDefinition(t *testing.T) {
	t.Parallel()

	step := &sqldiff.AlterTable{
		Table: "users",
		Changes: []sqldiff.TableChange{
			&sqldiff.AlterColumn{
				Name:        "age",
				NewType:     strPtr("integer"),
				NewNullable: boolPtr(false),
			},
		},
		ResultingTable: &sqlschema.Table{
			Name: "users",
			Columns: map[string]*sqlschema.Column{
				"age": {Name: "age", Type: "integer", Nullable: false, Default: strPtr("0")},
			},
		},
	}

	stmts, err := sqlrender.Render(step, dialect.Mysql, "")
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	assert.Contains(t, stmts[0], "MODIFY COLUMN")
	assert.Contains(t, stmts[0], "int")
	assert.Contains(t, stmts[0], "NOT NULL")
	assert.Contains(t, stmts[0], "DEFAULT 0")
}

func TestRenderAlterColumnMysqlFallsBackWithoutResultingTable(t *testing.T) {
	t.Parallel()

	step := &sqldiff.AlterTable{
		Table: "users",
		Changes: []sqldiff.TableChange{
			&sqldiff.AlterColumn{
				Name:        "name",
				NewNullable: boolPtr(true),
			},
		},
	}

	stmts, err := sqlrender.Render(step, dialect.Mysql, "")
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	assert.Contains(t, stmts[0], "MODIFY COLUMN")
	assert.NotContains(t, stmts[0], "NOT NULL")
}

func TestRenderAlterColumnPostgresSplitsIntoSeparateStatements(t *testing.T) {
	t.Parallel()

	step := &sqldiff.AlterTable{
		Table: "users",
		Changes: []sqldiff.TableChange{
			&sqldiff.AlterColumn{
				Name:        "age",
				NewType:     strPtr("integer"),
				NewNullable: boolPtr(false),
			},
		},
		ResultingTable: &sqlschema.Table{
			Name:    "users",
			Columns: map[string]*sqlschema.Column{"age": {Name: "age", Type: "integer", Nullable: false}},
		},
	}

	stmts, err := sqlrender.Render(step, dialect.Postgres, "public")
	require.NoError(t, err)
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "TYPE integer")
	assert.Contains(t, stmts[1], "SET NOT NULL")
}

func TestRenderCreateTable(t *testing.T) {
	t.Parallel()

	table := &sqlschema.Table{
		Name:       "users",
		PrimaryKey: []string{"id"},
		Columns: map[string]*sqlschema.Column{
			"id":    {Name: "id", Type: "integer", AutoIncrement: true},
			"email": {Name: "email", Type: "text", Unique: true},
		},
	}

	stmts, err := sqlrender.Render(&sqldiff.CreateTable{Table: table}, dialect.Postgres, "public")
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	assert.Contains(t, stmts[0], `CREATE TABLE "public"."users"`)
	assert.Contains(t, stmts[0], "serial")
	assert.Contains(t, stmts[0], "PRIMARY KEY (\"id\")")
}

func TestRenderDropIndexPrecedesAlterTableInDiffOrdering(t *testing.T) {
	t.Parallel()

	before := sqlschema.New("")
	before.AddTable("posts", &sqlschema.Table{
		Name:    "posts",
		Columns: map[string]*sqlschema.Column{"slug": {Name: "slug", Type: "text"}},
		Indexes: map[string]*sqlschema.Index{"posts_slug_idx": {Name: "posts_slug_idx", Columns: []string{"slug"}}},
	})

	after := sqlschema.New("")
	after.AddTable("posts", &sqlschema.Table{
		Name:    "posts",
		Columns: map[string]*sqlschema.Column{},
	})

	steps := sqldiff.Diff(before, after)

	var dropIndexPos, alterTablePos = -1, -1
	for i, s := range steps {
		switch s.(type) {
		case *sqldiff.DropIndex:
			dropIndexPos = i
		case *sqldiff.AlterTable:
			alterTablePos = i
		}
	}
	require.NotEqual(t, -1, dropIndexPos)
	require.NotEqual(t, -1, alterTablePos)
	assert.Less(t, dropIndexPos, alterTablePos, "DropIndex on a table must precede an AlterTable touching the same table")
}
