// SPDX-License-Identifier: Apache-2.0

package enginetest_test

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/nexusdm/dmengine/pkg/applier"
	"github.com/nexusdm/dmengine/pkg/datamodel"
	"github.com/nexusdm/dmengine/pkg/dbconn"
	"github.com/nexusdm/dmengine/pkg/dialect"
	"github.com/nexusdm/dmengine/pkg/state"
)

const defaultPostgresVersion = "16.3"

// TestApplyAgainstRealPostgres exercises the full pipeline against a
// containerized Postgres, since SQLite's PRAGMA-based describer and
// table-rebuild renderer cannot stand in for Postgres's ALTER-in-place DDL
// or its information_schema catalog.
func TestApplyAgainstRealPostgres(t *testing.T) {
	if os.Getenv("DMENGINE_SKIP_CONTAINER_TESTS") != "" {
		t.Skip("container tests disabled")
	}

	ctx := context.Background()

	pgVersion := os.Getenv("POSTGRES_VERSION")
	if pgVersion == "" {
		pgVersion = defaultPostgresVersion
	}

	ctr, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:"+pgVersion),
		testcontainers.WithWaitStrategy(wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { ctr.Terminate(ctx) })

	connStr, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	sqlDB, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	conn := &dbconn.RDB{SQL: sqlDB, D: dialect.Postgres}

	st := state.New(conn, "public")
	require.NoError(t, st.Init(ctx))
	a := applier.New(conn, st, "public")

	dm := &datamodel.Datamodel{
		Models: []*datamodel.Model{
			{
				Name: "Account",
				Fields: []*datamodel.Field{
					{Name: "id", Arity: datamodel.ArityRequired, Type: datamodel.FieldType{Scalar: datamodel.ScalarInt}, IsID: true},
					{Name: "email", Arity: datamodel.ArityRequired, Type: datamodel.FieldType{Scalar: datamodel.ScalarString}, IsUnique: true},
				},
			},
		},
	}

	res, err := a.Apply(ctx, applier.ApplyInput{MigrationID: "init", Steps: datamodel.InferSteps(datamodel.New(), dm)})
	require.NoError(t, err)
	require.Empty(t, res.Warnings)
	require.Equal(t, state.StatusSuccess, res.Migration.Status)

	var exists bool
	err = sqlDB.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'Account')`).Scan(&exists)
	require.NoError(t, err)
	require.True(t, exists)

	_, err = sqlDB.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %q (id, email) VALUES (1, 'a@example.com')`, "Account"))
	require.NoError(t, err)
}
