// SPDX-License-Identifier: Apache-2.0

package state_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/require"

	"github.com/nexusdm/dmengine/pkg/datamodel"
	"github.com/nexusdm/dmengine/pkg/dialect"
	"github.com/nexusdm/dmengine/pkg/state"
)

type fakeConn struct{ db *sql.DB }

func (f fakeConn) ExecContext(ctx context.Context, q string, args ...interface{}) (sql.Result, error) {
	return f.db.ExecContext(ctx, q, args...)
}
func (f fakeConn) QueryContext(ctx context.Context, q string, args ...interface{}) (*sql.Rows, error) {
	return f.db.QueryContext(ctx, q, args...)
}
func (f fakeConn) WithRetryableTransaction(ctx context.Context, fn func(context.Context, *sql.Tx) error) error {
	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(ctx, tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
func (f fakeConn) Dialect() dialect.Dialect { return dialect.Sqlite }
func (f fakeConn) Close() error             { return f.db.Close() }

func newTestState(t *testing.T) *state.State {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	s := state.New(fakeConn{db: db}, "")
	require.NoError(t, s.Init(context.Background()))
	return s
}

func TestCreateAndLast(t *testing.T) {
	s := newTestState(t)
	ctx := context.Background()

	m := &state.Migration{
		Name:      "initial",
		Datamodel: datamodel.New(),
		Status:    state.StatusSuccess,
		StartedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	rev, err := s.Create(ctx, m)
	require.NoError(t, err)
	require.Equal(t, int64(1), rev)

	last, err := s.Last(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	require.Equal(t, "initial", last.Name)
	require.Equal(t, state.StatusSuccess, last.Status)
}

func TestLastIgnoresNonSuccess(t *testing.T) {
	s := newTestState(t)
	ctx := context.Background()

	_, err := s.Create(ctx, &state.Migration{
		Name: "failed", Datamodel: datamodel.New(), Status: state.StatusFailure, StartedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	last, err := s.Last(ctx)
	require.NoError(t, err)
	require.Nil(t, last)
}

func TestByNameReturnsMostRecent(t *testing.T) {
	s := newTestState(t)
	ctx := context.Background()

	_, err := s.Create(ctx, &state.Migration{
		Name: "watch-0001", Datamodel: datamodel.New(), Status: state.StatusSuccess, StartedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	_, err = s.Create(ctx, &state.Migration{
		Name: "watch-0001", Datamodel: datamodel.New(), Status: state.StatusFailure, StartedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	m, err := s.ByName(ctx, "watch-0001")
	require.NoError(t, err)
	require.NotNil(t, m)
	require.Equal(t, int64(2), m.Revision)
	require.True(t, m.IsWatch())
}

func TestUpdatePersistsStatusAndFinishedAt(t *testing.T) {
	s := newTestState(t)
	ctx := context.Background()

	m := &state.Migration{Name: "m1", Datamodel: datamodel.New(), Status: state.StatusInProgress, StartedAt: time.Now().UTC()}
	_, err := s.Create(ctx, m)
	require.NoError(t, err)

	finished := time.Now().UTC().Truncate(time.Millisecond)
	m.Status = state.StatusSuccess
	m.Applied = 3
	m.FinishedAt = &finished
	require.NoError(t, s.Update(ctx, m))

	reloaded, err := s.ByName(ctx, "m1")
	require.NoError(t, err)
	require.Equal(t, state.StatusSuccess, reloaded.Status)
	require.Equal(t, 3, reloaded.Applied)
	require.NotNil(t, reloaded.FinishedAt)
	require.WithinDuration(t, finished, *reloaded.FinishedAt, time.Millisecond)
}

func TestResetDropsAllTables(t *testing.T) {
	s := newTestState(t)
	ctx := context.Background()
	_, err := s.Create(ctx, &state.Migration{Name: "m1", Datamodel: datamodel.New(), Status: state.StatusSuccess, StartedAt: time.Now().UTC()})
	require.NoError(t, err)

	require.NoError(t, s.Reset(ctx))

	all, err := s.LoadAll(ctx)
	require.Error(t, err) // table itself is gone after reset
	require.Nil(t, all)
}
