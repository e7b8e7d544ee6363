// SPDX-License-Identifier: Apache-2.0

package state_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nexusdm/dmengine/pkg/state"
)

func TestCheckVersionCompatibilityFirstRun(t *testing.T) {
	s := newTestState(t)
	ctx := context.Background()

	result, err := s.CheckVersionCompatibility(ctx, "v1.2.0")
	require.NoError(t, err)
	require.Equal(t, state.VersionCompatNotPreviouslyRecorded, result)

	recorded, err := s.SchemaVersion(ctx)
	require.NoError(t, err)
	require.Equal(t, "v1.2.0", recorded)
}

func TestCheckVersionCompatibilityNewerEngine(t *testing.T) {
	s := newTestState(t)
	ctx := context.Background()

	_, err := s.CheckVersionCompatibility(ctx, "v1.0.0")
	require.NoError(t, err)

	result, err := s.CheckVersionCompatibility(ctx, "v1.1.0")
	require.NoError(t, err)
	require.Equal(t, state.VersionCompatSchemaOlder, result)
}

func TestCheckVersionCompatibilityOlderEngineRefuses(t *testing.T) {
	s := newTestState(t)
	ctx := context.Background()

	_, err := s.CheckVersionCompatibility(ctx, "v2.0.0")
	require.NoError(t, err)

	result, err := s.CheckVersionCompatibility(ctx, "v1.0.0")
	require.NoError(t, err)
	require.Equal(t, state.VersionCompatSchemaNewer, result)
}

func TestCheckVersionCompatibilityDevelopmentSkipsCheck(t *testing.T) {
	s := newTestState(t)
	ctx := context.Background()

	result, err := s.CheckVersionCompatibility(ctx, "development")
	require.NoError(t, err)
	require.Equal(t, state.VersionCompatCheckSkipped, result)

	recorded, err := s.SchemaVersion(ctx)
	require.NoError(t, err)
	require.Empty(t, recorded)
}
