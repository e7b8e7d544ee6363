// SPDX-License-Identifier: Apache-2.0

package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/mod/semver"

	"github.com/nexusdm/dmengine/pkg/dialect"
)

// ErrEngineOlderThanSchema is returned (wrapped) by rpcapi.NewServer when
// CheckVersionCompatibility reports VersionCompatSchemaNewer, i.e. the
// running engine binary is older than the version that last wrote to this
// datasource's migration state, so the engine refuses to act on a schema
// shape it may not understand.
var ErrEngineOlderThanSchema = errors.New("engine version is older than the migration state's recorded schema version")

// VersionCompatibility is the result of comparing the running engine's
// version against the version recorded the last time this datasource's
// state was touched.
type VersionCompatibility int

const (
	VersionCompatCheckSkipped VersionCompatibility = iota
	VersionCompatNotPreviouslyRecorded
	VersionCompatSchemaOlder
	VersionCompatSchemaEqual
	VersionCompatSchemaNewer
)

func (s *State) versionTable() string {
	return s.conn.Dialect().Qualify(s.schema, "_EngineVersion")
}

func (s *State) ensureVersionTable(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		version        TEXT NOT NULL,
		recorded_at    %s
	)`, s.versionTable(), s.timestampColumnType())
	_, err := s.conn.ExecContext(ctx, ddl)
	return err
}

func (s *State) timestampColumnType() string {
	switch s.conn.Dialect() {
	case dialect.Postgres:
		return "TIMESTAMP(3) NOT NULL DEFAULT now()"
	case dialect.Mysql:
		return "DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3)"
	default:
		return "INTEGER NOT NULL"
	}
}

// SchemaVersion returns the most recently recorded engine version for this
// datasource, or "" if none has been recorded yet.
func (s *State) SchemaVersion(ctx context.Context) (string, error) {
	query := fmt.Sprintf("SELECT version FROM %s ORDER BY recorded_at DESC LIMIT 1", s.versionTable())
	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return "", err
	}
	defer rows.Close()
	if !rows.Next() {
		return "", rows.Err()
	}
	var version string
	if err := rows.Scan(&version); err != nil {
		return "", err
	}
	return version, nil
}

// RecordVersion appends a row recording that engineVersion just touched this
// datasource's migration state.
func (s *State) RecordVersion(ctx context.Context, engineVersion string) error {
	args := []interface{}{engineVersion}
	cols := "version"
	if s.conn.Dialect() == dialect.Sqlite {
		cols = "version, recorded_at"
		args = append(args, s.encodeTime(time.Now().UTC()))
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", s.versionTable(), cols, s.placeholders(len(args)))
	_, err := s.conn.ExecContext(ctx, query, args...)
	return err
}

// CheckVersionCompatibility compares engineVersion against the version last
// recorded for this datasource, then records engineVersion itself. A
// "development" engineVersion always skips the check, matching a local
// build's inability to claim a meaningful place in semver ordering.
func (s *State) CheckVersionCompatibility(ctx context.Context, engineVersion string) (VersionCompatibility, error) {
	if engineVersion == "development" {
		return VersionCompatCheckSkipped, nil
	}
	if err := s.ensureVersionTable(ctx); err != nil {
		return VersionCompatCheckSkipped, err
	}

	schemaVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return VersionCompatCheckSkipped, err
	}

	result := VersionCompatNotPreviouslyRecorded
	if schemaVersion != "" && schemaVersion != "development" {
		sv, ev := ensureVPrefix(schemaVersion), ensureVPrefix(engineVersion)
		if semver.IsValid(sv) && semver.IsValid(ev) {
			switch semver.Compare(semver.Canonical(sv), semver.Canonical(ev)) {
			case -1:
				result = VersionCompatSchemaOlder
			case 1:
				result = VersionCompatSchemaNewer
			default:
				result = VersionCompatSchemaEqual
			}
		} else {
			result = VersionCompatCheckSkipped
		}
	}

	if err := s.RecordVersion(ctx, engineVersion); err != nil {
		return result, err
	}
	return result, nil
}

// ensureVPrefix ensures version starts with 'v', the form
// golang.org/x/mod/semver requires.
func ensureVPrefix(version string) string {
	if len(version) > 0 && version[0] != 'v' {
		return "v" + version
	}
	return version
}
