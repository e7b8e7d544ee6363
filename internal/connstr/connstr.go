// SPDX-License-Identifier: Apache-2.0

// Package connstr parses and manipulates datasource connection strings
// across the engine's three supported URL schemes (§6).
package connstr

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/nexusdm/dmengine/pkg/dialect"
)

// AppendSearchPathOption takes a Postgres connection string in URL format
// and produces the same connection string with the search_path option set
// to the provided schema.
func AppendSearchPathOption(connStr, schema string) (string, error) {
	u, err := url.Parse(connStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse connection string: %w", err)
	}

	if schema == "" {
		return connStr, nil
	}

	q := u.Query()
	q.Set("options", fmt.Sprintf("-c search_path=%s", schema))
	encodedQuery := q.Encode()

	// Replace '+' with '%20' to ensure proper encoding of spaces within the
	// `options` query parameter.
	encodedQuery = strings.ReplaceAll(encodedQuery, "+", "%20")

	u.RawQuery = encodedQuery

	return u.String(), nil
}

// Parsed is a datasource URL decomposed into the pieces the engine needs:
// which dialect to drive, the DSN to hand the driver, and the namespace
// (schema name on Postgres/MySQL, file path on SQLite) to operate within.
type Parsed struct {
	Dialect   dialect.Dialect
	DSN       string
	Namespace string
}

// Parse decodes a datasource URL per §6's scheme table:
//
//	sqlite: / file:            path-based, namespace is the file path
//	postgres: / postgresql:    ?schema= selects the namespace, default "public"
//	mysql:                     namespace is the path component (the database name)
func Parse(rawURL string) (Parsed, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Parsed{}, fmt.Errorf("connstr: invalid datasource URL: %w", err)
	}
	if u.Scheme == "" {
		return Parsed{}, fmt.Errorf("connstr: datasource URL has no scheme: %q", rawURL)
	}

	d, err := dialect.Parse(u.Scheme)
	if err != nil {
		return Parsed{}, fmt.Errorf("connstr: %w", err)
	}

	switch d {
	case dialect.Sqlite:
		path := u.Opaque
		if path == "" {
			path = u.Path
		}
		return Parsed{Dialect: d, DSN: path, Namespace: path}, nil

	case dialect.Postgres:
		schema := u.Query().Get("schema")
		if schema == "" {
			schema = "public"
		}
		return Parsed{Dialect: d, DSN: rawURL, Namespace: schema}, nil

	case dialect.Mysql:
		namespace := strings.TrimPrefix(u.Path, "/")
		return Parsed{Dialect: d, DSN: mysqlDSN(u), Namespace: namespace}, nil
	}

	return Parsed{}, fmt.Errorf("connstr: unhandled dialect %v", d)
}

// mysqlDSN converts a mysql:// URL into the go-sql-driver/mysql DSN format
// (user:pass@tcp(host:port)/dbname?params), since that driver does not
// accept URLs directly.
func mysqlDSN(u *url.URL) string {
	var userinfo string
	if u.User != nil {
		userinfo = u.User.String() + "@"
	}
	host := u.Host
	dbname := strings.TrimPrefix(u.Path, "/")
	dsn := fmt.Sprintf("%stcp(%s)/%s", userinfo, host, dbname)
	if u.RawQuery != "" {
		dsn += "?" + u.RawQuery
	}
	return dsn
}
