// SPDX-License-Identifier: Apache-2.0

package rpcapi

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/nexusdm/dmengine/internal/rpcschema"
	"github.com/nexusdm/dmengine/pkg/applier"
	"github.com/nexusdm/dmengine/pkg/dbconn"
	"github.com/nexusdm/dmengine/pkg/datamodel"
	"github.com/nexusdm/dmengine/pkg/enginelog"
	"github.com/nexusdm/dmengine/pkg/engineerr"
	"github.com/nexusdm/dmengine/pkg/sqlcalc"
	"github.com/nexusdm/dmengine/pkg/sqldiff"
	"github.com/nexusdm/dmengine/pkg/sqlrender"
	"github.com/nexusdm/dmengine/pkg/state"
)

// Server dispatches line-delimited JSON-RPC 2.0 requests against one
// connected database, holding the single-threaded cooperative scheduling
// model described in §5: one instance serves one datasource, and commands
// are processed one at a time in the order they arrive on the reader.
type Server struct {
	conn     dbconn.DB
	state    *state.State
	app      *applier.Applier
	schema   string
	logger   enginelog.Logger
	validate *rpcschema.Validator
}

// NewServer returns a Server bound to conn, ensuring the _Migration table
// exists before serving any command. engineVersion is recorded against the
// datasource's migration state and compared with the last version recorded
// there; a recorded version newer than engineVersion fails startup outright,
// since an older binary should not act on state it may not understand.
func NewServer(ctx context.Context, conn dbconn.DB, schema string, logger enginelog.Logger, engineVersion string) (*Server, error) {
	if logger == nil {
		logger = enginelog.NewNoopLogger()
	}
	st := state.New(conn, schema)
	if err := st.Init(ctx); err != nil {
		return nil, fmt.Errorf("rpcapi: initializing migration state: %w", err)
	}

	compat, err := st.CheckVersionCompatibility(ctx, engineVersion)
	if err != nil {
		return nil, fmt.Errorf("rpcapi: checking engine version compatibility: %w", err)
	}
	switch compat {
	case state.VersionCompatSchemaNewer:
		return nil, fmt.Errorf("rpcapi: %w", state.ErrEngineOlderThanSchema)
	case state.VersionCompatSchemaOlder:
		logger.Info("migration state was last touched by an older engine version")
	}

	validate, err := rpcschema.New()
	if err != nil {
		return nil, fmt.Errorf("rpcapi: compiling RPC schemas: %w", err)
	}
	return &Server{
		conn:     conn,
		state:    st,
		app:      applier.New(conn, st, schema),
		schema:   schema,
		logger:   logger,
		validate: validate,
	}, nil
}

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// Serve reads one JSON-RPC request per line from r, dispatches it, and
// writes one JSON-RPC response per line to w, until r is exhausted or ctx
// is cancelled. Per §5, commands are never processed concurrently — each
// line is fully handled before the next is read.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	enc := json.NewEncoder(w)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		resp := s.handleLine(ctx, line)
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("rpcapi: writing response: %w", err)
		}
	}
	return scanner.Err()
}

// ServeOnce reads a single JSON-RPC request from r, dispatches it, writes
// its response to w, and returns — the --single_cmd mode of operation.
func (s *Server) ServeOnce(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	if !scanner.Scan() {
		return scanner.Err()
	}
	resp := s.handleLine(ctx, scanner.Bytes())
	return json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleLine(ctx context.Context, line []byte) response {
	var req request
	if err := json.Unmarshal(line, &req); err != nil {
		e := toRPCError(engineerr.InputError{Reason: "malformed JSON-RPC request: " + err.Error()})
		return response{JSONRPC: "2.0", Error: &e}
	}

	result, err := s.dispatch(ctx, req.Method, req.Params)
	if err != nil {
		e := toRPCError(err)
		return response{JSONRPC: "2.0", ID: req.ID, Error: &e}
	}
	return response{JSONRPC: "2.0", ID: req.ID, Result: result}
}

func (s *Server) dispatch(ctx context.Context, method string, params json.RawMessage) (interface{}, error) {
	if err := s.validateParams(method, params); err != nil {
		return nil, err
	}

	switch method {
	case "inferMigrationSteps":
		var in InferMigrationStepsInput
		if err := decodeParams(method, params, &in); err != nil {
			return nil, err
		}
		return s.inferMigrationSteps(in)

	case "calculateDatamodel":
		var in CalculateDatamodelInput
		if err := decodeParams(method, params, &in); err != nil {
			return nil, err
		}
		return s.calculateDatamodel(in)

	case "calculateDatabaseSteps":
		var in CalculateDatabaseStepsInput
		if err := decodeParams(method, params, &in); err != nil {
			return nil, err
		}
		return s.calculateDatabaseSteps(in)

	case "applyMigration":
		var in ApplyMigrationInput
		if err := decodeParams(method, params, &in); err != nil {
			return nil, err
		}
		return s.applyMigration(ctx, in)

	case "unapplyMigration":
		return s.unapplyMigration(ctx)

	case "migrationProgress":
		var in MigrationProgressInput
		if err := decodeParams(method, params, &in); err != nil {
			return nil, err
		}
		return s.migrationProgress(ctx, in)

	case "listMigrations":
		return s.listMigrations(ctx)

	case "reset":
		return s.reset(ctx)

	default:
		return nil, engineerr.InputError{Command: method, Reason: "unknown command"}
	}
}

// validateParams checks params against the JSON Schema registered for
// method, ahead of binding it onto a typed struct — a malformed shape is
// reported as the same InputError either way, but catching it here surfaces
// a schema-level message instead of a generic unmarshal failure.
func (s *Server) validateParams(method string, params json.RawMessage) error {
	if len(params) == 0 {
		return nil
	}
	var decoded any
	if err := json.Unmarshal(params, &decoded); err != nil {
		return nil // let decodeParams report the real unmarshal error
	}
	if err := s.validate.Validate(method, decoded); err != nil {
		return engineerr.InputError{Command: method, Reason: "params failed schema validation: " + err.Error()}
	}
	return nil
}

func decodeParams(method string, params json.RawMessage, out interface{}) error {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, out); err != nil {
		return engineerr.InputError{Command: method, Reason: "malformed params: " + err.Error()}
	}
	return nil
}

func (s *Server) inferMigrationSteps(in InferMigrationStepsInput) (*InferMigrationStepsOutput, error) {
	base, target := in.BaseDatamodel, in.TargetDatamodel
	if base == nil {
		base = datamodel.New()
	}
	if target == nil {
		target = datamodel.New()
	}
	return &InferMigrationStepsOutput{DatamodelSteps: datamodel.InferSteps(base, target)}, nil
}

func (s *Server) calculateDatamodel(in CalculateDatamodelInput) (*CalculateDatamodelOutput, error) {
	base := in.BaseDatamodel
	if base == nil {
		base = datamodel.New()
	}
	next, err := datamodel.NewCalculator().Infer(base, in.DatamodelSteps)
	if err != nil {
		return nil, engineerr.InvariantViolation{Reason: err.Error()}
	}
	return &CalculateDatamodelOutput{Datamodel: datamodel.Render(next)}, nil
}

func (s *Server) calculateDatabaseSteps(in CalculateDatabaseStepsInput) (*CalculateDatabaseStepsOutput, error) {
	calc := datamodel.NewCalculator()

	assumed, err := calc.Infer(datamodel.New(), in.AssumedDatamodelSteps)
	if err != nil {
		return nil, engineerr.InvariantViolation{Reason: err.Error()}
	}
	target, err := calc.Infer(assumed, in.DatamodelSteps)
	if err != nil {
		return nil, engineerr.InvariantViolation{Reason: err.Error()}
	}

	beforeSchema, err := sqlcalc.Calculate(assumed)
	if err != nil {
		return nil, engineerr.InvariantViolation{Reason: err.Error()}
	}
	afterSchema, err := sqlcalc.Calculate(target)
	if err != nil {
		return nil, engineerr.InvariantViolation{Reason: err.Error()}
	}

	var stmts []string
	for _, step := range sqldiff.Diff(beforeSchema, afterSchema) {
		rendered, err := sqlrender.Render(step, s.conn.Dialect(), s.schema)
		if err != nil {
			return nil, engineerr.InvariantViolation{Reason: err.Error()}
		}
		stmts = append(stmts, rendered...)
	}

	return &CalculateDatabaseStepsOutput{Datamodel: datamodel.Render(target), SQLSteps: stmts}, nil
}

func (s *Server) applyMigration(ctx context.Context, in ApplyMigrationInput) (*ApplyMigrationOutput, error) {
	res, err := s.app.Apply(ctx, applier.ApplyInput{MigrationID: in.MigrationID, Steps: in.Steps, Force: in.Force})
	if err != nil {
		return nil, err
	}
	out := &ApplyMigrationOutput{SQLSteps: res.SQLSteps, Warnings: res.Warnings, Errors: res.Errors}
	if res.Datamodel != nil {
		out.Datamodel = datamodel.Render(res.Datamodel)
	}
	return out, nil
}

func (s *Server) unapplyMigration(ctx context.Context) (*UnapplyMigrationOutput, error) {
	rolledBack, newActive, err := s.app.Unapply(ctx)
	if err != nil {
		return nil, err
	}
	return &UnapplyMigrationOutput{RolledBack: rolledBack, NewActive: newActive}, nil
}

func (s *Server) migrationProgress(ctx context.Context, in MigrationProgressInput) (*MigrationProgressOutput, error) {
	m, err := s.state.ByName(ctx, in.MigrationID)
	if err != nil {
		return nil, engineerr.ConnectorError{Kind: engineerr.ConnectorGeneric, Message: err.Error()}
	}
	if m == nil {
		return nil, engineerr.InputError{Command: "migrationProgress", Reason: "no such migration: " + in.MigrationID}
	}
	out := &MigrationProgressOutput{
		Status:     string(m.Status),
		Applied:    m.Applied,
		RolledBack: m.RolledBack,
		StartedAt:  m.StartedAt.UnixMilli(),
	}
	if m.FinishedAt != nil {
		ms := m.FinishedAt.UnixMilli()
		out.FinishedAt = &ms
	}
	return out, nil
}

func (s *Server) listMigrations(ctx context.Context) (*ListMigrationsOutput, error) {
	all, err := s.state.LoadAll(ctx)
	if err != nil {
		return nil, engineerr.ConnectorError{Kind: engineerr.ConnectorGeneric, Message: err.Error()}
	}
	out := &ListMigrationsOutput{}
	for _, m := range all {
		out.Migrations = append(out.Migrations, MigrationSummary{
			Name: m.Name, Revision: m.Revision, Status: string(m.Status), StartedAt: m.StartedAt.UnixMilli(),
		})
	}
	return out, nil
}

func (s *Server) reset(ctx context.Context) (*ResetOutput, error) {
	if err := s.state.Reset(ctx); err != nil {
		return nil, engineerr.ConnectorError{Kind: engineerr.ConnectorGeneric, Message: err.Error()}
	}
	if err := s.state.Init(ctx); err != nil {
		return nil, engineerr.ConnectorError{Kind: engineerr.ConnectorGeneric, Message: err.Error()}
	}
	return &ResetOutput{}, nil
}
