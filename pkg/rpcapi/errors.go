// SPDX-License-Identifier: Apache-2.0

package rpcapi

import (
	"github.com/nexusdm/dmengine/pkg/engineerr"
)

// rpcError is the JSON-RPC 2.0 error object. Every domain error (InputError,
// DatamodelError, ConnectorError, InvariantViolation) uses the same wire
// code; for all of them except InputError, data.error_code carries the
// finer-grained stable code a caller switches on.
type rpcError struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    *rpcErrorData  `json:"data,omitempty"`
}

type rpcErrorData struct {
	ErrorCode string                        `json:"error_code,omitempty"`
	Errors    []engineerr.DatamodelErrorSpan `json:"errors,omitempty"`
}

// connectorErrorCodes maps each stable connector failure class to the
// engine's external error code, switched on by callers that need to
// distinguish "retry" from "give up" failures.
var connectorErrorCodes = map[engineerr.ConnectorErrorKind]string{
	engineerr.DatabaseDoesNotExist:  "P1003",
	engineerr.DatabaseAccessDenied:  "P1010",
	engineerr.DatabaseAlreadyExists: "P1009",
	engineerr.AuthenticationFailed:  "P1000",
	engineerr.ConnectTimeout:        "P1001",
	engineerr.Timeout:               "P1008",
	engineerr.TlsError:              "P1011",
	engineerr.ConnectorGeneric:      "P1500",
}

// toRPCError converts a Go error into the JSON-RPC error object reported on
// the wire, classifying it by the engine's error-kind taxonomy where
// possible and falling back to a generic invariant-violation shape for
// anything unrecognized.
func toRPCError(err error) rpcError {
	switch e := err.(type) {
	case engineerr.InputError:
		return rpcError{Code: engineerr.RPCErrorCode, Message: e.Error()}

	case engineerr.DatamodelError:
		return rpcError{
			Code:    engineerr.RPCErrorCode,
			Message: e.Error(),
			Data:    &rpcErrorData{ErrorCode: "P1012", Errors: e.Errors},
		}

	case engineerr.ConnectorError:
		return rpcError{
			Code:    engineerr.RPCErrorCode,
			Message: e.Error(),
			Data:    &rpcErrorData{ErrorCode: connectorErrorCodes[e.Kind]},
		}

	case engineerr.InvariantViolation:
		return rpcError{Code: engineerr.RPCErrorCode, Message: e.Error(), Data: &rpcErrorData{ErrorCode: "P1000"}}

	default:
		return rpcError{Code: engineerr.RPCErrorCode, Message: err.Error()}
	}
}
