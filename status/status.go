// Package status carries the RPC status taxonomy used to terminate a
// stream. It is a thin layer over google.golang.org/grpc/codes and
// google.golang.org/grpc/status: the same authoritative code table
// (0 OK .. 16 Unauthenticated) the teacher's grpc_server.go and
// telemetry/server.go already import, reused here rather than
// reinvented.
package status

import (
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Code re-exports the grpc status code enumeration so call sites never
// need to import google.golang.org/grpc/codes directly.
type Code = codes.Code

const (
	OK                 = codes.OK
	Cancelled          = codes.Canceled
	Unknown            = codes.Unknown
	InvalidArgument    = codes.InvalidArgument
	DeadlineExceeded   = codes.DeadlineExceeded
	NotFound           = codes.NotFound
	AlreadyExists      = codes.AlreadyExists
	PermissionDenied   = codes.PermissionDenied
	ResourceExhausted  = codes.ResourceExhausted
	FailedPrecondition = codes.FailedPrecondition
	Aborted            = codes.Aborted
	OutOfRange         = codes.OutOfRange
	Unimplemented      = codes.Unimplemented
	Internal           = codes.Internal
	Unavailable        = codes.Unavailable
	DataLoss           = codes.DataLoss
	Unauthenticated    = codes.Unauthenticated
)

// Status is the trailer status carried at end-of-stream: a code, a
// human message, and optional structured details.
type Status struct {
	Code    Code
	Message string
	Details []any
}

// New builds a Status with the given code and formatted message.
func New(code Code, format string, args ...any) *Status {
	return &Status{Code: code, Message: fmt.Sprintf(format, args...)}
}

// OK reports whether the status represents success.
func (s *Status) OK() bool {
	return s == nil || s.Code == OK
}

// Err converts the Status into an error, or nil if the status is OK.
// The returned error's gRPC-shaped status can be recovered with
// FromError, so callers that only ever see a Go `error` can still
// recover the code.
func (s *Status) Err() error {
	if s.OK() {
		return nil
	}
	return status.Error(s.Code, s.Message)
}

func (s *Status) Error() string {
	if s == nil {
		return "status: nil"
	}
	return fmt.Sprintf("rpc error: code = %s desc = %s", s.Code, s.Message)
}

// FromError recovers a *Status from an error, mapping any error that
// does not already carry a gRPC status to Internal — the propagation
// policy in spec.md §7: "Handler exceptions are caught ... and
// translated to internal unless the handler raised a recognized RPC
// error carrying its own status."
func FromError(err error) *Status {
	if err == nil {
		return &Status{Code: OK}
	}
	if s, ok := status.FromError(err); ok {
		return &Status{Code: s.Code(), Message: s.Message()}
	}
	return &Status{Code: Internal, Message: err.Error()}
}

// Errorf is a convenience constructor mirroring status.Errorf, for
// handlers that want to return a status-carrying error directly.
func Errorf(code Code, format string, args ...any) error {
	return New(code, format, args...).Err()
}
