// Package taxonomy defines the gateway's closed error-kind vocabulary,
// its numeric code space, and the mapping onto wire status codes.
package taxonomy

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"google.golang.org/grpc/codes"
)

// Kind is one of the nine closed error kinds the gateway ever emits.
type Kind string

const (
	Auth             Kind = "auth"
	InvalidRequest   Kind = "invalid_request"
	NotFound         Kind = "not_found"
	PolicyViolation  Kind = "policy_violation"
	Sandbox          Kind = "sandbox"
	Execution        Kind = "execution"
	Internal         Kind = "internal"
	Temporary        Kind = "temporary"
	ExternalService  Kind = "external_service"
)

// Numeric codes, grouped by category as the wire contract requires.
const (
	AuthInvalidCredentials      = 1001
	AuthExpiredToken            = 1002
	AuthInsufficientPermissions = 1003

	InputInvalidParameter = 2001
	InputMissingRequired  = 2002
	InputInvalidFormat    = 2003

	PolicyCommandNotAllowed    = 3001
	PolicyNetworkAccessDenied  = 3002
	PolicyFileAccessDenied     = 3003
	PolicyResourceLimitExceed  = 3004

	SandboxSetupFailed           = 4001
	SandboxExecutionFailed       = 4002
	SandboxResourceLimitExceeded = 4003

	InternalUnexpected       = 5001
	InternalDatabaseError    = 5002
	InternalDependencyFailed = 5003

	ResourceNotFound = 6001
)

// Error is the gateway's single error type. Every error that crosses a
// component boundary is one of these.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
}

func (e *Error) Error() string { return e.Message }

// New builds an Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithDetails attaches structured context to an existing error.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// Code derives the numeric code for this error. Within a kind's group,
// substring hints on the message refine the code; this is a best-effort
// categorization, not a contract — callers must not depend on exact
// values beyond the declared constants.
func (e *Error) Code() int {
	msg := strings.ToLower(e.Message)
	switch e.Kind {
	case Auth:
		switch {
		case strings.Contains(msg, "invalid"):
			return AuthInvalidCredentials
		case strings.Contains(msg, "expired"):
			return AuthExpiredToken
		default:
			return AuthInsufficientPermissions
		}
	case InvalidRequest:
		switch {
		case strings.Contains(msg, "missing"):
			return InputMissingRequired
		case strings.Contains(msg, "format"):
			return InputInvalidFormat
		default:
			return InputInvalidParameter
		}
	case NotFound:
		return ResourceNotFound
	case PolicyViolation:
		switch {
		case strings.Contains(msg, "command"):
			return PolicyCommandNotAllowed
		case strings.Contains(msg, "network"):
			return PolicyNetworkAccessDenied
		case strings.Contains(msg, "file"), strings.Contains(msg, "path"):
			return PolicyFileAccessDenied
		case strings.Contains(msg, "resource"):
			return PolicyResourceLimitExceed
		default:
			return PolicyCommandNotAllowed
		}
	case Sandbox:
		switch {
		case strings.Contains(msg, "setup"):
			return SandboxSetupFailed
		case strings.Contains(msg, "resource"):
			return SandboxResourceLimitExceeded
		default:
			return SandboxExecutionFailed
		}
	case Execution:
		return SandboxExecutionFailed
	case Internal:
		switch {
		case strings.Contains(msg, "database"):
			return InternalDatabaseError
		case strings.Contains(msg, "dependency"):
			return InternalDependencyFailed
		default:
			return InternalUnexpected
		}
	case Temporary:
		return InternalUnexpected
	case ExternalService:
		return InternalDependencyFailed
	default:
		return InternalUnexpected
	}
}

// WireCode maps a Kind to the abstract wire status taxonomy, represented
// here by google.golang.org/grpc/codes.Code since that vocabulary is
// character-for-character the one the gateway's GLOSSARY names.
func (e *Error) WireCode() codes.Code {
	switch e.Kind {
	case Auth:
		if strings.Contains(strings.ToLower(e.Message), "permission") {
			return codes.PermissionDenied
		}
		return codes.Unauthenticated
	case InvalidRequest:
		return codes.InvalidArgument
	case NotFound:
		return codes.NotFound
	case PolicyViolation:
		return codes.PermissionDenied
	case Sandbox:
		return codes.FailedPrecondition
	case Execution, Internal:
		return codes.Internal
	case Temporary, ExternalService:
		return codes.Unavailable
	default:
		return codes.Unknown
	}
}

// Response is the wire payload attached to every error response.
type Response struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ToResponse renders the error into its wire form.
func (e *Error) ToResponse() Response {
	return Response{Code: e.Code(), Message: e.Message, Details: e.Details}
}

// FromIOError converts a host I/O error into the gateway's taxonomy,
// matching the conversion table in the spec's error-handling design.
func FromIOError(err error) *Error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, os.ErrNotExist):
		return New(NotFound, "not found: %v", err)
	case errors.Is(err, fs.ErrPermission), errors.Is(err, os.ErrPermission):
		return New(PolicyViolation, "permission denied: %v", err)
	}
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		switch {
		case strings.Contains(netErr.Err.Error(), "connection refused"):
			return New(ExternalService, "connection refused: %v", err)
		case strings.Contains(netErr.Err.Error(), "connection reset"),
			strings.Contains(netErr.Err.Error(), "connection aborted"):
			return New(Temporary, "connection interrupted: %v", err)
		case netErr.Timeout():
			return New(Execution, "timed out: %v", err)
		}
	}
	return New(Internal, "i/o error: %v", err)
}

// counters tracks process-global occurrence counts keyed by kind and
// by "code_NNNN", per the spec's counter requirement. It is a
// dependency-injected handle rather than a module-global singleton per
// the re-architecture guidance: construct one with NewCounters and pass
// it to the request service.
type Counters struct {
	mu     sync.Mutex
	values map[string]*atomic.Int64
}

func NewCounters() *Counters {
	return &Counters{values: make(map[string]*atomic.Int64)}
}

func (c *Counters) bump(key string) {
	c.mu.Lock()
	v, ok := c.values[key]
	if !ok {
		v = &atomic.Int64{}
		c.values[key] = v
	}
	c.mu.Unlock()
	v.Add(1)
}

// Record increments both the kind-keyed and code-keyed counters for err.
func (c *Counters) Record(err *Error) {
	c.bump(string(err.Kind))
	c.bump(fmt.Sprintf("code_%d", err.Code()))
}

// Stats returns a point-in-time snapshot of every counter.
func (c *Counters) Stats() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int64, len(c.values))
	for k, v := range c.values {
		out[k] = v.Load()
	}
	return out
}

// Count returns the current value for a single counter key, 0 if unset.
func (c *Counters) Count(key string) int64 {
	c.mu.Lock()
	v, ok := c.values[key]
	c.mu.Unlock()
	if !ok {
		return 0
	}
	return v.Load()
}
