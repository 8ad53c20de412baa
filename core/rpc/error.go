package rpc

import (
	"fmt"

	"github.com/pkg/errors"
)

type (
	// Error qualifies a failed request/response exchange.
	Error struct {
		Op      string
		Status  Status
		Message string
	}
)

var (
	// ErrUnauthorized is returned by Authorize when the daemon rejects
	// the password.
	ErrUnauthorized = errors.New("unauthorized")
)

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Status, e.Message)
}

// NewError returns an Error for the op of req.
func NewError(req Request, status Status, message string) *Error {
	op := "rpc"
	if req != nil {
		op = req.Op()
	}
	return &Error{
		Op:      op,
		Status:  status,
		Message: message,
	}
}
