package controller

import (
	"github.com/pkg/errors"
)

type (
	// UnknownHostError is returned for operations on a host name with
	// no record.
	UnknownHostError struct {
		Host string
	}

	// AlreadyRegisteredError is returned by AddHost on a duplicate host
	// name.
	AlreadyRegisteredError struct {
		Host string
	}
)

var (
	// ErrShutdown is returned once the controller is shutting down or
	// already shut down.
	ErrShutdown = errors.New("controller is shut down")

	// ErrInvalidArgument is returned on empty strings and invalid enum
	// values.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrConnection qualifies a failed initial connect, reported via
	// OnHostError.
	ErrConnection = errors.New("connection error")
)

func (e UnknownHostError) Error() string {
	return "unknown host " + e.Host
}

func (e AlreadyRegisteredError) Error() string {
	return "host " + e.Host + " already registered"
}
