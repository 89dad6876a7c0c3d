// Package simulator implements a stand-in package service: it tracks
// install state and simulates downloads without installing anything.
package simulator

import (
	"context"
	"fmt"
)

// Error codes returned to clients.
const (
	CodeMethodNotFound  = "METHOD_NOT_FOUND"
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeNotFound        = "NOT_FOUND"
	CodeInternal        = "INTERNAL_ERROR"
)

// ServiceError is a structured error reported to the caller.
type ServiceError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ServiceError) Error() string {
	return e.Code + ": " + e.Message
}

// NewServiceError creates a new ServiceError.
func NewServiceError(code, format string, args ...any) *ServiceError {
	return &ServiceError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Peer is a connected client that can receive pushes.
type Peer interface {
	ID() string
	Push(ctx context.Context, method string, params any) error
}
