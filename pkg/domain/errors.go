package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfiguration = errors.New("configuration error")

	ErrInvalidExecutionTransition = errors.New("invalid execution status transition")
	ErrExecutionNotFound          = errors.New("execution not found")
)

func NewConfigurationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// AdapterError is returned by vendor adapters and pollers when the external call
// fails. A successful call with no data never produces one.
type AdapterError struct {
	IntegrationType IntegrationType
	ActionID        string
	StatusCode      int
	Err             error
}

func (e *AdapterError) Error() string {
	target := string(e.IntegrationType)
	if e.ActionID != "" {
		target = fmt.Sprintf("%s.%s", e.IntegrationType, e.ActionID)
	}

	if e.StatusCode != 0 {
		return fmt.Sprintf("%s failed with status %d: %v", target, e.StatusCode, e.Err)
	}

	return fmt.Sprintf("%s failed: %v", target, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the vendor is likely to succeed on a later attempt.
func (e *AdapterError) IsRetryable() bool {
	return e.StatusCode == 0 || e.StatusCode == 429 || e.StatusCode >= 500
}

func NewAdapterError(integrationType IntegrationType, actionID string, statusCode int, err error) *AdapterError {
	return &AdapterError{
		IntegrationType: integrationType,
		ActionID:        actionID,
		StatusCode:      statusCode,
		Err:             err,
	}
}

// NodeError marks the node a workflow execution failed on.
type NodeError struct {
	NodeID   string
	NodeType NodeType
	Err      error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s (%s): %v", e.NodeID, e.NodeType, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

type ErrorClass string

const (
	ErrorClassConfiguration ErrorClass = "configuration"
	ErrorClassExternal      ErrorClass = "external"
	ErrorClassAuthorization ErrorClass = "authorization"
	ErrorClassNode          ErrorClass = "node"
	ErrorClassInternal      ErrorClass = "internal"
)

func ClassifyError(err error) ErrorClass {
	var (
		adapterErr *AdapterError
		nodeErr    *NodeError
	)

	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCredentialNotOwned), errors.Is(err, ErrCredentialNotVerified):
		return ErrorClassAuthorization
	case errors.Is(err, ErrConfiguration), errors.Is(err, ErrCredentialNotFound), errors.Is(err, ErrIntegrationNotFound):
		return ErrorClassConfiguration
	case errors.As(err, &nodeErr):
		return ErrorClassNode
	case errors.As(err, &adapterErr):
		return ErrorClassExternal
	}

	return ErrorClassInternal
}

// ErrorStack renders the wrap chain of err, outermost first.
func ErrorStack(err error) string {
	lines := []string{}

	for err != nil {
		lines = append(lines, fmt.Sprintf("%T: %s", err, err.Error()))
		err = errors.Unwrap(err)
	}

	return strings.Join(lines, "\n")
}
