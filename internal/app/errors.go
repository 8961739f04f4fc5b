package app

import "fmt"

// ErrConnection represents a warehouse connection error.
type ErrConnection struct {
	Warehouse string
	Cause     error
}

func (e *ErrConnection) Error() string {
	if e.Warehouse == "" {
		return fmt.Sprintf("connection error: %v", e.Cause)
	}
	return fmt.Sprintf("%s connection error: %v", e.Warehouse, e.Cause)
}

func (e *ErrConnection) Unwrap() error {
	return e.Cause
}

// ErrQuery represents a query execution error.
type ErrQuery struct {
	Query string
	Cause error
}

func (e *ErrQuery) Error() string {
	return fmt.Sprintf("query error: %v", e.Cause)
}

func (e *ErrQuery) Unwrap() error {
	return e.Cause
}

// ErrConfig represents a configuration error.
type ErrConfig struct {
	Cause error
}

func (e *ErrConfig) Error() string {
	return fmt.Sprintf("config error: %v", e.Cause)
}

func (e *ErrConfig) Unwrap() error {
	return e.Cause
}

// ErrWrite represents a failed write into a table.
type ErrWrite struct {
	Table string
	Cause error
}

func (e *ErrWrite) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("write error: %v", e.Cause)
	}
	return fmt.Sprintf("write to %s: %v", e.Table, e.Cause)
}

func (e *ErrWrite) Unwrap() error {
	return e.Cause
}
